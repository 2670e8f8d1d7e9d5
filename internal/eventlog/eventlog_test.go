package eventlog_test

import (
	"testing"

	"testforge/internal/eventlog"
	"testforge/internal/events"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name       string
		event      events.Event
		wantType   string
		wantDetail string
	}{
		{
			name:       "fetch started",
			event:      events.FetchStarted{Owner: "octocat", Repo: "hello", Source: "api"},
			wantType:   "fetch",
			wantDetail: "Fetching octocat/hello via api",
		},
		{
			name:       "tree resolved",
			event:      events.TreeResolved{Branch: "main", Entries: 42},
			wantType:   "fetch",
			wantDetail: "Resolved branch main: 42 entries",
		},
		{
			name:       "tree resolved truncated",
			event:      events.TreeResolved{Branch: "main", Entries: 100000, Truncated: true},
			wantType:   "fetch",
			wantDetail: "Resolved branch main: 100000 entries (truncated)",
		},
		{
			name:       "file fetched",
			event:      events.FileFetched{Path: "src/main.go", Size: 512},
			wantType:   "fetch",
			wantDetail: "+ src/main.go (512 bytes)",
		},
		{
			name:       "context built",
			event:      events.ContextBuilt{Files: 12, Bytes: 34000},
			wantType:   "fetch",
			wantDetail: "Context built: 12 files, 34000 bytes",
		},
		{
			name:       "fetch failed",
			event:      events.FetchFailed{Reason: "repo not found"},
			wantType:   "fetch",
			wantDetail: "Fetch failed: repo not found",
		},
		{
			name:       "generation started",
			event:      events.GenerationStarted{SuiteID: "s1", Model: "gemini-1.5-flash-latest"},
			wantType:   "generate",
			wantDetail: "Generating test cases with gemini-1.5-flash-latest",
		},
		{
			name:       "generation done",
			event:      events.GenerationDone{SuiteID: "s1", TotalTests: 8},
			wantType:   "generate",
			wantDetail: "Generated 8 test cases",
		},
		{
			name:       "generation failed",
			event:      events.GenerationFailed{Reason: "no candidates"},
			wantType:   "generate",
			wantDetail: "Generation failed: no candidates",
		},
		{
			name:       "run started",
			event:      events.RunStarted{RunID: "r1", Cases: 5},
			wantType:   "run",
			wantDetail: "Run started: 5 cases",
		},
		{
			name:       "case result with mock",
			event:      events.CaseResult{RunID: "r1", CaseName: "sums", Status: "passed", Mock: "calculateSum"},
			wantType:   "run",
			wantDetail: "sums: passed (mock calculateSum)",
		},
		{
			name:       "case result without mock",
			event:      events.CaseResult{RunID: "r1", CaseName: "sums", Status: "passed"},
			wantType:   "run",
			wantDetail: "sums: passed",
		},
		{
			name:       "run done",
			event:      events.RunDone{RunID: "r1", Passed: 4, Failed: 1},
			wantType:   "run",
			wantDetail: "Run done: 4 passed, 1 failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotDetail := eventlog.Format(tt.event)
			if gotType != tt.wantType {
				t.Errorf("event type = %q, want %q", gotType, tt.wantType)
			}
			if gotDetail != tt.wantDetail {
				t.Errorf("detail = %q, want %q", gotDetail, tt.wantDetail)
			}
		})
	}
}

type capture struct {
	events []events.Event
}

func (c *capture) Handle(e events.Event) { c.events = append(c.events, e) }

func TestHandler_ForwardsAndCallsBack(t *testing.T) {
	upstream := &capture{}
	var gotRepoID, gotType, gotDetail string

	h := eventlog.New(nil, "repo-1", upstream, func(repoID, eventType, detail string) {
		gotRepoID, gotType, gotDetail = repoID, eventType, detail
	})

	h.Handle(events.FetchStarted{Owner: "octocat", Repo: "hello", Source: "api"})

	if len(upstream.events) != 1 {
		t.Fatalf("expected event forwarded upstream, got %d", len(upstream.events))
	}
	if gotRepoID != "repo-1" || gotType != "fetch" {
		t.Errorf("callback got %q/%q", gotRepoID, gotType)
	}
	if gotDetail == "" {
		t.Error("callback detail should not be empty")
	}
}

func TestHandler_NilCollaborators(t *testing.T) {
	h := eventlog.New(nil, "repo-1", nil, nil)
	// Must not panic with no DB, upstream, or callback.
	h.Handle(events.RunDone{RunID: "r1", Passed: 1})
}
