package gemini

import (
	"strings"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{
			name: "bare object",
			text: `{"testCases": []}`,
			want: `{"testCases": []}`,
		},
		{
			name: "json code fence",
			text: "```json\n{\"testCases\": []}\n```",
			want: `{"testCases": []}`,
		},
		{
			name: "plain code fence",
			text: "```\n{\"testCases\": []}\n```",
			want: `{"testCases": []}`,
		},
		{
			name: "surrounding prose",
			text: "Here are your tests:\n{\"testCases\": []}\nLet me know if you need more.",
			want: `{"testCases": []}`,
		},
		{
			name:    "no object",
			text:    "I could not generate any tests.",
			wantErr: true,
		},
		{
			name:    "empty",
			text:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSuite_FillsDefaults(t *testing.T) {
	text := `{
		"testCases": [
			{"name": "adds numbers", "input": [1, 2], "expected": 3, "code": "expect(calculateSum(1,2)).toBe(3)"},
			{"id": "custom_id", "name": "rejects bad email", "testType": "error-handling", "priority": "high"}
		]
	}`

	suite, err := ParseSuite(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(suite.TestCases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(suite.TestCases))
	}

	first := suite.TestCases[0]
	if first.ID != "test_1" {
		t.Errorf("expected generated ID test_1, got %s", first.ID)
	}
	if first.TestType != "unit" {
		t.Errorf("expected default testType unit, got %s", first.TestType)
	}
	if first.Priority != "medium" {
		t.Errorf("expected default priority medium, got %s", first.Priority)
	}

	second := suite.TestCases[1]
	if second.ID != "custom_id" {
		t.Errorf("explicit ID should be kept, got %s", second.ID)
	}
	if second.TestType != "error-handling" || second.Priority != "high" {
		t.Errorf("explicit type/priority should be kept: %+v", second)
	}
}

func TestParseSuite_RecomputesSummary(t *testing.T) {
	// The embedded summary lies; ParseSuite must recount.
	text := `{
		"testCases": [
			{"name": "a", "testType": "unit"},
			{"name": "b", "testType": "integration"},
			{"name": "c", "testType": "edge-case"},
			{"name": "d", "testType": "error-handling"},
			{"name": "e"}
		],
		"summary": {"totalTests": 99, "unitTests": 99}
	}`

	suite, err := ParseSuite(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := suite.Summary
	if s.TotalTests != 5 {
		t.Errorf("expected 5 total, got %d", s.TotalTests)
	}
	if s.UnitTests != 2 || s.IntegrationTests != 1 || s.EdgeCases != 1 || s.ErrorHandlingTests != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestParseSuite_MalformedJSON(t *testing.T) {
	_, err := ParseSuite(`{"testCases": [}`)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("=== FILES ===\nmain.go", "focus on edge cases")

	if !strings.Contains(prompt, "=== FILES ===\nmain.go") {
		t.Error("prompt should embed the code context")
	}
	if !strings.Contains(prompt, "focus on edge cases") {
		t.Error("prompt should embed the additional prompt")
	}
	if !strings.Contains(prompt, "testCases") {
		t.Error("prompt should describe the expected JSON shape")
	}
}
