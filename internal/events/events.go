package events

// Event is the interface satisfied by all event types emitted during
// repository ingestion, test generation, and test runs.
type Event interface {
	eventTag()
}

// EventHandler processes events emitted by background jobs.
type EventHandler interface {
	Handle(event Event)
}

// FetchStarted is emitted when repository ingestion begins.
type FetchStarted struct {
	Owner  string
	Repo   string
	Source string // "api" or "clone"
}

func (FetchStarted) eventTag() {}

// TreeResolved is emitted once the repository file tree has been listed.
type TreeResolved struct {
	Branch    string
	Entries   int
	Truncated bool
}

func (TreeResolved) eventTag() {}

// FileFetched is emitted for each file that passes filtering.
type FileFetched struct {
	Path string
	Size int
}

func (FileFetched) eventTag() {}

// ContextBuilt is emitted when the context document has been assembled.
type ContextBuilt struct {
	Files int
	Bytes int
}

func (ContextBuilt) eventTag() {}

// FetchFailed is emitted when ingestion fails.
type FetchFailed struct {
	Reason string
}

func (FetchFailed) eventTag() {}

// GenerationStarted is emitted when a test suite generation request is sent.
type GenerationStarted struct {
	SuiteID string
	Model   string
}

func (GenerationStarted) eventTag() {}

// GenerationDone is emitted when test cases have been parsed and stored.
type GenerationDone struct {
	SuiteID    string
	TotalTests int
}

func (GenerationDone) eventTag() {}

// GenerationFailed is emitted when generation fails.
type GenerationFailed struct {
	SuiteID string
	Reason  string
}

func (GenerationFailed) eventTag() {}

// RunStarted is emitted when a suite run begins.
type RunStarted struct {
	RunID   string
	SuiteID string
	Cases   int
}

func (RunStarted) eventTag() {}

// CaseResult is emitted for each executed test case.
type CaseResult struct {
	RunID    string
	CaseName string
	Status   string
	Mock     string // matched mock function, if any
}

func (CaseResult) eventTag() {}

// RunDone is emitted when a suite run completes.
type RunDone struct {
	RunID  string
	Passed int
	Failed int
}

func (RunDone) eventTag() {}
