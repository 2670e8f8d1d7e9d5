// Package worker runs repository ingestion and test generation jobs in
// background goroutines with bounded concurrency.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"testforge/internal/db"
	"testforge/internal/eventlog"
	"testforge/internal/events"
	"testforge/internal/gemini"
	"testforge/internal/ingest"
	"testforge/internal/source"
)

// Fetcher ingests a repository, reporting progress to the handler. The
// real implementations are ingest.APIFetcher and ingest.CloneFetcher;
// tests inject mocks.
type Fetcher interface {
	Fetch(ctx context.Context, owner, repo string, h events.EventHandler) (ingest.Result, error)
}

// Generator produces a test suite from a code context. The real
// implementation is the gemini client; tests inject a mock.
type Generator interface {
	GenerateTests(ctx context.Context, codeContext, additionalPrompt string) (gemini.Suite, error)
	Model() string
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, owner, repo string, h events.EventHandler) (ingest.Result, error)

func (f FetcherFunc) Fetch(ctx context.Context, owner, repo string, h events.EventHandler) (ingest.Result, error) {
	return f(ctx, owner, repo, h)
}

// Config holds the dependencies for the job dispatcher.
type Config struct {
	DB         *db.DB
	MaxWorkers int
	// Fetchers maps an ingestion source name ("api", "clone") to its fetcher.
	Fetchers  map[string]Fetcher
	Generator Generator
	// DataDir is where context documents are written.
	DataDir string
	Logger  *slog.Logger

	// OnEvent is called for every logged activity entry. The caller wires
	// this to the WebSocket hub so the worker package doesn't import the
	// server package.
	OnEvent func(repoID, eventType, detail string)
}

// Dispatcher manages background job goroutines. It limits concurrency and
// tracks which records are currently being worked on.
type Dispatcher struct {
	db        *db.DB
	fetchers  map[string]Fetcher
	generator Generator
	dataDir   string
	logger    *slog.Logger
	onEvent   func(repoID, eventType, detail string)

	mu     sync.Mutex
	active map[string]context.CancelFunc // record ID → cancel func
	sem    chan struct{}
	wg     sync.WaitGroup
}

// New creates a Dispatcher with the given configuration.
func New(cfg Config) *Dispatcher {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		db:        cfg.DB,
		fetchers:  cfg.Fetchers,
		generator: cfg.Generator,
		dataDir:   cfg.DataDir,
		logger:    logger,
		onEvent:   cfg.OnEvent,
		active:    make(map[string]context.CancelFunc),
		sem:       make(chan struct{}, maxWorkers),
	}
}

// Wait blocks until all active jobs have completed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// IsRunning returns true if a job is active for the given record ID.
func (d *Dispatcher) IsRunning(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[id]
	return ok
}

// Cancel cancels a running job. Returns false if no job is active for the ID.
func (d *Dispatcher) Cancel(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cancel, ok := d.active[id]
	if ok {
		cancel()
	}
	return ok
}

// ActiveCount returns the number of currently active jobs.
func (d *Dispatcher) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// acquire reserves a worker slot and registers the record as active. The
// lock is held across the duplicate check and the registration so two
// concurrent dispatches for the same ID cannot both pass the check.
func (d *Dispatcher) acquire(ctx context.Context, id string) (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.active[id]; ok {
		return nil, fmt.Errorf("job for %s is already running", id)
	}

	select {
	case d.sem <- struct{}{}:
	default:
		return nil, fmt.Errorf("no worker slot available (max %d)", cap(d.sem))
	}

	jobCtx, cancel := context.WithCancel(ctx)
	d.active[id] = cancel
	return jobCtx, nil
}

// release frees the worker slot and active-map entry for a record.
func (d *Dispatcher) release(id string) {
	<-d.sem
	d.mu.Lock()
	if cancel, ok := d.active[id]; ok {
		cancel()
		delete(d.active, id)
	}
	d.mu.Unlock()
}

// DispatchIngest starts a background ingestion job for the repo.
func (d *Dispatcher) DispatchIngest(ctx context.Context, repo db.Repo) error {
	fetcher, ok := d.fetchers[repo.Source]
	if !ok {
		return fmt.Errorf("unknown ingestion source %q", repo.Source)
	}

	jobCtx, err := d.acquire(ctx, repo.ID)
	if err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(repo.ID)
		d.runIngest(jobCtx, repo, fetcher)
	}()
	return nil
}

func (d *Dispatcher) runIngest(ctx context.Context, repo db.Repo, fetcher Fetcher) {
	handler := eventlog.New(d.db, repo.ID, nil, d.onEvent)

	if err := d.db.SetRepoState(repo.ID, db.RepoStateFetching, ""); err != nil {
		d.logger.Error("setting repo state", "repo", repo.ID, "error", err)
		return
	}

	result, err := fetcher.Fetch(ctx, repo.Owner, repo.Name, handler)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			d.logger.Info("ingestion cancelled", "repo", repo.ID)
			_ = d.db.SetRepoState(repo.ID, db.RepoStateFailed, "cancelled")
			return
		}
		d.logger.Error("ingestion failed", "repo", repo.ID, "error", err)
		handler.Handle(events.FetchFailed{Reason: err.Error()})
		_ = d.db.SetRepoState(repo.ID, db.RepoStateFailed, err.Error())
		return
	}

	contextPath, err := d.writeContext(repo, result.Context)
	if err != nil {
		d.logger.Error("writing context file", "repo", repo.ID, "error", err)
		_ = d.db.SetRepoState(repo.ID, db.RepoStateFailed, err.Error())
		return
	}

	files := make([]db.RepoFile, len(result.Files))
	for i, f := range result.Files {
		files[i] = db.RepoFile{RepoID: repo.ID, Path: f.Path, Size: f.Size, Content: f.Content}
	}
	if err := d.db.ReplaceRepoFiles(repo.ID, files); err != nil {
		d.logger.Error("storing repo files", "repo", repo.ID, "error", err)
		_ = d.db.SetRepoState(repo.ID, db.RepoStateFailed, err.Error())
		return
	}

	repo.State = db.RepoStateReady
	repo.DefaultBranch = result.Branch
	repo.FilesCount = len(result.Files)
	repo.ContextPath = contextPath
	repo.ContextSize = len(result.Context)
	repo.ErrorMessage = ""
	if err := d.db.UpdateRepo(repo); err != nil {
		d.logger.Error("updating repo", "repo", repo.ID, "error", err)
	}
}

// writeContext persists the context document under the data dir.
func (d *Dispatcher) writeContext(repo db.Repo, contextText string) (string, error) {
	if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	path := filepath.Join(d.dataDir, fmt.Sprintf("%s-%s-context.txt", repo.Owner, repo.Name))
	if err := os.WriteFile(path, []byte(contextText), 0o644); err != nil {
		return "", fmt.Errorf("writing context file: %w", err)
	}
	return path, nil
}

// DispatchGenerate starts a background test generation job for the suite.
func (d *Dispatcher) DispatchGenerate(ctx context.Context, suite db.Suite) error {
	if d.generator == nil {
		return fmt.Errorf("no generator configured")
	}

	jobCtx, err := d.acquire(ctx, suite.ID)
	if err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(suite.ID)
		d.runGenerate(jobCtx, suite)
	}()
	return nil
}

func (d *Dispatcher) runGenerate(ctx context.Context, suite db.Suite) {
	handler := eventlog.New(d.db, suite.RepoID, nil, d.onEvent)

	contextText, err := d.loadContext(suite.RepoID)
	if err != nil {
		d.logger.Error("loading context", "suite", suite.ID, "error", err)
		_ = d.db.SetSuiteState(suite.ID, db.SuiteStateFailed, err.Error())
		return
	}

	if err := d.db.SetSuiteState(suite.ID, db.SuiteStateGenerating, ""); err != nil {
		d.logger.Error("setting suite state", "suite", suite.ID, "error", err)
		return
	}
	handler.Handle(events.GenerationStarted{SuiteID: suite.ID, Model: d.generator.Model()})

	result, err := d.generator.GenerateTests(ctx, contextText, suite.AdditionalPrompt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			d.logger.Info("generation cancelled", "suite", suite.ID)
			_ = d.db.SetSuiteState(suite.ID, db.SuiteStateFailed, "cancelled")
			return
		}
		d.logger.Error("generation failed", "suite", suite.ID, "error", err)
		handler.Handle(events.GenerationFailed{SuiteID: suite.ID, Reason: err.Error()})
		_ = d.db.SetSuiteState(suite.ID, db.SuiteStateFailed, err.Error())
		return
	}

	cases := make([]db.TestCase, len(result.TestCases))
	for i, tc := range result.TestCases {
		cases[i] = db.TestCase{
			SuiteID:     suite.ID,
			CaseID:      tc.ID,
			Name:        tc.Name,
			Description: tc.Description,
			Input:       marshalJSON(tc.Input),
			Expected:    marshalJSON(tc.Expected),
			Code:        tc.Code,
			TestType:    tc.TestType,
			Priority:    tc.Priority,
		}
	}
	if err := d.db.ReplaceTestCases(suite.ID, cases); err != nil {
		d.logger.Error("storing test cases", "suite", suite.ID, "error", err)
		_ = d.db.SetSuiteState(suite.ID, db.SuiteStateFailed, err.Error())
		return
	}

	suite.State = db.SuiteStateReady
	suite.Model = d.generator.Model()
	suite.ErrorMessage = ""
	suite.TotalTests = result.Summary.TotalTests
	suite.UnitTests = result.Summary.UnitTests
	suite.IntegrationTests = result.Summary.IntegrationTests
	suite.EdgeCases = result.Summary.EdgeCases
	suite.ErrorHandlingTests = result.Summary.ErrorHandlingTests
	if err := d.db.UpdateSuite(suite); err != nil {
		d.logger.Error("updating suite", "suite", suite.ID, "error", err)
		return
	}

	handler.Handle(events.GenerationDone{SuiteID: suite.ID, TotalTests: result.Summary.TotalTests})
}

// loadContext reads the stored context document for a repo, preferring the
// on-disk copy and rebuilding from stored files if it is missing.
func (d *Dispatcher) loadContext(repoID string) (string, error) {
	repo, err := d.db.GetRepo(repoID)
	if err != nil {
		return "", fmt.Errorf("loading repo: %w", err)
	}
	if repo.State != db.RepoStateReady {
		return "", fmt.Errorf("repo %s/%s is not ready (state %s)", repo.Owner, repo.Name, repo.State)
	}

	if repo.ContextPath != "" {
		if data, err := os.ReadFile(repo.ContextPath); err == nil {
			return string(data), nil
		}
	}

	files, err := d.db.ListRepoFiles(repoID)
	if err != nil {
		return "", fmt.Errorf("loading repo files: %w", err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no context available for repo %s/%s", repo.Owner, repo.Name)
	}
	return rebuildContext(files), nil
}

// rebuildContext reassembles the context document from stored files.
func rebuildContext(files []db.RepoFile) string {
	srcFiles := make([]source.File, len(files))
	for i, f := range files {
		srcFiles[i] = source.File{Path: f.Path, Content: f.Content, Size: f.Size}
	}
	return source.BuildContext(srcFiles)
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
