package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"testforge/internal/db"
	"testforge/internal/eventlog"
	"testforge/internal/gemini"
	"testforge/internal/github"
	"testforge/internal/runner"
	"testforge/internal/source"
)

type apiHandler struct {
	db        *db.DB
	startAt   time.Time
	jobs      JobDispatcher
	modelName string
	onEvent   func(repoID, eventType, detail string)
}

// apiError is the consistent error response format.
type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

func (h *apiHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startAt).Seconds()),
		"model":          h.modelName,
	})
}

// repoResponse represents a repository in API responses.
type repoResponse struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Source        string `json:"source"`
	State         string `json:"state"`
	DefaultBranch string `json:"default_branch"`
	FilesCount    int    `json:"files_count"`
	ContextSize   int    `json:"context_size"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Running       bool   `json:"running"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func (h *apiHandler) repoToResponse(r db.Repo) repoResponse {
	running := false
	if h.jobs != nil {
		running = h.jobs.IsRunning(r.ID)
	}
	return repoResponse{
		ID:            r.ID,
		Owner:         r.Owner,
		Name:          r.Name,
		URL:           r.URL,
		Source:        r.Source,
		State:         r.State,
		DefaultBranch: r.DefaultBranch,
		FilesCount:    r.FilesCount,
		ContextSize:   r.ContextSize,
		ErrorMessage:  r.ErrorMessage,
		Running:       running,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *apiHandler) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepoURL string `json:"repo_url"`
		Source  string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repo_url is required")
		return
	}

	owner, name, err := github.ParseRepoURL(req.RepoURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	source := req.Source
	if source == "" {
		source = "api"
	}
	if source != "api" && source != "clone" {
		writeError(w, http.StatusBadRequest, "source must be \"api\" or \"clone\"")
		return
	}

	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion is not available")
		return
	}

	repo, err := h.db.CreateRepo(db.Repo{
		Owner:  owner,
		Name:   name,
		URL:    req.RepoURL,
		Source: source,
		State:  db.RepoStatePending,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create repo")
		return
	}

	if err := h.jobs.DispatchIngest(context.Background(), repo); err != nil {
		_ = h.db.DeleteRepo(repo.ID)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, h.repoToResponse(repo))
}

func (h *apiHandler) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.db.ListRepos()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list repos")
		return
	}

	result := make([]repoResponse, len(repos))
	for i, rp := range repos {
		result[i] = h.repoToResponse(rp)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *apiHandler) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := h.db.GetRepo(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get repo")
		return
	}

	files, err := h.db.ListRepoFiles(repo.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list repo files")
		return
	}

	type fileResponse struct {
		Path string `json:"path"`
		Size int    `json:"size"`
	}
	type repoDetailResponse struct {
		repoResponse
		Files []fileResponse `json:"files"`
	}

	detail := repoDetailResponse{repoResponse: h.repoToResponse(repo), Files: []fileResponse{}}
	for _, f := range files {
		detail.Files = append(detail.Files, fileResponse{Path: f.Path, Size: f.Size})
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *apiHandler) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	repo, err := h.db.GetRepo(id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get repo")
		return
	}

	if h.jobs != nil {
		h.jobs.Cancel(id)
	}

	if repo.ContextPath != "" {
		os.Remove(repo.ContextPath)
	}
	if err := h.db.DeleteRepo(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete repo")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) handleGetContext(w http.ResponseWriter, r *http.Request) {
	repo, err := h.db.GetRepo(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get repo")
		return
	}

	contextText, err := h.loadContext(repo)
	if err != nil {
		writeError(w, http.StatusNotFound, "context not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"context": contextText})
}

// loadContext returns the stored context document, preferring the on-disk
// copy and rebuilding from stored files when it is missing.
func (h *apiHandler) loadContext(repo db.Repo) (string, error) {
	if repo.ContextPath != "" {
		if data, err := os.ReadFile(repo.ContextPath); err == nil {
			return string(data), nil
		}
	}

	files, err := h.db.ListRepoFiles(repo.ID)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", errors.New("no context available")
	}

	srcFiles := make([]source.File, len(files))
	for i, f := range files {
		srcFiles[i] = source.File{Path: f.Path, Content: f.Content, Size: f.Size}
	}
	return source.BuildContext(srcFiles), nil
}

func (h *apiHandler) handleListActivity(w http.ResponseWriter, r *http.Request) {
	limit := 100
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	entries, err := h.db.ListActivity(r.PathValue("id"), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}

	type activityResponse struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Detail    string `json:"detail"`
		CreatedAt string `json:"created_at"`
	}
	result := make([]activityResponse, len(entries))
	for i, e := range entries {
		result[i] = activityResponse{
			ID:        e.ID,
			EventType: e.EventType,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// summaryResponse mirrors the generated suite summary.
type summaryResponse struct {
	TotalTests         int `json:"totalTests"`
	UnitTests          int `json:"unitTests"`
	IntegrationTests   int `json:"integrationTests"`
	EdgeCases          int `json:"edgeCases"`
	ErrorHandlingTests int `json:"errorHandlingTests"`
}

// suiteResponse represents a test suite in API responses.
type suiteResponse struct {
	ID               string          `json:"id"`
	RepoID           string          `json:"repo_id"`
	State            string          `json:"state"`
	Model            string          `json:"model"`
	AdditionalPrompt string          `json:"additional_prompt,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	Summary          summaryResponse `json:"summary"`
	Running          bool            `json:"running"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

func (h *apiHandler) suiteToResponse(s db.Suite) suiteResponse {
	running := false
	if h.jobs != nil {
		running = h.jobs.IsRunning(s.ID)
	}
	return suiteResponse{
		ID:               s.ID,
		RepoID:           s.RepoID,
		State:            s.State,
		Model:            s.Model,
		AdditionalPrompt: s.AdditionalPrompt,
		ErrorMessage:     s.ErrorMessage,
		Summary: summaryResponse{
			TotalTests:         s.TotalTests,
			UnitTests:          s.UnitTests,
			IntegrationTests:   s.IntegrationTests,
			EdgeCases:          s.EdgeCases,
			ErrorHandlingTests: s.ErrorHandlingTests,
		},
		Running:   running,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *apiHandler) handleCreateSuite(w http.ResponseWriter, r *http.Request) {
	repo, err := h.db.GetRepo(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get repo")
		return
	}
	if repo.State != db.RepoStateReady {
		writeError(w, http.StatusConflict, "repo is not ready (state "+repo.State+")")
		return
	}

	var req struct {
		AdditionalPrompt string `json:"additional_prompt"`
	}
	if r.Body != nil {
		// An empty body is fine; additional_prompt is optional.
		json.NewDecoder(r.Body).Decode(&req)
	}

	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "generation is not available")
		return
	}

	suite, err := h.db.CreateSuite(db.Suite{
		RepoID:           repo.ID,
		State:            db.SuiteStatePending,
		Model:            h.modelName,
		AdditionalPrompt: req.AdditionalPrompt,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create suite")
		return
	}

	if err := h.jobs.DispatchGenerate(context.Background(), suite); err != nil {
		_ = h.db.SetSuiteState(suite.ID, db.SuiteStateFailed, err.Error())
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, h.suiteToResponse(suite))
}

func (h *apiHandler) handleListSuites(w http.ResponseWriter, r *http.Request) {
	suites, err := h.db.ListSuites(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list suites")
		return
	}
	result := make([]suiteResponse, len(suites))
	for i, s := range suites {
		result[i] = h.suiteToResponse(s)
	}
	writeJSON(w, http.StatusOK, result)
}

// testCaseResponse mirrors the generated test case record.
type testCaseResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Input       any    `json:"input"`
	Expected    any    `json:"expected"`
	Code        string `json:"code"`
	TestType    string `json:"testType"`
	Priority    string `json:"priority"`
}

func testCaseToResponse(tc db.TestCase) testCaseResponse {
	return testCaseResponse{
		ID:          tc.CaseID,
		Name:        tc.Name,
		Description: tc.Description,
		Input:       unmarshalJSON(tc.Input),
		Expected:    unmarshalJSON(tc.Expected),
		Code:        tc.Code,
		TestType:    tc.TestType,
		Priority:    tc.Priority,
	}
}

func (h *apiHandler) handleGetSuite(w http.ResponseWriter, r *http.Request) {
	suite, err := h.db.GetSuite(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "suite not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get suite")
		return
	}

	cases, err := h.db.ListTestCases(suite.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list test cases")
		return
	}

	type suiteDetailResponse struct {
		suiteResponse
		TestCases []testCaseResponse `json:"testCases"`
	}
	detail := suiteDetailResponse{suiteResponse: h.suiteToResponse(suite), TestCases: []testCaseResponse{}}
	for _, tc := range cases {
		detail.TestCases = append(detail.TestCases, testCaseToResponse(tc))
	}
	writeJSON(w, http.StatusOK, detail)
}

// runResultResponse represents a per-case result in API responses.
type runResultResponse struct {
	CaseID     string `json:"case_id"`
	CaseName   string `json:"case_name"`
	Status     string `json:"status"`
	Mock       string `json:"mock,omitempty"`
	Actual     any    `json:"actual"`
	DurationMS int    `json:"duration_ms"`
}

// runResponse represents a suite run in API responses.
type runResponse struct {
	ID         string              `json:"id"`
	SuiteID    string              `json:"suite_id"`
	Passed     int                 `json:"passed"`
	Failed     int                 `json:"failed"`
	DurationMS int                 `json:"duration_ms"`
	CreatedAt  string              `json:"created_at"`
	Results    []runResultResponse `json:"results"`
}

func runToResponse(run db.Run, results []db.RunResult) runResponse {
	resp := runResponse{
		ID:         run.ID,
		SuiteID:    run.SuiteID,
		Passed:     run.Passed,
		Failed:     run.Failed,
		DurationMS: run.DurationMS,
		CreatedAt:  run.CreatedAt.Format(time.RFC3339),
		Results:    []runResultResponse{},
	}
	for _, res := range results {
		resp.Results = append(resp.Results, runResultResponse{
			CaseID:     res.CaseID,
			CaseName:   res.CaseName,
			Status:     res.Status,
			Mock:       res.Mock,
			Actual:     unmarshalJSON(res.Actual),
			DurationMS: res.DurationMS,
		})
	}
	return resp
}

func (h *apiHandler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	suite, err := h.db.GetSuite(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "suite not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get suite")
		return
	}
	if suite.State != db.SuiteStateReady {
		writeError(w, http.StatusConflict, "suite is not ready (state "+suite.State+")")
		return
	}

	dbCases, err := h.db.ListTestCases(suite.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list test cases")
		return
	}

	cases := make([]gemini.TestCase, len(dbCases))
	for i, tc := range dbCases {
		cases[i] = gemini.TestCase{
			ID:          tc.CaseID,
			Name:        tc.Name,
			Description: tc.Description,
			Input:       unmarshalJSON(tc.Input),
			Expected:    unmarshalJSON(tc.Expected),
			Code:        tc.Code,
			TestType:    tc.TestType,
			Priority:    tc.Priority,
		}
	}

	runID := newRunID()
	rn := &runner.Runner{Handler: eventlog.New(h.db, suite.RepoID, nil, h.onEvent)}
	report := rn.RunSuite(runID, suite.ID, cases)

	results := make([]db.RunResult, len(report.Results))
	for i, res := range report.Results {
		results[i] = db.RunResult{
			RunID:      runID,
			CaseID:     res.CaseID,
			CaseName:   res.CaseName,
			Status:     res.Status,
			Mock:       res.Mock,
			Actual:     marshalJSON(res.Actual),
			DurationMS: res.DurationMS,
		}
	}

	run, err := h.db.CreateRun(db.Run{
		ID:         runID,
		SuiteID:    suite.ID,
		Passed:     report.Passed,
		Failed:     report.Failed,
		DurationMS: report.DurationMS,
	}, results)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store run")
		return
	}

	stored, err := h.db.ListRunResults(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list run results")
		return
	}
	writeJSON(w, http.StatusCreated, runToResponse(run, stored))
}

func (h *apiHandler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.db.ListRuns(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	result := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		result = append(result, runResponse{
			ID:         run.ID,
			SuiteID:    run.SuiteID,
			Passed:     run.Passed,
			Failed:     run.Failed,
			DurationMS: run.DurationMS,
			CreatedAt:  run.CreatedAt.Format(time.RFC3339),
			Results:    []runResultResponse{},
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *apiHandler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.db.GetRun(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	results, err := h.db.ListRunResults(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list run results")
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run, results))
}

func newRunID() string {
	return uuid.New().String()
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func unmarshalJSON(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
