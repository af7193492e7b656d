package api

import (
	"errors"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/Tharunreddy-N/JnP-Automation/internal/config"
	"github.com/Tharunreddy-N/JnP-Automation/internal/history"
	"github.com/Tharunreddy-N/JnP-Automation/internal/logfile"
	"github.com/Tharunreddy-N/JnP-Automation/internal/logparse"
	"github.com/Tharunreddy-N/JnP-Automation/internal/store"
)

type moduleSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a *API) handleListModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	modules := a.Registry.Modules()
	out := make([]moduleSummary, 0, len(modules))
	for _, m := range modules {
		out = append(out, moduleSummary{ID: m.ID, Name: m.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

type moduleDetail struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LogFile      string `json:"log_file"`
	TestCount    int    `json:"test_count"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	LogUpdatedAt string `json:"log_updated_at,omitempty"`
}

func (a *API) handleGetModule(w http.ResponseWriter, _ *http.Request, m config.Module) {
	doc := a.History.History(m.ID)
	detail := moduleDetail{
		ID:        m.ID,
		Name:      m.Name,
		LogFile:   m.LogFile,
		TestCount: len(a.Registry.Tests(m.ID)),
	}
	if !doc.UpdatedAt.IsZero() {
		detail.UpdatedAt = formatDatetime(doc.UpdatedAt)
	}
	if mt, err := logfile.ModTime(m.LogFile); err == nil {
		detail.LogUpdatedAt = formatDatetime(mt)
	}
	writeJSON(w, http.StatusOK, detail)
}

type testCase struct {
	TestName   string `json:"test_name"`
	LastStatus string `json:"last_status"`
}

// handleTestCases lists the module's tests with their most recent
// status. Tests defined in the suite but absent from the window are
// reported as NOT_RUN.
func (a *API) handleTestCases(w http.ResponseWriter, _ *http.Request, m config.Module) {
	doc, warning := a.History.HistoryChecked(m.ID)

	last := make(map[string]logparse.Status, len(doc.Entries))
	for _, e := range doc.Entries {
		last[e.TestName] = e.Status
	}
	for _, name := range a.Registry.Tests(m.ID) {
		if _, ok := last[name]; !ok {
			last[name] = logparse.StatusNotRun
		}
	}

	names := make([]string, 0, len(last))
	for name := range last {
		names = append(names, name)
	}
	sort.Strings(names)

	cases := make([]testCase, 0, len(names))
	for _, name := range names {
		cases = append(cases, testCase{TestName: name, LastStatus: string(last[name])})
	}

	if warning != "" {
		writeJSON(w, http.StatusOK, map[string]any{"test_cases": cases, "warning": warning})
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

type historyEntry struct {
	Status      string `json:"status"`
	Date        string `json:"date"`
	Datetime    string `json:"datetime"`
	RunningTime string `json:"running_time,omitempty"`
}

func (a *API) handleTestHistory(w http.ResponseWriter, _ *http.Request, m config.Module, testName string) {
	doc, warning := a.History.HistoryChecked(m.ID)

	entries := make([]historyEntry, 0)
	for _, e := range doc.Entries {
		if e.TestName != testName {
			continue
		}
		entries = append(entries, historyEntry{
			Status:      string(e.Status),
			Date:        formatDate(e.Timestamp),
			Datetime:    formatDatetime(e.Timestamp),
			RunningTime: e.RunningTime,
		})
	}

	if warning != "" {
		writeJSON(w, http.StatusOK, map[string]any{"history": entries, "warning": warning})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleDownloadLog(w http.ResponseWriter, r *http.Request, m config.Module) {
	content, err := logfile.ReadTail(m.LogFile, a.LogTailBytes)
	if errors.Is(err, os.ErrNotExist) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "log file not found"})
		return
	}
	if err != nil {
		a.Log.Error().Err(err).Str("module", m.ID).Msg("log read failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "log read failed"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+logfile.DownloadName(m.ID, time.Now())+`"`)
	_, _ = w.Write([]byte(content))
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request, m config.Module) {
	res, err := a.Update(r.Context(), m.ID)
	if errors.Is(err, history.ErrBusy) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "module update in progress, retry later"})
		return
	}
	if err != nil {
		a.Log.Error().Err(err).Str("module", m.ID).Msg("update failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": res.Added, "updated": res.Updated})
}

func (a *API) handleModuleStats(w http.ResponseWriter, r *http.Request, m config.Module) {
	if a.Archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive unavailable"})
		return
	}
	stats, err := a.Archive.GetModuleStats(r.Context(), m.ID)
	if err != nil {
		a.Log.Error().Err(err).Str("module", m.ID).Msg("stats query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats query failed"})
		return
	}
	writeJSON(w, http.StatusOK, statsPayload(stats))
}

type executionView struct {
	ID          string `json:"id"`
	TestName    string `json:"test_name"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
	RunningTime string `json:"running_time,omitempty"`
}

// handleExecutions lists archived executions for a module, newest
// first. Unlike the history endpoint this reaches past the seven-day
// window.
func (a *API) handleExecutions(w http.ResponseWriter, r *http.Request, m config.Module) {
	if a.Archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive unavailable"})
		return
	}
	opts := store.ListOpts{Module: m.ID, TestName: r.URL.Query().Get("test")}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		opts.Limit = n
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && n > 0 {
		opts.Offset = n
	}

	execs, err := a.Archive.ListExecutions(r.Context(), opts)
	if err != nil {
		a.Log.Error().Err(err).Str("module", m.ID).Msg("executions query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "executions query failed"})
		return
	}

	out := make([]executionView, 0, len(execs))
	for _, e := range execs {
		out = append(out, executionView{
			ID:          e.ID,
			TestName:    e.TestName,
			Status:      e.Status,
			StartedAt:   formatDatetime(e.StartedAt),
			RunningTime: e.RunningTime,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func statsPayload(s *store.ModuleStats) map[string]any {
	out := map[string]any{
		"total_executions": s.TotalExecutions,
		"passes":           s.Passes,
		"failures":         s.Failures,
		"errors":           s.Errors,
		"not_run":          s.NotRun,
	}
	if s.FirstSeen != nil {
		out["first_seen"] = formatDatetime(*s.FirstSeen)
	}
	if s.LastSeen != nil {
		out["last_seen"] = formatDatetime(*s.LastSeen)
	}
	return out
}
