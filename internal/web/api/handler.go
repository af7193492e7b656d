package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tharunreddy-N/JnP-Automation/internal/config"
	"github.com/Tharunreddy-N/JnP-Automation/internal/history"
	"github.com/Tharunreddy-N/JnP-Automation/internal/realtime"
	"github.com/Tharunreddy-N/JnP-Automation/internal/store"
	"github.com/Tharunreddy-N/JnP-Automation/internal/supervise"
)

// API holds dependencies for all API handlers.
type API struct {
	Registry     ModuleRegistry
	History      *history.Store
	Archive      store.ExecutionStore
	Events       *realtime.Broker
	Update       func(ctx context.Context, moduleID string) (history.MergeResult, error)
	WorkerStatus func() *supervise.Status
	LogTailBytes int64
	Log          zerolog.Logger
}

// ModuleRegistry is the read surface of the module registry the API
// needs.
type ModuleRegistry interface {
	Modules() []config.Module
	Module(id string) (config.Module, bool)
	Tests(moduleID string) []string
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/modules/", a.routeModules)
	mux.HandleFunc("/api/modules", a.handleListModules)
	mux.HandleFunc("/api/update-all", a.handleUpdateAll)
	mux.HandleFunc("/api/events", a.handleEvents)
	mux.HandleFunc("/api/health", a.handleHealth)
}

// routeModules dispatches /api/modules/{id}[/action...] requests.
func (a *API) routeModules(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/modules/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		a.handleListModules(w, r)
		return
	}

	module, ok := a.Registry.Module(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "module not found"})
		return
	}

	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		a.handleGetModule(w, r, module)
	case action == "test-cases" && r.Method == http.MethodGet:
		a.handleTestCases(w, r, module)
	case strings.HasPrefix(action, "test-cases/") && strings.HasSuffix(action, "/history") && r.Method == http.MethodGet:
		testName := strings.TrimSuffix(strings.TrimPrefix(action, "test-cases/"), "/history")
		a.handleTestHistory(w, r, module, testName)
	case action == "download-log" && r.Method == http.MethodGet:
		a.handleDownloadLog(w, r, module)
	case action == "update" && r.Method == http.MethodPost:
		a.handleUpdate(w, r, module)
	case action == "stats" && r.Method == http.MethodGet:
		a.handleModuleStats(w, r, module)
	case action == "executions" && r.Method == http.MethodGet:
		a.handleExecutions(w, r, module)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

const (
	dateFormat     = "2006-01-02"
	datetimeFormat = "2006-01-02 15:04:05"
)

func formatDate(t time.Time) string {
	return t.Format(dateFormat)
}

func formatDatetime(t time.Time) string {
	return t.Format(datetimeFormat)
}
