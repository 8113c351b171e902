package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	ReportHealthy   = "healthy"
	ReportUnhealthy = "unhealthy"
)

// DependencyReport is the readiness payload, Failing maps a dependency name to its error
type DependencyReport struct {
	Status    string            `json:"status"`
	Failing   map[string]string `json:"failing,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// failingDependencies is implemented by check errors that name each broken dependency
type failingDependencies interface {
	FailingDependencies() map[string]string
}

// ReportFromError turns a dependency check result into a report.
// An error that does not name its dependencies is reported under "relay"
func ReportFromError(err error, now time.Time) DependencyReport {
	report := DependencyReport{Status: ReportHealthy, CheckedAt: now.UTC()}
	if err == nil {
		return report
	}

	report.Status = ReportUnhealthy

	var deps failingDependencies
	if errors.As(err, &deps) && len(deps.FailingDependencies()) > 0 {
		report.Failing = make(map[string]string, len(deps.FailingDependencies()))
		for name, msg := range deps.FailingDependencies() {
			report.Failing[name] = msg
		}
		return report
	}

	report.Failing = map[string]string{"relay": err.Error()}
	return report
}

// WriteReport answers 200 for a healthy report and 503 otherwise; probes must never be cached
func WriteReport(w http.ResponseWriter, r *http.Request, report DependencyReport) error {
	report.RequestID = middleware.GetReqID(r.Context())

	status := http.StatusOK
	if report.Status != ReportHealthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Cache-Control", "no-store")
	return JSON(w, status, report)
}

func JSON(w http.ResponseWriter, status int, body any) error {
	// headers before WriteHeader
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	return enc.Encode(body)
}
