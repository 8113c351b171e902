package handlers

import (
	"context"
	"net/http"
	"time"

	"teamrelay/pkg/httputil"

	"gitlab.com/nevasik7/alerting/logger"
)

// DependencyChecker reports whether the relay and its stores are usable
type DependencyChecker interface {
	CheckDependency(ctx context.Context) error
}

type Handler struct {
	Log   logger.Logger
	Check DependencyChecker
}

func NewHandler(log logger.Logger, check DependencyChecker) *Handler {
	if check == nil {
		panic("dependency checker cannot be nil")
	}

	return &Handler{Log: log, Check: check}
}

func (a *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		a.Log.Errorf("Healthz handler error: %s", err.Error())
	}
}

// Readiness checks the change feed subscription and external services/clients, listing each failing one
func (a *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := httputil.ReportFromError(a.Check.CheckDependency(ctx), time.Now())
	if report.Status != httputil.ReportHealthy {
		a.Log.Warnf("Readiness check failed: %v", report.Failing)
	}

	if err := httputil.WriteReport(w, r, report); err != nil {
		a.Log.Errorf("Readiness handler error: %s", err.Error())
	}
}
