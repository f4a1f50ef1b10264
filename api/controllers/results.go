package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/orderdesk-backend/api/middleware"
	"github.com/angelmondragon/orderdesk-backend/api/responses"
	"github.com/angelmondragon/orderdesk-backend/internal/tasks"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
)

const resultsPath = "/api/v1/results/"

// TaskResult reports a task by path parameter or by ?task_id=.
func TaskResult(svc tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "task_id")
		if strings.TrimSpace(raw) == "" {
			raw = r.URL.Query().Get("task_id")
		}
		status, err := svc.GetStatus(r.Context(), middleware.CallerFromContext(r.Context()), raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fields := responses.Fields{
			"Task_id": status.ID,
			"Kind":    status.Kind,
			"State":   status.State,
			"Results": status.Result,
		}
		if status.Error != nil {
			fields["Reason"] = *status.Error
		}
		responses.WriteSuccess(w, fields)
	}
}
