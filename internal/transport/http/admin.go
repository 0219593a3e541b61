// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// passTime reads the optional ?now= override (RFC 3339) used to replay a
// pass at a given instant.
func passTime(r *http.Request, runner PassRunner) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("now"))
	if raw == "" {
		return runner.Now(), true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func processDueHandler(runner PassRunner, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now, ok := passTime(r, runner)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid now"})
			return
		}

		res, err := runner.ProcessDue(r.Context(), now)
		if err != nil {
			writeError(w, logger, err, "process due follow-ups", "now", now)
			return
		}

		logger.Info("process-due pass via API", "due", res.Due, "processed", res.Processed)
		writeJSON(w, http.StatusOK, res)
	}
}

func escalationsHandler(runner PassRunner, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now, ok := passTime(r, runner)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid now"})
			return
		}

		res, err := runner.RunEscalations(r.Context(), now)
		if err != nil {
			writeError(w, logger, err, "run escalations", "now", now)
			return
		}

		logger.Info("escalation pass via API", "candidates", res.Candidates, "escalated", res.Escalated)
		writeJSON(w, http.StatusOK, res)
	}
}
