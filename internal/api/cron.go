// ABOUTME: Scheduler trigger for the daily reminder digest, called by an external cron.
// ABOUTME: Authenticated by a shared bearer secret; repeated calls on one day enqueue one job.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/reminder"
)

// cronResponse is the JSON body for POST /cron/reminders.
type cronResponse struct {
	Queued bool   `json:"queued"`
	JobID  string `json:"job_id,omitempty"`
	Date   string `json:"date"`
}

// cronRemindersHandler handles POST /api/v1/cron/reminders. It only enqueues
// the digest; the worker sends the email. The route is disabled (404) when
// no cron secret is configured.
func (srv *Server) cronRemindersHandler(w http.ResponseWriter, r *http.Request) {
	if srv.cfg.CronSecret == "" {
		http.NotFound(w, r)
		return
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) ||
		subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(header, prefix)), []byte(srv.cfg.CronSecret)) != 1 {
		writeError(w, r, errNoSession)
		return
	}

	today := srv.now().UTC()
	id, err := reminder.Enqueue(r.Context(), srv.store, today)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := cronResponse{Queued: id != uuid.Nil, Date: today.Format(reminder.DateLayout)}
	if resp.Queued {
		resp.JobID = id.String()
	}
	writeJSON(w, http.StatusAccepted, resp)
}
