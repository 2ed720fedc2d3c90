// ABOUTME: Daily follow-up digest: groups due follow-ups by organization and emails every member.
// ABOUTME: Runs as a worker job on the reminder_digest queue, enqueued by cron or the CLI.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/notify"
	"github.com/patroncollective/patron/internal/store"
)

const (
	// Queue is the job_queue queue name for digest runs.
	Queue = "reminder_digest"

	// DateLayout is the payload date format.
	DateLayout = "2006-01-02"

	maxAttempts = 3
	snippetLen  = 80
)

// Labels shown in front of each digest line.
const (
	LabelOverdue  = "OVERDUE"
	LabelDueToday = "Due today"
)

// Payload is the job payload. An empty Date means the current UTC day.
type Payload struct {
	Date string `json:"date,omitempty"`
}

// Source reads follow-ups and recipients. Worker path: no org context.
type Source interface {
	ListAllDueFollowUps(ctx context.Context, today time.Time) ([]store.FollowUp, error)
	ListReminderRecipients(ctx context.Context, orgID uuid.UUID) ([]store.ReminderRecipient, error)
}

// Sender delivers one digest email.
type Sender interface {
	SendReminder(ctx context.Context, msg notify.Reminder) error
}

// Enqueuer inserts jobs into the job_queue.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, queue string, payload json.RawMessage, lockKey string, maxAttempts int) (uuid.UUID, error)
}

// Result summarizes one digest run.
type Result struct {
	Organizations int `json:"organizations"`
	Sent          int `json:"sent"`
	Failed        int `json:"failed"`
}

// Digest builds and sends the daily follow-up emails.
type Digest struct {
	src     Source
	sender  Sender
	baseURL string
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Digest.
type Option func(*Digest)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Digest) { d.now = now }
}

// WithLogger sets the digest logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Digest) { d.logger = l }
}

// NewDigest creates a Digest. baseURL is the external app URL used for the
// "open today's list" link.
func NewDigest(src Source, sender Sender, baseURL string, opts ...Option) *Digest {
	d := &Digest{
		src:     src,
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Today returns the current UTC calendar day at midnight.
func (d *Digest) Today() time.Time {
	y, m, day := d.now().UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// Snippet shortens note content to 80 characters followed by an ellipsis.
func Snippet(content string) string {
	content = strings.TrimSpace(content)
	r := []rune(content)
	if len(r) <= snippetLen {
		return content
	}
	return string(r[:snippetLen]) + "…"
}

// Items turns follow-ups into digest lines. Follow-ups dated before today
// are overdue.
func Items(followUps []store.FollowUp, today time.Time) []notify.ReminderItem {
	items := make([]notify.ReminderItem, 0, len(followUps))
	for _, fu := range followUps {
		label := LabelDueToday
		if fu.FollowUpDate.Before(today) {
			label = LabelOverdue
		}
		name := fu.ClientName
		if name == "" {
			name = "Unknown"
		}
		items = append(items, notify.ReminderItem{Label: label, ClientName: name, Snippet: Snippet(fu.Content)})
	}
	return items
}

// Run sends the digest for today. A failed send is logged and counted; the
// run fails only when every send failed, so a retry cannot duplicate mail
// that already went out.
func (d *Digest) Run(ctx context.Context, today time.Time) (Result, error) {
	var res Result
	followUps, err := d.src.ListAllDueFollowUps(ctx, today)
	if err != nil {
		return res, fmt.Errorf("reminder digest: %w", err)
	}

	byOrg := make(map[uuid.UUID][]store.FollowUp)
	var orgs []uuid.UUID
	for _, fu := range followUps {
		if _, ok := byOrg[fu.OrganizationID]; !ok {
			orgs = append(orgs, fu.OrganizationID)
		}
		byOrg[fu.OrganizationID] = append(byOrg[fu.OrganizationID], fu)
	}
	res.Organizations = len(orgs)

	for _, orgID := range orgs {
		recipients, err := d.src.ListReminderRecipients(ctx, orgID)
		if err != nil {
			return res, fmt.Errorf("reminder digest: %w", err)
		}
		items := Items(byOrg[orgID], today)
		for _, r := range recipients {
			msg := notify.Reminder{
				To:            r.Email,
				RecipientName: r.FullName,
				Items:         items,
				TodayURL:      d.baseURL + "/today",
			}
			if err := d.sender.SendReminder(ctx, msg); err != nil {
				res.Failed++
				d.logger.ErrorContext(ctx, "send reminder", "org_id", orgID, "user_id", r.UserID, "error", err)
				continue
			}
			res.Sent++
		}
	}

	d.logger.InfoContext(ctx, "reminder digest finished",
		"date", today.Format(DateLayout),
		"organizations", res.Organizations,
		"sent", res.Sent,
		"failed", res.Failed,
	)
	if res.Sent == 0 && res.Failed > 0 {
		return res, errors.New("reminder digest: every send failed")
	}
	return res, nil
}

// Handle is the worker handler for Queue.
func (d *Digest) Handle(ctx context.Context, payload json.RawMessage) error {
	var p Payload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode reminder payload: %w", err)
		}
	}
	today := d.Today()
	if p.Date != "" {
		t, err := time.Parse(DateLayout, p.Date)
		if err != nil {
			return fmt.Errorf("decode reminder payload: %w", err)
		}
		today = t
	}
	_, err := d.Run(ctx, today)
	return err
}

// Enqueue schedules a digest run for today. At most one run per day is
// queued or running at a time; a duplicate returns uuid.Nil.
func Enqueue(ctx context.Context, q Enqueuer, today time.Time) (uuid.UUID, error) {
	date := today.UTC().Format(DateLayout)
	payload, err := json.Marshal(Payload{Date: date})
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue reminder digest: %w", err)
	}
	id, err := q.EnqueueJob(ctx, Queue, payload, "reminder:"+date, maxAttempts)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue reminder digest: %w", err)
	}
	return id, nil
}
