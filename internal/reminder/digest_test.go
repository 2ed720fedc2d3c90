// ABOUTME: Tests for the follow-up digest: labels, snippets, grouping and send accounting.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patroncollective/patron/internal/notify"
	"github.com/patroncollective/patron/internal/store"
)

var today = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	followUps  []store.FollowUp
	recipients map[uuid.UUID][]store.ReminderRecipient
	asked      []time.Time
}

func (f *fakeSource) ListAllDueFollowUps(_ context.Context, day time.Time) ([]store.FollowUp, error) {
	f.asked = append(f.asked, day)
	return f.followUps, nil
}

func (f *fakeSource) ListReminderRecipients(_ context.Context, orgID uuid.UUID) ([]store.ReminderRecipient, error) {
	return f.recipients[orgID], nil
}

type fakeSender struct {
	sent []notify.Reminder
	fail map[string]bool
}

func (f *fakeSender) SendReminder(_ context.Context, msg notify.Reminder) error {
	if f.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeEnqueuer struct {
	queue   string
	payload string
	lockKey string
}

func (f *fakeEnqueuer) EnqueueJob(_ context.Context, queue string, payload json.RawMessage, lockKey string, _ int) (uuid.UUID, error) {
	f.queue, f.payload, f.lockKey = queue, string(payload), lockKey
	return uuid.New(), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSnippet(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short note", Snippet("  short note "))
	exact := strings.Repeat("a", 80)
	assert.Equal(t, exact, Snippet(exact))
	long := strings.Repeat("é", 81)
	got := Snippet(long)
	assert.Equal(t, strings.Repeat("é", 80)+"…", got)
}

func TestItems_Labels(t *testing.T) {
	t.Parallel()
	items := Items([]store.FollowUp{
		{ClientName: "Grace", Content: "Call back", FollowUpDate: today.AddDate(0, 0, -2)},
		{ClientName: "", Content: "Send catalogue", FollowUpDate: today},
	}, today)
	require.Len(t, items, 2)
	assert.Equal(t, notify.ReminderItem{Label: LabelOverdue, ClientName: "Grace", Snippet: "Call back"}, items[0])
	assert.Equal(t, LabelDueToday, items[1].Label)
	assert.Equal(t, "Unknown", items[1].ClientName)
}

func TestRun_GroupsByOrganization(t *testing.T) {
	t.Parallel()
	orgA, orgB := uuid.New(), uuid.New()
	src := &fakeSource{
		followUps: []store.FollowUp{
			{OrganizationID: orgA, ClientName: "Grace", Content: "a1", FollowUpDate: today},
			{OrganizationID: orgB, ClientName: "Alan", Content: "b1", FollowUpDate: today},
			{OrganizationID: orgA, ClientName: "Ada", Content: "a2", FollowUpDate: today.AddDate(0, 0, -1)},
		},
		recipients: map[uuid.UUID][]store.ReminderRecipient{
			orgA: {{Email: "owner@a.example", FullName: "Owner"}, {Email: "staff@a.example"}},
			orgB: {{Email: "owner@b.example"}},
		},
	}
	sender := &fakeSender{}
	d := NewDigest(src, sender, "https://app.example.com/", WithLogger(quietLogger()))

	res, err := d.Run(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, Result{Organizations: 2, Sent: 3}, res)

	require.Len(t, sender.sent, 3)
	assert.Equal(t, "owner@a.example", sender.sent[0].To)
	assert.Len(t, sender.sent[0].Items, 2)
	assert.Equal(t, "https://app.example.com/today", sender.sent[0].TodayURL)
	assert.Equal(t, "Owner", sender.sent[0].RecipientName)
	assert.Len(t, sender.sent[2].Items, 1)
	assert.Equal(t, "Alan", sender.sent[2].Items[0].ClientName)
}

func TestRun_SendFailures(t *testing.T) {
	t.Parallel()
	org := uuid.New()
	src := &fakeSource{
		followUps:  []store.FollowUp{{OrganizationID: org, Content: "x", FollowUpDate: today}},
		recipients: map[uuid.UUID][]store.ReminderRecipient{org: {{Email: "a@example.com"}, {Email: "b@example.com"}}},
	}

	partial := &fakeSender{fail: map[string]bool{"a@example.com": true}}
	res, err := NewDigest(src, partial, "", WithLogger(quietLogger())).Run(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Failed)

	all := &fakeSender{fail: map[string]bool{"a@example.com": true, "b@example.com": true}}
	_, err = NewDigest(src, all, "", WithLogger(quietLogger())).Run(context.Background(), today)
	assert.Error(t, err)
}

func TestRun_NothingDue(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	res, err := NewDigest(&fakeSource{}, sender, "", WithLogger(quietLogger())).Run(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, sender.sent)
}

func TestHandle_PayloadDate(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	clock := func() time.Time { return time.Date(2026, 3, 12, 23, 0, 0, 0, time.UTC) }
	d := NewDigest(src, &fakeSender{}, "", WithClock(clock), WithLogger(quietLogger()))
	ctx := context.Background()

	require.NoError(t, d.Handle(ctx, json.RawMessage(`{"date":"2026-03-10"}`)))
	require.NoError(t, d.Handle(ctx, json.RawMessage(`{}`)))
	require.NoError(t, d.Handle(ctx, nil))
	assert.Error(t, d.Handle(ctx, json.RawMessage(`{"date":"March 10"}`)))
	assert.Error(t, d.Handle(ctx, json.RawMessage(`not json`)))

	require.Len(t, src.asked, 3)
	assert.Equal(t, today, src.asked[0])
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), src.asked[1])
}

func TestEnqueue_LockKeyPerDay(t *testing.T) {
	t.Parallel()
	q := &fakeEnqueuer{}
	id, err := Enqueue(context.Background(), q, time.Date(2026, 3, 10, 21, 0, 0, 0, time.FixedZone("X", -5*3600)))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, Queue, q.queue)
	assert.Equal(t, "reminder:2026-03-11", q.lockKey)
	assert.JSONEq(t, `{"date":"2026-03-11"}`, q.payload)
}
