package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/notify"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock advances instantly on Sleep and can run a hook per sleep
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	hook := c.onSleep
	c.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fakeStore is an in-memory stand-in for the Postgres repositories
type fakeStore struct {
	mu         sync.Mutex
	campaigns  map[int64]*models.Campaign
	templates  map[int64]*models.Template
	recipients map[int64][]*models.Recipient
	links      map[[2]int64]string
	deliveries []*models.DeliveryRecord
	statuses   []string
	insertErr  func(record *models.DeliveryRecord) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns:  map[int64]*models.Campaign{},
		templates:  map[int64]*models.Template{},
		recipients: map[int64][]*models.Recipient{},
		links:      map[[2]int64]string{},
	}
}

func (s *fakeStore) addCampaign(c *models.Campaign, recipients int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.campaigns[c.ID] = c
	for i := 1; i <= recipients; i++ {
		r := &models.Recipient{
			ID:              c.ID*1000 + int64(i),
			Name:            fmt.Sprintf("Contato %d", i),
			Phone:           fmt.Sprintf("119%08d", i),
			NormalizedPhone: fmt.Sprintf("11%08d", i),
		}
		s.recipients[c.ID] = append(s.recipients[c.ID], r)
		s.links[[2]int64{c.ID, r.ID}] = models.LinkStatusPending
	}
}

func (s *fakeStore) records() []*models.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.DeliveryRecord(nil), s.deliveries...)
}

func (s *fakeStore) recordsWithStatus(status string) int {
	n := 0
	for _, r := range s.records() {
		if r.Status == status {
			n++
		}
	}
	return n
}

func (s *fakeStore) campaign(id int64) models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func (s *fakeStore) statusHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

func (s *fakeStore) link(campaignID, recipientID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[[2]int64{campaignID, recipientID}]
}

type fakeCampaigns struct{ s *fakeStore }

func (f fakeCampaigns) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	c, ok := f.s.campaigns[id]
	if !ok {
		return nil, models.ErrNotFoundWithMsg("campaign not found")
	}
	copied := *c
	return &copied, nil
}

func (f fakeCampaigns) setStatus(id int64, status string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	c, ok := f.s.campaigns[id]
	if !ok {
		return models.ErrNotFoundWithMsg("campaign not found")
	}
	c.Status = status
	f.s.statuses = append(f.s.statuses, status)
	return nil
}

func (f fakeCampaigns) UpdateStatus(ctx context.Context, id int64, status string) error {
	return f.setStatus(id, status)
}

func (f fakeCampaigns) MarkStarted(ctx context.Context, id int64) error {
	return f.setStatus(id, models.CampaignStatusRunning)
}

func (f fakeCampaigns) MarkFinished(ctx context.Context, id int64, status string) error {
	return f.setStatus(id, status)
}

func (f fakeCampaigns) IncrementCounter(ctx context.Context, id int64, field string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	c, ok := f.s.campaigns[id]
	if !ok {
		return models.ErrNotFoundWithMsg("campaign not found")
	}
	switch field {
	case models.CounterSent:
		c.SentCount++
	case models.CounterFailed:
		c.FailedCount++
	default:
		return models.ErrInvalidInput("bad counter")
	}
	return nil
}

func (f fakeCampaigns) CountRunning(ctx context.Context) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var n int64
	for _, c := range f.s.campaigns {
		if c.Status == models.CampaignStatusRunning {
			n++
		}
	}
	return n, nil
}

type fakeTemplates struct{ s *fakeStore }

func (f fakeTemplates) GetByID(ctx context.Context, id int64) (*models.Template, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	t, ok := f.s.templates[id]
	if !ok {
		return nil, models.ErrNotFoundWithMsg("template not found")
	}
	return t, nil
}

type fakeRecipients struct{ s *fakeStore }

func (f fakeRecipients) GetByID(ctx context.Context, id int64) (*models.Recipient, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	for _, list := range f.s.recipients {
		for _, r := range list {
			if r.ID == id {
				return r, nil
			}
		}
	}
	return nil, models.ErrNotFoundWithMsg("recipient not found")
}

func (f fakeRecipients) GetPending(ctx context.Context, campaignID int64) ([]*models.Recipient, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var pending []*models.Recipient
	for _, r := range f.s.recipients[campaignID] {
		if f.s.links[[2]int64{campaignID, r.ID}] == models.LinkStatusPending {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

func (f fakeRecipients) UpdateLinkStatus(ctx context.Context, campaignID, recipientID int64, status string, lastError *string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	key := [2]int64{campaignID, recipientID}
	if _, ok := f.s.links[key]; !ok {
		return models.ErrNotFoundWithMsg("link not found")
	}
	f.s.links[key] = status
	return nil
}

type fakeDeliveries struct{ s *fakeStore }

func (f fakeDeliveries) Insert(ctx context.Context, record *models.DeliveryRecord) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if f.s.insertErr != nil {
		if err := f.s.insertErr(record); err != nil {
			return err
		}
	}
	record.ID = int64(len(f.s.deliveries) + 1)
	f.s.deliveries = append(f.s.deliveries, record)
	return nil
}

func (f fakeDeliveries) List(ctx context.Context, filter models.DeliveryFilter) ([]*models.DeliveryRecord, int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.deliveries, int64(len(f.s.deliveries)), nil
}

// fakeTransport scripts registration and send results
type fakeTransport struct {
	mu         sync.Mutex
	sends      int
	checks     int
	addresses  []string
	texts      []string
	registered func(address string) (bool, error)
	send       func(ctx context.Context, n int, address, text string) (string, error)
}

func (t *fakeTransport) IsRegistered(ctx context.Context, address string) (bool, error) {
	t.mu.Lock()
	t.checks++
	fn := t.registered
	t.mu.Unlock()

	if fn != nil {
		return fn(address)
	}
	return true, nil
}

func (t *fakeTransport) Send(ctx context.Context, address, text string) (string, error) {
	t.mu.Lock()
	t.sends++
	n := t.sends
	t.addresses = append(t.addresses, address)
	t.texts = append(t.texts, text)
	fn := t.send
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, n, address, text)
	}
	return fmt.Sprintf("msg-%d", n), nil
}

func (t *fakeTransport) counts() (checks, sends int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checks, t.sends
}

// fakeRenderer substitutes {nome} only, which is enough to observe rendering
type fakeRenderer struct {
	panicFor string
}

func (r fakeRenderer) Render(template string, vars map[string]string) string {
	if r.panicFor != "" && vars["nome"] == r.panicFor {
		panic("render exploded")
	}
	return strings.ReplaceAll(template, "{nome}", vars["nome"])
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	// onEvent runs after the event is recorded, outside the lock
	onEvent func(notify.Event)
}

func (n *recordingNotifier) Notify(ctx context.Context, event notify.Event) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	hook := n.onEvent
	n.mu.Unlock()

	if hook != nil {
		hook(event)
	}
	return nil
}

func (n *recordingNotifier) ofType(eventType string) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []notify.Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) all() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

type fakeLease struct {
	mu         sync.Mutex
	acquireErr error
	refreshErr error
	acquired   int
	released   int
	refreshed  int
}

func (l *fakeLease) Acquire(ctx context.Context, campaignID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired++
	return nil
}

func (l *fakeLease) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshed++
	return l.refreshErr
}

func (l *fakeLease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return nil
}

var errStoreDown = errors.New("store unavailable")

type harness struct {
	store     *fakeStore
	transport *fakeTransport
	clock     *fakeClock
	notifier  *recordingNotifier
	renderer  fakeRenderer
	lease     Lease
	limits    Limits
}

func newHarness() *harness {
	return &harness{
		store:     newFakeStore(),
		transport: &fakeTransport{},
		clock:     newFakeClock(),
		notifier:  &recordingNotifier{},
		limits:    DefaultLimits(),
	}
}

func (h *harness) dispatcher() *Dispatcher {
	return NewDispatcher(Dependencies{
		Campaigns:  fakeCampaigns{h.store},
		Templates:  fakeTemplates{h.store},
		Recipients: fakeRecipients{h.store},
		Deliveries: fakeDeliveries{h.store},
		Transport:  h.transport,
		Renderer:   h.renderer,
		Notifier:   h.notifier,
		Lease:      h.lease,
		Clock:      h.clock,
	}, h.limits, newTestLogger())
}
