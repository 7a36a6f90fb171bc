package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/lock"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/notify"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/phone"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/repository"
)

var (
	// ErrAlreadyRunning is returned when a run is active, here or on another instance holding the lease
	ErrAlreadyRunning = errors.New("a campaign run is already active")

	// ErrNoMessage is returned when a campaign has neither an inline message nor a template
	ErrNoMessage = errors.New("campaign has no message or template defined")
)

// ReasonNotRegistered is the failure reason stored when the registration check says no
const ReasonNotRegistered = "number is not registered on WhatsApp"

const finalizeTimeout = 10 * time.Second

// Renderer personalizes a message template for one recipient
type Renderer interface {
	Render(template string, vars map[string]string) string
}

// Lease guards the single running campaign across processes
type Lease interface {
	Acquire(ctx context.Context, campaignID int64) error
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// Limits holds the pacing and circuit breaker configuration
type Limits struct {
	IntervalMin           time.Duration
	IntervalMax           time.Duration
	HourlyCap             int
	PauseMessageThreshold int
	PauseDuration         time.Duration
	RestDuration          time.Duration
	MaxErrorRate          float64
	MinErrorSamples       int
	FailureCooldown       time.Duration
	CriticalCooldown      time.Duration
	SendTimeout           time.Duration
	MaxAttempts           int
}

// DefaultLimits returns the stock anti-ban limits
func DefaultLimits() Limits {
	return Limits{
		IntervalMin:      5 * time.Second,
		IntervalMax:      13 * time.Second,
		HourlyCap:        30,
		PauseDuration:    10 * time.Minute,
		RestDuration:     5 * time.Minute,
		MaxErrorRate:     50,
		MinErrorSamples:  20,
		FailureCooldown:  2 * time.Second,
		CriticalCooldown: 3 * time.Second,
		SendTimeout:      30 * time.Second,
		MaxAttempts:      3,
	}
}

// Dependencies are the collaborators a Dispatcher drives.
// Notifier, Lease and Clock are optional.
type Dependencies struct {
	Campaigns  repository.CampaignRepository
	Templates  repository.TemplateRepository
	Recipients repository.RecipientRepository
	Deliveries repository.DeliveryRepository
	Transport  Transport
	Renderer   Renderer
	Notifier   notify.Notifier
	Lease      Lease
	Clock      Clock
}

// Status is a read-only view of the dispatcher
type Status struct {
	Running          bool  `json:"running"`
	ActiveCampaignID int64 `json:"active_campaign_id,omitempty"`
	Paused           bool  `json:"paused"`
	Queued           int   `json:"queued"`
	Stats            Stats `json:"stats"`
}

// Dispatcher drains the pending recipients of one campaign at a time,
// pacing sends so the WhatsApp account is not banned
type Dispatcher struct {
	campaigns  repository.CampaignRepository
	templates  repository.TemplateRepository
	recipients repository.RecipientRepository
	deliveries repository.DeliveryRepository
	transport  Transport
	renderer   Renderer
	notifier   notify.Notifier
	lease      Lease
	clock      Clock
	governor   *Governor
	limits     Limits
	logger     *slog.Logger

	// paused is read at the top of every loop iteration
	paused atomic.Bool

	mu             sync.Mutex
	queue          []*SendItem
	running        bool
	// finishing is set once the loop has exited; the flag is no longer read
	finishing      bool
	activeCampaign int64
	cancel         context.CancelFunc
	done           chan struct{}
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(deps Dependencies, limits Limits, logger *slog.Logger) *Dispatcher {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Dispatcher{
		campaigns:  deps.Campaigns,
		templates:  deps.Templates,
		recipients: deps.Recipients,
		deliveries: deps.Deliveries,
		transport:  deps.Transport,
		renderer:   deps.Renderer,
		notifier:   notifier,
		lease:      deps.Lease,
		clock:      clock,
		governor:   NewGovernor(clock, limits.MaxErrorRate, limits.MinErrorSamples),
		limits:     limits,
		logger:     logger,
	}
}

// Start runs the campaign to completion on the calling goroutine.
// It returns ErrAlreadyRunning without side effects when a run is active.
func (d *Dispatcher) Start(ctx context.Context, campaignID int64) error {
	runCtx, err := d.begin(ctx, campaignID)
	if err != nil {
		return err
	}
	return d.run(runCtx, campaignID)
}

// Launch claims the dispatcher for the campaign and runs it in the background.
// The run outlives ctx; use Stop to interrupt it.
func (d *Dispatcher) Launch(ctx context.Context, campaignID int64) error {
	runCtx, err := d.begin(context.WithoutCancel(ctx), campaignID)
	if err != nil {
		return err
	}

	go d.run(runCtx, campaignID)

	return nil
}

// Pause asks the active run to stop before its next item
func (d *Dispatcher) Pause() {
	d.paused.Store(true)
	d.logger.Info("dispatcher paused", slog.Int64("campaign_id", d.ActiveCampaignID()))
}

// Resume clears the pause flag of a run whose loop is still going and
// reports whether it did. A run that already left its loop ends with the
// status it chose; resuming it takes a fresh run.
func (d *Dispatcher) Resume() bool {
	d.mu.Lock()
	live := d.running && !d.finishing
	if live {
		d.paused.Store(false)
	}
	campaignID := d.activeCampaign
	d.mu.Unlock()

	if !live {
		d.logger.Info("resume ignored, no run loop to resume", slog.Int64("campaign_id", campaignID))
		return false
	}

	d.logger.Info("dispatcher resumed", slog.Int64("campaign_id", campaignID))
	return true
}

// Clear empties the queue between runs
func (d *Dispatcher) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrAlreadyRunning
	}

	d.logger.Info("dispatcher queue cleared", slog.Int("dropped", len(d.queue)))
	d.queue = nil

	return nil
}

// AddRecipients appends one item per recipient to the queue and returns the queue length
func (d *Dispatcher) AddRecipients(campaign *models.Campaign, recipients []*models.Recipient, template string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, recipient := range recipients {
		d.queue = append(d.queue, newSendItem(campaign.ID, recipient, template, d.limits.MaxAttempts))
	}

	d.logger.Info("recipients added to queue",
		slog.Int64("campaign_id", campaign.ID),
		slog.Int("added", len(recipients)),
		slog.Int("queued", len(d.queue)),
	)

	return len(d.queue)
}

// IsRunning reports whether a run is active
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// ActiveCampaignID returns the campaign being dispatched, or 0
func (d *Dispatcher) ActiveCampaignID() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeCampaign
}

// IsPaused reports whether the pause flag is set
func (d *Dispatcher) IsPaused() bool {
	return d.paused.Load()
}

// Queued returns the number of items waiting in the queue
func (d *Dispatcher) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Status returns a snapshot of the dispatcher state
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	status := Status{
		Running:          d.running,
		ActiveCampaignID: d.activeCampaign,
		Queued:           len(d.queue),
	}
	d.mu.Unlock()

	status.Paused = d.paused.Load()
	status.Stats = d.governor.Stats()

	return status
}

// Wait blocks until the current run, if any, has finished
func (d *Dispatcher) Wait() {
	_ = d.WaitContext(context.Background())
}

// WaitContext is Wait bounded by ctx
func (d *Dispatcher) WaitContext(ctx context.Context) error {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop interrupts the active run and waits for it to record its final status
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin claims the dispatcher. The check and the set happen under one lock
// so a concurrent start can never slip in between.
func (d *Dispatcher) begin(ctx context.Context, campaignID int64) (context.Context, error) {
	d.mu.Lock()
	if d.running {
		active := d.activeCampaign
		d.mu.Unlock()

		d.logger.Warn("campaign run already in progress",
			slog.Int64("campaign_id", campaignID),
			slog.Int64("active_campaign_id", active),
		)
		return nil, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.running = true
	d.finishing = false
	d.activeCampaign = campaignID
	d.cancel = cancel
	d.done = make(chan struct{})
	d.paused.Store(false)
	d.mu.Unlock()

	if d.lease != nil {
		if err := d.lease.Acquire(runCtx, campaignID); err != nil {
			d.end()
			if errors.Is(err, lock.ErrHeld) {
				d.logger.Warn("campaign run active on another instance", slog.Int64("campaign_id", campaignID))
				return nil, ErrAlreadyRunning
			}
			return nil, fmt.Errorf("failed to acquire dispatcher lease: %w", err)
		}
	}

	return runCtx, nil
}

// end releases the lease and clears the running flag and active campaign.
// It runs on every exit path of a run.
func (d *Dispatcher) end() {
	if d.lease != nil {
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		if err := d.lease.Release(ctx); err != nil {
			d.logger.Error("failed to release dispatcher lease", slog.String("error", err.Error()))
		}
		cancel()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.running = false
	d.finishing = false
	d.activeCampaign = 0
	close(d.done)
}

func (d *Dispatcher) run(ctx context.Context, campaignID int64) (err error) {
	runID := uuid.NewString()
	logger := d.logger.With(
		slog.Int64("campaign_id", campaignID),
		slog.String("run_id", runID),
	)

	defer d.end()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during campaign run: %v", r)
		}
		if err != nil {
			d.fail(ctx, campaignID, runID, err, logger)
		}
	}()

	return d.execute(ctx, campaignID, runID, logger)
}

// fail marks the campaign erred and reports the fatal error to observers
func (d *Dispatcher) fail(ctx context.Context, campaignID int64, runID string, runErr error, logger *slog.Logger) {
	logger.Error("campaign run failed", slog.String("error", runErr.Error()))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := d.campaigns.UpdateStatus(ctx, campaignID, models.CampaignStatusErred); err != nil {
		logger.Error("failed to mark campaign erred", slog.String("error", err.Error()))
	}

	d.emit(ctx, campaignID, runID, notify.TypeCritical, map[string]any{
		"error": runErr.Error(),
	})
}

func (d *Dispatcher) execute(ctx context.Context, campaignID int64, runID string, logger *slog.Logger) error {
	logger.Info("starting campaign run")

	d.governor.Reset()
	if dropped := d.resetQueue(); dropped > 0 {
		logger.Warn("discarded items left from a previous run", slog.Int("dropped", dropped))
	}

	campaign, err := d.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}

	if err := d.campaigns.MarkStarted(ctx, campaignID); err != nil {
		return fmt.Errorf("failed to mark campaign running: %w", err)
	}

	recipients, err := d.recipients.GetPending(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to load pending recipients: %w", err)
	}

	if len(recipients) == 0 {
		logger.Info("no pending recipients, campaign completed")
		if err := d.campaigns.MarkFinished(ctx, campaignID, models.CampaignStatusCompleted); err != nil {
			return fmt.Errorf("failed to complete campaign: %w", err)
		}
		return nil
	}

	template, err := ResolveMessage(ctx, d.templates, campaign)
	if err != nil {
		return err
	}

	d.AddRecipients(campaign, recipients, template)

	res := d.drain(ctx, campaign, runID, len(recipients), logger)
	d.markFinishing()

	status := models.CampaignStatusCompleted
	if res.paused || res.interrupted {
		status = models.CampaignStatusPaused
	}

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := d.campaigns.MarkFinished(finalCtx, campaignID, status); err != nil {
		return fmt.Errorf("failed to finalize campaign: %w", err)
	}

	logger.Info("campaign run finished",
		slog.String("status", status),
		slog.Int("total", len(recipients)),
		slog.Int("sent", res.sent),
		slog.Int("failed", res.failed),
		slog.Int("queued", d.Queued()),
	)

	d.emit(finalCtx, campaignID, runID, notify.TypeCompleted, map[string]any{
		"sent":   res.sent,
		"failed": res.failed,
		"status": status,
	})

	return nil
}

// ResolveMessage returns the campaign's message text. The inline message
// wins over a referenced template.
func ResolveMessage(ctx context.Context, templates repository.TemplateRepository, campaign *models.Campaign) (string, error) {
	if campaign.MessageTemplate != "" {
		return campaign.MessageTemplate, nil
	}

	if campaign.TemplateID == nil {
		return "", ErrNoMessage
	}

	template, err := templates.GetByID(ctx, *campaign.TemplateID)
	if err != nil {
		return "", fmt.Errorf("failed to load template %d: %w", *campaign.TemplateID, err)
	}

	return template.Content, nil
}

type runResult struct {
	sent        int
	failed      int
	interrupted bool
	paused      bool
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeCritical
	outcomeInterrupted
)

// drain is the send loop. It returns when the queue is empty, the pause
// flag is set, the breaker trips or the run context is cancelled.
func (d *Dispatcher) drain(ctx context.Context, campaign *models.Campaign, runID string, total int, logger *slog.Logger) runResult {
	var res runResult

	hourlyCap := campaign.HourlyCap
	if hourlyCap <= 0 {
		hourlyCap = d.limits.HourlyCap
	}
	restThreshold := d.limits.PauseMessageThreshold
	if restThreshold <= 0 {
		restThreshold = hourlyCap
	}
	lo, hi := campaign.Intervals(d.limits.IntervalMin, d.limits.IntervalMax)
	sinceRest := 0

	// sleep reports false when the run was interrupted while waiting
	sleep := func(dur time.Duration) bool {
		if err := d.clock.Sleep(ctx, dur); err != nil {
			res.interrupted = true
			return false
		}
		return true
	}

	for {
		if d.stopIfPaused() {
			res.paused = true
			break
		}

		if ctx.Err() != nil {
			res.interrupted = true
			break
		}

		if d.Queued() == 0 {
			break
		}

		if !d.refreshLease(ctx, logger) {
			res.interrupted = true
			break
		}

		if !d.governor.CanSend(hourlyCap) {
			logger.Warn("hourly limit reached, waiting",
				slog.Int("hourly_cap", hourlyCap),
				slog.Duration("wait", d.limits.PauseDuration),
			)
			d.emit(ctx, campaign.ID, runID, notify.TypeWaiting, map[string]any{
				"reason":  notify.ReasonHourlyLimit,
				"message": fmt.Sprintf("hourly limit of %d messages reached", hourlyCap),
			})
			if !sleep(d.limits.PauseDuration) {
				break
			}
			continue
		}

		item, ok := d.dequeue()
		if !ok {
			break
		}

		result, delivered, reason := d.attempt(ctx, item, logger)

		switch result {
		case outcomeInterrupted:
			d.requeueFront(item)
			res.interrupted = true

		case outcomeSent:
			res.sent++
			sinceRest++
			d.governor.RecordSuccess()

			logger.Info("message sent",
				slog.Int64("recipient_id", item.RecipientID),
				slog.Int("sent", res.sent),
				slog.Int("total", total),
			)
			d.emit(ctx, campaign.ID, runID, notify.TypeSuccess, map[string]any{
				"contact": item.Name,
				"total":   total,
				"sent":    res.sent,
				"queued":  d.Queued(),
			})

			if !sleep(randomInterval(lo, hi)) {
				break
			}

			if sinceRest >= restThreshold {
				logger.Info("automatic rest",
					slog.Int("messages", sinceRest),
					slog.Duration("rest", d.limits.RestDuration),
				)
				d.emit(ctx, campaign.ID, runID, notify.TypeAutoPause, map[string]any{
					"reason": notify.ReasonMessageLimit,
				})
				if !sleep(d.limits.RestDuration) {
					break
				}
				sinceRest = 0
			}

		case outcomeFailed:
			res.failed++
			d.governor.RecordFailure()

			logger.Warn("message send failed",
				slog.Int64("recipient_id", item.RecipientID),
				slog.String("error", reason.Error()),
				slog.Int("failed", res.failed),
			)
			d.emit(ctx, campaign.ID, runID, notify.TypeError, map[string]any{
				"contact": item.Name,
				"error":   reason.Error(),
				"failed":  res.failed,
			})

			if d.governor.CheckErrorRateCritical(res.sent+res.failed, res.failed) {
				logger.Error("error rate above limit, halting campaign",
					slog.Int("attempted", res.sent+res.failed),
					slog.Int("failed", res.failed),
					slog.Float64("max_error_rate", d.limits.MaxErrorRate),
				)
				d.paused.Store(true)
				res.paused = true
				break
			}

			sleep(d.limits.FailureCooldown)

		case outcomeCritical:
			res.failed++
			// the message reached the transport even if recording it failed
			if delivered {
				d.governor.RecordSuccess()
			}

			logger.Error("critical error processing recipient",
				slog.Int64("recipient_id", item.RecipientID),
				slog.Int("attempts", item.Attempts),
				slog.String("error", reason.Error()),
			)
			d.emit(ctx, campaign.ID, runID, notify.TypeCritical, map[string]any{
				"contact": item.Name,
				"error":   reason.Error(),
			})

			if item.CanRetry() {
				item.Attempts++
				d.enqueue(item)
				logger.Info("recipient re-enqueued", slog.Int64("recipient_id", item.RecipientID), slog.Int("attempt", item.Attempts))
			} else {
				logger.Warn("recipient dropped after max attempts", slog.Int64("recipient_id", item.RecipientID))
			}

			sleep(d.limits.CriticalCooldown)
		}

		if res.interrupted {
			break
		}
	}

	return res
}

// stopIfPaused checks the pause flag under the lock Resume takes, so a
// Resume either lands before the check or sees the run finishing.
func (d *Dispatcher) stopIfPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.paused.Load() {
		d.finishing = true
		return true
	}
	return false
}

func (d *Dispatcher) markFinishing() {
	d.mu.Lock()
	d.finishing = true
	d.mu.Unlock()
}

// attempt renders, sends and records one item. outcomeCritical means the
// outcome could not be recorded or processing panicked. delivered reports
// whether the transport accepted the message.
func (d *Dispatcher) attempt(ctx context.Context, item *SendItem, logger *slog.Logger) (result outcome, delivered bool, reason error) {
	defer func() {
		if r := recover(); r != nil {
			result, reason = outcomeCritical, fmt.Errorf("panic while processing %s: %v", item.Key(), r)
		}
	}()

	text := d.renderer.Render(item.Template, item.Variables)

	_, sendErr := d.deliver(ctx, item.Phone, text)
	if sendErr != nil && ctx.Err() != nil {
		return outcomeInterrupted, false, ctx.Err()
	}
	delivered = sendErr == nil

	// the send already happened, so its outcome is stored even during shutdown
	storeCtx := context.WithoutCancel(ctx)

	if sendErr != nil {
		if err := d.recordFailure(storeCtx, item, text, sendErr, logger); err != nil {
			return outcomeCritical, false, err
		}
		return outcomeFailed, false, sendErr
	}

	if err := d.recordSuccess(storeCtx, item, text, logger); err != nil {
		return outcomeCritical, true, err
	}
	return outcomeSent, true, nil
}

// deliver checks registration then sends. Both failures are reported the same way.
func (d *Dispatcher) deliver(ctx context.Context, key, text string) (string, error) {
	if !phone.IsValid(key) {
		return "", fmt.Errorf("invalid phone number %q", key)
	}
	address := phone.Address(key)

	var registered bool
	err := d.call(ctx, func(ctx context.Context) (err error) {
		registered, err = d.transport.IsRegistered(ctx, address)
		return err
	})
	if err != nil {
		return "", err
	}
	if !registered {
		return "", errors.New(ReasonNotRegistered)
	}

	var id string
	err = d.call(ctx, func(ctx context.Context) (err error) {
		id, err = d.transport.Send(ctx, address, text)
		return err
	})
	return id, err
}

// call runs one transport call under the send timeout
func (d *Dispatcher) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, d.limits.SendTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("transport call timed out after %s", d.limits.SendTimeout)
	}
	return err
}

func (d *Dispatcher) recordSuccess(ctx context.Context, item *SendItem, text string, logger *slog.Logger) error {
	record := &models.DeliveryRecord{
		CampaignID:  item.CampaignID,
		RecipientID: item.RecipientID,
		Phone:       item.Phone,
		Name:        item.Name,
		Message:     text,
		Status:      models.DeliveryStatusSent,
	}
	if err := d.deliveries.Insert(ctx, record); err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	d.incrementCounter(ctx, item.CampaignID, models.CounterSent, logger)

	if err := d.recipients.UpdateLinkStatus(ctx, item.CampaignID, item.RecipientID, models.LinkStatusSent, nil); err != nil {
		return fmt.Errorf("failed to update recipient status: %w", err)
	}

	return nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, item *SendItem, text string, sendErr error, logger *slog.Logger) error {
	errMsg := sendErr.Error()
	record := &models.DeliveryRecord{
		CampaignID:  item.CampaignID,
		RecipientID: item.RecipientID,
		Phone:       item.Phone,
		Name:        item.Name,
		Message:     text,
		Status:      models.DeliveryStatusFailed,
		Error:       &errMsg,
	}
	if err := d.deliveries.Insert(ctx, record); err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	d.incrementCounter(ctx, item.CampaignID, models.CounterFailed, logger)

	if err := d.recipients.UpdateLinkStatus(ctx, item.CampaignID, item.RecipientID, models.LinkStatusFailed, &errMsg); err != nil {
		return fmt.Errorf("failed to update recipient status: %w", err)
	}

	return nil
}

// incrementCounter only logs on error; the delivery records remain the source of truth
func (d *Dispatcher) incrementCounter(ctx context.Context, campaignID int64, field string, logger *slog.Logger) {
	if err := d.campaigns.IncrementCounter(ctx, campaignID, field); err != nil {
		logger.Error("failed to increment campaign counter",
			slog.String("field", field),
			slog.String("error", err.Error()),
		)
	}
}

// refreshLease reports false only when the lease is definitely lost
func (d *Dispatcher) refreshLease(ctx context.Context, logger *slog.Logger) bool {
	if d.lease == nil {
		return true
	}

	err := d.lease.Refresh(ctx)
	switch {
	case err == nil:
		return true
	case errors.Is(err, lock.ErrLost):
		logger.Error("dispatcher lease lost, halting run")
		return false
	default:
		logger.Warn("failed to refresh dispatcher lease", slog.String("error", err.Error()))
		return true
	}
}

func (d *Dispatcher) emit(ctx context.Context, campaignID int64, runID, eventType string, payload map[string]any) {
	event := notify.Event{
		CampaignID: campaignID,
		RunID:      runID,
		Type:       eventType,
		Timestamp:  d.clock.Now(),
		Payload:    payload,
	}

	if err := d.notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		d.logger.Warn("failed to deliver progress event",
			slog.Int64("campaign_id", campaignID),
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) dequeue() (*SendItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return nil, false
	}

	item := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]

	return item, true
}

func (d *Dispatcher) enqueue(item *SendItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, item)
}

func (d *Dispatcher) requeueFront(item *SendItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append([]*SendItem{item}, d.queue...)
}

func (d *Dispatcher) resetQueue() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := len(d.queue)
	d.queue = nil
	return dropped
}

// randomInterval returns a uniformly random duration in [lo, hi]
func randomInterval(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
