package dialer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/gateway"
	apperrors "github.com/acme/outbound-batch-dialer/pkg/errors"
	"github.com/acme/outbound-batch-dialer/pkg/logger"
)

// DefaultInterCallDelay paces consecutive calls of a session.
const DefaultInterCallDelay = 2 * time.Second

var (
	ErrInvalidSession = apperrors.Newf(apperrors.ErrValidation, "invalid dial session")
	ErrAlreadyStarted = apperrors.Newf(apperrors.ErrConflict, "dial session already started")
	ErrNotRunning     = apperrors.Newf(apperrors.ErrConflict, "dial session is not running")
	ErrNotPaused      = apperrors.Newf(apperrors.ErrConflict, "dial session is not paused")
	ErrNotActive      = apperrors.Newf(apperrors.ErrConflict, "dial session is neither running nor paused")
)

// SessionInfo identifies a dial session and the tenant it runs for.
type SessionInfo struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	GroupID  uuid.UUID
}

// Recorder receives every result as soon as it is appended.
type Recorder interface {
	RecordResult(ctx context.Context, info SessionInfo, agent domain.Agent, sequence int, result domain.CallResult) error
}

// Option customises a Dialer.
type Option func(*Dialer)

// WithInterCallDelay sets the pause between two consecutive calls.
func WithInterCallDelay(d time.Duration) Option {
	return func(dl *Dialer) {
		if d >= 0 {
			dl.delay = d
		}
	}
}

// WithRecorder forwards results to r.
func WithRecorder(r Recorder) Option {
	return func(dl *Dialer) { dl.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(dl *Dialer) {
		if l != nil {
			dl.logger = l
		}
	}
}

// WithClock overrides the attempt timestamp source.
func WithClock(now func() time.Time) Option {
	return func(dl *Dialer) {
		if now != nil {
			dl.now = now
		}
	}
}

// Dialer drives one dial session through its contacts, one call at a time.
// All session state is guarded by mu; the loop goroutine and the control
// methods only ever touch it while holding the lock.
type Dialer struct {
	info     SessionInfo
	gateway  gateway.Gateway
	delay    time.Duration
	recorder Recorder
	logger   *logger.Logger
	now      func() time.Time
	wake     chan struct{}

	mu       sync.Mutex
	contacts []domain.Contact
	agent    *domain.Agent
	status   domain.DialStatus
	next     int
	results  []domain.CallResult
	seq      int
	gen      uint64
	looping  bool
	inFlight bool
	done     chan struct{}
	runCtx   context.Context
}

// New creates an idle dialer over a fixed contact list.
func New(info SessionInfo, contacts []domain.Contact, agent *domain.Agent, gw gateway.Gateway, opts ...Option) *Dialer {
	d := &Dialer{
		info:     info,
		gateway:  gw,
		delay:    DefaultInterCallDelay,
		logger:   logger.NewNop(),
		now:      time.Now,
		wake:     make(chan struct{}, 1),
		contacts: append([]domain.Contact(nil), contacts...),
		status:   domain.DialStatusIdle,
	}
	if agent != nil {
		a := *agent
		d.agent = &a
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Info returns the session identity.
func (d *Dialer) Info() SessionInfo {
	return d.info
}

// SelectAgent chooses the agent for the next run. Only legal while idle.
func (d *Dialer) SelectAgent(agent domain.Agent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != domain.DialStatusIdle {
		return ErrAlreadyStarted
	}
	d.agent = &agent
	return nil
}

// Start begins dialing from the first contact. The loop runs until the
// contacts are exhausted, the session is paused or reset, or ctx is done.
func (d *Dialer) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status != domain.DialStatusIdle {
		return ErrAlreadyStarted
	}
	if d.agent == nil {
		return fmt.Errorf("%w: no agent selected", ErrInvalidSession)
	}
	if len(d.contacts) == 0 {
		return fmt.Errorf("%w: contact list is empty", ErrInvalidSession)
	}

	d.status = domain.DialStatusRunning
	d.next = 0
	d.results = nil
	d.gen++
	d.runCtx = ctx
	d.launchLocked()

	d.logger.Info("dialer: session started",
		zap.String("session_id", d.info.ID.String()),
		zap.String("agent_id", d.agent.ID.String()),
		zap.Int("contacts", len(d.contacts)),
		zap.Duration("inter_call_delay", d.delay),
	)
	return nil
}

// Pause stops the session after the in-flight call, if any, completes.
func (d *Dialer) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != domain.DialStatusRunning {
		return ErrNotRunning
	}
	d.status = domain.DialStatusPaused
	d.signal()
	d.logger.Info("dialer: pause requested",
		zap.String("session_id", d.info.ID.String()),
		zap.Int("cursor", d.cursorLocked()),
		zap.Bool("in_flight", d.inFlight),
	)
	return nil
}

// Resume continues a paused session at the contact it was about to dial.
func (d *Dialer) Resume(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != domain.DialStatusPaused {
		return ErrNotPaused
	}
	d.status = domain.DialStatusRunning
	d.runCtx = ctx
	d.launchLocked()
	d.logger.Info("dialer: resumed",
		zap.String("session_id", d.info.ID.String()),
		zap.Int("cursor", d.cursorLocked()),
	)
	return nil
}

// Skip advances past the contact the next iteration would dial without
// calling it. An in-flight call is not affected.
func (d *Dialer) Skip() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != domain.DialStatusRunning && d.status != domain.DialStatusPaused {
		return ErrNotActive
	}
	if d.next < len(d.contacts) {
		d.logger.Info("dialer: contact skipped",
			zap.String("session_id", d.info.ID.String()),
			zap.Int("index", d.next),
			zap.String("contact_id", d.contacts[d.next].ID.String()),
		)
		d.next++
	}
	d.signal()
	return nil
}

// Reset discards all progress and the selected agent. It is always legal;
// the outcome of a call in flight at reset time is dropped. Result sequence
// numbers keep counting across resets.
func (d *Dialer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.status = domain.DialStatusIdle
	d.next = 0
	d.results = nil
	d.agent = nil
	d.looping = false
	d.inFlight = false
	d.signal()
	d.logger.Info("dialer: session reset", zap.String("session_id", d.info.ID.String()))
}

// Wait blocks until the current dial loop, and any loop dropped by Reset
// before it, has exited.
func (d *Dialer) Wait(ctx context.Context) error {
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

// Snapshot returns a copy of the session state.
func (d *Dialer) Snapshot() domain.SessionSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := domain.SessionSnapshot{
		ID:       d.info.ID,
		ClientID: d.info.ClientID,
		GroupID:  d.info.GroupID,
		Status:   d.status,
		Cursor:   d.cursorLocked(),
		Total:    len(d.contacts),
		InFlight: d.inFlight,
		Results:  append([]domain.CallResult(nil), d.results...),
	}
	if d.agent != nil {
		a := *d.agent
		snap.Agent = &a
	}
	if d.next < len(d.contacts) && d.status != domain.DialStatusCompleted {
		c := d.contacts[d.next]
		snap.Current = &c
	}
	for _, r := range d.results {
		if r.Success {
			snap.Succeeded++
		} else {
			snap.Failed++
		}
	}
	return snap
}

// cursorLocked reports the index of the next or current contact. Once every
// contact has been consumed it stays on the last index.
func (d *Dialer) cursorLocked() int {
	if len(d.contacts) == 0 {
		return 0
	}
	if d.next >= len(d.contacts) {
		return len(d.contacts) - 1
	}
	return d.next
}

func (d *Dialer) launchLocked() {
	if d.looping {
		return
	}
	d.looping = true
	prev := d.done
	d.done = make(chan struct{})
	go d.run(d.runCtx, d.gen, d.done, prev)
}

func (d *Dialer) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run dials until the session stops. prev is the done channel of the
// previous loop; a loop dropped by Reset may still be inside PlaceCall, so
// dialing starts only once it has exited.
func (d *Dialer) run(ctx context.Context, gen uint64, done, prev chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	for {
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		if ctx.Err() != nil {
			if d.status == domain.DialStatusRunning {
				d.status = domain.DialStatusPaused
				d.logger.Warn("dialer: context done, session paused",
					zap.String("session_id", d.info.ID.String()), zap.Error(ctx.Err()))
			}
			d.looping = false
			d.mu.Unlock()
			return
		}
		if d.status != domain.DialStatusRunning {
			d.looping = false
			d.mu.Unlock()
			return
		}
		if d.next >= len(d.contacts) {
			d.status = domain.DialStatusCompleted
			d.looping = false
			succeeded := 0
			for _, r := range d.results {
				if r.Success {
					succeeded++
				}
			}
			d.logger.Info("dialer: session completed",
				zap.String("session_id", d.info.ID.String()),
				zap.Int("attempted", len(d.results)),
				zap.Int("succeeded", succeeded),
			)
			d.mu.Unlock()
			return
		}

		idx := d.next
		contact := d.contacts[idx]
		agent := *d.agent
		d.inFlight = true
		d.mu.Unlock()

		result := d.place(ctx, agent, contact)

		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.inFlight = false
		d.results = append(d.results, result)
		d.seq++
		sequence := d.seq
		d.next++
		if d.next > len(d.contacts) {
			d.next = len(d.contacts)
		}
		more := d.next < len(d.contacts) && d.status == domain.DialStatusRunning
		d.mu.Unlock()

		d.record(ctx, agent, sequence, result)

		if more && d.delay > 0 {
			d.pace(ctx, gen)
		}
	}
}

func (d *Dialer) place(ctx context.Context, agent domain.Agent, contact domain.Contact) (result domain.CallResult) {
	tracer := otel.Tracer("dialer.session")
	ctx, span := tracer.Start(ctx, "dialer.place_call", trace.WithAttributes(
		attribute.String("session.id", d.info.ID.String()),
		attribute.String("group.id", d.info.GroupID.String()),
		attribute.String("contact.id", contact.ID.String()),
		attribute.String("agent.id", agent.ID.String()),
	))
	defer span.End()

	result = domain.CallResult{Contact: contact, AttemptedAt: d.now().UTC()}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Payload = nil
			result.ErrorMessage = fmt.Sprintf("gateway panic: %v", r)
			span.SetAttributes(attribute.Bool("call.success", false))
			d.logger.WithContext(ctx).Error("dialer: gateway panicked",
				zap.String("session_id", d.info.ID.String()),
				zap.String("contact_id", contact.ID.String()),
				zap.Any("panic", r),
			)
		}
	}()

	outcome, err := d.gateway.PlaceCall(ctx, agent, contact)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("call.success", false))
		result.ErrorMessage = err.Error()
		d.logger.WithContext(ctx).Warn("dialer: transport fault",
			zap.String("session_id", d.info.ID.String()),
			zap.String("contact_id", contact.ID.String()),
			zap.Error(err),
		)
		return result
	}

	result.Success = outcome.Success
	result.Payload = outcome.Payload
	result.ErrorMessage = outcome.Error
	if !result.Success && result.ErrorMessage == "" && len(result.Payload) == 0 {
		result.ErrorMessage = "call placement failed"
	}
	span.SetAttributes(attribute.Bool("call.success", result.Success))

	if result.Success {
		d.logger.Debug("dialer: call placed",
			zap.String("session_id", d.info.ID.String()),
			zap.String("contact_id", contact.ID.String()),
		)
	} else {
		d.logger.WithContext(ctx).Warn("dialer: call failed",
			zap.String("session_id", d.info.ID.String()),
			zap.String("contact_id", contact.ID.String()),
			zap.String("error", result.ErrorMessage),
		)
	}
	return result
}

func (d *Dialer) record(ctx context.Context, agent domain.Agent, sequence int, result domain.CallResult) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordResult(context.WithoutCancel(ctx), d.info, agent, sequence, result); err != nil {
		d.logger.Error("dialer: record result",
			zap.String("session_id", d.info.ID.String()),
			zap.Int("sequence", sequence),
			zap.Error(err),
		)
	}
}

// pace waits out the inter-call delay. Control requests wake it early so a
// pause or reset is observed without sitting out the full delay.
func (d *Dialer) pace(ctx context.Context, gen uint64) {
	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-d.wake:
			d.mu.Lock()
			stop := d.gen != gen || d.status != domain.DialStatusRunning
			d.mu.Unlock()
			if stop {
				return
			}
		}
	}
}
