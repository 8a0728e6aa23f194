package dialer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/gateway"
	apperrors "github.com/acme/outbound-batch-dialer/pkg/errors"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    []domain.Contact
	callTime []time.Time
	fail     map[string]bool
	faults   map[string]bool
	panics   map[string]bool
	block    map[string]chan struct{}
	entered  chan domain.Contact
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		fail:    map[string]bool{},
		faults:  map[string]bool{},
		panics:  map[string]bool{},
		block:   map[string]chan struct{}{},
		entered: make(chan domain.Contact, 64),
	}
}

func (f *fakeGateway) blockOn(name string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.block[name] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeGateway) PlaceCall(ctx context.Context, agent domain.Agent, contact domain.Contact) (gateway.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, contact)
	f.callTime = append(f.callTime, time.Now())
	release := f.block[contact.Name]
	fail, fault, boom := f.fail[contact.Name], f.faults[contact.Name], f.panics[contact.Name]
	f.mu.Unlock()

	f.entered <- contact

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return gateway.Outcome{}, ctx.Err()
		}
	}

	switch {
	case boom:
		panic("gateway exploded")
	case fault:
		return gateway.Outcome{}, errors.New("connection reset by peer")
	case fail:
		return gateway.Outcome{Success: false, Error: "rejected by carrier"}, nil
	}
	return gateway.Outcome{Success: true, Payload: json.RawMessage(`{"queued":true}`)}, nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGateway) calledNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		names = append(names, c.Name)
	}
	return names
}

type fakeRecorder struct {
	mu        sync.Mutex
	sequences []int
	names     []string
	infos     []SessionInfo
	err       error
}

func (r *fakeRecorder) RecordResult(_ context.Context, info SessionInfo, _ domain.Agent, sequence int, result domain.CallResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequences = append(r.sequences, sequence)
	r.names = append(r.names, result.Contact.Name)
	r.infos = append(r.infos, info)
	return r.err
}

func makeContacts(names ...string) []domain.Contact {
	contacts := make([]domain.Contact, 0, len(names))
	for i, name := range names {
		contacts = append(contacts, domain.Contact{
			ID:          uuid.New(),
			Name:        name,
			PhoneNumber: "+1555000000" + string(rune('0'+i)),
		})
	}
	return contacts
}

func testAgent() *domain.Agent {
	return &domain.Agent{ID: uuid.New(), Name: "X"}
}

func newTestDialer(gw gateway.Gateway, contacts []domain.Contact, opts ...Option) *Dialer {
	info := SessionInfo{ID: uuid.New(), ClientID: uuid.New(), GroupID: uuid.New()}
	opts = append([]Option{WithInterCallDelay(0)}, opts...)
	return New(info, contacts, testAgent(), gw, opts...)
}

func waitDone(t *testing.T, d *Dialer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("dial loop did not stop: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func awaitCall(t *testing.T, gw *fakeGateway, name string) {
	t.Helper()
	select {
	case c := <-gw.entered:
		if c.Name != name {
			t.Fatalf("expected call to %s, got %s", name, c.Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for call to %s", name)
	}
}

func resultNames(snap domain.SessionSnapshot) []string {
	names := make([]string, 0, len(snap.Results))
	for _, r := range snap.Results {
		names = append(names, r.Contact.Name)
	}
	return names
}

func assertNames(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func assertSnapshotConsistent(t *testing.T, snap domain.SessionSnapshot) {
	t.Helper()
	if len(snap.Results) > snap.Cursor+1 {
		t.Fatalf("results (%d) exceed cursor+1 (%d)", len(snap.Results), snap.Cursor+1)
	}
	if snap.Status == domain.DialStatusCompleted && snap.Total > 0 && snap.Cursor != snap.Total-1 {
		t.Fatalf("completed session must rest on the last index, cursor=%d total=%d", snap.Cursor, snap.Total)
	}
}

func TestDialsAllContactsInOrder(t *testing.T) {
	gw := newFakeGateway()
	contacts := makeContacts("A", "B", "C")
	d := newTestDialer(gw, contacts)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, d)

	snap := d.Snapshot()
	if snap.Status != domain.DialStatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	if len(snap.Results) != len(contacts) {
		t.Fatalf("expected %d results, got %d", len(contacts), len(snap.Results))
	}
	for i, r := range snap.Results {
		if r.Contact.ID != contacts[i].ID {
			t.Fatalf("result %d is for %s, expected %s", i, r.Contact.Name, contacts[i].Name)
		}
		if !r.Success {
			t.Fatalf("expected result %d to succeed", i)
		}
		if r.AttemptedAt.IsZero() {
			t.Fatalf("expected attempt timestamp on result %d", i)
		}
	}
	if snap.Succeeded != 3 || snap.Failed != 0 {
		t.Fatalf("unexpected tally %d/%d", snap.Succeeded, snap.Failed)
	}
	if snap.Current != nil {
		t.Fatalf("completed session should have no current contact")
	}
	assertSnapshotConsistent(t, snap)
}

func TestStartRequiresAgent(t *testing.T) {
	d := New(SessionInfo{ID: uuid.New()}, makeContacts("A"), nil, newFakeGateway(), WithInterCallDelay(0))

	err := d.Start(context.Background())
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error kind, got %v", err)
	}
	if d.Snapshot().Status != domain.DialStatusIdle {
		t.Fatalf("session must stay idle")
	}
}

func TestStartRequiresContacts(t *testing.T) {
	gw := newFakeGateway()
	d := newTestDialer(gw, nil)

	if err := d.Start(context.Background()); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	snap := d.Snapshot()
	if snap.Status != domain.DialStatusIdle || snap.Cursor != 0 {
		t.Fatalf("unexpected state %+v", snap)
	}
	if gw.callCount() != 0 {
		t.Fatalf("no calls expected")
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	gw := newFakeGateway()
	release := gw.blockOn("A")
	d := newTestDialer(gw, makeContacts("A"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	close(release)
	waitDone(t, d)
}

func TestFailedCallsDoNotStopTheLoop(t *testing.T) {
	gw := newFakeGateway()
	gw.fail["B"] = true
	gw.faults["C"] = true
	d := newTestDialer(gw, makeContacts("A", "B", "C", "D"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, d)

	snap := d.Snapshot()
	assertNames(t, resultNames(snap), "A", "B", "C", "D")
	if snap.Results[1].Success || snap.Results[1].ErrorMessage != "rejected by carrier" {
		t.Fatalf("unexpected business failure result %+v", snap.Results[1])
	}
	if snap.Results[2].Success || snap.Results[2].ErrorMessage != "connection reset by peer" {
		t.Fatalf("unexpected transport fault result %+v", snap.Results[2])
	}
	if !snap.Results[3].Success {
		t.Fatalf("contact after failures must still be dialed successfully")
	}
	if snap.Succeeded != 2 || snap.Failed != 2 {
		t.Fatalf("unexpected tally %d/%d", snap.Succeeded, snap.Failed)
	}
	if snap.Status != domain.DialStatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
}

func TestGatewayPanicBecomesFailedResult(t *testing.T) {
	gw := newFakeGateway()
	gw.panics["A"] = true
	d := newTestDialer(gw, makeContacts("A", "B"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, d)

	snap := d.Snapshot()
	assertNames(t, resultNames(snap), "A", "B")
	if snap.Results[0].Success || snap.Results[0].ErrorMessage == "" {
		t.Fatalf("expected panic to be recorded as failure, got %+v", snap.Results[0])
	}
}

func TestPauseLetsInFlightCallFinish(t *testing.T) {
	gw := newFakeGateway()
	release := gw.blockOn("B")
	d := newTestDialer(gw, makeContacts("A", "B", "C"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCall(t, gw, "A")
	awaitCall(t, gw, "B")

	if err := d.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	snap := d.Snapshot()
	if snap.Status != domain.DialStatusPaused || !snap.InFlight {
		t.Fatalf("expected paused with call in flight, got %s in_flight=%v", snap.Status, snap.InFlight)
	}

	close(release)
	waitDone(t, d)

	snap = d.Snapshot()
	assertNames(t, resultNames(snap), "A", "B")
	if snap.Cursor != 2 {
		t.Fatalf("expected cursor on C, got %d", snap.Cursor)
	}
	if snap.Current == nil || snap.Current.Name != "C" {
		t.Fatalf("expected C as current contact")
	}
	if gw.callCount() != 2 {
		t.Fatalf("expected no call after pause, got %v", gw.calledNames())
	}
	assertSnapshotConsistent(t, snap)
}

func TestPauseThenResumeMatchesUninterruptedRun(t *testing.T) {
	contacts := makeContacts("A", "B", "C", "D")

	straight := newTestDialer(newFakeGateway(), contacts)
	if err := straight.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, straight)

	gw := newFakeGateway()
	release := gw.blockOn("B")
	d := newTestDialer(gw, contacts)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCall(t, gw, "A")
	awaitCall(t, gw, "B")
	if err := d.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	close(release)
	waitDone(t, d)

	if err := d.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitDone(t, d)

	got := d.Snapshot()
	want := straight.Snapshot()
	assertNames(t, resultNames(got), resultNames(want)...)
	if got.Status != domain.DialStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	assertNames(t, gw.calledNames(), "A", "B", "C", "D")
}

func TestResumeBeforeInFlightCallReturnsKeepsOneLoop(t *testing.T) {
	gw := newFakeGateway()
	release := gw.blockOn("A")
	d := newTestDialer(gw, makeContacts("A", "B"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCall(t, gw, "A")
	if err := d.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := d.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	close(release)
	waitDone(t, d)

	snap := d.Snapshot()
	assertNames(t, resultNames(snap), "A", "B")
	assertNames(t, gw.calledNames(), "A", "B")
	if snap.Status != domain.DialStatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
}

func TestSkipBeforeNextContactIsDialed(t *testing.T) {
	gw := newFakeGateway()
	d := newTestDialer(gw, makeContacts("A", "B", "C"), WithInterCallDelay(200*time.Millisecond))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCall(t, gw, "A")
	waitFor(t, "A to be recorded", func() bool {
		s := d.Snapshot()
		return len(s.Results) == 1 && s.Cursor == 1
	})

	if err := d.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	waitDone(t, d)

	snap := d.Snapshot()
	assertNames(t, resultNames(snap), "A", "C")
	assertNames(t, gw.calledNames(), "A", "C")
	if snap.Status != domain.DialStatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	assertSnapshotConsistent(t, snap)
}

func TestSkipDuringInFlightCallSkipsTheFollowingContact(t *testing.T) {
	gw := newFakeGateway()
	release := gw.blockOn("A")
	d := newTestDialer(gw, makeContacts("A", "B", "C"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCall(t, gw, "A")
	if err := d.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	close(release)
	waitDone(t, d)

	assertNames(t, resultNames(d.Snapshot()), "A", "C")
	assertNames(t, gw.calledNames(), "A", "C")
}

func TestSkipWhilePaused(t *testing.T) {
	gw := newFakeGateway()
	release := gw.blockOn("A")
	d := newTestDialer(gw, makeContacts("A", "B", "C"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCall(t, gw, "A")
	if err := d.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	close(release)
	waitDone(t, d)

	if err := d.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if got := d.Snapshot().Cursor; got != 2 {
		t.Fatalf("expected cursor 2 after skip, got %d", got)
	}
	if err := d.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitDone(t, d)

	snap := d.Snapshot()
	assertNames(t, resultNames(snap), "A", "C")
	if snap.Status != domain.DialStatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
}

func TestSkipPastLastContactCompletesWithoutDialing(t *testing.T) {
	gw := newFakeGateway()
	release := gw.blockOn("A")
	d := newTestDialer(gw, makeContacts("A", "B"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCall(t, gw, "A")
	if err := d.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	close(release)
	waitDone(t, d)

	if err := d.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	snap := d.Snapshot()
	if snap.Status != domain.DialStatusPaused || snap.Cursor != 1 {
		t.Fatalf("expected paused on last index, got %s cursor=%d", snap.Status, snap.Cursor)
	}

	if err := d.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitDone(t, d)

	snap = d.Snapshot()
	if snap.Status != domain.DialStatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	assertNames(t, gw.calledNames(), "A")
	assertSnapshotConsistent(t, snap)
}

func TestControlPreconditions(t *testing.T) {
	d := newTestDialer(newFakeGateway(), makeContacts("A"))

	if err := d.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := d.Resume(context.Background()); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused, got %v", err)
	}
	if err := d.Skip(); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if err := d.Skip(); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict kind, got %v", err)
	}
}

func TestCompletedSessionPlacesNoFurtherCalls(t *testing.T) {
	gw := newFakeGateway()
	d := newTestDialer(gw, makeContacts("A", "B", "C"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, d)

	if err := d.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning on completed session, got %v", err)
	}
	if err := d.Resume(context.Background()); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused on completed session, got %v", err)
	}
	if err := d.Skip(); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive on completed session, got %v", err)
	}
	if err := d.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted on completed session, got %v", err)
	}

	snap := d.Snapshot()
	if gw.callCount() != 3 {
		t.Fatalf("expected exactly 3 calls, got %d", gw.callCount())
	}
	if snap.Cursor != 2 {
		t.Fatalf("expected cursor 2, got %d", snap.Cursor)
	}
}

func TestResetClearsState(t *testing.T) {
	gw := newFakeGateway()
	d := newTestDialer(gw, makeContacts("A", "B"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, d)

	d.Reset()
	snap := d.Snapshot()
	if snap.Status != domain.DialStatusIdle || snap.Cursor != 0 || len(snap.Results) != 0 || snap.Agent != nil {
		t.Fatalf("unexpected state after reset %+v", snap)
	}

	if err := d.Start(context.Background()); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected reset to clear the agent, got %v", err)
	}
	if err := d.SelectAgent(*testAgent()); err != nil {
		t.Fatalf("select agent: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitDone(t, d)
	assertNames(t, resultNames(d.Snapshot()), "A", "B")
}

func TestResetWhilePausedOrIdle(t *testing.T) {
	d := newTestDialer(newFakeGateway(), makeContacts("A"))
	d.Reset()
	if d.Snapshot().Status != domain.DialStatusIdle {
		t.Fatalf("reset on idle session must keep it idle")
	}
}

func TestResetDropsInFlightOutcome(t *testing.T) {
	gw := newFakeGateway()
	release := gw.blockOn("A")
	d := newTestDialer(gw, makeContacts("A", "B", "C"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCall(t, gw, "A")
	d.Reset()
	close(release)

	if err := d.SelectAgent(*testAgent()); err != nil {
		t.Fatalf("select agent: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitDone(t, d)

	snap := d.Snapshot()
	assertNames(t, resultNames(snap), "A", "B", "C")
	if snap.Status != domain.DialStatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
}

func TestSequencesKeepCountingAcrossReset(t *testing.T) {
	rec := &fakeRecorder{}
	gw := newFakeGateway()
	d := newTestDialer(gw, makeContacts("A", "B"), WithRecorder(rec))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, d)

	d.Reset()
	if err := d.SelectAgent(*testAgent()); err != nil {
		t.Fatalf("select agent: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitDone(t, d)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assertNames(t, rec.names, "A", "B", "A", "B")
	seen := map[int]bool{}
	for i, seq := range rec.sequences {
		if seq != i+1 {
			t.Fatalf("expected sequence %d, got %d", i+1, seq)
		}
		if seen[seq] {
			t.Fatalf("sequence %d recorded twice", seq)
		}
		seen[seq] = true
	}
	assertNames(t, resultNames(d.Snapshot()), "A", "B")
}

func TestRestartWaitsForCallDroppedByReset(t *testing.T) {
	gw := newFakeGateway()
	release := gw.blockOn("A")
	d := newTestDialer(gw, makeContacts("A", "B"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCall(t, gw, "A")
	d.Reset()

	gw.mu.Lock()
	delete(gw.block, "A")
	gw.mu.Unlock()

	if err := d.SelectAgent(*testAgent()); err != nil {
		t.Fatalf("select agent: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}

	select {
	case c := <-gw.entered:
		t.Fatalf("call to %s placed while the dropped call was still in flight", c.Name)
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wait must cover the dropped loop, got %v", err)
	}

	close(release)
	waitDone(t, d)
	if got := gw.callCount(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
	snap := d.Snapshot()
	assertNames(t, resultNames(snap), "A", "B")
	if snap.Status != domain.DialStatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
}

func TestSelectAgentOnlyWhileIdle(t *testing.T) {
	gw := newFakeGateway()
	release := gw.blockOn("A")
	d := newTestDialer(gw, makeContacts("A"))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.SelectAgent(*testAgent()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	close(release)
	waitDone(t, d)
}

func TestContextCancellationPausesSession(t *testing.T) {
	gw := newFakeGateway()
	gw.blockOn("A")
	d := newTestDialer(gw, makeContacts("A", "B"))

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCall(t, gw, "A")
	cancel()
	waitDone(t, d)

	snap := d.Snapshot()
	if snap.Status != domain.DialStatusPaused {
		t.Fatalf("expected paused after cancellation, got %s", snap.Status)
	}
	if len(snap.Results) != 1 || snap.Results[0].Success {
		t.Fatalf("expected the interrupted call recorded as failure, got %+v", snap.Results)
	}

	if err := d.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitDone(t, d)
	assertNames(t, resultNames(d.Snapshot()), "A", "B")
}

func TestPauseDuringPacingIsObservedPromptly(t *testing.T) {
	gw := newFakeGateway()
	d := newTestDialer(gw, makeContacts("A", "B"), WithInterCallDelay(time.Hour))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first result", func() bool { return len(d.Snapshot().Results) == 1 })

	if err := d.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	waitDone(t, d)

	if gw.callCount() != 1 {
		t.Fatalf("expected a single call, got %v", gw.calledNames())
	}
}

func TestInterCallDelayPacesCalls(t *testing.T) {
	gw := newFakeGateway()
	delay := 40 * time.Millisecond
	d := newTestDialer(gw, makeContacts("A", "B", "C"), WithInterCallDelay(delay))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, d)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	for i := 1; i < len(gw.callTime); i++ {
		if gap := gw.callTime[i].Sub(gw.callTime[i-1]); gap < delay {
			t.Fatalf("calls %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestRecorderReceivesEveryResultInOrder(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("broker unavailable")}
	gw := newFakeGateway()
	d := newTestDialer(gw, makeContacts("A", "B", "C"), WithRecorder(rec))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, d)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assertNames(t, rec.names, "A", "B", "C")
	for i, seq := range rec.sequences {
		if seq != i+1 {
			t.Fatalf("expected sequence %d, got %d", i+1, seq)
		}
		if rec.infos[i] != d.Info() {
			t.Fatalf("unexpected session info %+v", rec.infos[i])
		}
	}
	if d.Snapshot().Status != domain.DialStatusCompleted {
		t.Fatalf("recorder errors must not stop the session")
	}
}

func TestWithClockStampsAttempts(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	d := newTestDialer(newFakeGateway(), makeContacts("A"), WithClock(func() time.Time { return fixed }))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, d)

	if got := d.Snapshot().Results[0].AttemptedAt; !got.Equal(fixed) {
		t.Fatalf("expected %v, got %v", fixed, got)
	}
}
