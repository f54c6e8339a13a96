package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeClock jumps forward instead of sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

// stuckClock never fires.
type stuckClock struct{}

func (stuckClock) Now() time.Time                       { return time.Time{} }
func (stuckClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

type write struct {
	at   time.Time
	copy int
	data string
}

type fakeBackend struct {
	name        string
	unavailable bool
	independent bool
	clock       *fakeClock
	latency     time.Duration
	errs        []error // error returned by the n-th call, nil entries succeed
	panicOnCall int     // 1-based; 0 never panics
	onSend      func(n int)

	mu     sync.Mutex
	calls  int
	writes []write
}

func (b *fakeBackend) Name() string                       { return b.name }
func (b *fakeBackend) Available(ctx context.Context) bool { return !b.unavailable }
func (b *fakeBackend) IndependentPrompting() bool         { return b.independent }

func (b *fakeBackend) Send(ctx context.Context, req Request) error {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()

	if b.onSend != nil {
		b.onSend(n)
	}
	if b.panicOnCall == n {
		panic("printer on fire")
	}
	if b.clock != nil {
		b.clock.Advance(b.latency)
	}
	if n <= len(b.errs) && b.errs[n-1] != nil {
		return b.errs[n-1]
	}

	var at time.Time
	if b.clock != nil {
		at = b.clock.Now()
	}
	b.mu.Lock()
	b.writes = append(b.writes, write{at: at, copy: req.Copy, data: string(req.Data)})
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func settingsWith(t *testing.T, cfg *model.PrinterConfiguration) store.Store {
	t.Helper()
	s := store.NewMemoryStore()
	if cfg != nil {
		require.NoError(t, store.SavePrinterConfig(s, *cfg))
	}
	return s
}

var (
	serialCfg = &model.PrinterConfiguration{Type: model.PrinterTypeSerial, SerialPort: "/dev/ttyUSB0"}
	systemCfg = &model.PrinterConfiguration{Type: model.PrinterTypeSystem, SystemPrinter: "POS-80"}
	errBoom   = errors.New("boom")
)

func TestPrintTwoPartSeparatesCopies(t *testing.T) {
	clock := newFakeClock()
	serial := &fakeBackend{name: BackendSerial, clock: clock, latency: 1500 * time.Millisecond}
	d := NewDispatcher(settingsWith(t, serialCfg),
		WithSerial(serial),
		WithClock(clock),
		WithLogger(zaptest.NewLogger(t)),
	)

	res := d.PrintTwoPart(context.Background(), model.JobTableTicket, []byte("client"), []byte("agent"))
	require.True(t, res.OK(), res.Err)
	assert.Equal(t, BackendSerial, res.Backend)

	require.Len(t, serial.writes, 2)
	assert.Equal(t, "client", serial.writes[0].data)
	assert.Equal(t, 0, serial.writes[0].copy)
	assert.Equal(t, "agent", serial.writes[1].data)
	assert.Equal(t, 1, serial.writes[1].copy)
	assert.GreaterOrEqual(t, serial.writes[1].at.Sub(serial.writes[0].at), 2*time.Second)
}

func TestPrintNotConfiguredWithoutHost(t *testing.T) {
	serial := &fakeBackend{name: BackendSerial}
	preview := &fakeBackend{name: BackendPreview}
	d := NewDispatcher(store.NewMemoryStore(), WithSerial(serial), WithPreview(preview))

	res := d.Print(context.Background(), model.NewJob(model.JobInvoice, []byte("x")))
	assert.Equal(t, model.StatusNotConfigured, res.Status)
	assert.ErrorIs(t, res.Err, model.ErrConfigurationMissing)
	assert.Zero(t, serial.Calls())
	assert.Zero(t, preview.Calls())
}

func TestPrintPrefersHost(t *testing.T) {
	host := &fakeBackend{name: BackendHost}
	serial := &fakeBackend{name: BackendSerial}
	d := NewDispatcher(settingsWith(t, serialCfg), WithHost(host), WithSerial(serial))

	res := d.Print(context.Background(), model.NewJob(model.JobInvoice, []byte("x")))
	require.True(t, res.OK())
	assert.Equal(t, BackendHost, res.Backend)
	assert.Zero(t, serial.Calls())
}

func TestPrintHostFailureFallsThrough(t *testing.T) {
	host := &fakeBackend{name: BackendHost, errs: []error{errBoom}}
	serial := &fakeBackend{name: BackendSerial}
	d := NewDispatcher(settingsWith(t, serialCfg), WithHost(host), WithSerial(serial), WithLogger(zaptest.NewLogger(t)))

	res := d.Print(context.Background(), model.NewJob(model.JobInvoice, []byte("x")))
	require.True(t, res.OK())
	assert.Equal(t, BackendSerial, res.Backend)
	assert.Equal(t, 1, host.Calls())
}

func TestPrintHostPanicFallsThrough(t *testing.T) {
	host := &fakeBackend{name: BackendHost, panicOnCall: 1}
	serial := &fakeBackend{name: BackendSerial}
	d := NewDispatcher(settingsWith(t, serialCfg), WithHost(host), WithSerial(serial))

	res := d.Print(context.Background(), model.NewJob(model.JobInvoice, []byte("x")))
	require.True(t, res.OK())
	assert.Equal(t, BackendSerial, res.Backend)
}

func TestPrintSerialFailureIsNotHidden(t *testing.T) {
	serial := &fakeBackend{name: BackendSerial, errs: []error{&TransportError{Backend: BackendSerial, Err: errBoom}}}
	preview := &fakeBackend{name: BackendPreview}
	d := NewDispatcher(settingsWith(t, serialCfg), WithSerial(serial), WithPreview(preview))

	res := d.Print(context.Background(), model.NewJob(model.JobInvoice, []byte("x")))
	assert.Equal(t, model.StatusTransportError, res.Status)
	assert.ErrorIs(t, res.Err, errBoom)
	assert.Zero(t, preview.Calls())
}

func TestPrintSerialPromptDismissed(t *testing.T) {
	serial := &fakeBackend{name: BackendSerial, errs: []error{model.ErrUserCancelled}}
	d := NewDispatcher(settingsWith(t, serialCfg), WithSerial(serial))

	res := d.Print(context.Background(), model.NewJob(model.JobInvoice, []byte("x")))
	assert.Equal(t, model.StatusUserCancelled, res.Status)
}

func TestPrintSystemFailureFallsBackToPreview(t *testing.T) {
	system := &fakeBackend{name: BackendSystem, errs: []error{errBoom}}
	preview := &fakeBackend{name: BackendPreview}
	d := NewDispatcher(settingsWith(t, systemCfg), WithSystem(system), WithPreview(preview))

	res := d.Print(context.Background(), model.NewJob(model.JobReport, []byte("x")))
	require.True(t, res.OK())
	assert.Equal(t, BackendPreview, res.Backend)
	assert.Equal(t, 1, system.Calls())
}

func TestPrintSystemFailureWithHostIsTransportError(t *testing.T) {
	host := &fakeBackend{name: BackendHost, errs: []error{errBoom}}
	system := &fakeBackend{name: BackendSystem, errs: []error{errBoom}}
	preview := &fakeBackend{name: BackendPreview}
	d := NewDispatcher(settingsWith(t, systemCfg), WithHost(host), WithSystem(system), WithPreview(preview))

	res := d.Print(context.Background(), model.NewJob(model.JobReport, []byte("x")))
	assert.Equal(t, model.StatusTransportError, res.Status)
	assert.Zero(t, preview.Calls())
}

func TestPrintSystemWithoutNameUsesPreview(t *testing.T) {
	system := &fakeBackend{name: BackendSystem}
	preview := &fakeBackend{name: BackendPreview}
	cfg := &model.PrinterConfiguration{Type: model.PrinterTypeSystem}
	d := NewDispatcher(settingsWith(t, cfg), WithSystem(system), WithPreview(preview))

	res := d.Print(context.Background(), model.NewJob(model.JobReport, []byte("x")))
	require.True(t, res.OK())
	assert.Equal(t, BackendPreview, res.Backend)
	assert.Zero(t, system.Calls())
}

func TestPrintSerialUnsupportedUsesPreview(t *testing.T) {
	serial := &fakeBackend{name: BackendSerial, unavailable: true}
	preview := &fakeBackend{name: BackendPreview}
	d := NewDispatcher(settingsWith(t, serialCfg), WithSerial(serial), WithPreview(preview))

	res := d.Print(context.Background(), model.NewJob(model.JobInvoice, []byte("x")))
	require.True(t, res.OK())
	assert.Equal(t, BackendPreview, res.Backend)
}

func TestPairFailsAtomically(t *testing.T) {
	serial := &fakeBackend{name: BackendSerial, errs: []error{errBoom}}
	d := NewDispatcher(settingsWith(t, serialCfg), WithSerial(serial), WithClock(newFakeClock()))

	res := d.PrintTwoPart(context.Background(), model.JobTableTicket, []byte("client"), []byte("agent"))
	assert.Equal(t, model.StatusTransportError, res.Status)
	assert.Equal(t, 1, serial.Calls())
	assert.Empty(t, serial.writes)
}

func TestPairContinuesWhenHostPromptsIndependently(t *testing.T) {
	host := &fakeBackend{name: BackendHost, independent: true, errs: []error{errBoom}}
	d := NewDispatcher(settingsWith(t, serialCfg), WithHost(host), WithClock(newFakeClock()))

	res := d.PrintTwoPart(context.Background(), model.JobTableTicket, []byte("client"), []byte("agent"))
	assert.False(t, res.OK(), "the pair still reports the client failure")
	require.Len(t, host.writes, 1)
	assert.Equal(t, "agent", host.writes[0].data)
}

func TestPairCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serial := &fakeBackend{name: BackendSerial, onSend: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	d := NewDispatcher(settingsWith(t, serialCfg), WithSerial(serial), WithClock(stuckClock{}))

	res := d.PrintTwoPart(ctx, model.JobTableTicket, []byte("client"), []byte("agent"))
	assert.Equal(t, model.StatusUserCancelled, res.Status)
	assert.ErrorIs(t, res.Err, model.ErrUserCancelled)
	assert.Equal(t, 1, serial.Calls())
}

func TestPairAgentPanicBecomesTransportError(t *testing.T) {
	serial := &fakeBackend{name: BackendSerial, panicOnCall: 2}
	d := NewDispatcher(settingsWith(t, serialCfg), WithSerial(serial), WithClock(newFakeClock()))

	var res model.Result
	require.NotPanics(t, func() {
		res = <-d.PrintTwoPartAsync(context.Background(), model.JobTableTicket, []byte("client"), []byte("agent"))
	})
	assert.Equal(t, model.StatusTransportError, res.Status)
	var te *TransportError
	assert.ErrorAs(t, res.Err, &te)
	require.Len(t, serial.writes, 1)
}

func TestPrintAsync(t *testing.T) {
	serial := &fakeBackend{name: BackendSerial}
	d := NewDispatcher(settingsWith(t, serialCfg), WithSerial(serial))

	job := model.NewJob(model.JobInvoice, []byte("x"))
	select {
	case res := <-d.PrintAsync(context.Background(), job):
		assert.True(t, res.OK())
		assert.Equal(t, job.ID, res.JobID)
	case <-time.After(5 * time.Second):
		t.Fatal("async print did not finish")
	}
}

func TestPrintEmptyJob(t *testing.T) {
	d := NewDispatcher(store.NewMemoryStore())
	res := d.Print(context.Background(), model.PrintJob{})
	assert.Equal(t, model.StatusTransportError, res.Status)
}
