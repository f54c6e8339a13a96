package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/store"
	"go.uber.org/zap"
)

// CopySeparation is the pause between the client and agent copies, long
// enough for the cutter to finish on the first ticket.
const CopySeparation = 2 * time.Second

// Dispatcher routes print jobs to the host process, the configured printer,
// or the preview surface. It does not queue: callers run one job at a time.
type Dispatcher struct {
	settings   store.Store
	host       TransportBackend
	serial     TransportBackend
	system     TransportBackend
	preview    TransportBackend
	clock      Clock
	separation time.Duration
	logger     *zap.Logger
}

type Option func(*Dispatcher)

func WithHost(b TransportBackend) Option    { return func(d *Dispatcher) { d.host = b } }
func WithSerial(b TransportBackend) Option  { return func(d *Dispatcher) { d.serial = b } }
func WithSystem(b TransportBackend) Option  { return func(d *Dispatcher) { d.system = b } }
func WithPreview(b TransportBackend) Option { return func(d *Dispatcher) { d.preview = b } }
func WithClock(c Clock) Option              { return func(d *Dispatcher) { d.clock = c } }
func WithLogger(l *zap.Logger) Option       { return func(d *Dispatcher) { d.logger = l } }

func NewDispatcher(settings store.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		settings:   settings,
		clock:      RealClock,
		separation: CopySeparation,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Print delivers a job. A two-payload job is handled as a client/agent pair.
func (d *Dispatcher) Print(ctx context.Context, job model.PrintJob) model.Result {
	switch len(job.Payloads) {
	case 0:
		return model.Result{JobID: job.ID, Status: model.StatusTransportError, Err: errors.New("print job has no payload")}
	case 2:
		return d.printPair(ctx, job)
	}
	return d.dispatch(ctx, Request{JobID: job.ID, Kind: job.Kind, Data: job.Payloads[0]})
}

// PrintTwoPart prints the client copy, waits CopySeparation, then prints the
// agent copy as a separate operation.
func (d *Dispatcher) PrintTwoPart(ctx context.Context, kind model.JobKind, client, agent []byte) model.Result {
	return d.Print(ctx, model.NewJob(kind, client, agent))
}

// PrintAsync runs Print on its own goroutine.
func (d *Dispatcher) PrintAsync(ctx context.Context, job model.PrintJob) <-chan model.Result {
	out := make(chan model.Result, 1)
	go func() {
		out <- d.Print(ctx, job)
	}()
	return out
}

func (d *Dispatcher) PrintTwoPartAsync(ctx context.Context, kind model.JobKind, client, agent []byte) <-chan model.Result {
	return d.PrintAsync(ctx, model.NewJob(kind, client, agent))
}

func (d *Dispatcher) printPair(ctx context.Context, job model.PrintJob) model.Result {
	log := d.logger.With(zap.String("job", job.ID.String()), zap.String("kind", string(job.Kind)))

	first := d.dispatch(ctx, Request{JobID: job.ID, Kind: job.Kind, Copy: 0, Data: job.Payloads[0]})
	if !first.OK() {
		if !d.hostPromptsIndependently(ctx) {
			log.Warn("client copy failed, skipping agent copy", zap.String("status", string(first.Status)), zap.Error(first.Err))
			return first
		}
		log.Warn("client copy failed, host prompts independently, continuing with agent copy", zap.Error(first.Err))
	}

	log.Debug("waiting before agent copy", zap.Duration("delay", d.separation))
	select {
	case <-d.clock.After(d.separation):
	case <-ctx.Done():
		log.Info("pair cancelled before agent copy", zap.Error(ctx.Err()))
		return model.Result{JobID: job.ID, Status: model.StatusUserCancelled, Err: fmt.Errorf("%w: %v", model.ErrUserCancelled, ctx.Err())}
	}

	second := d.dispatch(ctx, Request{JobID: job.ID, Kind: job.Kind, Copy: 1, Data: job.Payloads[1]})
	if !first.OK() {
		return first
	}
	return second
}

func (d *Dispatcher) hostPromptsIndependently(ctx context.Context) bool {
	if d.host == nil || !d.host.Available(ctx) {
		return false
	}
	p, ok := d.host.(IndependentPrompter)
	return ok && p.IndependentPrompting()
}

// dispatch walks host -> configured printer -> preview for one payload.
func (d *Dispatcher) dispatch(ctx context.Context, req Request) model.Result {
	log := d.logger.With(zap.String("job", req.JobID.String()), zap.Int("copy", req.Copy))
	result := func(status model.Status, backend string, err error) model.Result {
		return model.Result{JobID: req.JobID, Status: status, Backend: backend, Err: err}
	}

	hostUp := d.host != nil && d.host.Available(ctx)
	if hostUp {
		err := d.send(ctx, d.host, req)
		if err == nil {
			log.Info("printed through host", zap.Int("bytes", len(req.Data)))
			return result(model.StatusSuccess, d.host.Name(), nil)
		}
		log.Warn("host print failed, trying configured printer", zap.Error(err))
	}

	cfg, err := store.LoadPrinterConfig(d.settings)
	if err != nil {
		log.Error("failed to read printer configuration", zap.Error(err))
	}
	if cfg == nil {
		return result(model.StatusNotConfigured, "", model.ErrConfigurationMissing)
	}
	req.Config = cfg

	var primary TransportBackend
	switch cfg.Type {
	case model.PrinterTypeSerial:
		primary = d.serial
	case model.PrinterTypeSystem:
		if cfg.SystemPrinter != "" {
			primary = d.system
		}
	}

	if primary != nil && primary.Available(ctx) {
		err := d.send(ctx, primary, req)
		if err == nil {
			log.Info("printed", zap.String("backend", primary.Name()), zap.Int("bytes", len(req.Data)))
			return result(model.StatusSuccess, primary.Name(), nil)
		}
		if errors.Is(err, model.ErrUserCancelled) {
			return result(model.StatusUserCancelled, primary.Name(), err)
		}
		log.Error("print failed", zap.String("backend", primary.Name()), zap.Error(err))

		// A failed serial write is never hidden behind a preview.
		if cfg.Type == model.PrinterTypeSerial || hostUp {
			return result(model.StatusTransportError, primary.Name(), err)
		}
	} else if hostUp {
		if cfg.Type == model.PrinterTypeSystem && cfg.SystemPrinter == "" {
			return result(model.StatusNotConfigured, "", model.ErrConfigurationMissing)
		}
		return result(model.StatusTransportError, string(cfg.Type), &TransportError{Backend: string(cfg.Type), Err: model.ErrDeviceUnavailable})
	}

	if d.preview == nil || !d.preview.Available(ctx) {
		return result(model.StatusTransportError, string(cfg.Type), &TransportError{Backend: BackendPreview, Err: model.ErrDeviceUnavailable})
	}
	if err := d.send(ctx, d.preview, req); err != nil {
		log.Error("preview failed", zap.Error(err))
		return result(model.StatusTransportError, d.preview.Name(), err)
	}
	log.Info("shown in preview")
	return result(model.StatusSuccess, d.preview.Name(), nil)
}

// send calls the backend and turns a panic into a TransportError, so a broken
// backend cannot take the caller down, even from the delayed agent copy.
func (d *Dispatcher) send(ctx context.Context, b TransportBackend, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("backend panicked", zap.String("backend", b.Name()), zap.Any("panic", r))
			err = &TransportError{Backend: b.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return b.Send(ctx, req)
}
