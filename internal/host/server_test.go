package host

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/services"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memPort struct {
	mu      sync.Mutex
	written []byte
	closed  bool
}

func (p *memPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *memPort) Drain() error { return nil }

func (p *memPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *memPort) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.written)
}

type stubSpooler struct {
	mu       sync.Mutex
	printers []string
	err      error
	jobs     map[string]string
}

func (s *stubSpooler) Supported() bool { return true }

func (s *stubSpooler) Printers(ctx context.Context) ([]string, error) { return s.printers, nil }

func (s *stubSpooler) Submit(ctx context.Context, printer, title, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.jobs == nil {
		s.jobs = map[string]string{}
	}
	s.jobs[printer] += string(data)
	return nil
}

func (s *stubSpooler) job(printer string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[printer]
}

type fixture struct {
	settings *store.MemoryStore
	port     *memPort
	server   *Server
	client   *services.HostBackend
}

func newFixture(t *testing.T, spooler services.Spooler, configure ...func(*Server)) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &fixture{settings: store.NewMemoryStore(), port: &memPort{}}
	list := func() ([]model.PortInfo, error) {
		return []model.PortInfo{{Name: "/dev/ttyUSB0", Label: "/dev/ttyUSB0"}}, nil
	}
	open := func(name string) (services.Port, error) {
		if name != "/dev/ttyUSB0" {
			return nil, errors.New("no such port")
		}
		return f.port, nil
	}
	ports := services.NewPortManager(f.settings, nil, logger).WithDriver(open, list)

	f.server = NewServer(f.settings, ports, spooler, logger)
	for _, c := range configure {
		c(f.server)
	}
	srv := httptest.NewServer(f.server)
	t.Cleanup(srv.Close)

	f.client = services.NewHostBackend("ws"+strings.TrimPrefix(srv.URL, "http")+"/ipc", logger)
	t.Cleanup(func() { f.client.Close() })
	return f
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestHostPrintsOnSavedSerialPort(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.settings.Set(model.KeySerialPort, "/dev/ttyUSB0"))

	ctx := testCtx(t)
	require.True(t, f.client.Available(ctx))
	require.NoError(t, f.client.Send(ctx, services.Request{Data: []byte("ticket-1")}))
	require.NoError(t, f.client.Send(ctx, services.Request{Data: []byte("ticket-2")}))

	assert.Equal(t, "ticket-1ticket-2", f.port.String())
}

func TestHostPrefersReceiptSpooler(t *testing.T) {
	sp := &stubSpooler{printers: []string{"Office_Laser", "POS_Thermal"}}
	f := newFixture(t, sp)

	require.NoError(t, f.client.Send(testCtx(t), services.Request{Data: []byte("ticket")}))
	assert.Equal(t, "ticket", sp.job("POS_Thermal"))
	assert.Empty(t, f.port.String())
}

func TestHostFallsBackToSerialWhenSpoolerFails(t *testing.T) {
	sp := &stubSpooler{printers: []string{"Receipt"}, err: errors.New("queue paused")}
	f := newFixture(t, sp)
	require.NoError(t, f.settings.Set(model.KeySerialPort, "/dev/ttyUSB0"))

	require.NoError(t, f.client.Send(testCtx(t), services.Request{Data: []byte("ticket")}))
	assert.Equal(t, "ticket", f.port.String())
}

func TestHostReportsPrintFailure(t *testing.T) {
	f := newFixture(t, nil)

	err := f.client.Send(testCtx(t), services.Request{Data: []byte("ticket")})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrHostDeclined)

	var te *services.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, services.BackendHost, te.Backend)
}

func TestHostConnectAndList(t *testing.T) {
	sp := &stubSpooler{printers: []string{"POS_Thermal"}}
	f := newFixture(t, sp)
	ctx := testCtx(t)

	ports, err := f.client.ListSerialPorts(ctx)
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, "/dev/ttyUSB0", ports[0].Name)

	printers, err := f.client.ListSystemPrinters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"POS_Thermal"}, printers)

	assert.Error(t, f.client.ConnectPrinter(ctx, "COM7"))
	require.NoError(t, f.client.ConnectPrinter(ctx, "/dev/ttyUSB0"))
}

func TestHostAdvertisesIndependentPrompting(t *testing.T) {
	f := newFixture(t, nil, func(s *Server) { s.IndependentPrompting = true })

	assert.False(t, f.client.IndependentPrompting())
	require.True(t, f.client.Available(testCtx(t)))
	assert.True(t, f.client.IndependentPrompting())
}

func TestHostStoreProxiesSettings(t *testing.T) {
	f := newFixture(t, nil)
	hs := services.NewHostStore(f.client)

	require.NoError(t, store.SavePrinterConfig(hs, model.PrinterConfiguration{Type: model.PrinterTypeSystem, SystemPrinter: "POS_Thermal"}))

	v, ok, err := f.settings.Get(model.KeySystemPrinter)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "POS_Thermal", v)

	cfg, err := store.LoadPrinterConfig(hs)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, model.PrinterTypeSystem, cfg.Type)

	require.NoError(t, hs.Delete(model.KeyPrinterType))
	cfg, err = store.LoadPrinterConfig(hs)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestDispatcherThroughHost(t *testing.T) {
	sp := &stubSpooler{printers: []string{"Generic / Text Only"}}
	f := newFixture(t, sp)
	d := services.NewDispatcher(store.NewMemoryStore(), services.WithHost(f.client))

	res := d.Print(testCtx(t), model.NewJob(model.JobInvoice, []byte("invoice")))
	require.True(t, res.OK(), res.Err)
	assert.Equal(t, services.BackendHost, res.Backend)
	assert.Equal(t, "invoice", sp.job("Generic / Text Only"))
}

func TestHostUnavailable(t *testing.T) {
	client := services.NewHostBackend("ws://127.0.0.1:1/ipc", nil)
	assert.False(t, client.Available(testCtx(t)))
}

func TestPing(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
