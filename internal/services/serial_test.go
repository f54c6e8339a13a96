package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePort struct {
	mu       sync.Mutex
	written  []byte
	writeErr error
	chunk    int
	closed   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	n := len(b)
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	p.written = append(p.written, b[:n]...)
	return n, nil
}

func (p *fakePort) Drain() error { return nil }

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type fakeDriver struct {
	ports   []model.PortInfo
	next    []*fakePort
	openErr error
	opened  []string
	lists   int
}

func (d *fakeDriver) open(name string) (Port, error) {
	d.opened = append(d.opened, name)
	if d.openErr != nil {
		return nil, d.openErr
	}
	p := d.next[0]
	d.next = d.next[1:]
	return p, nil
}

func (d *fakeDriver) list() ([]model.PortInfo, error) {
	d.lists++
	return d.ports, nil
}

type fakePrompter struct {
	answer string
	err    error
	asked  int
}

func (p *fakePrompter) SelectPort(ctx context.Context, ports []model.PortInfo) (string, error) {
	p.asked++
	return p.answer, p.err
}

func newSerialUnderTest(t *testing.T, drv *fakeDriver, prompt PortPrompter, settings store.Store) (*SerialBackend, *PortManager) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	pm := NewPortManager(settings, prompt, logger).WithDriver(drv.open, drv.list)
	return NewSerialBackend(pm, logger), pm
}

func TestSerialBackendKeepsPortOpen(t *testing.T) {
	port := &fakePort{chunk: 4}
	drv := &fakeDriver{ports: []model.PortInfo{{Name: "/dev/ttyUSB0"}}, next: []*fakePort{port}}
	b, pm := newSerialUnderTest(t, drv, nil, nil)

	req := Request{Data: []byte("0123456789"), Config: serialCfg}
	require.NoError(t, b.Send(context.Background(), req))
	require.NoError(t, b.Send(context.Background(), req))

	assert.Equal(t, "01234567890123456789", string(port.written))
	assert.Equal(t, []string{"/dev/ttyUSB0"}, drv.opened)
	assert.Equal(t, "/dev/ttyUSB0", pm.Current())
	assert.False(t, port.closed)
}

func TestSerialPermissionDeniedDropsHandle(t *testing.T) {
	bad := &fakePort{writeErr: os.ErrPermission}
	good := &fakePort{}
	drv := &fakeDriver{ports: []model.PortInfo{{Name: "/dev/ttyUSB0"}}, next: []*fakePort{bad, good}}
	serial, pm := newSerialUnderTest(t, drv, nil, nil)
	d := NewDispatcher(settingsWith(t, serialCfg), WithSerial(serial))

	res := d.Print(context.Background(), model.NewJob(model.JobInvoice, []byte("first")))
	assert.Equal(t, model.StatusTransportError, res.Status)
	assert.ErrorIs(t, res.Err, os.ErrPermission)
	assert.True(t, bad.closed)
	assert.Empty(t, pm.Current())

	res = d.Print(context.Background(), model.NewJob(model.JobInvoice, []byte("second")))
	require.True(t, res.OK(), res.Err)
	assert.Equal(t, 2, drv.lists, "port was resolved again")
	assert.Len(t, drv.opened, 2)
	assert.Equal(t, "second", string(good.written))
}

func TestSerialPromptsWhenSavedPortMissing(t *testing.T) {
	settings := settingsWith(t, serialCfg)
	port := &fakePort{}
	drv := &fakeDriver{ports: []model.PortInfo{{Name: "COM4"}}, next: []*fakePort{port}}
	prompt := &fakePrompter{answer: "COM4"}
	b, _ := newSerialUnderTest(t, drv, prompt, settings)

	require.NoError(t, b.Send(context.Background(), Request{Data: []byte("x"), Config: serialCfg}))
	assert.Equal(t, 1, prompt.asked)
	assert.Equal(t, []string{"COM4"}, drv.opened)

	cfg, err := store.LoadPrinterConfig(settings)
	require.NoError(t, err)
	assert.Equal(t, "COM4", cfg.SerialPort)
}

func TestSerialPromptDismissed(t *testing.T) {
	drv := &fakeDriver{}
	prompt := &fakePrompter{err: model.ErrUserCancelled}
	b, _ := newSerialUnderTest(t, drv, prompt, nil)

	err := b.Send(context.Background(), Request{Data: []byte("x"), Config: serialCfg})
	assert.ErrorIs(t, err, model.ErrUserCancelled)
	assert.Empty(t, drv.opened)
}

func TestSerialMissingPortIsDeviceUnavailable(t *testing.T) {
	drv := &fakeDriver{ports: []model.PortInfo{{Name: "/dev/ttyUSB0"}}, openErr: os.ErrNotExist}
	b, _ := newSerialUnderTest(t, drv, nil, nil)

	err := b.Send(context.Background(), Request{Data: []byte("x"), Config: serialCfg})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, BackendSerial, te.Backend)
	assert.ErrorIs(t, err, model.ErrDeviceUnavailable)

	err = b.Send(context.Background(), Request{Data: []byte("x"), Config: &model.PrinterConfiguration{Type: model.PrinterTypeSerial, SerialPort: "COM9"}})
	assert.ErrorIs(t, err, model.ErrDeviceUnavailable)
}

func TestPortManagerConnectReplacesHandle(t *testing.T) {
	first, second := &fakePort{}, &fakePort{}
	drv := &fakeDriver{next: []*fakePort{first, second}}
	pm := NewPortManager(nil, nil, nil).WithDriver(drv.open, drv.list)

	require.NoError(t, pm.Connect("COM1"))
	require.NoError(t, pm.Connect("COM2"))
	assert.True(t, first.closed)
	assert.Equal(t, "COM2", pm.Current())

	require.NoError(t, pm.Close())
	assert.True(t, second.closed)
	assert.Empty(t, pm.Current())
}
