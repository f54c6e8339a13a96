package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/store"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// Thermal printers on a USB-serial bridge all run 9600 8N1 without flow
// control.
var thermalMode = &serial.Mode{
	BaudRate: 9600,
	DataBits: 8,
	Parity:   serial.NoParity,
	StopBits: serial.OneStopBit,
}

// Port is the part of serial.Port the printer needs.
type Port interface {
	Write(p []byte) (int, error)
	Drain() error
	Close() error
}

// PortOpener opens a port by name.
type PortOpener func(name string) (Port, error)

// PortLister returns the ports currently visible to the OS.
type PortLister func() ([]model.PortInfo, error)

// PortPrompter asks the user to pick a port. It returns model.ErrUserCancelled
// when the user dismisses the prompt.
type PortPrompter interface {
	SelectPort(ctx context.Context, ports []model.PortInfo) (string, error)
}

func OpenSerialPort(name string) (Port, error) {
	p, err := serial.Open(name, thermalMode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListSerialPorts enumerates serial ports with USB details where available.
func ListSerialPorts() ([]model.PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil || len(details) == 0 {
		names, plainErr := serial.GetPortsList()
		if plainErr != nil {
			if err != nil {
				return nil, err
			}
			return nil, plainErr
		}
		ports := make([]model.PortInfo, 0, len(names))
		for _, name := range names {
			ports = append(ports, model.PortInfo{Name: name, Label: name})
		}
		return ports, nil
	}

	ports := make([]model.PortInfo, 0, len(details))
	for _, d := range details {
		info := model.PortInfo{Name: d.Name, Label: d.Name}
		if d.IsUSB {
			info.IsUSB = true
			info.VID = d.VID
			info.PID = d.PID
			info.SerialNumber = d.SerialNumber
			if d.Product != "" {
				info.Label = fmt.Sprintf("%s (%s)", d.Name, d.Product)
			} else {
				info.Label = fmt.Sprintf("%s (USB %s:%s)", d.Name, d.VID, d.PID)
			}
		}
		ports = append(ports, info)
	}
	return ports, nil
}

// PortManager owns the single open serial handle. It is opened on first use,
// kept across jobs and dropped on any error so the next job re-resolves.
type PortManager struct {
	mu       sync.Mutex
	open     PortOpener
	list     PortLister
	prompt   PortPrompter
	settings store.Store
	logger   *zap.Logger

	port Port
	name string
}

func NewPortManager(settings store.Store, prompt PortPrompter, logger *zap.Logger) *PortManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortManager{
		open:     OpenSerialPort,
		list:     ListSerialPorts,
		prompt:   prompt,
		settings: settings,
		logger:   logger,
	}
}

// WithDriver swaps the OS serial functions, for tests and for hosts that
// expose ports some other way.
func (m *PortManager) WithDriver(open PortOpener, list PortLister) *PortManager {
	m.open = open
	m.list = list
	return m
}

// Acquire returns the cached handle or resolves and opens a port, preferring
// the saved one when it is still plugged in.
func (m *PortManager) Acquire(ctx context.Context, preferred string) (Port, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.port != nil {
		return m.port, m.name, nil
	}

	name, err := m.resolve(ctx, preferred)
	if err != nil {
		return nil, "", err
	}

	p, err := m.open(name)
	if err != nil {
		return nil, name, classifyPortError(name, err)
	}
	m.logger.Info("serial port opened", zap.String("port", name), zap.Int("baud", thermalMode.BaudRate))
	m.port, m.name = p, name
	return p, name, nil
}

func (m *PortManager) resolve(ctx context.Context, preferred string) (string, error) {
	ports, err := m.list()
	if err != nil {
		return "", fmt.Errorf("failed to list serial ports: %w", err)
	}
	if preferred != "" && slices.ContainsFunc(ports, func(p model.PortInfo) bool { return p.Name == preferred }) {
		return preferred, nil
	}
	if m.prompt == nil {
		if preferred == "" {
			return "", fmt.Errorf("%w: no serial port selected", model.ErrDeviceUnavailable)
		}
		return "", fmt.Errorf("%w: port %s not found", model.ErrDeviceUnavailable, preferred)
	}

	m.logger.Info("saved serial port not visible, asking user", zap.String("port", preferred), zap.Int("visible", len(ports)))
	name, err := m.prompt.SelectPort(ctx, ports)
	if err != nil {
		return "", err
	}
	if m.settings != nil {
		if err := store.RememberSerialPort(m.settings, name); err != nil {
			m.logger.Warn("failed to save selected port", zap.String("port", name), zap.Error(err))
		}
	}
	return name, nil
}

// Invalidate closes and forgets the cached handle.
func (m *PortManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked()
}

func (m *PortManager) dropLocked() {
	if m.port == nil {
		return
	}
	if err := m.port.Close(); err != nil {
		m.logger.Debug("closing serial port", zap.String("port", m.name), zap.Error(err))
	}
	m.logger.Info("serial handle dropped", zap.String("port", m.name))
	m.port, m.name = nil, ""
}

// Connect replaces the cached handle with the named port.
func (m *PortManager) Connect(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked()

	p, err := m.open(name)
	if err != nil {
		return classifyPortError(name, err)
	}
	m.port, m.name = p, name
	return nil
}

// Current returns the open port name, or "" when nothing is open.
func (m *PortManager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

func (m *PortManager) Ports() ([]model.PortInfo, error) {
	return m.list()
}

func (m *PortManager) Close() error {
	m.Invalidate()
	return nil
}

// Write sends the whole buffer on the current handle and drains it. Any error
// drops the handle.
func (m *PortManager) Write(p Port, data []byte) error {
	err := writeAll(p, data)
	if err == nil {
		err = p.Drain()
	}
	if err != nil {
		m.Invalidate()
		return err
	}
	return nil
}

func writeAll(p Port, data []byte) error {
	for len(data) > 0 {
		n, err := p.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("serial write made no progress")
		}
		data = data[n:]
	}
	return nil
}

func classifyPortError(name string, err error) error {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortBusy, serial.PortNotFound:
			return fmt.Errorf("%w: %s: %v", model.ErrDeviceUnavailable, name, err)
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s: %v", model.ErrDeviceUnavailable, name, err)
	}
	return fmt.Errorf("%s: %w", name, err)
}

// SerialBackend writes Documents to a thermal printer on a serial port.
type SerialBackend struct {
	ports  *PortManager
	logger *zap.Logger
}

func NewSerialBackend(ports *PortManager, logger *zap.Logger) *SerialBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SerialBackend{ports: ports, logger: logger}
}

func (b *SerialBackend) Name() string { return BackendSerial }

func (b *SerialBackend) Available(ctx context.Context) bool {
	return b.ports != nil && b.ports.list != nil && b.ports.open != nil
}

func (b *SerialBackend) Send(ctx context.Context, req Request) error {
	preferred := ""
	if req.Config != nil {
		preferred = req.Config.SerialPort
	}

	port, name, err := b.ports.Acquire(ctx, preferred)
	if err != nil {
		if errors.Is(err, model.ErrUserCancelled) {
			return err
		}
		return &TransportError{Backend: BackendSerial, Err: err}
	}

	if err := b.ports.Write(port, req.Data); err != nil {
		b.logger.Error("serial write failed", zap.String("port", name), zap.Error(err))
		return &TransportError{Backend: BackendSerial, Err: classifyPortError(name, err)}
	}
	b.logger.Debug("serial write done", zap.String("port", name), zap.Int("bytes", len(req.Data)))
	return nil
}
