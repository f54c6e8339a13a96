package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// --- Host IPC client ---

const hostDialTimeout = 2 * time.Second

// HostBackend talks to the host process over its websocket IPC endpoint. The
// connection is opened lazily and re-dialled after any error.
type HostBackend struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	independent bool
}

func NewHostBackend(url string, logger *zap.Logger) *HostBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostBackend{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: hostDialTimeout},
		logger: logger,
	}
}

func (h *HostBackend) Name() string { return BackendHost }

// Available dials the host if needed and reports whether it answered.
func (h *HostBackend) Available(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connectLocked(ctx) == nil
}

func (h *HostBackend) IndependentPrompting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil && h.independent
}

func (h *HostBackend) connectLocked(ctx context.Context) error {
	if h.conn != nil {
		return nil
	}
	if h.url == "" {
		return errors.New("no host url")
	}

	conn, _, err := h.dialer.DialContext(ctx, h.url, http.Header{})
	if err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(hostDialTimeout))
	var hello model.IPCMessage
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != model.MessageTypeHello {
		conn.Close()
		if err == nil {
			err = fmt.Errorf("unexpected greeting %q", hello.Type)
		}
		return fmt.Errorf("host handshake failed: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	h.logger.Info("connected to host", zap.String("url", h.url), zap.Bool("independentPrompting", hello.IndependentPrompting))
	h.conn = conn
	h.independent = hello.IndependentPrompting
	return nil
}

func (h *HostBackend) dropLocked() {
	if h.conn != nil {
		h.conn.Close()
		h.conn = nil
	}
}

// call sends one request and waits for the reply carrying the same id.
func (h *HostBackend) call(ctx context.Context, msg model.IPCMessage) (model.IPCMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.connectLocked(ctx); err != nil {
		return model.IPCMessage{}, err
	}

	msg.ID = uuid.NewString()
	if deadline, ok := ctx.Deadline(); ok {
		h.conn.SetWriteDeadline(deadline)
		h.conn.SetReadDeadline(deadline)
		defer func() {
			if h.conn != nil {
				h.conn.SetWriteDeadline(time.Time{})
				h.conn.SetReadDeadline(time.Time{})
			}
		}()
	}

	if err := h.conn.WriteJSON(msg); err != nil {
		h.dropLocked()
		return model.IPCMessage{}, fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}

	for {
		var reply model.IPCMessage
		if err := h.conn.ReadJSON(&reply); err != nil {
			h.dropLocked()
			return model.IPCMessage{}, fmt.Errorf("failed to read reply to %s: %w", msg.Type, err)
		}
		switch {
		case reply.Type == model.MessageTypePing:
			h.conn.WriteJSON(model.IPCMessage{Type: model.MessageTypePong, ID: reply.ID})
		case reply.ID != msg.ID:
			h.logger.Debug("ignoring unrelated host message", zap.String("type", string(reply.Type)))
		case reply.Type == model.MessageTypeError:
			return reply, fmt.Errorf("host error: %s", reply.Error)
		default:
			return reply, nil
		}
	}
}

func (h *HostBackend) Send(ctx context.Context, req Request) error {
	reply, err := h.call(ctx, model.IPCMessage{Type: model.MessageTypePrintData, Data: req.Data})
	if err != nil {
		return &TransportError{Backend: BackendHost, Err: err}
	}
	if !reply.OK {
		detail := reply.Error
		if detail == "" {
			detail = "no details"
		}
		return &TransportError{Backend: BackendHost, Err: fmt.Errorf("%w: %s", model.ErrHostDeclined, detail)}
	}
	return nil
}

func (h *HostBackend) ListSerialPorts(ctx context.Context) ([]model.PortInfo, error) {
	reply, err := h.call(ctx, model.IPCMessage{Type: model.MessageTypeListSerialPorts})
	if err != nil {
		return nil, err
	}
	return reply.Ports, nil
}

func (h *HostBackend) ListSystemPrinters(ctx context.Context) ([]string, error) {
	reply, err := h.call(ctx, model.IPCMessage{Type: model.MessageTypeListSystemPrinters})
	if err != nil {
		return nil, err
	}
	return reply.Printers, nil
}

// ConnectPrinter asks the host to open the given serial port.
func (h *HostBackend) ConnectPrinter(ctx context.Context, port string) error {
	reply, err := h.call(ctx, model.IPCMessage{Type: model.MessageTypeConnectPrinter, Port: port})
	if err != nil {
		return err
	}
	if !reply.OK {
		return fmt.Errorf("%w: %s", model.ErrDeviceUnavailable, reply.Error)
	}
	return nil
}

func (h *HostBackend) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked()
	return nil
}

// --- Settings through the host ---

const hostStoreTimeout = 5 * time.Second

// HostStore is a store.Store kept by the host process, so the POS and the host
// share one printer configuration.
type HostStore struct {
	host *HostBackend
}

func NewHostStore(host *HostBackend) *HostStore {
	return &HostStore{host: host}
}

func (s *HostStore) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), hostStoreTimeout)
	defer cancel()
	reply, err := s.host.call(ctx, model.IPCMessage{Type: model.MessageTypeStoreGet, Key: key})
	if err != nil {
		return "", false, err
	}
	return reply.Value, reply.Found, nil
}

func (s *HostStore) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), hostStoreTimeout)
	defer cancel()
	_, err := s.host.call(ctx, model.IPCMessage{Type: model.MessageTypeStoreSet, Key: key, Value: value})
	return err
}

func (s *HostStore) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), hostStoreTimeout)
	defer cancel()
	_, err := s.host.call(ctx, model.IPCMessage{Type: model.MessageTypeStoreDelete, Key: key})
	return err
}

// Close leaves the shared connection to its owner.
func (s *HostStore) Close() error { return nil }
