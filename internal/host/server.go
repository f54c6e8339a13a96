// Package host is the desktop side of the print pipeline: a websocket IPC
// endpoint that owns the local printers and the shared settings.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/services"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/store"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	// Only local clients reach the listener.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	Router *mux.Router

	settings store.Store
	ports    *services.PortManager
	spooler  services.Spooler
	logger   *zap.Logger

	// IndependentPrompting is advertised to clients in the hello message.
	IndependentPrompting bool

	printMu sync.Mutex
}

func NewServer(settings store.Store, ports *services.PortManager, spooler services.Spooler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		Router:   mux.NewRouter(),
		settings: settings,
		ports:    ports,
		spooler:  spooler,
		logger:   logger,
	}
	s.Router.HandleFunc("/ipc", s.handleIPC)
	s.Router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"serialPort":  s.ports.Current(),
		"independent": s.IndependentPrompting,
	})
}

func (s *Server) handleIPC(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.logger.With(zap.String("remote", r.RemoteAddr))
	log.Info("client connected")

	hello := model.IPCMessage{Type: model.MessageTypeHello, IndependentPrompting: s.IndependentPrompting}
	if err := conn.WriteJSON(hello); err != nil {
		log.Warn("failed to send hello", zap.Error(err))
		return
	}

	for {
		var msg model.IPCMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Info("client disconnected", zap.Error(err))
			return
		}

		reply := s.handleMessage(r.Context(), msg)
		reply.ID = msg.ID
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn("failed to write reply", zap.String("type", string(reply.Type)), zap.Error(err))
			return
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, msg model.IPCMessage) model.IPCMessage {
	switch msg.Type {
	case model.MessageTypePing:
		return model.IPCMessage{Type: model.MessageTypePong}

	case model.MessageTypePrintData:
		if err := s.Print(ctx, msg.Data); err != nil {
			s.logger.Error("print failed", zap.Error(err))
			return model.IPCMessage{Type: model.MessageTypePrintResult, OK: false, Error: err.Error()}
		}
		return model.IPCMessage{Type: model.MessageTypePrintResult, OK: true}

	case model.MessageTypeConnectPrinter:
		if err := s.ports.Connect(msg.Port); err != nil {
			return model.IPCMessage{Type: model.MessageTypeConnected, OK: false, Port: msg.Port, Error: err.Error()}
		}
		s.logger.Info("serial printer connected", zap.String("port", msg.Port))
		return model.IPCMessage{Type: model.MessageTypeConnected, OK: true, Port: msg.Port}

	case model.MessageTypeListSerialPorts:
		ports, err := s.ports.Ports()
		if err != nil {
			return errorReply(err)
		}
		return model.IPCMessage{Type: model.MessageTypeSerialPorts, Ports: ports}

	case model.MessageTypeListSystemPrinters:
		var printers []string
		if s.spooler != nil && s.spooler.Supported() {
			var err error
			if printers, err = s.spooler.Printers(ctx); err != nil {
				return errorReply(err)
			}
		}
		return model.IPCMessage{Type: model.MessageTypeSystemPrinters, Printers: printers}

	case model.MessageTypeStoreGet:
		v, found, err := s.settings.Get(msg.Key)
		if err != nil {
			return errorReply(err)
		}
		return model.IPCMessage{Type: model.MessageTypeStoreValue, Key: msg.Key, Value: v, Found: found, OK: true}

	case model.MessageTypeStoreSet:
		if err := s.settings.Set(msg.Key, msg.Value); err != nil {
			return errorReply(err)
		}
		return model.IPCMessage{Type: model.MessageTypeStoreValue, Key: msg.Key, Value: msg.Value, Found: true, OK: true}

	case model.MessageTypeStoreDelete:
		if err := s.settings.Delete(msg.Key); err != nil {
			return errorReply(err)
		}
		return model.IPCMessage{Type: model.MessageTypeStoreValue, Key: msg.Key, OK: true}
	}

	return errorReply(fmt.Errorf("unknown message type %q", msg.Type))
}

func errorReply(err error) model.IPCMessage {
	return model.IPCMessage{Type: model.MessageTypeError, Error: err.Error()}
}

// Print sends raw ESC/POS bytes to a receipt-looking spooler queue, or to the
// serial printer when there is none or the queue refuses the job.
func (s *Server) Print(ctx context.Context, data []byte) error {
	s.printMu.Lock()
	defer s.printMu.Unlock()

	if len(data) == 0 {
		return errors.New("empty print data")
	}

	var spoolErr error
	if s.spooler != nil && s.spooler.Supported() {
		printers, err := s.spooler.Printers(ctx)
		if err != nil {
			s.logger.Warn("failed to list system printers", zap.Error(err))
		}
		if name := services.PickReceiptPrinter(printers); name != "" {
			spoolErr = s.spooler.Submit(ctx, name, "ticket", "raw", data)
			if spoolErr == nil {
				s.logger.Info("printed on system printer", zap.String("printer", name), zap.Int("bytes", len(data)))
				return nil
			}
			s.logger.Warn("system printer failed, trying serial", zap.String("printer", name), zap.Error(spoolErr))
		}
	}

	saved := ""
	if s.settings != nil {
		saved, _, _ = s.settings.Get(model.KeySerialPort)
	}
	port, name, err := s.ports.Acquire(ctx, saved)
	if err != nil {
		if spoolErr != nil {
			return fmt.Errorf("%v; serial: %w", spoolErr, err)
		}
		return fmt.Errorf("no printer connected: %w", err)
	}
	if err := s.ports.Write(port, data); err != nil {
		return fmt.Errorf("serial write on %s failed: %w", name, err)
	}
	s.logger.Info("printed on serial printer", zap.String("port", name), zap.Int("bytes", len(data)))
	return nil
}
