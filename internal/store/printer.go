package store

import (
	"fmt"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
)

// LoadPrinterConfig reads the printer selection. It returns nil, nil when the
// user has not chosen a printer type yet.
func LoadPrinterConfig(s Store) (*model.PrinterConfiguration, error) {
	raw, ok, err := s.Get(model.KeyPrinterType)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", model.KeyPrinterType, err)
	}
	typ := model.PrinterType(raw)
	if !ok || !typ.Valid() {
		return nil, nil
	}

	cfg := &model.PrinterConfiguration{Type: typ}
	if cfg.SerialPort, _, err = s.Get(model.KeySerialPort); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", model.KeySerialPort, err)
	}
	if cfg.SystemPrinter, _, err = s.Get(model.KeySystemPrinter); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", model.KeySystemPrinter, err)
	}
	return cfg, nil
}

// SavePrinterConfig writes the printer type and the field that goes with it.
// The other field is left untouched so switching back keeps the old choice.
func SavePrinterConfig(s Store, cfg model.PrinterConfiguration) error {
	if !cfg.Type.Valid() {
		return fmt.Errorf("invalid printer type %q", cfg.Type)
	}
	if err := s.Set(model.KeyPrinterType, string(cfg.Type)); err != nil {
		return err
	}
	switch cfg.Type {
	case model.PrinterTypeSerial:
		return s.Set(model.KeySerialPort, cfg.SerialPort)
	default:
		return s.Set(model.KeySystemPrinter, cfg.SystemPrinter)
	}
}

// RememberSerialPort records the port the user just picked in a prompt.
func RememberSerialPort(s Store, port string) error {
	return s.Set(model.KeySerialPort, port)
}
