package services

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/escpos"
	"go.uber.org/zap"
)

// Spooler is the OS print queue.
type Spooler interface {
	Supported() bool
	Printers(ctx context.Context) ([]string, error)
	// Submit queues data on the named printer. contentType is "raw" for ESC/POS
	// bytes or "pdf" for a rendered document.
	Submit(ctx context.Context, printer, title, contentType string, data []byte) error
}

// CUPSSpooler drives the CUPS command line tools.
type CUPSSpooler struct{}

func (CUPSSpooler) Supported() bool {
	_, err := exec.LookPath("lp")
	return err == nil
}

// Printers lists queue names from `lpstat -e`.
func (CUPSSpooler) Printers(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "lpstat", "-e").Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			// No destinations configured
			return nil, nil
		}
		return nil, fmt.Errorf("lpstat -e failed: %w", err)
	}

	var printers []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			printers = append(printers, name)
		}
	}
	return printers, scanner.Err()
}

func (CUPSSpooler) Submit(ctx context.Context, printer, title, contentType string, data []byte) error {
	args := []string{"-d", printer, "-t", title}
	if contentType == "raw" {
		args = append(args, "-o", "raw")
	}
	cmd := exec.CommandContext(ctx, "lp", args...)
	cmd.Stdin = bytes.NewReader(data)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("lp -d %s failed: %w: %s", printer, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ReceiptPrinterHints are substrings of queue names that usually belong to a
// receipt printer rather than an office printer.
var ReceiptPrinterHints = []string{"thermal", "receipt", "ticket", "generic", "text only"}

// PickReceiptPrinter returns the first queue whose name looks like a receipt
// printer, or "" when none does.
func PickReceiptPrinter(printers []string) string {
	for _, p := range printers {
		lower := strings.ToLower(p)
		for _, hint := range ReceiptPrinterHints {
			if strings.Contains(lower, hint) {
				return p
			}
		}
	}
	return ""
}

// SystemBackend submits tickets to a named OS printer without a dialog. When
// a PDF renderer is set, the cleaned ticket text is printed as a PDF instead
// of raw bytes, for queues that have a real driver behind them.
type SystemBackend struct {
	spooler  Spooler
	renderer PDFRenderer
	logger   *zap.Logger
}

func NewSystemBackend(spooler Spooler, renderer PDFRenderer, logger *zap.Logger) *SystemBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemBackend{spooler: spooler, renderer: renderer, logger: logger}
}

func (b *SystemBackend) Name() string { return BackendSystem }

func (b *SystemBackend) Available(ctx context.Context) bool {
	return b.spooler != nil && b.spooler.Supported()
}

func (b *SystemBackend) Send(ctx context.Context, req Request) error {
	if req.Config == nil || req.Config.SystemPrinter == "" {
		return &TransportError{Backend: BackendSystem, Err: fmt.Errorf("no system printer selected")}
	}
	printer := req.Config.SystemPrinter
	title := jobTitle(req)

	data, contentType := req.Data, "raw"
	if b.renderer != nil {
		pdf, err := b.renderer.RenderPDF(ctx, PreviewPage{Title: title, Text: escpos.Clean(req.Data)})
		if err != nil {
			return &TransportError{Backend: BackendSystem, Err: err}
		}
		data, contentType = pdf, "pdf"
	}

	if err := b.spooler.Submit(ctx, printer, title, contentType, data); err != nil {
		return &TransportError{Backend: BackendSystem, Err: err}
	}
	b.logger.Info("submitted to spooler", zap.String("printer", printer), zap.String("type", contentType), zap.Int("bytes", len(data)))
	return nil
}

func jobTitle(req Request) string {
	suffix := ""
	if req.Copy == 1 {
		suffix = "-agent"
	}
	return fmt.Sprintf("%s-%s%s", req.Kind, req.JobID.String()[:8], suffix)
}
