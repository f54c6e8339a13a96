package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/escpos"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// --- Preview page ---

type PreviewPage struct {
	Title     string
	Text      string
	AutoPrint bool
}

var previewFuncs = template.FuncMap{
	"lines": func(s string) []string { return strings.Split(s, "\n") },
}

var previewTemplate = template.Must(template.New("preview").Funcs(previewFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { margin: 0; background: #eee; font-family: "Courier New", monospace; }
  .controls { padding: 8px; text-align: center; }
  .controls button { font-size: 14px; margin: 0 4px; padding: 6px 16px; }
  .ticket { width: 72mm; margin: 0 auto 16px; padding: 4mm; background: #fff; font-size: 12px; line-height: 1.35; text-align: center; }
  .ticket div { white-space: pre-wrap; min-height: 1em; }
  @page { size: 80mm auto; margin: 0; }
  @media print { body { background: #fff; } .controls { display: none; } .ticket { margin: 0; } }
</style>
</head>
<body>
<div class="controls">
  <button id="print" onclick="window.print()">Imprimer</button>
  <button id="close" onclick="window.__closed = true; window.close()">Fermer</button>
</div>
<div class="ticket">{{range lines .Text}}<div>{{.}}</div>{{end}}</div>
{{if .AutoPrint}}<script>window.addEventListener('load', function () { setTimeout(function () { window.print(); }, 300); });</script>{{end}}
</body>
</html>`))

// RenderPreviewHTML renders the preview page for already cleaned text.
func RenderPreviewHTML(p PreviewPage) (string, error) {
	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to execute preview template: %w", err)
	}
	return buf.String(), nil
}

// Helper for encoding HTML into a data URL
func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// --- Browser surface ---

// PDFRenderer turns a preview page into PDF bytes.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, p PreviewPage) ([]byte, error)
}

// Surface shows a preview page on screen and returns when the user closes it.
type Surface interface {
	PDFRenderer
	Show(ctx context.Context, p PreviewPage) error
}

// ChromeSurface renders and shows previews through a local Chrome.
type ChromeSurface struct {
	ExecPath string
	logger   *zap.Logger
}

func NewChromeSurface(execPath string, logger *zap.Logger) *ChromeSurface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeSurface{ExecPath: execPath, logger: logger}
}

func (c *ChromeSurface) allocator(ctx context.Context, headless bool) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
	)
	if !headless {
		opts = append(opts,
			chromedp.Flag("headless", false),
			chromedp.Flag("hide-scrollbars", false),
			chromedp.WindowSize(420, 720),
		)
	}
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	cdpCtx, cancel := chromedp.NewContext(allocCtx)
	return cdpCtx, func() {
		cancel()
		allocCancel()
	}
}

func (c *ChromeSurface) RenderPDF(ctx context.Context, p PreviewPage) ([]byte, error) {
	p.AutoPrint = false
	html, err := RenderPreviewHTML(p)
	if err != nil {
		return nil, err
	}

	cdpCtx, cancel := c.allocator(ctx, true)
	defer cancel()

	var pdf []byte
	err = chromedp.Run(cdpCtx,
		chromedp.Navigate("data:text/html,"+urlEncode(html)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed rendering PDF: %w", err)
	}
	return pdf, nil
}

// Show opens a visible window, lets the page trigger the print dialog and
// waits until the user closes it or ctx ends.
func (c *ChromeSurface) Show(ctx context.Context, p PreviewPage) error {
	p.AutoPrint = true
	html, err := RenderPreviewHTML(p)
	if err != nil {
		return err
	}

	cdpCtx, cancel := c.allocator(ctx, false)
	defer cancel()

	if err := chromedp.Run(cdpCtx,
		chromedp.Navigate("data:text/html,"+urlEncode(html)),
		chromedp.WaitReady("body"),
	); err != nil {
		return fmt.Errorf("failed opening preview: %w", err)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		var closed bool
		if err := chromedp.Run(cdpCtx, chromedp.Evaluate(`window.__closed === true`, &closed)); err != nil {
			// Window closed by the user.
			c.logger.Debug("preview window gone", zap.Error(err))
			return nil
		}
		if closed {
			return nil
		}
	}
}

// --- Preview backend ---

// PreviewBackend is the last resort when no printer path works: it writes a
// PDF of the cleaned ticket to a directory and, when interactive, opens it in
// a browser window with print and close controls.
type PreviewBackend struct {
	surface     Surface
	dir         string
	interactive bool
	logger      *zap.Logger
}

func NewPreviewBackend(surface Surface, dir string, interactive bool, logger *zap.Logger) *PreviewBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreviewBackend{surface: surface, dir: dir, interactive: interactive, logger: logger}
}

func (b *PreviewBackend) Name() string { return BackendPreview }

func (b *PreviewBackend) Available(ctx context.Context) bool {
	return b.surface != nil
}

func (b *PreviewBackend) Send(ctx context.Context, req Request) error {
	p := PreviewPage{Title: jobTitle(req), Text: escpos.Clean(req.Data)}

	if b.dir != "" {
		pdf, err := b.surface.RenderPDF(ctx, p)
		if err != nil {
			return &TransportError{Backend: BackendPreview, Err: err}
		}
		if err := os.MkdirAll(b.dir, 0755); err != nil {
			return &TransportError{Backend: BackendPreview, Err: err}
		}
		path := filepath.Join(b.dir, p.Title+".pdf")
		if err := os.WriteFile(path, pdf, 0644); err != nil {
			return &TransportError{Backend: BackendPreview, Err: fmt.Errorf("failed saving preview: %w", err)}
		}
		b.logger.Info("preview saved", zap.String("path", path))
	}

	if b.interactive {
		if err := b.surface.Show(ctx, p); err != nil {
			return &TransportError{Backend: BackendPreview, Err: err}
		}
	}
	return nil
}
