package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/escpos"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/services"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/store"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/utils"
	"go.uber.org/zap"
)

const (
	appName    = "cafe-print"
	appVersion = "1.0.0"
	configFile = "config/config.toml"
)

const usage = `Usage: cafe-print <command> [flags]

Commands:
  invoice -order order.json   print an invoice
  ticket  -order order.json   print the client ticket of a table order
  table   -order order.json   print the client and agent tickets of a table order
  report  -report report.json print a revenue report
  test                        print a test pattern
  configure                   choose the printer
  ports                       list serial ports, system printers and capabilities
`

// --- Main ---

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = context.WithValue(ctx, model.ContextAppName, appName)
	ctx = context.WithValue(ctx, model.ContextAppVersion, appVersion)
	ctx = context.WithValue(ctx, model.ContextConfigFile, configFile)

	config, err := utils.LoadOrSetupConfig(ctx, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		return 1
	}

	logger, err := newLogger(config.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Logger error:", err)
		return 1
	}
	defer logger.Sync()

	a, err := newApp(ctx, config, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.Close()

	if err := a.runCommand(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// --- Application wiring ---

type app struct {
	config     model.Config
	logger     *zap.Logger
	settings   store.Store
	host       *services.HostBackend
	spooler    services.Spooler
	prompter   *services.TerminalPrompter
	ports      *services.PortManager
	dispatcher *services.Dispatcher
	layout     escpos.Layout
	out        io.Writer
}

func newApp(ctx context.Context, config model.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		config:   config,
		logger:   logger,
		spooler:  services.CUPSSpooler{},
		prompter: services.NewTerminalPrompter(os.Stdin, os.Stdout),
		layout:   escpos.NewLayout(config.Shop),
		out:      os.Stdout,
	}

	if config.HostURL != "" {
		a.host = services.NewHostBackend(config.HostURL, logger.Named("host"))
		if a.host.Available(ctx) {
			a.settings = services.NewHostStore(a.host)
		} else {
			logger.Warn("host not reachable, using local settings", zap.String("url", config.HostURL))
		}
	}
	if a.settings == nil {
		bolt, err := store.OpenBolt(config.SettingsPath)
		if err != nil {
			return nil, err
		}
		a.settings = bolt
	}

	var surface services.Surface
	var renderer services.PDFRenderer
	if ok, chromePath := utils.FindChrome(config.ChromePath); ok {
		chrome := services.NewChromeSurface(chromePath, logger.Named("chrome"))
		surface = chrome
		if config.SystemPDF {
			renderer = chrome
		}
	} else {
		logger.Warn("chrome not found, preview disabled")
	}

	a.ports = services.NewPortManager(a.settings, a.prompter, logger.Named("serial"))
	opts := []services.Option{
		services.WithSerial(services.NewSerialBackend(a.ports, logger.Named("serial"))),
		services.WithSystem(services.NewSystemBackend(a.spooler, renderer, logger.Named("system"))),
		services.WithPreview(services.NewPreviewBackend(surface, config.PreviewDir, config.Interactive, logger.Named("preview"))),
		services.WithLogger(logger.Named("dispatcher")),
	}
	if a.host != nil {
		opts = append(opts, services.WithHost(a.host))
	}
	a.dispatcher = services.NewDispatcher(a.settings, opts...)
	return a, nil
}

func (a *app) Close() {
	a.ports.Close()
	if a.host != nil {
		a.host.Close()
	}
	if err := a.settings.Close(); err != nil {
		a.logger.Warn("closing settings", zap.Error(err))
	}
}

func (a *app) runCommand(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	orderFile := fs.String("order", "", "order JSON file, - for stdin")
	reportFile := fs.String("report", "", "report JSON file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch cmd {
	case "invoice", "ticket", "table":
		var order model.Order
		if err := readJSON(*orderFile, &order); err != nil {
			return err
		}
		return a.printOrder(ctx, cmd, order)

	case "report":
		var report model.Report
		if err := readJSON(*reportFile, &report); err != nil {
			return err
		}
		if report.GeneratedAt.IsZero() {
			report.GeneratedAt = time.Now()
		}
		doc, err := a.layout.Report(report)
		if err != nil {
			return err
		}
		return a.print(ctx, model.NewJob(model.JobReport, doc.Bytes()))

	case "test":
		doc, err := a.layout.TestPattern()
		if err != nil {
			return err
		}
		return a.print(ctx, model.NewJob(model.JobTestPattern, doc.Bytes()))

	case "configure":
		return a.configure(ctx)

	case "ports":
		return a.listDevices(ctx)
	}

	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) printOrder(ctx context.Context, cmd string, order model.Order) error {
	switch cmd {
	case "invoice":
		doc, err := a.layout.Invoice(order)
		if err != nil {
			return err
		}
		return a.print(ctx, model.NewJob(model.JobInvoice, doc.Bytes()))

	case "ticket":
		doc, err := a.layout.TableTicket(order)
		if err != nil {
			return err
		}
		return a.print(ctx, model.NewJob(model.JobTicket, doc.Bytes()))
	}

	client, agent, err := a.layout.TableTicketPair(order)
	if err != nil {
		return err
	}
	return a.print(ctx, model.NewJob(model.JobTableTicket, client.Bytes(), agent.Bytes()))
}

// print dispatches the job. When no printer is configured it opens the
// configuration prompt and tries once more.
func (a *app) print(ctx context.Context, job model.PrintJob) error {
	res := a.dispatcher.Print(ctx, job)
	if res.Status == model.StatusNotConfigured {
		fmt.Fprintln(a.out, res.UserMessage())
		if err := a.configure(ctx); err != nil {
			return err
		}
		res = a.dispatcher.Print(ctx, job)
	}

	if res.OK() {
		fmt.Fprintf(a.out, "%s (%s)\n", res.UserMessage(), res.Backend)
		return nil
	}
	a.logger.Debug("job failed", zap.String("job", res.JobID.String()), zap.String("status", string(res.Status)), zap.Error(res.Err))
	if res.Status == model.StatusTransportError {
		return fmt.Errorf("%s\nRun `%s configure` to choose another printer.", res.UserMessage(), appName)
	}
	return errors.New(res.UserMessage())
}

func (a *app) devices(ctx context.Context) ([]model.PortInfo, []string) {
	if a.host != nil && a.host.Available(ctx) {
		ports, err := a.host.ListSerialPorts(ctx)
		if err != nil {
			a.logger.Warn("host port listing failed", zap.Error(err))
		}
		printers, err := a.host.ListSystemPrinters(ctx)
		if err != nil {
			a.logger.Warn("host printer listing failed", zap.Error(err))
		}
		return ports, printers
	}

	ports, err := a.ports.Ports()
	if err != nil {
		a.logger.Warn("serial port listing failed", zap.Error(err))
	}
	var printers []string
	if a.spooler.Supported() {
		if printers, err = a.spooler.Printers(ctx); err != nil {
			a.logger.Warn("system printer listing failed", zap.Error(err))
		}
	}
	return ports, printers
}

func (a *app) configure(ctx context.Context) error {
	ports, printers := a.devices(ctx)
	cfg, err := a.prompter.ConfigurePrinter(ctx, ports, printers)
	if err != nil {
		return err
	}
	if err := store.SavePrinterConfig(a.settings, cfg); err != nil {
		return fmt.Errorf("failed to save printer configuration: %w", err)
	}

	if cfg.Type == model.PrinterTypeSerial {
		a.ports.Invalidate()
		if a.host != nil && a.host.Available(ctx) {
			if err := a.host.ConnectPrinter(ctx, cfg.SerialPort); err != nil {
				a.logger.Warn("host could not open the port", zap.String("port", cfg.SerialPort), zap.Error(err))
			}
		}
	}
	fmt.Fprintf(a.out, "Printer saved: %s %s%s\n", cfg.Type, cfg.SerialPort, cfg.SystemPrinter)
	return nil
}

func (a *app) listDevices(ctx context.Context) error {
	ports, printers := a.devices(ctx)

	fmt.Fprintln(a.out, "Serial ports:")
	if len(ports) == 0 {
		fmt.Fprintln(a.out, "  (none)")
	}
	for _, p := range ports {
		fmt.Fprintf(a.out, "  %s\n", p.Label)
	}

	fmt.Fprintln(a.out, "System printers:")
	if len(printers) == 0 {
		fmt.Fprintln(a.out, "  (none)")
	}
	for _, p := range printers {
		marker := ""
		if p == services.PickReceiptPrinter(printers) {
			marker = " (receipt)"
		}
		fmt.Fprintf(a.out, "  %s%s\n", p, marker)
	}

	if cfg, err := store.LoadPrinterConfig(a.settings); err == nil && cfg != nil {
		fmt.Fprintf(a.out, "Configured: %s %s%s\n", cfg.Type, cfg.SerialPort, cfg.SystemPrinter)
	} else {
		fmt.Fprintln(a.out, "Configured: none")
	}

	fmt.Fprintln(a.out)
	utils.PrintSystemReport(a.out, utils.DetectSystem(a.config.ChromePath))
	return nil
}

func readJSON(path string, v any) error {
	if path == "" {
		return fmt.Errorf("missing input file")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
