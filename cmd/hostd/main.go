package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/host"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/services"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/store"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/utils"
	"github.com/kardianos/service"
	"go.uber.org/zap"
)

const appVersion = "1.0.0"

// program implements service.Interface
type program struct {
	configFile string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (p *program) Start(s service.Service) error {
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})
	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)
	p.err = serve(p.ctx, p.configFile)
	if p.err != nil {
		fmt.Fprintln(os.Stderr, "hostd:", p.err)
	}
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-time.After(10 * time.Second):
		return errors.New("host did not stop in time")
	}
	return nil
}

func serviceConfig(configFile string) *service.Config {
	wd, _ := os.Getwd()
	return &service.Config{
		Name:             "CafeTicketHost",
		DisplayName:      "Café Ticket Printer Host",
		Description:      "Owns the receipt printers of this till and serves print requests from the POS.",
		WorkingDirectory: wd,
		Arguments:        []string{"-config", configFile, "run"},
		Option: service.KeyValue{
			"StartType": "automatic",
			"OnFailure": "restart",
			"Restart":   "on-failure",
			"RunAtLoad": true,
			"KeepAlive": true,
		},
	}
}

func main() {
	configFile := flag.String("config", "config/config.toml", "config file")
	flag.Parse()

	prg := &program{configFile: *configFile}
	svc, err := service.New(prg, serviceConfig(*configFile))
	if err != nil {
		fmt.Fprintln(os.Stderr, "service setup failed:", err)
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	switch cmd {
	case "", "run":
		if err := svc.Run(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if prg.err != nil {
			os.Exit(1)
		}
	case "install", "uninstall", "start", "stop", "restart":
		if err := service.Control(svc, cmd); err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", cmd, err)
			os.Exit(1)
		}
		fmt.Printf("Service %s: done\n", cmd)
	default:
		fmt.Fprintf(os.Stderr, "usage: hostd [-config file] [run|install|uninstall|start|stop|restart]\n")
		os.Exit(2)
	}
}

func loadConfig(path string) (model.Config, error) {
	config, err := utils.LoadConfig(path, appVersion)
	if errors.Is(err, os.ErrNotExist) {
		return utils.DefaultConfig(appVersion), nil
	}
	return config, err
}

// serve runs the IPC endpoint until ctx is cancelled.
func serve(ctx context.Context, configFile string) error {
	config, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	level, err := zap.ParseAtomicLevel(config.LogLevel)
	if err != nil {
		return err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer logger.Sync()

	settings, err := store.OpenBolt(config.SettingsPath)
	if err != nil {
		return err
	}
	defer settings.Close()

	ports := services.NewPortManager(settings, nil, logger.Named("serial"))
	defer ports.Close()

	srv := host.NewServer(settings, ports, services.CUPSSpooler{}, logger.Named("ipc"))
	httpSrv := &http.Server{
		Addr:              config.Host.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("host listening", zap.String("addr", config.Host.Listen), zap.String("version", config.AppVersion))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("host shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}
