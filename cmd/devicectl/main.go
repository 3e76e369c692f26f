// Command devicectl is a reference device session caller.
//
// This command demonstrates a complete device session client against an
// IoT Hub style broker:
//   - CLI argument parsing
//   - CBS (SAS) or X.509 auth mode selection
//   - AMQP dial + session/CBS-link handle plumbing
//   - caller-side reconnect with backoff, independent of the controller
//   - saved-option persistence across restarts
//   - comprehensive protocol logging (CBOR format)
//   - interactive command mode
//
// Usage:
//
//	devicectl [flags]
//
// Flags:
//
//	-device-id string      Device identity (required)
//	-hub-host string       IoT hub FQDN, e.g. myhub.azure-devices.net (required)
//	-auth-mode string      Auth mode: cbs, x509 (default "cbs")
//	-primary-key string    Base64 primary key, used to derive SAS tokens
//	-sas-token string      Pre-issued SAS token (overrides -primary-key)
//	-state-dir string      Directory for persisted option bags
//	-protocol-log string   File path for protocol event logging (CBOR format)
//	-log-level string      Log level: debug, info, warn, error (default "info")
//	-interactive           Enable interactive command mode
//
// Interactive Commands:
//
//	send <text>   - Queue a telemetry event
//	status        - Show aggregate, auth and messenger state
//	options       - Dump the captured option bag
//	help          - Show available commands
//	quit          - Exit devicectl
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/edgehub-go/devicesession/pkg/amqptransport"
	"github.com/edgehub-go/devicesession/pkg/authenticator"
	"github.com/edgehub-go/devicesession/pkg/clock"
	devlog "github.com/edgehub-go/devicesession/pkg/log"
	"github.com/edgehub-go/devicesession/pkg/connection"
	"github.com/edgehub-go/devicesession/pkg/messenger"
	"github.com/edgehub-go/devicesession/pkg/optionbag"
	"github.com/edgehub-go/devicesession/pkg/persistence"
	"github.com/edgehub-go/devicesession/pkg/session"
)

type cliConfig struct {
	deviceID    string
	hubHost     string
	authMode    string
	primaryKey  string
	sasToken    string
	clientCert  string
	clientKey   string
	stateDir    string
	protocolLog string
	logLevel    string
	interactive bool
}

func parseFlags() *cliConfig {
	cfg := &cliConfig{}
	flag.StringVar(&cfg.deviceID, "device-id", "", "device identity (required)")
	flag.StringVar(&cfg.hubHost, "hub-host", "", "IoT hub FQDN (required)")
	flag.StringVar(&cfg.authMode, "auth-mode", "cbs", "auth mode: cbs, x509")
	flag.StringVar(&cfg.primaryKey, "primary-key", "", "base64 primary key")
	flag.StringVar(&cfg.sasToken, "sas-token", "", "pre-issued SAS token")
	flag.StringVar(&cfg.clientCert, "client-cert", "", "client certificate PEM path (x509 auth mode)")
	flag.StringVar(&cfg.clientKey, "client-key", "", "client private key PEM path (x509 auth mode)")
	flag.StringVar(&cfg.stateDir, "state-dir", "", "directory for persisted option bags")
	flag.StringVar(&cfg.protocolLog, "protocol-log", "", "file path for protocol event logging (CBOR format)")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&cfg.interactive, "interactive", false, "enable interactive command mode")
	flag.Parse()
	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	cfg := parseFlags()
	if cfg.deviceID == "" || cfg.hubHost == "" {
		fmt.Fprintln(os.Stderr, "devicectl: -device-id and -hub-host are required")
		os.Exit(2)
	}

	slogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.logLevel),
	}))

	var loggers []devlog.Logger
	loggers = append(loggers, devlog.NewSlogAdapter(slogger))

	var protocolLogger *devlog.FileLogger
	if cfg.protocolLog != "" {
		fl, err := devlog.NewFileLogger(cfg.protocolLog)
		if err != nil {
			log.Fatalf("failed to open protocol log: %v", err)
		}
		protocolLogger = fl
		loggers = append(loggers, fl)
	}
	logger := devlog.NewMultiLogger(loggers...)

	var optStore *persistence.OptionBagStore
	if cfg.stateDir != "" {
		optStore = persistence.NewOptionBagStore(filepath.Join(cfg.stateDir, "options.cbor"))
	}

	authMode := session.AuthModeCBS
	if cfg.authMode == "x509" {
		authMode = session.AuthModeX509
	}

	// connectionID correlates every log event emitted across one dial's
	// worth of authenticator/messenger activity; a fresh one is minted
	// per process run the way a fresh AMQP connection gets a fresh
	// identity on the wire.
	connectionID := uuid.New().String()

	var auth session.Authenticator
	if authMode == session.AuthModeCBS {
		auth = authenticator.New(authenticator.Config{
			DeviceID:     cfg.deviceID,
			HubHost:      cfg.hubHost,
			ConnectionID: connectionID,
			Credentials: session.Credentials{
				SASToken:   cfg.sasToken,
				PrimaryKey: cfg.primaryKey,
			},
			Logger: logger,
			Clock:  clock.Real{},
		})
	}

	msgr := messenger.New(messenger.Config{
		DeviceID:     cfg.deviceID,
		ConnectionID: connectionID,
		Logger:       logger,
		Clock:        clock.Real{},
	})

	shell := newShell()

	ctrl, err := session.NewController(session.DeviceConfig{
		DeviceID:       cfg.deviceID,
		IoTHubHostFQDN: cfg.hubHost,
		AuthMode:       authMode,
		Credentials: session.Credentials{
			SASToken:   cfg.sasToken,
			PrimaryKey: cfg.primaryKey,
		},
		OnStateChanged: func(_ any, previous, new session.DeviceState) {
			shell.printf("state: %s -> %s", previous, new)
			if new.IsError() {
				shell.printf("entered error state, caller should Stop/restart")
			}
		},
	}, auth, msgr)
	if err != nil {
		log.Fatalf("failed to build controller: %v", err)
	}

	if optStore != nil {
		if bag, err := optStore.Load(); err != nil {
			slogger.Warn("failed to load saved options", "error", err)
		} else if bag != nil {
			restoreSavedOptions(ctrl, bag)
		}
	}

	tlsCfg := &amqptransport.TLSConfig{ServerName: cfg.hubHost}
	if authMode == session.AuthModeX509 {
		if cfg.clientCert == "" || cfg.clientKey == "" {
			log.Fatalf("x509 auth mode requires -client-cert and -client-key")
		}
		cert, err := tls.LoadX509KeyPair(cfg.clientCert, cfg.clientKey)
		if err != nil {
			log.Fatalf("failed to load client certificate: %v", err)
		}
		tlsCfg.ClientCertificate = &cert
	}
	dialTLSConfig, err := amqptransport.NewClientTLSConfig(tlsCfg)
	if err != nil {
		log.Fatalf("failed to build TLS config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sess *amqptransport.Session
	dialFn := func(ctx context.Context) error {
		if ctrl.State() != session.DeviceStopped {
			// A previous attempt left the controller in an ERROR_*
			// state; it must return to STOPPED before StartAsync will
			// accept a fresh session handle.
			if err := ctrl.Stop(); err != nil {
				return fmt.Errorf("stop before redial: %w", err)
			}
		}
		if sess != nil {
			_ = sess.Close(ctx)
			sess = nil
		}

		s, err := amqptransport.Dial(ctx, cfg.hubHost, dialTLSConfig)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}

		var cbsLink *amqptransport.CBSLink
		if authMode == session.AuthModeCBS {
			cbsLink, err = s.OpenCBSLink(ctx)
			if err != nil {
				_ = s.Close(ctx)
				return fmt.Errorf("open cbs link: %w", err)
			}
		}

		if err := ctrl.StartAsync(s, cbsLink); err != nil {
			_ = s.Close(ctx)
			return fmt.Errorf("start session: %w", err)
		}
		sess = s
		return nil
	}

	sup := connection.NewSupervisor(dialFn)
	sup.OnStateChange(func(prev, next connection.LinkState) {
		shell.printf("link: %s -> %s", prev, next)
	})
	sup.OnRedialing(func(attempt int, delay time.Duration) {
		shell.printf("redialing (attempt %d) in %s", attempt, delay)
	})
	sup.StartRedialLoop()
	defer sup.Close()

	if err := sup.Dial(ctx); err != nil {
		log.Fatalf("initial dial failed: %v", err)
	}

	// DoWork drives the single-threaded cooperative state machine: this
	// is the only goroutine that ever calls into ctrl, auth or msgr.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ctrl.DoWork()
				if ctrl.State().IsError() {
					sup.NotifyLinkLost()
				}
			}
		}
	}()

	if cfg.interactive {
		log.SetOutput(shell.stdout())
		shell.bindController(ctrl, optStore)
		go shell.run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slogger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	cancel()
	<-pumpDone

	if optStore != nil {
		if bag, err := ctrl.RetrieveOptions(); err == nil {
			saveCapturedOptions(optStore, bag)
		}
	}

	if ctrl.State() != session.DeviceStopped {
		if err := ctrl.Stop(); err != nil {
			slogger.Warn("error stopping controller", "error", err)
		}
	}
	ctrl.Destroy()

	if sess != nil {
		_ = sess.Close(context.Background())
	}
	if protocolLogger != nil {
		_ = protocolLogger.Close()
	}
	shell.close()
}

// restoreSavedOptions re-applies a previously captured option bag to the
// controller's children across a restart.
func restoreSavedOptions(ctrl *session.Controller, bag *optionbag.Bag) {
	if err := ctrl.SetOption(session.OptionSavedDeviceOptions, bag); err != nil {
		log.Printf("failed to restore saved options: %v", err)
	}
}

func saveCapturedOptions(store *persistence.OptionBagStore, bag *session.OptionBag) {
	if bag == nil {
		return
	}
	if err := store.Save(bag); err != nil {
		log.Printf("failed to save options: %v", err)
	}
}
