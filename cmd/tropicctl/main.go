// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command tropicctl talks to a secure element over SPI or a USB bridge: it
// reads the device certificate, opens secure sessions and runs the chip's
// commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-tropic"
	"github.com/ZaparooProject/go-tropic/transport/spi"
	"github.com/ZaparooProject/go-tropic/transport/usbdongle"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"
)

// app carries the resolved configuration into every subcommand
type app struct {
	cfg         *config
	openBus     func(cfg *config) (tropic.Bus, error)
	configPath  string
	transport   string
	device      string
	trustAnchor string
	sessionLog  string
	debug       bool
}

func newApp() *app {
	return &app{openBus: openBus}
}

func openBus(cfg *config) (tropic.Bus, error) {
	switch cfg.transport {
	case tropic.TransportSPI:
		bus, err := spi.New(cfg.device, physic.Frequency(cfg.spiSpeedHz)*physic.Hertz)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return bus, nil
	case tropic.TransportUSBDongle:
		bus, err := usbdongle.New(cfg.device)
		if err != nil {
			return nil, fmt.Errorf("failed to create USB dongle transport: %w", err)
		}
		if err := bus.SetTimeout(cfg.timeout); err != nil {
			_ = bus.Close()
			return nil, fmt.Errorf("failed to configure USB dongle transport: %w", err)
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.transport)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tropicctl",
		Short:         "Secure element command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.resolveConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "TOML config file")
	flags.StringVar(&a.transport, "transport", "", "bus: spi or usb-dongle")
	flags.StringVarP(&a.device, "device", "d", "", "device path (e.g. /dev/spidev0.0, /dev/ttyACM0)")
	flags.StringVar(&a.trustAnchor, "trust-anchor", "", "PEM file of certificates that must have signed the device certificate")
	flags.BoolVar(&a.debug, "debug", false, "enable debug output")
	flags.StringVar(&a.sessionLog, "session-log", "", "write a debug session log into this directory")

	root.AddCommand(
		infoCmd(a),
		handshakeCmd(a),
		pingCmd(a),
		randomCmd(a),
		keyCmd(a),
		signCmd(a),
		counterCmd(a),
		sleepCmd(a),
		rebootCmd(a),
	)
	return root
}

// resolveConfig loads the config file, if any, and applies flag overrides
func (a *app) resolveConfig(cmd *cobra.Command) error {
	cfg := defaultConfig()
	if a.configPath != "" {
		loaded, err := loadConfig(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.transport = tropic.TransportType(a.transport)
	}
	if flags.Changed("device") {
		cfg.device = a.device
	}
	if flags.Changed("trust-anchor") {
		cfg.trustAnchor = a.trustAnchor
	}
	if flags.Changed("debug") {
		cfg.debug = a.debug
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	if cfg.debug {
		tropic.SetDebugEnabled(true)
	}
	if a.sessionLog != "" {
		path, err := tropic.InitSessionLog(a.sessionLog)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Session log: %s\n", path)
	}
	a.cfg = cfg
	return nil
}

func (a *app) handleOptions() ([]tropic.Option, error) {
	retry := tropic.DefaultRetryConfig()
	retry.MaxAttempts = a.cfg.retries
	opts := []tropic.Option{
		tropic.WithRetryConfig(retry),
		tropic.WithTimeout(a.cfg.timeout),
	}
	if a.cfg.trustAnchor != "" {
		anchors, err := loadTrustAnchors(a.cfg.trustAnchor)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tropic.WithTrustAnchors(anchors...))
	}
	return opts, nil
}

// withHandle opens the bus, optionally establishes a secure session, runs fn
// and tears everything down again.
func (a *app) withHandle(ctx context.Context, secure bool, fn func(h *tropic.Handle) error) error {
	opts, err := a.handleOptions()
	if err != nil {
		return err
	}
	bus, err := a.openBus(a.cfg)
	if err != nil {
		return err
	}
	h, err := tropic.New(bus, opts...)
	if err != nil {
		_ = bus.Close()
		return fmt.Errorf("failed to create handle: %w", err)
	}
	defer func() {
		if h.State() == tropic.SessionOn {
			// Fresh context: the command's may already be cancelled
			abortCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := h.SessionAbort(abortCtx); err != nil {
				tropic.Debugf("session abort failed: %v", err)
			}
			cancel()
		}
		if err := h.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	if secure {
		if err := h.StartSession(ctx); err != nil {
			return fmt.Errorf("failed to establish secure session: %w", err)
		}
	}
	return fn(h)
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(newApp()).ExecuteContext(ctx)
	if err != nil {
		tropic.Debugf("command failed: %v", err)
	}
	if closeErr := tropic.CloseSessionLog(); closeErr != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", closeErr)
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v (%s)\n", err, tropic.CodeOf(err))
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
