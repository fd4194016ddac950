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

package main

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ZaparooProject/go-tropic"
)

// tropicctl.toml key mapping
type fileConfig struct {
	Transport     string `toml:"transport"`
	Device        string `toml:"device"`
	TrustAnchor   string `toml:"trust_anchor"`
	Timeout       string `toml:"timeout"`
	SPISpeedHz    int64  `toml:"spi_speed_hz"`
	RetryAttempts int    `toml:"retry_attempts"`
	Debug         bool   `toml:"debug"`
}

type config struct {
	transport   tropic.TransportType
	device      string
	trustAnchor string
	timeout     time.Duration
	spiSpeedHz  int64
	retries     int
	debug       bool
}

func defaultConfig() *config {
	return &config{
		transport: tropic.TransportSPI,
		device:    "/dev/spidev0.0",
		timeout:   tropic.DefaultTimeout,
		retries:   tropic.DefaultRetryConfig().MaxAttempts,
	}
}

// loadConfig overlays the TOML file at path on the defaults. Relative trust
// anchor paths resolve against the config file's directory.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("transport") {
		cfg.transport = tropic.TransportType(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("device") {
		cfg.device = strings.TrimSpace(raw.Device)
	}
	if meta.IsDefined("trust_anchor") {
		anchor := strings.TrimSpace(raw.TrustAnchor)
		if anchor != "" && !filepath.IsAbs(anchor) {
			anchor = filepath.Join(filepath.Dir(path), anchor)
		}
		cfg.trustAnchor = anchor
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return nil, fmt.Errorf("load config: timeout: %w", err)
		}
		cfg.timeout = d
	}
	if meta.IsDefined("spi_speed_hz") {
		cfg.spiSpeedHz = raw.SPISpeedHz
	}
	if meta.IsDefined("retry_attempts") {
		cfg.retries = raw.RetryAttempts
	}
	if meta.IsDefined("debug") {
		cfg.debug = raw.Debug
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	switch c.transport {
	case tropic.TransportSPI, tropic.TransportUSBDongle:
	default:
		return fmt.Errorf("unsupported transport %q (expected %s or %s)",
			c.transport, tropic.TransportSPI, tropic.TransportUSBDongle)
	}
	if c.device == "" {
		return errors.New("empty device path")
	}
	if c.timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.timeout)
	}
	if c.retries < 0 {
		return fmt.Errorf("retry attempts must not be negative, got %d", c.retries)
	}
	if c.spiSpeedHz < 0 {
		return fmt.Errorf("SPI speed must not be negative, got %d", c.spiSpeedHz)
	}
	return nil
}

// loadTrustAnchors reads every CERTIFICATE block from a PEM file
func loadTrustAnchors(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read trust anchors: %w", err)
	}

	var anchors []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse trust anchor: %w", err)
		}
		anchors = append(anchors, cert)
	}
	if len(anchors) == 0 {
		return nil, fmt.Errorf("no certificates in %s", path)
	}
	return anchors, nil
}
