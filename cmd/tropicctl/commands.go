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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-tropic"
	"github.com/spf13/cobra"
)

func parseCurve(s string) (tropic.ECCCurve, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "ed25519":
		return tropic.CurveEd25519, nil
	case "p256":
		return tropic.CurveP256, nil
	default:
		return 0, fmt.Errorf("unknown curve %q (expected ed25519 or p256)", s)
	}
}

func originName(o tropic.KeyOrigin) string {
	switch o {
	case tropic.KeyOriginGenerated:
		return "generated"
	case tropic.KeyOriginStored:
		return "stored"
	default:
		return fmt.Sprintf("unknown(0x%02X)", byte(o))
	}
}

func infoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the device certificate and chip ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withHandle(cmd.Context(), false, func(h *tropic.Handle) error {
				cert, err := h.GetCertificate(cmd.Context())
				if err != nil {
					return err
				}
				id, err := h.ChipID(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "Subject:    %s\n", cert.Subject)
				_, _ = fmt.Fprintf(out, "Serial:     %s\n", cert.SerialNumber)
				_, _ = fmt.Fprintf(out, "Valid:      %s - %s\n",
					cert.NotBefore.Format("2006-01-02"), cert.NotAfter.Format("2006-01-02"))
				_, _ = fmt.Fprintf(out, "Public key: %X\n", []byte(cert.PublicKey))
				_, _ = fmt.Fprintf(out, "Chip ID:    %X\n", id)
				return nil
			})
		},
	}
}

func handshakeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "handshake",
		Short: "Establish a secure session and close it again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withHandle(cmd.Context(), true, func(h *tropic.Handle) error {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Secure session established with %s\n", h.Certificate().Subject)
				return nil
			})
		},
	}
}

func pingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping [message]",
		Short: "Echo a message through the secure channel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := "ping"
			if len(args) == 1 {
				msg = args[0]
			}
			return a.withHandle(cmd.Context(), true, func(h *tropic.Handle) error {
				echo, err := h.Ping(cmd.Context(), []byte(msg))
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(echo))
				return nil
			})
		},
	}
}

func randomCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "random <bytes>",
		Short: "Read random bytes from the chip's generator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid byte count %q: %w", args[0], err)
			}
			return a.withHandle(cmd.Context(), true, func(h *tropic.Handle) error {
				out, err := h.RandomValueGet(cmd.Context(), n)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%X\n", out)
				return nil
			})
		},
	}
}

func keyCmd(a *app) *cobra.Command {
	var (
		slot  int
		curve string
		key   string
	)
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage ECC key slots",
	}
	cmd.PersistentFlags().IntVarP(&slot, "slot", "s", 0, "ECC key slot (0-31)")

	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a key in a slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := tropic.NewECCSlot(slot)
			if err != nil {
				return err
			}
			c, err := parseCurve(curve)
			if err != nil {
				return err
			}
			return a.withHandle(cmd.Context(), true, func(h *tropic.Handle) error {
				return h.ECCKeyGenerate(cmd.Context(), s, c)
			})
		},
	}
	generate.Flags().StringVar(&curve, "curve", "ed25519", "curve: ed25519 or p256")

	store := &cobra.Command{
		Use:   "store",
		Short: "Store a private key in a slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := tropic.NewECCSlot(slot)
			if err != nil {
				return err
			}
			c, err := parseCurve(curve)
			if err != nil {
				return err
			}
			priv, err := hex.DecodeString(key)
			if err != nil {
				return fmt.Errorf("invalid key hex: %w", err)
			}
			defer clear(priv)
			return a.withHandle(cmd.Context(), true, func(h *tropic.Handle) error {
				return h.ECCKeyStore(cmd.Context(), s, c, priv)
			})
		},
	}
	store.Flags().StringVar(&curve, "curve", "ed25519", "curve: ed25519 or p256")
	store.Flags().StringVar(&key, "key", "", "32 byte private key or seed as hex")
	_ = store.MarkFlagRequired("key")

	read := &cobra.Command{
		Use:   "read",
		Short: "Print the public key in a slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := tropic.NewECCSlot(slot)
			if err != nil {
				return err
			}
			return a.withHandle(cmd.Context(), true, func(h *tropic.Handle) error {
				k, err := h.ECCKeyRead(cmd.Context(), s)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "Curve:      %s\n", k.Curve)
				_, _ = fmt.Fprintf(out, "Origin:     %s\n", originName(k.Origin))
				_, _ = fmt.Fprintf(out, "Public key: %X\n", k.PublicKey)
				return nil
			})
		},
	}

	erase := &cobra.Command{
		Use:   "erase",
		Short: "Erase the key in a slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := tropic.NewECCSlot(slot)
			if err != nil {
				return err
			}
			return a.withHandle(cmd.Context(), true, func(h *tropic.Handle) error {
				return h.ECCKeyErase(cmd.Context(), s)
			})
		},
	}

	cmd.AddCommand(generate, store, read, erase)
	return cmd
}

func signCmd(a *app) *cobra.Command {
	var (
		slot     int
		useECDSA bool
	)
	cmd := &cobra.Command{
		Use:   "sign <message>",
		Short: "Sign a message with a slot key (EdDSA, or ECDSA over its SHA-256)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := tropic.NewECCSlot(slot)
			if err != nil {
				return err
			}
			msg := []byte(args[0])
			return a.withHandle(cmd.Context(), true, func(h *tropic.Handle) error {
				var sig []byte
				var err error
				if useECDSA {
					digest := sha256.Sum256(msg)
					sig, err = h.ECDSASign(cmd.Context(), s, digest[:])
				} else {
					sig, err = h.EdDSASign(cmd.Context(), s, msg)
				}
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%X\n", sig)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&slot, "slot", "s", 0, "ECC key slot (0-31)")
	cmd.Flags().BoolVar(&useECDSA, "ecdsa", false, "ECDSA over SHA-256 with a P-256 slot")
	return cmd
}

func counterCmd(a *app) *cobra.Command {
	var (
		index int
		value uint32
	)
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Manage monotonic counters",
	}
	cmd.PersistentFlags().IntVarP(&index, "index", "i", 0, "counter index (0-15)")

	run := func(op func(h *tropic.Handle, cmd *cobra.Command, idx tropic.MCounterIndex) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			idx, err := tropic.NewMCounterIndex(index)
			if err != nil {
				return err
			}
			return a.withHandle(cmd.Context(), true, func(h *tropic.Handle) error {
				return op(h, cmd, idx)
			})
		}
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Set a counter's starting value",
		Args:  cobra.NoArgs,
		RunE: run(func(h *tropic.Handle, cmd *cobra.Command, idx tropic.MCounterIndex) error {
			return h.MCounterInit(cmd.Context(), idx, value)
		}),
	}
	initCmd.Flags().Uint32Var(&value, "value", 0, "starting value")

	update := &cobra.Command{
		Use:   "update",
		Short: "Decrement a counter",
		Args:  cobra.NoArgs,
		RunE: run(func(h *tropic.Handle, cmd *cobra.Command, idx tropic.MCounterIndex) error {
			return h.MCounterUpdate(cmd.Context(), idx)
		}),
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print a counter's value",
		Args:  cobra.NoArgs,
		RunE: run(func(h *tropic.Handle, cmd *cobra.Command, idx tropic.MCounterIndex) error {
			v, err := h.MCounterGet(cmd.Context(), idx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		}),
	}

	cmd.AddCommand(initCmd, update, get)
	return cmd
}

func sleepCmd(a *app) *cobra.Command {
	var deep bool
	cmd := &cobra.Command{
		Use:   "sleep",
		Short: "Put the chip into sleep or deep sleep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind := tropic.SleepKindSleep
			if deep {
				kind = tropic.SleepKindDeepSleep
			}
			return a.withHandle(cmd.Context(), true, func(h *tropic.Handle) error {
				return h.Sleep(cmd.Context(), kind)
			})
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "enter deep sleep")
	return cmd
}

func rebootCmd(a *app) *cobra.Command {
	var maintenance bool
	cmd := &cobra.Command{
		Use:   "reboot",
		Short: "Restart the chip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := tropic.StartupReboot
			if maintenance {
				mode = tropic.StartupMaintenance
			}
			return a.withHandle(cmd.Context(), false, func(h *tropic.Handle) error {
				return h.Reboot(cmd.Context(), mode)
			})
		},
	}
	cmd.Flags().BoolVar(&maintenance, "maintenance", false, "restart into maintenance mode")
	return cmd
}
