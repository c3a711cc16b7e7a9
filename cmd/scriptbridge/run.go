// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/metroverse/scriptbridge/internal/bridge"
	"github.com/metroverse/scriptbridge/internal/config"
	"github.com/metroverse/scriptbridge/internal/hostapi"
	"github.com/metroverse/scriptbridge/internal/logging"
	"github.com/metroverse/scriptbridge/internal/observability"
	"github.com/metroverse/scriptbridge/internal/router"
	"github.com/metroverse/scriptbridge/internal/runtime"
	"github.com/metroverse/scriptbridge/internal/simhost"
)

// NewRunCmd creates the run subcommand: an interactive harness driving
// the bridge against a simulated host. Type cheat text on stdin; EOF or
// "quit" ends the session.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge against a simulated game host",
		Long: `Run starts the scripting core over an in-memory fake city, loads the
plugins from the scripts directory, and feeds cheat lines read from
stdin through the full dispatch path. Useful for exercising plugin
scripts without the game.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarness(cmd)
		},
	}

	cmd.Flags().String("scripts_dir", "", "plugin scripts directory (default: derived from binary location)")
	cmd.Flags().StringSlice("exclude", nil, "script filename globs to skip")
	cmd.Flags().String("log.format", "", "log format: json or text")
	cmd.Flags().String("log.level", "", "log level: debug, info, warn, error")
	cmd.Flags().Bool("observability.enabled", false, "serve /metrics and health probes")
	cmd.Flags().String("observability.addr", "", "observability listen address")

	return cmd
}

func runHarness(cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("scriptbridge", cmd.Root().Version, cfg.Log.Format, cfg.Log.Level)

	scriptsDir := cfg.ScriptsDir
	if scriptsDir == "" {
		bin, err := os.Executable()
		if err != nil {
			return fmt.Errorf("cannot locate own binary: %w", err)
		}
		scriptsDir = runtime.DefaultScriptsDir(bin)
	}

	sim := simhost.New()
	opts := []bridge.Option{bridge.WithExcludePatterns(cfg.Exclude)}

	var obs *observability.Server
	var director *bridge.Director
	if cfg.Observability.Enabled {
		obs = observability.NewServer(cfg.Observability.Addr, func() bool {
			return director != nil && director.Ready()
		})
		if _, err := obs.Start(); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Stop(ctx)
		}()
		opts = append(opts, bridge.WithMetrics(obs.Metrics()))
	}

	director = bridge.New(scriptsDir, sim, sim, opts...)

	director.OnStart()
	director.PreAppInit()
	if !director.PostAppInit() {
		return fmt.Errorf("scripting core failed to start")
	}
	defer func() {
		director.PreAppShutdown()
		director.PostAppShutdown()
	}()

	sim.LoadCity(simhost.CityFixture("New Sorrento"))
	director.ProcessMessage(hostapi.Message{Type: hostapi.MsgCityInit})

	cmd.Println("city loaded; enter cheat text (quit to exit):")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			break
		}

		phrase := strings.ToLower(strings.Fields(line)[0])
		handled := director.ProcessCheat(hostapi.CheatIssued{ID: router.CheatID(phrase), Text: line})
		cmd.Printf("handled=%v funds=%d\n", handled, sim.City().Treasury.Funds)
	}
	if err := scanner.Err(); err != nil {
		slog.Error("stdin read failed", "error", err)
	}

	director.ProcessMessage(hostapi.Message{Type: hostapi.MsgCityShutdown})
	sim.UnloadCity()
	return nil
}
