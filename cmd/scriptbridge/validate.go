// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metroverse/scriptbridge/internal/runtime"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir-or-script...]",
		Short: "Syntax-check plugin scripts without running them",
		Long: `Validate compiles each script in a throwaway interpreter and reports
compile errors. Scripts are never executed, so validation is safe to run
against untrusted files. Exits non-zero when any script fails.

Useful before dropping scripts into the game's Scripts directory:
  scriptbridge validate ./plugins`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runValidate(args)
		},
	}
}

func runValidate(targets []string) error {
	scripts, err := collectScripts(targets)
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		return fmt.Errorf("no %s scripts found", runtime.ScriptExt)
	}

	ls, err := runtime.NewStateFactory().NewState()
	if err != nil {
		return err
	}
	defer ls.Close()

	failed := 0
	for _, script := range scripts {
		if _, err := ls.LoadFile(script); err != nil {
			failed++
			slog.Error("script failed validation", "script", script, "error", err)
			continue
		}
		slog.Info("script ok", "script", script)
	}

	if failed > 0 {
		return fmt.Errorf("validation failed: %d of %d scripts invalid", failed, len(scripts))
	}
	return nil
}

// collectScripts expands directories into their scripts, including
// underscore-prefixed files: private modules deserve syntax checks too.
func collectScripts(targets []string) ([]string, error) {
	var scripts []string
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, fmt.Errorf("cannot stat %s: %w", target, err)
		}

		if !info.IsDir() {
			scripts = append(scripts, target)
			continue
		}

		entries, err := os.ReadDir(target)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", target, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), runtime.ScriptExt) {
				continue
			}
			scripts = append(scripts, filepath.Join(target, entry.Name()))
		}
	}
	return scripts, nil
}
