// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/metroverse/scriptbridge/internal/config"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for config files",
		Long: `Print the JSON Schema describing scriptbridge YAML config files.
Point your editor's YAML language server at the output to get completion
and validation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		},
	}
}
