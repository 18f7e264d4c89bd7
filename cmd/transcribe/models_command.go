package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mojiokoshi/transcriber/internal/services/transcription"
)

func newModelsCommand(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the selectable Gemini models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(cfg.Transcription.Models))
			for _, m := range cfg.Transcription.Models {
				marker := ""
				if m == cfg.Transcription.DefaultModel {
					marker = "*"
				}
				rows = append(rows, []string{m, marker})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Model", "Default"}, rows))
			return nil
		},
	}
}

func newLayoutsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "layouts",
		Short: "List meeting types and their header fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, t := range transcription.MeetingTypes() {
				layout, _ := transcription.LookupLayout(t)
				keys := make([]string, 0)
				for _, f := range layout.Fields() {
					keys = append(keys, f.Key+" ("+f.Label+")")
				}
				rows = append(rows, []string{string(t), layout.Title, strings.Join(keys, ", ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Type", "Title", "Fields"}, rows))
			return nil
		},
	}
}
