package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-grounding/pkg/metrics"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/services"
	"github.com/ekaya-inc/ekaya-grounding/pkg/valueindex"
)

type indexReport struct {
	BuiltAt           time.Time                 `json:"built_at"`
	Elapsed           string                    `json:"elapsed"`
	Tables            []string                  `json:"tables"`
	Index             valueindex.Stats          `json:"index"`
	AbbreviationRules int                       `json:"abbreviation_rules"`
	Rules             []models.AbbreviationRule `json:"rules,omitempty"`
}

func newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the value index once and print its statistics",
		Args:  cobra.NoArgs,
		RunE:  runIndexCommand,
	}
	cmd.Flags().String("dump", "", "write the abbreviation rules as JSON to this path")
	cmd.Flags().Bool("rules", false, "include every abbreviation rule in the report")
	return cmd
}

func runIndexCommand(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	snap, elapsed, err := buildSnapshot(cmd, a)
	if err != nil {
		return err
	}

	if dump, _ := cmd.Flags().GetString("dump"); dump != "" {
		if err := snap.Learner.WriteJSON(dump); err != nil {
			return err
		}
	}

	report := indexReport{
		BuiltAt:           snap.BuiltAt,
		Elapsed:           elapsed.Round(time.Millisecond).String(),
		Tables:            snap.Tables(),
		Index:             snap.Index.Stats(),
		AbbreviationRules: snap.Learner.Len(),
	}
	if withRules, _ := cmd.Flags().GetBool("rules"); withRules {
		report.Rules = snap.Learner.Rules()
	}
	return printJSON(cmd, report)
}

// buildSnapshot profiles the configured columns and builds one snapshot.
func buildSnapshot(cmd *cobra.Command, a *app) (*services.Snapshot, time.Duration, error) {
	ctx := cmd.Context()
	profiler, columns, err := a.openProfiler(ctx, cmd)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = profiler.Close() }()

	indexerCfg, err := services.NewIndexerConfig(&a.cfg.Index)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	snap, err := services.NewValueIndexer(profiler, indexerCfg, metrics.New(nil), a.logger).Build(ctx, columns)
	if err != nil {
		return nil, 0, err
	}
	return snap, time.Since(start), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
