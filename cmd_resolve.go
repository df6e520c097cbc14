package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-grounding/pkg/intent"
	"github.com/ekaya-inc/ekaya-grounding/pkg/metrics"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/services"
)

func newResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <mention>",
		Short: "Build the index and resolve one mention",
		Example: `  ekaya-grounding resolve LBG --query "What is LBG's revenue?"
  ekaya-grounding resolve Acme --user u1 --choose projects.title="Acme Initiative"`,
		Args: cobra.ExactArgs(1),
		RunE: runResolveCommand,
	}
	cmd.Flags().String("query", "", "question the mention came from (defaults to the mention)")
	cmd.Flags().String("user", "", "user ID for remembered choices")
	cmd.Flags().String("choose", "", "record table.column=value as the user's choice after resolving")
	return cmd
}

func runResolveCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()
	ctx := cmd.Context()

	mention := args[0]
	query, _ := cmd.Flags().GetString("query")
	if strings.TrimSpace(query) == "" {
		query = mention
	}
	userID, _ := cmd.Flags().GetString("user")

	snap, _, err := buildSnapshot(cmd, a)
	if err != nil {
		return err
	}
	holder := services.NewSnapshotHolder()
	holder.Store(snap)

	store, closeStore, err := a.openPreferences(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	resolver := services.NewEntityResolver(holder, store, intent.New(), metrics.New(nil), a.logger)
	result, err := resolver.Resolve(ctx, mention, query, userID)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, result); err != nil {
		return err
	}

	choice, _ := cmd.Flags().GetString("choose")
	if choice == "" {
		return nil
	}
	if userID == "" {
		return fmt.Errorf("--choose requires --user")
	}
	selected, err := parseEntryKey(choice)
	if err != nil {
		return err
	}
	return resolver.RecordResolution(ctx, userID, mention, query, result, selected)
}

// parseEntryKey parses table.column=value.
func parseEntryKey(s string) (models.EntryKey, error) {
	location, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(value) == "" {
		return models.EntryKey{}, fmt.Errorf("choice %q must look like table.column=value", s)
	}
	dot := strings.LastIndex(location, ".")
	if dot <= 0 || dot == len(location)-1 {
		return models.EntryKey{}, fmt.Errorf("choice %q must look like table.column=value", s)
	}
	return models.EntryKey{
		Table:          strings.TrimSpace(location[:dot]),
		Column:         strings.TrimSpace(location[dot+1:]),
		CanonicalValue: strings.TrimSpace(value),
	}, nil
}
