package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kimhyun5u/MyPM/internal/board"
	"github.com/kimhyun5u/MyPM/internal/config"
	"github.com/kimhyun5u/MyPM/internal/db"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend health and task counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd)
		},
	}
}

func (a *app) runStatus(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)

	fmt.Fprintln(out, "MyPM Status")
	fmt.Fprintln(out, "===========")
	fmt.Fprintf(out, "Backend:         %s\n", a.cfg.APIBaseURL)

	client, err := a.apiClient()
	if err != nil {
		return err
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := client.Get(ctx, "/health", nil, &health); err != nil {
		fmt.Fprintf(out, "Health:          unreachable (%v)\n", err)
	} else {
		fmt.Fprintf(out, "Health:          %s\n", health.Status)

		tasks, _, err := a.services()
		if err != nil {
			return err
		}
		list, err := tasks.List(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		p := board.Group(list)
		fmt.Fprintf(out, "Total Tasks:     %d\n", p.Total())
		fmt.Fprintln(out, "\nTask Breakdown:")
		for _, s := range models.TaskStatuses {
			fmt.Fprintf(out, "  %-12s %d\n", board.Label(s)+":", p.Count(s))
		}
	}

	if a.cfg.Server.Store != config.StoreSQLite {
		return nil
	}
	if _, err := os.Stat(a.cfg.Server.DBPath); err != nil {
		return nil
	}
	database, err := db.Open(a.cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	stats, err := database.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nLocal database %s:\n", a.cfg.Server.DBPath)
	fmt.Fprintf(out, "  Tasks:          %d\n", stats.Tasks)
	fmt.Fprintf(out, "  Retrospectives: %d\n", stats.Retrospectives)
	return nil
}
