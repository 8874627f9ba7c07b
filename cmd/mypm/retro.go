package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhyun5u/MyPM/internal/board"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

func retroCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retro",
		Short: "Show and write daily retrospectives",
	}
	cmd.AddCommand(retroShowCmd(a), retroSaveCmd(a), retroAttachCmd(a))
	return cmd
}

// dateOrToday returns date, or today's date when it is empty.
func dateOrToday(date string) (string, error) {
	if date == "" {
		return models.Today(time.Now()), nil
	}
	if !models.ValidDate(date) {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidDate, date)
	}
	return date, nil
}

func retroShowCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the retrospective for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dateOrToday(date)
			if err != nil {
				return err
			}
			tasks, retros, err := a.services()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			retro, err := retros.GetByDate(ctx, d)
			if err != nil {
				return fmt.Errorf("failed to load retrospective: %w", err)
			}
			out := cmd.OutOrStdout()
			if retro == nil {
				fmt.Fprintf(out, "No retrospective for %s\n", d)
				return nil
			}

			fmt.Fprintf(out, "%s  %s\n", retro.Date, retro.Title)
			if summary := models.Deref(retro.Summary); summary != "" {
				fmt.Fprintf(out, "\n%s\n", summary)
			}
			if len(retro.Tasks) == 0 {
				return nil
			}

			all, err := tasks.List(ctx, "")
			if err != nil {
				return fmt.Errorf("failed to load tasks: %w", err)
			}
			fmt.Fprintln(out, "\nTasks:")
			for _, at := range board.ResolveAttached(retro, all) {
				if at.Missing {
					fmt.Fprintf(out, "  - %s (deleted task)\n", at.ID)
					continue
				}
				fmt.Fprintf(out, "  - %s [%s]\n", at.Task.Title, board.Label(at.Task.Status))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD, default today)")
	return cmd
}

func retroSaveCmd(a *app) *cobra.Command {
	var summary, date string
	cmd := &cobra.Command{
		Use:   "save <title>",
		Short: "Create or update the retrospective for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dateOrToday(date)
			if err != nil {
				return err
			}
			_, retros, err := a.services()
			if err != nil {
				return err
			}
			retro, err := retros.CreateOrUpdate(commandContext(cmd), models.RetrospectiveCreate{
				Title:   args[0],
				Summary: &summary,
				Date:    &d,
			})
			if err != nil {
				return fmt.Errorf("failed to save retrospective: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved retrospective for %s (%s)\n", retro.Date, retro.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "", "Summary text")
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD, default today)")
	return cmd
}

func retroAttachCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "attach <task-id>",
		Short: "Attach a task to the retrospective for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dateOrToday(date)
			if err != nil {
				return err
			}
			_, retros, err := a.services()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			retro, err := retros.GetByDate(ctx, d)
			if err != nil {
				return fmt.Errorf("failed to load retrospective: %w", err)
			}
			if retro == nil {
				return fmt.Errorf("no retrospective for %s: save one first", d)
			}
			if _, err := retros.AttachTask(ctx, d, retro.ID, args[0]); err != nil {
				return fmt.Errorf("failed to attach task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Attached %s to the retrospective for %s\n", args[0], d)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD, default today)")
	return cmd
}
