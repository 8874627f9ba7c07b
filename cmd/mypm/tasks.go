package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kimhyun5u/MyPM/internal/board"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

func tasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and edit tasks",
	}
	cmd.AddCommand(
		tasksListCmd(a),
		tasksAddCmd(a),
		tasksUpdateCmd(a),
		tasksStatusCmd(a),
		tasksRemoveCmd(a),
	)
	return cmd
}

func tasksListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.TaskStatus
			if status != "" && status != "all" {
				s, err := models.ParseTaskStatus(status)
				if err != nil {
					return err
				}
				filter = s
			}

			tasks, _, err := a.services()
			if err != nil {
				return err
			}
			list, err := tasks.List(commandContext(cmd), filter)
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}
			printTasks(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (todo, in_progress, done, blocked)")
	return cmd
}

func printTasks(w io.Writer, tasks []models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks")
		return
	}
	fmt.Fprintf(w, "%-36s  %-30s  %-12s  %-10s\n", "ID", "TITLE", "STATUS", "DUE")
	fmt.Fprintln(w, "--------------------------------------------------------------------------------------------")
	for _, t := range tasks {
		fmt.Fprintf(w, "%-36s  %-30s  %-12s  %-10s\n", t.ID, truncate(t.Title, 30), board.Label(t.Status), models.Deref(t.DueDate))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func tasksAddCmd(a *app) *cobra.Command {
	var description, due string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, _, err := a.services()
			if err != nil {
				return err
			}
			task, err := tasks.Create(commandContext(cmd), models.TaskCreate{
				Title:       args[0],
				Description: &description,
				DueDate:     &due,
			})
			if err != nil {
				return fmt.Errorf("failed to create task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created task %s (%s)\n", task.ID, task.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Task description")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	return cmd
}

func tasksUpdateCmd(a *app) *cobra.Command {
	var title, description, due, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a task's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Only flags given on the command line are sent.
			var in models.TaskUpdate
			flags := cmd.Flags()
			if flags.Changed("title") {
				in.Title = &title
			}
			if flags.Changed("description") {
				in.Description = &description
			}
			if flags.Changed("due") {
				in.DueDate = &due
			}
			if flags.Changed("status") {
				s, err := models.ParseTaskStatus(status)
				if err != nil {
					return err
				}
				in.Status = &s
			}
			if in.Empty() {
				return fmt.Errorf("nothing to update: pass --title, --description, --due or --status")
			}

			tasks, _, err := a.services()
			if err != nil {
				return err
			}
			task, err := tasks.Update(commandContext(cmd), args[0], in)
			if err != nil {
				return fmt.Errorf("failed to update task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated task %s (%s)\n", task.ID, task.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&due, "due", "", "New due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "New status")
	return cmd
}

func tasksStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := models.ParseTaskStatus(args[1])
			if err != nil {
				return err
			}
			tasks, _, err := a.services()
			if err != nil {
				return err
			}
			task, err := tasks.SetStatus(commandContext(cmd), args[0], status)
			if err != nil {
				return fmt.Errorf("failed to update task status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Moved %s to %s\n", task.Title, board.Label(task.Status))
			return nil
		},
	}
}

func tasksRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, _, err := a.services()
			if err != nil {
				return err
			}
			if err := tasks.Delete(commandContext(cmd), args[0]); err != nil {
				return fmt.Errorf("failed to delete task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted task %s\n", args[0])
			return nil
		},
	}
}
