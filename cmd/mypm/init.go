package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kimhyun5u/MyPM/internal/config"
	"github.com/kimhyun5u/MyPM/internal/db"
)

func initCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create .mypm/ with a config file and a local database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir := "."
			if len(args) > 0 {
				targetDir = args[0]
			}
			return a.runInit(cmd, targetDir)
		},
	}
}

func (a *app) runInit(cmd *cobra.Command, targetDir string) error {
	out := cmd.OutOrStdout()

	mypmDir := filepath.Join(targetDir, config.DefaultDir)
	if err := os.MkdirAll(mypmDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.DefaultDir, err)
	}
	fmt.Fprintf(out, "✓ Created %s/ directory\n", config.DefaultDir)

	gitignorePath := filepath.Join(mypmDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("mypm.db*\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Fprintf(out, "✓ Created %s/.gitignore\n", config.DefaultDir)

	configPath := filepath.Join(targetDir, config.ProjectConfigFile)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(config.Example()), 0644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		fmt.Fprintf(out, "✓ Wrote %s\n", config.ProjectConfigFile)
	}

	// Default paths are relative to the target directory.
	dbPath := a.cfg.Server.DBPath
	if dbPath == config.DefaultDBPath {
		dbPath = filepath.Join(targetDir, config.DefaultDBPath)
	}
	snapshotPath := a.cfg.Server.SnapshotPath
	if snapshotPath == config.DefaultSnapshotPath {
		snapshotPath = filepath.Join(targetDir, config.DefaultSnapshotPath)
	}

	database, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := commandContext(cmd)
	if err := database.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	fmt.Fprintf(out, "✓ Initialized database at %s\n", dbPath)

	if snapshotPath != "" {
		if _, err := os.Stat(snapshotPath); err == nil {
			if err := database.ImportSnapshot(ctx, snapshotPath); err != nil {
				return fmt.Errorf("failed to import snapshot: %w", err)
			}
			fmt.Fprintf(out, "✓ Imported snapshot from %s\n", snapshotPath)
		}
	}

	fmt.Fprintln(out, "✓ MyPM initialized successfully")
	return nil
}
