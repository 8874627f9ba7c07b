package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kimhyun5u/MyPM/internal/api"
	"github.com/kimhyun5u/MyPM/internal/cache"
	"github.com/kimhyun5u/MyPM/internal/config"
	"github.com/kimhyun5u/MyPM/internal/logging"
	"github.com/kimhyun5u/MyPM/internal/service"
	"github.com/kimhyun5u/MyPM/internal/ui"
)

var Version = "dev"

// app carries what every subcommand needs once flags and config are loaded.
type app struct {
	configPath string
	overrides  config.Overrides

	cfg    *config.Config
	logger *log.Logger

	client *api.Client
	tasks  *service.Tasks
	retros *service.Retrospectives
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "mypm",
		Short:         "MyPM - tasks and daily retrospectives",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMenu(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to config file (default .mypm/config.toml)")
	flags.StringVar(&a.overrides.APIBaseURL, "api-url", "", "Backend base URL")
	flags.StringVar(&a.overrides.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.overrides.LogFile, "log-file", "", "Write logs to this file")

	root.AddCommand(
		dashboardCmd(a),
		serveCmd(a),
		initCmd(a),
		statusCmd(a),
		mcpCmd(a),
		tasksCmd(a),
		retroCmd(a),
	)
	return root
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath, a.overrides)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(stderr, logging.Options{Level: cfg.LogLevel})
	return nil
}

// services builds the data services once. They share one cache, so a
// mutation made by one command invalidates the reads of the others.
func (a *app) services() (*service.Tasks, *service.Retrospectives, error) {
	if a.tasks != nil {
		return a.tasks, a.retros, nil
	}
	client, err := a.apiClient()
	if err != nil {
		return nil, nil, err
	}
	store := cache.New(cache.WithLogger(a.logger))
	a.tasks = service.NewTasks(client, store, a.logger)
	a.retros = service.NewRetrospectives(client, store, a.logger)
	return a.tasks, a.retros, nil
}

func (a *app) apiClient() (*api.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	client, err := api.NewClient(a.cfg.APIBaseURL,
		api.WithTimeout(a.cfg.RequestTimeout()),
		api.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

// menuCommands maps launcher entries to command paths.
var menuCommands = map[string]string{
	"tasks": "tasks list",
	"retro": "retro show",
}

func (a *app) runMenu(cmd *cobra.Command) error {
	selected, err := ui.RunMenu("backend: " + a.cfg.APIBaseURL)
	if err != nil {
		return fmt.Errorf("failed to run menu: %w", err)
	}
	if selected == "" {
		return nil
	}

	path := selected
	if p, ok := menuCommands[selected]; ok {
		path = p
	}
	sub, _, err := cmd.Root().Find(strings.Fields(path))
	if err != nil || sub == cmd.Root() {
		return fmt.Errorf("unknown command: %s", selected)
	}
	sub.SetContext(cmd.Context())
	return sub.RunE(sub, nil)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
