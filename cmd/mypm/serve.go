package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhyun5u/MyPM/internal/config"
	"github.com/kimhyun5u/MyPM/internal/dashboard"
	"github.com/kimhyun5u/MyPM/internal/db"
	"github.com/kimhyun5u/MyPM/internal/graphdb"
	"github.com/kimhyun5u/MyPM/internal/logging"
	"github.com/kimhyun5u/MyPM/internal/mcp"
	"github.com/kimhyun5u/MyPM/internal/server"
)

func dashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Open the task board and retrospective panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The terminal belongs to the dashboard: log to a file or nowhere.
			logger := logging.Discard()
			if a.cfg.LogFile != "" {
				fileLogger, closer, err := logging.OpenFile(a.cfg.LogFile, a.cfg.LogLevel)
				if err != nil {
					return err
				}
				defer closer.Close()
				logger = fileLogger
			}
			a.logger = logger

			tasks, retros, err := a.services()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d := dashboard.New(tasks, retros, time.Now())
			return dashboard.Run(ctx, d,
				dashboard.WithRefreshInterval(a.cfg.RefreshInterval()),
				dashboard.WithLogger(logger),
			)
		},
	}
}

// openStore opens the configured backend store. The returned closer
// releases it.
func (a *app) openStore(ctx context.Context) (server.Store, io.Closer, error) {
	switch a.cfg.Server.Store {
	case config.StoreNeo4j:
		store, err := graphdb.Open(ctx, graphdb.Config{
			URI:      a.cfg.Neo4j.URI,
			Username: a.cfg.Neo4j.Username,
			Password: a.cfg.Neo4j.Password,
			Database: a.cfg.Neo4j.Database,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.Init(ctx); err != nil {
			store.Close(ctx)
			return nil, nil, err
		}
		return store, closerFunc(func() error { return store.Close(context.Background()) }), nil

	default:
		database, err := db.Open(a.cfg.Server.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Init(ctx); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if a.cfg.Server.SnapshotPath != "" {
			path := a.cfg.Server.SnapshotPath
			database.EnableAutoSnapshot(path, func(err error) {
				a.logger.Error("failed to export snapshot", "path", path, "err", err)
			})
		}
		return database, database, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference REST backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, closer, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closer.Close()

			srv := server.NewServer(store, server.WithLogger(a.logger))
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(a.cfg.Server.Addr)
			}()
			a.logger.Info("serving", "addr", a.cfg.Server.Addr, "store", a.cfg.Server.Store)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&a.overrides.ServerAddr, "addr", "", "Listen address (default :8000)")
	cmd.Flags().StringVar(&a.overrides.Store, "store", "", "Backend store: sqlite or neo4j")
	cmd.Flags().StringVar(&a.overrides.DBPath, "db-path", "", "SQLite database path")
	return cmd
}

func mcpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MyPM tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, retros, err := a.services()
			if err != nil {
				return err
			}
			s := mcp.NewServer(mcp.Services{Tasks: tasks, Retros: retros}, Version)
			return mcp.Serve(s)
		},
	}
}
