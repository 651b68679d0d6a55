// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package serve implements the command that runs the MCP server.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cohortbridge/cohortbridge/internal/commands/shared"
	"github.com/cohortbridge/cohortbridge/internal/config"
	"github.com/cohortbridge/cohortbridge/internal/drafts"
	cblog "github.com/cohortbridge/cohortbridge/internal/log"
	"github.com/cohortbridge/cohortbridge/internal/mcp/server"
	"github.com/cohortbridge/cohortbridge/internal/tracing"
	"github.com/cohortbridge/cohortbridge/pkg/httpclient"
	"github.com/cohortbridge/cohortbridge/pkg/webapi"
)

// NewCommand creates the serve command
func NewCommand() *cobra.Command {
	var (
		transport   string
		httpAddr    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cohortbridge MCP server",
		Long: `Start the cohortbridge MCP (Model Context Protocol) server.

The server exposes cohort-building tools backed by an OHDSI WebAPI instance:
vocabulary search, concept set construction, cohort definition assembly and
validation, and persistence to the WebAPI.

The server runs in stdio mode by default, which is suitable for integration
with AI assistants via their MCP configuration:

  {
    "mcpServers": {
      "cohortbridge": {
        "command": "cohortbridge",
        "args": ["serve"],
        "env": {"WEBAPI_BASE_URL": "https://atlas.example.org/WebAPI"}
      }
    }
  }

Use --transport=http to serve MCP over streamable HTTP instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, transport, httpAddr, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "MCP transport: stdio or http (default from config)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Listen address for the http transport")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for Prometheus metrics (empty disables)")

	return cmd
}

func runServe(cmd *cobra.Command, transport, httpAddr, metricsAddr string) error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return err
	}
	if transport != "" {
		cfg.Server.Transport = transport
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddr = httpAddr
	}
	if metricsAddr != "" {
		cfg.Server.MetricsAddr = metricsAddr
	}

	logger := cblog.New(&cblog.Config{
		Level:     cfg.Log.Level,
		Format:    cblog.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	})

	versionStr, _, _ := shared.GetVersion()

	provider, err := tracing.Setup("cohortbridge", versionStr)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", cblog.Error(err))
		}
	}()

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.WebAPI.Timeout
	httpCfg.RetryAttempts = cfg.WebAPI.RetryAttempts
	httpCfg.UserAgent = "cohortbridge/" + versionStr

	client, err := webapi.New(webapi.Config{
		BaseURL:           cfg.WebAPI.BaseURL,
		HTTP:              httpCfg,
		RequestsPerSecond: cfg.WebAPI.RequestsPerSecond,
	})
	if err != nil {
		return err
	}

	var draftStore *drafts.Store
	if cfg.Drafts.DraftsEnabled() {
		draftStore, err = drafts.Open(cfg.Drafts.Path)
		if err != nil {
			return fmt.Errorf("failed to open draft store: %w", err)
		}
		defer draftStore.Close()
	}

	srv, err := server.NewServer(server.ServerConfig{
		Version:            versionStr,
		Logger:             logger,
		WebAPI:             client,
		Drafts:             draftStore,
		DefaultSourceKey:   cfg.WebAPI.SourceKey,
		ToolCallsPerMinute: cfg.Server.ToolCallsPerMinute,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", cblog.Error(err))
		}
		cancel()
	}()

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(cfg.Server.MetricsAddr, srv, logger)
	}

	if cfg.Server.Transport == "http" {
		return srv.RunHTTP(ctx, cfg.Server.HTTPAddr)
	}
	return srv.Run(ctx)
}

// serveMetrics exposes the Prometheus /metrics endpoint on its own listener
// so scraping never touches the MCP transport.
func serveMetrics(addr string, srv *server.Server, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", srv.MetricsHandler().Handler())

	logger.Info("serving metrics", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", cblog.Error(err))
	}
}
