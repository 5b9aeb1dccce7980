package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/codex-k8s/mcp-exec/internal/app"
	"github.com/codex-k8s/mcp-exec/internal/audit"
	"github.com/codex-k8s/mcp-exec/internal/manifest"
	"github.com/codex-k8s/mcp-exec/internal/runtime"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve LOCATOR",
		Short: "Expose the tools of a component as an MCP server",
		Args:  cobra.ExactArgs(1),
		RunE:  serveAction,
	}
	cmd.Flags().String("transport", "", "Transport override (stdio or http)")
	cmd.Flags().String("listen", "", "HTTP listen address override")
	cmd.Flags().String("protocol", "", "Pin the protocol revision")
	return cmd
}

func serveAction(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	srv := s.manifest.Server
	if v, _ := cmd.Flags().GetString("transport"); v != "" {
		srv.Transport = strings.ToLower(v)
	}
	if srv.Transport != manifest.TransportStdio && srv.Transport != manifest.TransportHTTP {
		return fmt.Errorf("unsupported transport %q", srv.Transport)
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		srv.HTTP.Listen = v
	}
	rev, _ := cmd.Flags().GetString("protocol")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, release, err := s.runner(ctx, nil)
	if err != nil {
		return err
	}
	defer release()

	locator := args[0]
	builder := runtime.Builder{
		Logger:   s.logger,
		Audit:    audit.New(s.logger),
		Runner:   r,
		Name:     srv.Name,
		Version:  srv.Version,
		Protocol: rev,
		Tenant:   s.manifest.TenantCtx(),
	}
	server, _, err := builder.Build(ctx, locator)
	if err != nil {
		return err
	}

	if srv.Transport == manifest.TransportStdio {
		return server.Run(ctx, &mcp.StdioTransport{})
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{Stateless: srv.HTTP.Stateless})
	ready := func(ctx context.Context) error {
		return r.Ready(ctx, locator)
	}
	application, err := app.New(ctx, srv, handler, ready, s.logger, s.manifest.ShutdownTimeout(s.env.ShutdownTimeout))
	if err != nil {
		return err
	}
	return application.Run(ctx)
}
