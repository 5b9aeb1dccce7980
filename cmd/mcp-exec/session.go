package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/mcp-exec/configs"
	"github.com/codex-k8s/mcp-exec/internal/audit"
	"github.com/codex-k8s/mcp-exec/internal/config"
	"github.com/codex-k8s/mcp-exec/internal/log"
	"github.com/codex-k8s/mcp-exec/internal/manifest"
	"github.com/codex-k8s/mcp-exec/internal/runtime"
	"github.com/codex-k8s/mcp-exec/internal/sandbox"
	"github.com/codex-k8s/mcp-exec/internal/sandbox/wazerohost"
)

// newHost builds the sandbox host. Tests replace it with a fake.
var newHost = func(ctx context.Context, policy runtime.RuntimePolicy, logger *slog.Logger) (sandbox.Host, error) {
	return wazerohost.New(ctx, wazerohost.Config{
		MemoryLimitPages: policy.MemoryLimitPages,
		PerCallTimeout:   policy.PerCallTimeout,
	}, logger)
}

// session is the process configuration shared by all commands.
type session struct {
	env      config.Config
	logger   *slog.Logger
	manifest *manifest.Manifest
}

func loadSession(cmd *cobra.Command) (*session, error) {
	env, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("manifest"); v != "" {
		env.ManifestPath = v
	}
	if v, _ := flags.GetString("profile"); v != "" {
		env.Profile = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		env.LogLevel = v
	}

	logger := log.NewWithWriter(cmd.ErrOrStderr(), env.LogLevel)

	var m *manifest.Manifest
	if env.ManifestPath != "" {
		m, err = manifest.LoadFile(env.ManifestPath)
	} else {
		var (
			name string
			data []byte
		)
		name, data, err = configs.Load(env.Profile)
		if err == nil {
			m, err = manifest.Load(name, data)
		}
	}
	if err != nil {
		return nil, err
	}
	m.ApplyEnv(env)
	return &session{env: env, logger: logger, manifest: m}, nil
}

// runner builds a runner over a fresh host. mutate adjusts the execution
// config before anything is created. The returned func releases the host.
func (s *session) runner(ctx context.Context, mutate func(*runtime.ExecConfig)) (*runtime.Runner, func(), error) {
	cfg, err := s.manifest.ExecConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	cfg.Runtime = cfg.Runtime.WithDefaults()

	host, err := newHost(ctx, cfg.Runtime, s.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("sandbox host: %w", err)
	}
	r := runtime.NewRunner(cfg, host, runtime.Options{
		Logger: s.logger,
		Audit:  audit.New(s.logger),
		Cache:  s.manifest.Cache(),
	})
	release := func() {
		closeCtx := context.WithoutCancel(ctx)
		if err := r.Close(closeCtx); err != nil {
			s.logger.Warn("close runner failed", "error", err)
		}
		if err := host.Close(closeCtx); err != nil {
			s.logger.Warn("close host failed", "error", err)
		}
	}
	return r, release, nil
}

func writeJSON(w io.Writer, value any, pretty bool) error {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
