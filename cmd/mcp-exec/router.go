package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/mcp-exec/internal/resolver"
	"github.com/codex-k8s/mcp-exec/internal/runtime"
	"github.com/codex-k8s/mcp-exec/internal/tenant"
)

func newRouterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "router",
		Short: "List or call the tools of a component binary",
		Long: `Run one list or call request against a component binary on disk and print
the response envelope. Exits 1 when the envelope reports an error.`,
		Example: `  mcp-exec router --router ./tools/weather.wasm --list-tools
  mcp-exec router --router ./tools/weather.wasm --tool forecast --input '{"city":"Oslo"}' --pretty`,
		Args: cobra.NoArgs,
		RunE: routerAction,
	}
	flags := cmd.Flags()
	flags.String("router", "", "Path to the component binary")
	flags.Bool("list-tools", false, "List the tools exported by the component")
	flags.String("tool", "", "Tool to call")
	flags.String("input", "", "Tool arguments as a JSON object")
	flags.String("input-file", "", "File holding the tool arguments")
	flags.String("protocol", "", "Pin the protocol revision")
	flags.Bool("enable-http", false, "Allow the component to make outbound HTTP requests")
	flags.Int("timeout-ms", 0, "Per-call timeout in milliseconds")
	flags.Bool("pretty", false, "Indent the envelope")
	flags.String("env", "", "Tenant environment")
	flags.String("tenant", "", "Tenant id; enables secret lookups")
	_ = cmd.MarkFlagRequired("router")
	cmd.MarkFlagsMutuallyExclusive("list-tools", "tool")
	cmd.MarkFlagsOneRequired("list-tools", "tool")
	cmd.MarkFlagsMutuallyExclusive("input", "input-file")
	return cmd
}

func routerAction(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("router")
	listTools, _ := flags.GetBool("list-tools")
	tool, _ := flags.GetString("tool")
	enableHTTP, _ := flags.GetBool("enable-http")
	timeoutMS, _ := flags.GetInt("timeout-ms")
	pretty, _ := flags.GetBool("pretty")
	rev, _ := flags.GetString("protocol")

	args, err := readInput(cmd)
	if err != nil {
		return err
	}
	if listTools && args != nil {
		return fmt.Errorf("--input cannot be combined with --list-tools")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	root, locator := filepath.Dir(abs), strings.TrimSuffix(filepath.Base(abs), ".wasm")

	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	r, release, err := s.runner(ctx, func(cfg *runtime.ExecConfig) {
		cfg.Store = resolver.LocalDir{Root: root}
		if enableHTTP {
			cfg.NetworkEnabled = true
			cfg.Runtime.Grants.Network = true
			if comp, ok := cfg.Components[locator]; ok && comp.Grants != nil {
				comp.Grants.Network = true
			}
		}
		if timeoutMS > 0 {
			cfg.Runtime.PerCallTimeout = time.Duration(timeoutMS) * time.Millisecond
		}
	})
	if err != nil {
		return err
	}
	defer release()

	req := runtime.Request{Component: locator, Protocol: rev, Tenant: flagTenant(cmd)}
	if listTools {
		req.Operation = string(runtime.OperationList)
	} else {
		req.Operation = string(runtime.OperationCall)
		req.Action = tool
		req.Arguments = args
	}
	env := r.Run(ctx, req)
	if err := writeJSON(cmd.OutOrStdout(), env, pretty); err != nil {
		return err
	}
	if !env.OK {
		return errFailed
	}
	return nil
}

func readInput(cmd *cobra.Command) (json.RawMessage, error) {
	flags := cmd.Flags()
	if input, _ := flags.GetString("input"); input != "" {
		return json.RawMessage(input), nil
	}
	file, _ := flags.GetString("input-file")
	if file == "" {
		return nil, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}
	return json.RawMessage(data), nil
}

func flagTenant(cmd *cobra.Command) *tenant.Ctx {
	id, _ := cmd.Flags().GetString("tenant")
	if id == "" {
		return nil
	}
	env, _ := cmd.Flags().GetString("env")
	tc := tenant.New(env, id)
	return &tc
}
