package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags.
var version = "dev"

// errFailed reports an error envelope that was already printed.
var errFailed = errors.New("execution failed")

func main() {
	if err := newApp().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newApp() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mcp-exec",
		Short:         "Resolve, verify and execute sandboxed WebAssembly tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.String("manifest", "", "Execution manifest (YAML or TOML); overrides MCP_EXEC_MANIFEST")
	flags.String("profile", "", "Embedded manifest profile used when no manifest is given (dev, strict)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRouterCommand(),
		newExecCommand(),
		newDescribeCommand(),
		newServeCommand(),
	)
	return cmd
}
