package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/mcp-exec/internal/runtime"
)

func newExecCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute one request read as JSON",
		Long: `Read a request {component, action, operation, arguments, tenant, protocol}
from --request (or stdin) and run it against the manifest tool store.`,
		Args: cobra.NoArgs,
		RunE: execAction,
	}
	cmd.Flags().String("request", "-", "Request file, - for stdin")
	cmd.Flags().Bool("pretty", false, "Indent the envelope")
	return cmd
}

func execAction(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("request")
	pretty, _ := cmd.Flags().GetBool("pretty")

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	var req runtime.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	r, release, err := s.runner(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer release()

	env := r.Run(cmd.Context(), req)
	if err := writeJSON(cmd.OutOrStdout(), env, pretty); err != nil {
		return err
	}
	if !env.OK {
		return errFailed
	}
	return nil
}
