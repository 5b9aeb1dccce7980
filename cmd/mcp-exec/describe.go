package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDescribeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe LOCATOR",
		Short: "Print the metadata a component describes about itself",
		Args:  cobra.ExactArgs(1),
		RunE:  describeAction,
	}
	cmd.Flags().Bool("pretty", false, "Indent the output")
	return cmd
}

func describeAction(cmd *cobra.Command, args []string) error {
	pretty, _ := cmd.Flags().GetBool("pretty")
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	r, release, err := s.runner(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer release()

	meta, err := r.Describe(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("%s does not describe itself", args[0])
	}
	return writeJSON(cmd.OutOrStdout(), meta, pretty)
}
