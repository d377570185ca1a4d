package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpfielding/imagewrap.go/pkg/imagewrap"
)

// NewDetectCmd prints the sniffed format of each argument
func NewDetectCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <file>...",
		Short: "Detect image formats by their leading bytes",
		Long:  "Detect image formats by their leading bytes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, uri := range args {
				data, err := readInput(ctx, cmd, uri)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", uri, imagewrap.DetectFormat(data))
			}
			return nil
		},
	}
	return cmd
}
