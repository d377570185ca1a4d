package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jpfielding/imagewrap.go/pkg/imagewrap"
	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

// NewDecodeCmd writes the raw samples of an image
func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "decode [file]",
		Aliases: []string{"raw"},
		Short:   "Decode an image to raw interleaved samples",
		Long:    "Decode an image to raw interleaved samples. 16 and 32-bit samples are written little-endian; 32-bit samples are IEEE floats.",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := inputArg(cmd, args)
			out, _ := cmd.Flags().GetString("out")
			layoutName, _ := cmd.Flags().GetString("layout")
			depth, _ := cmd.Flags().GetInt("depth")

			l, err := pixel.ParseLayout(layoutName)
			if err != nil {
				return err
			}
			data, err := readInput(ctx, cmd, uri)
			if err != nil {
				return err
			}
			buf, f, err := imagewrap.Decode(data, l, depth)
			if err != nil {
				return fmt.Errorf("failed to decode %s as %s: %w", uri, f, err)
			}
			slog.InfoContext(ctx, "decoded",
				slog.String("uri", uri),
				slog.String("format", f.String()),
				slog.String("buffer", buf.Header.String()),
				slog.String("out", out))
			return writeOutput(cmd, out, buf.Pix)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "image path, URL or - for stdin")
	pf.StringP("out", "o", "-", "output path or - for stdout")
	pf.StringP("layout", "l", "RGBA", "sample layout (RGBA|BGRA|Gray)")
	pf.IntP("depth", "d", 8, "bits per channel (8|16|32)")
	return cmd
}
