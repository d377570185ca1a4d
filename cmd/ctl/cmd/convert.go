package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jpfielding/imagewrap.go/pkg/codec/exr"
	"github.com/jpfielding/imagewrap.go/pkg/imagewrap"
	"github.com/jpfielding/imagewrap.go/pkg/pixel"
)

// NewConvertCmd transcodes an image between formats
func NewConvertCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [file]",
		Short: "Convert an image to PNG, JPEG or EXR",
		Long:  "Convert an image to PNG, JPEG or EXR. The target format defaults to the extension of --out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := inputArg(cmd, args)
			out, _ := cmd.Flags().GetString("out")
			formatName, _ := cmd.Flags().GetString("format")
			layoutName, _ := cmd.Flags().GetString("layout")
			depth, _ := cmd.Flags().GetInt("depth")
			quality, _ := cmd.Flags().GetInt("quality")
			precision, _ := cmd.Flags().GetString("precision")
			uncompressed, _ := cmd.Flags().GetBool("uncompressed")

			target := imagewrap.FormatForExtension(out)
			if formatName != "" {
				f, err := imagewrap.FormatByName(formatName)
				if err != nil {
					return err
				}
				target = f
			}
			if target == imagewrap.FormatUnknown {
				return fmt.Errorf("cannot infer a target format from %q, use --format", out)
			}
			dst, err := newTarget(target, precision)
			if err != nil {
				return err
			}

			data, err := readInput(ctx, cmd, uri)
			if err != nil {
				return err
			}
			src, err := imagewrap.New(imagewrap.DetectFormat(data))
			if err != nil {
				return err
			}
			if err := src.SetCompressed(data); err != nil {
				return err
			}

			l := src.Layout()
			if layoutName != "" {
				if l, err = pixel.ParseLayout(layoutName); err != nil {
					return err
				}
			}
			if depth == 0 {
				depth = targetDepth(target, src.BitDepth())
			}
			buf, err := src.RawBuffer(l, depth)
			if err != nil {
				return err
			}
			if err := dst.SetRaw(buf.Pix, buf.Width, buf.Height, buf.Layout, buf.BitDepth); err != nil {
				return err
			}
			if target == imagewrap.FormatEXR && uncompressed {
				quality = exr.QualityUncompressed
			}
			encoded, err := dst.Compressed(quality)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "converted",
				slog.String("from", src.Format().String()),
				slog.String("to", target.String()),
				slog.String("buffer", buf.Header.String()),
				slog.Int("bytes", len(encoded)))
			return writeOutput(cmd, out, encoded)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "image path, URL or - for stdin")
	pf.StringP("out", "o", "", "output path or - for stdout")
	pf.StringP("format", "f", "", "target format (png|jpeg|jpeg-gray|exr)")
	pf.StringP("layout", "l", "", "intermediate layout (RGBA|BGRA|Gray), default is the source layout")
	pf.IntP("depth", "d", 0, "intermediate bits per channel, default suits the target")
	pf.IntP("quality", "q", 0, "JPEG quality 1-100, 0 for the default")
	pf.String("precision", "auto", "EXR sample type (auto|half|float)")
	pf.Bool("uncompressed", false, "write EXR without ZIP compression")
	cmd.MarkPersistentFlagRequired("out")
	return cmd
}

// newTarget returns the output wrapper, honouring the EXR precision.
func newTarget(f imagewrap.Format, precision string) (*imagewrap.Wrapper, error) {
	if f != imagewrap.FormatEXR {
		return imagewrap.New(f)
	}
	c := exr.NewCodec()
	switch precision {
	case "", "auto":
		c.Options.Precision = exr.PrecisionAuto
	case "half":
		c.Options.Precision = exr.PrecisionHalf
	case "float":
		c.Options.Precision = exr.PrecisionFloat
	default:
		return nil, fmt.Errorf("unknown precision %q", precision)
	}
	return imagewrap.NewWithCodec(f, c), nil
}

// targetDepth picks the deepest sample size the target can store.
func targetDepth(f imagewrap.Format, src int) int {
	switch f {
	case imagewrap.FormatEXR:
		return src
	case imagewrap.FormatPNG:
		return min(src, 16)
	}
	return 8
}
