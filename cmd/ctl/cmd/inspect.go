package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jpfielding/imagewrap.go/pkg/codec/exr"
	"github.com/jpfielding/imagewrap.go/pkg/codec/icns"
	"github.com/jpfielding/imagewrap.go/pkg/codec/ico"
	"github.com/jpfielding/imagewrap.go/pkg/imagewrap"
	"github.com/jpfielding/imagewrap.go/pkg/util"
)

// NewInspectCmd creates the inspect cobra command
func NewInspectCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inspect [file]",
		Aliases: []string{"analyze"},
		Short:   "Show image format and container details",
		Long:    "Detects the image format, parses its header and lists container details such as ICO directory entries, EXR channels and ICNS elements.",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := inputArg(cmd, args)
			data, err := readInput(ctx, cmd, uri)
			if err != nil {
				return err
			}
			r := analyze(uri, data)
			switch outType, _ := cmd.Flags().GetString("format"); outType {
			case "text":
				r.print(cmd.OutOrStdout())
			default:
				j, _ := json.MarshalIndent(r, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(j))
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "image path, URL or - for stdin")
	pf.StringP("format", "f", "json", "output format (text|json)")
	return cmd
}

type report struct {
	Source   string `json:"source"`
	Format   string `json:"format"`
	Codec    string `json:"codec,omitempty"`
	Bytes    int    `json:"bytes"`
	MD5      string `json:"md5"`
	ID       string `json:"id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Layout   string `json:"layout,omitempty"`
	BitDepth int    `json:"bit_depth,omitempty"`
	Error    string `json:"error,omitempty"`

	Icons    []ico.DirEntry `json:"icons,omitempty"`
	EXR      *exr.Info      `json:"exr,omitempty"`
	Elements []icns.Element `json:"elements,omitempty"`
}

// analyze gathers what can be learned about data; failures are recorded in
// the report rather than returned.
func analyze(source string, data []byte) *report {
	f := imagewrap.DetectFormat(data)
	r := &report{
		Source: source,
		Format: f.String(),
		Bytes:  len(data),
		MD5:    util.Md5ThenHex(data),
		ID:     util.ContentUUID(data),
	}
	if f == imagewrap.FormatUnknown {
		r.Error = "unrecognised format"
		return r
	}

	w, err := imagewrap.New(f)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Codec = w.CodecName()
	if err := w.SetCompressed(data); err != nil {
		r.Error = w.LastError()
	} else {
		r.Width, r.Height = w.Width(), w.Height()
		r.Layout, r.BitDepth = w.Layout().String(), w.BitDepth()
	}

	switch f {
	case imagewrap.FormatICO:
		r.Icons, _ = ico.ReadDirectory(data)
	case imagewrap.FormatEXR:
		r.EXR, _ = exr.Inspect(data)
	case imagewrap.FormatICNS:
		r.Elements, _ = icns.ReadTOC(data)
	}
	return r
}

func (r *report) print(out io.Writer) {
	fmt.Fprintf(out, "Source: %s\n", r.Source)
	fmt.Fprintf(out, "Format: %s (codec %s)\n", r.Format, r.Codec)
	fmt.Fprintf(out, "Bytes: %d\n", r.Bytes)
	fmt.Fprintf(out, "MD5: %s\n", r.MD5)
	fmt.Fprintf(out, "ID: %s\n", r.ID)
	if r.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", r.Error)
	} else {
		fmt.Fprintf(out, "Size: %dx%d %s/%d\n", r.Width, r.Height, r.Layout, r.BitDepth)
	}

	if len(r.Icons) > 0 {
		fmt.Fprintln(out, "\n=== Icon Directory ===")
		for i, e := range r.Icons {
			fmt.Fprintf(out, "%d: %dx%d %d-bit, %d bytes at %d\n", i, e.RealWidth(), e.RealHeight(), e.BitCount, e.Size, e.Offset)
		}
	}
	if r.EXR != nil {
		fmt.Fprintln(out, "\n=== EXR ===")
		fmt.Fprintf(out, "Channels: %v\n", r.EXR.Channels)
		fmt.Fprintf(out, "Compression: %s\n", r.EXR.Compression)
	}
	if len(r.Elements) > 0 {
		fmt.Fprintln(out, "\n=== ICNS Elements ===")
		for _, e := range r.Elements {
			fmt.Fprintf(out, "%s: %d bytes at %d\n", e.Type, e.Length, e.Offset)
		}
	}
}
