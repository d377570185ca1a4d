package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpfielding/imagewrap.go/pkg/logging"
	"github.com/jpfielding/imagewrap.go/pkg/util"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagectl",
		Short: "a CLI to inspect, decode and convert images",
		Long:  "imagectl detects BMP, PNG, JPEG, EXR, ICO and ICNS images, decodes them to raw samples and converts between formats.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logJSON, _ := cmd.Flags().GetBool("log-json")
			logFile, _ := cmd.Flags().GetString("log-file")

			// Parse log level
			var level slog.Level
			levelErr := level.UnmarshalText([]byte(strings.ToUpper(logLevel)))
			if levelErr != nil {
				level = slog.LevelInfo
			}
			var w io.Writer = os.Stderr
			if logFile != "" {
				w = logging.FileWriter(logFile)
			}
			slog.SetDefault(logging.Logger(w, logJSON, level))

			if levelErr != nil {
				slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", logLevel, "error", levelErr)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd, 0)
		},
		SilenceUsage: true,
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewDetectCmd(ctx),
		NewInspectCmd(ctx),
		NewDecodeCmd(ctx),
		NewConvertCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.Bool("log-json", false, "Log as JSON instead of text")
	pf.String("log-file", "", "Write logs to a rotated file instead of stderr")
	pf.BoolP("verbose", "v", false, "Dump HTTP request, response and server certificate")
	pf.String("ca-file", "", "PEM file of extra root certificates for https inputs")
	pf.Bool("insecure", false, "Skip TLS verification for https inputs")
	return cmd
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), gitsha)
		},
	}
	return cmd
}

// readInput loads an image from a path, file:// URI, http(s) URL or "-" for stdin.
func readInput(ctx context.Context, cmd *cobra.Command, uri string) ([]byte, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	uri = strings.TrimPrefix(uri, "file://")
	switch {
	case uri == "":
		return nil, fmt.Errorf("input is required")
	case uri == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(uri, "http"):
		caFile, _ := cmd.Flags().GetString("ca-file")
		insecure, _ := cmd.Flags().GetBool("insecure")
		tlsConfig, err := util.TLSConfig(caFile, insecure)
		if err != nil {
			return nil, err
		}
		cl := &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %v", err)
		}
		resp, err := cl.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download: %v", err)
		}
		defer resp.Body.Close()
		if verbose {
			reqDump, _ := httputil.DumpRequest(req, true)
			os.Stderr.Write(reqDump)
			resDump, _ := httputil.DumpResponse(resp, false)
			os.Stderr.Write(resDump)
			if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
				fmt.Fprint(os.Stderr, util.DescribeCert(resp.TLS.PeerCertificates[0]))
			}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to download: %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	default:
		data, err := os.ReadFile(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %v", err)
		}
		return data, nil
	}
}

// writeOutput writes data to path, or to stdout for "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// inputArg returns the --uri flag or the first positional argument.
func inputArg(cmd *cobra.Command, args []string) string {
	uri, _ := cmd.Flags().GetString("uri")
	if uri == "" && len(args) > 0 {
		uri = args[0]
	}
	return uri
}
