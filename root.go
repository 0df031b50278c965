package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/remarkable-go/internal/cloud"
	"github.com/tonimelisma/remarkable-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagTokenPath  string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remarkable-go",
		Short:   "reMarkable cloud uploader",
		Long:    "Pair with the reMarkable cloud and upload PDF documents to it.",
		Version: version,
		// Silence Cobra's default error/usage printing; main prints errors.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagTokenPath, "token", "", "credential file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newPairCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores the result in resolvedCfg.
func loadConfig(_ *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		TokenPath:  flagTokenPath,
		LogLevel:   flagLogLevel(),
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// flagLogLevel maps --verbose / --quiet onto a log level. Empty means the
// flags were not given and lower layers decide.
func flagLogLevel() string {
	switch {
	case flagVerbose:
		return "debug"
	case flagQuiet:
		return "error"
	default:
		return ""
	}
}

// buildLogger creates an slog.Logger from the resolved config. Level and
// format come from the config chain, where --verbose and --quiet already
// took precedence.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	format := "text"

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = resolvedCfg.LogFormat
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newHTTPClient returns the HTTP client for all cloud calls. The default has
// no timeout; network.timeout sets one.
func newHTTPClient() (*http.Client, error) {
	timeout, err := config.ParseTimeout(resolvedCfg.Network.Timeout)
	if err != nil {
		return nil, err
	}

	return &http.Client{Timeout: timeout}, nil
}

// cloudEndpoints builds the fixed service URLs from config.
func cloudEndpoints() (cloud.Endpoints, error) {
	s := resolvedCfg.Service

	return cloud.NewEndpoints(s.AuthHost, s.DiscoveryURL, s.Group)
}

// userAgent returns the configured User-Agent or the client default.
func userAgent() string {
	if ua := resolvedCfg.Network.UserAgent; ua != "" {
		return ua
	}

	return cloud.DefaultUserAgent + " (" + version + ")"
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
