package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/qr-detector/cmd/qr-detector/ui"
	"github.com/spherical/qr-detector/internal/config"
	"github.com/spherical/qr-detector/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "qr-detector",
	Short: "Detect QR codes in PDF documents",
	Long: `qr-detector renders every page of a PDF document, finds the QR codes on it,
and reports their locations and decoded contents per page and for the whole document.
Documents can be scanned from the command line or through the HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Init(noColor)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. Interactive commands log to stderr in
// console format and stay quiet unless --verbose is set.
func newLogger(cfg *config.Config, interactive bool) *observability.Logger {
	logCfg := observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		Output:      os.Stderr,
		ServiceName: cfg.Observability.ServiceName,
	}
	if interactive {
		logCfg.Format = "console"
		logCfg.Level = "warn"
	}
	if verbose {
		logCfg.Level = "debug"
	}
	return observability.NewLogger(logCfg)
}
