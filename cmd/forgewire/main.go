// Command forgewire generates component definitions and serves the demo.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "forgewire",
		Short: "Server-driven reactive components for Go",
		Long: `forgewire renders components on the server and keeps them live in the
browser through signed snapshots and named actions.

Commands:
  generate   write *_wire.go definitions from //wire: annotations
  clean      remove generated files
  serve      run the demo server
  keygen     print a new snapshot secret
  version    print version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(
		generateCmd(),
		cleanCmd(),
		serveCmd(),
		keygenCmd(),
		versionCmd(),
	)
	return root
}

// newLogger builds a production logger, or a development one with debug
// output when debug is set.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
