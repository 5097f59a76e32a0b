package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	flagDir     string
	flagURL     string
	flagVerbose bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "*** %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "asterism",
		Short:         "Share your work on an exercise during class",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flagDir, "dir", "d", ".", "exercise directory (where asterism.env lives)")
	cmd.PersistentFlags().StringVar(&flagURL, "url", "", "exercise URL, overrides asterism.env")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log every request")

	cmd.AddCommand(linkCmd())
	cmd.AddCommand(pushCmd())
	cmd.AddCommand(pullCmd())
	cmd.AddCommand(watchCmd())
	return cmd
}

func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.CallerKey = ""
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if flagVerbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
