package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "janus",
	Short: "Janus - Bayesian evaluation of two-variant experiments",
	Long: `Janus compares a baseline and a treatment with conjugate posteriors and
Monte Carlo sampling. It reports, per metric, the chance each variant beats
the other, the expected loss of choosing it, lift and credible intervals.

Metrics: conversion, value_per_conversion (revenue), value_per_exposure (arpu).`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("JANUS_DB_PATH", "./janus.db"), "database path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnvOrDefault("JANUS_CONFIG", ""), "engine config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", getEnvOrDefault("JANUS_LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
}

// newLogger writes text logs to w at the --log-level level.
func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", logLevel)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
