/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/results"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/transport"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "paoi",
	Short: "Measure peak age of information over MQTT under CU and ZW policies",
}

var configPath string
var reportInterval time.Duration
var seed uint64
var debug bool

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", filepath.Join("config", "config.json"), "Path to the JSON run configuration, created with defaults when missing")
	rootCmd.PersistentFlags().DurationVar(&reportInterval, "report-interval", 10*time.Second, "Interval to report statistics, 0 disables reports")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Seed for the service delay generator, 0 seeds from the clock")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func newLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	return zap.NewDevelopment(zap.IncreaseLevel(level))
}

func loadConfig(zl *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	zl.Info("Loaded configuration",
		zap.String("path", configPath),
		zap.String("broker", cfg.BrokerURL()),
		zap.Stringer("policy", cfg.Policy()),
		zap.Int("numSamples", cfg.NumSamples),
		zap.Int("sweep_points", len(cfg.Sweep.Points())),
	)
	return cfg, nil
}

// signalContext is cancelled on SIGHUP, SIGINT or SIGQUIT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT)
}

func dialBroker(cfg *config.Config, role string, zl *zap.Logger) (transport.Conn, error) {
	return transport.DialMQTT(transport.MQTTConfig{
		BrokerURL: cfg.BrokerURL(),
		ClientID:  fmt.Sprintf("paoi-%s-%s", role, uuid.NewString()[:8]),
		QoS:       cfg.QoS,
	}, zl)
}

// postProcess summarizes the log of a finished run into its result file.
func postProcess(run config.Run, zl *zap.Logger) error {
	summary, err := results.Process(run.LogPath, run.MatPath, run.MinSamples)
	if err != nil {
		return fmt.Errorf("post-process run %d: %w", run.Index, err)
	}

	zl.Info("Run summary",
		zap.Int("run", run.Index),
		zap.Stringer("policy", run.Policy),
		zap.Float64("service_time", run.ServiceTime),
		zap.Int("samples", len(summary.Samples)),
		zap.Float64("mean", summary.Mean),
		zap.Float64("variance", summary.Variance),
		zap.Float64("std", summary.StdDev),
		zap.String("result", run.MatPath),
	)
	return nil
}

func parseEndpoint(endpoint string) (*url.URL, error) {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = fmt.Sprintf("http://%s", endpoint)
	}

	return url.Parse(endpoint)
}

func parseCustomHeaders(customHeaders []string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, h := range customHeaders {
		parts := strings.SplitN(h, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid header format: %q (expected 'Key=Value')", h)
		}
		headers[parts[0]] = parts[1]
	}
	return headers, nil
}
