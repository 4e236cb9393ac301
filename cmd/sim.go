/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"log"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/publisher"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/subscriber"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/transport"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/worker"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// simCmd represents the sim command
var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run publisher and subscriber in one process over an in-process broker",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSim(); err != nil {
			log.Fatal(err)
		}
	},
}

var simNumSamples int
var simMinSamples int
var simLamb float64
var simAckTimeout float64
var simServiceMode string

func init() {
	rootCmd.AddCommand(simCmd)

	simCmd.Flags().IntVar(&simNumSamples, "num-samples", 0, "Override numSamples from the config")
	simCmd.Flags().IntVar(&simMinSamples, "min-samples", -1, "Override minSamples from the config")
	simCmd.Flags().Float64Var(&simLamb, "lamb", 0, "Override the interarrival interval in seconds")
	simCmd.Flags().Float64Var(&simAckTimeout, "ack-timeout", 0, "Override the ack timeout in seconds")
	simCmd.Flags().StringVar(&simServiceMode, "service-mode", "", "Override service_mode (sleep or add)")
}

func applySimOverrides(cfg *config.Config) {
	if simNumSamples > 0 {
		cfg.NumSamples = simNumSamples
	}
	if simMinSamples >= 0 {
		cfg.MinSamples = simMinSamples
	}
	if simLamb > 0 {
		cfg.Lamb = simLamb
	}
	if simAckTimeout > 0 {
		cfg.AckTimeout = simAckTimeout
	}
	if simServiceMode != "" {
		cfg.ServiceMode = simServiceMode
	}
}

func runSim() error {
	zl, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(zl)
	if err != nil {
		return err
	}
	applySimOverrides(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	m := newMeasurement(zl)
	pubID := uuid.NewString()

	for _, run := range cfg.Runs() {
		s, err := m.simulate(ctx, run, pubID)
		if err != nil {
			return err
		}

		if !s.Complete() {
			zl.Warn("Simulation interrupted", zap.Int("run", run.Index), zap.Int("samples", s.Samples()))
			break
		}

		if err := postProcess(run, zl); err != nil {
			return err
		}
	}

	return nil
}

// simulate measures one sweep point over a fresh loopback broker. The
// publisher holds its first update until the subscriber listens.
func (m *measurement) simulate(ctx context.Context, run config.Run, pubID string) (*subscriber.Subscriber, error) {
	// indices restart at 1 under the same publisher ID
	m.mt.Reset()

	broker := transport.NewLoopback()
	subConn, pubConn := broker.Conn(), broker.Conn()
	defer subConn.Close()
	defer pubConn.Close()

	s := m.newSubscriber(run, subConn)
	p := publisher.New(run, pubID, pubConn, m.zl, publisher.WithReady(s.Ready()))

	workers := worker.New(worker.Config{ReportInterval: reportInterval}, m.zl, m.tracker)
	if err := workers.Add("Subscriber", s); err != nil {
		return nil, err
	}
	if err := workers.Add("Publisher", p); err != nil {
		return nil, err
	}

	if err := workers.Run(ctx); err != nil {
		return nil, err
	}

	if dropped := broker.Dropped(); dropped > 0 {
		m.zl.Warn("Loopback broker dropped messages", zap.Uint64("dropped", dropped))
	}
	return s, nil
}
