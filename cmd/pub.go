/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/control"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/publisher"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/stats"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/worker"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// pubCmd represents the pub command
var pubCmd = &cobra.Command{
	Use:   "pub",
	Short: "Publish status updates for every sweep point",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPub(); err != nil {
			log.Fatal(err)
		}
	},
}

var maxUpdates uint64
var controlEndpoint string

func init() {
	rootCmd.AddCommand(pubCmd)

	pubCmd.Flags().Uint64Var(&maxUpdates, "max-updates", 0, "End each sweep point after this many updates, 0 waits for the subscriber")
	pubCmd.Flags().StringVar(&controlEndpoint, "control-endpoint", "", "Endpoint of the subscriber's control server")
}

func runPub() error {
	zl, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(zl)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var client *control.Client
	if controlEndpoint != "" {
		client, err = control.NewClient(controlEndpoint, zl)
		if err != nil {
			return err
		}
		client.Start()
		defer client.Stop()
	}

	pubID := uuid.NewString()
	tracker := stats.NewStatTracker()

	for _, run := range cfg.Runs() {
		if ctx.Err() != nil {
			break
		}

		zl.Info("Starting sweep point",
			zap.Int("run", run.Index),
			zap.Float64("service_time", run.ServiceTime),
			zap.Float64("mu", run.Mu),
		)

		opts := []publisher.Option{publisher.WithMaxUpdates(maxUpdates)}
		if client != nil {
			opts = append(opts, publisher.WithNotifier(client))
		}

		conn, err := dialBroker(cfg, "pub", zl)
		if err != nil {
			return err
		}

		// indices restart at 1, so every run reports as its own publisher
		p := publisher.New(run, fmt.Sprintf("%s-%d", pubID, run.Index), conn, zl, opts...)

		workers := worker.New(worker.Config{ReportInterval: reportInterval}, zl, tracker)
		if err := workers.Add("Publisher", p); err != nil {
			conn.Close()
			return err
		}

		err = workers.Run(ctx)
		conn.Close()
		if err != nil {
			return err
		}
	}

	fields := []zap.Field{zap.Any("totals", tracker.Totals()["Publisher"])}
	if client != nil {
		fields = append(fields, zap.Uint64("notifications_dropped", client.Dropped()))
	}
	zl.Info("Publisher finished", fields...)
	return nil
}
