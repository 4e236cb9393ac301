/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"log"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/sink"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// sinkCmd represents the sink command
var sinkCmd = &cobra.Command{
	Use:   "sink",
	Short: "Run an OTLP metrics receiver that logs exported PAoI samples",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSink(); err != nil {
			log.Fatal(err)
		}
	},
}

var sinkAddr string

func init() {
	rootCmd.AddCommand(sinkCmd)

	sinkCmd.Flags().StringVar(&sinkAddr, "addr", "localhost:4317", "address to listen on")
}

func runSink() error {
	zl, err := newLogger()
	if err != nil {
		return err
	}

	s, err := sink.New(sinkAddr, zl)
	if err != nil {
		return err
	}

	if err := s.Start(); err != nil {
		return err
	}

	zl.Info("Sink server has been started", zap.String("addr", s.Addr()))

	ctx, cancel := signalContext()
	defer cancel()

	<-ctx.Done()
	zl.Info("shutting down", zap.Int64("points", s.Points()))

	s.Stop()
	return nil
}
