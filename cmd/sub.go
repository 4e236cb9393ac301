/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"log"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/control"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/msg_tracker"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/observability"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/stats"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/subscriber"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/telemetry"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/transport"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/util"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// subCmd represents the sub command
var subCmd = &cobra.Command{
	Use:   "sub",
	Short: "Measure PAoI for every sweep point and post-process the logs",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSub(); err != nil {
			log.Fatal(err)
		}
	},
}

var controlAddr string
var otlpEndpoint string
var useHTTP bool
var pushInterval time.Duration
var customHeaders []string

func init() {
	rootCmd.AddCommand(subCmd)

	subCmd.Flags().StringVar(&controlAddr, "control-addr", "", "Address for the control server (progress, delivery tracking, metrics), empty disables it")
	subCmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP endpoint to push PAoI samples to, empty disables export")
	subCmd.Flags().BoolVar(&useHTTP, "http", false, "Use HTTP/JSON instead of gRPC for OTLP export")
	subCmd.Flags().DurationVar(&pushInterval, "push-interval", time.Second, "Interval between OTLP pushes")
	subCmd.Flags().StringSliceVar(&customHeaders, "header", []string{}, "Custom headers to send (format: 'Key=Value', can be repeated)")
}

// measurement holds the collaborators shared by every sweep point.
type measurement struct {
	zl       *zap.Logger
	tracker  stats.Tracker
	delays   *util.DelayGen
	prom     *observability.PromObs
	mt       *msg_tracker.Tracker
	server   *control.Server
	exporter *telemetry.Exporter
}

func newMeasurement(zl *zap.Logger) *measurement {
	return &measurement{
		zl:      zl,
		tracker: stats.NewStatTracker(),
		delays:  util.NewDelayGen(seed),
		prom:    observability.NewPromObs(),
		mt:      msg_tracker.NewTracker(zl),
	}
}

func (m *measurement) startControl(addr string) error {
	m.server = control.New(addr, m.mt, m.prom.Registry(), reportInterval, m.zl)
	if err := m.server.Start(); err != nil {
		return err
	}

	m.zl.Info("Control server has been started", zap.String("addr", m.server.Addr()))
	return nil
}

func (m *measurement) startExporter(ctx context.Context) (func(), error) {
	endpoint, err := parseEndpoint(otlpEndpoint)
	if err != nil {
		return nil, err
	}

	headers, err := parseCustomHeaders(customHeaders)
	if err != nil {
		return nil, err
	}

	exp, err := telemetry.NewExporter(telemetry.Config{
		Endpoint:     endpoint,
		UseGRPC:      !useHTTP,
		Headers:      headers,
		PushInterval: pushInterval,
	}, m.zl)
	if err != nil {
		return nil, err
	}
	if err := exp.Init(m.tracker.NewDomain("Exporter")); err != nil {
		return nil, err
	}
	m.exporter = exp

	expCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = exp.Run(expCtx)
	}()

	m.zl.Info("Exporting PAoI samples", zap.String("endpoint", endpoint.String()), zap.Bool("grpc", !useHTTP))

	return func() {
		cancel()
		<-done
		if err := exp.Close(); err != nil {
			m.zl.Warn("Failed to close exporter", zap.Error(err))
		}
	}, nil
}

func (m *measurement) stop() {
	if m.server != nil {
		if err := m.server.Stop(); err != nil {
			m.zl.Warn("Failed to stop control server", zap.Error(err))
		}
	}
}

// newSubscriber wires a subscriber for one sweep point into the shared
// collaborators.
func (m *measurement) newSubscriber(run config.Run, conn transport.Conn) *subscriber.Subscriber {
	opts := []subscriber.Option{
		subscriber.WithDelays(m.delays),
		subscriber.WithRecorder(m.prom),
		subscriber.WithTracker(m.mt),
	}
	if m.exporter != nil {
		m.exporter.SetRun(run)
		opts = append(opts, subscriber.WithSampleSink(m.exporter))
	}

	s := subscriber.New(run, conn, m.zl, opts...)
	if m.server != nil {
		m.server.SetProgress(s.Progress)
	}
	return s
}

func runSub() error {
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

	m := newMeasurement(zl)
	defer m.stop()

	if controlAddr != "" {
		if err := m.startControl(controlAddr); err != nil {
			return err
		}
	}
	if otlpEndpoint != "" {
		stopExporter, err := m.startExporter(ctx)
		if err != nil {
			return err
		}
		defer stopExporter()
	}

	for _, run := range cfg.Runs() {
		conn, err := dialBroker(cfg, "sub", zl)
		if err != nil {
			return err
		}

		s := m.newSubscriber(run, conn)
		workers := worker.New(worker.Config{ReportInterval: reportInterval}, zl, m.tracker)
		if err := workers.Add("Subscriber", s); err != nil {
			conn.Close()
			return err
		}

		err = workers.Run(ctx)
		conn.Close()
		if err != nil {
			return err
		}

		if !s.Complete() {
			zl.Warn("Measurement interrupted", zap.Int("run", run.Index), zap.Int("samples", s.Samples()))
			break
		}

		if err := postProcess(run, zl); err != nil {
			return err
		}
	}

	return nil
}
