package subscriber

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/control"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/event"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/message"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/msg_tracker"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/observability"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/paoilog"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/stats"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/transport"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/util"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// idle wait of the ack loop when no ack timeout is configured
const defaultAckWait = time.Second

// SampleSink receives every logged sample, e.g. an OTLP exporter.
type SampleSink interface {
	Record(at time.Time, paoi, serviceDelay time.Duration)
}

// Subscriber measures PAoI for one sweep point. A measurement goroutine
// consumes status updates while Run drives the ack loop, which under ZW
// answers every processed update with an ACK. Once the target sample count
// is reached the subscriber publishes DONE on the ack topic and returns.
type Subscriber struct {
	run  config.Run
	conn transport.Conn
	log  *zap.Logger

	delays  *util.DelayGen
	obs     observability.Recorder
	tracker *msg_tracker.Tracker
	sink    SampleSink

	ackNeeded *event.Flag
	complete  *event.Flag
	ready     chan struct{}
	readyOnce sync.Once
	samples   atomic.Int64
	dropped   atomic.Int64

	statReceived stats.Stat
	statLogged   stats.Stat
	statDropped  stats.Stat
	statAcks     stats.Stat
}

type Option func(*Subscriber)

func WithDelays(g *util.DelayGen) Option {
	return func(s *Subscriber) { s.delays = g }
}

func WithRecorder(r observability.Recorder) Option {
	return func(s *Subscriber) { s.obs = r }
}

// WithTracker marks received indices for delivery tracking.
func WithTracker(t *msg_tracker.Tracker) Option {
	return func(s *Subscriber) { s.tracker = t }
}

func WithSampleSink(sink SampleSink) Option {
	return func(s *Subscriber) { s.sink = sink }
}

func New(run config.Run, conn transport.Conn, log *zap.Logger, opts ...Option) *Subscriber {
	s := &Subscriber{
		run:       run,
		conn:      conn,
		log:       log.With(zap.Int("run", run.Index), zap.Stringer("policy", run.Policy)),
		obs:       observability.Nop{},
		ackNeeded: event.NewFlag(),
		complete:  event.NewFlag(),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.delays == nil {
		s.delays = util.NewDelayGen(0)
	}
	return s
}

func (s *Subscriber) Init(sb stats.Builder) error {
	s.statReceived = sb.NewStat(stats.StatUpdatesReceived)
	s.statLogged = sb.NewStat(stats.StatSamplesLogged)
	s.statDropped = sb.NewStat(stats.StatSamplesDropped)
	s.statAcks = sb.NewStat(stats.StatAcksSent)
	return nil
}

// Ready is closed once Run listens on the status topic, or has given up
// before doing so.
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

func (s *Subscriber) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Complete reports whether the target sample count was reached.
func (s *Subscriber) Complete() bool {
	return s.complete.IsSet()
}

func (s *Subscriber) Samples() int {
	return int(s.samples.Load())
}

// Progress is the live state served on the control server.
func (s *Subscriber) Progress() control.Progress {
	return control.Progress{
		Policy:   s.run.Policy.String(),
		RunIndex: s.run.Index,
		Samples:  s.Samples(),
		Dropped:  int(s.dropped.Load()),
		Target:   s.run.NumSamples,
		Complete: s.Complete(),
	}
}

func (s *Subscriber) Run(ctx context.Context) (err error) {
	defer s.markReady()

	header := fmt.Sprintf("%s run %d mu=%.4f lamb=%.4f", s.run.Policy, s.run.Index, s.run.Mu, s.run.Lamb)

	paoiLog, err := paoilog.Create(s.run.LogPath, "PAoI "+header)
	if err != nil {
		return fmt.Errorf("create PAoI log: %w", err)
	}
	serviceLog, err := paoilog.Create(s.run.ServiceTimePath, "service time "+header)
	if err != nil {
		paoiLog.Close()
		return fmt.Errorf("create service time log: %w", err)
	}
	defer func() {
		err = multierr.Combine(err, paoiLog.Close(), serviceLog.Close())
	}()

	updates, err := s.conn.Subscribe(s.run.StatusTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.run.StatusTopic, err)
	}
	s.markReady()

	s.obs.SetGauge(observability.RunIndex, float64(s.run.Index))
	s.log.Info("Measuring PAoI",
		zap.String("topic", s.run.StatusTopic),
		zap.Float64("mu", s.run.Mu),
		zap.Int("target", s.run.NumSamples),
		zap.String("service_mode", s.run.ServiceMode),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.measure(ctx, updates, paoiLog, serviceLog)
	}()

	s.ackLoop(ctx)

	cancel()
	wg.Wait()

	if s.complete.IsSet() {
		if err := s.conn.Publish(s.run.AckTopic, []byte(message.DonePayload)); err != nil {
			s.log.Warn("Failed to publish DONE", zap.Error(err))
		}
		s.log.Info("Measurement complete",
			zap.Int("samples", s.Samples()),
			zap.Int("paoi_logged", paoiLog.Count()),
			zap.Int("service_times_logged", serviceLog.Count()),
		)
	}

	return nil
}

// ackLoop runs until the measurement completes or ctx is done.
func (s *Subscriber) ackLoop(ctx context.Context) {
	wait := s.run.AckTimeout
	if wait <= 0 {
		wait = defaultAckWait
	}

	for {
		if s.ackNeeded.WaitOrStop(ctx, wait, s.complete) == event.Signaled {
			s.ackNeeded.Clear()
			if s.run.Policy == config.PolicyZW {
				s.sendAck()
			}
		}

		if s.complete.IsSet() || ctx.Err() != nil {
			return
		}
	}
}

func (s *Subscriber) sendAck() {
	if err := s.conn.Publish(s.run.AckTopic, []byte(message.AckPayload)); err != nil {
		s.log.Warn("Failed to publish ACK", zap.String("topic", s.run.AckTopic), zap.Error(err))
		return
	}
	s.statAcks.Incr(1)
	s.obs.IncCounter(observability.AcksSentTotal, 1)
}

func (s *Subscriber) measure(ctx context.Context, updates <-chan transport.Message, paoiLog, serviceLog *paoilog.Writer) {
	session := &Session{}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}

			s.handle(ctx, session, msg, paoiLog, serviceLog)
			if s.complete.IsSet() {
				return
			}
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, session *Session, msg transport.Message, paoiLog, serviceLog *paoilog.Writer) {
	upd, err := message.ParseStatusUpdate(msg.Payload)
	if err != nil {
		s.log.Warn("Dropping malformed status update", zap.ByteString("payload", msg.Payload), zap.Error(err))
		return
	}

	s.statReceived.Incr(1)
	s.obs.IncCounter(observability.UpdatesReceivedTotal, 1)
	if s.tracker != nil && upd.PublisherID != "" {
		if res := s.tracker.Received(upd.PublisherID, upd.Idx); res.Dup {
			s.log.Debug("Duplicate status update", zap.String("pub_id", upd.PublisherID), zap.Uint64("idx", upd.Idx))
		}
	}

	delay := s.delays.Exp(upd.Mu)
	s.obs.Observe(observability.ServiceDelayHistogram, delay.Seconds())

	if s.run.ServiceMode != config.ServiceModeAdd && !sleepCtx(ctx, delay) {
		return
	}

	now := time.Now()
	paoi, ok := session.Measure(s.run, upd.Generated(), now, delay)

	switch {
	case !ok:
		s.log.Debug("Baseline update", zap.Uint64("idx", upd.Idx))
	case paoi < 0:
		s.dropped.Add(1)
		s.statDropped.Incr(1)
		s.obs.IncCounter(observability.SamplesDroppedTotal, 1)
		s.log.Debug("Dropping negative PAoI", zap.Duration("paoi", paoi), zap.Uint64("idx", upd.Idx))
	default:
		s.record(now, paoi, delay, paoiLog, serviceLog)
	}

	if s.run.Policy == config.PolicyZW {
		s.ackNeeded.Set()
	}
}

func (s *Subscriber) record(now time.Time, paoi, delay time.Duration, paoiLog, serviceLog *paoilog.Writer) {
	if err := paoiLog.Append(now, paoi.Seconds()); err != nil {
		s.log.Error("Failed to append PAoI sample", zap.Error(err))
		return
	}
	if err := serviceLog.Append(now, delay.Seconds()); err != nil {
		s.log.Error("Failed to append service time", zap.Error(err))
	}

	n := s.samples.Add(1)
	s.statLogged.Incr(1)
	s.obs.IncCounter(observability.SamplesTotal, 1)
	s.obs.SetGauge(observability.LastPAoI, paoi.Seconds())
	s.obs.Observe(observability.PAoIHistogram, paoi.Seconds())
	if s.sink != nil {
		s.sink.Record(now, paoi, delay)
	}

	s.log.Debug("Logged PAoI", zap.Float64("paoi", paoi.Seconds()), zap.Int64("samples", n))

	if s.run.NumSamples > 0 && n >= int64(s.run.NumSamples) {
		s.complete.Set()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
