package publisher

import (
	"context"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/event"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/message"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/stats"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/transport"
	"go.uber.org/zap"
)

// Publisher emits status updates for one sweep point. Under CU it
// publishes every arrival interval. Under ZW every publish is followed by
// a wait for the subscriber's ACK, bounded by the ack timeout, before the
// arrival interval starts.
type Publisher struct {
	run        config.Run
	id         string
	maxUpdates uint64
	conn       transport.Conn
	log        *zap.Logger
	seq        *Sequence
	ready      <-chan struct{}

	ackFlag  *event.Flag
	doneFlag *event.Flag

	statPublished   stats.Stat
	statPubErrors   stats.Stat
	statAcks        stats.Stat
	statAckTimeouts stats.Stat
}

type Option func(*Publisher)

// WithReady holds back the first update until ready is closed, e.g. until
// the subscriber is listening.
func WithReady(ready <-chan struct{}) Option {
	return func(p *Publisher) { p.ready = ready }
}

// WithMaxUpdates ends the run after n updates, 0 means unbounded.
func WithMaxUpdates(n uint64) Option {
	return func(p *Publisher) { p.maxUpdates = n }
}

// WithNotifier reports every emitted index.
func WithNotifier(n Notifier) Option {
	return func(p *Publisher) {
		if n != nil {
			p.seq = NewSequence(p.id, n)
		}
	}
}

func New(run config.Run, publisherID string, conn transport.Conn, log *zap.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		run:      run,
		id:       publisherID,
		conn:     conn,
		log:      log.With(zap.Int("run", run.Index), zap.Stringer("policy", run.Policy)),
		seq:      NewSequence(publisherID, nil),
		ackFlag:  event.NewFlag(),
		doneFlag: event.NewFlag(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Init(sb stats.Builder) error {
	p.statPublished = sb.NewStat(stats.StatUpdatesPublished)
	p.statPubErrors = sb.NewStat(stats.StatPublishErrors)
	p.statAcks = sb.NewStat(stats.StatAcksReceived)
	p.statAckTimeouts = sb.NewStat(stats.StatAckTimeouts)
	return nil
}

func (p *Publisher) Run(ctx context.Context) error {
	acks, err := p.conn.Subscribe(p.run.AckTopic)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go p.consumeAcks(ctx, acks)

	if p.ready != nil {
		select {
		case <-p.ready:
		case <-ctx.Done():
			return nil
		}
	}

	p.log.Info("Publishing status updates",
		zap.String("topic", p.run.StatusTopic),
		zap.Float64("mu", p.run.Mu),
		zap.Duration("interval", p.run.ArrivalInterval),
	)

	for {
		if p.run.Policy == config.PolicyZW {
			// an ACK for an earlier update must not release this one
			p.ackFlag.Clear()
		}

		now := time.Now()
		idx := p.seq.Next(now)
		p.publish(message.NewStatusUpdate(now, p.run.Mu, p.run.Lamb, idx, p.id))

		if p.run.Policy == config.PolicyZW {
			p.awaitAck(ctx)
		}

		if p.maxUpdates > 0 && idx >= p.maxUpdates {
			p.log.Info("Reached update limit", zap.Uint64("updates", idx))
			return nil
		}

		if !p.sleep(ctx, p.run.ArrivalInterval) {
			return nil
		}
	}
}

func (p *Publisher) publish(upd message.StatusUpdate) {
	payload, err := upd.Marshal()
	if err != nil {
		p.log.Error("Failed to encode status update", zap.Error(err))
		p.statPubErrors.Incr(1)
		return
	}

	if err := p.conn.Publish(p.run.StatusTopic, payload); err != nil {
		p.log.Warn("Failed to publish status update",
			zap.String("topic", p.run.StatusTopic), zap.Uint64("idx", upd.Idx), zap.Error(err))
		p.statPubErrors.Incr(1)
		return
	}

	p.statPublished.Incr(1)
	p.log.Info("Published status update", zap.Uint64("idx", upd.Idx))
}

// awaitAck blocks until an ACK is observed, the ack timeout elapses, the
// subscriber reports completion or ctx is done. The ack flag is cleared
// afterwards in every case.
func (p *Publisher) awaitAck(ctx context.Context) {
	switch p.ackFlag.WaitOrStop(ctx, p.run.AckTimeout, p.doneFlag) {
	case event.Signaled:
		p.statAcks.Incr(1)
	case event.TimedOut:
		p.statAckTimeouts.Incr(1)
		p.log.Debug("Timed out waiting for ACK", zap.Duration("timeout", p.run.AckTimeout))
	}

	p.ackFlag.Clear()
}

// sleep waits for d and reports whether the run should continue.
func (p *Publisher) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return !p.doneFlag.IsSet()
	case <-p.doneFlag.Done():
		p.log.Info("Subscriber completed the measurement")
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *Publisher) consumeAcks(ctx context.Context, acks <-chan transport.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-acks:
			if !ok {
				return
			}

			switch message.Classify(msg.Payload) {
			case message.KindAck:
				if p.run.Policy == config.PolicyZW {
					p.log.Debug("Received ACK", zap.String("topic", msg.Topic))
					p.ackFlag.Set()
				}
			case message.KindDone:
				p.doneFlag.Set()
			default:
				p.log.Warn("Ignoring unknown message on ack topic", zap.ByteString("payload", msg.Payload))
			}
		}
	}
}
