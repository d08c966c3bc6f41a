// Package bridge maps inbound tagged MQTT envelopes onto Modbus RTU
// transactions and publishes the reply (or a failure sentinel) back to
// the topic each command arrived on.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/journal"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/logger"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/metrics"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/modbus"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/transport/mqtt"
)

// ErrInboundClosed is returned by Run when the transport's inbound
// channel closes underneath the bridge.
var ErrInboundClosed = errors.New("inbound channel closed")

// Executor is the transaction engine surface the bridge drives.
type Executor interface {
	Execute(request []byte, firstByteTimeout time.Duration) ([]byte, error)
	State() modbus.State
}

// Publisher is the outbound transport surface the bridge emits to.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Config holds the bridge's per-transaction policy.
type Config struct {
	// ResponseTimeout bounds how long the slave may take to start
	// responding.
	ResponseTimeout time.Duration `yaml:"response_timeout" json:"response_timeout"`

	// Attempts is how many times a command is retried on the wire
	// before the sentinel is published. Minimum 1.
	Attempts int `yaml:"attempts" json:"attempts" validate:"gte=1"`

	// RetryBackoff is the pause between attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
}

// DefaultConfig matches the original deployment: one attempt, 500ms
// response timeout.
func DefaultConfig() Config {
	return Config{
		ResponseTimeout: 500 * time.Millisecond,
		Attempts:        1,
		RetryBackoff:    100 * time.Millisecond,
	}
}

// Stats counts bridge activity since start.
type Stats struct {
	Handled       uint64 `json:"handled"`
	Succeeded     uint64 `json:"succeeded"`
	Silences      uint64 `json:"silences"`
	CRCErrors     uint64 `json:"crc_errors"`
	LinkErrors    uint64 `json:"link_errors"`
	Filtered      uint64 `json:"filtered"`
	Malformed     uint64 `json:"malformed"`
	PublishErrors uint64 `json:"publish_errors"`
}

// Bridge is the single consumer of the inbound channel: one envelope
// becomes at most one serial transaction and one outbound publish, run
// to completion before the next envelope is taken.
type Bridge struct {
	config Config
	engine Executor
	pub    Publisher
	store  journal.Store
	log    *logger.Logger

	statsMu sync.RWMutex
	stats   Stats
}

// New creates a bridge. store and log may be nil.
func New(config Config, engine Executor, pub Publisher, store journal.Store, log *logger.Logger) *Bridge {
	if config.Attempts < 1 {
		config.Attempts = 1
	}
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Bridge{
		config: config,
		engine: engine,
		pub:    pub,
		store:  store,
		log:    log.Component("bridge"),
	}
}

// Run drains inbound until ctx is cancelled or the channel closes.
func (b *Bridge) Run(ctx context.Context, inbound <-chan mqtt.Message) error {
	b.log.Info("bridge running",
		"response_timeout", b.config.ResponseTimeout,
		"attempts", b.config.Attempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return ErrInboundClosed
			}
			b.Handle(ctx, msg)
		}
	}
}

// Handle processes one inbound envelope end to end. Every failure mode
// is recovered locally; Handle never brings the bridge down.
func (b *Bridge) Handle(ctx context.Context, msg mqtt.Message) {
	env, ok := ParseEnvelope(msg.Payload)
	if !ok {
		// Empty, or an external command too short to address a slave:
		// dropped with no outbound response and no link activity.
		b.log.Debug("dropping malformed envelope", "topic", msg.Topic, "len", len(msg.Payload))
		metrics.IncDropped(metrics.DropMalformed)
		b.count(func(s *Stats) { s.Malformed++ })
		return
	}
	if !env.Actionable() {
		// Gateway-origin echo or otherwise non-actionable tag.
		metrics.IncDropped(metrics.DropFiltered)
		b.count(func(s *Stats) { s.Filtered++ })
		return
	}

	id := uuid.New().String()
	request := modbus.AppendCRC(env.Payload)
	b.log.Debug("executing transaction", "id", id, "topic", msg.Topic, "request_len", len(request))

	start := time.Now()
	response, outcome := b.transact(request)
	duration := time.Since(start)

	metrics.IncTransaction(outcome)
	metrics.TransactionDuration.Observe(duration.Seconds())
	b.count(func(s *Stats) {
		s.Handled++
		switch outcome {
		case metrics.OutcomeOK:
			s.Succeeded++
		case metrics.OutcomeSilence:
			s.Silences++
		case metrics.OutcomeCRCError:
			s.CRCErrors++
		case metrics.OutcomeLinkError:
			s.LinkErrors++
		}
	})

	var out []byte
	if outcome == metrics.OutcomeOK {
		// Strip the slave's CRC trailer; the broker path has its own
		// integrity guarantees.
		out = Outbound(response[:len(response)-2])
	} else {
		out = Outbound(Sentinel)
		b.log.Warn("transaction failed", "id", id, "outcome", outcome, "duration", duration)
	}

	// Request/response symmetry: always answer on the inbound topic.
	if err := b.pub.Publish(ctx, msg.Topic, out); err != nil {
		b.log.Error("publish failed", "id", id, "topic", msg.Topic, "error", err)
		metrics.PublishErrors.Inc()
		b.count(func(s *Stats) { s.PublishErrors++ })
	}

	b.journal(id, msg.Topic, request, response, outcome, duration)
}

// transact runs the attempt loop. The returned slice aliases the
// engine's buffer and is only valid until the next transaction.
func (b *Bridge) transact(request []byte) (response []byte, outcome string) {
	outcome = metrics.OutcomeSilence

	for attempt := 1; attempt <= b.config.Attempts; attempt++ {
		resp, err := b.engine.Execute(request, b.config.ResponseTimeout)
		if err != nil {
			b.log.Error("link fault", "attempt", attempt, "error", err)
			response, outcome = nil, metrics.OutcomeLinkError
		} else if len(resp) == 0 {
			response, outcome = nil, metrics.OutcomeSilence
		} else if modbus.ValidFrame(resp) {
			return resp, metrics.OutcomeOK
		} else {
			// Keep the corrupt bytes so the journal shows what the
			// wire actually carried.
			response, outcome = resp, metrics.OutcomeCRCError
		}

		if attempt < b.config.Attempts && b.config.RetryBackoff > 0 {
			time.Sleep(b.config.RetryBackoff)
		}
	}

	return response, outcome
}

// journal records the completed transaction, copying both frames out
// of their reused buffers.
func (b *Bridge) journal(id, topic string, request, response []byte, outcome string, duration time.Duration) {
	if b.store == nil {
		return
	}

	rec := &journal.Record{
		ID:        id,
		Topic:     topic,
		Request:   append([]byte(nil), request...),
		Response:  append([]byte(nil), response...),
		Outcome:   outcome,
		Duration:  duration,
		CreatedAt: time.Now(),
	}
	if err := b.store.Save(rec); err != nil {
		b.log.Error("journal save failed", "id", id, "error", err)
	}
}

func (b *Bridge) count(update func(*Stats)) {
	b.statsMu.Lock()
	update(&b.stats)
	b.statsMu.Unlock()
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	return b.stats
}

// EngineState reports the transaction engine's current state.
func (b *Bridge) EngineState() modbus.State {
	return b.engine.State()
}
