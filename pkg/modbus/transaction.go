package modbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Engine errors.
var (
	ErrEmptyRequest = errors.New("empty request frame")
	ErrBusy         = errors.New("transaction already in flight")
)

// Link is the half-duplex serial primitive set the engine drives. A
// ReadByte that sees no data within timeout returns ok == false with a
// nil error; err is reserved for real link faults.
type Link interface {
	FlushInput() error
	FlushOutput() error
	Write(p []byte) (int, error)
	ReadByte(timeout time.Duration) (b byte, ok bool, err error)
}

// State is the transaction engine state.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingFirstByte
	StateAccumulating
	StateComplete
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingFirstByte:
		return "awaiting_first_byte"
	case StateAccumulating:
		return "accumulating"
	case StateComplete:
		return "complete"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// EngineConfig holds the transaction engine parameters.
type EngineConfig struct {
	// Timing supplies the inter-symbol timeout used to delimit the
	// response frame.
	Timing TimingProfile

	// MaxResponseBytes bounds the response buffer.
	MaxResponseBytes int

	// TurnaroundDelay is the pause after transmitting before the input
	// buffer is flushed, long enough for a half-duplex line to echo the
	// request back.
	TurnaroundDelay time.Duration
}

// DefaultEngineConfig returns engine defaults for an RS485 line.
func DefaultEngineConfig(timing TimingProfile) EngineConfig {
	return EngineConfig{
		Timing:           timing,
		MaxResponseBytes: 265,
		TurnaroundDelay:  5 * time.Millisecond,
	}
}

// Engine runs one Modbus RTU transaction at a time over a Link. The
// response buffer is allocated once; Execute hands out a slice of it
// that stays valid only until the next Execute call.
type Engine struct {
	mu sync.Mutex // serializes transactions

	link   Link
	config EngineConfig

	buf   []byte
	state atomic.Int32
}

// NewEngine creates a transaction engine over link.
func NewEngine(link Link, config EngineConfig) *Engine {
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = 265
	}
	return &Engine{
		link:   link,
		config: config,
		buf:    make([]byte, config.MaxResponseBytes),
	}
}

// State returns the engine state as of the last transition. Safe to
// call while a transaction is in flight.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Execute transmits request and collects the response delimited by line
// silence. firstByteTimeout bounds how long the slave may take to start
// responding; each subsequent byte is bounded by the inter-symbol
// timeout. A silent slave is not an error: the returned slice is empty
// and err is nil. CRC validation is the caller's job.
func (e *Engine) Execute(request []byte, firstByteTimeout time.Duration) ([]byte, error) {
	if len(request) == 0 {
		return nil, ErrEmptyRequest
	}

	if !e.mu.TryLock() {
		return nil, ErrBusy
	}
	defer e.mu.Unlock()

	e.setState(StateSending)
	if err := e.send(request); err != nil {
		e.setState(StateIdle)
		return nil, err
	}

	e.setState(StateAwaitingFirstByte)
	b, ok, err := e.link.ReadByte(firstByteTimeout)
	if err != nil {
		e.setState(StateIdle)
		return nil, err
	}
	if !ok {
		e.setState(StateTimedOut)
		return e.buf[:0], nil
	}

	e.setState(StateAccumulating)
	e.buf[0] = b
	n := 1
	for n < len(e.buf) {
		b, ok, err = e.link.ReadByte(e.config.Timing.InterSymbolTimeout)
		if err != nil {
			e.setState(StateIdle)
			return nil, err
		}
		if !ok {
			// Inter-symbol gap elapsed: end of frame.
			break
		}
		e.buf[n] = b
		n++
	}

	e.setState(StateComplete)
	return e.buf[:n], nil
}

// send flushes stale input, writes the frame and discards the line's
// own transmit echo after the half-duplex turnaround.
func (e *Engine) send(request []byte) error {
	if err := e.link.FlushOutput(); err != nil {
		return err
	}
	if err := e.link.FlushInput(); err != nil {
		return err
	}
	if _, err := e.link.Write(request); err != nil {
		return err
	}
	if e.config.TurnaroundDelay > 0 {
		time.Sleep(e.config.TurnaroundDelay)
	}
	return e.link.FlushInput()
}
