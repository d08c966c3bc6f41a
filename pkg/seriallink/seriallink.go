// Package seriallink drives the half-duplex serial line the Modbus
// transaction engine talks through, built on go.bug.st/serial.
package seriallink

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/modbus"
)

// Common errors.
var (
	ErrPortNotOpen = errors.New("serial port not open")
)

// Config holds the serial line configuration.
type Config struct {
	// Port is the serial port path (e.g., "/dev/ttyUSB0", "COM1").
	Port string `yaml:"port" json:"port" validate:"required"`

	// BaudRate is the line bit-rate.
	BaudRate int `yaml:"baudrate" json:"baudrate" validate:"gt=0"`

	// DataBits is the number of data bits (5, 6, 7, 8).
	DataBits int `yaml:"databits" json:"databits"`

	// Parity is the parity mode ("none", "odd", "even", "mark", "space").
	Parity string `yaml:"parity" json:"parity"`

	// StopBits is the number of stop bits (1 or 2).
	StopBits int `yaml:"stopbits" json:"stopbits"`
}

// DefaultConfig returns the line settings the gateway ships with,
// matching the usual RS485 deployment: 115200 8N1.
func DefaultConfig() Config {
	return Config{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   "none",
		StopBits: 1,
	}
}

// ParityEnabled reports whether the configured mode adds a parity bit
// to each symbol.
func (c Config) ParityEnabled() bool {
	return c.Parity != "" && c.Parity != "none"
}

// Timing derives the immutable link timing profile from the line
// configuration.
func (c Config) Timing() modbus.TimingProfile {
	return modbus.NewTimingProfile(c.BaudRate, c.DataBits, c.ParityEnabled(), c.StopBits)
}

// Link implements modbus.Link over a physical serial port.
type Link struct {
	mu sync.Mutex

	config Config
	port   serial.Port

	// lastTimeout caches the timeout applied to the port so ReadByte
	// only issues SetReadTimeout when the bound actually changes.
	lastTimeout time.Duration

	readBuf [1]byte
}

// Open opens the configured serial port and returns the link.
func Open(config Config) (*Link, error) {
	if config.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", config.BaudRate)
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		Parity:   parseParity(config.Parity),
		StopBits: parseStopBits(config.StopBits),
	}

	port, err := serial.Open(config.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", config.Port, err)
	}

	return &Link{
		config:      config,
		port:        port,
		lastTimeout: -1,
	}, nil
}

// Close releases the port.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// FlushInput discards any bytes sitting in the receive buffer.
func (l *Link) FlushInput() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return ErrPortNotOpen
	}
	return l.port.ResetInputBuffer()
}

// FlushOutput discards any bytes queued for transmission.
func (l *Link) FlushOutput() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return ErrPortNotOpen
	}
	return l.port.ResetOutputBuffer()
}

// Write transmits p in full.
func (l *Link) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return 0, ErrPortNotOpen
	}
	return l.port.Write(p)
}

// ReadByte reads a single byte, waiting at most timeout. A quiet line
// returns ok == false with a nil error; err means the port itself
// failed.
func (l *Link) ReadByte(timeout time.Duration) (byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return 0, false, ErrPortNotOpen
	}

	if timeout != l.lastTimeout {
		if err := l.port.SetReadTimeout(timeout); err != nil {
			return 0, false, err
		}
		l.lastTimeout = timeout
	}

	n, err := l.port.Read(l.readBuf[:])
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		// go.bug.st/serial signals a read timeout as (0, nil).
		return 0, false, nil
	}
	return l.readBuf[0], true, nil
}

// parseParity converts the parity name to serial.Parity.
func parseParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

// parseStopBits converts the stop-bit count to serial.StopBits.
func parseStopBits(stopBits int) serial.StopBits {
	if stopBits == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}
