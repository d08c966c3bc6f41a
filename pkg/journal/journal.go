// Package journal records completed Modbus transactions for later
// inspection through the status API.
package journal

import "time"

// Record is one completed transaction.
type Record struct {
	// ID is a unique transaction identifier.
	ID string `json:"id"`

	// Topic is the MQTT topic the command arrived on.
	Topic string `json:"topic"`

	// Request is the full RTU request frame, CRC included.
	Request []byte `json:"request"`

	// Response is the raw response as received; empty on silence.
	Response []byte `json:"response"`

	// Outcome is one of the metrics outcome labels (ok, silence,
	// crc_error, link_error).
	Outcome string `json:"outcome"`

	// Duration is the wall time of the transaction, retries included.
	Duration time.Duration `json:"duration"`

	// CreatedAt is when the transaction completed.
	CreatedAt time.Time `json:"created_at"`
}

// Store persists transaction records.
type Store interface {
	// Save appends one record.
	Save(rec *Record) error

	// Recent returns up to limit records, newest first.
	Recent(limit int) ([]*Record, error)

	// Close releases the store.
	Close() error
}
