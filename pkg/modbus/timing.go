package modbus

import "time"

// TimingProfile holds the link framing parameters and the inter-symbol
// timeout derived from them. It is computed once when the link is
// configured and never mutated afterwards; the transaction engine reads
// it on every receive.
type TimingProfile struct {
	BitRate       int
	DataBits      int
	ParityEnabled bool
	StopBits      int

	// InterSymbolTimeout approximates 1.5 character times: the maximum
	// gap between consecutive bytes before a frame is considered
	// complete.
	InterSymbolTimeout time.Duration
}

// NewTimingProfile derives a timing profile from the link configuration.
// Zero dataBits/stopBits fall back to the standard 8 and 1.
func NewTimingProfile(bitRate, dataBits int, parityEnabled bool, stopBits int) TimingProfile {
	if dataBits == 0 {
		dataBits = 8
	}
	if stopBits == 0 {
		stopBits = 1
	}
	return TimingProfile{
		BitRate:            bitRate,
		DataBits:           dataBits,
		ParityEnabled:      parityEnabled,
		StopBits:           stopBits,
		InterSymbolTimeout: InterSymbolTimeout(bitRate, dataBits, parityEnabled, stopBits),
	}
}

// InterSymbolTimeout computes the inter-symbol timeout for the given
// character format: ceil(1500 * symbolBits / bitRate) milliseconds,
// floored to 1ms so a fast link never yields a zero-duration timeout.
// The start bit is implicit in the 1500 factor (1.5 char times * 1000).
func InterSymbolTimeout(bitRate, dataBits int, parityEnabled bool, stopBits int) time.Duration {
	symbolBits := dataBits + stopBits
	if parityEnabled {
		symbolBits++
	}

	ms := (1500*symbolBits + bitRate - 1) / bitRate
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}
