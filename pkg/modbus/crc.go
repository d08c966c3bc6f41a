// Package modbus implements the Modbus RTU codec and the serial
// transaction engine: CRC-16 computation, silence-based frame timing
// and the single-transaction send/receive state machine.
package modbus

import "encoding/binary"

// crcPoly is the Modbus CRC-16 polynomial (reflected).
const crcPoly = 0xA001

// CRC16 computes the Modbus CRC-16 of data (init 0xFFFF, poly 0xA001).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x01 != 0 {
				crc = (crc >> 1) ^ crcPoly
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendCRC appends the CRC-16 trailer (low byte first) to payload,
// producing a complete RTU frame. The input slice is not modified.
func AppendCRC(payload []byte) []byte {
	frame := make([]byte, len(payload), len(payload)+2)
	copy(frame, payload)
	sum := CRC16(payload)
	var trailer [2]byte
	binary.LittleEndian.PutUint16(trailer[:], sum)
	return append(frame, trailer[:]...)
}

// ValidFrame reports whether frame carries a correct CRC-16 trailer.
// A well-formed frame yields zero when the CRC is computed over its
// entire length, trailer included.
func ValidFrame(frame []byte) bool {
	if len(frame) < 4 {
		// Address + function + 2-byte trailer is the RTU minimum.
		return false
	}
	return CRC16(frame) == 0
}
