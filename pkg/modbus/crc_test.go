package modbus

import (
	"bytes"
	"testing"
)

func TestCRC16(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{
			name: "read holding registers request",
			data: []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01},
			want: 0x0A84, // wire order 84 0A
		},
		{
			name: "slave 0x11 read two registers",
			data: []byte{0x11, 0x03, 0x00, 0x00, 0x00, 0x02},
			want: 0x9BC6,
		},
		{
			name: "read response payload",
			data: []byte{0x11, 0x03, 0x02, 0x12, 0x34},
			want: 0xF074,
		},
		{
			name: "empty",
			data: []byte{},
			want: 0xFFFF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16(tt.data); got != tt.want {
				t.Errorf("CRC16() = %04X, want %04X", got, tt.want)
			}
		})
	}
}

func TestAppendCRC(t *testing.T) {
	payload := []byte{0x11, 0x03, 0x00, 0x00, 0x00, 0x02}
	frame := AppendCRC(payload)

	want := []byte{0x11, 0x03, 0x00, 0x00, 0x00, 0x02, 0xC6, 0x9B}
	if !bytes.Equal(frame, want) {
		t.Fatalf("AppendCRC() = % X, want % X", frame, want)
	}

	// Input must be left untouched.
	if !bytes.Equal(payload, want[:6]) {
		t.Errorf("AppendCRC() mutated its input: % X", payload)
	}
}

func TestValidFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x01, 0x03, 0x00, 0x00, 0x00, 0x01},
		{0x11, 0x03, 0x02, 0x12, 0x34},
		{0x02, 0x03, 0x01, 0x00, 0x00, 0x02},
	}

	for _, p := range payloads {
		frame := AppendCRC(p)
		if !ValidFrame(frame) {
			t.Errorf("frame % X should validate", frame)
		}
		if CRC16(frame) != 0 {
			t.Errorf("full-length CRC of % X = %04X, want 0", frame, CRC16(frame))
		}
	}
}

func TestValidFrameDetectsCorruption(t *testing.T) {
	frame := AppendCRC([]byte{0x11, 0x03, 0x02, 0x12, 0x34})

	// Flip every single bit in turn; each corruption must be caught.
	for i := range frame {
		for bit := 0; bit < 8; bit++ {
			corrupt := make([]byte, len(frame))
			copy(corrupt, frame)
			corrupt[i] ^= 1 << bit
			if ValidFrame(corrupt) {
				t.Errorf("single-bit corruption at byte %d bit %d not detected", i, bit)
			}
		}
	}
}

func TestValidFrameTooShort(t *testing.T) {
	for _, frame := range [][]byte{nil, {0x01}, {0x01, 0x03}, {0x01, 0x03, 0x84}} {
		if ValidFrame(frame) {
			t.Errorf("frame % X shorter than RTU minimum should not validate", frame)
		}
	}
}
