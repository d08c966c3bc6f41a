package bridge

import (
	"bytes"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantOK  bool
		wantTag byte
	}{
		{"empty message", nil, false, 0},
		{"external command", []byte{0x00, 0x11, 0x03}, true, TagExternal},
		{"external too short", []byte{0x00, 0x11}, false, TagExternal},
		{"external tag only", []byte{0x00}, false, TagExternal},
		{"gateway echo", []byte{0x01, 0x11, 0x03}, true, TagGateway},
		{"gateway tag only", []byte{0x01}, true, TagGateway},
		{"unknown origin", []byte{0xFF, 0x11, 0x03}, true, 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, ok := ParseEnvelope(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && env.Tag != tt.wantTag {
				t.Errorf("tag = %02X, want %02X", env.Tag, tt.wantTag)
			}
		})
	}
}

func TestActionable(t *testing.T) {
	if !(Envelope{Tag: TagExternal}).Actionable() {
		t.Error("external tag should be actionable")
	}
	for _, tag := range []byte{TagGateway, 0x02, 0x7F, 0xFF} {
		if (Envelope{Tag: tag}).Actionable() {
			t.Errorf("tag %02X should not be actionable", tag)
		}
	}
}

func TestOutbound(t *testing.T) {
	payload := []byte{0x11, 0x03, 0x02, 0x12, 0x34}
	out := Outbound(payload)

	want := append([]byte{TagGateway}, payload...)
	if !bytes.Equal(out, want) {
		t.Errorf("Outbound() = % X, want % X", out, want)
	}
}
