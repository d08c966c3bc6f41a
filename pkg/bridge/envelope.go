package bridge

// Origin tags. Every transport message starts with one tag byte; the
// gateway only acts on external commands and stamps its own output so
// consumers (and the gateway itself) can filter by origin.
const (
	// TagExternal marks a command sent by an external actor.
	TagExternal byte = 0x00

	// TagGateway marks traffic the gateway itself published. Inbound
	// messages carrying it are the gateway's own echo and must never
	// be processed.
	TagGateway byte = 0x01
)

// Sentinel is the fixed failure payload published when the slave stays
// silent or replies with a corrupt frame.
var Sentinel = []byte("Null")

// minPayload is the smallest Modbus payload after tag stripping:
// slave address plus function code.
const minPayload = 2

// Envelope is a decoded inbound transport message.
type Envelope struct {
	Tag     byte
	Payload []byte // Modbus payload without CRC trailer
}

// ParseEnvelope splits a raw transport message into tag and payload.
// ok is false when the message is empty or, for external commands, too
// short to carry address + function.
func ParseEnvelope(raw []byte) (env Envelope, ok bool) {
	if len(raw) == 0 {
		return Envelope{}, false
	}
	env = Envelope{Tag: raw[0], Payload: raw[1:]}
	if env.Tag == TagExternal && len(env.Payload) < minPayload {
		return env, false
	}
	return env, true
}

// Actionable reports whether the envelope is an external command the
// bridge should execute.
func (e Envelope) Actionable() bool {
	return e.Tag == TagExternal
}

// Outbound builds an outbound message: the gateway-origin tag followed
// by payload.
func Outbound(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, TagGateway)
	return append(out, payload...)
}
