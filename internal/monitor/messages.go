// ABOUTME: JSON message types for the monitoring websocket
// ABOUTME: Envelope with a type tag and a typed payload
package monitor

// Message is the envelope for every monitoring event.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// StatePayload reports a stream lifecycle transition.
type StatePayload struct {
	State string `json:"state"`
}

// StatsPayload reports transmission counters.
type StatsPayload struct {
	PacketsSent   uint64 `json:"packets_sent"`
	BytesSent     uint64 `json:"bytes_sent"`
	FIFOLevel     int    `json:"fifo_level"`
	FIFOOverruns  uint64 `json:"fifo_overruns"`
	FIFOUnderruns uint64 `json:"fifo_underruns"`
}

// Message type tags.
const (
	TypeState = "stream/state"
	TypeStats = "stream/stats"
	TypeHello = "monitor/hello"
)
