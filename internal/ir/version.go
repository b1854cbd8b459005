package ir

// Version constants for the wire format and engine.
const (
	// FormatVersion is the serialized value and plan format version.
	FormatVersion = "1"

	// EngineVersion is the simulation engine version. It participates in
	// results cache keys, so bump it whenever simulation semantics change.
	EngineVersion = "0.1.0"
)
