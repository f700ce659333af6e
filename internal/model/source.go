package model

// SourceKind distinguishes archived files from live channels.
type SourceKind int

const (
	// Archive is a finite, previously exported event log file.
	Archive SourceKind = iota
	// Live is a channel that keeps producing records until stopped.
	Live
)

func (k SourceKind) String() string {
	switch k {
	case Archive:
		return "archive"
	case Live:
		return "live"
	default:
		return "unknown"
	}
}

// LogSource identifies one origin of records. Immutable once resolved.
type LogSource struct {
	Name   string     // display name: file base name or configured channel name
	Handle string     // file path or live channel identifier
	Kind   SourceKind
}
