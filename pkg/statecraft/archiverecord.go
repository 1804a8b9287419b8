package statecraft

import "time"

// MachineEventArchive is the compressed, quiesced counterpart of a
// machine's active event log.
type MachineEventArchive struct {
	RootEventID string
	MachineID   string

	EventsData       []byte
	EventCount       int
	OriginalSize     int
	CompressedSize   int
	CompressionLevel int

	ArchivedAt  time.Time
	FirstEventAt time.Time
	LastEventAt  time.Time

	RestoreCount   int
	LastRestoredAt *time.Time
}
