package domain

import "time"

// EntryKind represents the kind of backup artifact an entry describes
type EntryKind string

const (
	EntryKindBorgArchive EntryKind = "borg_archive"
	EntryKindS3Object    EntryKind = "s3_object"
)

// Entry represents a single piece of evidence that a backup exists
type Entry struct {
	Source    string
	Name      string
	Timestamp time.Time
	Size      *int64 // nil when the source cannot report a size cheaply
	Kind      EntryKind
}
