// Package model defines the organizer records shared by the local store, the
// remote transport and the sync engine.
//
// Every record embeds [SyncMeta], which carries the two identifier
// namespaces (device-local and server-assigned) and the pending/tombstone
// flags the sync engine works from.
package model

// SyncState reports whether a record's local copy has been confirmed by the
// remote authority. Values match the persisted integer column.
type SyncState int

const (
	// SyncPending marks a record with local mutations not yet acknowledged.
	SyncPending SyncState = 0
	// SyncSynced marks a record matching the last acknowledged remote state.
	SyncSynced SyncState = 1
)

// String returns the label used in logs.
func (s SyncState) String() string {
	switch s {
	case SyncSynced:
		return "synced"
	default:
		return "pending"
	}
}

// SyncMeta holds the sync bookkeeping common to every domain record.
type SyncMeta struct {
	// LocalID is assigned by the device and never reused after deletion.
	LocalID int64

	// OwnerID is the account that owns the record. All store queries are
	// scoped by it.
	OwnerID int64

	// ServerID is nil until the first acknowledgment. Once set it never
	// changes.
	ServerID *int64

	SyncState SyncState

	// IsDeleted marks a tombstone kept only to propagate the deletion.
	IsDeleted bool

	// LastModified is a monotonic device timestamp in Unix milliseconds,
	// bumped on every local mutation.
	LastModified int64
}

// Meta returns the embedded metadata. It lets generic code reach the sync
// fields of any record type.
func (m *SyncMeta) Meta() *SyncMeta { return m }

// HasServerID reports whether the record has been acknowledged at least once.
func (m *SyncMeta) HasServerID() bool { return m.ServerID != nil }

// ServerIDOrZero returns the server id, or 0 when unassigned. Zero is the
// wire encoding of "no server id yet".
func (m *SyncMeta) ServerIDOrZero() int64 {
	if m.ServerID == nil {
		return 0
	}
	return *m.ServerID
}

// MarkSynced records the acknowledged server id and clears the pending state.
func (m *SyncMeta) MarkSynced(serverID int64) {
	id := serverID
	m.ServerID = &id
	m.SyncState = SyncSynced
}

// ID returns a pointer to a copy of v. Handy for optional id fields.
func ID(v int64) *int64 { return &v }

// Record is implemented by every domain record through the embedded
// [SyncMeta].
type Record interface {
	Meta() *SyncMeta
}
