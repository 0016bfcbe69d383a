package remote

import "time"

// Domain names used in endpoint paths.
const (
	DomainAccount  = "account"
	DomainCategory = "category"
	DomainReminder = "reminder"
	DomainEvent    = "event"
)

// Meta is the sync envelope every wire record carries.
//
// RecordID echoes the device-local id so acknowledgments can be correlated.
// It is never used by the server as the record's identity. ServerID is 0
// until the server has assigned one.
type Meta struct {
	RecordID     int64 `json:"recordId"`
	ServerID     int64 `json:"serverId"`
	LastModified int64 `json:"lastModified"`
	SyncState    int   `json:"syncState"`
	IsDeleted    bool  `json:"isDeleted"`
}

// WireMeta returns the envelope. Embedding Meta makes a type a [Record].
func (m Meta) WireMeta() Meta { return m }

// Record is implemented by every wire type.
type Record interface {
	WireMeta() Meta
}

// Account is the wire form of an account profile.
type Account struct {
	Meta
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Category is the wire form of a category.
type Category struct {
	Meta
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Reminder is the wire form of a reminder.
type Reminder struct {
	Meta
	Time      time.Time `json:"time"`
	Frequency string    `json:"frequency"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

// Event is the wire form of an event. CategoryID and ReminderID are server
// ids; 0 means no reference.
type Event struct {
	Meta
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date,omitempty"`
	StartTime   string `json:"startTime,omitempty"`
	EndTime     string `json:"endTime,omitempty"`
	Priority    int    `json:"priority"`
	Location    string `json:"location,omitempty"`
	CategoryID  int64  `json:"categoryId"`
	ReminderID  int64  `json:"reminderId"`
}

// BatchRequest is the body of a batch sync call.
type BatchRequest[W Record] struct {
	OwnerID int64 `json:"ownerId"`
	Changes []W   `json:"changes"`
}

// BatchResult is the server's verdict on a batch. Every change appears in
// exactly one of the two lists.
type BatchResult[W Record] struct {
	OwnerID      int64 `json:"ownerId"`
	Acknowledged []W   `json:"acknowledged"`
	Rejected     []W   `json:"rejected"`
}
