package model

import "time"

// --- Category ----------------------------------------------------------------

// CategoryFields is the user-editable payload of a [Category].
type CategoryFields struct {
	Name        string
	Description string
	Color       string
	Icon        string
}

// Validate checks the required text fields.
func (f CategoryFields) Validate() error {
	return requireText("name", f.Name)
}

// Category groups events.
type Category struct {
	SyncMeta
	CategoryFields
}

// --- Reminder ----------------------------------------------------------------

// Frequency controls how often a reminder repeats.
type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// ReminderStatus is the lifecycle state of a reminder.
type ReminderStatus string

const (
	ReminderActive    ReminderStatus = "active"
	ReminderDone      ReminderStatus = "done"
	ReminderDismissed ReminderStatus = "dismissed"
)

// ReminderFields is the user-editable payload of a [Reminder].
type ReminderFields struct {
	Time      time.Time
	Frequency Frequency
	Status    ReminderStatus
	Message   string
}

// Validate checks the required text fields.
func (f ReminderFields) Validate() error {
	return requireText("message", f.Message)
}

// Reminder fires a notification at Time, optionally repeating.
type Reminder struct {
	SyncMeta
	ReminderFields
}

// --- Event -------------------------------------------------------------------

// Priority is the importance of an event.
type Priority int

const (
	PriorityNone   Priority = 0
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

// String returns the human-readable label for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	default:
		return "None"
	}
}

// EventFields is the user-editable payload of an [Event].
//
// CategoryID and ReminderID hold local ids of the referenced records. Nil
// means the event has no such reference.
type EventFields struct {
	Title       string
	Description string
	Date        string // YYYY-MM-DD
	StartTime   string // HH:MM
	EndTime     string // HH:MM
	Priority    Priority
	Location    string
	CategoryID  *int64
	ReminderID  *int64
}

// Validate checks the required text fields.
func (f EventFields) Validate() error {
	return requireText("title", f.Title)
}

// Event is a calendar entry that may belong to a category and carry a
// reminder.
type Event struct {
	SyncMeta
	EventFields
}

// --- Account -----------------------------------------------------------------

// AccountFields is the user-editable payload of an [Account].
type AccountFields struct {
	Username    string
	Email       string
	DisplayName string
}

// Validate checks the required text fields.
func (f AccountFields) Validate() error {
	return requireText("username", f.Username)
}

// Account is the signed-in user's profile record.
type Account struct {
	SyncMeta
	AccountFields
}
