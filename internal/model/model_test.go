package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestPriority_String(t *testing.T) {
	tests := []struct {
		p    Priority
		want string
	}{
		{PriorityNone, "None"},
		{PriorityLow, "Low"},
		{PriorityMedium, "Medium"},
		{PriorityHigh, "High"},
		{Priority(42), "None"}, // unknown value
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Priority(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		field string
	}{
		{"category empty", CategoryFields{}.Validate(), "name"},
		{"category blank", CategoryFields{Name: "   \t"}.Validate(), "name"},
		{"reminder blank", ReminderFields{Message: "\n"}.Validate(), "message"},
		{"event empty", EventFields{Description: "x"}.Validate(), "title"},
		{"account empty", AccountFields{Email: "a@b.c"}.Validate(), "username"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve, ok := AsValidation(tt.err)
			if !ok {
				t.Fatalf("expected *ValidationError, got %v", tt.err)
			}
			if ve.Code != CodeEmptyField {
				t.Errorf("Code = %q, want %q", ve.Code, CodeEmptyField)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := (CategoryFields{Name: "Work"}).Validate(); err != nil {
		t.Errorf("category: unexpected error %v", err)
	}
	if err := (ReminderFields{Message: "Call mom"}).Validate(); err != nil {
		t.Errorf("reminder: unexpected error %v", err)
	}
	if err := (EventFields{Title: "Standup"}).Validate(); err != nil {
		t.Errorf("event: unexpected error %v", err)
	}
	if err := (AccountFields{Username: "ana"}).Validate(); err != nil {
		t.Errorf("account: unexpected error %v", err)
	}
}

func TestAsValidation_Wrapped(t *testing.T) {
	err := fmt.Errorf("updating category 4: %w", &ValidationError{Code: CodeNotFound})
	ve, ok := AsValidation(err)
	if !ok {
		t.Fatal("AsValidation did not find wrapped error")
	}
	if ve.Code != CodeNotFound {
		t.Errorf("Code = %q, want %q", ve.Code, CodeNotFound)
	}
	if _, ok := AsValidation(errors.New("plain")); ok {
		t.Error("AsValidation matched a plain error")
	}
}

func TestSyncMeta_MarkSynced(t *testing.T) {
	var m SyncMeta
	if m.HasServerID() {
		t.Fatal("zero SyncMeta should have no server id")
	}
	if m.ServerIDOrZero() != 0 {
		t.Errorf("ServerIDOrZero = %d, want 0", m.ServerIDOrZero())
	}

	m.MarkSynced(501)
	if m.SyncState != SyncSynced {
		t.Errorf("SyncState = %v, want synced", m.SyncState)
	}
	if m.ServerIDOrZero() != 501 {
		t.Errorf("ServerIDOrZero = %d, want 501", m.ServerIDOrZero())
	}
}

func TestSyncState_String(t *testing.T) {
	if SyncPending.String() != "pending" || SyncSynced.String() != "synced" {
		t.Errorf("unexpected labels %q / %q", SyncPending, SyncSynced)
	}
}
