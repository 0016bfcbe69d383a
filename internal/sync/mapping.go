package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/njoerd114/plannersync/internal/model"
	"github.com/njoerd114/plannersync/internal/remote"
)

// NewAccountAdapter creates the Account domain adapter.
func NewAccountAdapter(st LocalStore[model.Account], t Transport[remote.Account], logger *slog.Logger) *Adapter[model.Account, *model.Account, remote.Account] {
	return &Adapter[model.Account, *model.Account, remote.Account]{
		domain:    remote.DomainAccount,
		store:     st,
		transport: t,
		mapping: mapping[model.Account, remote.Account]{
			toWire: func(_ context.Context, a *model.Account) (remote.Account, bool, error) {
				return remote.Account{
					Meta:        wireMeta(&a.SyncMeta),
					Username:    a.Username,
					Email:       a.Email,
					DisplayName: a.DisplayName,
				}, true, nil
			},
			fromWire: func(_ context.Context, w remote.Account, _ *model.Account) (*model.Account, error) {
				return &model.Account{AccountFields: model.AccountFields{
					Username:    w.Username,
					Email:       w.Email,
					DisplayName: w.DisplayName,
				}}, nil
			},
		},
		log: logger,
	}
}

// NewCategoryAdapter creates the Category domain adapter.
func NewCategoryAdapter(st LocalStore[model.Category], t Transport[remote.Category], logger *slog.Logger) *Adapter[model.Category, *model.Category, remote.Category] {
	return &Adapter[model.Category, *model.Category, remote.Category]{
		domain:    remote.DomainCategory,
		store:     st,
		transport: t,
		mapping: mapping[model.Category, remote.Category]{
			toWire: func(_ context.Context, c *model.Category) (remote.Category, bool, error) {
				return remote.Category{
					Meta:        wireMeta(&c.SyncMeta),
					Name:        c.Name,
					Description: c.Description,
					Color:       c.Color,
					Icon:        c.Icon,
				}, true, nil
			},
			fromWire: func(_ context.Context, w remote.Category, _ *model.Category) (*model.Category, error) {
				return &model.Category{CategoryFields: model.CategoryFields{
					Name:        w.Name,
					Description: w.Description,
					Color:       w.Color,
					Icon:        w.Icon,
				}}, nil
			},
		},
		log: logger,
	}
}

// NewReminderAdapter creates the Reminder domain adapter.
func NewReminderAdapter(st LocalStore[model.Reminder], t Transport[remote.Reminder], logger *slog.Logger) *Adapter[model.Reminder, *model.Reminder, remote.Reminder] {
	return &Adapter[model.Reminder, *model.Reminder, remote.Reminder]{
		domain:    remote.DomainReminder,
		store:     st,
		transport: t,
		mapping: mapping[model.Reminder, remote.Reminder]{
			toWire: func(_ context.Context, r *model.Reminder) (remote.Reminder, bool, error) {
				return remote.Reminder{
					Meta:      wireMeta(&r.SyncMeta),
					Time:      r.Time,
					Frequency: string(r.Frequency),
					Status:    string(r.Status),
					Message:   r.Message,
				}, true, nil
			},
			fromWire: func(_ context.Context, w remote.Reminder, _ *model.Reminder) (*model.Reminder, error) {
				return &model.Reminder{ReminderFields: model.ReminderFields{
					Time:      w.Time,
					Frequency: model.Frequency(w.Frequency),
					Status:    model.ReminderStatus(w.Status),
					Message:   w.Message,
				}}, nil
			},
		},
		log: logger,
	}
}

// NewEventAdapter creates the Event domain adapter. categories and reminders
// translate the event's references between id namespaces.
func NewEventAdapter(st LocalStore[model.Event], t Transport[remote.Event], categories, reminders IDResolver, logger *slog.Logger) *Adapter[model.Event, *model.Event, remote.Event] {
	return &Adapter[model.Event, *model.Event, remote.Event]{
		domain:    remote.DomainEvent,
		store:     st,
		transport: t,
		mapping: mapping[model.Event, remote.Event]{
			toWire: func(ctx context.Context, e *model.Event) (remote.Event, bool, error) {
				categoryID, ok, err := serverRef(ctx, categories, e.CategoryID)
				if err != nil || !ok {
					return remote.Event{}, false, err
				}
				reminderID, ok, err := serverRef(ctx, reminders, e.ReminderID)
				if err != nil || !ok {
					return remote.Event{}, false, err
				}
				return remote.Event{
					Meta:        wireMeta(&e.SyncMeta),
					Title:       e.Title,
					Description: e.Description,
					Date:        e.Date,
					StartTime:   e.StartTime,
					EndTime:     e.EndTime,
					Priority:    int(e.Priority),
					Location:    e.Location,
					CategoryID:  categoryID,
					ReminderID:  reminderID,
				}, true, nil
			},
			fromWire: func(ctx context.Context, w remote.Event, local *model.Event) (*model.Event, error) {
				e := &model.Event{EventFields: model.EventFields{
					Title:       w.Title,
					Description: w.Description,
					Date:        w.Date,
					StartTime:   w.StartTime,
					EndTime:     w.EndTime,
					Priority:    model.Priority(w.Priority),
					Location:    w.Location,
				}}
				if local != nil {
					e.CategoryID = local.CategoryID
					e.ReminderID = local.ReminderID
					return e, nil
				}

				var err error
				if e.CategoryID, err = localRef(ctx, categories, w.CategoryID); err != nil {
					return nil, err
				}
				if e.ReminderID, err = localRef(ctx, reminders, w.ReminderID); err != nil {
					return nil, err
				}
				return e, nil
			},
		},
		log: logger,
	}
}

func wireMeta(m *model.SyncMeta) remote.Meta {
	return remote.Meta{
		RecordID:     m.LocalID,
		ServerID:     m.ServerIDOrZero(),
		LastModified: m.LastModified,
		SyncState:    int(m.SyncState),
		IsDeleted:    m.IsDeleted,
	}
}

// serverRef resolves an optional local reference to a server id. A nil
// reference resolves to 0; a reference without a server id yet is
// unresolved.
func serverRef(ctx context.Context, r IDResolver, localID *int64) (int64, bool, error) {
	if localID == nil {
		return 0, true, nil
	}
	id, err := r.ServerID(ctx, *localID)
	if err != nil {
		return 0, false, fmt.Errorf("resolving reference %d: %w", *localID, err)
	}
	if id == nil {
		return 0, false, nil
	}
	return *id, true, nil
}

// localRef maps a server reference back to a local id. Unknown references
// are dropped.
func localRef(ctx context.Context, r IDResolver, serverID int64) (*int64, error) {
	if serverID == 0 {
		return nil, nil
	}
	id, err := r.LocalID(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("resolving server reference %d: %w", serverID, err)
	}
	return id, nil
}
