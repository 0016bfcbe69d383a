package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/njoerd114/plannersync/internal/model"
	"github.com/njoerd114/plannersync/internal/remote"
	"github.com/njoerd114/plannersync/internal/session"
	"github.com/njoerd114/plannersync/internal/store"
)

// --- Fake server -------------------------------------------------------------

// fakeServer is an in-memory domain endpoint. It assigns server ids from
// nextID, rejects the record ids in reject, and remembers acknowledged
// records for GetAll.
type fakeServer[W remote.Record] struct {
	mu      sync.Mutex
	setID   func(w W, serverID int64) W
	nextID  int64
	reject  map[int64]bool
	failErr error
	onPush  func() // runs after the batch is received, before the reply

	batches [][]W
	records map[int64]W // serverID → record
}

func newFakeServer[W remote.Record](firstID int64, setID func(W, int64) W) *fakeServer[W] {
	return &fakeServer[W]{
		setID:   setID,
		nextID:  firstID,
		reject:  make(map[int64]bool),
		records: make(map[int64]W),
	}
}

func (f *fakeServer[W]) PushBatch(_ context.Context, ownerID int64, changes []W) (remote.BatchResult[W], error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]W(nil), changes...))
	if f.failErr != nil {
		err := f.failErr
		f.mu.Unlock()
		return remote.BatchResult[W]{}, err
	}
	hook := f.onPush
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	res := remote.BatchResult[W]{OwnerID: ownerID}
	for _, w := range changes {
		wm := w.WireMeta()
		if f.reject[wm.RecordID] {
			res.Rejected = append(res.Rejected, w)
			continue
		}
		id := wm.ServerID
		if id == 0 {
			id = f.nextID
			f.nextID++
		}
		w = f.setID(w, id)
		if wm.IsDeleted {
			delete(f.records, id)
		} else {
			f.records[id] = w
		}
		res.Acknowledged = append(res.Acknowledged, w)
	}
	return res, nil
}

func (f *fakeServer[W]) GetAll(_ context.Context, _ int64) ([]W, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	out := make([]W, 0, len(f.records))
	for _, w := range f.records {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeServer[W]) seed(ws ...W) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range ws {
		f.records[w.WireMeta().ServerID] = w
	}
}

func (f *fakeServer[W]) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeServer[W]) lastBatch() []W {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

// --- Fixture -----------------------------------------------------------------

const owner = int64(7)

var (
	testLogger  = slog.Default()
	testSession = session.Session{OwnerID: owner, Username: "ana", Token: "token"}
)

type fixture struct {
	store      *store.Store
	accounts   *fakeServer[remote.Account]
	categories *fakeServer[remote.Category]
	reminders  *fakeServer[remote.Reminder]
	events     *fakeServer[remote.Event]
	orch       *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "planner.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		store: st,
		accounts: newFakeServer(100, func(w remote.Account, id int64) remote.Account {
			w.ServerID = id
			return w
		}),
		categories: newFakeServer(501, func(w remote.Category, id int64) remote.Category {
			w.ServerID = id
			return w
		}),
		reminders: newFakeServer(701, func(w remote.Reminder, id int64) remote.Reminder {
			w.ServerID = id
			return w
		}),
		events: newFakeServer(901, func(w remote.Event, id int64) remote.Event {
			w.ServerID = id
			return w
		}),
	}
	f.orch = NewOrchestrator(testLogger,
		NewAccountAdapter(st.Accounts, f.accounts, testLogger),
		NewCategoryAdapter(st.Categories, f.categories, testLogger),
		NewReminderAdapter(st.Reminders, f.reminders, testLogger),
		f.eventAdapter(),
	)
	return f
}

func (f *fixture) eventAdapter() *Adapter[model.Event, *model.Event, remote.Event] {
	return NewEventAdapter(f.store.Events, f.events, f.store.Categories, f.store.Reminders, testLogger)
}

// --- Fake session and pass ---------------------------------------------------

type fakeSessions struct {
	mu   sync.Mutex
	sess session.Session
	err  error
}

func (s *fakeSessions) Current() (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, s.err
}

type fakePass struct {
	mu    sync.Mutex
	err   error
	calls []session.Session
}

func (p *fakePass) RunOnce(_ context.Context, sess session.Session) (Stats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, sess)
	return Stats{}, p.err
}

func (p *fakePass) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
