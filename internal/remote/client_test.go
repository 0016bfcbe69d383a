package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func staticToken(tok string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return tok, nil })
}

func TestPushBatch_SendsEnvelopeAndDecodesVerdict(t *testing.T) {
	var gotReq BatchRequest[Category]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/category/sync", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		ack := gotReq.Changes[0]
		ack.ServerID = 501
		ack.SyncState = 1
		_ = json.NewEncoder(w).Encode(BatchResult[Category]{
			OwnerID:      gotReq.OwnerID,
			Acknowledged: []Category{ack},
			Rejected:     gotReq.Changes[1:],
		})
	}))
	defer srv.Close()

	c := NewClient[Category](srv.URL+"/", DomainCategory, staticToken("tok-1"), nil)
	res, err := c.PushBatch(context.Background(), 7, []Category{
		{Meta: Meta{RecordID: 1, LastModified: 10}, Name: "Work"},
		{Meta: Meta{RecordID: 2, LastModified: 11}, Name: "Bad"},
	})
	require.NoError(t, err)

	require.Equal(t, int64(7), gotReq.OwnerID)
	require.Len(t, gotReq.Changes, 2)
	require.Len(t, res.Acknowledged, 1)
	require.Equal(t, int64(501), res.Acknowledged[0].ServerID)
	require.Equal(t, int64(1), res.Acknowledged[0].RecordID)
	require.Len(t, res.Rejected, 1)
	require.Equal(t, int64(2), res.Rejected[0].RecordID)
}

func TestPushBatch_WireFieldNames(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = io.WriteString(w, `{"ownerId":7,"acknowledged":[],"rejected":[]}`)
	}))
	defer srv.Close()

	c := NewClient[Event](srv.URL, DomainEvent, nil, nil)
	_, err := c.PushBatch(context.Background(), 7, []Event{{
		Meta:       Meta{RecordID: 9, IsDeleted: true},
		Title:      "Standup",
		CategoryID: 501,
	}})
	require.NoError(t, err)

	changes := raw["changes"].([]any)
	ev := changes[0].(map[string]any)
	for _, key := range []string{"recordId", "serverId", "lastModified", "syncState", "isDeleted", "categoryId", "reminderId"} {
		require.Contains(t, ev, key)
	}
	require.Equal(t, float64(501), ev["categoryId"])
	require.Equal(t, true, ev["isDeleted"])
}

func TestPushBatch_Non2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient[Reminder](srv.URL, DomainReminder, nil, nil)
	_, err := c.PushBatch(context.Background(), 7, []Reminder{{Message: "x"}})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	require.Equal(t, "maintenance", se.Body)
	require.Equal(t, "/api/reminder/sync", se.Path)
}

func TestPushBatch_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "<html>"},
		{"wrong owner", `{"ownerId":99,"acknowledged":[],"rejected":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient[Category](srv.URL, DomainCategory, nil, nil)
			_, err := c.PushBatch(context.Background(), 7, []Category{{Name: "x"}})
			require.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestPushBatch_TimeoutPropagates(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient[Category](srv.URL, DomainCategory, nil, &http.Client{Timeout: 50 * time.Millisecond})
	_, err := c.PushBatch(context.Background(), 7, []Category{{Name: "x"}})
	require.Error(t, err)

	var se *StatusError
	require.False(t, errors.As(err, &se), "timeout must not look like a server verdict")
}

func TestTokenError_StopsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	tokens := TokenFunc(func(context.Context) (string, error) { return "", errors.New("signed out") })
	c := NewClient[Category](srv.URL, DomainCategory, tokens, nil)
	_, err := c.GetAll(context.Background(), 7)
	require.ErrorContains(t, err, "signed out")
	require.False(t, called)
}

func TestCRUD_Endpoints(t *testing.T) {
	type call struct{ method, path, query string }
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path, r.URL.RawQuery})
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/category":
			_, _ = io.WriteString(w, `[{"serverId":501,"name":"Work"},{"serverId":502,"name":"Home"}]`)
		case r.Method == http.MethodGet:
			_, _ = io.WriteString(w, `{"serverId":501,"name":"Work"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/category":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"serverId":503,"name":"New"}`)
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient[Category](srv.URL, DomainCategory, staticToken("t"), nil)

	all, err := c.GetAll(ctx, 7)
	require.NoError(t, err)
	require.Len(t, all, 2)

	one, err := c.Get(ctx, 501)
	require.NoError(t, err)
	require.Equal(t, "Work", one.Name)

	created, err := c.Create(ctx, Category{Name: "New"})
	require.NoError(t, err)
	require.Equal(t, int64(503), created.ServerID)

	updated, err := c.Update(ctx, 501, Category{Meta: Meta{ServerID: 501}, Name: "Job"})
	require.NoError(t, err)
	require.Equal(t, "Job", updated.Name, "empty body returns the sent record")

	require.NoError(t, c.Delete(ctx, 501))

	require.Equal(t, []call{
		{http.MethodGet, "/api/category", "ownerId=7"},
		{http.MethodGet, "/api/category/501", ""},
		{http.MethodPost, "/api/category", ""},
		{http.MethodPost, "/api/category/501", ""},
		{http.MethodDelete, "/api/category/501", ""},
	}, calls)
}

func TestStatusHelpers(t *testing.T) {
	notFound := &StatusError{Method: "GET", Path: "/api/event/1", StatusCode: http.StatusNotFound}
	require.True(t, IsNotFound(notFound))
	require.False(t, IsUnauthorized(notFound))
	require.True(t, IsUnauthorized(errors.Join(errors.New("ctx"), &StatusError{StatusCode: http.StatusUnauthorized})))
	require.Equal(t, "GET /api/event/1: server returned 404", notFound.Error())
}

func TestNewClients_Domains(t *testing.T) {
	cs := NewClients("http://localhost:8080", nil, time.Second)
	require.Equal(t, DomainAccount, cs.Accounts.Domain())
	require.Equal(t, DomainCategory, cs.Categories.Domain())
	require.Equal(t, DomainReminder, cs.Reminders.Domain())
	require.Equal(t, DomainEvent, cs.Events.Domain())
}
