package remote

import (
	"net/http"
	"time"
)

// Clients bundles one [Client] per domain, all sharing an HTTP client and
// credential source.
type Clients struct {
	Accounts   *Client[Account]
	Categories *Client[Category]
	Reminders  *Client[Reminder]
	Events     *Client[Event]
}

// NewClients builds the per-domain clients for the server at baseURL. Every
// data call is bounded by timeout.
func NewClients(baseURL string, tokens TokenSource, timeout time.Duration) *Clients {
	hc := &http.Client{Timeout: timeout}
	return &Clients{
		Accounts:   NewClient[Account](baseURL, DomainAccount, tokens, hc),
		Categories: NewClient[Category](baseURL, DomainCategory, tokens, hc),
		Reminders:  NewClient[Reminder](baseURL, DomainReminder, tokens, hc),
		Events:     NewClient[Event](baseURL, DomainEvent, tokens, hc),
	}
}
