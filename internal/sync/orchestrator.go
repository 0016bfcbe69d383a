package sync

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/plannersync/internal/remote"
	"github.com/njoerd114/plannersync/internal/session"
	"github.com/njoerd114/plannersync/internal/store"
)

const (
	otelScope        = "plannersync/sync"
	spanPass         = "sync.pass"
	spanDomain       = "sync.domain"
	spanHydrate      = "sync.hydrate"
	metricPushed     = "plannersync.sync.records.pushed"
	metricAcked      = "plannersync.sync.records.acknowledged"
	metricRejected   = "plannersync.sync.records.rejected"
	metricDeferred   = "plannersync.sync.records.deferred"
	metricSyncErrors = "plannersync.sync.errors"
)

// DomainSyncer is one domain's sync participant. Implemented by [Adapter].
type DomainSyncer interface {
	Domain() string
	Sync(ctx context.Context, sess session.Session) (Stats, error)
	Hydrate(ctx context.Context, sess session.Session) (int, error)
}

// Orchestrator runs every domain in dependency order: Account, Category,
// Reminder, Event. A domain runs only after the ones before it succeeded, so
// references acknowledged earlier in a pass resolve later in the same pass.
type Orchestrator struct {
	domains []DomainSyncer
	log     *slog.Logger

	// OTel instruments; no-ops when telemetry is disabled.
	tracer      trace.Tracer
	cntPushed   metric.Int64Counter
	cntAcked    metric.Int64Counter
	cntRejected metric.Int64Counter
	cntDeferred metric.Int64Counter
	cntErrors   metric.Int64Counter
}

// New wires the four domain adapters between st and clients.
func New(st *store.Store, clients *remote.Clients, logger *slog.Logger) *Orchestrator {
	return NewOrchestrator(logger,
		NewAccountAdapter(st.Accounts, clients.Accounts, logger),
		NewCategoryAdapter(st.Categories, clients.Categories, logger),
		NewReminderAdapter(st.Reminders, clients.Reminders, logger),
		NewEventAdapter(st.Events, clients.Events, st.Categories, st.Reminders, logger),
	)
}

// NewOrchestrator runs domains in the order given.
func NewOrchestrator(logger *slog.Logger, domains ...DomainSyncer) *Orchestrator {
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Orchestrator{
		domains: domains,
		log:     logger,

		tracer:      otel.Tracer(otelScope),
		cntPushed:   mustCounter(metricPushed, "Number of records pushed to the server"),
		cntAcked:    mustCounter(metricAcked, "Number of records acknowledged by the server"),
		cntRejected: mustCounter(metricRejected, "Number of records rejected by the server"),
		cntDeferred: mustCounter(metricDeferred, "Number of records held back by unresolved references"),
		cntErrors:   mustCounter(metricSyncErrors, "Number of failed sync passes"),
	}
}

// RunOnce performs one pass over every domain. It stops at the first domain
// that fails; the remaining domains wait for the next pass.
func (o *Orchestrator) RunOnce(ctx context.Context, sess session.Session) (Stats, error) {
	ctx, span := o.tracer.Start(ctx, spanPass)
	defer span.End()

	var total Stats
	for _, d := range o.domains {
		stats, err := o.syncDomain(ctx, d, sess)
		total.Add(stats)
		if err != nil {
			o.cntErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("domain", d.Domain())))
			span.RecordError(err)
			o.record(span, total)
			return total, fmt.Errorf("syncing %s: %w", d.Domain(), err)
		}
	}

	o.record(span, total)
	o.log.Info("sync pass complete",
		"owner_id", sess.OwnerID,
		"pushed", total.Pushed,
		"acknowledged", total.Acknowledged,
		"rejected", total.Rejected,
		"deferred", total.Deferred,
	)
	return total, nil
}

func (o *Orchestrator) syncDomain(ctx context.Context, d DomainSyncer, sess session.Session) (Stats, error) {
	ctx, span := o.tracer.Start(ctx, spanDomain, trace.WithAttributes(
		attribute.String("sync.domain", d.Domain()),
	))
	defer span.End()

	stats, err := d.Sync(ctx, sess)

	attrs := metric.WithAttributes(attribute.String("domain", d.Domain()))
	if stats.Pushed > 0 {
		o.cntPushed.Add(ctx, int64(stats.Pushed), attrs)
	}
	if stats.Acknowledged > 0 {
		o.cntAcked.Add(ctx, int64(stats.Acknowledged), attrs)
	}
	if stats.Rejected > 0 {
		o.cntRejected.Add(ctx, int64(stats.Rejected), attrs)
	}
	if stats.Deferred > 0 {
		o.cntDeferred.Add(ctx, int64(stats.Deferred), attrs)
	}

	o.record(span, stats)
	if err != nil {
		span.RecordError(err)
	}
	return stats, err
}

func (o *Orchestrator) record(span trace.Span, s Stats) {
	span.SetAttributes(
		attribute.Int("sync.pushed", s.Pushed),
		attribute.Int("sync.acknowledged", s.Acknowledged),
		attribute.Int("sync.rejected", s.Rejected),
		attribute.Int("sync.deferred", s.Deferred),
		attribute.Int("sync.purged", s.Purged),
	)
}

// Hydrate pulls the owner's server records into the local store, domain by
// domain in dependency order, and returns how many were added.
func (o *Orchestrator) Hydrate(ctx context.Context, sess session.Session) (int, error) {
	ctx, span := o.tracer.Start(ctx, spanHydrate)
	defer span.End()

	total := 0
	for _, d := range o.domains {
		n, err := d.Hydrate(ctx, sess)
		total += n
		if err != nil {
			span.RecordError(err)
			return total, fmt.Errorf("hydrating %s: %w", d.Domain(), err)
		}
	}
	span.SetAttributes(attribute.Int("sync.hydrated", total))
	o.log.Info("hydration complete", "owner_id", sess.OwnerID, "added", total)
	return total, nil
}
