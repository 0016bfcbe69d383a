package telemetry

import (
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// NewLogHandler returns a handler that writes every record to local and
// also emits it through the OpenTelemetry logger named name. With no log
// provider installed the OTel side is a no-op.
func NewLogHandler(local slog.Handler, name string, opts ...otelslog.Option) slog.Handler {
	return slogmulti.Fanout(local, otelslog.NewHandler(name, opts...))
}
