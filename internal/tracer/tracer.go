// Package tracer emits a span per statement and per transaction.
// OpenTelemetry is the only real backend; NoopTracer is the default.
package tracer

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names emitted by the connection layer.
const (
	SpanQuery       = "quarry.query"
	SpanTransaction = "quarry.transaction"
)

const instrumentationName = "github.com/coregx/quarry"

// Tracer starts spans. Attributes known up front are given to Start, the
// rest are set on the span before Finish.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span)
}

// Span is one traced statement or transaction.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	// Finish records err, if any, as the span status and ends the span.
	Finish(err error)
}

// NoopTracer discards everything.
type NoopTracer struct{}

// Start returns ctx unchanged.
func (NoopTracer) Start(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttributes(...attribute.KeyValue) {}
func (noopSpan) Finish(error)                        {}

// OtelTracer starts client-kind OpenTelemetry spans.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer wraps t. A nil t uses the globally registered provider.
func NewOtelTracer(t trace.Tracer) *OtelTracer {
	if t == nil {
		t = otel.Tracer(instrumentationName)
	}
	return &OtelTracer{tracer: t}
}

// Start implements Tracer.
func (t *OtelTracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

func (s otelSpan) Finish(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// Statement is the traced view of one executed statement. SQL keeps its
// "?" placeholders; binding values are never put on a span.
type Statement struct {
	// System is the dialect name: postgres, mysql or sqlite.
	System string
	// Connection is the logical name, e.g. "mysql::read".
	Connection   string
	SQL          string
	Bindings     int
	Duration     time.Duration
	RowsAffected int64
	Retried      bool
}

// Attributes follow the OpenTelemetry database conventions where one exists.
func (st Statement) Attributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 8)
	attrs = append(attrs,
		attribute.String("db.system", st.System),
		attribute.String("db.statement", st.SQL),
		attribute.String("db.operation", Operation(st.SQL)),
		attribute.Int("db.bindings", st.Bindings),
		attribute.Float64("db.duration_ms", float64(st.Duration.Microseconds())/1000.0),
	)
	if st.Connection != "" {
		attrs = append(attrs, attribute.String("db.name", st.Connection))
	}
	if st.RowsAffected > 0 {
		attrs = append(attrs, attribute.Int64("db.rows_affected", st.RowsAffected))
	}
	if st.Retried {
		attrs = append(attrs, attribute.Bool("quarry.retried", true))
	}
	return attrs
}

// Transaction is the traced view of one Transaction call.
type Transaction struct {
	Connection string
	// Level is the nesting depth the call started at; 1 is the outermost.
	Level int
	// Attempts counts runs of the callback, deadlock retries included.
	Attempts int
}

// Attributes of a transaction span.
func (tx Transaction) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.name", tx.Connection),
		attribute.Int("quarry.tx.level", tx.Level),
		attribute.Int("quarry.tx.attempts", tx.Attempts),
	}
}

var operations = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"REPLACE": true, "TRUNCATE": true, "EXPLAIN": true, "SAVEPOINT": true,
}

// Operation classifies a statement by its leading keyword. A leading "with"
// or parenthesis counts as SELECT, savepoint release and rollback count as
// SAVEPOINT, anything unrecognised is UNKNOWN.
func Operation(query string) string {
	words := strings.Fields(strings.TrimLeft(strings.TrimSpace(query), "("))
	if len(words) == 0 {
		return "UNKNOWN"
	}
	first := strings.ToUpper(words[0])
	switch {
	case first == "WITH":
		return "SELECT"
	case (first == "RELEASE" || first == "ROLLBACK") && len(words) > 1 &&
		strings.EqualFold(words[len(words)-2], "SAVEPOINT"):
		return "SAVEPOINT"
	case operations[first]:
		return first
	}
	return "UNKNOWN"
}
