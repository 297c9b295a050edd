package remote

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "taskboard/remote"
	storeSpanName    = "taskboard.store.request"
	storeEventName   = "taskboard.store.request"
	storeEventDomain = "app"

	attrHTTPMethod     = "http.method"
	attrHTTPRoute      = "http.route"
	attrHTTPStatusCode = "http.status_code"
	attrTotalMillis    = "taskboard.store.total_ms"
	attrTasksReturned  = "taskboard.store.tasks_returned"
	attrErrorStage     = "taskboard.store.error_stage"
)

type requestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	method        string
	route         string
	tasksReturned int
	errorStage    string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, storeSpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrHTTPMethod, method),
			attribute.String(attrHTTPRoute, route),
		),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		method: method,
		route:  route,
	}, ctx
}

func (m *requestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the request span and writes one structured log line for it.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	total := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.Int(attrHTTPStatusCode, status),
		attribute.Float64(attrTotalMillis, total),
		attribute.Int(attrTasksReturned, m.tasksReturned),
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrErrorStage, m.errorStage))
	}
	m.span.SetAttributes(attrs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(
		attribute.String("event.name", storeEventName),
		attribute.String("event.domain", storeEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Float64(attrTotalMillis, total),
	))
	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	} else if status >= http.StatusBadRequest {
		m.span.SetStatus(codes.Error, http.StatusText(status))
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	spanCtx := m.span.SpanContext()
	m.span.End()

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      storeEventName,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"method":          m.method,
		"route":           m.route,
		"status":          status,
		"total_ms":        total,
		"tasks_returned":  m.tasksReturned,
	}
	if spanCtx.HasTraceID() {
		fields["trace_id"] = spanCtx.TraceID().String()
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("store.request.metrics")
	case "WARN":
		entry.Warn("store.request.metrics")
	default:
		entry.Info("store.request.metrics")
	}
}

// severityForStatus maps a response onto OpenTelemetry log severities.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
