package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType classifies recorded errors so traces can be filtered by source.
type ErrorType string

const (
	// ErrorTypeHTTP marks errors from the HTTP surface.
	ErrorTypeHTTP ErrorType = "http"
	// ErrorTypeDB marks database errors.
	ErrorTypeDB ErrorType = "db"
	// ErrorTypeRabbitMQ marks broker errors.
	ErrorTypeRabbitMQ ErrorType = "rabbitmq"
	// ErrorTypeRedis marks idempotency-store errors.
	ErrorTypeRedis ErrorType = "redis"
	// ErrorTypeValidation marks domain validation errors.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeSerialization marks event encode/decode errors.
	ErrorTypeSerialization ErrorType = "serialization"
	// ErrorTypeInternal marks everything else.
	ErrorTypeInternal ErrorType = "internal"
)

// RecordError records err on span with a uniform error type attribute and
// marks the span as failed.
func RecordError(span trace.Span, err error, errorType ErrorType) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", err.Error()),
	)
	span.SetStatus(codes.Error, err.Error())
}

// RecordErrorWithInfo records err with additional attributes.
func RecordErrorWithInfo(span trace.Span, err error, errorType ErrorType, attributes ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", err.Error()),
	)
	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}
	span.SetStatus(codes.Error, err.Error())
}
