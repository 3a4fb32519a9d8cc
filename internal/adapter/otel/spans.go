package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "flapd"

// StartChatSpan starts a span for one chat turn.
func StartChatSpan(ctx context.Context, provider string, streaming bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "chat",
		trace.WithAttributes(
			attribute.String("chat.provider", provider),
			attribute.Bool("chat.streaming", streaming),
		),
	)
}

// StartSearchSpan starts a span for one web search by the agent.
func StartSearchSpan(ctx context.Context, engine, query string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "websearch",
		trace.WithAttributes(
			attribute.String("search.engine", engine),
			attribute.String("search.query", query),
		),
	)
}
