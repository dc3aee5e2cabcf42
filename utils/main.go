package utils

import (
	"context"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	span "go.opentelemetry.io/otel/trace"
)

type KeyPlayer struct{}

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

type StartSpanOpts struct {
	TracerName string
}

func StartSpanWithOpts(ctx context.Context, spanName string, opts *StartSpanOpts) (context.Context, span.Span) {
	return otel.GetTracerProvider().Tracer(opts.TracerName).Start(ctx, spanName)
}

func StartSpan(ctx context.Context, spanName string) (context.Context, span.Span) {
	return StartSpanWithOpts(ctx, spanName, &StartSpanOpts{TracerName: "realm-game"})
}

func StartCronSpan(ctx context.Context, spanName string) (context.Context, span.Span) {
	return StartSpanWithOpts(ctx, spanName, &StartSpanOpts{TracerName: "realm-cron"})
}

// FailSpan marks the span on ctx as errored.
func FailSpan(ctx context.Context, err error) {
	if err == nil {
		return
	}

	sp := span.SpanFromContext(ctx)
	sp.RecordError(err)
	sp.SetStatus(codes.Error, err.Error())
}

func PlayerFromContext(ctx context.Context) string {
	if player, ok := ctx.Value(KeyPlayer{}).(string); ok {
		return player
	}
	return ""
}
