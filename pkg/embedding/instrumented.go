package embedding

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/observability"
)

// instrumented decorates a Provider with spans, otel metrics and debug logs.
type instrumented struct {
	next     Provider
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	texts    metric.Int64Counter
}

// Instrumented wraps p so every call records latency, errors and text
// counts. The instruments come from the global meter provider and are
// exported on /metrics through the Prometheus bridge.
func Instrumented(p Provider) Provider {
	meter := observability.Meter()
	// Instrument creation only fails on invalid names; the no-op fallbacks
	// returned alongside the error are safe to use.
	duration, _ := meter.Float64Histogram("mcp_census_embedding_duration",
		metric.WithDescription("Embedding request latency"),
		metric.WithUnit("s"),
	)
	errs, _ := meter.Int64Counter("mcp_census_embedding_errors",
		metric.WithDescription("Failed embedding requests"),
	)
	texts, _ := meter.Int64Counter("mcp_census_embedding_texts",
		metric.WithDescription("Texts submitted for embedding"),
	)
	return &instrumented{next: p, duration: duration, errors: errs, texts: texts}
}

func (i *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := i.observe(ctx, "embed", 1, func(ctx context.Context) error {
		var err error
		vec, err = i.next.Embed(ctx, text)
		return err
	})
	return vec, err
}

func (i *instrumented) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := i.observe(ctx, "embed_batch", len(texts), func(ctx context.Context) error {
		var err error
		vecs, err = i.next.EmbedBatch(ctx, texts)
		return err
	})
	return vecs, err
}

func (i *instrumented) Dimensions() int { return i.next.Dimensions() }

func (i *instrumented) ModelID() string { return i.next.ModelID() }

func (i *instrumented) observe(ctx context.Context, op string, n int, fn func(context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "embedding."+op)
	defer span.End()

	attrs := metric.WithAttributes(
		attribute.String("model", i.next.ModelID()),
		attribute.String("op", op),
	)
	span.SetAttributes(attribute.String("embedding.model", i.next.ModelID()), attribute.Int("embedding.texts", n))

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	i.duration.Record(ctx, elapsed.Seconds(), attrs)
	i.texts.Add(ctx, int64(n), attrs)
	if err != nil {
		i.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
	}
	debug.Log("embedding", op, "model", i.next.ModelID(), "texts", n, "duration", elapsed, "error", err)
	return err
}
