package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Sampling strategies. All of them are wrapped in ParentBased, so a sampled
// upstream trace stays sampled through Overture and an unsampled one stays
// unsampled; the configured strategy only decides for root spans.
const (
	// SamplerAlways samples every root trace. Development and debugging.
	SamplerAlways = "always"

	// SamplerNever samples no root traces.
	SamplerNever = "never"

	// SamplerRatio samples a fraction of root traces by trace ID hash, so
	// the decision is consistent across services sharing the trace.
	SamplerRatio = "ratio"
)

// newSampler builds the sampler for the named strategy.
func newSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	var base sdktrace.Sampler

	switch strategy {
	case SamplerAlways:
		base = sdktrace.AlwaysSample()

	case SamplerNever:
		base = sdktrace.NeverSample()

	case SamplerRatio:
		if ratio < 0.0 || ratio > 1.0 {
			return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
		}
		base = sdktrace.TraceIDRatioBased(ratio)

	default:
		return nil, fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio)", strategy)
	}

	return sdktrace.ParentBased(base), nil
}
