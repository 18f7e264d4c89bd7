package metrics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	meter = otel.Meter("mojiokoshi/business")

	noopMeter = noop.NewMeterProvider().Meter("mojiokoshi/noop")

	// Transcription job metrics
	TranscriptionJobsTotal   metric.Int64Counter     = mustNoopCounter("transcription.jobs.total")
	TranscriptionJobDuration metric.Float64Histogram = mustNoopHistogram("transcription.job.duration")
	PollAttempts             metric.Int64Histogram   = mustNoopInt64Histogram("transcription.poll.attempts")

	// External API metrics
	ExternalAPICallsTotal metric.Int64Counter     = mustNoopCounter("external.api.calls.total")
	ExternalAPIDuration   metric.Float64Histogram = mustNoopHistogram("external.api.duration")
)

// Instruments default to no-ops so packages can record before Init runs
// (tests, the terminal front-end without telemetry).
func mustNoopCounter(name string) metric.Int64Counter {
	c, _ := noopMeter.Int64Counter(name)
	return c
}

func mustNoopHistogram(name string) metric.Float64Histogram {
	h, _ := noopMeter.Float64Histogram(name)
	return h
}

func mustNoopInt64Histogram(name string) metric.Int64Histogram {
	h, _ := noopMeter.Int64Histogram(name)
	return h
}

func Init() error {
	var err error

	TranscriptionJobsTotal, err = meter.Int64Counter(
		"transcription.jobs.total",
		metric.WithDescription("Total number of transcription jobs by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	TranscriptionJobDuration, err = meter.Float64Histogram(
		"transcription.job.duration",
		metric.WithDescription("Duration of a transcription job from upload to composed result"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return err
	}

	PollAttempts, err = meter.Int64Histogram(
		"transcription.poll.attempts",
		metric.WithDescription("Status checks needed before the remote file left PROCESSING"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return err
	}

	ExternalAPICallsTotal, err = meter.Int64Counter(
		"external.api.calls.total",
		metric.WithDescription("Total number of external API calls"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	ExternalAPIDuration, err = meter.Float64Histogram(
		"external.api.duration",
		metric.WithDescription("Duration of external API calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return err
	}

	return nil
}
