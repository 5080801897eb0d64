package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "brandkit"

// Resolve outcomes recorded by FormatObserver.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeOriginal = "original"
	OutcomeVector   = "vector"
	OutcomeFailed   = "failed"
)

var (
	prewarmJobsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: defaultNamespace,
		Name:      "prewarm_jobs_received_total",
		Help:      "Prewarm queue messages received by the worker.",
	})
	prewarmJobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: defaultNamespace,
		Name:      "prewarm_jobs_completed_total",
		Help:      "Prewarm jobs that finished and were deleted from the queue.",
	})
	prewarmJobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: defaultNamespace,
		Name:      "prewarm_jobs_failed_total",
		Help:      "Prewarm jobs that failed and were left for redelivery.",
	})
	prewarmJobsDeletedUnrecoverable = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: defaultNamespace,
		Name:      "prewarm_jobs_deleted_unrecoverable_total",
		Help:      "Prewarm messages deleted because they could never succeed.",
	})
)

// IncPrewarmJobsReceived counts a received prewarm message.
func IncPrewarmJobsReceived() { prewarmJobsReceived.Inc() }

// IncPrewarmJobsCompleted counts a prewarm job that finished successfully.
func IncPrewarmJobsCompleted() { prewarmJobsCompleted.Inc() }

// IncPrewarmJobsFailed counts a prewarm job left on the queue for retry.
func IncPrewarmJobsFailed() { prewarmJobsFailed.Inc() }

// IncPrewarmJobsDeletedUnrecoverable counts a poison message removed from the queue.
func IncPrewarmJobsDeletedUnrecoverable() { prewarmJobsDeletedUnrecoverable.Inc() }

// FormatObserver exports format cache metrics to Prometheus.
type FormatObserver struct {
	resolves         *prometheus.CounterVec
	resolveDuration  *prometheus.HistogramVec
	conversionErrors *prometheus.CounterVec
	convertedBytes   *prometheus.CounterVec
}

// NewFormatObserver registers the format cache collectors on reg (default registry when nil).
// Registering twice reuses the existing collectors.
func NewFormatObserver(namespace string, reg prometheus.Registerer) (*FormatObserver, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	o := &FormatObserver{}
	o.resolves, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "format_resolves_total",
		Help:      "Format resolutions by target format and outcome.",
	}, []string{"format", "outcome"}))
	if err != nil {
		return nil, fmt.Errorf("register resolve counter: %w", err)
	}
	o.resolveDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "format_resolve_duration_seconds",
		Help:      "Latency of format resolutions, including conversion and upload on a miss.",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"format", "outcome"}))
	if err != nil {
		return nil, fmt.Errorf("register resolve histogram: %w", err)
	}
	o.conversionErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "format_conversion_errors_total",
		Help:      "Failed conversions by target format.",
	}, []string{"format"}))
	if err != nil {
		return nil, fmt.Errorf("register conversion error counter: %w", err)
	}
	o.convertedBytes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "format_converted_bytes_total",
		Help:      "Bytes of converted output uploaded to the blob store.",
	}, []string{"format"}))
	if err != nil {
		return nil, fmt.Errorf("register converted bytes counter: %w", err)
	}
	return o, nil
}

// RecordResolve tracks one ResolveFormat call.
func (o *FormatObserver) RecordResolve(format, outcome string, duration time.Duration) {
	if o == nil {
		return
	}
	o.resolves.WithLabelValues(format, outcome).Inc()
	o.resolveDuration.WithLabelValues(format, outcome).Observe(duration.Seconds())
}

// RecordConversion tracks converter output size or failure.
func (o *FormatObserver) RecordConversion(format string, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	if err != nil {
		o.conversionErrors.WithLabelValues(format).Inc()
		return
	}
	o.convertedBytes.WithLabelValues(format).Add(float64(sizeBytes))
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Handler exposes the default registry in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
