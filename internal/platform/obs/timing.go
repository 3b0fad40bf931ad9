package obs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type ctxKey string

const RequestIDKey ctxKey = "req_id"

var opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "tow",
	Subsystem: "engine",
	Name:      "operation_duration_seconds",
	Help:      "Duration of dispatch engine operations",
	Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
}, []string{"op", "outcome"})

// Register exposes the operation histogram on reg. Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(opDuration); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// WithRequestID stores the request id used to correlate operation logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Time starts timing op. Call the returned func with a pointer to the operation's
// named error result; it logs through the context logger and records the histogram.
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	return func(errp *error) {
		dur := time.Since(start)
		l := zerolog.Ctx(ctx)

		if errp != nil && *errp != nil {
			opDuration.WithLabelValues(name, "error").Observe(dur.Seconds())
			l.Warn().
				Str("req_id", RequestID(ctx)).
				Str("op", name).
				Dur("dur", dur).
				Err(*errp).
				Msg("operation failed")
			return
		}

		opDuration.WithLabelValues(name, "ok").Observe(dur.Seconds())
		l.Debug().
			Str("req_id", RequestID(ctx)).
			Str("op", name).
			Dur("dur", dur).
			Msg("operation done")
	}
}
