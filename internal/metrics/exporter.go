package metrics

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace       = "thermonode"
	shutdownTimeout = 5 * time.Second
)

// Message outcomes counted by Instruments.Messages.
const (
	StatusAccepted     = "accepted"
	StatusIgnored      = "ignored"
	StatusMalformed    = "malformed"
	StatusMissingField = "missing_field"
)

// Instruments holds the node's live Prometheus metrics
type Instruments struct {
	Publishers      prometheus.Gauge
	MeanTemperature prometheus.Gauge
	ActuatorOn      prometheus.Gauge
	Messages        *prometheus.CounterVec
	Evictions       prometheus.Counter
	Published       prometheus.Counter
	PublishErrors   prometheus.Counter
	SensorErrors    prometheus.Counter
}

// NewInstruments creates the instruments and registers them with reg.
// A nil reg leaves them unregistered.
func NewInstruments(reg prometheus.Registerer) *Instruments {
	ins := &Instruments{
		Publishers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "publishers",
			Help:      "Number of live publishers in the registry",
		}),
		MeanTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "mean_celsius",
			Help:      "Mean temperature over live publishers (0 when none)",
		}),
		ActuatorOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actuator_on",
			Help:      "Actuator output (0=off, 1=on)",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by outcome",
		}, []string{"status"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Publishers evicted for exceeding the TTL",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Telemetry records published",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Publish attempts that failed",
		}),
		SensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_errors_total",
			Help:      "Sensor reads that failed",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			ins.Publishers,
			ins.MeanTemperature,
			ins.ActuatorOn,
			ins.Messages,
			ins.Evictions,
			ins.Published,
			ins.PublishErrors,
			ins.SensorErrors,
		)
	}

	return ins
}

func boolToFloat(b bool) float64 {
	return float64(boolToInt(b))
}

// ObserveReport updates the gauges from one report tick.
func (ins *Instruments) ObserveReport(r *Report) {
	ins.Publishers.Set(float64(r.Count))
	ins.MeanTemperature.Set(r.Mean)
	ins.ActuatorOn.Set(boolToFloat(r.ActuatorOn))
}

// Serve exposes gatherer on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.New().Wrap(ErrExporter, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.New().Wrap(ErrExporter, err)
		}
		return nil
	}
}
