package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/SmarTanom/sessionguard"
	"github.com/SmarTanom/sessionguard/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no snapshot source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() sessionguard.MetricsSnapshot
	AuditDropped() uint64
	IsAuthenticated() bool
}

// observedSeries pairs a counter ID with its precomputed label set.
type observedSeries struct {
	id   sessionguard.MetricID
	opts []metric.ObserveOption
}

type observedFamily struct {
	instrument metric.Int64ObservableCounter
	series     []observedSeries
}

// OTelExporter publishes guard metrics through observable instruments that
// read a fresh snapshot on every collection. Each counter family becomes one
// instrument whose series carry the family label as an attribute; the login
// latency histogram is exposed as cumulative bucket gauges keyed by "le".
type OTelExporter struct {
	source        metricsSource
	registration  metric.Registration
	families      []observedFamily
	latency       metric.Int64ObservableGauge
	latencyCount  metric.Int64ObservableGauge
	latencyID     sessionguard.MetricID
	bucketOpts    []metric.ObserveOption
	auditDropped  metric.Int64ObservableCounter
	authenticated metric.Int64ObservableGauge
}

// NewOTelExporter registers instruments on meter that read from guard.
func NewOTelExporter(meter metric.Meter, guard *sessionguard.Guard) (*OTelExporter, error) {
	if guard == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, guard)
}

// NewOTelExporterFromSource registers instruments over any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:   source,
		families: make([]observedFamily, 0, len(internaldefs.CounterFamilies)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.CounterFamilies)+4)

	for _, fam := range internaldefs.CounterFamilies {
		ins, err := meter.Int64ObservableCounter(fam.Name, metric.WithDescription(fam.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", fam.Name, err)
		}
		of := observedFamily{instrument: ins, series: make([]observedSeries, 0, len(fam.Series))}
		for _, series := range fam.Series {
			obs := observedSeries{id: series.ID}
			if fam.Label != "" {
				obs.opts = []metric.ObserveOption{metric.WithAttributes(attribute.String(fam.Label, series.Value))}
			}
			of.series = append(of.series, obs)
		}
		exporter.families = append(exporter.families, of)
		observables = append(observables, ins)
	}

	hist := internaldefs.HistogramDefs[0]
	exporter.latencyID = hist.ID
	latency, err := meter.Int64ObservableGauge(hist.Name+"_bucket", metric.WithDescription(hist.Help+" Cumulative count per le bound."))
	if err != nil {
		return nil, fmt.Errorf("create histogram bucket gauge: %w", err)
	}
	latencyCount, err := meter.Int64ObservableGauge(hist.Name+"_count", metric.WithDescription("Login latency sample count."))
	if err != nil {
		return nil, fmt.Errorf("create histogram count gauge: %w", err)
	}
	exporter.latency, exporter.latencyCount = latency, latencyCount
	for _, le := range internaldefs.HistogramBounds {
		exporter.bucketOpts = append(exporter.bucketOpts, metric.WithAttributes(attribute.String("le", le)))
	}

	auditDropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName, metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	authenticated, err := meter.Int64ObservableGauge(internaldefs.AuthenticatedName, metric.WithDescription(internaldefs.AuthenticatedHelp))
	if err != nil {
		return nil, fmt.Errorf("create authenticated gauge: %w", err)
	}
	exporter.auditDropped, exporter.authenticated = auditDropped, authenticated
	observables = append(observables, latency, latencyCount, auditDropped, authenticated)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, fam := range e.families {
		for _, s := range fam.series {
			observer.ObserveInt64(fam.instrument, int64(snapshot.Counters[s.id]), s.opts...)
		}
	}

	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[e.latencyID]))
	for i, opt := range e.bucketOpts {
		observer.ObserveInt64(e.latency, int64(cumulative[i]), opt)
	}
	observer.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))

	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	observer.ObserveInt64(e.authenticated, int64(internaldefs.Bool01(e.source.IsAuthenticated())))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
