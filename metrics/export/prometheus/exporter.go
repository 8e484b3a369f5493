package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/SmarTanom/sessionguard"
	"github.com/SmarTanom/sessionguard/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() sessionguard.MetricsSnapshot
	AuditDropped() uint64
	IsAuthenticated() bool
}

// PrometheusExporter renders guard metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates an exporter that reads from guard.
func NewPrometheusExporter(guard *sessionguard.Guard) *PrometheusExporter {
	return &PrometheusExporter{source: guard}
}

// NewPrometheusExporterFromSource creates an exporter over any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves the rendered metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics as text. It returns "" when nothing has
// been recorded.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, fam := range internaldefs.CounterFamilies {
		writeHeader(&b, fam.Name, fam.Help, "counter")
		for _, series := range fam.Series {
			writeSample(&b, fam.Name, fam.Label, series.Value, snapshot.Counters[series.ID])
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
		cumulative := internaldefs.CumulativeBuckets(nonCumulative)
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	writeHeader(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	writeSample(&b, internaldefs.AuditDroppedName, "", "", dropped)

	writeHeader(&b, internaldefs.AuthenticatedName, internaldefs.AuthenticatedHelp, "gauge")
	writeSample(&b, internaldefs.AuthenticatedName, "", "", internaldefs.Bool01(p.source.IsAuthenticated()))

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

// writeSample writes one line; label is omitted when empty.
func writeSample(b *strings.Builder, name, label, value string, v uint64) {
	b.WriteString(name)
	if label != "" {
		b.WriteByte('{')
		b.WriteString(label)
		b.WriteString("=\"")
		b.WriteString(value)
		b.WriteString("\"}")
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(v, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, name+"_bucket", "le", le, cumulative[i])
	}
	writeSample(b, name+"_count", "", "", cumulative[len(cumulative)-1])

	// Snapshots carry bucket counts only.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
