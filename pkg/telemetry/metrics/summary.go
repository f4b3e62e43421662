package metrics

import (
	"bytes"
	"fmt"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// MetricPoint is one series value in a Summary.
type MetricPoint struct {
	Name   string            `json:"name"`
	Kind   string            `json:"kind"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Summary returns every registered series as structured points, sorted by
// name then label fingerprint. Histograms contribute _count and _sum points.
func (r *Registry) Summary() ([]MetricPoint, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var points []MetricPoint
	for _, mf := range families {
		name := mf.GetName()
		for _, m := range mf.GetMetric() {
			labels := labelMap(m)
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				points = append(points, MetricPoint{
					Name: name, Kind: "counter", Labels: labels,
					Value: m.GetCounter().GetValue(),
				})
			case dto.MetricType_GAUGE:
				points = append(points, MetricPoint{
					Name: name, Kind: "gauge", Labels: labels,
					Value: m.GetGauge().GetValue(),
				})
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				points = append(points,
					MetricPoint{
						Name: name + "_count", Kind: "counter", Labels: labels,
						Value: float64(h.GetSampleCount()),
					},
					MetricPoint{
						Name: name + "_sum", Kind: "counter", Labels: labels,
						Value: h.GetSampleSum(),
					},
				)
			default:
				points = append(points, MetricPoint{
					Name: name, Kind: "untyped", Labels: labels,
					Value: m.GetUntyped().GetValue(),
				})
			}
		}
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Name != points[j].Name {
			return points[i].Name < points[j].Name
		}
		return labelFingerprint(points[i].Labels) < labelFingerprint(points[j].Labels)
	})

	return points, nil
}

// Exposition renders every registered series in the Prometheus text format.
func (r *Registry) Exposition() (string, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
	}

	return buf.String(), nil
}

func labelMap(m *dto.Metric) map[string]string {
	pairs := m.GetLabel()
	if len(pairs) == 0 {
		return nil
	}
	labels := make(map[string]string, len(pairs))
	for _, p := range pairs {
		labels[p.GetName()] = p.GetValue()
	}
	return labels
}

func labelFingerprint(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%s,", k, labels[k])
	}
	return buf.String()
}
