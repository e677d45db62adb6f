package telemetry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Provider owns an in-process meter provider whose readings are pulled on
// demand for the status API.
type Provider struct {
	mp     *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

// Reading is one collected data point.
type Reading struct {
	Name       string  `json:"name"`
	Attributes string  `json:"attributes,omitempty"`
	Value      float64 `json:"value"`
	Count      uint64  `json:"count,omitempty"`
}

// NewProvider returns nil when metrics are disabled.
func NewProvider(enabled bool) *Provider {
	if !enabled {
		return nil
	}
	reader := sdkmetric.NewManualReader()
	return &Provider{
		mp:     sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader: reader,
	}
}

// MeterProvider returns the provider for instrument construction, or nil when disabled.
func (p *Provider) MeterProvider() metric.MeterProvider {
	if p == nil {
		return nil
	}
	return p.mp
}

// Collect flattens the current counters and histograms into readings sorted
// by name and attributes. Histograms report their sum in Value and the
// observation count in Count.
func (p *Provider) Collect(ctx context.Context) ([]Reading, error) {
	if p == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var out []Reading
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out = append(out, Reading{Name: m.Name, Attributes: dp.Attributes.Encoded(labelEncoder), Value: float64(dp.Value)})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, Reading{Name: m.Name, Attributes: dp.Attributes.Encoded(labelEncoder), Value: dp.Value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, Reading{Name: m.Name, Attributes: dp.Attributes.Encoded(labelEncoder), Value: dp.Sum, Count: dp.Count})
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Attributes < out[j].Attributes
	})
	return out, nil
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}

var labelEncoder = attribute.DefaultEncoder()

// FormatReading renders a reading as name{attrs} value for CLI output.
func FormatReading(r Reading) string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Attributes != "" {
		b.WriteString("{")
		b.WriteString(r.Attributes)
		b.WriteString("}")
	}
	if r.Count > 0 {
		fmt.Fprintf(&b, " sum=%.2f count=%d", r.Value, r.Count)
		return b.String()
	}
	fmt.Fprintf(&b, " %g", r.Value)
	return b.String()
}
