// Package cloud exports firebridge telemetry to Google Cloud.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"google.golang.org/api/option"
	metricpb "google.golang.org/genproto/googleapis/api/metric"
	monitoredrespb "google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// GCPConfig holds Cloud Monitoring configuration.
type GCPConfig struct {
	ProjectID       string        `json:"project_id" mapstructure:"project_id"`
	CredentialsPath string        `json:"credentials_path,omitempty" mapstructure:"credentials_path"`
	MetricPrefix    string        `json:"metric_prefix" mapstructure:"metric_prefix"`
	FlushInterval   time.Duration `json:"flush_interval" mapstructure:"flush_interval"`
	BatchSize       int           `json:"batch_size" mapstructure:"batch_size"`
}

// DefaultGCPConfig returns default Cloud Monitoring configuration.
func DefaultGCPConfig() GCPConfig {
	return GCPConfig{
		MetricPrefix:  "custom.googleapis.com/firebridge",
		FlushInterval: 60 * time.Second,
		BatchSize:     200,
	}
}

// PerformanceExporter turns finished HTTP metrics and traces into Cloud
// Monitoring time series. Without a client it logs the samples instead.
type PerformanceExporter struct {
	config   GCPConfig
	client   *monitoring.MetricClient
	logger   ports.Logger
	sampleCh chan domain.Sample
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu           sync.RWMutex
	samplesCount int64
	droppedCount int64
	errorsCount  int64
}

// NewPerformanceExporter creates a dry-run exporter.
func NewPerformanceExporter(config GCPConfig, logger ports.Logger) (*PerformanceExporter, error) {
	if config.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultGCPConfig().BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultGCPConfig().FlushInterval
	}
	if config.MetricPrefix == "" {
		config.MetricPrefix = DefaultGCPConfig().MetricPrefix
	}
	return &PerformanceExporter{
		config:   config,
		logger:   logger,
		sampleCh: make(chan domain.Sample, 1000),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// NewPerformanceExporterWithClient creates an exporter backed by a Cloud
// Monitoring client. Application Default Credentials are used unless a
// credentials file is configured.
func NewPerformanceExporterWithClient(ctx context.Context, config GCPConfig, logger ports.Logger) (*PerformanceExporter, error) {
	e, err := NewPerformanceExporter(config, logger)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		if _, err := os.Stat(config.CredentialsPath); err != nil {
			return nil, fmt.Errorf("credentials file not found: %s", config.CredentialsPath)
		}
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	client, err := monitoring.NewMetricClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitoring client: %w", err)
	}
	e.client = client
	return e, nil
}

// RecordHTTPMetric queues the samples of a stopped HTTP metric.
func (e *PerformanceExporter) RecordHTTPMetric(_ context.Context, m *domain.HTTPMetric) error {
	return e.enqueue(HTTPMetricSamples(m))
}

// RecordTrace queues the samples of a stopped trace.
func (e *PerformanceExporter) RecordTrace(_ context.Context, t *domain.Trace) error {
	return e.enqueue(TraceSamples(t))
}

func (e *PerformanceExporter) enqueue(samples []domain.Sample) error {
	for i, s := range samples {
		select {
		case e.sampleCh <- s:
		default:
			e.mu.Lock()
			e.droppedCount += int64(len(samples) - i)
			e.mu.Unlock()
			return fmt.Errorf("sample buffer full")
		}
	}
	return nil
}

// Run flushes queued samples until ctx is cancelled or Stop is called.
// Remaining samples are flushed before it returns.
func (e *PerformanceExporter) Run(ctx context.Context) error {
	defer close(e.done)
	e.logger.Info("Performance exporter started", "project", e.config.ProjectID, "dry_run", e.client == nil)

	ticker := time.NewTicker(e.config.FlushInterval)
	defer ticker.Stop()

	var batch []domain.Sample
	drain := func() {
		for {
			select {
			case s := <-e.sampleCh:
				batch = append(batch, s)
			default:
				e.flush(batch)
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return nil
		case <-e.stopCh:
			drain()
			return nil
		case s := <-e.sampleCh:
			batch = append(batch, s)
			if len(batch) >= e.config.BatchSize {
				e.flush(batch)
				batch = nil
			}
		case <-ticker.C:
			if len(batch) > 0 {
				e.flush(batch)
				batch = nil
			}
		}
	}
}

// Stop ends Run and waits for its final flush.
func (e *PerformanceExporter) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.done
}

func (e *PerformanceExporter) flush(samples []domain.Sample) {
	if len(samples) == 0 {
		return
	}
	e.logger.Debug("Flushing performance samples", "count", len(samples))

	if e.client == nil {
		for _, s := range samples {
			e.logger.Debug("Performance sample (dry-run)",
				"type", e.metricType(s.Name),
				"value", s.Value,
				"labels", s.Labels,
			)
		}
		e.mu.Lock()
		e.samplesCount += int64(len(samples))
		e.mu.Unlock()
		return
	}

	// Cloud Monitoring caps a request at 200 series.
	for start := 0; start < len(samples); start += 200 {
		end := min(start+200, len(samples))
		req := e.timeSeriesRequest(samples[start:end])
		if err := e.client.CreateTimeSeries(context.Background(), req); err != nil {
			e.mu.Lock()
			e.errorsCount++
			e.mu.Unlock()
			e.logger.Error("Failed to send performance samples", "error", err, "count", end-start)
			continue
		}
		e.mu.Lock()
		e.samplesCount += int64(end - start)
		e.mu.Unlock()
	}
}

func (e *PerformanceExporter) metricType(name string) string {
	return e.config.MetricPrefix + "/" + name
}

func (e *PerformanceExporter) timeSeriesRequest(samples []domain.Sample) *monitoringpb.CreateTimeSeriesRequest {
	series := make([]*monitoringpb.TimeSeries, 0, len(samples))
	for _, s := range samples {
		series = append(series, &monitoringpb.TimeSeries{
			Metric: &metricpb.Metric{
				Type:   e.metricType(s.Name),
				Labels: s.Labels,
			},
			Resource: &monitoredrespb.MonitoredResource{
				Type:   "global",
				Labels: map[string]string{"project_id": e.config.ProjectID},
			},
			Points: []*monitoringpb.Point{{
				Interval: &monitoringpb.TimeInterval{
					EndTime: timestamppb.New(s.Timestamp),
				},
				Value: &monitoringpb.TypedValue{
					Value: &monitoringpb.TypedValue_DoubleValue{DoubleValue: s.Value},
				},
			}},
		})
	}
	return &monitoringpb.CreateTimeSeriesRequest{
		Name:       "projects/" + e.config.ProjectID,
		TimeSeries: series,
	}
}

// Stats returns exporter statistics.
func (e *PerformanceExporter) Stats() (samples, dropped, errs int64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.samplesCount, e.droppedCount, e.errorsCount
}

// Close closes the monitoring client.
func (e *PerformanceExporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// HTTPMetricSamples converts a stopped HTTP metric into samples. Labels
// carry the host, method and response code plus custom attributes.
func HTTPMetricSamples(m *domain.HTTPMetric) []domain.Sample {
	labels := m.Attributes()
	labels["method"] = m.Method
	labels["response_code"] = strconv.Itoa(m.ResponseCode)
	if u, err := url.Parse(m.URL); err == nil && u.Host != "" {
		labels["host"] = u.Host
	}
	if m.ResponseContentType != "" {
		labels["content_type"] = m.ResponseContentType
	}

	at := m.EndTime
	if at.IsZero() {
		at = time.Now()
	}
	samples := []domain.Sample{{
		Name:      "http/duration_ms",
		Value:     float64(m.Duration()) / float64(time.Millisecond),
		Labels:    labels,
		Timestamp: at,
	}}
	if m.RequestPayloadSize > 0 {
		samples = append(samples, domain.Sample{
			Name: "http/request_bytes", Value: float64(m.RequestPayloadSize), Labels: cloneLabels(labels), Timestamp: at,
		})
	}
	if m.ResponsePayloadSize > 0 {
		samples = append(samples, domain.Sample{
			Name: "http/response_bytes", Value: float64(m.ResponsePayloadSize), Labels: cloneLabels(labels), Timestamp: at,
		})
	}
	return samples
}

// TraceSamples converts a stopped trace into a duration sample plus one
// sample per counter.
func TraceSamples(t *domain.Trace) []domain.Sample {
	labels := t.Attributes()
	labels["trace"] = t.Name

	at := t.EndTime
	if at.IsZero() {
		at = time.Now()
	}
	samples := []domain.Sample{{
		Name:      "trace/duration_ms",
		Value:     float64(t.Duration()) / float64(time.Millisecond),
		Labels:    labels,
		Timestamp: at,
	}}
	for name, v := range t.Metrics() {
		l := cloneLabels(labels)
		l["counter"] = name
		samples = append(samples, domain.Sample{
			Name: "trace/counter", Value: float64(v), Labels: l, Timestamp: at,
		})
	}
	return samples
}

func cloneLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
