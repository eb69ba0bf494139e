package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig holds crash report bucket configuration.
type GCSConfig struct {
	Bucket          string `json:"bucket" mapstructure:"bucket"`
	CredentialsPath string `json:"credentials_path,omitempty" mapstructure:"credentials_path"`
	// Endpoint overrides the storage API, e.g. for an emulator.
	Endpoint      string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	ReportPrefix  string `json:"report_prefix" mapstructure:"report_prefix"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
}

// DefaultGCSConfig returns default bucket configuration.
func DefaultGCSConfig() GCSConfig {
	return GCSConfig{
		ReportPrefix:  "crash-reports/",
		RetentionDays: 90,
	}
}

// ReportUploader stores crash reports as JSON objects in a GCS bucket.
type ReportUploader struct {
	config GCSConfig
	client *storage.Client
	logger ports.Logger
}

// NewReportUploader creates an uploader for the configured bucket.
func NewReportUploader(ctx context.Context, config GCSConfig, logger ports.Logger) (*ReportUploader, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if config.ReportPrefix == "" {
		config.ReportPrefix = DefaultGCSConfig().ReportPrefix
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		if _, err := os.Stat(config.CredentialsPath); err != nil {
			return nil, fmt.Errorf("credentials file not found: %s", config.CredentialsPath)
		}
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &ReportUploader{
		config: config,
		client: client,
		logger: logger,
	}, nil
}

// ReportObject describes an uploaded report.
type ReportObject struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"path"`
}

// Upload writes the report under its dated object name.
func (u *ReportUploader) Upload(ctx context.Context, report *domain.CrashReport) error {
	data, err := encodeReport(report)
	if err != nil {
		return err
	}

	objectName := report.ObjectName(u.config.ReportPrefix)
	w := u.client.Bucket(u.config.Bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{"message": truncate(report.Message, 256)}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload report: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}

	u.logger.Debug("Crash report uploaded", "bucket", u.config.Bucket, "object", objectName)
	return nil
}

// List returns uploaded reports, optionally narrowed to a date prefix
// such as "2026/10/".
func (u *ReportUploader) List(ctx context.Context, datePrefix string) ([]ReportObject, error) {
	query := &storage.Query{Prefix: u.config.ReportPrefix + datePrefix}

	var out []ReportObject
	it := u.client.Bucket(u.config.Bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		out = append(out, ReportObject{
			Name:      strings.TrimPrefix(attrs.Name, u.config.ReportPrefix),
			Size:      attrs.Size,
			CreatedAt: attrs.Created,
			Path:      fmt.Sprintf("gs://%s/%s", u.config.Bucket, attrs.Name),
		})
	}
	return out, nil
}

// Cleanup deletes reports older than the retention period.
func (u *ReportUploader) Cleanup(ctx context.Context) (int, error) {
	if u.config.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -u.config.RetentionDays)
	objects, err := u.List(ctx, "")
	if err != nil {
		return 0, err
	}

	deleted := 0
	bucket := u.client.Bucket(u.config.Bucket)
	for _, o := range objects {
		if !o.CreatedAt.Before(cutoff) {
			continue
		}
		if err := bucket.Object(u.config.ReportPrefix + o.Name).Delete(ctx); err != nil {
			u.logger.Error("Failed to delete expired report", "name", o.Name, "error", err)
			continue
		}
		deleted++
	}

	u.logger.Info("Report cleanup completed", "deleted", deleted, "retention_days", u.config.RetentionDays)
	return deleted, nil
}

// Close closes the storage client.
func (u *ReportUploader) Close() error {
	if u.client != nil {
		return u.client.Close()
	}
	return nil
}

func encodeReport(report *domain.CrashReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("nil report")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
