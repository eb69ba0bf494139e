package cli

import (
	"context"
	"fmt"

	"github.com/forge-platform/firebridge/internal/adapters/cloud"
	"github.com/forge-platform/firebridge/internal/adapters/host"
	"github.com/forge-platform/firebridge/internal/adapters/identity"
	"github.com/forge-platform/firebridge/internal/adapters/oauthflow"
	"github.com/forge-platform/firebridge/internal/adapters/storage"
	"github.com/forge-platform/firebridge/internal/config"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"github.com/forge-platform/firebridge/internal/core/services"
)

// stackOptions overrides parts of the wiring.
type stackOptions struct {
	runner   ports.Runner
	identity ports.IdentityProvider
	launcher ports.FlowLauncher
	// remote enables the Cloud Monitoring exporter and the report uploader.
	remote bool
}

// stack is the fully wired plugin with its adapters.
type stack struct {
	cfg    *config.Config
	logger ports.Logger

	loop     *host.Loop
	db       *storage.DB
	events   *storage.AnalyticsRepository
	reports  *storage.CrashReportRepository
	crash    *services.CrashService
	uploader *cloud.ReportUploader
	exporter *cloud.PerformanceExporter
	auth     *identity.FirebaseAuth
	launcher *oauthflow.Launcher
	plugin   *services.Plugin
}

// buildStack wires every collaborator from configuration. Collaborators
// that fail to initialise are logged and left out.
func buildStack(ctx context.Context, cfg *config.Config, logger ports.Logger, opts stackOptions) (*stack, error) {
	s := &stack{cfg: cfg, logger: logger}
	s.loop = host.NewLoop(cfg.Host.HistorySize, logger)

	if err := s.openStorage(ctx, opts.remote); err != nil {
		return nil, err
	}

	client := services.NewHTTPClient(cfg.HTTP.ConnectTimeout)
	deps := services.Dependencies{
		Host:         s.loop,
		Runner:       opts.runner,
		Logger:       logger,
		Crash:        s.crash,
		HTTPClient:   client,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}
	if cfg.Analytics.Enabled {
		deps.Analytics = s.events
	}

	if opts.remote && cfg.IsPerformanceEnabled() {
		gcfg := cloud.GCPConfig{
			ProjectID:       cfg.Performance.ProjectID,
			CredentialsPath: cfg.Performance.CredentialsPath,
			MetricPrefix:    cfg.Performance.MetricPrefix,
			FlushInterval:   cfg.Performance.FlushInterval,
			BatchSize:       cfg.Performance.BatchSize,
		}
		var (
			exp *cloud.PerformanceExporter
			err error
		)
		if cfg.Performance.DryRun {
			exp, err = cloud.NewPerformanceExporter(gcfg, logger)
		} else {
			exp, err = cloud.NewPerformanceExporterWithClient(ctx, gcfg, logger)
		}
		if err != nil {
			logger.Warn("Performance export disabled", "error", err)
		} else {
			s.exporter = exp
			deps.Performance = exp
		}
	}

	switch {
	case opts.identity != nil:
		deps.Identity = opts.identity
	case cfg.IsIdentityEnabled():
		auth, err := identity.NewFirebaseAuth(identity.Config{
			APIKey:           cfg.Auth.APIKey,
			IdentityEndpoint: cfg.Auth.IdentityEndpoint,
			TokenEndpoint:    cfg.Auth.TokenEndpoint,
		}, client, logger)
		if err != nil {
			logger.Warn("Identity provider disabled", "error", err)
		} else {
			s.auth = auth
			deps.Identity = auth
		}
	default:
		logger.Debug("No API key configured, sign-in disabled")
	}

	if opts.launcher != nil {
		deps.Launcher = opts.launcher
	} else {
		s.launcher = oauthflow.NewLauncher(oauthflow.Config{
			DefaultClientID: cfg.Auth.WebClientID,
			ClientSecret:    cfg.Auth.ClientSecret,
			RedirectPort:    cfg.Auth.RedirectPort,
			HTTPClient:      client,
		}, logger)
		deps.Launcher = s.launcher
	}

	plugin, err := services.NewPlugin(deps)
	if err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("failed to create plugin: %w", err)
	}
	s.plugin = plugin
	return s, nil
}

// openStorage opens the database and the crash reporter. With remote set
// and a bucket configured, reports are uploaded to GCS.
func (s *stack) openStorage(ctx context.Context, remote bool) error {
	db, err := storage.New(storage.DefaultConfig(s.cfg.Core.DataDir))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	s.events = storage.NewAnalyticsRepository(db)
	s.reports = storage.NewCrashReportRepository(db)

	var uploader ports.ReportUploader
	if remote && s.cfg.IsCrashUploadEnabled() {
		u, err := cloud.NewReportUploader(ctx, cloud.GCSConfig{
			Bucket:          s.cfg.Crash.Bucket,
			CredentialsPath: s.cfg.Crash.CredentialsPath,
			Endpoint:        s.cfg.Crash.Endpoint,
			ReportPrefix:    s.cfg.Crash.Prefix,
			RetentionDays:   s.cfg.Crash.RetentionDays,
		}, s.logger)
		if err != nil {
			s.logger.Warn("Crash report upload disabled", "error", err)
		} else {
			s.uploader = u
			uploader = u
		}
	}
	s.crash = services.NewCrashService(s.reports, uploader, s.cfg.Crash.MaxBreadcrumbs, s.logger)
	return nil
}

// openStorageOnly wires storage and crash reporting without the plugin.
func openStorageOnly(ctx context.Context, cfg *config.Config, logger ports.Logger, remote bool) (*stack, error) {
	s := &stack{cfg: cfg, logger: logger}
	if err := s.openStorage(ctx, remote); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases every adapter the stack opened.
func (s *stack) Close(ctx context.Context) {
	if s.plugin != nil {
		s.plugin.Close()
	}
	if s.launcher != nil {
		_ = s.launcher.Close(ctx)
	}
	if s.exporter != nil {
		_ = s.exporter.Close()
	}
	if s.uploader != nil {
		_ = s.uploader.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
