// Package wire provides dependency injection for warden.
// It builds the service graph from configuration, and keeps a lazily
// initialised process-wide instance for the CLI.
package wire

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"go.uber.org/zap"

	kafkasink "github.com/example/warden/internal/adapters/kafka"
	mailsink "github.com/example/warden/internal/adapters/mail"
	"github.com/example/warden/internal/adapters/sqlite"
	"github.com/example/warden/internal/app"
	"github.com/example/warden/internal/config"
	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/db"
	"github.com/example/warden/internal/logging"
	"github.com/example/warden/internal/ports/secondary"
)

// Container holds the wired services of one process.
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *sql.DB
	Escalations *app.EscalationServiceImpl
	Scanners    *app.ScannerService
	Monitor     *app.MonitorServiceImpl
	Relay       *app.NotificationRelay

	kafka *kafkasink.Sink
}

// Build opens the database and wires every service from cfg.
func Build(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	monitorInterval, err := cfg.MonitorInterval()
	if err != nil {
		return nil, err
	}
	relayInterval, err := cfg.RelayInterval()
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	sugar := logger.Sugar()
	c := &Container{Config: cfg, Logger: logger, DB: database}

	policy, problems := cfg.Policy()
	for _, p := range problems {
		sugar.Warnw("SLA policy entry skipped, the scanner that needs it will fail", "problem", p)
	}

	// Secondary adapters
	feedbackRepo := sqlite.NewFeedbackRepository(database)
	alertRepo := sqlite.NewAlertRepository(database)
	approvalRepo := sqlite.NewApprovalRepository(database)
	escalationRepo := sqlite.NewEscalationRepository(database)
	notificationRepo := sqlite.NewNotificationRepository(database)

	c.Escalations = app.NewEscalationService(
		escalationRepo,
		sqlite.NewActivityLogRepository(database),
		[]secondary.WorkItemRepository{feedbackRepo, alertRepo, approvalRepo},
		sqlite.NewTransactor(database),
		escalation.NewResolver(cfg.Matrix()),
		app.NewNotificationDispatcher(),
		cfg.Monitor.MaxLevel,
		sugar.Named("engine"),
		nil,
	)
	c.Scanners = app.NewScannerService(feedbackRepo, alertRepo, approvalRepo, escalationRepo,
		c.Escalations, policy, cfg.Monitor.MaxLevel, sugar.Named("scanner"))
	c.Monitor = app.NewMonitorService(c.Scanners.Scanners(), monitorInterval, sugar.Named("monitor"), nil)

	var sinks []secondary.NotificationSink
	if cfg.Mail.Enabled {
		sender := mailsink.NewSender(cfg.Mail, sugar.Named("mail"))
		sinks = append(sinks, mailsink.NewSink(sender, cfg.Mail.Recipients))
	}
	if cfg.Kafka.Enabled {
		k, err := kafkasink.NewSink(cfg.Kafka, sugar.Named("kafka"))
		if err != nil {
			database.Close()
			return nil, err
		}
		c.kafka = k
		sinks = append(sinks, k)
	}
	c.Relay = app.NewNotificationRelay(notificationRepo, sinks, relayInterval, sugar.Named("relay"))

	return c, nil
}

// Close stops the monitor and releases sinks and the database.
func (c *Container) Close() error {
	c.Monitor.StopMonitoring()
	var errs []error
	if c.kafka != nil {
		errs = append(errs, c.kafka.Close())
	}
	errs = append(errs, c.DB.Close())
	_ = c.Logger.Sync()
	return errors.Join(errs...)
}

var (
	configPath string
	container  *Container
	once       sync.Once
)

// SetConfigPath selects the config file used by Default. It must be called
// before the first call to Default.
func SetConfigPath(path string) {
	configPath = path
}

// Default returns the process-wide container, building it on first use.
func Default() *Container {
	once.Do(initContainer)
	return container
}

// LoadConfig loads the configuration selected by SetConfigPath.
func LoadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func initContainer() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	container, err = Build(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize services: %v", fmt.Errorf("%s: %w", cfg.Database.Path, err))
	}
}
