package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gartstein/tenancy/internal/tenancy/audit"
	"github.com/gartstein/tenancy/internal/tenancy/auth"
	"github.com/gartstein/tenancy/internal/tenancy/db"
	"github.com/gartstein/tenancy/internal/tenancy/graph"
	"github.com/gartstein/tenancy/internal/tenancy/guard"
	"github.com/gartstein/tenancy/internal/tenancy/switching"
	"github.com/gartstein/tenancy/internal/tenancy/workflow"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config struct for YAML configuration
type Config struct {
	DBHost          string   `yaml:"DB_HOST"`
	DBPort          int      `yaml:"DB_PORT"`
	DBUser          string   `yaml:"DB_USER"`
	DBPassword      string   `yaml:"DB_PASSWORD"`
	DBName          string   `yaml:"DB_NAME"`
	DBSSLMode       string   `yaml:"DB_SSLMODE"`
	KafkaBrokers    []string `yaml:"KAFKA_BROKERS"`
	AuditTopic      string   `yaml:"AUDIT_TOPIC"`
	AuditGroupID    string   `yaml:"AUDIT_GROUP_ID"`
	JWTSecret       string   `yaml:"JWT_SECRET"`
	TokenIssuer     string   `yaml:"TOKEN_ISSUER"`
	AccessTTLMins   int      `yaml:"ACCESS_TTL_MINUTES"`
	RefreshTTLHours int      `yaml:"REFRESH_TTL_HOURS"`
}

// Core bundles the wired services; the transport layer (out of scope here)
// mounts them onto its endpoints.
type Core struct {
	Guard         *guard.TenancyGuard
	Relationships *graph.RelationshipService
	Requests      *workflow.AccessRequestService
	Switching     *switching.CompanySwitchService
}

func main() {
	logger := initLogger()
	defer func(logger *zap.Logger) {
		err := logger.Sync()
		if err != nil {
			logger.Error("failed to sync logger", zap.Error(err))
		}
	}(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	repo, err := db.NewRepository(initDatabase(cfg))
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	producer, err := audit.NewProducer(cfg.KafkaBrokers, logger, cfg.AuditTopic)
	if err != nil {
		logger.Fatal("failed to initialize audit producer", zap.Error(err))
	}
	defer producer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := audit.NewConsumer(cfg.KafkaBrokers, cfg.AuditGroupID, cfg.AuditTopic, logger)
	consumer.RegisterHandler(audit.ComplianceLogHandler(logger))
	consumer.Start(ctx)
	defer consumer.Close()

	issuer := auth.NewIssuer(auth.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.TokenIssuer,
		AccessTTL:  time.Duration(cfg.AccessTTLMins) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTTLHours) * time.Hour,
	})

	core := &Core{
		Guard:         guard.NewTenancyGuard(producer, logger),
		Relationships: graph.NewRelationshipService(repo, producer, logger),
		Requests:      workflow.NewAccessRequestService(repo, producer, logger),
		Switching:     switching.NewCompanySwitchService(repo, issuer, producer, logger),
	}
	serve(core, logger)

	waitForShutdown(logger)
}

// serve hands the core to the transport layer. The HTTP surface lives in a
// separate module; nothing is mounted here.
func serve(_ *Core, logger *zap.Logger) {
	logger.Info("tenancy core initialized")
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, _ := zap.NewProduction()
	return logger
}

// loadConfig loads configuration from the packaged YAML file.
func loadConfig() (*Config, error) {
	configPath := filepath.Join("internal", "tenancy", "config", "config.yaml")
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg Config
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// initDatabase initializes the database connection settings.
func initDatabase(cfg *Config) *db.Config {
	return &db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}
}

// waitForShutdown blocks until an interrupt or SIGTERM is received.
func waitForShutdown(logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("tenancy core stopped")
}
