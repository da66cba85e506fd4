package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/code-payments/vote-provisioner/pkg/cliconfig"
	"github.com/code-payments/vote-provisioner/pkg/lock/etcd"
	"github.com/code-payments/vote-provisioner/pkg/metrics"
	"github.com/code-payments/vote-provisioner/pkg/provisioner"
)

const (
	etcdLockRoot    = "/vote-provisioner/locks"
	etcdDialTimeout = 5 * time.Second

	newRelicShutdownTimeout = 10 * time.Second
)

type config struct {
	LogLevel string `mapstructure:"log_level"`
	AppName  string `mapstructure:"app_name"`

	ProgramKeypairPath string `mapstructure:"program_keypair_path"`
	SolanaCLIConfig    string `mapstructure:"solana_cli_config"`

	// Comma separated. When empty, runs are not coordinated.
	EtcdEndpoints string        `mapstructure:"etcd_endpoints"`
	EtcdLockTTL   time.Duration `mapstructure:"etcd_lock_ttl"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`
}

func init() {
	_ = viper.BindEnv("log_level", "LOG_LEVEL")
	_ = viper.BindEnv("app_name", "APP_NAME")

	_ = viper.BindEnv("program_keypair_path", "PROGRAM_KEYPAIR_PATH")
	_ = viper.BindEnv("solana_cli_config", "SOLANA_CLI_CONFIG")

	_ = viper.BindEnv("etcd_endpoints", "ETCD_ENDPOINTS")
	_ = viper.BindEnv("etcd_lock_ttl", "ETCD_LOCK_TTL")

	_ = viper.BindEnv("new_relic_license_key", "NEW_RELIC_LICENSE_KEY")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("app_name", "vote-provisioner")
	viper.SetDefault("program_keypair_path", provisioner.DefaultProgramKeypairPath)
	viper.SetDefault("solana_cli_config", cliconfig.DefaultPath())
	viper.SetDefault("etcd_lock_ttl", 30*time.Second)
}

func main() {
	os.Exit(run())
}

func run() int {
	logger := logrus.StandardLogger().WithField("type", "vote-provisioner")

	cfg, err := loadConfig()
	if err != nil {
		logger.WithError(err).Error("failed to load config")
		return 1
	}

	var metricsProvider *newrelic.Application
	if len(cfg.NewRelicLicenseKey) > 0 {
		metricsProvider, err = newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(cfg.AppName),
			newrelic.ConfigLicense(cfg.NewRelicLicenseKey),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.WithError(err).Error("error connecting to new relic")
			return 1
		}
		defer metricsProvider.Shutdown(newRelicShutdownTimeout)
	}

	configureLogger(cfg, metricsProvider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = metrics.WithApplication(ctx, metricsProvider)

	opts := []provisioner.Option{
		provisioner.WithProgramKeypairPath(cfg.ProgramKeypairPath),
		provisioner.WithCLIConfigPath(cfg.SolanaCLIConfig),
	}

	if endpoints := splitEndpoints(cfg.EtcdEndpoints); len(endpoints) > 0 {
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   endpoints,
			DialTimeout: etcdDialTimeout,
		})
		if err != nil {
			logger.WithError(err).Error("failed to create etcd client")
			return 1
		}
		defer client.Close()

		locks, err := etcd.NewLockManager(client, etcdLockRoot, cfg.EtcdLockTTL)
		if err != nil {
			logger.WithError(err).Error("failed to create lock manager")
			return 1
		}
		defer locks.Close()

		logger.WithField("endpoints", endpoints).Debug("coordinating through etcd")
		opts = append(opts, provisioner.WithLockManager(locks))
	}

	outcome, err := provisioner.New(opts...).Provision(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to provision vote account")
		return 1
	}

	log := logger.WithFields(logrus.Fields{
		"run_id":       outcome.RunID,
		"outcome":      outcome.Type.String(),
		"vote_account": outcome.VoteAccount.String(),
	})
	if outcome.Type == provisioner.OutcomeCreated {
		log = log.WithFields(logrus.Fields{
			"signature": outcome.Signature.String(),
			"lamports":  outcome.Lamports,
			"space":     outcome.Space,
		})
	}
	log.Info("done")

	return 0
}

func loadConfig() (config, error) {
	var cfg config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to unmarshal config")
	}
	return cfg, nil
}

func configureLogger(cfg config, metricsProvider *newrelic.Application) {
	// Interactive use gets human readable output.
	formatter := &logrus.TextFormatter{FullTimestamp: true}
	logrus.SetFormatter(metrics.NewCustomNewRelicLogFormatter(metricsProvider, formatter))

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", cfg.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(os.Stderr)
}

func splitEndpoints(value string) []string {
	var endpoints []string
	for _, endpoint := range strings.Split(value, ",") {
		endpoint = strings.TrimSpace(endpoint)
		if len(endpoint) > 0 {
			endpoints = append(endpoints, endpoint)
		}
	}
	return endpoints
}
