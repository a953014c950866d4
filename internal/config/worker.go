package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WorkerTuning controls queue pacing. It lives in an optional kassaflow.yml
// so operators can adjust retry behavior without redeploying.
type WorkerTuning struct {
	PollInterval       time.Duration `mapstructure:"pollInterval"`
	AuthRetryDelay     time.Duration `mapstructure:"authRetryDelay"`
	BackoffStep        time.Duration `mapstructure:"backoffStep"`
	BackoffCap         time.Duration `mapstructure:"backoffCap"`
	RecoveryThreshold  time.Duration `mapstructure:"recoveryThreshold"`
	DefaultMaxAttempts int           `mapstructure:"defaultMaxAttempts"`
}

func DefaultWorkerTuning() WorkerTuning {
	return WorkerTuning{
		PollInterval:       5 * time.Second,
		AuthRetryDelay:     15 * time.Minute,
		BackoffStep:        20 * time.Second,
		BackoffCap:         5 * time.Minute,
		RecoveryThreshold:  15 * time.Minute,
		DefaultMaxAttempts: 20,
	}
}

type WorkerTuningHolder struct {
	current atomic.Value // holds WorkerTuning
}

// NewStaticWorkerTuning wraps a fixed tuning value, mainly for tests and the
// standalone worker binary.
func NewStaticWorkerTuning(cfg WorkerTuning) *WorkerTuningHolder {
	holder := &WorkerTuningHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func NewWorkerTuningHolder() (*WorkerTuningHolder, error) {
	v := viper.New()

	v.SetConfigName("kassaflow")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/kassaflow/config")
	v.AddConfigPath("/etc/kassaflow")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KASSAFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg WorkerTuning
	if err := v.UnmarshalKey("worker", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := validateWorkerTuning(cfg); err != nil {
		return nil, err
	}

	holder := &WorkerTuningHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated WorkerTuning
		if err := v.UnmarshalKey("worker", &updated); err != nil {
			log.Printf("[worker-config] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults()
		if err := validateWorkerTuning(updated); err != nil {
			log.Printf("[worker-config] invalid config ignored: %v", err)
			return
		}
		holder.Set(updated)
		log.Printf("[worker-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *WorkerTuningHolder) Get() WorkerTuning {
	return h.current.Load().(WorkerTuning)
}

// Set replaces the active tuning. The running worker picks the new values up
// on its next tick, including the poll interval.
func (h *WorkerTuningHolder) Set(cfg WorkerTuning) {
	h.current.Store(cfg.withDefaults())
}

func (c WorkerTuning) withDefaults() WorkerTuning {
	defaults := DefaultWorkerTuning()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.AuthRetryDelay <= 0 {
		c.AuthRetryDelay = defaults.AuthRetryDelay
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = defaults.BackoffStep
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaults.BackoffCap
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = defaults.RecoveryThreshold
	}
	if c.DefaultMaxAttempts <= 0 {
		c.DefaultMaxAttempts = defaults.DefaultMaxAttempts
	}
	return c
}

func validateWorkerTuning(cfg WorkerTuning) error {
	if cfg.BackoffCap < cfg.BackoffStep {
		return errors.New("worker.backoffCap cannot be smaller than worker.backoffStep")
	}
	return nil
}
