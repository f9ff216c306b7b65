package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AutoscalingPolicy holds the tunable knobs of the autoscaling engine.
// Thresholds and step sizes are product decisions, so they live in config
// rather than code and reload without a restart.
type AutoscalingPolicy struct {
	HighWatermarkPct float64 `mapstructure:"highWatermarkPct"`
	LowWatermarkPct  float64 `mapstructure:"lowWatermarkPct"`

	RAMStepMB  int64 `mapstructure:"ramStepMb"`
	CPUStepPct int64 `mapstructure:"cpuStepPct"`

	ScaleDownCooldown time.Duration `mapstructure:"scaleDownCooldown"`
	TickWindow        time.Duration `mapstructure:"tickWindow"`
	StaleAfter        time.Duration `mapstructure:"staleAfter"`

	// Price per GB of RAM and per 1% of CPU for a full month, in grosz.
	RAMPricePerGBMonth  int64 `mapstructure:"ramPricePerGbMonth"`
	CPUPricePerPctMonth int64 `mapstructure:"cpuPricePerPctMonth"`

	DisableOnInsufficientFunds bool `mapstructure:"disableOnInsufficientFunds"`
}

// BillingPolicy holds settlement-side knobs.
type BillingPolicy struct {
	GracePeriodDays    int `mapstructure:"gracePeriodDays"`
	ConfirmMaxAttempts int `mapstructure:"confirmMaxAttempts"`
}

type Policy struct {
	Autoscaling AutoscalingPolicy `mapstructure:"autoscaling"`
	Billing     BillingPolicy     `mapstructure:"billing"`
}

func DefaultPolicy() Policy {
	return Policy{
		Autoscaling: AutoscalingPolicy{
			HighWatermarkPct:           0.80,
			LowWatermarkPct:            0.30,
			RAMStepMB:                  512,
			CPUStepPct:                 10,
			ScaleDownCooldown:          30 * time.Minute,
			TickWindow:                 5 * time.Minute,
			StaleAfter:                 10 * time.Minute,
			RAMPricePerGBMonth:         500,
			CPUPricePerPctMonth:        40,
			DisableOnInsufficientFunds: false,
		},
		Billing: BillingPolicy{
			GracePeriodDays:    14,
			ConfirmMaxAttempts: 5,
		},
	}
}

// PolicyHolder exposes the current policy and swaps it atomically on reload.
type PolicyHolder struct {
	current atomic.Value // holds Policy
}

func NewPolicyHolder(p Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.current.Store(p)
	return h
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

// LoadPolicy reads policy.yaml and watches it for changes. A missing file
// falls back to defaults; an invalid reload is ignored, keeping the last
// known-good policy.
func LoadPolicy(log *zap.Logger) (*PolicyHolder, error) {
	log = log.Named("config.policy")
	v := viper.New()
	v.SetConfigName("policy")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/hostlify")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HOSTLIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return NewPolicyHolder(defaults), nil
	}

	cfg := defaults
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validatePolicy(cfg); err != nil {
		return nil, err
	}

	holder := NewPolicyHolder(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultPolicy()
		if err := v.Unmarshal(&updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored, keeping last known good", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func validatePolicy(p Policy) error {
	a := p.Autoscaling
	if a.HighWatermarkPct <= 0 || a.HighWatermarkPct > 1 {
		return errors.New("autoscaling.highWatermarkPct must be in (0, 1]")
	}
	if a.LowWatermarkPct < 0 || a.LowWatermarkPct >= a.HighWatermarkPct {
		return errors.New("autoscaling.lowWatermarkPct must be below the high watermark")
	}
	if a.RAMStepMB <= 0 || a.CPUStepPct <= 0 {
		return errors.New("autoscaling step sizes must be positive")
	}
	if a.TickWindow <= 0 {
		return errors.New("autoscaling.tickWindow must be positive")
	}
	if p.Billing.GracePeriodDays < 0 {
		return errors.New("billing.gracePeriodDays cannot be negative")
	}
	return nil
}
