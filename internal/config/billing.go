package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingPolicy carries the operational billing knobs that may be tuned
// without redeploying: trial length, platform fee schedule, the enterprise
// revenue-share terms, and the late-event grace window. Prices live in the
// bundle catalog, not here.
type BillingPolicy struct {
	TrialDays int `mapstructure:"trialDays"`

	// FeeRatesBps maps plan tier -> platform fee in basis points.
	FeeRatesBps map[string]int64 `mapstructure:"feeRatesBps"`

	// RevenueShareBps is the enterprise revenue-share rate in basis points.
	RevenueShareBps int64 `mapstructure:"revenueShareBps"`
	// MinimumBillMinor is the enterprise monthly minimum in minor units.
	MinimumBillMinor int64 `mapstructure:"minimumBillMinor"`

	// ChargeMaxAttempts / ChargeRetryDays bound dunning before pausing.
	ChargeMaxAttempts int `mapstructure:"chargeMaxAttempts"`
	ChargeRetryDays   int `mapstructure:"chargeRetryDays"`

	// LateEventGraceHours bounds how late a revenue event may arrive before
	// it rolls into the next open period.
	LateEventGraceHours int `mapstructure:"lateEventGraceHours"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		TrialDays: 14,
		FeeRatesBps: map[string]int64{
			"standard":   240,
			"enterprise": 190,
		},
		RevenueShareBps:     1500,
		MinimumBillMinor:    9900,
		ChargeMaxAttempts:   3,
		ChargeRetryDays:     7,
		LateEventGraceHours: 48,
	}
}

// BillingPolicyHolder serves the current policy and hot-reloads it when the
// config file changes. Invalid updates are ignored, never applied.
type BillingPolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

func NewBillingPolicyHolder() (*BillingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/bundleworks")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BUNDLEWORKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingPolicy()
	v.SetDefault("billing.trialDays", defaults.TrialDays)
	v.SetDefault("billing.feeRatesBps", defaults.FeeRatesBps)
	v.SetDefault("billing.revenueShareBps", defaults.RevenueShareBps)
	v.SetDefault("billing.minimumBillMinor", defaults.MinimumBillMinor)
	v.SetDefault("billing.chargeMaxAttempts", defaults.ChargeMaxAttempts)
	v.SetDefault("billing.chargeRetryDays", defaults.ChargeRetryDays)
	v.SetDefault("billing.lateEventGraceHours", defaults.LateEventGraceHours)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy BillingPolicy
	if err := v.UnmarshalKey("billing", &policy); err != nil {
		return nil, err
	}
	if err := validateBillingPolicy(policy); err != nil {
		return nil, err
	}

	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingPolicy
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-policy] reload failed: %v", err)
			return
		}
		if err := validateBillingPolicy(updated); err != nil {
			log.Printf("[billing-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingPolicyHolder) Get() BillingPolicy {
	return h.current.Load().(BillingPolicy)
}

// NewStaticBillingPolicyHolder pins a policy; used by tests.
func NewStaticBillingPolicyHolder(policy BillingPolicy) *BillingPolicyHolder {
	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func validateBillingPolicy(policy BillingPolicy) error {
	if policy.TrialDays < 0 {
		return errors.New("billing.trialDays cannot be negative")
	}
	if len(policy.FeeRatesBps) == 0 {
		return errors.New("billing.feeRatesBps cannot be empty")
	}
	for tier, bps := range policy.FeeRatesBps {
		if strings.TrimSpace(tier) == "" || bps < 0 || bps > 10_000 {
			return errors.New("billing.feeRatesBps entries must name a tier with 0..10000 bps")
		}
	}
	if policy.RevenueShareBps <= 0 || policy.RevenueShareBps > 10_000 {
		return errors.New("billing.revenueShareBps must be within 1..10000")
	}
	if policy.MinimumBillMinor < 0 {
		return errors.New("billing.minimumBillMinor cannot be negative")
	}
	if policy.ChargeMaxAttempts <= 0 {
		return errors.New("billing.chargeMaxAttempts must be positive")
	}
	if policy.LateEventGraceHours < 0 {
		return errors.New("billing.lateEventGraceHours cannot be negative")
	}
	return nil
}
