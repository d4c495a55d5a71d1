package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig holds the operational billing knobs that ops may tune
// without a redeploy.
type BillingConfig struct {
	// NetTermsDays is added to an invoice's generated date to derive its due date.
	NetTermsDays int `mapstructure:"netTermsDays"`
	// DailySequenceLimit caps how many invoices may be numbered per calendar day.
	DailySequenceLimit int `mapstructure:"dailySequenceLimit"`
	// OverdueSweepMinutes is the interval of the overdue materialization job.
	OverdueSweepMinutes int `mapstructure:"overdueSweepMinutes"`
	// ReminderOffsetsDays lists how many days past due each reminder email fires.
	ReminderOffsetsDays []int `mapstructure:"reminderOffsetsDays"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		NetTermsDays:        14,
		DailySequenceLimit:  999,
		OverdueSweepMinutes: 30,
		ReminderOffsetsDays: []int{3, 7, 14},
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/hostbill/config")
	v.AddConfigPath("/etc/hostbill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HOSTBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.netTermsDays", defaults.NetTermsDays)
	v.SetDefault("billing.dailySequenceLimit", defaults.DailySequenceLimit)
	v.SetDefault("billing.overdueSweepMinutes", defaults.OverdueSweepMinutes)
	v.SetDefault("billing.reminderOffsetsDays", defaults.ReminderOffsetsDays)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config, for tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.NetTermsDays <= 0 {
		return errors.New("billing.netTermsDays must be positive")
	}
	if cfg.DailySequenceLimit <= 0 || cfg.DailySequenceLimit > 999 {
		return errors.New("billing.dailySequenceLimit must be between 1 and 999")
	}
	if cfg.OverdueSweepMinutes <= 0 {
		return errors.New("billing.overdueSweepMinutes must be positive")
	}
	return nil
}
