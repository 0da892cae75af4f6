package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const DefaultSignatureTolerance = 300 * time.Second

// ProviderConfig holds the signing material for a single webhook provider.
type ProviderConfig struct {
	Secret    string        `mapstructure:"secret"`
	Tolerance time.Duration `mapstructure:"tolerance"`
}

type WebhookConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// Provider returns the config registered under name, matched case-insensitively.
func (c WebhookConfig) Provider(name string) (ProviderConfig, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	cfg, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, false
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultSignatureTolerance
	}
	return cfg, true
}

type WebhookConfigHolder struct {
	current atomic.Value // holds WebhookConfig
}

// NewStaticWebhookConfigHolder wraps a fixed config, mostly for tests.
func NewStaticWebhookConfigHolder(cfg WebhookConfig) *WebhookConfigHolder {
	holder := &WebhookConfigHolder{}
	holder.current.Store(normalizeWebhookConfig(cfg))
	return holder
}

func NewWebhookConfigHolder(log *zap.Logger) (*WebhookConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.webhooks")

	v := viper.New()

	v.SetConfigName("webhooks")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/payhook/config")
	v.AddConfigPath("/etc/payhook")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeWebhookConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &WebhookConfigHolder{}
	holder.current.Store(cfg)

	if !fileLoaded {
		log.Info("webhooks config file not found, using environment only")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeWebhookConfig(v)
		if err != nil {
			log.Warn("webhooks config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("webhooks config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *WebhookConfigHolder) Get() WebhookConfig {
	return h.current.Load().(WebhookConfig)
}

func decodeWebhookConfig(v *viper.Viper) (WebhookConfig, error) {
	var cfg WebhookConfig
	if err := v.UnmarshalKey("webhooks", &cfg); err != nil {
		return WebhookConfig{}, fmt.Errorf("decode webhooks config: %w", err)
	}
	cfg = normalizeWebhookConfig(cfg)

	// The conventional provider env var wins over the file.
	if secret := strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")); secret != "" {
		stripe := cfg.Providers["stripe"]
		stripe.Secret = secret
		cfg.Providers["stripe"] = stripe
	}

	if err := validateWebhookConfig(cfg); err != nil {
		return WebhookConfig{}, err
	}
	return cfg, nil
}

func normalizeWebhookConfig(cfg WebhookConfig) WebhookConfig {
	providers := make(map[string]ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		p.Secret = strings.TrimSpace(p.Secret)
		providers[name] = p
	}
	cfg.Providers = providers
	return cfg
}

func validateWebhookConfig(cfg WebhookConfig) error {
	for name, p := range cfg.Providers {
		if p.Tolerance < 0 {
			return errors.New("webhooks.providers." + name + ".tolerance cannot be negative")
		}
	}
	return nil
}
