package observability

import (
	"strings"

	"github.com/smallbiznis/payhook/internal/config"
)

// Config is the observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig derives telemetry settings from cfg. Sampling ratios outside
// [0, 1] fall back to the default.
func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "payhook"
	}

	telemetry := cfg.Telemetry
	ratio := telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = defaultSamplingRatio
	}
	format := telemetry.LogFormat
	if format == "" {
		format = "json"
	}
	level := telemetry.LogLevel
	if level == "" {
		level = "info"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             level,
		LogFormat:            format,
		OtelEnabled:          telemetry.OtelEnabled,
		OtelExporterEndpoint: telemetry.ExporterEndpoint,
		OtelExporterProtocol: telemetry.ExporterProtocol,
		OtelSamplingRatio:    ratio,
	}
}

const defaultSamplingRatio = 0.1

// Debug turns on stack traces in request logs and verbose GORM output.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
