package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Model.Path) == "" && strings.TrimSpace(cfg.Model.AssetsDir) == "" {
		return errors.New("model.path or model.assets_dir must be set")
	}
	if name := cfg.Model.Name; strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("model.name %q must not contain path separators", name)
	}
	if cfg.Scan.FileTimeoutSeconds < 0 {
		return errors.New("scan.file_timeout_seconds must be non-negative")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	for i, k := range cfg.Server.APIKeys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("server.api_keys[%d] is empty", i)
		}
	}

	if err := validateReportConfig(cfg.Report); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateReportConfig(r ReportConfig) error {
	for i, s := range r.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("report sink %d (file_jsonl) missing path", i)
			}
		case "sqlite":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("report sink %d (sqlite) missing path", i)
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("report sink %d (webhook) missing url", i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("report sink %d (webhook) has invalid url", i)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("report sink %d (webhook) url must be http or https", i)
			}
			if s.TimeoutMs < 0 {
				return fmt.Errorf("report sink %d (webhook) timeout_ms must be non-negative", i)
			}
		default:
			return fmt.Errorf("report sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry.endpoint must be set when telemetry is enabled")
	}
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
	}
	return nil
}
