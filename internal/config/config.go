package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds magika-go configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Scan      ScanConfig      `yaml:"scan"`
	Server    ServerConfig    `yaml:"server"`
	Report    ReportConfig    `yaml:"report"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	S3        S3Config        `yaml:"s3"`
}

type ModelConfig struct {
	AssetsDir      string `yaml:"assets_dir"`      // e.g. "./assets/models"
	Name           string `yaml:"name"`            // e.g. "standard_v3_3"
	Path           string `yaml:"path"`            // explicit model.onnx path, overrides assets_dir/name
	RuntimeLibrary string `yaml:"runtime_library"` // onnxruntime shared library
	InputName      string `yaml:"input_name"`
	OutputName     string `yaml:"output_name"`
	IntraOpThreads int    `yaml:"intra_op_threads"`
	InterOpThreads int    `yaml:"inter_op_threads"`
	VerifyManifest bool   `yaml:"verify_manifest"`
}

type ScanConfig struct {
	Recursive          bool `yaml:"recursive"`
	FollowSymlinks     bool `yaml:"follow_symlinks"`
	FileTimeoutSeconds int  `yaml:"file_timeout_seconds"` // 0 disables the per-file timeout
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	ResultTTLSecond int      `yaml:"result_ttl_seconds"`
	APIKeys         []string `yaml:"api_keys"` // empty disables auth
}

type ReportConfig struct {
	QueueSize              int          `yaml:"queue_size"`
	Workers                int          `yaml:"workers"`
	ShutdownTimeoutSeconds int          `yaml:"shutdown_timeout_seconds"`
	Sinks                  []SinkConfig `yaml:"sinks"`
}

type SinkConfig struct {
	Type      string            `yaml:"type"` // file_jsonl | webhook | sqlite
	Path      string            `yaml:"path"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	TimeoutMs int               `yaml:"timeout_ms"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

type S3Config struct {
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Model.AssetsDir == "" {
		cfg.Model.AssetsDir = "assets/models"
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = "standard_v3_3"
	}
	if cfg.Model.IntraOpThreads <= 0 {
		cfg.Model.IntraOpThreads = 1
	}
	if cfg.Model.InterOpThreads <= 0 {
		cfg.Model.InterOpThreads = 1
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 64 << 20
	}
	if cfg.Server.ResultTTLSecond <= 0 {
		cfg.Server.ResultTTLSecond = 1800
	}

	if cfg.Report.QueueSize <= 0 {
		cfg.Report.QueueSize = 1000
	}
	if cfg.Report.Workers <= 0 {
		cfg.Report.Workers = 1
	}
	if cfg.Report.ShutdownTimeoutSeconds <= 0 {
		cfg.Report.ShutdownTimeoutSeconds = 2
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.Endpoint == "" {
		if cfg.Telemetry.Protocol == "http" {
			cfg.Telemetry.Endpoint = "localhost:4318"
		} else {
			cfg.Telemetry.Endpoint = "localhost:4317"
		}
	}
}
