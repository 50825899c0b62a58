package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Port           int
	MetricsPort    int
	LabelsPath     string
	ModelPath      string
	MetadataPath   string
	OnnxRuntimeLib string
	Device         string
	FrontendPath   string
	StaticDir      string
	MaxUploadBytes int64
	LogLevel       string
	LogFormat      string
}

type ConfigFile struct {
	Server struct {
		Port           int    `yaml:"port"`
		MetricsPort    int    `yaml:"metricsPort"`
		FrontendPath   string `yaml:"frontendPath"`
		StaticDir      string `yaml:"staticDir"`
		MaxUploadBytes int64  `yaml:"maxUploadBytes"`
	} `yaml:"server"`

	Model struct {
		LabelsPath     string `yaml:"labelsPath"`
		ModelPath      string `yaml:"modelPath"`
		MetadataPath   string `yaml:"metadataPath"`
		OnnxRuntimeLib string `yaml:"onnxRuntimeLib"`
		Device         string `yaml:"device"`
	} `yaml:"model"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func defaults() Settings {
	return Settings{
		Port:           8080,
		MetricsPort:    0,
		LabelsPath:     "models/labels.json",
		ModelPath:      "models/model.onnx",
		MetadataPath:   "models/model_metadata.json",
		Device:         "auto",
		FrontendPath:   "web/index.html",
		StaticDir:      "static",
		MaxUploadBytes: 10 << 20,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Load reads .env if present, then CONFIG_FILE if set, then environment
// variables. Later sources win.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	settings := defaults()

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		if err := applyYAML(&settings, configPath); err != nil {
			return Settings{}, err
		}
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func applyYAML(s *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	setInt(&s.Port, config.Server.Port)
	setInt(&s.MetricsPort, config.Server.MetricsPort)
	setString(&s.FrontendPath, config.Server.FrontendPath)
	setString(&s.StaticDir, config.Server.StaticDir)
	if config.Server.MaxUploadBytes > 0 {
		s.MaxUploadBytes = config.Server.MaxUploadBytes
	}
	setString(&s.LabelsPath, config.Model.LabelsPath)
	setString(&s.ModelPath, config.Model.ModelPath)
	setString(&s.MetadataPath, config.Model.MetadataPath)
	setString(&s.OnnxRuntimeLib, config.Model.OnnxRuntimeLib)
	setString(&s.Device, config.Model.Device)
	setString(&s.LogLevel, config.Log.Level)
	setString(&s.LogFormat, config.Log.Format)

	return nil
}

func applyEnv(s *Settings) error {
	var err error
	if s.Port, err = getIntOrDefault("PORT", s.Port); err != nil {
		return err
	}
	if s.MetricsPort, err = getIntOrDefault("METRICS_PORT", s.MetricsPort); err != nil {
		return err
	}
	maxUpload, err := getIntOrDefault("MAX_UPLOAD_BYTES", int(s.MaxUploadBytes))
	if err != nil {
		return err
	}
	s.MaxUploadBytes = int64(maxUpload)

	s.LabelsPath = getEnvOrDefault("LABELS_PATH", s.LabelsPath)
	s.ModelPath = getEnvOrDefault("MODEL_PATH", s.ModelPath)
	s.MetadataPath = getEnvOrDefault("METADATA_PATH", s.MetadataPath)
	s.OnnxRuntimeLib = getEnvOrDefault("ONNXRUNTIME_LIB", s.OnnxRuntimeLib)
	s.Device = strings.ToLower(getEnvOrDefault("DEVICE", s.Device))
	s.FrontendPath = getEnvOrDefault("FRONTEND_PATH", s.FrontendPath)
	s.StaticDir = getEnvOrDefault("STATIC_DIR", s.StaticDir)
	s.LogLevel = getEnvOrDefault("LOG_LEVEL", s.LogLevel)
	s.LogFormat = getEnvOrDefault("LOG_FORMAT", s.LogFormat)

	return nil
}

// Validate reports the first invalid setting.
func (s *Settings) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.MetricsPort < 0 || s.MetricsPort > 65535 {
		return fmt.Errorf("metrics port %d out of range", s.MetricsPort)
	}
	if s.MetricsPort == s.Port {
		return fmt.Errorf("metrics port must differ from port %d", s.Port)
	}
	if s.LabelsPath == "" {
		return errors.New("labels path is required")
	}
	if s.ModelPath == "" {
		return errors.New("model path is required")
	}
	switch s.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("unknown device %q", s.Device)
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", s.MaxUploadBytes)
	}
	switch s.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", s.LogFormat)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return i, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
