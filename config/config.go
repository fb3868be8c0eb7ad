package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	OpenCV   OpenCVConfig   `mapstructure:"opencv"`
	Camera   CameraConfig   `mapstructure:"camera"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	I18n     I18nConfig     `mapstructure:"i18n"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	DataDir     string   `mapstructure:"data_dir"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"` // SQLite, ":memory:" für Tests
}

// PipelineConfig steuert Entprellung, Ähnlichkeits-Gate und Commit-Verhalten
type PipelineConfig struct {
	FaceValidThreshold     int           `mapstructure:"face_valid_threshold"`
	FaceInvalidThreshold   int           `mapstructure:"face_invalid_threshold"`
	PoseValidThreshold     int           `mapstructure:"pose_valid_threshold"`
	PoseInvalidThreshold   int           `mapstructure:"pose_invalid_threshold"`
	SimilarityThreshold    float64       `mapstructure:"similarity_threshold"`
	MaxAdmittedAge         time.Duration `mapstructure:"max_admitted_age"` // 0 = unbegrenzt
	CommitRequiresPresence bool          `mapstructure:"commit_requires_presence"`
	StartPaused            bool          `mapstructure:"start_paused"`
}

// OpenCVConfig enthält Einstellungen für die OpenCV-Integration
type OpenCVConfig struct {
	Enabled bool `mapstructure:"enabled"`
	UseGPU  bool `mapstructure:"use_gpu"`

	FaceCascade   string  `mapstructure:"face_cascade"`
	ScaleFactor   float64 `mapstructure:"scale_factor"`
	MinNeighbors  int     `mapstructure:"min_neighbors"`
	MinSizeWidth  int     `mapstructure:"min_size_width"`
	MinSizeHeight int     `mapstructure:"min_size_height"`

	Pose      PoseDetectionConfig `mapstructure:"pose"`
	Embedding EmbeddingConfig     `mapstructure:"embedding"`
	Debug     DebugConfig         `mapstructure:"debug"`
}

// PoseDetectionConfig enthält Optionen für die Posenerkennung
type PoseDetectionConfig struct {
	Method              string  `mapstructure:"method"`               // "dnn" oder "hog"
	ModelPath           string  `mapstructure:"model_path"`           // Pfad zur DNN-Modelldatei
	ConfigPath          string  `mapstructure:"config_path"`          // Pfad zur DNN-Konfigurationsdatei
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"` // Mindestkonfidenz eines Keypoints
	InputWidth          int     `mapstructure:"input_width"`
	InputHeight         int     `mapstructure:"input_height"`
	Backend             string  `mapstructure:"backend"` // "default", "cuda", "opencl"
	Target              string  `mapstructure:"target"`  // "cpu", "cuda", "opencl"
}

// EmbeddingConfig beschreibt das Netz für die Bildähnlichkeit
type EmbeddingConfig struct {
	ModelPath   string  `mapstructure:"model_path"`
	ConfigPath  string  `mapstructure:"config_path"`
	InputWidth  int     `mapstructure:"input_width"`
	InputHeight int     `mapstructure:"input_height"`
	Scale       float64 `mapstructure:"scale"`
}

// DebugConfig steuert die Aufbewahrung zugelassener Frames für die Diagnose
type DebugConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	MaxImages int  `mapstructure:"max_images"`
	Quality   int  `mapstructure:"quality"`
}

// CameraConfig beschreibt die Kameraquelle
type CameraConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Device  string `mapstructure:"device"` // Geräteindex ("0") oder Datei/URL
	Width   int    `mapstructure:"width"`
	Height  int    `mapstructure:"height"`
	FPS     int    `mapstructure:"fps"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	Broker        string              `mapstructure:"broker"`
	Port          int                 `mapstructure:"port"`
	Username      string              `mapstructure:"username"`
	Password      string              `mapstructure:"password"`
	ClientID      string              `mapstructure:"client_id"`
	Topic         string              `mapstructure:"topic"` // Basis-Topic für Statusmeldungen
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
}

// HomeAssistantConfig enthält die Konfiguration für die Home Assistant Integration
type HomeAssistantConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
	PublishResults  bool   `mapstructure:"publish_results"`
}

// CleanupConfig enthält Bereinigungseinstellungen
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
	IntervalHours int `mapstructure:"interval_hours"`
}

// I18nConfig enthält Spracheinstellungen
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Standardwerte festlegen
	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix("PRESENCE_GATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.cors_origins", []string{"*"})

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/presence-gate.log")

	// DB
	v.SetDefault("db.file", "/data/presence-gate.db")

	// Pipeline
	v.SetDefault("pipeline.face_valid_threshold", 3)
	v.SetDefault("pipeline.face_invalid_threshold", 3)
	v.SetDefault("pipeline.pose_valid_threshold", 3)
	v.SetDefault("pipeline.pose_invalid_threshold", 3)
	v.SetDefault("pipeline.similarity_threshold", 0.919)
	v.SetDefault("pipeline.max_admitted_age", "0s")
	v.SetDefault("pipeline.commit_requires_presence", true)
	v.SetDefault("pipeline.start_paused", false)

	// OpenCV
	v.SetDefault("opencv.enabled", true)
	v.SetDefault("opencv.use_gpu", false)
	v.SetDefault("opencv.face_cascade", "/app/models/haarcascade_frontalface_default.xml")
	v.SetDefault("opencv.scale_factor", 1.1)
	v.SetDefault("opencv.min_neighbors", 3)
	v.SetDefault("opencv.min_size_width", 60)
	v.SetDefault("opencv.min_size_height", 60)

	v.SetDefault("opencv.pose.method", "dnn") // fällt auf HOG zurück, wenn das Modell fehlt
	v.SetDefault("opencv.pose.model_path", "/app/models/pose_iter_160000.caffemodel")
	v.SetDefault("opencv.pose.config_path", "/app/models/pose_deploy_linevec_faster_4_stages.prototxt")
	v.SetDefault("opencv.pose.confidence_threshold", 0.1)
	v.SetDefault("opencv.pose.input_width", 368)
	v.SetDefault("opencv.pose.input_height", 368)
	v.SetDefault("opencv.pose.backend", "default")
	v.SetDefault("opencv.pose.target", "cpu")

	v.SetDefault("opencv.embedding.model_path", "/app/models/mobilenet_v3_small.onnx")
	v.SetDefault("opencv.embedding.config_path", "")
	v.SetDefault("opencv.embedding.input_width", 224)
	v.SetDefault("opencv.embedding.input_height", 224)
	v.SetDefault("opencv.embedding.scale", 1.0/255.0)

	v.SetDefault("opencv.debug.enabled", false)
	v.SetDefault("opencv.debug.max_images", 20)
	v.SetDefault("opencv.debug.quality", 85)

	// Kamera
	v.SetDefault("camera.enabled", true)
	v.SetDefault("camera.device", "0")
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.fps", 15)

	// MQTT
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "presence-gate")
	v.SetDefault("mqtt.topic", "presence-gate")
	v.SetDefault("mqtt.homeassistant.enabled", false)
	v.SetDefault("mqtt.homeassistant.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.homeassistant.publish_results", true)

	// Cleanup
	v.SetDefault("cleanup.retention_days", 30)
	v.SetDefault("cleanup.interval_hours", 24)

	// Sprache
	v.SetDefault("i18n.default_language", "en")
}

// Validate prüft Wertebereiche, die sonst erst zur Laufzeit auffallen würden
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	p := c.Pipeline
	for name, v := range map[string]int{
		"pipeline.face_valid_threshold":   p.FaceValidThreshold,
		"pipeline.face_invalid_threshold": p.FaceInvalidThreshold,
		"pipeline.pose_valid_threshold":   p.PoseValidThreshold,
		"pipeline.pose_invalid_threshold": p.PoseInvalidThreshold,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be >= 1, got %d", name, v))
		}
	}
	if p.SimilarityThreshold <= 0 || p.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.similarity_threshold must be in (0,1], got %g", p.SimilarityThreshold))
	}
	if p.MaxAdmittedAge < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_admitted_age must not be negative"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.Cleanup.RetentionDays < 0 {
		errs = append(errs, errors.New("cleanup.retention_days must not be negative"))
	}
	return errors.Join(errs...)
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis (für SQLite)
	if cfg.DB.File != "" && cfg.DB.File != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
