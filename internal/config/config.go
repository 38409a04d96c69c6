package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Port         int
	PasswordHash []byte // bcrypt hash of PASSWORD, the plain value is not kept

	Source         string // Camera index, stream URL, file, directory or glob
	ModelPath      string
	NamesPath      string
	ConfThreshold  float64
	IoUThreshold   float64
	InputSize      int
	MaxDetections  int
	LineThickness  int
	HideLabels     bool
	HideConfidence bool

	RecordDirectory    string
	RecordOnStart      bool
	SnapshotEvery      int    // Persist every N-th processed frame
	UnknownLabelPolicy string // "fail" or "skip"
	AdvisoryLocale     string // "en" or "zh"

	ControlDirectory  string
	PausePollInterval time.Duration
	RetryBase         time.Duration
	RetryMax          time.Duration

	DatabasePath string

	MQTTBroker        string
	MQTTClientID      string
	MQTTControlTopic  string
	MQTTAdvisoryTopic string

	LocalWindow  bool
	LogDirectory string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Port:               getEnvAsInt("PORT", 8080),
		Source:             getEnv("SOURCE", "0"),
		ModelPath:          getEnv("MODEL_PATH", filepath.Join(".", "models", "best.onnx")),
		NamesPath:          getEnv("NAMES_PATH", filepath.Join(".", "configs", "names.yaml")),
		ConfThreshold:      getEnvAsFloat("CONF_THRESHOLD", 0.25),
		IoUThreshold:       getEnvAsFloat("IOU_THRESHOLD", 0.45),
		InputSize:          getEnvAsInt("INPUT_SIZE", 640),
		MaxDetections:      getEnvAsInt("MAX_DETECTIONS", 1000),
		LineThickness:      getEnvAsInt("LINE_THICKNESS", 3),
		HideLabels:         getEnvAsBool("HIDE_LABELS", false),
		HideConfidence:     getEnvAsBool("HIDE_CONF", false),
		RecordDirectory:    getEnv("RECORD_DIR", filepath.Join(".", "recordings")),
		RecordOnStart:      getEnvAsBool("RECORD_ON_START", false),
		SnapshotEvery:      getEnvAsInt("SNAPSHOT_EVERY", 10),
		UnknownLabelPolicy: strings.ToLower(getEnv("UNKNOWN_LABEL_POLICY", "fail")),
		AdvisoryLocale:     strings.ToLower(getEnv("ADVISORY_LOCALE", "en")),
		ControlDirectory:   getEnv("CONTROL_DIR", filepath.Join(".", "control")),
		PausePollInterval:  getEnvAsDuration("PAUSE_POLL_INTERVAL", 50*time.Millisecond),
		RetryBase:          getEnvAsDuration("RETRY_BASE", 100*time.Millisecond),
		RetryMax:           getEnvAsDuration("RETRY_MAX", 2*time.Second),
		DatabasePath:       getEnv("DATABASE_PATH", filepath.Join(".", "data", "wastesort.db")),
		MQTTBroker:         getEnv("MQTT_BROKER", ""),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "wastesort"),
		MQTTControlTopic:   getEnv("MQTT_CONTROL_TOPIC", "wastesort/control"),
		MQTTAdvisoryTopic:  getEnv("MQTT_ADVISORY_TOPIC", "wastesort/advisory"),
		LocalWindow:        getEnvAsBool("LOCAL_WINDOW", false),
		LogDirectory:       getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(getEnv("PASSWORD", "admin")), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	cfg.PasswordHash = hash

	if cfg.SnapshotEvery != 10 {
		log.Printf("WARNING: SNAPSHOT_EVERY=%d, snapshot file names assume a cadence of 10", cfg.SnapshotEvery)
	}

	return cfg
}

// CheckPassword reports whether password matches the configured one.
func (c *Config) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(password)) == nil
}

// SkipUnknownLabels reports whether unknown detector labels are dropped from
// the advisory instead of ending the session.
func (c *Config) SkipUnknownLabels() bool {
	return c.UnknownLabelPolicy == "skip"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
