package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Settings is the runtime configuration of recordctl
type Settings struct {
	FHIRBaseURL      string        `mapstructure:"FHIR_BASE_URL" validate:"required,url"`
	FHIRTimeout      time.Duration `mapstructure:"FHIR_TIMEOUT" validate:"gt=0"`
	FHIRCount        int           `mapstructure:"FHIR_COUNT" validate:"gte=0"`
	FHIRFormat       string        `mapstructure:"FHIR_FORMAT" validate:"omitempty,oneof=json xml"`
	FHIRRateLimitRPS float64       `mapstructure:"FHIR_RATE_LIMIT_RPS" validate:"gte=0"`
	FHIRMaxPages     int           `mapstructure:"FHIR_MAX_PAGES" validate:"gte=0"`

	ProfileConfigPath string `mapstructure:"PROFILE_CONFIG_PATH"`
	Profile           string `mapstructure:"PROFILE" validate:"required"`
	Resources         string `mapstructure:"RESOURCES"`
	BundleType        string `mapstructure:"BUNDLE_TYPE" validate:"oneof=transaction batch searchset"`

	OutputDir        string `mapstructure:"OUTPUT_DIR"`
	LogPath          string `mapstructure:"LOG_PATH"`
	LogLevel         string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
	ElasticsearchURL string `mapstructure:"ELASTICSEARCH_URL" validate:"omitempty,url"`

	DestinationURL string `mapstructure:"DESTINATION_URL" validate:"omitempty,url"`
	UploadMethod   string `mapstructure:"UPLOAD_METHOD" validate:"oneof=POST PUT"`

	CouchbaseURL      string `mapstructure:"COUCHBASE_URL"`
	CouchbaseUsername string `mapstructure:"COUCHBASE_USERNAME" validate:"required_with=CouchbaseURL"`
	CouchbasePassword string `mapstructure:"COUCHBASE_PASSWORD" validate:"required_with=CouchbaseURL"`
	CouchbaseBucket   string `mapstructure:"COUCHBASE_BUCKET" validate:"required_with=CouchbaseURL"`

	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY" validate:"required_with=MinioEndpoint"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY" validate:"required_with=MinioEndpoint"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET" validate:"required_with=MinioEndpoint"`
	MinioPrefix    string `mapstructure:"MINIO_PREFIX"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	APIPort               string `mapstructure:"API_PORT" validate:"required,numeric"`
	EnableBusinessMetrics bool   `mapstructure:"ENABLE_BUSINESS_METRICS"`
	EnableSystemMetrics   bool   `mapstructure:"ENABLE_SYSTEM_METRICS"`
}

var settingDefaults = map[string]any{
	"FHIR_BASE_URL":           "https://hapi.fhir.org/baseR4",
	"FHIR_TIMEOUT":            "30s",
	"FHIR_COUNT":              100,
	"FHIR_FORMAT":             "json",
	"FHIR_RATE_LIMIT_RPS":     0,
	"FHIR_MAX_PAGES":          1000,
	"PROFILE_CONFIG_PATH":     "",
	"PROFILE":                 "default",
	"RESOURCES":               "",
	"BUNDLE_TYPE":             "transaction",
	"OUTPUT_DIR":              "bundles",
	"LOG_PATH":                "log.txt",
	"LOG_LEVEL":               "info",
	"ELASTICSEARCH_URL":       "",
	"DESTINATION_URL":         "",
	"UPLOAD_METHOD":           "POST",
	"COUCHBASE_URL":           "",
	"COUCHBASE_USERNAME":      "",
	"COUCHBASE_PASSWORD":      "",
	"COUCHBASE_BUCKET":        "records",
	"MINIO_ENDPOINT":          "",
	"MINIO_ACCESS_KEY":        "",
	"MINIO_SECRET_KEY":        "",
	"MINIO_BUCKET":            "",
	"MINIO_PREFIX":            "bundles/",
	"MINIO_USE_SSL":           false,
	"API_PORT":                "8080",
	"ENABLE_BUSINESS_METRICS": true,
	"ENABLE_SYSTEM_METRICS":   false,
}

var validate = validator.New()

// LoadDotEnv loads a .env file from the parent or current directory when present
func LoadDotEnv() {
	err := godotenv.Load("../.env")
	if err != nil {
		log.Debug().Msg("Not found .env file in parent directory, trying current directory")
		err = godotenv.Load(".env")
		if err != nil {
			log.Debug().Msg("Not found .env file in current directory, assuming environment variables are set")
		}
	}
}

// NewViper returns a viper instance with every setting bound to its
// environment variable and defaulted. Command-line flags are bound on top by
// the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	for key, value := range settingDefaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	return v
}

// LoadSettings unmarshals and validates the settings held by v
func LoadSettings(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	s.UploadMethod = strings.ToUpper(s.UploadMethod)
	s.LogLevel = strings.ToLower(s.LogLevel)

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// ResourceList splits RESOURCES into resource type names
func (s *Settings) ResourceList() []string {
	return SplitList(s.Resources)
}

// LoadProfile returns the configured profile, falling back to the built-in
// default when no profile file is set
func (s *Settings) LoadProfile() (Profile, error) {
	if s.ProfileConfigPath == "" {
		return DefaultProfile(), nil
	}
	return LoadProfile(s.ProfileConfigPath, s.Profile)
}

// SplitList splits a comma separated list, dropping blanks
func SplitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
