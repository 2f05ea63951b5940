package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	apperrors "github.com/natcap/invest-pipelines/pkg/errors"
)

// Config holds all pipeline configuration
//
//nolint:govet // Field alignment optimization would reduce readability
type Config struct {
	AppVeyor      AppVeyorConfig
	Git           GitConfig
	TestStep      TestStepConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
	Metrics       MetricsConfig
}

// AppVeyorConfig drives the retrigger step. The three credentials are not
// validated: empty values are sent as-is and the provider rejects them.
type AppVeyorConfig struct {
	APIKey        string
	AccountName   string
	ProjectSlug   string
	APIURL        string        `validate:"required,url"`
	StatusBaseURL string        `validate:"required,url"`
	Timeout       time.Duration `validate:"gte=0"`
	MaxRetries    int           `validate:"gte=0,lte=10"`
}

type GitConfig struct {
	RepoDir string `validate:"required"`
}

type TestStepConfig struct {
	InstallCommand []string
	RunCommand     []string `validate:"required,min=1,dive,required"`
	Target         string   `validate:"required"`
	WorkDir        string   `validate:"required"`
}

type LoggingConfig struct {
	Level       string `validate:"omitempty,oneof=debug info warn error"`
	Dir         string
	Environment string
}

type ObservabilityConfig struct {
	Endpoint       string
	ServiceName    string
	ServiceVersion string
}

type MetricsConfig struct {
	PushgatewayURL string `validate:"omitempty,url"`
	JobName        string `validate:"required"`
}

// Defaults for the AppVeyor endpoints
const (
	DefaultAppVeyorAPIURL    = "https://ci.appveyor.com/api/builds"
	DefaultAppVeyorStatusURL = "https://ci.appveyor.com/project"
)

// Load reads configuration from environment variables, a .env file in the
// working directory or its parent, and envFile when it is not empty.
func Load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("APPVEYOR_API_KEY", "")
	v.SetDefault("APPVEYOR_ACC_NAME", "")
	v.SetDefault("APPVEYOR_PROJ_SLUG", "")
	v.SetDefault("APPVEYOR_API_URL", DefaultAppVeyorAPIURL)
	v.SetDefault("APPVEYOR_STATUS_URL", DefaultAppVeyorStatusURL)
	v.SetDefault("APPVEYOR_HTTP_TIMEOUT", "0s") // no client timeout
	v.SetDefault("APPVEYOR_TRIGGER_RETRIES", 0)
	v.SetDefault("GIT_REPO_DIR", ".")
	v.SetDefault("TEST_INSTALL_CMD", "pip install pytest")
	v.SetDefault("TEST_RUN_CMD", "pytest")
	v.SetDefault("TEST_TARGET", "tests/test_ui_server.py")
	v.SetDefault("TEST_WORK_DIR", ".")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("O11Y_EXPORTER_ENDPOINT", "")
	v.SetDefault("O11Y_SERVICE_NAME", "invest-pipelines")
	v.SetDefault("O11Y_SERVICE_VERSION", "dev")
	v.SetDefault("METRICS_PUSHGATEWAY_URL", "")
	v.SetDefault("METRICS_JOB_NAME", "invest-pipelines")

	// Automatically read environment variables. A variable set to "" counts
	// as set, so TEST_INSTALL_CMD= disables the install command.
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig() //nolint:errcheck // Ignore error if .env file doesn't exist

	if envFile != "" {
		v.SetConfigFile(envFile)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		AppVeyor: AppVeyorConfig{
			APIKey:        v.GetString("APPVEYOR_API_KEY"),
			AccountName:   v.GetString("APPVEYOR_ACC_NAME"),
			ProjectSlug:   v.GetString("APPVEYOR_PROJ_SLUG"),
			APIURL:        v.GetString("APPVEYOR_API_URL"),
			StatusBaseURL: strings.TrimRight(v.GetString("APPVEYOR_STATUS_URL"), "/"),
			Timeout:       v.GetDuration("APPVEYOR_HTTP_TIMEOUT"),
			MaxRetries:    v.GetInt("APPVEYOR_TRIGGER_RETRIES"),
		},
		Git: GitConfig{
			RepoDir: v.GetString("GIT_REPO_DIR"),
		},
		TestStep: TestStepConfig{
			InstallCommand: strings.Fields(v.GetString("TEST_INSTALL_CMD")),
			RunCommand:     strings.Fields(v.GetString("TEST_RUN_CMD")),
			Target:         v.GetString("TEST_TARGET"),
			WorkDir:        v.GetString("TEST_WORK_DIR"),
		},
		Logging: LoggingConfig{
			Level:       strings.ToLower(v.GetString("LOG_LEVEL")),
			Dir:         v.GetString("LOG_DIR"),
			Environment: v.GetString("APP_ENV"),
		},
		Observability: ObservabilityConfig{
			Endpoint:       v.GetString("O11Y_EXPORTER_ENDPOINT"),
			ServiceName:    v.GetString("O11Y_SERVICE_NAME"),
			ServiceVersion: v.GetString("O11Y_SERVICE_VERSION"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: v.GetString("METRICS_PUSHGATEWAY_URL"),
			JobName:        v.GetString("METRICS_JOB_NAME"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks the structure of the configuration. It reports the first
// failing field using its environment key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if apperrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperrors.InvalidConfigError(envKey(fe.StructNamespace()), describe(fe))
	}
	return fmt.Errorf("%w: %w", apperrors.ErrInvalidConfig, err)
}

// envKeys maps validated struct fields back to the variables that set them.
var envKeys = map[string]string{
	"Config.AppVeyor.APIURL":        "APPVEYOR_API_URL",
	"Config.AppVeyor.StatusBaseURL": "APPVEYOR_STATUS_URL",
	"Config.AppVeyor.Timeout":       "APPVEYOR_HTTP_TIMEOUT",
	"Config.AppVeyor.MaxRetries":    "APPVEYOR_TRIGGER_RETRIES",
	"Config.Git.RepoDir":            "GIT_REPO_DIR",
	"Config.TestStep.RunCommand":    "TEST_RUN_CMD",
	"Config.TestStep.Target":        "TEST_TARGET",
	"Config.TestStep.WorkDir":       "TEST_WORK_DIR",
	"Config.Logging.Level":          "LOG_LEVEL",
	"Config.Metrics.PushgatewayURL": "METRICS_PUSHGATEWAY_URL",
	"Config.Metrics.JobName":        "METRICS_JOB_NAME",
}

func envKey(namespace string) string {
	// Slice elements report as Config.TestStep.RunCommand[0]
	if i := strings.IndexByte(namespace, '['); i >= 0 {
		namespace = namespace[:i]
	}
	if key, ok := envKeys[namespace]; ok {
		return key
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "gte", "lte":
		return fmt.Sprintf("out of range (%s %s)", fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Environment == "development"
}
