// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Perception() PerceptionConfig
	Safety() SafetyConfig
	Executor() ExecutorConfig
	Oracle() OracleConfig
	Engine() EngineConfig
	Monitor() MonitorConfig
	Storage() StorageConfig

	// Safety Setters
	SetSafeMode(bool)
	SetConfirmSensitiveActions(bool)

	// Executor Setters
	SetExecutorDriver(string)
	SetExecutorActionDelay(d time.Duration)

	// Oracle Setters
	SetOracleProvider(string)
	SetOracleModel(string)

	// Engine Setters
	SetEngineMaxRetries(int)
}

// Config holds the entire application configuration. It uses private
// fields to enforce access through the Interface's getter methods.
type Config struct {
	logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	perception PerceptionConfig `mapstructure:"perception" yaml:"perception"`
	safety     SafetyConfig     `mapstructure:"safety" yaml:"safety"`
	executor   ExecutorConfig   `mapstructure:"executor" yaml:"executor"`
	oracle     OracleConfig     `mapstructure:"oracle" yaml:"oracle"`
	engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	monitor    MonitorConfig    `mapstructure:"monitor" yaml:"monitor"`
	storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.logger }
func (c *Config) Perception() PerceptionConfig { return c.perception }
func (c *Config) Safety() SafetyConfig         { return c.safety }
func (c *Config) Executor() ExecutorConfig     { return c.executor }
func (c *Config) Oracle() OracleConfig         { return c.oracle }
func (c *Config) Engine() EngineConfig         { return c.engine }
func (c *Config) Monitor() MonitorConfig       { return c.monitor }
func (c *Config) Storage() StorageConfig       { return c.storage }

// --- Interface Method Implementations (Setters) ---

// Safety Setters
func (c *Config) SetSafeMode(b bool)                { c.safety.SafeMode = b }
func (c *Config) SetConfirmSensitiveActions(b bool) { c.safety.ConfirmSensitiveActions = b }

// Executor Setters
func (c *Config) SetExecutorDriver(d string)             { c.executor.Driver = d }
func (c *Config) SetExecutorActionDelay(d time.Duration) { c.executor.ActionDelay = d }

// Oracle Setters
func (c *Config) SetOracleProvider(p string) { c.oracle.Provider = p }
func (c *Config) SetOracleModel(m string)    { c.oracle.Model = m }

// Engine Setters
func (c *Config) SetEngineMaxRetries(n int) { c.engine.MaxRetries = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// PerceptionConfig tunes the screen-analysis pipeline.
type PerceptionConfig struct {
	MinOCRConfidence float64       `mapstructure:"min_ocr_confidence" yaml:"min_ocr_confidence"`
	TesseractPath    string        `mapstructure:"tesseract_path" yaml:"tesseract_path"`
	MaxElements      int           `mapstructure:"max_elements" yaml:"max_elements"`
	ElementsEnabled  bool          `mapstructure:"elements_enabled" yaml:"elements_enabled"`
	SceneEnabled     bool          `mapstructure:"scene_enabled" yaml:"scene_enabled"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SafetyConfig governs the validation state machine and confirmation gate.
type SafetyConfig struct {
	SafeMode                bool          `mapstructure:"safe_mode" yaml:"safe_mode"`
	ConfirmSensitiveActions bool          `mapstructure:"confirm_sensitive_actions" yaml:"confirm_sensitive_actions"`
	ConfirmTimeout          time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
	EmergencyStopEnabled    bool          `mapstructure:"emergency_stop_enabled" yaml:"emergency_stop_enabled"`
	MaxHistory              int           `mapstructure:"max_history" yaml:"max_history"`
}

// ExecutorConfig configures the actuation layer.
type ExecutorConfig struct {
	// Driver selects the input surface: "desktop" or "browser".
	Driver         string        `mapstructure:"driver" yaml:"driver"`
	ActionDelay    time.Duration `mapstructure:"action_delay" yaml:"action_delay"`
	DisplayScaling float64       `mapstructure:"display_scaling" yaml:"display_scaling"`
	TypeInterval   time.Duration `mapstructure:"type_interval" yaml:"type_interval"`
	DragDuration   time.Duration `mapstructure:"drag_duration" yaml:"drag_duration"`
}

// OracleConfig configures the reasoning backend used for scene description
// and task decomposition.
type OracleConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	VisionModel string        `mapstructure:"vision_model" yaml:"vision_model"`
	Host        string        `mapstructure:"host" yaml:"host"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	BaseTimeout time.Duration `mapstructure:"base_timeout" yaml:"base_timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// EngineConfig configures the task execution engine.
type EngineConfig struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryPause time.Duration `mapstructure:"retry_pause" yaml:"retry_pause"`
	StepPause  time.Duration `mapstructure:"step_pause" yaml:"step_pause"`
}

// MonitorConfig tunes the resource monitor.
type MonitorConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	SampleInterval time.Duration `mapstructure:"sample_interval" yaml:"sample_interval"`
	HistorySize    int           `mapstructure:"history_size" yaml:"history_size"`
	CPUWarnPercent float64       `mapstructure:"cpu_warn_percent" yaml:"cpu_warn_percent"`
	MemWarnPercent float64       `mapstructure:"mem_warn_percent" yaml:"mem_warn_percent"`
}

// StorageConfig locates the on-disk artifacts the agent produces.
type StorageConfig struct {
	DataDir        string `mapstructure:"data_dir" yaml:"data_dir"`
	ScreenshotsDir string `mapstructure:"screenshots_dir" yaml:"screenshots_dir"`
	TaskLogDir     string `mapstructure:"task_log_dir" yaml:"task_log_dir"`
	AuditFile      string `mapstructure:"audit_file" yaml:"audit_file"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	cfg, err := decode(v)
	if err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	dataDir := defaultDataDir()

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "kestrel")
	v.SetDefault("logger.log_file", "kestrel.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Perception --
	v.SetDefault("perception.min_ocr_confidence", 0.6)
	v.SetDefault("perception.tesseract_path", "tesseract")
	v.SetDefault("perception.max_elements", 50)
	v.SetDefault("perception.elements_enabled", true)
	v.SetDefault("perception.scene_enabled", true)
	v.SetDefault("perception.timeout", "30s")

	// -- Safety --
	v.SetDefault("safety.safe_mode", true)
	v.SetDefault("safety.confirm_sensitive_actions", true)
	v.SetDefault("safety.confirm_timeout", "30s")
	v.SetDefault("safety.emergency_stop_enabled", true)
	v.SetDefault("safety.max_history", 1000)

	// -- Executor --
	v.SetDefault("executor.driver", "desktop")
	v.SetDefault("executor.action_delay", "100ms")
	v.SetDefault("executor.display_scaling", 1.0)
	v.SetDefault("executor.type_interval", "30ms")
	v.SetDefault("executor.drag_duration", "500ms")

	// -- Oracle --
	v.SetDefault("oracle.provider", "ollama")
	v.SetDefault("oracle.model", "llama3.2")
	v.SetDefault("oracle.vision_model", "llava")
	v.SetDefault("oracle.host", "http://localhost:11434")
	v.SetDefault("oracle.base_timeout", "60s")
	v.SetDefault("oracle.max_attempts", 4)
	v.SetDefault("oracle.rate_limit", 1.0)
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.max_tokens", 2048)

	// -- Engine --
	v.SetDefault("engine.max_retries", 2)
	v.SetDefault("engine.retry_pause", "1s")
	v.SetDefault("engine.step_pause", "500ms")

	// -- Monitor --
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.sample_interval", "5s")
	v.SetDefault("monitor.history_size", 120)
	v.SetDefault("monitor.cpu_warn_percent", 90.0)
	v.SetDefault("monitor.mem_warn_percent", 90.0)

	// -- Storage --
	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.screenshots_dir", filepath.Join(dataDir, "screenshots"))
	v.SetDefault("storage.task_log_dir", filepath.Join(dataDir, "tasks"))
	v.SetDefault("storage.audit_file", filepath.Join(dataDir, "audit.jsonl"))
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kestrel"
	}
	return filepath.Join(home, ".kestrel")
}

// sections is the decode target for viper; mapstructure cannot reach the
// unexported fields on Config directly.
type sections struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Perception PerceptionConfig `mapstructure:"perception"`
	Safety     SafetyConfig     `mapstructure:"safety"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

func decode(v *viper.Viper) (*Config, error) {
	var s sections
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &Config{
		logger:     s.Logger,
		perception: s.Perception,
		safety:     s.Safety,
		executor:   s.Executor,
		oracle:     s.Oracle,
		engine:     s.Engine,
		monitor:    s.Monitor,
		storage:    s.Storage,
	}, nil
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data
	v.BindEnv("oracle.api_key", "KESTREL_ORACLE_API_KEY")

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.oracle.APIKey == "" {
		cfg.oracle.APIKey = os.Getenv("KESTREL_ORACLE_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.perception.MinOCRConfidence < 0 || c.perception.MinOCRConfidence > 1 {
		return fmt.Errorf("perception.min_ocr_confidence must be between 0.0 and 1.0")
	}
	if c.executor.Driver != "desktop" && c.executor.Driver != "browser" {
		return fmt.Errorf("executor.driver must be %q or %q", "desktop", "browser")
	}
	if c.executor.DisplayScaling <= 0 {
		return fmt.Errorf("executor.display_scaling must be positive")
	}
	if c.engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}
	if c.safety.ConfirmTimeout <= 0 {
		return fmt.Errorf("safety.confirm_timeout must be a positive duration")
	}
	if err := c.oracle.Validate(); err != nil {
		return fmt.Errorf("oracle configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the oracle settings.
func (o *OracleConfig) Validate() error {
	switch o.Provider {
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unsupported provider %q", o.Provider)
	}
	if o.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be greater than 0")
	}
	if o.BaseTimeout <= 0 {
		return fmt.Errorf("base_timeout must be a positive duration")
	}
	if o.Provider != "ollama" && o.APIKey == "" {
		return fmt.Errorf("api key is required for provider %q. Ensure KESTREL_ORACLE_API_KEY is set", o.Provider)
	}
	return nil
}
