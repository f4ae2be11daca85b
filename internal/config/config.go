// Package config loads warden's YAML configuration through viper.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/example/warden/internal/core/escalation"
)

// EnvPrefix is prepended to environment overrides, e.g. WARDEN_MONITOR_INTERVAL.
const EnvPrefix = "WARDEN"

// Config is the effective warden configuration.
type Config struct {
	Database         DatabaseConfig            `mapstructure:"database" yaml:"database"`
	Monitor          MonitorConfig             `mapstructure:"monitor" yaml:"monitor"`
	SLA              SLAConfig                 `mapstructure:"sla" yaml:"sla"`
	EscalationMatrix map[string][]TargetConfig `mapstructure:"escalation_matrix" yaml:"escalation_matrix"`
	Server           ServerConfig              `mapstructure:"server" yaml:"server"`
	Mail             MailConfig                `mapstructure:"mail" yaml:"mail"`
	Kafka            KafkaConfig               `mapstructure:"kafka" yaml:"kafka"`
	Relay            RelayConfig               `mapstructure:"relay" yaml:"relay"`
	Log              LogConfig                 `mapstructure:"log" yaml:"log"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type MonitorConfig struct {
	Interval string `mapstructure:"interval" yaml:"interval"`
	MaxLevel int    `mapstructure:"max_level" yaml:"max_level"`
}

// SLAConfig holds per-class breach budgets and re-escalation budgets, keyed
// by priority. Values are Go duration strings.
type SLAConfig struct {
	Feedback         map[string]string `mapstructure:"feedback" yaml:"feedback"`
	Alert            map[string]string `mapstructure:"alert" yaml:"alert"`
	WorkflowApproval map[string]string `mapstructure:"workflow_approval" yaml:"workflow_approval"`
	Reescalation     map[string]string `mapstructure:"reescalation" yaml:"reescalation"`
}

// TargetConfig is one matrix entry. Entries are listed per priority in level order.
type TargetConfig struct {
	Role string `mapstructure:"role" yaml:"role"`
	User string `mapstructure:"user" yaml:"user,omitempty"`
}

type ServerConfig struct {
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
}

type MailConfig struct {
	Enabled            bool                `mapstructure:"enabled" yaml:"enabled"`
	Host               string              `mapstructure:"host" yaml:"host"`
	Port               int                 `mapstructure:"port" yaml:"port"`
	User               string              `mapstructure:"user" yaml:"user"`
	Password           string              `mapstructure:"password" yaml:"-"`
	InsecureSkipVerify bool                `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	SenderAddress      string              `mapstructure:"sender_address" yaml:"sender_address"`
	SenderName         string              `mapstructure:"sender_name" yaml:"sender_name"`
	RetryCount         int                 `mapstructure:"retry_count" yaml:"retry_count"`
	RetryBackoffMs     int                 `mapstructure:"retry_backoff_ms" yaml:"retry_backoff_ms"`
	Recipients         map[string][]string `mapstructure:"recipients" yaml:"recipients"`
}

type KafkaConfig struct {
	Enabled          bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers          []string `mapstructure:"brokers" yaml:"brokers"`
	Topic            string   `mapstructure:"topic" yaml:"topic"`
	WriteTimeout     string   `mapstructure:"write_timeout" yaml:"write_timeout"`
	CompressionCodec string   `mapstructure:"compression_codec" yaml:"compression_codec"`
}

type RelayConfig struct {
	Interval string `mapstructure:"interval" yaml:"interval"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Load reads configuration from path, or from warden.yaml in the working
// directory or $HOME/.warden when path is empty. A missing file is not an
// error when searching; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("warden")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.warden")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("built-in config defaults: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "warden.db")
	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("monitor.max_level", escalation.DefaultMaxLevel)
	v.SetDefault("server.listen_address", ":8080")
	v.SetDefault("relay.interval", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.sender_address", "noreply@warden.local")
	v.SetDefault("mail.sender_name", "Warden")
	v.SetDefault("mail.retry_count", 3)
	v.SetDefault("mail.retry_backoff_ms", 100)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "warden.notifications")
	v.SetDefault("kafka.write_timeout", "10s")
	v.SetDefault("kafka.compression_codec", "snappy")

	// Leaf keys so each budget can be overridden from the environment.
	sections := map[string]escalation.ItemClass{
		"feedback":          escalation.ClassFeedback,
		"alert":             escalation.ClassAlert,
		"workflow_approval": escalation.ClassWorkflowApproval,
	}
	budgets := escalation.DefaultBudgets()
	for key, class := range sections {
		for prio, d := range budgets[class] {
			v.SetDefault(fmt.Sprintf("sla.%s.%s", key, prio), d.String())
		}
	}
	for prio, d := range escalation.DefaultReescalation() {
		v.SetDefault(fmt.Sprintf("sla.reescalation.%s", prio), d.String())
	}

	for prio, levels := range escalation.DefaultMatrix() {
		targets := make([]map[string]any, len(levels))
		for lvl, t := range levels {
			targets[lvl-1] = map[string]any{"role": t.Role, "user": t.User}
		}
		v.SetDefault("escalation_matrix."+string(prio), targets)
	}
}

// Validate rejects unparseable intervals, unknown matrix priorities and
// out-of-range levels. SLA entries are not checked here; see Policy.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if _, err := c.MonitorInterval(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.RelayInterval(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Monitor.MaxLevel < 1 {
		problems = append(problems, fmt.Sprintf("monitor.max_level must be at least 1, got %d", c.Monitor.MaxLevel))
	}

	for prio, targets := range c.EscalationMatrix {
		if _, err := escalation.ParsePriority(prio); err != nil {
			problems = append(problems, fmt.Sprintf("escalation_matrix: %v", err))
			continue
		}
		if len(targets) > c.Monitor.MaxLevel {
			problems = append(problems, fmt.Sprintf("escalation_matrix.%s lists %d levels, max_level is %d", prio, len(targets), c.Monitor.MaxLevel))
		}
		for i, t := range targets {
			if t.Role == "" {
				problems = append(problems, fmt.Sprintf("escalation_matrix.%s level %d has no role", prio, i+1))
			}
		}
	}

	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			problems = append(problems, "mail.host is required when mail is enabled")
		}
		if len(c.Mail.Recipients) == 0 {
			problems = append(problems, "mail.recipients is required when mail is enabled")
		}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			problems = append(problems, "kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			problems = append(problems, "kafka.topic is required when kafka is enabled")
		}
		if _, err := parseDuration("kafka.write_timeout", c.Kafka.WriteTimeout); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MonitorInterval returns the parsed monitor.interval.
func (c *Config) MonitorInterval() (time.Duration, error) {
	return parseDuration("monitor.interval", c.Monitor.Interval)
}

// RelayInterval returns the parsed relay.interval.
func (c *Config) RelayInterval() (time.Duration, error) {
	return parseDuration("relay.interval", c.Relay.Interval)
}

// Policy converts the SLA section into an escalation.Policy built from the
// entries that parse. Every skipped or missing entry is reported as a problem;
// the scanner that needs it fails its passes with escalation.ErrMissingPolicy
// while the other scanners keep running.
func (c *Config) Policy() (*escalation.Policy, []string) {
	var problems []string
	budgets := make(map[escalation.ItemClass]map[escalation.Priority]time.Duration)
	sections := []struct {
		class  escalation.ItemClass
		values map[string]string
	}{
		{escalation.ClassFeedback, c.SLA.Feedback},
		{escalation.ClassAlert, c.SLA.Alert},
		{escalation.ClassWorkflowApproval, c.SLA.WorkflowApproval},
	}
	for _, s := range sections {
		parsed, errs := parseBudgets("sla."+string(s.class), s.values)
		problems = append(problems, errs...)
		budgets[s.class] = parsed
	}
	reescalation, errs := parseBudgets("sla.reescalation", c.SLA.Reescalation)
	problems = append(problems, errs...)

	policy := escalation.NewPolicy(budgets, reescalation)
	if err := policy.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	return policy, problems
}

// Matrix converts the escalation_matrix section; list index i is level i+1.
func (c *Config) Matrix() escalation.Matrix {
	m := make(escalation.Matrix, len(c.EscalationMatrix))
	for prio, targets := range c.EscalationMatrix {
		levels := make(map[int]escalation.Target, len(targets))
		for i, t := range targets {
			levels[i+1] = escalation.Target{Role: t.Role, User: t.User}
		}
		m[escalation.Priority(strings.ToLower(prio))] = levels
	}
	return m
}

// YAML renders the effective configuration. The mail password is omitted.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

func parseBudgets(section string, values map[string]string) (map[escalation.Priority]time.Duration, []string) {
	var problems []string
	out := make(map[escalation.Priority]time.Duration, len(values))
	for key, raw := range values {
		prio, err := escalation.ParsePriority(key)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", section, err))
			continue
		}
		d, err := parseDuration(section+"."+key, raw)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		out[prio] = d
	}
	sort.Strings(problems)
	return out, problems
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive, got %s", key, raw)
	}
	return d, nil
}
