// Package cfg loads and validates the trymerger configuration file.
package cfg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml"

	"github.com/simplesurance/trymerger/internal/trymerge"
)

const (
	DefGithubWebhookEndpoint = "/listener/github"
	DefStatusPageEndpoint    = "/trymerge/"
	DefMetricsEndpoint       = "/metrics"
	DefBotName               = "bot"
	DefLogFormat             = "logfmt"
	DefLogTimeKey            = "time_iso8601"
	DefLogLevel              = "info"
)

// HealthEndpoint is the path of the health check endpoint, it is not
// configurable.
const HealthEndpoint = "/health"

// Environment variables that override values from the configuration file.
const (
	EnvGithubToken   = "GITHUB_TOKEN"
	EnvWebhookSecret = "WEBHOOK_SECRET"
	EnvDatabaseURL   = "DATABASE_URL"
	EnvBindAddress   = "BIND_ADDRESS"
	EnvBotName       = "BOT_NAME"
)

type Config struct {
	HTTPListenAddr            string   `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string   `toml:"https_server_listen_addr"`
	HTTPSCertFile             string   `toml:"https_ssl_cert_file" validate:"required_with=HTTPSListenAddr"`
	HTTPSKeyFile              string   `toml:"https_ssl_key_file" validate:"required_with=HTTPSListenAddr"`
	HTTPGithubWebhookEndpoint string   `toml:"github_webhook_endpoint" validate:"startswith=/"`
	HTTPStatusPageEndpoint    string   `toml:"status_page_endpoint" validate:"startswith=/"`
	HTTPMetricsEndpoint       string   `toml:"metrics_endpoint" validate:"startswith=/"`
	GithubWebHookSecret       string   `toml:"github_webhook_secret" validate:"required"`
	GithubAPIToken            string   `toml:"github_api_token" validate:"required"`
	GithubAPIURL              string   `toml:"github_api_url" validate:"omitempty,url"`
	DatabaseURL               string   `toml:"database_url"`
	BotName                   string   `toml:"bot_name" validate:"required"`
	DryRun                    bool     `toml:"dry_run"`
	LogFormat                 string   `toml:"log_format" validate:"oneof=logfmt console json"`
	LogTimeKey                string   `toml:"log_time_key"`
	LogLevel                  string   `toml:"log_level" validate:"oneof=debug info warn error dpanic panic fatal"`
	FilterQuery               string   `toml:"filter_query"`
	TryMerge                  TryMerge `toml:"trymerge"`
}

type TryMerge struct {
	StatusSource          string     `toml:"status_source"`
	StatusInitialDelay    string     `toml:"status_initial_delay"`
	StatusPollMaxInterval string     `toml:"status_poll_max_interval"`
	StatusTimeout         string     `toml:"status_timeout"`
	JobTimeout            string     `toml:"job_timeout"`
	Commands              []*Command `toml:"command" validate:"dive"`

	durations durations
}

type durations struct {
	statusInitialDelay    time.Duration
	statusPollMaxInterval time.Duration
	statusTimeout         time.Duration
	jobTimeout            time.Duration
}

// Command maps a bot command to the prefix of the try branches it creates.
type Command struct {
	Name         string `toml:"name" validate:"required"`
	BranchPrefix string `toml:"branch_prefix" validate:"required"`
}

func (t *TryMerge) StatusInitialDelayDuration() time.Duration {
	return t.durations.statusInitialDelay
}

func (t *TryMerge) StatusPollMaxIntervalDuration() time.Duration {
	return t.durations.statusPollMaxInterval
}

func (t *TryMerge) StatusTimeoutDuration() time.Duration {
	return t.durations.statusTimeout
}

func (t *TryMerge) JobTimeoutDuration() time.Duration {
	return t.durations.jobTimeout
}

// Load reads a configuration file from reader, applies environment variable
// overrides and default values and validates the result.
func Load(reader io.Reader) (*Config, error) {
	return load(reader, os.LookupEnv)
}

func load(reader io.Reader, lookupEnv func(string) (string, bool)) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.applyEnv(lookupEnv)
	result.setDefaults()

	if err := result.Validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) {
	for env, field := range map[string]*string{
		EnvGithubToken:   &c.GithubAPIToken,
		EnvWebhookSecret: &c.GithubWebHookSecret,
		EnvDatabaseURL:   &c.DatabaseURL,
		EnvBindAddress:   &c.HTTPListenAddr,
		EnvBotName:       &c.BotName,
	} {
		if val, exists := lookupEnv(env); exists && val != "" {
			*field = val
		}
	}
}

func setDefault(field *string, val string) {
	if *field == "" {
		*field = val
	}
}

func (c *Config) setDefaults() {
	setDefault(&c.HTTPGithubWebhookEndpoint, DefGithubWebhookEndpoint)
	setDefault(&c.HTTPStatusPageEndpoint, DefStatusPageEndpoint)
	setDefault(&c.HTTPMetricsEndpoint, DefMetricsEndpoint)
	setDefault(&c.BotName, DefBotName)
	setDefault(&c.LogFormat, DefLogFormat)
	setDefault(&c.LogTimeKey, DefLogTimeKey)
	setDefault(&c.LogLevel, DefLogLevel)

	setDefault(&c.TryMerge.StatusSource, trymerge.StatusSourceCombined)
	setDefault(&c.TryMerge.StatusInitialDelay, trymerge.DefStatusInitialDelay.String())
	setDefault(&c.TryMerge.StatusPollMaxInterval, trymerge.DefStatusPollMaxInterval.String())
	setDefault(&c.TryMerge.StatusTimeout, trymerge.DefStatusTimeout.String())
	setDefault(&c.TryMerge.JobTimeout, trymerge.DefJobTimeout.String())

	if len(c.TryMerge.Commands) == 0 {
		c.TryMerge.Commands = DefaultCommands(c.BotName)
	}
}

// DefaultCommands returns the commands that are used when none are
// configured.
func DefaultCommands(botName string) []*Command {
	return []*Command{
		{Name: "try", BranchPrefix: "automation/" + botName + "/try"},
		{Name: "try-merge", BranchPrefix: "automation/" + botName + "/try-merge"},
	}
}

var validate = validator.New()

var botNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var commandNameRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var errs []error

	if c.HTTPListenAddr == "" && c.HTTPSListenAddr == "" {
		errs = append(errs, errors.New("https_server_listen_addr or http_server_listen_addr must be defined, both are unset"))
	}

	endpoints := map[string]string{HealthEndpoint: "health endpoint"}
	for _, e := range []struct {
		key  string
		path string
	}{
		{"github_webhook_endpoint", c.HTTPGithubWebhookEndpoint},
		{"status_page_endpoint", c.HTTPStatusPageEndpoint},
		{"metrics_endpoint", c.HTTPMetricsEndpoint},
	} {
		if other, exists := endpoints[e.path]; exists {
			errs = append(errs, fmt.Errorf("%s %q is already used by the %s", e.key, e.path, other))
			continue
		}
		endpoints[e.path] = e.key
	}

	switch c.TryMerge.StatusSource {
	case trymerge.StatusSourceCombined, trymerge.StatusSourceRollup:
	default:
		errs = append(errs, fmt.Errorf(
			"status_source %q is invalid, supported values: %s, %s",
			c.TryMerge.StatusSource, trymerge.StatusSourceCombined, trymerge.StatusSourceRollup,
		))
	}

	if !botNameRe.MatchString(c.BotName) {
		errs = append(errs, fmt.Errorf("bot_name %q contains invalid characters", c.BotName))
	}

	seen := make(map[string]struct{}, len(c.TryMerge.Commands))
	for _, cmd := range c.TryMerge.Commands {
		if !commandNameRe.MatchString(cmd.Name) {
			errs = append(errs, fmt.Errorf("command name %q must only contain lowercase letters, digits, '_' and '-'", cmd.Name))
		}

		if _, exists := seen[cmd.Name]; exists {
			errs = append(errs, fmt.Errorf("command %q is defined multiple times", cmd.Name))
		}
		seen[cmd.Name] = struct{}{}

		if strings.HasSuffix(cmd.BranchPrefix, "/") || strings.HasPrefix(cmd.BranchPrefix, "/") {
			errs = append(errs, fmt.Errorf("branch_prefix %q of command %q must not start or end with '/'", cmd.BranchPrefix, cmd.Name))
		}
	}

	durs, err := c.TryMerge.parseDurations()
	if err != nil {
		errs = append(errs, err)
	} else {
		c.TryMerge.durations = *durs
	}

	return errors.Join(errs...)
}

func parseDuration(key, val string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative", key)
	}

	if d == 0 && !allowZero {
		return 0, fmt.Errorf("%s: duration must be greater than 0", key)
	}

	return d, nil
}

func (t *TryMerge) parseDurations() (*durations, error) {
	var result durations
	var errs []error

	for _, e := range []struct {
		key       string
		val       string
		allowZero bool
		target    *time.Duration
	}{
		{"status_initial_delay", t.StatusInitialDelay, true, &result.statusInitialDelay},
		{"status_poll_max_interval", t.StatusPollMaxInterval, false, &result.statusPollMaxInterval},
		{"status_timeout", t.StatusTimeout, false, &result.statusTimeout},
		{"job_timeout", t.JobTimeout, false, &result.jobTimeout},
	} {
		d, err := parseDuration(e.key, e.val, e.allowZero)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*e.target = d
	}

	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	return &result, nil
}
