package config

import (
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/maximevalette/backups-reporter/internal/errors"
)

// Config holds the application configuration
type Config struct {
	LogLevel string `yaml:"log_level"`

	EntriesPerSource       int  `yaml:"entries_per_source"`
	MaxTotalEntries        int  `yaml:"max_total_entries"`
	FailWhenAllSourcesFail bool `yaml:"fail_when_all_sources_fail"`

	BorgRepositories []BorgRepoConfig `yaml:"borg_repositories"`
	S3Buckets        []S3BucketConfig `yaml:"s3_buckets"`

	Email    *EmailConfig `yaml:"email"`
	Webhooks []string     `yaml:"webhooks"`
}

// BorgRepoConfig describes one Borg repository to poll
type BorgRepoConfig struct {
	Name                     string `yaml:"name"`
	Repository               string `yaml:"repository"`
	Passphrase               string `yaml:"passphrase"`
	SSHStrictHostKeyChecking bool   `yaml:"ssh_strict_host_key_checking"`
	SSHKnownHostsFile        string `yaml:"ssh_known_hosts_file"`
}

// Validate validates the Borg repository configuration
func (c BorgRepoConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Repository, validation.Required),
	)
}

// S3BucketConfig describes one S3-compatible bucket to poll
type S3BucketConfig struct {
	Name        string `yaml:"name"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	EndpointURL string `yaml:"endpoint_url"`
}

// Validate validates the S3 bucket configuration
func (c S3BucketConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Bucket, validation.Required),
		validation.Field(&c.EndpointURL, is.URL),
	)
}

// EmailConfig holds the SMTP settings for report delivery
type EmailConfig struct {
	SMTPServer string   `yaml:"smtp_server"`
	SMTPPort   int      `yaml:"smtp_port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	FromEmail  string   `yaml:"from_email"`
	ToEmails   []string `yaml:"to_emails"`
	UseTLS     *bool    `yaml:"use_tls"`
}

// StartTLS reports whether the SMTP connection should upgrade to TLS.
// Defaults to true when unset, matching common submission setups.
func (c *EmailConfig) StartTLS() bool {
	return c.UseTLS == nil || *c.UseTLS
}

// Validate validates the email configuration
func (c EmailConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SMTPServer, validation.Required),
		validation.Field(&c.SMTPPort, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.FromEmail, validation.Required, is.Email),
		validation.Field(&c.ToEmails, validation.Required, validation.Each(is.Email)),
	)
}

// Load reads the YAML configuration file and applies defaults and
// environment variable overrides
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError(path, err.Error())
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperrors.NewConfigError(path, fmt.Sprintf("invalid yaml: %v", err))
	}

	cfg.defaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) defaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.EntriesPerSource <= 0 {
		c.EntriesPerSource = 10
	}
	if c.MaxTotalEntries <= 0 {
		c.MaxTotalEntries = 100
	}
	for i := range c.S3Buckets {
		if c.S3Buckets[i].Region == "" {
			c.S3Buckets[i].Region = "us-east-1"
		}
	}
	if c.Email != nil && c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
}

// applyEnv lets process environment credentials take precedence over
// values from the config file
func (c *Config) applyEnv() {
	if passphrase := os.Getenv("BORG_PASSPHRASE"); passphrase != "" {
		for i := range c.BorgRepositories {
			c.BorgRepositories[i].Passphrase = passphrase
		}
	}

	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	region := os.Getenv("AWS_DEFAULT_REGION")
	for i := range c.S3Buckets {
		if accessKey != "" {
			c.S3Buckets[i].AccessKey = accessKey
		}
		if secretKey != "" {
			c.S3Buckets[i].SecretKey = secretKey
		}
		if region != "" {
			c.S3Buckets[i].Region = region
		}
	}

	if c.Email != nil {
		if password := os.Getenv("SMTP_PASSWORD"); password != "" {
			c.Email.Password = password
		}
	}
}

// Validate validates the configuration. Validation failures are fatal
// and detected before the run starts.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.EntriesPerSource, validation.Min(1)),
		validation.Field(&c.MaxTotalEntries, validation.Min(1)),
		validation.Field(&c.BorgRepositories),
		validation.Field(&c.S3Buckets),
		validation.Field(&c.Email),
		validation.Field(&c.Webhooks, validation.Each(validation.Required, is.URL)),
	)
	if err != nil {
		return apperrors.NewConfigError("config", err.Error())
	}

	// Source names key the per-source status map and must be unique
	// within their kind.
	seen := make(map[string]bool)
	for _, repo := range c.BorgRepositories {
		key := "borg:" + repo.Name
		if seen[key] {
			return apperrors.NewConfigError("borg_repositories", fmt.Sprintf("duplicate source name %q", repo.Name))
		}
		seen[key] = true
	}
	for _, bucket := range c.S3Buckets {
		key := "s3:" + bucket.Name
		if seen[key] {
			return apperrors.NewConfigError("s3_buckets", fmt.Sprintf("duplicate source name %q", bucket.Name))
		}
		seen[key] = true
	}

	return nil
}
