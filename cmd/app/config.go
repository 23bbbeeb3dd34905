package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Waiter configuration
	Waiter WaiterConfig `mapstructure:"waiter"`

	// SSH configuration
	SSH SSHConfig `mapstructure:"ssh"`

	// BOS configuration
	BOS BOSConfig `mapstructure:"bos"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Kubernetes configuration
	Kubernetes KubernetesConfig `mapstructure:"kubernetes"`

	// Checks configuration
	Checks ChecksConfig `mapstructure:"checks"`

	// Application configuration
	App AppConfig `mapstructure:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	// Port is the HTTP server port
	Port string `mapstructure:"port"`

	// ShutdownTimeout is the timeout for server shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WaiterConfig holds the default knobs applied to every wait
type WaiterConfig struct {
	// Timeout bounds one polling cycle; zero means no timeout
	Timeout time.Duration `mapstructure:"timeout"`

	// PollInterval is the delay between condition evaluations
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Retries is the number of additional timeout cycles allowed
	Retries int `mapstructure:"retries"`
}

// SSHConfig holds SSH reachability checker configuration
type SSHConfig struct {
	// User is the login user for reachability checks
	User string `mapstructure:"user"`

	// KeyPath is the path to the private key file
	KeyPath string `mapstructure:"key_path"`

	// Port is the SSH port on target hosts
	Port int `mapstructure:"port"`

	// DialTimeout is the timeout for a single connection attempt
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// BOSConfig holds boot-orchestration service configuration
type BOSConfig struct {
	// BaseURL is the base URL for the BOS API
	BaseURL string `mapstructure:"base_url"`

	// Timeout is the timeout for BOS API requests
	Timeout time.Duration `mapstructure:"timeout"`

	// InsecureSkipVerify disables TLS verification (development only)
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// StorageConfig holds storage-cluster health endpoint configuration
type StorageConfig struct {
	// BaseURL is the base URL for the storage cluster health API
	BaseURL string `mapstructure:"base_url"`

	// Timeout is the timeout for health requests
	Timeout time.Duration `mapstructure:"timeout"`

	// InsecureSkipVerify disables TLS verification (development only)
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// KubernetesConfig holds Kubernetes client configuration
type KubernetesConfig struct {
	// Namespace is the default namespace for pod checks
	Namespace string `mapstructure:"namespace"`

	// ConfigPath is the path to the kubeconfig file
	ConfigPath string `mapstructure:"config_path"`

	// MasterURL is the Kubernetes API server URL
	MasterURL string `mapstructure:"master_url"`
}

// ChecksConfig lists the targets each checker waits on. Empty lists skip
// the corresponding check.
type ChecksConfig struct {
	// BootSessions are boot-orchestration session IDs to wait on
	BootSessions []string `mapstructure:"boot_sessions"`

	// Nodes are Kubernetes node names that must report Ready
	Nodes []string `mapstructure:"nodes"`

	// Pods are pods that must be running, as namespace/name or bare names
	// in the default namespace
	Pods []string `mapstructure:"pods"`

	// Hosts are hostnames that must accept SSH connections
	Hosts []string `mapstructure:"hosts"`

	// HostsDown are hostnames that must stop accepting SSH connections,
	// as during a shutdown
	HostsDown []string `mapstructure:"hosts_down"`

	// Storage waits for the storage cluster to report healthy
	Storage bool `mapstructure:"storage"`
}

// AppConfig holds application configuration
type AppConfig struct {
	// Component is the name of the component
	Component string `mapstructure:"component"`

	// LogLevel is the log level
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is the log output encoding (json or text)
	LogFormat string `mapstructure:"log_format"`
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure paths and file types
	configureViper(v)

	// Read configs file
	if err := readConfigs(v); err != nil {
		return nil, err
	}

	// Unmarshal configuration
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configs: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// configureViper sets up Viper configuration paths and types
func configureViper(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/sat-wait/")

	// Enable environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("SAT_WAIT")
}

// readConfigs attempts to read the configuration file
func readConfigs(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Only return error if it's not a "configs file not found" error
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read configs file: %w", err)
		}
		// Otherwise, continue with defaults and environment variables
	}
	return nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if cfg.Waiter.Timeout < 0 {
		return fmt.Errorf("waiter.timeout must not be negative")
	}
	if cfg.Waiter.PollInterval <= 0 {
		return fmt.Errorf("waiter.poll_interval must be positive")
	}
	if cfg.Waiter.Retries < 0 {
		return fmt.Errorf("waiter.retries must not be negative")
	}

	if cfg.SSH.User == "" {
		return fmt.Errorf("ssh.user is required")
	}
	if cfg.SSH.Port <= 0 {
		return fmt.Errorf("ssh.port must be positive")
	}

	if cfg.BOS.BaseURL == "" {
		return fmt.Errorf("bos.base_url is required")
	}
	if cfg.Storage.BaseURL == "" {
		return fmt.Errorf("storage.base_url is required")
	}

	if cfg.Kubernetes.Namespace == "" {
		return fmt.Errorf("kubernetes.namespace is required")
	}

	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Waiter defaults
	v.SetDefault("waiter.timeout", 10*time.Minute)
	v.SetDefault("waiter.poll_interval", 5*time.Second)
	v.SetDefault("waiter.retries", 0)

	// SSH defaults
	v.SetDefault("ssh.user", "root")
	v.SetDefault("ssh.key_path", "/root/.ssh/id_rsa")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.dial_timeout", 10*time.Second)

	// BOS defaults
	v.SetDefault("bos.base_url", "https://api-gw-service-nmn.local/apis/bos")
	v.SetDefault("bos.timeout", 30*time.Second)
	v.SetDefault("bos.insecure_skip_verify", false)

	// Storage defaults
	v.SetDefault("storage.base_url", "https://storage-mgmt.local:8443")
	v.SetDefault("storage.timeout", 30*time.Second)
	v.SetDefault("storage.insecure_skip_verify", false)

	// Kubernetes defaults
	v.SetDefault("kubernetes.namespace", "services")

	// Checks defaults
	v.SetDefault("checks.storage", true)

	// App defaults
	v.SetDefault("app.component", "sat-wait")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")
}
