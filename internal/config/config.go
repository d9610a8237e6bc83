// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/endorse/database/plugin"
)

type ctxKey string

const configContextKey ctxKey = "endorse.config"

const (
	DefaultBlobPlugin      = "badger"
	DefaultMetadataPlugin  = "sqlite"
	DefaultShutdownTimeout = "30s"
	DefaultArtifactTimeout = "30s"
	DefaultUrlTtl          = "15m"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config   yaml.Node                 `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	// Users maps an identity to its bcrypt password hash
	Users            map[string]string `yaml:"users"`
	DatabasePath     string            `yaml:"databasePath"     split_words:"true"`
	BlobPlugin       string            `yaml:"blobPlugin"       envconfig:"DATABASE_BLOB_PLUGIN"`
	MetadataPlugin   string            `yaml:"metadataPlugin"   envconfig:"DATABASE_METADATA_PLUGIN"`
	BindAddr         string            `yaml:"bindAddr"         split_words:"true"`
	TlsCertFilePath  string            `yaml:"tlsCertFilePath"  envconfig:"TLS_CERT_FILE_PATH"`
	TlsKeyFilePath   string            `yaml:"tlsKeyFilePath"   envconfig:"TLS_KEY_FILE_PATH"`
	ShutdownTimeout  string            `yaml:"shutdownTimeout"  split_words:"true"`
	ArtifactTimeout  string            `yaml:"artifactTimeout"  split_words:"true"`
	UrlTtl           string            `yaml:"urlTtl"           split_words:"true"`
	Administrators   []string          `yaml:"administrators"`
	MaxUploadBytes   int64             `yaml:"maxUploadBytes"   split_words:"true"`
	ApiPort          uint              `yaml:"apiPort"          split_words:"true"`
	MetricsPort      uint              `yaml:"metricsPort"      split_words:"true"`
	EncryptArtifacts bool              `yaml:"encryptArtifacts" split_words:"true"`
	Notifier         bool              `yaml:"notifier"`
	Tracing          bool              `yaml:"tracing"`
	TracingStdout    bool              `yaml:"tracingStdout"    split_words:"true"`
}

func defaultConfig() *Config {
	return &Config{
		DatabasePath:    ".endorse",
		BlobPlugin:      DefaultBlobPlugin,
		MetadataPlugin:  DefaultMetadataPlugin,
		BindAddr:        "0.0.0.0",
		ApiPort:         8080,
		MetricsPort:     12798,
		ShutdownTimeout: DefaultShutdownTimeout,
		ArtifactTimeout: DefaultArtifactTimeout,
		UrlTtl:          DefaultUrlTtl,
		MaxUploadBytes:  32 << 20,
		Notifier:        true,
	}
}

var globalConfig = defaultConfig()

// ApiListenAddress returns the host:port the workflow API binds to
func (c *Config) ApiListenAddress() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.ApiPort)
}

// MetricsListenAddress returns the host:port for the metrics endpoint, or an
// empty string when metrics are disabled
func (c *Config) MetricsListenAddress() string {
	if c.MetricsPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.BindAddr, c.MetricsPort)
}

func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	return parseDuration("shutdownTimeout", c.ShutdownTimeout, DefaultShutdownTimeout)
}

func (c *Config) ArtifactTimeoutDuration() (time.Duration, error) {
	return parseDuration("artifactTimeout", c.ArtifactTimeout, DefaultArtifactTimeout)
}

func (c *Config) UrlTtlDuration() (time.Duration, error) {
	return parseDuration("urlTtl", c.UrlTtl, DefaultUrlTtl)
}

func parseDuration(name, value, fallback string) (time.Duration, error) {
	if value == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", name, value)
	}
	return d, nil
}

// Validate checks the loaded values that cannot be checked by parsing alone
func (c *Config) Validate() error {
	var err error
	if c.ApiPort == 0 || c.ApiPort > 65535 {
		err = errors.Join(err, fmt.Errorf("invalid apiPort: %d", c.ApiPort))
	}
	if c.MetricsPort > 65535 {
		err = errors.Join(err, fmt.Errorf("invalid metricsPort: %d", c.MetricsPort))
	}
	if c.MetricsPort != 0 && c.MetricsPort == c.ApiPort {
		err = errors.Join(err, errors.New("apiPort and metricsPort must differ"))
	}
	if (c.TlsCertFilePath == "") != (c.TlsKeyFilePath == "") {
		err = errors.Join(err, errors.New("tlsCertFilePath and tlsKeyFilePath must be set together"))
	}
	if c.MaxUploadBytes < 0 {
		err = errors.Join(err, fmt.Errorf("invalid maxUploadBytes: %d", c.MaxUploadBytes))
	}
	if _, dErr := c.ShutdownTimeoutDuration(); dErr != nil {
		err = errors.Join(err, dErr)
	}
	if _, dErr := c.ArtifactTimeoutDuration(); dErr != nil {
		err = errors.Join(err, dErr)
	}
	if _, dErr := c.UrlTtlDuration(); dErr != nil {
		err = errors.Join(err, dErr)
	}
	return err
}

// findConfigFile looks for ~/.endorse/endorse.yaml, then /etc/endorse/endorse.yaml
func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".endorse", "endorse.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/endorse/endorse.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := loadConfigFile(configFile); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	err := envconfig.Process("endorse", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}
	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

func loadConfigFile(configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	if !tempCfg.Config.IsZero() {
		// Decode onto the defaults so unmentioned keys keep their values
		if err := tempCfg.Config.Decode(globalConfig); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		// A file without a config section is the main config itself
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}

	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Blob != nil {
		pluginConfig["blob"] = tempCfg.Blob
	}
	if tempCfg.Metadata != nil {
		pluginConfig["metadata"] = tempCfg.Metadata
	}
	if tempCfg.Database != nil {
		mergePluginSection(
			pluginConfig,
			"blob",
			tempCfg.Database.Blob,
			&globalConfig.BlobPlugin,
		)
		mergePluginSection(
			pluginConfig,
			"metadata",
			tempCfg.Database.Metadata,
			&globalConfig.MetadataPlugin,
		)
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig); err != nil {
			return fmt.Errorf("error processing plugin config: %w", err)
		}
	}
	return nil
}

// mergePluginSection folds a database.<type> section into pluginConfig. A
// "plugin" key selects the plugin; every map-valued key holds the options
// for the plugin of that name.
func mergePluginSection(
	pluginConfig map[string]map[string]map[string]any,
	pluginType string,
	section map[string]any,
	selected *string,
) {
	if section == nil {
		return
	}
	if pluginVal, exists := section["plugin"]; exists {
		if pluginName, ok := pluginVal.(string); ok {
			*selected = pluginName
			delete(section, "plugin")
		}
	}
	options := make(map[string]map[string]any)
	for k, v := range section {
		switch val := v.(type) {
		case map[string]any:
			options[k] = val
		case map[any]any:
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			options[k] = stringAnyMap
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				pluginType,
				k,
				v,
			)
		}
	}
	if pluginConfig[pluginType] == nil {
		pluginConfig[pluginType] = options
	} else {
		maps.Copy(pluginConfig[pluginType], options)
	}
}

func GetConfig() *Config {
	return globalConfig
}
