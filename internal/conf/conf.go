// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration for structured logging.
type LoggingConfig struct {
	// The log level to use (debug, info, warn, error).
	LevelStr string `json:"level"`
	// The log format to use (json, text).
	Format string `json:"format"`
}

// Database configuration.
type DBConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// Configuration for the monitoring module.
type MonitoringConfig struct {
	// The labels to add to all metrics.
	Labels map[string]string `json:"labels"`

	// The port to expose the metrics on.
	Port int `json:"port"`
}

// Configuration for the mqtt client.
type MQTTConfig struct {
	// The URL of the MQTT broker to use for mqtt.
	URL string `json:"url"`
	// Credentials for the MQTT broker.
	Username string `json:"username"`
	Password string `json:"password"`
}

// Configuration for the api port.
type APIConfig struct {
	// The port to expose the API on.
	Port int `json:"port"`
}

// Configuration for the keystone authentication.
type KeystoneConfig struct {
	// The URL of the keystone service.
	URL string `json:"url"`
	// Availability of the keystone service, such as "public", "internal", or "admin".
	Availability string `json:"availability"`
	// The OpenStack username (OS_USERNAME in openstack cli).
	OSUsername string `json:"username"`
	// The OpenStack password (OS_PASSWORD in openstack cli).
	OSPassword string `json:"password"`
	// The OpenStack project name (OS_PROJECT_NAME in openstack cli).
	OSProjectName string `json:"projectName"`
	// The OpenStack user domain name (OS_USER_DOMAIN_NAME in openstack cli).
	OSUserDomainName string `json:"userDomainName"`
	// The OpenStack project domain name (OS_PROJECT_DOMAIN_NAME in openstack cli).
	OSProjectDomainName string `json:"projectDomainName"`
}

// Config for which validations to disable for a scheduler step.
type SchedulerStepDisabledValidationsConfig struct {
	// Whether to validate that, after running a weigher, there are remaining hosts.
	SomeHostsRemain bool `json:"someHostsRemain,omitempty"`
}

type SchedulerStepConfig struct {
	// The name of the step implementation.
	Name string `json:"name"`
	// Custom options for the step, as a raw json map.
	Options RawOpts `json:"options,omitempty"`
	// The coefficient applied to the weigher output. Ignored for filters.
	// If no multiplier is given, 1.0 is used.
	Multiplier *float64 `json:"multiplier,omitempty"`
	// The validations to disable for this step.
	DisabledValidations SchedulerStepDisabledValidationsConfig `json:"disabledValidations,omitempty"`
}

// Configuration for the scheduler API.
type SchedulerAPIConfig struct {
	// If request bodies should be logged out.
	// This feature is intended for debugging purposes only.
	LogRequestBodies bool `json:"logRequestBodies"`
}

const (
	DefaultStalenessTimeout   = 60 * time.Second
	DefaultSweepInterval      = 10 * time.Second
	DefaultMaxAttempts        = 3
	DefaultReportsTopic       = "manila/scheduler/hosts/reports"
	DefaultSyncInterval       = time.Minute
	DefaultManilaAvailability = "public"
)

// Configuration of the manila placement scheduler.
type SchedulerConfig struct {
	// Filters in the order in which they are applied.
	Filters []SchedulerStepConfig `json:"filters"`
	// Weighers with their multipliers.
	Weighers []SchedulerStepConfig `json:"weighers"`

	// Hosts that did not report for this long are disabled.
	StalenessTimeoutSeconds int `json:"stalenessTimeoutSeconds,omitempty"`
	// How often stale hosts are swept out of the cache.
	SweepIntervalSeconds int `json:"sweepIntervalSeconds,omitempty"`
	// Maximum number of attempts for a request that does not set its own.
	DefaultMaxAttempts int `json:"defaultMaxAttempts,omitempty"`

	// The mqtt topic on which capability reports are received.
	// Leave empty to use the default topic.
	ReportsTopic string `json:"reportsTopic,omitempty"`
	// Whether to publish scheduling decisions over mqtt.
	PublishDecisions bool `json:"publishDecisions,omitempty"`
	// Whether to persist received reports in the database.
	PersistReports bool `json:"persistReports,omitempty"`

	API SchedulerAPIConfig `json:"api"`
}

func (c SchedulerConfig) StalenessTimeout() time.Duration {
	if c.StalenessTimeoutSeconds == 0 {
		return DefaultStalenessTimeout
	}
	return time.Duration(c.StalenessTimeoutSeconds) * time.Second
}

func (c SchedulerConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds == 0 {
		return DefaultSweepInterval
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c SchedulerConfig) MaxAttempts() int {
	if c.DefaultMaxAttempts == 0 {
		return DefaultMaxAttempts
	}
	return c.DefaultMaxAttempts
}

func (c SchedulerConfig) Topic() string {
	if c.ReportsTopic == "" {
		return DefaultReportsTopic
	}
	return c.ReportsTopic
}

// Configuration for polling manila storage pools from openstack.
type SyncManilaConfig struct {
	// Whether the pool poller is enabled.
	Enabled bool `json:"enabled"`
	// Availability of the service, such as "public", "internal", or "admin".
	Availability string `json:"availability"`
	// Seconds between two polls.
	IntervalSeconds int `json:"intervalSeconds,omitempty"`
	// Availability zone to assign to pools, since manila's pool api doesn't report it.
	AvailabilityZone string `json:"availabilityZone,omitempty"`
}

func (c SyncManilaConfig) Interval() time.Duration {
	if c.IntervalSeconds == 0 {
		return DefaultSyncInterval
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

type SyncConfig struct {
	Manila SyncManilaConfig `json:"manila"`
}

// Configuration shared by all services.
type SharedConfig struct {
	LoggingConfig    `json:"logging"`
	DBConfig         `json:"db"`
	MonitoringConfig `json:"monitoring"`
	MQTTConfig       `json:"mqtt"`
	APIConfig        `json:"api"`
	KeystoneConfig   `json:"keystone"`
}

// Configuration of the manila scheduler service.
type Config struct {
	SharedConfig
	SchedulerConfig SchedulerConfig `json:"scheduler"`
	SyncConfig      SyncConfig      `json:"sync"`
}

const (
	configDir  = "/etc/config"
	secretsDir = "/etc/secrets"
)

// Create a new configuration from the default config files.
//
// This will read two files:
//   - /etc/config/conf.json (or conf.yaml)
//   - /etc/secrets/secrets.json (or secrets.yaml)
//
// The values read from the secrets will override the values in the config.
func GetConfigOrDie[C any]() C {
	c, err := newConfigFromDirs[C](configDir, secretsDir)
	if err != nil {
		panic(err)
	}
	return c
}

func newConfigFromDirs[C any](confDir, secretDir string) (C, error) {
	var c C
	// Note: We need to read the config as a raw map first, to avoid golang
	// unmarshalling default values for the fields.
	cmConf, err := readRawConfigFromDir(confDir, "conf")
	if err != nil {
		return c, err
	}
	secretConf, err := readRawConfigFromDir(secretDir, "secrets")
	if err != nil {
		return c, err
	}
	return newConfigFromMaps[C](cmConf, secretConf)
}

func newConfigFromMaps[C any](base, override map[string]any) (C, error) {
	var c C
	// Merge the base config with the override config.
	mergedConf := mergeMaps(base, override)
	// Marshal again, and then unmarshal into the config struct.
	mergedBytes, err := json.Marshal(mergedConf)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(mergedBytes, &c); err != nil {
		return c, err
	}
	return c, nil
}

// Read <name>.json, or <name>.yaml if no json file exists.
func readRawConfigFromDir(dir, name string) (map[string]any, error) {
	jsonPath := filepath.Join(dir, name+".json")
	conf, err := readRawConfig(jsonPath)
	if !errors.Is(err, fs.ErrNotExist) {
		return conf, err
	}
	return readRawConfig(filepath.Join(dir, name+".yaml"))
}

// Read the json or yaml file as a map from the given file path.
func readRawConfig(path string) (map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	bytes, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return readRawConfigFromYAML(bytes)
	}
	return readRawConfigFromBytes(bytes)
}

func readRawConfigFromBytes(data []byte) (map[string]any, error) {
	var conf map[string]any
	if err := json.Unmarshal(data, &conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func readRawConfigFromYAML(data []byte) (map[string]any, error) {
	var conf map[string]any
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// mergeMaps recursively overrides dst with src (in-place)
func mergeMaps(dst, src map[string]any) map[string]any {
	result := dst
	if result == nil {
		result = map[string]any{}
	}
	for k, v := range src {
		if v == nil {
			// If src value is nil, skip override
			continue
		}
		if dstVal, ok := result[k]; ok {
			// If both are maps, merge recursively
			dstMap, dstIsMap := dstVal.(map[string]any)
			srcMap, srcIsMap := v.(map[string]any)
			if dstIsMap && srcIsMap {
				result[k] = mergeMaps(dstMap, srcMap)
				continue
			}
		}
		// Otherwise, override
		result[k] = v
	}
	return result
}
