// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMergeMaps(t *testing.T) {
	dst := map[string]any{
		"a": "original",
		"nested": map[string]any{
			"keep":     "original",
			"override": "old",
		},
		"key": "value",
	}
	src := map[string]any{
		"a": "overridden",
		"c": "new",
		"nested": map[string]any{
			"override": "new",
			"add":      "added",
		},
		"key": nil,
	}

	mergeMaps(dst, src)

	if dst["a"] != "overridden" {
		t.Errorf("expected 'a' to be 'overridden', got %v", dst["a"])
	}
	if dst["c"] != "new" {
		t.Errorf("expected 'c' to be 'new', got %v", dst["c"])
	}
	nested := dst["nested"].(map[string]any)
	if nested["keep"] != "original" {
		t.Errorf("expected nested 'keep' to be 'original', got %v", nested["keep"])
	}
	if nested["override"] != "new" {
		t.Errorf("expected nested 'override' to be 'new', got %v", nested["override"])
	}
	if nested["add"] != "added" {
		t.Errorf("expected nested 'add' to be 'added', got %v", nested["add"])
	}
	if dst["key"] != "value" {
		t.Errorf("expected 'key' to remain 'value' when src is nil, got %v", dst["key"])
	}
}

func TestNewConfigFromMaps(t *testing.T) {
	base, err := readRawConfigFromBytes([]byte(`{
		"logging": {"level": "debug", "format": "json"},
		"db": {"host": "localhost", "port": 5432, "user": "postgres"},
		"scheduler": {
			"filters": [{"name": "capacity_filter"}],
			"weighers": [{"name": "capacity_weigher", "multiplier": -1.5, "options": {"foo": "bar"}}],
			"stalenessTimeoutSeconds": 120
		}
	}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	override, err := readRawConfigFromBytes([]byte(`{"db": {"password": "secret"}}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	c, err := newConfigFromMaps[Config](base, override)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.LoggingConfig.LevelStr != "debug" || c.LoggingConfig.Format != "json" {
		t.Errorf("unexpected logging config: %+v", c.LoggingConfig)
	}
	if c.DBConfig.Password != "secret" || c.DBConfig.Host != "localhost" || c.DBConfig.Port != 5432 {
		t.Errorf("unexpected db config: %+v", c.DBConfig)
	}
	sc := c.SchedulerConfig
	if len(sc.Filters) != 1 || sc.Filters[0].Name != "capacity_filter" {
		t.Fatalf("unexpected filters: %+v", sc.Filters)
	}
	if len(sc.Weighers) != 1 || sc.Weighers[0].Multiplier == nil || *sc.Weighers[0].Multiplier != -1.5 {
		t.Fatalf("unexpected weighers: %+v", sc.Weighers)
	}
	var opts struct {
		Foo string `json:"foo"`
	}
	if err := sc.Weighers[0].Options.Unmarshal(&opts); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if opts.Foo != "bar" {
		t.Errorf("expected option foo to be bar, got %q", opts.Foo)
	}
	if sc.StalenessTimeout() != 120*time.Second {
		t.Errorf("expected staleness timeout of 120s, got %v", sc.StalenessTimeout())
	}
	if sc.MaxAttempts() != DefaultMaxAttempts {
		t.Errorf("expected default max attempts, got %d", sc.MaxAttempts())
	}
}

func TestNewConfigFromDirs_YAMLFallback(t *testing.T) {
	confDir := t.TempDir()
	secretDir := t.TempDir()
	confYAML := `
api:
  port: 8080
scheduler:
  filters:
    - name: availability_zone_filter
    - name: retry_filter
  weighers:
    - name: capacity_weigher
      multiplier: 2
  defaultMaxAttempts: 5
`
	if err := os.WriteFile(filepath.Join(confDir, "conf.yaml"), []byte(confYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	secrets := `{"mqtt": {"url": "tcp://broker:1883", "password": "hunter2"}}`
	if err := os.WriteFile(filepath.Join(secretDir, "secrets.json"), []byte(secrets), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := newConfigFromDirs[Config](confDir, secretDir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.APIConfig.Port != 8080 {
		t.Errorf("expected api port 8080, got %d", c.APIConfig.Port)
	}
	if c.MQTTConfig.URL != "tcp://broker:1883" || c.MQTTConfig.Password != "hunter2" {
		t.Errorf("unexpected mqtt config: %+v", c.MQTTConfig)
	}
	if len(c.SchedulerConfig.Filters) != 2 || c.SchedulerConfig.Filters[1].Name != "retry_filter" {
		t.Errorf("unexpected filters: %+v", c.SchedulerConfig.Filters)
	}
	if c.SchedulerConfig.MaxAttempts() != 5 {
		t.Errorf("expected 5 max attempts, got %d", c.SchedulerConfig.MaxAttempts())
	}
}

func TestNewConfigFromDirs_Missing(t *testing.T) {
	if _, err := newConfigFromDirs[Config](t.TempDir(), t.TempDir()); err == nil {
		t.Fatal("expected error for missing config files, got nil")
	}
}

func TestSchedulerConfig_Defaults(t *testing.T) {
	c := SchedulerConfig{}
	if c.StalenessTimeout() != DefaultStalenessTimeout {
		t.Errorf("expected %v, got %v", DefaultStalenessTimeout, c.StalenessTimeout())
	}
	if c.SweepInterval() != DefaultSweepInterval {
		t.Errorf("expected %v, got %v", DefaultSweepInterval, c.SweepInterval())
	}
	if c.Topic() != DefaultReportsTopic {
		t.Errorf("expected %v, got %v", DefaultReportsTopic, c.Topic())
	}
	if (SyncManilaConfig{}).Interval() != DefaultSyncInterval {
		t.Errorf("expected default sync interval")
	}
}
