// Package config defines the orchestrator's application configuration,
// loaded from conf.d/config.toml.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-conveyor/conveyor/internal/orchestrator/graph"
	"github.com/go-conveyor/conveyor/internal/server/http"
	"github.com/go-conveyor/conveyor/pkg/bus"
	"github.com/go-conveyor/conveyor/pkg/conf"
	"github.com/go-conveyor/conveyor/pkg/log"
)

// PipelineConfig tunes pipeline definitions and stage retry behavior.
// The notification flags are pointers so an absent key means "notify",
// matching the pipeline-file semantics.
type PipelineConfig struct {
	// Dir holds pipeline.yaml and the pipelines/ per-repo overrides.
	// Empty means the conf directory itself.
	Dir             string
	DefaultRetries  uint
	RetryDelay      time.Duration
	NotifyOnSuccess *bool
	NotifyOnFailure *bool
}

// GraphDefaults resolves the config into graph-level stage defaults.
func (c PipelineConfig) GraphDefaults() graph.Defaults {
	d := graph.Defaults{
		MaxRetries:      c.DefaultRetries,
		NotifyOnSuccess: true,
		NotifyOnFailure: true,
	}
	if c.NotifyOnSuccess != nil {
		d.NotifyOnSuccess = *c.NotifyOnSuccess
	}
	if c.NotifyOnFailure != nil {
		d.NotifyOnFailure = *c.NotifyOnFailure
	}
	return d
}

// NotifyConfig tunes the notification webhook.
type NotifyConfig struct {
	WebhookURL string
	Timeout    time.Duration
	Attempts   int
}

// ReaperConfig tunes stale-run eviction.
type ReaperConfig struct {
	Interval time.Duration
	TTL      time.Duration
}

// WebhookConfig tunes the inbound repository webhook.
type WebhookConfig struct {
	// Secret signs inbound payloads (HMAC-SHA1). The development default
	// disables verification with a warning.
	Secret string
}

type AppConfig struct {
	Log      log.Conf
	Http     http.Http
	Queue    bus.Conf
	Pipeline PipelineConfig
	Notify   NotifyConfig
	Reaper   ReaperConfig
	Webhook  WebhookConfig
}

var (
	cfg  AppConfig
	once sync.Once
)

// NewConf loads the application config from confDir exactly once.
func NewConf(confDir string) AppConfig {
	once.Do(func() {
		c, err := LoadConfigFile(confDir)
		if err != nil {
			panic(fmt.Sprintf("load config file error: %s", err))
		}
		cfg = c
	})
	return cfg
}

// LoadConfigFile reads config.toml from confDir and applies defaults.
func LoadConfigFile(confDir string) (AppConfig, error) {
	c := AppConfig{}
	if err := conf.LoadConfigFile(confDir, &c); err != nil {
		return c, err
	}
	c.SetDefaults(confDir)
	return c, nil
}

// SetDefaults fills unset values with the stock tuning.
func (c *AppConfig) SetDefaults(confDir string) {
	if c.Pipeline.Dir == "" {
		c.Pipeline.Dir = confDir
	}
	if c.Pipeline.DefaultRetries == 0 {
		c.Pipeline.DefaultRetries = 3
	}
	if c.Pipeline.RetryDelay <= 0 {
		c.Pipeline.RetryDelay = 60 * time.Second
	}
	if c.Reaper.Interval <= 0 {
		c.Reaper.Interval = time.Hour
	}
	if c.Reaper.TTL <= 0 {
		c.Reaper.TTL = 24 * time.Hour
	}
	c.Queue.SetDefaults()
}
