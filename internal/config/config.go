// Package config loads and validates the daemon's static configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	DownloadDir            string `mapstructure:"download_dir" yaml:"download_dir"`
	TempDir                string `mapstructure:"temp_dir" yaml:"temp_dir"`
	MaxConcurrentDownloads int    `mapstructure:"max_concurrent_downloads" yaml:"max_concurrent_downloads"`
	SpeedLimitBps          int64  `mapstructure:"speed_limit_bps" yaml:"speed_limit_bps"`
	DefaultPostProcess     string `mapstructure:"default_post_process" yaml:"default_post_process"`
	DeleteSamples          bool   `mapstructure:"delete_samples" yaml:"delete_samples"`
	FileCollision          string `mapstructure:"file_collision" yaml:"file_collision"`
	TryEmptyPassword       bool   `mapstructure:"try_empty_password" yaml:"try_empty_password"`
	PasswordFile           string `mapstructure:"password_file" yaml:"password_file"`

	UnrarPath    string `mapstructure:"unrar_path" yaml:"unrar_path"`
	SevenZipPath string `mapstructure:"sevenzip_path" yaml:"sevenzip_path"`
	Par2Path     string `mapstructure:"par2_path" yaml:"par2_path"`
	SearchPath   bool   `mapstructure:"search_path" yaml:"search_path"`

	Retry         RetryConfig         `mapstructure:"retry" yaml:"retry"`
	Extraction    ExtractionConfig    `mapstructure:"extraction" yaml:"extraction"`
	Deobfuscation DeobfuscationConfig `mapstructure:"deobfuscation" yaml:"deobfuscation"`
	Duplicate     DuplicateConfig     `mapstructure:"duplicate" yaml:"duplicate"`
	DiskSpace     DiskSpaceConfig     `mapstructure:"disk_space" yaml:"disk_space"`
	Cleanup       CleanupConfig       `mapstructure:"cleanup" yaml:"cleanup"`
	DirectUnpack  DirectUnpackConfig  `mapstructure:"direct_unpack" yaml:"direct_unpack"`

	Servers      []ServerConfig `mapstructure:"servers" yaml:"servers"`
	WatchFolders []WatchFolder  `mapstructure:"watch_folders" yaml:"watch_folders"`
	RSSFeeds     []RSSFeed      `mapstructure:"rss_feeds" yaml:"rss_feeds"`
	Webhooks     []Webhook      `mapstructure:"webhooks" yaml:"webhooks"`
	Scripts      []Script       `mapstructure:"scripts" yaml:"scripts"`

	Persistence PersistenceConfig `mapstructure:"persistence" yaml:"persistence"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Port        int               `mapstructure:"port" yaml:"port"`
}

type RetryConfig struct {
	MaxAttempts       int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialDelayMs    int     `mapstructure:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	Jitter            bool    `mapstructure:"jitter" yaml:"jitter"`
}

type ExtractionConfig struct {
	ArchiveExtensions []string `mapstructure:"archive_extensions" yaml:"archive_extensions"`
	MaxRecursionDepth int      `mapstructure:"max_recursion_depth" yaml:"max_recursion_depth"`
}

type DeobfuscationConfig struct {
	Enabled          bool    `mapstructure:"enabled" yaml:"enabled"`
	MinLength        int     `mapstructure:"min_length" yaml:"min_length"`
	EntropyThreshold float64 `mapstructure:"entropy_threshold" yaml:"entropy_threshold"`
}

type DuplicateConfig struct {
	Methods []string `mapstructure:"methods" yaml:"methods"`
	Action  string   `mapstructure:"action" yaml:"action"`
}

type DiskSpaceConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	SizeMultiplier float64 `mapstructure:"size_multiplier" yaml:"size_multiplier"`
	MinFreeSpace   int64   `mapstructure:"min_free_space" yaml:"min_free_space"`
}

type CleanupConfig struct {
	TargetExtensions  []string `mapstructure:"target_extensions" yaml:"target_extensions"`
	ArchiveExtensions []string `mapstructure:"archive_extensions" yaml:"archive_extensions"`
	SampleFolderNames []string `mapstructure:"sample_folder_names" yaml:"sample_folder_names"`
}

type DirectUnpackConfig struct {
	Enabled        bool `mapstructure:"enabled" yaml:"enabled"`
	DirectRename   bool `mapstructure:"direct_rename" yaml:"direct_rename"`
	PollIntervalMs int  `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
}

type ServerConfig struct {
	ID            string `mapstructure:"id" yaml:"id"`
	Host          string `mapstructure:"host" yaml:"host"`
	Port          int    `mapstructure:"port" yaml:"port"`
	Username      string `mapstructure:"username" yaml:"username"`
	Password      string `mapstructure:"password" yaml:"password"`
	TLS           bool   `mapstructure:"tls" yaml:"tls"`
	Connections   int    `mapstructure:"connections" yaml:"connections"`
	PipelineDepth int    `mapstructure:"pipeline_depth" yaml:"pipeline_depth"`
	Priority      int    `mapstructure:"priority" yaml:"priority"`
}

type WatchFolder struct {
	Path        string `mapstructure:"path" yaml:"path"`
	Category    string `mapstructure:"category" yaml:"category"`
	PollSeconds int    `mapstructure:"poll_seconds" yaml:"poll_seconds"`
}

type RSSFeed struct {
	ID          string `mapstructure:"id" yaml:"id"`
	URL         string `mapstructure:"url" yaml:"url"`
	Category    string `mapstructure:"category" yaml:"category"`
	PollSeconds int    `mapstructure:"poll_seconds" yaml:"poll_seconds"`
}

type Webhook struct {
	URL    string   `mapstructure:"url" yaml:"url"`
	Events []string `mapstructure:"events" yaml:"events"`
}

type Script struct {
	Path   string   `mapstructure:"path" yaml:"path"`
	Events []string `mapstructure:"events" yaml:"events"`
}

type ScheduleRuleConfig struct {
	Name      string   `mapstructure:"name" yaml:"name"`
	Days      []string `mapstructure:"days" yaml:"days"`
	StartTime string   `mapstructure:"start_time" yaml:"start_time"`
	EndTime   string   `mapstructure:"end_time" yaml:"end_time"`
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Action    string   `mapstructure:"action" yaml:"action"`
	SpeedBps  int64    `mapstructure:"speed_bps" yaml:"speed_bps"`
}

type CategoryConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Destination string `mapstructure:"destination" yaml:"destination"`
	PostProcess string `mapstructure:"post_process" yaml:"post_process"`
}

type PersistenceConfig struct {
	DatabasePath  string               `mapstructure:"database_path" yaml:"database_path"`
	ScheduleRules []ScheduleRuleConfig `mapstructure:"schedule_rules" yaml:"schedule_rules"`
	Categories    []CategoryConfig     `mapstructure:"categories" yaml:"categories"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	// 1. Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// If they are using the default "config.yaml" and it's missing,
		// check if the example exists to give a better error message.
		if path == "config.yaml" {
			if _, errEx := os.Stat("config.yaml.example"); errEx == nil {
				return nil, fmt.Errorf("configuration file 'config.yaml' not found\n\n" +
					"To fix this, run:\n" +
					"  cp config.yaml.example config.yaml\n" +
					"Then edit it with your Usenet credentials.")
			}
		}
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	v := viper.New()
	applyDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	// Support Environment Variables
	v.SetEnvPrefix("GONZBD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("download_dir", "./downloads")
	v.SetDefault("temp_dir", "./downloads/.incomplete")
	v.SetDefault("max_concurrent_downloads", 1)
	v.SetDefault("default_post_process", "unpack_and_cleanup")
	v.SetDefault("file_collision", "rename")
	v.SetDefault("search_path", true)

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_delay_ms", 500)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.jitter", true)

	v.SetDefault("extraction.archive_extensions", []string{".rar", ".zip", ".7z"})
	v.SetDefault("extraction.max_recursion_depth", 2)

	v.SetDefault("deobfuscation.enabled", true)
	v.SetDefault("deobfuscation.min_length", 8)
	v.SetDefault("deobfuscation.entropy_threshold", 3.5)

	v.SetDefault("duplicate.methods", []string{"nzb_hash", "nzb_name", "job_name"})
	v.SetDefault("duplicate.action", "block")

	v.SetDefault("disk_space.enabled", true)
	v.SetDefault("disk_space.size_multiplier", 1.1)
	v.SetDefault("disk_space.min_free_space", int64(1<<30))

	v.SetDefault("cleanup.target_extensions", []string{".nfo", ".sfv", ".par2", ".txt"})
	v.SetDefault("cleanup.archive_extensions", []string{".rar", ".r00", ".zip", ".7z"})
	v.SetDefault("cleanup.sample_folder_names", []string{"sample", "Sample", "SAMPLE"})

	v.SetDefault("direct_unpack.enabled", true)
	v.SetDefault("direct_unpack.direct_rename", true)
	v.SetDefault("direct_unpack.poll_interval_ms", 200)

	v.SetDefault("persistence.database_path", "gonzbd.db")

	v.SetDefault("log.path", "gonzbd.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)

	v.SetDefault("port", 8090)
}

var validCollisions = map[string]bool{"rename": true, "overwrite": true, "skip": true}
var validPostProcess = map[string]bool{
	"none": true, "verify": true, "repair": true, "unpack": true, "unpack_and_cleanup": true,
}
var validDuplicateActions = map[string]bool{"block": true, "warn": true, "allow": true}

func (c *Config) validate() error {
	if len(c.Servers) == 0 {
		return errors.New("at least one server must be configured")
	}

	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.ID == "" {
			return fmt.Errorf("server[%d] requires a unique ID", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate server id %q", s.ID)
		}
		seen[s.ID] = true

		if s.Host == "" {
			return fmt.Errorf("server %s: host is required", s.ID)
		}
		if s.Port == 0 {
			return fmt.Errorf("server %s: port is required", s.ID)
		}
		if s.Connections <= 0 {
			c.Servers[i].Connections = 10
		}
		if s.PipelineDepth <= 0 {
			c.Servers[i].PipelineDepth = 1
		}
		if s.Priority == 0 {
			c.Servers[i].Priority = 1
		}
	}

	if !validCollisions[c.FileCollision] {
		return fmt.Errorf("invalid file_collision: %s", c.FileCollision)
	}
	if c.DefaultPostProcess != "" && !validPostProcess[c.DefaultPostProcess] {
		return fmt.Errorf("invalid default_post_process: %s", c.DefaultPostProcess)
	}
	if !validDuplicateActions[c.Duplicate.Action] {
		return fmt.Errorf("invalid duplicate.action: %s", c.Duplicate.Action)
	}

	for _, cat := range c.Persistence.Categories {
		if cat.PostProcess != "" && !validPostProcess[cat.PostProcess] {
			return fmt.Errorf("category %s: invalid post_process: %s", cat.Name, cat.PostProcess)
		}
	}

	c.Cleanup.TargetExtensions = dedupLower(c.Cleanup.TargetExtensions)
	c.Cleanup.ArchiveExtensions = dedupLower(c.Cleanup.ArchiveExtensions)

	if c.DownloadDir == "" {
		c.DownloadDir = "./downloads"
	}
	if c.TempDir == "" {
		c.TempDir = "./downloads/.incomplete"
	}

	return nil
}

// dedupLower lowercases and deduplicates a list of extensions so
// cleanup.target_extensions matching is case-insensitive regardless of how
// the operator capitalized the config entries.
func dedupLower(exts []string) []string {
	set := make(map[string]struct{}, len(exts))
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		low := strings.ToLower(e)
		if _, ok := set[low]; ok {
			continue
		}
		set[low] = struct{}{}
		out = append(out, low)
	}
	return out
}
