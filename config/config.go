// Package config loads the repository configuration and builds the logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/ps"
)

// FileName is the config file inside the metadata directory.
const FileName = "config.yaml"

type Config struct {
	User    core.Identity `yaml:"user"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

type StorageConfig struct {
	Backend     string   `yaml:"backend"`
	Compression string   `yaml:"compression"`
	CacheSize   int      `yaml:"cache_size"`
	S3          S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		User: core.Identity{Name: "treedb", Email: "treedb@localhost"},
		Storage: StorageConfig{
			Backend:     ps.BackendFile,
			Compression: "zstd",
			CacheSize:   4096,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Normalize replaces empty and unknown values with defaults.
func (c *Config) Normalize() {
	d := Default()

	if c.User.Name == "" {
		c.User.Name = d.User.Name
	}
	if c.User.Email == "" {
		c.User.Email = d.User.Email
	}

	switch c.Storage.Backend {
	case ps.BackendFile, ps.BackendBadger, ps.BackendS3, ps.BackendMemory:
	default:
		c.Storage.Backend = d.Storage.Backend
	}
	if _, err := chunks.ParseCompression(c.Storage.Compression); err != nil || c.Storage.Compression == "" {
		c.Storage.Compression = d.Storage.Compression
	}
	if c.Storage.CacheSize <= 0 {
		c.Storage.CacheSize = d.Storage.CacheSize
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		c.Log.Level = d.Log.Level
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
		c.Log.Format = strings.ToLower(c.Log.Format)
	default:
		c.Log.Format = d.Log.Format
	}
}

// Path returns the config file location of the repository in dir.
func Path(dir string) string {
	return filepath.Join(dir, ps.MetadataDir, FileName)
}

// Load reads a config file over the defaults. A missing file gives the
// defaults; a malformed one fails with core.ErrInvalidArgument.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Default(), fmt.Errorf("%w: %s: %v", core.ErrInvalidArgument, path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

func (c Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// StorageOptions converts the storage section for ps.
func (c Config) StorageOptions() (ps.StorageOptions, error) {
	compression, err := chunks.ParseCompression(c.Storage.Compression)
	if err != nil {
		return ps.StorageOptions{}, err
	}
	s3 := c.Storage.S3
	return ps.StorageOptions{
		Backend:     c.Storage.Backend,
		Compression: compression,
		CacheSize:   c.Storage.CacheSize,
		S3: ps.S3Options{
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			Region:    s3.Region,
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
		},
	}, nil
}

// NewLogger builds a logger writing to w.
func NewLogger(cfg LogConfig, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
