package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations to make TOML and
// YAML friendly. Pointers tell an absent key from an explicit zero.
type FileConfig struct {
	Transport     string `toml:"transport" yaml:"transport"`
	Listen        string `toml:"listen" yaml:"listen"`
	MasterAddr    string `toml:"master_addr" yaml:"master_addr"`
	Proxy         string `toml:"proxy" yaml:"proxy"`
	Host          string `toml:"host" yaml:"host"`
	Workers       *int   `toml:"workers" yaml:"workers"`
	Prediffers    *int   `toml:"prediffers" yaml:"prediffers"`
	Solvers       *int   `toml:"solvers" yaml:"solvers"`
	Tag           *int   `toml:"tag" yaml:"tag"`
	StrategyFile  string `toml:"strategy" yaml:"strategy"`
	ClusterFile   string `toml:"cluster" yaml:"cluster"`
	ReportDir     string `toml:"report_dir" yaml:"report_dir"`
	LogLevel      string `toml:"log_level" yaml:"log_level"`
	LogJSON       *bool  `toml:"log_json" yaml:"log_json"`
	DialTimeout   string `toml:"dial_timeout" yaml:"dial_timeout"`
	AcceptTimeout string `toml:"accept_timeout" yaml:"accept_timeout"`
	RetryInitial  string `toml:"retry_initial" yaml:"retry_initial"`
	RetryMax      string `toml:"retry_max" yaml:"retry_max"`
	Concurrency   *int   `toml:"concurrency" yaml:"concurrency"`
}

// LoadFileConfig reads and parses a config file. Files ending in .yaml or
// .yml are YAML, everything else is TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.mwcontrol/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".mwcontrol", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("transport", fc.Transport, &cfg.Transport)
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("master-addr", fc.MasterAddr, &cfg.MasterAddr)
	s.setString("proxy", fc.Proxy, &cfg.Proxy)
	s.setString("host", fc.Host, &cfg.Host)
	s.setString("strategy", fc.StrategyFile, &cfg.StrategyFile)
	s.setString("cluster", fc.ClusterFile, &cfg.ClusterFile)
	s.setString("report-dir", fc.ReportDir, &cfg.ReportDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("dial-timeout", fc.DialTimeout, &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("accept-timeout", fc.AcceptTimeout, &cfg.AcceptTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-initial", fc.RetryInitial, &cfg.RetryInitial); err != nil {
		return err
	}
	if err := s.setDuration("retry-max", fc.RetryMax, &cfg.RetryMax); err != nil {
		return err
	}

	s.setInt("workers", fc.Workers, &cfg.Workers)
	s.setInt("prediffers", fc.Prediffers, &cfg.Prediffers)
	s.setInt("solvers", fc.Solvers, &cfg.Solvers)
	s.setInt("tag", fc.Tag, &cfg.Tag)
	s.setInt("concurrency", fc.Concurrency, &cfg.Concurrency)

	s.setBool("log-json", fc.LogJSON, &cfg.LogJSON)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
