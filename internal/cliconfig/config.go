package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bft-labs/mwdispatch/pkg/log"
	"github.com/bft-labs/mwdispatch/pkg/worker"
)

// Role selects what a mwcontrol process does.
type Role string

const (
	RoleMaster Role = "master"
	RoleWorker Role = "worker"
	RoleLocal  Role = "local"
)

// Transports understood by the CLI.
const (
	TransportMem    = "mem"
	TransportSocket = "socket"
	TransportMPI    = "mpi"
)

// DefaultListen is the master's default socket address.
const DefaultListen = "127.0.0.1:7650"

// Config holds CLI configuration for mwcontrol.
type Config struct {
	Role      Role
	Transport string

	Listen     string
	MasterAddr string
	Proxy      string
	Host       string

	Workers    int
	Prediffers int
	Solvers    int
	Tag        int

	StrategyFile string
	ClusterFile  string
	ReportDir    string

	LogLevel string
	LogJSON  bool

	DialTimeout   time.Duration
	AcceptTimeout time.Duration
	RetryInitial  time.Duration
	RetryMax      time.Duration
	Concurrency   int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Transport:     TransportSocket,
		Listen:        DefaultListen,
		MasterAddr:    DefaultListen,
		Proxy:         worker.PredifferProxy,
		Workers:       2,
		Prediffers:    2,
		Solvers:       1,
		Tag:           1,
		LogLevel:      "info",
		DialTimeout:   30 * time.Second,
		AcceptTimeout: 2 * time.Minute,
		RetryInitial:  200 * time.Millisecond,
		RetryMax:      5 * time.Second,
	}
}

// LocalListen is the default listen address of a local socket run.
const LocalListen = "127.0.0.1:0"

// ApplyRoleDefaults sets role and replaces defaults that differ per role.
// Call it before applying file and environment values; changed flags are
// left alone.
func (c *Config) ApplyRoleDefaults(role Role, changed map[string]bool) {
	c.Role = role
	if role != RoleLocal {
		return
	}
	if !changed["transport"] {
		c.Transport = TransportMem
	}
	if !changed["listen"] {
		c.Listen = LocalListen
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Host == "" {
		h, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("host is required: %w", err)
		}
		c.Host = h
	}
	if c.RetryInitial <= 0 || c.RetryMax < c.RetryInitial {
		return fmt.Errorf("retry intervals must be positive and retry-max >= retry-initial")
	}

	switch c.Role {
	case RoleMaster:
		if c.Transport != TransportSocket {
			return fmt.Errorf("master supports only the %s transport, got %q", TransportSocket, c.Transport)
		}
		if c.Listen == "" {
			return fmt.Errorf("listen is required")
		}
		if c.Workers <= 0 {
			return fmt.Errorf("workers must be positive")
		}
		if c.StrategyFile == "" {
			return fmt.Errorf("strategy is required")
		}
	case RoleWorker:
		if c.Transport != TransportSocket {
			return fmt.Errorf("worker supports only the %s transport, got %q", TransportSocket, c.Transport)
		}
		if c.MasterAddr == "" {
			return fmt.Errorf("master-addr is required")
		}
		if c.Proxy == "" {
			return fmt.Errorf("proxy is required")
		}
		if c.DialTimeout <= 0 {
			return fmt.Errorf("dial timeout must be positive")
		}
	case RoleLocal:
		switch c.Transport {
		case TransportMem, TransportSocket, TransportMPI:
		default:
			return fmt.Errorf("unknown transport %q", c.Transport)
		}
		if c.Prediffers < 0 || c.Solvers < 0 || c.Prediffers+c.Solvers == 0 {
			return fmt.Errorf("local run needs at least one prediffer or solver")
		}
		if c.Transport == TransportSocket && c.Listen == "" {
			c.Listen = LocalListen
		}
		if c.StrategyFile == "" {
			return fmt.Errorf("strategy is required")
		}
	default:
		return fmt.Errorf("unknown role %q", c.Role)
	}

	if c.Tag < 0 {
		return fmt.Errorf("tag must not be negative")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value from a pointer if not nil and flag not changed.
// Zero is a valid value; Validate rejects what the role cannot use.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
