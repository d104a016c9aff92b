package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (MWCONTROL_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("transport", os.Getenv("MWCONTROL_TRANSPORT"), &cfg.Transport)
	s.setString("listen", os.Getenv("MWCONTROL_LISTEN"), &cfg.Listen)
	s.setString("master-addr", os.Getenv("MWCONTROL_MASTER_ADDR"), &cfg.MasterAddr)
	s.setString("proxy", os.Getenv("MWCONTROL_PROXY"), &cfg.Proxy)
	s.setString("host", os.Getenv("MWCONTROL_HOST"), &cfg.Host)
	s.setString("strategy", os.Getenv("MWCONTROL_STRATEGY"), &cfg.StrategyFile)
	s.setString("cluster", os.Getenv("MWCONTROL_CLUSTER"), &cfg.ClusterFile)
	s.setString("report-dir", os.Getenv("MWCONTROL_REPORT_DIR"), &cfg.ReportDir)
	s.setString("log-level", os.Getenv("MWCONTROL_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("dial-timeout", os.Getenv("MWCONTROL_DIAL_TIMEOUT"), &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("accept-timeout", os.Getenv("MWCONTROL_ACCEPT_TIMEOUT"), &cfg.AcceptTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-initial", os.Getenv("MWCONTROL_RETRY_INITIAL"), &cfg.RetryInitial); err != nil {
		return err
	}
	if err := s.setDuration("retry-max", os.Getenv("MWCONTROL_RETRY_MAX"), &cfg.RetryMax); err != nil {
		return err
	}

	if err := s.setIntFromString("workers", os.Getenv("MWCONTROL_WORKERS"), &cfg.Workers); err != nil {
		return err
	}
	if err := s.setIntFromString("prediffers", os.Getenv("MWCONTROL_PREDIFFERS"), &cfg.Prediffers); err != nil {
		return err
	}
	if err := s.setIntFromString("solvers", os.Getenv("MWCONTROL_SOLVERS"), &cfg.Solvers); err != nil {
		return err
	}
	if err := s.setIntFromString("tag", os.Getenv("MWCONTROL_TAG"), &cfg.Tag); err != nil {
		return err
	}
	if err := s.setIntFromString("concurrency", os.Getenv("MWCONTROL_CONCURRENCY"), &cfg.Concurrency); err != nil {
		return err
	}

	s.setBoolFromString("log-json", os.Getenv("MWCONTROL_LOG_JSON"), &cfg.LogJSON)

	return nil
}
