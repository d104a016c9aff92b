package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"MWCONTROL_TRANSPORT":      "mem",
				"MWCONTROL_LISTEN":         ":9000",
				"MWCONTROL_MASTER_ADDR":    "master:9000",
				"MWCONTROL_PROXY":          "Solver",
				"MWCONTROL_HOST":           "env-node",
				"MWCONTROL_STRATEGY":       "/s.yaml",
				"MWCONTROL_CLUSTER":        "/c.toml",
				"MWCONTROL_REPORT_DIR":     "/reports",
				"MWCONTROL_LOG_LEVEL":      "debug",
				"MWCONTROL_LOG_JSON":       "1",
				"MWCONTROL_DIAL_TIMEOUT":   "3s",
				"MWCONTROL_ACCEPT_TIMEOUT": "10m",
				"MWCONTROL_RETRY_INITIAL":  "1s",
				"MWCONTROL_RETRY_MAX":      "9s",
				"MWCONTROL_WORKERS":        "16",
				"MWCONTROL_PREDIFFERS":     "12",
				"MWCONTROL_SOLVERS":        "4",
				"MWCONTROL_TAG":            "7",
				"MWCONTROL_CONCURRENCY":    "2",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				Transport:     "mem",
				Listen:        ":9000",
				MasterAddr:    "master:9000",
				Proxy:         "Solver",
				Host:          "env-node",
				StrategyFile:  "/s.yaml",
				ClusterFile:   "/c.toml",
				ReportDir:     "/reports",
				LogLevel:      "debug",
				LogJSON:       true,
				DialTimeout:   3 * time.Second,
				AcceptTimeout: 10 * time.Minute,
				RetryInitial:  time.Second,
				RetryMax:      9 * time.Second,
				Workers:       16,
				Prediffers:    12,
				Solvers:       4,
				Tag:           7,
				Concurrency:   2,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"MWCONTROL_HOST":    "env-node",
				"MWCONTROL_WORKERS": "16",
			},
			changed:  map[string]bool{"host": true},
			initial:  Config{Host: "flag-node"},
			expected: Config{Host: "flag-node", Workers: 16},
		},
		{
			name: "applies zero counts",
			envVars: map[string]string{
				"MWCONTROL_SOLVERS":     "0",
				"MWCONTROL_TAG":         "0",
				"MWCONTROL_CONCURRENCY": "0",
			},
			changed:  map[string]bool{},
			initial:  Config{Solvers: 1, Tag: 1, Concurrency: 4},
			expected: Config{},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"MWCONTROL_DIAL_TIMEOUT": "not-a-duration"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"MWCONTROL_WORKERS": "many"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:     "handles bool 'false' as false",
			envVars:  map[string]string{"MWCONTROL_LOG_JSON": "false"},
			changed:  map[string]bool{},
			initial:  Config{LogJSON: true},
			expected: Config{LogJSON: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyEnvConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyEnvConfig() unexpected error: %v", err)
				return
			}
			if !tt.wantErr && cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}
