package config

import (
	"strings"
	"testing"
	"time"
)

func TestGetDefaults(t *testing.T) {
	config := GetDefaults()

	if config.Server.Port != 8085 {
		t.Errorf("Expected default port 8085, got %d", config.Server.Port)
	}
	if config.Redaction.DefaultLevel != "FULL" {
		t.Errorf("Expected fail-closed default level FULL, got %s", config.Redaction.DefaultLevel)
	}
	if config.Redaction.EnvLevels["production"] != "FULL" {
		t.Error("Expected production environment pinned to FULL")
	}
	if config.Audit.FlushInterval != 5*time.Second {
		t.Errorf("Expected 5s flush interval, got %s", config.Audit.FlushInterval)
	}
	if !config.Audit.File.Enabled {
		t.Error("Expected the file sink enabled by default")
	}
	if config.Audit.Database.Enabled {
		t.Error("Expected the database sink disabled by default")
	}
	if config.Audit.File.MaxSize != 10*1024*1024 {
		t.Errorf("Expected 10MB file cap, got %d", config.Audit.File.MaxSize)
	}

	if err := validateConfig(config); err != nil {
		t.Errorf("Defaults must validate: %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port above range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad default level",
			mutate:  func(c *Config) { c.Redaction.DefaultLevel = "SHOUT" },
			wantErr: "invalid default redaction level",
		},
		{
			name: "bad role level",
			mutate: func(c *Config) {
				c.Redaction.RoleLevels = map[string]string{"solicitor": "sometimes"}
			},
			wantErr: "invalid redaction level for role",
		},
		{
			name: "bad environment level",
			mutate: func(c *Config) {
				c.Redaction.EnvLevels = map[string]string{"staging": "maybe"}
			},
			wantErr: "invalid redaction level for environment",
		},
		{
			name:    "zero flush interval",
			mutate:  func(c *Config) { c.Audit.FlushInterval = 0 },
			wantErr: "invalid audit flush interval",
		},
		{
			name:    "zero file size with file sink enabled",
			mutate:  func(c *Config) { c.Audit.File.MaxSize = 0 },
			wantErr: "invalid audit file max size",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := GetDefaults()
			tc.mutate(config)
			err := validateConfig(config)
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected %q in error, got %v", tc.wantErr, err)
			}
		})
	}

	t.Run("disabled file sink skips size check", func(t *testing.T) {
		config := GetDefaults()
		config.Audit.File.Enabled = false
		config.Audit.File.MaxSize = 0
		if err := validateConfig(config); err != nil {
			t.Errorf("Expected no error with the file sink disabled: %v", err)
		}
	})

	t.Run("all levels accepted", func(t *testing.T) {
		for _, level := range []string{"FULL", "PARTIAL", "HASH", "NONE"} {
			config := GetDefaults()
			config.Redaction.DefaultLevel = level
			if err := validateConfig(config); err != nil {
				t.Errorf("Level %s rejected: %v", level, err)
			}
		}
	})
}
