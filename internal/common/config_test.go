package common

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadFromFilesDefaults(t *testing.T) {
	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles() error = %v", err)
	}

	if config.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", config.Server.Port)
	}
	if !config.Roles.API || !config.Roles.Scheduler || !config.Roles.Workers {
		t.Errorf("Roles = %+v, want all enabled", config.Roles)
	}
	if config.Scheduler.Schedule != "0 */6 * * *" {
		t.Errorf("Scheduler.Schedule = %q, want default six-hour cadence", config.Scheduler.Schedule)
	}
	if config.Fetcher.DemoMode {
		t.Error("Fetcher.DemoMode = true, want false by default")
	}
	if config.Queue.MaxAttempts != 3 {
		t.Errorf("Queue.MaxAttempts = %d, want 3", config.Queue.MaxAttempts)
	}
}

func TestLoadFromFilesLaterFileWins(t *testing.T) {
	base := writeConfigFile(t, "base.toml", `
[server]
port = 9000
host = "0.0.0.0"

[scheduler]
schedule = "0 * * * *"
`)
	override := writeConfigFile(t, "override.toml", `
[server]
port = 9100
`)

	config, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatalf("LoadFromFiles() error = %v", err)
	}

	if config.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100 from later file", config.Server.Port)
	}
	if config.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want base file value to survive", config.Server.Host)
	}
	if config.Scheduler.Schedule != "0 * * * *" {
		t.Errorf("Scheduler.Schedule = %q, want base file value", config.Scheduler.Schedule)
	}
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	if _, err := LoadFromFiles("does-not-exist.toml"); err == nil {
		t.Fatal("LoadFromFiles() with missing file expected error, got nil")
	}
}

func TestEnvOverridesBeatFiles(t *testing.T) {
	path := writeConfigFile(t, "fides.toml", `
[server]
port = 9000

[roles]
workers = true
`)

	t.Setenv("FIDES_SERVER_PORT", "9200")
	t.Setenv("FIDES_ROLES_WORKERS", "false")
	t.Setenv("FIDES_ALERTS_DEFAULT_RECIPIENT", "security@acme.example")

	config, err := LoadFromFiles(path)
	if err != nil {
		t.Fatalf("LoadFromFiles() error = %v", err)
	}

	if config.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want env override 9200", config.Server.Port)
	}
	if config.Roles.Workers {
		t.Error("Roles.Workers = true, want env override false")
	}
	if config.Alerts.DefaultRecipient != "security@acme.example" {
		t.Errorf("Alerts.DefaultRecipient = %q, want env override", config.Alerts.DefaultRecipient)
	}
}

func TestCrawlScheduleEnvOverride(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{
			name:     "unprefixed form",
			env:      map[string]string{"CRAWL_SCHEDULE": "*/10 * * * *"},
			expected: "*/10 * * * *",
		},
		{
			name:     "prefixed form",
			env:      map[string]string{"FIDES_SCHEDULER_SCHEDULE": "0 */2 * * *"},
			expected: "0 */2 * * *",
		},
		{
			name: "unprefixed wins over prefixed",
			env: map[string]string{
				"FIDES_SCHEDULER_SCHEDULE": "0 */2 * * *",
				"CRAWL_SCHEDULE":           "*/15 * * * *",
			},
			expected: "*/15 * * * *",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			config, err := LoadFromFiles()
			if err != nil {
				t.Fatalf("LoadFromFiles() error = %v", err)
			}
			if config.Scheduler.Schedule != tt.expected {
				t.Errorf("Scheduler.Schedule = %q, want %q", config.Scheduler.Schedule, tt.expected)
			}
		})
	}
}

func TestDemoModeEnvOverride(t *testing.T) {
	t.Setenv("DEMO_MODE", "true")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles() error = %v", err)
	}
	if !config.Fetcher.DemoMode {
		t.Error("Fetcher.DemoMode = false, want DEMO_MODE env to enable it")
	}

	// The unprefixed form wins over the prefixed form.
	t.Setenv("FIDES_FETCHER_DEMO_MODE", "true")
	t.Setenv("DEMO_MODE", "false")

	config, err = LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles() error = %v", err)
	}
	if config.Fetcher.DemoMode {
		t.Error("Fetcher.DemoMode = true, want DEMO_MODE=false to win over prefixed form")
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"0 */6 * * *", false},
		{"*/10 * * * *", false},
		{"*/5 * * * *", false},
		{"* * * * *", true},    // every minute is below the floor
		{"*/2 * * * *", true},  // two minutes is below the floor
		{"not a cron", true},
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateSchedule(tt.schedule)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSchedule(%q) error = %v, wantErr %v", tt.schedule, err, tt.wantErr)
		}
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Setenv("FIDES_SERVER_PORT", "9200")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles() error = %v", err)
	}

	ApplyFlagOverrides(config, 9300, "127.0.0.1")

	if config.Server.Port != 9300 {
		t.Errorf("Server.Port = %d, want flag override 9300 to beat env", config.Server.Port)
	}
	if config.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want flag override", config.Server.Host)
	}

	// Zero values leave the config untouched.
	ApplyFlagOverrides(config, 0, "")
	if config.Server.Port != 9300 || config.Server.Host != "127.0.0.1" {
		t.Error("zero-valued flags must not override configuration")
	}
}
