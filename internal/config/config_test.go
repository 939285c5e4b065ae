package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "borsabot/pkg/logx"
)

const sampleYAML = `telegram:
  token: "123:abc"
  admin_id: 42
  log_chat_id: -100200300
  poll_timeout: "10s"
feed:
  url: "https://example.org/bulletin"
  timeout: "3s"
storage:
  path: "./borsabot.db"
  busy_timeout: "5s"
notify:
  workers: 4
  rate_per_sec: 10
schedule:
  timezone: "Europe/Istanbul"
  ingest_interval: "30m"
  daily_times: ["09:30", "18:00"]
broadcast:
  await_timeout: "10m"
logging:
  level: "info"
  console: true
  file:
    enabled: false
    path: ""
  telegram:
    enabled: true
    min_level: "error"
    rate_per_sec: 1
`

func writeConfig(t *testing.T, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return NewManager(path, logx.Nop())
}

func TestLoadYAML(t *testing.T) {
	m := writeConfig(t, sampleYAML)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.AdminID != 42 {
		t.Errorf("admin_id = %d, want 42", cfg.Telegram.AdminID)
	}
	if cfg.Schedule.Timezone != "Europe/Istanbul" {
		t.Errorf("timezone = %q", cfg.Schedule.Timezone)
	}
	if len(cfg.Schedule.DailyTimes) != 2 {
		t.Errorf("daily_times = %v", cfg.Schedule.DailyTimes)
	}
	if got := m.Get(); got != cfg {
		t.Error("Get must return the committed config")
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	m := writeConfig(t, sampleYAML+"mystery_knob: true\n")

	if _, err := m.Load(); err == nil {
		t.Fatal("unknown top-level field must be rejected")
	}
}

func TestLoadRejectsMissingToken(t *testing.T) {
	body := strings.Replace(sampleYAML, `token: "123:abc"`, `token: ""`, 1)
	m := writeConfig(t, body)

	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestLoadRejectsBadDailyTime(t *testing.T) {
	body := strings.Replace(sampleYAML, `"18:00"`, `"25:00"`, 1)
	m := writeConfig(t, body)

	if _, err := m.Load(); err == nil {
		t.Fatal("out-of-range daily time must be rejected")
	}
}

func TestValidateWebhookNeedsEndpoints(t *testing.T) {
	m := writeConfig(t, sampleYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}

	cfg.Telegram.Webhook.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("webhook without public_url must be rejected")
	}
	cfg.Telegram.Webhook.PublicURL = "https://bot.example.org/hook"
	cfg.Telegram.Webhook.Listen = ":8443"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid webhook rejected: %v", err)
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in     string
		hour   int
		minute int
		ok     bool
	}{
		{"09:30", 9, 30, true},
		{"0:05", 0, 5, true},
		{"23:59", 23, 59, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"noon", 0, 0, false},
	}
	for _, tc := range cases {
		h, min, err := ParseClock(tc.in)
		if tc.ok && (err != nil || h != tc.hour || min != tc.minute) {
			t.Errorf("ParseClock(%q) = (%d,%d,%v)", tc.in, h, min, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseClock(%q) must fail", tc.in)
		}
	}
}

func TestSummarizeChange(t *testing.T) {
	m := writeConfig(t, sampleYAML)
	oldCfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}

	newCfg := *oldCfg
	newCfg.Notify.Workers = 8
	newCfg.Logging.Level = "debug"

	changed, _ := SummarizeChange(oldCfg, &newCfg)
	want := []string{"logging", "notify"}
	if len(changed) != len(want) || changed[0] != want[0] || changed[1] != want[1] {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
}
