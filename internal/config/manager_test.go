package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return NewManager(path)
}

const sampleYAML = `
telegram:
  token: "123:abc"
  admin_chat_id: 42
line:
  channel_token: "line-tok"
logging:
  level: debug
  console: true
schedule:
  enabled: true
  check_interval: "10m"
  notification_hour: 9
  weekend_notifications: false
  timezone: "Asia/Taipei"
  horizon_days: 3
storage:
  driver: file
  path: ./store.json
data:
  snapshot_path: ./snapshot.json
bindings:
  - user_id: u1
    platform: telegram
    external_id: "100"
    active: true
groups:
  - platform: telegram
    target_id: "-900"
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", sampleYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.AdminChatID != 42 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if !cfg.Schedule.Enabled || cfg.Schedule.NotificationHour != 9 || cfg.Schedule.Timezone != "Asia/Taipei" {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if len(cfg.Bindings) != 1 || cfg.Bindings[0].ExternalID != "100" {
		t.Fatalf("bindings = %+v", cfg.Bindings)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{
		"telegram": {"token": "t"},
		"line": {"channel_token": ""},
		"logging": {"level": "info", "console": false, "file": {"enabled": false, "path": ""}, "admin": {"enabled": false}},
		"schedule": {"enabled": false, "notification_hour": 0, "weekend_notifications": false},
		"data": {"snapshot_path": "./snap.json"}
	}`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "t" {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", "schedulle:\n  enabled: true\n")
	if _, err := m.Parse(); err == nil {
		t.Fatal("typoed key must be rejected")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "hour too large",
			mutate:  func(c *Config) { c.Schedule.NotificationHour = 24 },
			wantErr: "notification_hour",
		},
		{
			name:    "negative horizon",
			mutate:  func(c *Config) { c.Schedule.HorizonDays = -1 },
			wantErr: "horizon_days",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Schedule.Timezone = "Not/AZone" },
			wantErr: "timezone",
		},
		{
			name:    "bad interval",
			mutate:  func(c *Config) { c.Schedule.CheckInterval = "soon" },
			wantErr: "check_interval",
		},
		{
			name:    "negative send timeout",
			mutate:  func(c *Config) { c.Dispatch.SendTimeout = "-5s" },
			wantErr: "send_timeout",
		},
		{
			name: "unknown binding platform",
			mutate: func(c *Config) {
				c.Bindings = []BindingConfig{{UserID: "u", Platform: "pager", ExternalID: "1"}}
			},
			wantErr: "platform",
		},
		{
			name: "binding without external id",
			mutate: func(c *Config) {
				c.Bindings = []BindingConfig{{UserID: "u", Platform: "telegram"}}
			},
			wantErr: "external_id",
		},
		{
			name: "group without target",
			mutate: func(c *Config) {
				c.Groups = []GroupConfig{{Platform: "line"}}
			},
			wantErr: "target_id",
		},
		{
			name: "trigger enabled without url",
			mutate: func(c *Config) {
				c.Trigger = &TriggerConfig{Enabled: true}
			},
			wantErr: "trigger.url",
		},
		{
			name:    "missing snapshot path",
			mutate:  func(c *Config) {},
			wantErr: "data.snapshot_path",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{}
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}

	minimal := &Config{Data: DataConfig{SnapshotPath: "./snapshot.json"}}
	if err := Validate(minimal); err != nil {
		t.Fatalf("minimal config should validate: %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", 5); err != nil || d != 5 {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "2s", 5); err != nil || d.Seconds() != 2 {
		t.Fatalf("set = %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "bogus", 5); err == nil {
		t.Fatal("bogus duration must error")
	}
}

func TestSubscribeDropsOldestWhenSlow(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{Schedule: ScheduleConfig{Enabled: true}}
	m.publish(first)
	m.publish(second) // buffer full: first is dropped

	got := <-ch
	if got != second {
		t.Fatal("slow subscriber must see the newest config")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second delivery: %+v", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("unsubscribed channel must be closed")
	}
	// Publishing afterwards must not panic.
	m.publish(&Config{})
}
