package config

import (
	"fmt"
	"strings"
	"time"

	"duebot/internal/transport"
)

// Validate rejects configs that would misbehave at runtime. Called on
// initial Load and on every Watch reload before commit.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Schedule.NotificationHour < 0 || cfg.Schedule.NotificationHour > 23 {
		return fmt.Errorf("schedule.notification_hour: must be 0..23, got %d", cfg.Schedule.NotificationHour)
	}
	if cfg.Schedule.HorizonDays < 0 {
		return fmt.Errorf("schedule.horizon_days: must be >= 0")
	}
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("schedule.check_interval", cfg.Schedule.CheckInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("dispatch.send_timeout", cfg.Dispatch.SendTimeout); err != nil {
		return err
	}
	if cfg.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	for i, b := range cfg.Bindings {
		if !transport.Platform(b.Platform).Valid() {
			return fmt.Errorf("bindings[%d].platform: unknown platform %q", i, b.Platform)
		}
		if strings.TrimSpace(b.ExternalID) == "" {
			return fmt.Errorf("bindings[%d].external_id: required", i)
		}
	}
	for i, g := range cfg.Groups {
		if !transport.Platform(g.Platform).Valid() {
			return fmt.Errorf("groups[%d].platform: unknown platform %q", i, g.Platform)
		}
		if strings.TrimSpace(g.TargetID) == "" {
			return fmt.Errorf("groups[%d].target_id: required", i)
		}
	}
	if cfg.Trigger != nil && cfg.Trigger.Enabled && strings.TrimSpace(cfg.Trigger.URL) == "" {
		return fmt.Errorf("trigger.url: required when trigger is enabled")
	}
	// Without a snapshot source every cycle would fail at fetch time;
	// reject the config up front instead.
	if strings.TrimSpace(cfg.Data.SnapshotPath) == "" {
		return fmt.Errorf("data.snapshot_path: required")
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
