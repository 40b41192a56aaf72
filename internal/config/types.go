package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Line     LineConfig     `json:"line"`
	Logging  LoggingConfig  `json:"logging"`

	// Schedule controls the automatic deadline check loop.
	Schedule ScheduleConfig `json:"schedule"`

	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`

	// Data points at the entity snapshot the host application exports.
	Data DataConfig `json:"data"`

	// Trigger enables the AMQP "send now" bridge.
	Trigger *TriggerConfig `json:"trigger,omitempty"`

	Bindings []BindingConfig `json:"bindings,omitempty"`
	Groups   []GroupConfig   `json:"groups,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty to fall back to the OS keyring
	// (service "duebot", key "telegram_token").
	Token       string `json:"token"`
	AdminChatID int64  `json:"admin_chat_id,omitempty"`
}

type LineConfig struct {
	// ChannelToken may be left empty to fall back to the OS keyring
	// (key "line_channel_token").
	ChannelToken string `json:"channel_token"`
	// BaseURL overrides the API host; for tests only.
	BaseURL string `json:"base_url,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Admin   LoggingAdmin `json:"admin"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAdmin forwards warn+ records to the Telegram admin chat.
type LoggingAdmin struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// ScheduleConfig mirrors the persisted ScheduleSettings; config is the
// source of truth on reload and is pushed into the scheduler via Apply.
type ScheduleConfig struct {
	Enabled bool `json:"enabled"`
	// CheckInterval is a Go duration string (e.g. "5m"). Default "5m".
	CheckInterval string `json:"check_interval,omitempty"`
	// CheckSpec is an optional cron expression overriding CheckInterval
	// (e.g. "*/10 8-22 * * *").
	CheckSpec            string `json:"check_spec,omitempty"`
	NotificationHour     int    `json:"notification_hour"`
	WeekendNotifications bool   `json:"weekend_notifications"`
	Timezone             string `json:"timezone,omitempty"`
	// HorizonDays is how far ahead deadlines are collected. Default 3.
	HorizonDays int `json:"horizon_days,omitempty"`
}

type DispatchConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// SendTimeout bounds each adapter call; Go duration string. Default "30s".
	SendTimeout string `json:"send_timeout,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type DataConfig struct {
	// SnapshotPath is a JSON file with {projects, tasks, users}, re-read
	// fresh at the start of every cycle.
	SnapshotPath string `json:"snapshot_path"`
}

type TriggerConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Queue   string `json:"queue,omitempty"`
}

type BindingConfig struct {
	UserID      string `json:"user_id"`
	Platform    string `json:"platform"`
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name,omitempty"`
	Active      bool   `json:"active"`
}

type GroupConfig struct {
	Platform string `json:"platform"`
	TargetID string `json:"target_id"`
	Timezone string `json:"timezone,omitempty"`
}
