package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Feed      FeedConfig      `json:"feed"`
	Storage   StorageConfig   `json:"storage"`
	Notify    NotifyConfig    `json:"notify"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Logging   LoggingConfig   `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminID is the only user allowed to run announcement commands.
	AdminID int64 `json:"admin_id"`

	// LogChatID receives log records at or above logging.telegram.min_level.
	LogChatID int64 `json:"log_chat_id,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	Webhook WebhookConfig `json:"webhook,omitempty"`
}

// WebhookConfig switches the bot from long polling to webhook delivery.
type WebhookConfig struct {
	Enabled   bool   `json:"enabled"`
	PublicURL string `json:"public_url,omitempty"`
	Listen    string `json:"listen,omitempty"` // e.g. ":8443"
}

type FeedConfig struct {
	// URL is the daily bulletin endpoint; the ingestion date is appended
	// as a /YYYY-MM-DD path segment.
	URL string `json:"url"`
	// Timeout is a Go duration string. Default "3s".
	Timeout string `json:"timeout,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type NotifyConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type ScheduleConfig struct {
	// Timezone is an IANA name, e.g. "Europe/Istanbul". It pins both the
	// daily-dedup boundary and the fan-out times.
	Timezone string `json:"timezone"`

	// IngestInterval is a Go duration string; "0s" disables interval ingestion.
	IngestInterval string `json:"ingest_interval,omitempty"`

	// DailyTimes lists "HH:MM" wall-clock times for the subscriber fan-out.
	DailyTimes []string `json:"daily_times"`
}

type BroadcastConfig struct {
	// AwaitTimeout is how long a started announcement waits for its message.
	AwaitTimeout string `json:"await_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// Validate rejects configs the app cannot start with. A zero admin_id is
// allowed (announcements just stay unusable); the caller decides whether to
// warn about it.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(c.Feed.URL) == "" {
		return fmt.Errorf("feed.url is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Telegram.Webhook.Enabled {
		if strings.TrimSpace(c.Telegram.Webhook.PublicURL) == "" {
			return fmt.Errorf("telegram.webhook.public_url is required when webhook is enabled")
		}
		if strings.TrimSpace(c.Telegram.Webhook.Listen) == "" {
			return fmt.Errorf("telegram.webhook.listen is required when webhook is enabled")
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("feed.timeout", c.Feed.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("schedule.ingest_interval", c.Schedule.IngestInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("broadcast.await_timeout", c.Broadcast.AwaitTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	for _, at := range c.Schedule.DailyTimes {
		if _, _, err := ParseClock(at); err != nil {
			return fmt.Errorf("schedule.daily_times: %w", err)
		}
	}
	return nil
}

// Location resolves schedule.timezone, defaulting to the system zone.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Schedule.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

// ParseClock parses an "HH:MM" wall-clock string.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
