package config

import (
	"reflect"
	"sort"
	"strings"

	logx "borsabot/pkg/logx"
)

// SummarizeChange returns the list of changed sections plus structured attrs
// safe to log (never the token).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Telegram.AdminID != newCfg.Telegram.AdminID ||
		oldCfg.Telegram.LogChatID != newCfg.Telegram.LogChatID ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.Webhook != newCfg.Telegram.Webhook ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.admin_set", newCfg.Telegram.AdminID != 0),
			logx.Bool("telegram.webhook", newCfg.Telegram.Webhook.Enabled),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if oldCfg.Feed != newCfg.Feed {
		changed = append(changed, "feed")
		attrs = append(attrs,
			logx.String("feed.url", strings.TrimSpace(newCfg.Feed.URL)),
			logx.String("feed.timeout", strings.TrimSpace(newCfg.Feed.Timeout)),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)))
	}

	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Int("notify.workers", newCfg.Notify.Workers),
			logx.Int("notify.rate_per_sec", newCfg.Notify.RatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
			logx.Int("schedule.daily_count", len(newCfg.Schedule.DailyTimes)),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs, logx.String("broadcast.await_timeout", strings.TrimSpace(newCfg.Broadcast.AwaitTimeout)))
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
