// Package logx provides the bot's structured logging service.
//
// It wraps zerolog behind a small Logger value with Field helpers and a
// Service that owns the sinks: console, optional file, and an optional
// Telegram sink that forwards warning-and-above records to the operator
// log chat (rate limited, never blocking).
package logx
