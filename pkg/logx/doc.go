// Package logx configures mofkobot's structured logging.
//
// It is a thin wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp)
//   - File output JSON-structured
//   - An optional Telegram sink (min-level + rate limiting)
package logx
