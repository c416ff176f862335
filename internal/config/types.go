package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Telegram Telegram `json:"telegram"`
	Logging  Logging  `json:"logging"`
	Storage  *Storage `json:"storage,omitempty"`

	// Jobs controls the generic cron/interval job runner used by plugins.
	Jobs Jobs `json:"jobs"`

	Plugins map[string]PluginRaw `json:"plugins"`
}

type Telegram struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChatID receives warn/error log lines when logging.telegram is enabled.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// CommandPrefix is the leading character of user commands. Default ".".
	CommandPrefix string `json:"command_prefix,omitempty"`
}

type Logging struct {
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

// Storage controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./mofkobot_store.json" }
type Storage struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type Jobs struct {
	Enabled bool `json:"enabled"`
	Workers int  `json:"workers,omitempty"`
	// Timezone is an IANA TZ name, e.g. "Europe/Moscow".
	Timezone string `json:"timezone,omitempty"`
}

type PluginRaw struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON disallows unknown fields so removed legacy keys are caught
// early during config reload.
func (p *PluginRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled bool            `json:"enabled"`
		Config  json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = PluginRaw{Enabled: t.Enabled, Config: t.Config}
	return nil
}
