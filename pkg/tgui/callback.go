package tgui

import (
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes,
// counted over the full "plugin:action:payload" string.
const MaxCallbackDataLen = 64

// Data formats inline callback data as "plugin:action:payload".
// Payload is kept as-is (no escaping).
func Data(plugin, action, payload string) string {
	plugin = strings.TrimSpace(plugin)
	action = strings.TrimSpace(action)
	if payload == "" {
		return plugin + ":" + action
	}
	return plugin + ":" + action + ":" + payload
}

// Split parses "plugin:action:payload" back into its parts. Payload may
// itself contain colons; only the first two separators are significant.
func Split(data string) (plugin, action, payload string) {
	parts := strings.SplitN(data, ":", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	default:
		return data, "", ""
	}
}
