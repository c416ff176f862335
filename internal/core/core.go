// Package core hosts the plugin runtime: plugin lifecycle, command routing
// over the transport adapter and the application bootstrap.
package core

import (
	"bytes"
	"context"
	"encoding/json"

	"mofkobot/internal/services/jobs"
	"mofkobot/internal/storage"
	"mofkobot/internal/transport"
	"mofkobot/pkg/logx"
)

// Plugin is implemented by every feature module. Lifecycle is
// Init -> Start -> (updates flow) -> Stop.
type Plugin interface {
	Name() string
	Init(ctx context.Context, deps Deps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []Command
}

// CallbackHandler is implemented by plugins that draw inline keyboards.
// Data is routed by the "plugin:" prefix of callback_data.
type CallbackHandler interface {
	OnCallback(ctx context.Context, cb *transport.Callback, action, payload string) error
}

// MessageWatcher is implemented by plugins that want to see every owner
// message before command routing. Returning handled=true stops routing.
type MessageWatcher interface {
	OnMessage(ctx context.Context, msg *transport.Message) (handled bool, err error)
}

// Dispatcher re-injects synthesized command text into the router as if the
// owner had typed it. Used by command macros.
type Dispatcher interface {
	DispatchText(ctx context.Context, msg *transport.Message, text string) error
}

// Deps is passed to every plugin at Init time.
type Deps struct {
	Log     logx.Logger
	Adapter transport.Adapter
	Storage storage.Store // nil when persistence is disabled
	Jobs    *jobs.Service
	Disp    Dispatcher

	// Raw carries the plugin's own "config" block from the config file,
	// or nil when absent.
	Raw json.RawMessage

	Timezone string
	// Prefix is the command prefix, "." by default.
	Prefix string
}

// Command is a single dot-command exposed by a plugin.
type Command struct {
	Name        string // without the prefix, e.g. "regmes"
	Description string
	Handler     func(ctx context.Context, call *Call) error
}

// Call is the per-invocation context handed to command handlers.
type Call struct {
	Msg *transport.Message
	// Args is the raw argument string after the command name, untrimmed
	// splitting is left to the handler (commands differ in quoting rules).
	Args string
}

// DecodeConfig strictly unmarshals the plugin's raw config block into dst.
// A nil block leaves dst untouched so defaults survive.
func (d Deps) DecodeConfig(dst any) error {
	if len(d.Raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(d.Raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
