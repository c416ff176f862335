package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mofkobot/internal/transport"
	"mofkobot/pkg/logx"
	"mofkobot/pkg/tgui"
)

type boundCommand struct {
	plugin Plugin
	cmd    Command
}

// Router dispatches owner messages to plugin commands and inline-keyboard
// callbacks to their owning plugin. It is also the Dispatcher used by macros.
type Router struct {
	mu       sync.RWMutex
	log      logx.Logger
	adapter  transport.Adapter
	prefix   string
	ownerIDs []int64

	commands map[string]boundCommand
	watchers []MessageWatcher
	byPlugin map[string]Plugin

	// depth guards against macro recursion (alias expanding to itself).
	maxDepth int
}

type depthKey struct{}

func NewRouter(log logx.Logger, adapter transport.Adapter, prefix string, ownerIDs []int64) *Router {
	if prefix == "" {
		prefix = "."
	}
	return &Router{
		log:      log,
		adapter:  adapter,
		prefix:   prefix,
		ownerIDs: ownerIDs,
		commands: make(map[string]boundCommand),
		byPlugin: make(map[string]Plugin),
		maxDepth: 3,
	}
}

func (r *Router) Prefix() string { return r.prefix }

// Bind registers the plugin's commands and hooks. Called once per plugin
// after Init.
func (r *Router) Bind(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPlugin[p.Name()] = p
	for _, c := range p.Commands() {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handler == nil {
			return fmt.Errorf("plugin %s exports invalid command %q", p.Name(), c.Name)
		}
		if prev, dup := r.commands[name]; dup {
			return fmt.Errorf("command %q claimed by both %s and %s", name, prev.plugin.Name(), p.Name())
		}
		r.commands[name] = boundCommand{plugin: p, cmd: c}
	}
	if w, ok := p.(MessageWatcher); ok {
		r.watchers = append(r.watchers, w)
	}
	return nil
}

// CommandList returns registered command names with descriptions, sorted.
func (r *Router) CommandList() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.commands))
	for name, bc := range r.commands {
		c := bc.cmd
		c.Name = name
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Router) isOwner(userID int64) bool {
	for _, id := range r.ownerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Handle routes a single transport update. Non-owner traffic is dropped
// silently: this is a userbot, not a public bot.
func (r *Router) Handle(ctx context.Context, upd transport.Update) {
	switch upd.Kind {
	case transport.UpdateMessage:
		if upd.Message == nil || !r.isOwner(upd.Message.FromID) {
			return
		}
		r.handleMessage(ctx, upd.Message, upd.Message.Text)
	case transport.UpdateCallback:
		if upd.Callback == nil || !r.isOwner(upd.Callback.FromID) {
			return
		}
		r.handleCallback(ctx, upd.Callback)
	}
}

// DispatchText implements Dispatcher for macro fan-out.
func (r *Router) DispatchText(ctx context.Context, msg *transport.Message, text string) error {
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= r.maxDepth {
		return fmt.Errorf("macro recursion limit (%d) reached", r.maxDepth)
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)
	r.handleMessage(ctx, msg, text)
	return nil
}

func (r *Router) handleMessage(ctx context.Context, msg *transport.Message, text string) {
	// Watchers see the message first and may consume it entirely.
	r.mu.RLock()
	watchers := r.watchers
	r.mu.RUnlock()
	for _, w := range watchers {
		handled, err := w.OnMessage(ctx, msg)
		if err != nil {
			r.log.Warn("message watcher failed", logx.Err(err))
		}
		if handled {
			return
		}
	}

	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, r.prefix) {
		return
	}
	body := text[len(r.prefix):]
	name, args := splitCommand(body)
	if name == "" {
		return
	}

	r.mu.RLock()
	bc, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		if name == "help" {
			r.sendHelp(ctx, msg.ChatID)
		}
		return
	}

	if err := bc.cmd.Handler(ctx, &Call{Msg: msg, Args: args}); err != nil {
		r.log.Warn("command failed",
			logx.String("cmd", name),
			logx.Int64("chat", msg.ChatID),
			logx.Err(err))
		r.replyError(ctx, msg.ChatID, err)
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	pluginName, action, payload := tgui.Split(cb.Data)

	r.mu.RLock()
	p, ok := r.byPlugin[pluginName]
	r.mu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	h, ok := p.(CallbackHandler)
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if err := h.OnCallback(ctx, cb, action, payload); err != nil {
		r.log.Warn("callback failed",
			logx.String("plugin", pluginName),
			logx.String("action", action),
			logx.Err(err))
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Ошибка: "+err.Error())
	}
}

// sendHelp lists every registered command. Built in so it works even with
// no plugins loaded; a plugin may claim "help" and override it.
func (r *Router) sendHelp(ctx context.Context, chatID int64) {
	var b strings.Builder
	b.WriteString("📖 <b>Команды</b>\n")
	for _, c := range r.CommandList() {
		fmt.Fprintf(&b, "<code>%s%s</code>", r.prefix, c.Name)
		if c.Description != "" {
			b.WriteString(" — " + string(tgui.Esc(c.Description)))
		}
		b.WriteString("\n")
	}
	opts := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, b.String(), opts); err != nil {
		r.log.Warn("help reply failed", logx.Err(err))
	}
}

func (r *Router) replyError(ctx context.Context, chatID int64, err error) {
	text := "❌ " + err.Error()
	if _, sendErr := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, nil); sendErr != nil {
		r.log.Warn("error reply failed", logx.Err(sendErr))
	}
}

// splitCommand splits "name rest of args" at the first whitespace run.
func splitCommand(s string) (name, args string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t\n")
	if i < 0 {
		return strings.ToLower(s), ""
	}
	return strings.ToLower(s[:i]), strings.TrimSpace(s[i:])
}
