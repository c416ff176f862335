// Package aliaspro implements command macros: one trigger word fans out into
// several commands dispatched in sequence.
package aliaspro

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mofkobot/internal/core"
	"mofkobot/internal/storage"
	"mofkobot/internal/transport"
	"mofkobot/pkg/logx"
	"mofkobot/pkg/tgui"
)

const (
	pluginName = "aliaspro"
	storeNS    = "aliaspro"
	storeKey   = "aliases"
)

// Alias maps one trigger to a list of commands plus an optional fixed value
// that is prepended to the trigger's trailing query.
type Alias struct {
	Commands []string `json:"commands"`
	Value    string   `json:"value,omitempty"`
}

type Plugin struct {
	deps core.Deps
	log  logx.Logger

	mu      sync.Mutex
	aliases map[string]Alias
}

func New() *Plugin {
	return &Plugin{aliases: make(map[string]Alias)}
}

func (p *Plugin) Name() string { return pluginName }

func (p *Plugin) Init(ctx context.Context, deps core.Deps) error {
	p.deps = deps
	p.log = deps.Log
	if _, err := storage.GetJSON(ctx, deps.Storage, storeNS, storeKey, &p.aliases); err != nil && !errors.Is(err, storage.ErrDisabled) {
		return fmt.Errorf("aliaspro load: %w", err)
	}
	return nil
}

func (p *Plugin) Start(context.Context) error { return nil }
func (p *Plugin) Stop(context.Context) error  { return nil }

func (p *Plugin) save(ctx context.Context) error {
	err := storage.SetJSON(ctx, p.deps.Storage, storeNS, storeKey, p.aliases)
	if errors.Is(err, storage.ErrDisabled) {
		return nil
	}
	return err
}

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{Name: "addaliasfor", Description: "Добавить алиас для нескольких команд", Handler: p.cmdAdd},
		{Name: "dalias", Description: "Удалить алиас", Handler: p.cmdDelete},
		{Name: "aliases", Description: "Список алиасов", Handler: p.cmdList},
	}
}

func (p *Plugin) reply(ctx context.Context, chatID int64, text string) error {
	_, err := p.deps.Adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID},
		text, &transport.SendOptions{ParseMode: "HTML"})
	return err
}

const usage = "🤤 Чот не то, делай так: <code>.addaliasfor название команда1, команда2, команда3 [значение]</code>"

// parseAliasArgs splits ".addaliasfor name cmd1, cmd2, cmd3 value".
// Commands run up to and including the first word after the last comma; the
// rest of that tail is the fixed value.
func parseAliasArgs(args string) (name string, a Alias, err error) {
	name, rest, found := strings.Cut(strings.TrimSpace(args), " ")
	if !found || strings.TrimSpace(rest) == "" {
		return "", Alias{}, fmt.Errorf("usage")
	}
	rest = strings.TrimSpace(rest)

	lastComma := strings.LastIndex(rest, ",")
	if lastComma < 0 {
		return "", Alias{}, fmt.Errorf("commands must be comma-separated")
	}

	for _, c := range strings.Split(rest[:lastComma], ",") {
		if c = strings.TrimSpace(c); c != "" {
			a.Commands = append(a.Commands, c)
		}
	}
	tail := strings.TrimSpace(rest[lastComma+1:])
	if tail != "" {
		first, value, _ := strings.Cut(tail, " ")
		a.Commands = append(a.Commands, first)
		a.Value = strings.TrimSpace(value)
	}
	if len(a.Commands) == 0 {
		return "", Alias{}, fmt.Errorf("no commands")
	}
	return name, a, nil
}

func (p *Plugin) cmdAdd(ctx context.Context, call *core.Call) error {
	name, alias, err := parseAliasArgs(call.Args)
	if err != nil {
		return p.reply(ctx, call.Msg.ChatID, usage)
	}

	p.mu.Lock()
	p.aliases[name] = alias
	p.mu.Unlock()
	if err := p.save(ctx); err != nil {
		return err
	}
	p.log.Info("alias added", logx.String("alias", name), logx.Int("commands", len(alias.Commands)))
	return p.reply(ctx, call.Msg.ChatID, fmt.Sprintf("☺️ Алиас <code>%s</code> готов!", tgui.Esc(name)))
}

func (p *Plugin) cmdDelete(ctx context.Context, call *core.Call) error {
	name := strings.TrimSpace(call.Args)
	if name == "" {
		return p.reply(ctx, call.Msg.ChatID, "🤤 Укажите название алиаса")
	}

	p.mu.Lock()
	_, ok := p.aliases[name]
	if ok {
		delete(p.aliases, name)
	}
	p.mu.Unlock()

	if !ok {
		return p.reply(ctx, call.Msg.ChatID, "🤤 Хрень сморозил")
	}
	if err := p.save(ctx); err != nil {
		return err
	}
	return p.reply(ctx, call.Msg.ChatID, fmt.Sprintf("☺️ Алиас <code>%s</code> убран", tgui.Esc(name)))
}

func (p *Plugin) cmdList(ctx context.Context, call *core.Call) error {
	p.mu.Lock()
	names := make([]string, 0, len(p.aliases))
	for name := range p.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		a := p.aliases[name]
		fmt.Fprintf(&b, "• <code>%s</code> → %s\n", tgui.Esc(name), tgui.Esc(strings.Join(a.Commands, ", ")))
	}
	p.mu.Unlock()

	if b.Len() == 0 {
		return p.reply(ctx, call.Msg.ChatID, "📭 Алиасов пока нет")
	}
	return p.reply(ctx, call.Msg.ChatID, "📋 <b>Алиасы:</b>\n"+b.String())
}

// OnMessage fans an alias trigger out into its commands, re-injected through
// the dispatcher as if the owner typed each one.
func (p *Plugin) OnMessage(ctx context.Context, msg *transport.Message) (bool, error) {
	prefix := p.deps.Prefix
	if prefix == "" {
		prefix = "."
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, prefix) {
		return false, nil
	}

	p.mu.Lock()
	var (
		matched Alias
		found   bool
		query   string
	)
	for name, a := range p.aliases {
		trigger := prefix + name
		if text == trigger || strings.HasPrefix(text, trigger+" ") {
			matched, found = a, true
			query = strings.TrimSpace(strings.TrimPrefix(text, trigger))
			break
		}
	}
	p.mu.Unlock()
	if !found {
		return false, nil
	}

	for _, cmd := range matched.Commands {
		full := prefix + cmd
		if matched.Value != "" {
			full += " " + matched.Value
		}
		if query != "" {
			full += " " + query
		}
		if err := p.deps.Disp.DispatchText(ctx, msg, full); err != nil {
			p.log.Warn("alias dispatch failed",
				logx.String("command", cmd), logx.Err(err))
		}
	}
	return true, nil
}
