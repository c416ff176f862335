// Package fontchanger rewrites outgoing text into Unicode styled alphabets
// ("fonts") by editing the message right after it is sent.
package fontchanger

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
)

const (
	pluginName = "fontchanger"
	storeNS    = "fontchanger"
	storeKey   = "state"

	defaultFont = "greek"
)

type state struct {
	Enabled bool   `json:"enabled"`
	Font    string `json:"font"`
}

type Plugin struct {
	deps  core.Deps
	log   logx.Logger
	fonts map[string]map[rune]rune

	mu sync.Mutex
	st state
}

func New() *Plugin {
	return &Plugin{
		fonts: buildFontMaps(),
		st:    state{Enabled: true, Font: defaultFont},
	}
}

func (p *Plugin) Name() string { return pluginName }

func (p *Plugin) Init(ctx context.Context, deps core.Deps) error {
	p.deps = deps
	p.log = deps.Log
	if _, err := storage.GetJSON(ctx, deps.Storage, storeNS, storeKey, &p.st); err != nil && !errors.Is(err, storage.ErrDisabled) {
		return fmt.Errorf("fontchanger load: %w", err)
	}
	if _, ok := p.fonts[p.st.Font]; !ok {
		p.st.Font = defaultFont
	}
	return nil
}

func (p *Plugin) Start(context.Context) error { return nil }
func (p *Plugin) Stop(context.Context) error  { return nil }

func (p *Plugin) save(ctx context.Context) error {
	p.mu.Lock()
	st := p.st
	p.mu.Unlock()
	err := storage.SetJSON(ctx, p.deps.Storage, storeNS, storeKey, st)
	if errors.Is(err, storage.ErrDisabled) {
		return nil
	}
	return err
}

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{Name: "fonton", Description: "Включить подмену шрифта", Handler: p.cmdOn},
		{Name: "fontoff", Description: "Выключить подмену шрифта", Handler: p.cmdOff},
		{Name: "fontset", Description: "Выбрать шрифт", Handler: p.cmdSet},
		{Name: "fonttest", Description: "Показать текст выбранным шрифтом", Handler: p.cmdTest},
	}
}

func (p *Plugin) reply(ctx context.Context, chatID int64, text string) error {
	_, err := p.deps.Adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, nil)
	return err
}

func (p *Plugin) fontNames() []string {
	names := make([]string, 0, len(p.fonts))
	for name := range p.fonts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Plugin) cmdOn(ctx context.Context, call *core.Call) error {
	p.mu.Lock()
	was := p.st.Enabled
	p.st.Enabled = true
	p.mu.Unlock()
	if was {
		return p.reply(ctx, call.Msg.ChatID, "ℹ️ Шрифт уже включен")
	}
	if err := p.save(ctx); err != nil {
		return err
	}
	return p.reply(ctx, call.Msg.ChatID, "✅ Шрифт включен")
}

func (p *Plugin) cmdOff(ctx context.Context, call *core.Call) error {
	p.mu.Lock()
	was := p.st.Enabled
	p.st.Enabled = false
	p.mu.Unlock()
	if !was {
		return p.reply(ctx, call.Msg.ChatID, "ℹ️ Шрифт уже выключен")
	}
	if err := p.save(ctx); err != nil {
		return err
	}
	return p.reply(ctx, call.Msg.ChatID, "❌ Шрифт выключен")
}

func (p *Plugin) cmdSet(ctx context.Context, call *core.Call) error {
	name := strings.ToLower(strings.TrimSpace(call.Args))
	if name == "" {
		p.mu.Lock()
		current := p.st.Font
		p.mu.Unlock()
		return p.reply(ctx, call.Msg.ChatID, fmt.Sprintf(
			"📝 Доступные шрифты: %s\n🔤 Текущий шрифт: %s",
			strings.Join(p.fontNames(), ", "), current))
	}
	if _, ok := p.fonts[name]; !ok {
		return p.reply(ctx, call.Msg.ChatID,
			"❌ Неверный шрифт. Доступные: "+strings.Join(p.fontNames(), ", "))
	}

	p.mu.Lock()
	p.st.Font = name
	p.mu.Unlock()
	if err := p.save(ctx); err != nil {
		return err
	}
	return p.reply(ctx, call.Msg.ChatID, "✅ Шрифт изменен на: "+name)
}

func (p *Plugin) cmdTest(ctx context.Context, call *core.Call) error {
	text := strings.TrimSpace(call.Args)
	if text == "" {
		return p.reply(ctx, call.Msg.ChatID, "ℹ️ Введите текст для теста")
	}
	p.mu.Lock()
	font := p.fonts[p.st.Font]
	p.mu.Unlock()
	return p.reply(ctx, call.Msg.ChatID, convert(text, font))
}

// OnMessage restyles the owner's plain messages in place. Commands are left
// alone and the message keeps flowing to other watchers and the router.
func (p *Plugin) OnMessage(ctx context.Context, msg *transport.Message) (bool, error) {
	p.mu.Lock()
	st := p.st
	font := p.fonts[st.Font]
	p.mu.Unlock()

	if !st.Enabled || msg.Text == "" || font == nil {
		return false, nil
	}
	prefix := p.deps.Prefix
	if prefix == "" {
		prefix = "."
	}
	if strings.HasPrefix(strings.TrimSpace(msg.Text), prefix) {
		return false, nil
	}

	converted := convert(msg.Text, font)
	if converted == msg.Text {
		return false, nil
	}

	ref := transport.MessageRef{ChatID: msg.ChatID, MessageID: msg.ID}
	if err := p.deps.Adapter.EditText(ctx, ref, converted, nil); err != nil {
		// foreign or too-old messages cannot be edited; not fatal
		p.log.Debug("font edit skipped", logx.Err(err))
	}
	return false, nil
}
