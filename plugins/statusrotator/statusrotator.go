// Package statusrotator cycles a "status" message in a configured chat on a
// fixed schedule, round-robin over a user-managed list.
package statusrotator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"mofkobot/internal/config"
	"mofkobot/internal/core"
	"mofkobot/internal/storage"
	"mofkobot/internal/transport"
	"mofkobot/pkg/logx"
	"mofkobot/pkg/tgui"
)

const (
	pluginName = "statusrotator"
	storeNS    = "statusrotator"
	storeKey   = "state"
)

type pluginConfig struct {
	// ChatID receives the rotating status message. 0 disables rotation.
	ChatID int64 `json:"chat_id,omitempty"`
	// Interval between rotations, Go duration string. Default "1h".
	Interval string `json:"interval,omitempty"`
}

type state struct {
	Running  bool     `json:"running"`
	Index    int      `json:"index"`
	Statuses []string `json:"statuses,omitempty"`
	// MessageID of the last status message, edited in place when possible.
	MessageID int `json:"message_id,omitempty"`
}

type Plugin struct {
	deps core.Deps
	log  logx.Logger
	cfg  pluginConfig

	mu    sync.Mutex
	st    state
	jobID string
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return pluginName }

func (p *Plugin) Init(ctx context.Context, deps core.Deps) error {
	p.deps = deps
	p.log = deps.Log
	if err := deps.DecodeConfig(&p.cfg); err != nil {
		return fmt.Errorf("statusrotator config: %w", err)
	}
	if _, err := storage.GetJSON(ctx, deps.Storage, storeNS, storeKey, &p.st); err != nil && !errors.Is(err, storage.ErrDisabled) {
		return fmt.Errorf("statusrotator load: %w", err)
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.mu.Lock()
	resume := p.st.Running
	p.mu.Unlock()
	if resume {
		if err := p.schedule(); err != nil {
			p.log.Warn("status rotation not resumed", logx.Err(err))
		}
	}
	return nil
}

func (p *Plugin) Stop(context.Context) error {
	p.unschedule()
	return nil
}

func (p *Plugin) interval() (time.Duration, error) {
	return config.ParseDurationOrDefault("plugins.statusrotator.interval", p.cfg.Interval, time.Hour)
}

func (p *Plugin) schedule() error {
	if p.deps.Jobs == nil || !p.deps.Jobs.Enabled() {
		return errors.New("jobs service is disabled")
	}
	if p.cfg.ChatID == 0 {
		return errors.New("chat_id is not configured")
	}
	every, err := p.interval()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jobID != "" {
		return nil
	}
	id, err := p.deps.Jobs.AddInterval("statusrotator.rotate", every, p.rotate)
	if err != nil {
		return err
	}
	p.jobID = id
	return nil
}

func (p *Plugin) unschedule() {
	p.mu.Lock()
	id := p.jobID
	p.jobID = ""
	p.mu.Unlock()
	if id != "" && p.deps.Jobs != nil {
		p.deps.Jobs.Remove(id)
	}
}

// rotate posts (or edits) the next status in the ring.
func (p *Plugin) rotate(ctx context.Context) error {
	p.mu.Lock()
	if len(p.st.Statuses) == 0 {
		p.mu.Unlock()
		return errors.New("status list is empty")
	}
	p.st.Index %= len(p.st.Statuses)
	text := p.st.Statuses[p.st.Index]
	p.st.Index = (p.st.Index + 1) % len(p.st.Statuses)
	msgID := p.st.MessageID
	p.mu.Unlock()

	to := transport.ChatTarget{ChatID: p.cfg.ChatID}
	if msgID != 0 {
		ref := transport.MessageRef{ChatID: p.cfg.ChatID, MessageID: msgID}
		if err := p.deps.Adapter.EditText(ctx, ref, text, nil); err == nil {
			return p.save(ctx)
		}
		// the old message is gone, fall through and post a fresh one
	}
	sent, err := p.deps.Adapter.SendText(ctx, to, text, nil)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.st.MessageID = sent.MessageID
	p.mu.Unlock()
	return p.save(ctx)
}

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
		{Name: "rotstart", Description: "Запустить ротацию статусов", Handler: p.cmdStart},
		{Name: "rotstop", Description: "Остановить ротацию статусов", Handler: p.cmdStop},
		{Name: "rotadd", Description: "Добавить статус", Handler: p.cmdAdd},
		{Name: "rotdel", Description: "Удалить статус по номеру", Handler: p.cmdDel},
		{Name: "rotlist", Description: "Список статусов", Handler: p.cmdList},
	}
}

func (p *Plugin) reply(ctx context.Context, chatID int64, text string) error {
	_, err := p.deps.Adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID},
		text, &transport.SendOptions{ParseMode: "HTML"})
	return err
}

func (p *Plugin) cmdStart(ctx context.Context, call *core.Call) error {
	p.mu.Lock()
	running := p.st.Running
	empty := len(p.st.Statuses) == 0
	p.mu.Unlock()
	if running {
		return p.reply(ctx, call.Msg.ChatID, "ℹ️ Ротация уже запущена")
	}
	if empty {
		return p.reply(ctx, call.Msg.ChatID, "📭 Список статусов пуст, добавьте через <code>.rotadd</code>")
	}
	if err := p.schedule(); err != nil {
		return p.reply(ctx, call.Msg.ChatID, "❌ "+err.Error())
	}

	p.mu.Lock()
	p.st.Running = true
	p.mu.Unlock()
	if err := p.save(ctx); err != nil {
		return err
	}
	return p.reply(ctx, call.Msg.ChatID, "✅ Ротация статусов запущена")
}

func (p *Plugin) cmdStop(ctx context.Context, call *core.Call) error {
	p.mu.Lock()
	running := p.st.Running
	p.st.Running = false
	p.mu.Unlock()
	if !running {
		return p.reply(ctx, call.Msg.ChatID, "ℹ️ Ротация уже остановлена")
	}
	p.unschedule()
	if err := p.save(ctx); err != nil {
		return err
	}
	return p.reply(ctx, call.Msg.ChatID, "🛑 Ротация статусов остановлена")
}

func (p *Plugin) cmdAdd(ctx context.Context, call *core.Call) error {
	text := strings.TrimSpace(call.Args)
	if text == "" {
		return p.reply(ctx, call.Msg.ChatID, "❌ Укажите текст статуса")
	}

	p.mu.Lock()
	dup := false
	for _, s := range p.st.Statuses {
		if s == text {
			dup = true
			break
		}
	}
	if !dup {
		p.st.Statuses = append(p.st.Statuses, text)
	}
	p.mu.Unlock()

	if dup {
		return p.reply(ctx, call.Msg.ChatID, "❌ Такой статус уже есть в списке")
	}
	if err := p.save(ctx); err != nil {
		return err
	}
	return p.reply(ctx, call.Msg.ChatID, "✅ Статус добавлен")
}

func (p *Plugin) cmdDel(ctx context.Context, call *core.Call) error {
	n, err := strconv.Atoi(strings.TrimSpace(call.Args))
	if err != nil || n < 1 {
		return p.reply(ctx, call.Msg.ChatID, "❌ Укажите номер статуса из <code>.rotlist</code>")
	}

	p.mu.Lock()
	ok := n <= len(p.st.Statuses)
	if ok {
		p.st.Statuses = append(p.st.Statuses[:n-1], p.st.Statuses[n:]...)
		if p.st.Index >= len(p.st.Statuses) {
			p.st.Index = 0
		}
	}
	p.mu.Unlock()

	if !ok {
		return p.reply(ctx, call.Msg.ChatID, "❌ Нет статуса с таким номером")
	}
	if err := p.save(ctx); err != nil {
		return err
	}
	return p.reply(ctx, call.Msg.ChatID, "🗑 Статус удален")
}

func (p *Plugin) cmdList(ctx context.Context, call *core.Call) error {
	p.mu.Lock()
	statuses := append([]string(nil), p.st.Statuses...)
	running := p.st.Running
	p.mu.Unlock()

	if len(statuses) == 0 {
		return p.reply(ctx, call.Msg.ChatID, "📭 Список статусов пуст")
	}
	var b strings.Builder
	b.WriteString("📋 <b>Статусы:</b>\n")
	for i, s := range statuses {
		fmt.Fprintf(&b, "%d. %s\n", i+1, tgui.Esc(s))
	}
	if running {
		b.WriteString("\n▶️ Ротация запущена")
	} else {
		b.WriteString("\n⏸ Ротация остановлена")
	}
	return p.reply(ctx, call.Msg.ChatID, b.String())
}
