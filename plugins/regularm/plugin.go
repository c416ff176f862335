// Package regularm is the recurring-message plugin: the .regmes creation
// command, the inline management menu and the wiring of the delivery engine.
package regularm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mofkobot/internal/config"
	"mofkobot/internal/core"
	"mofkobot/internal/services/regular"
	"mofkobot/internal/transport"
	"mofkobot/pkg/logx"
)

const pluginName = "regularm"

// pluginConfig is the plugin's block in the config file. Durations are Go
// duration strings.
type pluginConfig struct {
	CheckInterval string `json:"check_interval,omitempty"`
	RetryDelay    string `json:"retry_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
	MaxPerMinute  int    `json:"max_per_minute,omitempty"`
	// Timezone: IANA name or an hour offset relative to Moscow.
	Timezone string `json:"timezone,omitempty"`
}

// pendingEdit tracks an interactive editor prompt awaiting the owner's next
// message in a chat.
type pendingEdit struct {
	entryID uint64
	field   string // "period", "time", "date", "text"
}

type Plugin struct {
	deps core.Deps
	log  logx.Logger

	loc   *time.Location
	store *regular.Store
	svc   *regular.Service

	mu      sync.Mutex
	pending map[int64]pendingEdit          // chat id -> awaited input
	menus   map[int64]transport.MessageRef // chat id -> open menu message
}

func New() *Plugin {
	return &Plugin{
		pending: make(map[int64]pendingEdit),
		menus:   make(map[int64]transport.MessageRef),
	}
}

func (p *Plugin) Name() string { return pluginName }

func (p *Plugin) Init(ctx context.Context, deps core.Deps) error {
	p.deps = deps
	p.log = deps.Log

	var pc pluginConfig
	if err := deps.DecodeConfig(&pc); err != nil {
		return fmt.Errorf("regularm config: %w", err)
	}

	tz := pc.Timezone
	if tz == "" {
		tz = deps.Timezone
	}
	loc, err := regular.ResolveLocation(tz)
	if err != nil {
		return fmt.Errorf("regularm timezone: %w", err)
	}
	p.loc = loc

	checkInterval, err := config.ParseDurationField("plugins.regularm.check_interval", pc.CheckInterval)
	if err != nil {
		return err
	}
	retryDelay, err := config.ParseDurationField("plugins.regularm.retry_delay", pc.RetryDelay)
	if err != nil {
		return err
	}
	sendTimeout, err := config.ParseDurationField("plugins.regularm.send_timeout", pc.SendTimeout)
	if err != nil {
		return err
	}

	p.store = regular.NewStore(deps.Storage, loc, deps.Log)
	p.svc = regular.NewService(regular.Config{
		Enabled:       true,
		CheckInterval: checkInterval,
		RetryDelay:    retryDelay,
		SendTimeout:   sendTimeout,
		MaxPerMinute:  pc.MaxPerMinute,
		Timezone:      tz,
	}, p.store, deps.Adapter, deps.Log)
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	if err := p.store.Load(ctx); err != nil {
		return fmt.Errorf("regularm load: %w", err)
	}
	p.svc.Start(ctx)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.svc.Stop(ctx)
	return nil
}

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{Name: "regmes", Description: "Создать регулярное сообщение", Handler: p.cmdRegmes},
		{Name: "rmcfg", Description: "Меню регулярных сообщений", Handler: p.cmdMenu},
		{Name: "rmclear", Description: "Удалить все регулярные сообщения", Handler: p.cmdClear},
		{Name: "rmstats", Description: "Статистика регулярных сообщений", Handler: p.cmdStats},
		{Name: "rmcheck", Description: "Принудительная проверка", Handler: p.cmdCheck},
		{Name: "rmrecalc", Description: "Пересчитать время отправки", Handler: p.cmdRecalc},
	}
}

func (p *Plugin) reply(ctx context.Context, chatID int64, text string) error {
	_, err := p.deps.Adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID},
		text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

func (p *Plugin) cmdRegmes(ctx context.Context, call *core.Call) error {
	if strings.TrimSpace(call.Args) == "" {
		return p.reply(ctx, call.Msg.ChatID, helpText)
	}

	args, err := regular.ParseCreateArgs(call.Args, time.Now().In(p.loc))
	if err != nil {
		return p.reply(ctx, call.Msg.ChatID, creationError(err))
	}

	text := args.Text
	var photo []byte
	if r := call.Msg.Reply; r != nil && r.PhotoFileID != "" {
		photo, err = p.deps.Adapter.DownloadPhoto(ctx, r.PhotoFileID)
		if err != nil {
			return fmt.Errorf("download reply photo: %w", err)
		}
		if r.Text != "" {
			text = r.Text
		}
	}
	args.Text = text

	e, err := p.store.Create(ctx, args, call.Msg.ChatID, call.Msg.ChatTitle, photo)
	if err != nil {
		return err
	}
	p.log.Info("entry created",
		logx.Uint64("id", e.ID),
		logx.Int64("chat", e.ChatID),
		logx.String("kind", string(e.Period.Kind)))

	periodAsTyped := strings.TrimSpace(regular.SplitArgs(call.Args)[0])
	return p.reply(ctx, call.Msg.ChatID, createdReply(e, periodAsTyped))
}

// creationError maps validation errors to the user-facing Russian messages.
func creationError(err error) string {
	switch {
	case regular.IsNotFound(err):
		return "❌ <b>Сообщение не найдено</b>"
	case strings.Contains(err.Error(), "invalid time"):
		return "❌ <b>Неверный формат времени</b>\nИспользуйте ЧЧ:ММ (24-часовой формат)"
	case strings.Contains(err.Error(), "invalid date"):
		return "❌ <b>Неверный формат даты</b>\nИспользуйте ДД.ММ"
	case strings.Contains(err.Error(), "invalid period"):
		return "❌ <b>Неверный период</b>"
	default:
		return "❌ <b>Неверные аргументы</b>\nФормат: <code>.regmes период, [время], дата, сообщение</code>"
	}
}

func (p *Plugin) cmdMenu(ctx context.Context, call *core.Call) error {
	return p.showMainMenu(ctx, call.Msg.ChatID)
}

func (p *Plugin) cmdClear(ctx context.Context, call *core.Call) error {
	if p.store.Len() == 0 {
		return p.reply(ctx, call.Msg.ChatID, "📭 Нет регулярных сообщений для очистки")
	}
	n, err := p.store.ClearAll(ctx)
	if err != nil {
		return err
	}
	return p.reply(ctx, call.Msg.ChatID, fmt.Sprintf("🗑 Удалено %d регулярных сообщений", n))
}

func (p *Plugin) cmdStats(ctx context.Context, call *core.Call) error {
	st := p.store.Stats()
	if st.Total == 0 {
		return p.reply(ctx, call.Msg.ChatID, "📭 <b>Нет регулярных сообщений</b>\nИспользуйте <code>.regmes</code> для создания")
	}
	return p.reply(ctx, call.Msg.ChatID, statsText(st, p.loc))
}

func (p *Plugin) cmdCheck(ctx context.Context, call *core.Call) error {
	if p.store.Len() == 0 {
		return p.reply(ctx, call.Msg.ChatID, "📭 Нет регулярных сообщений")
	}
	n := p.svc.DueCount()
	if n == 0 {
		return p.reply(ctx, call.Msg.ChatID, "⏳ Нет сообщений для отправки")
	}
	p.svc.CheckNow()
	return p.reply(ctx, call.Msg.ChatID, fmt.Sprintf("🔍 Найдено %d сообщений для отправки", n))
}

func (p *Plugin) cmdRecalc(ctx context.Context, call *core.Call) error {
	if p.store.Len() == 0 {
		return p.reply(ctx, call.Msg.ChatID, "📭 Нет регулярных сообщений")
	}
	n, err := p.store.RecalcAll(ctx)
	if err != nil {
		return err
	}
	return p.reply(ctx, call.Msg.ChatID, fmt.Sprintf("🔄 Пересчитано %d сообщений", n))
}

// OnMessage consumes the owner's next message when an editor prompt is
// waiting for input in that chat.
func (p *Plugin) OnMessage(ctx context.Context, msg *transport.Message) (bool, error) {
	p.mu.Lock()
	pe, ok := p.pending[msg.ChatID]
	if ok {
		delete(p.pending, msg.ChatID)
	}
	p.mu.Unlock()
	if !ok {
		return false, nil
	}
	// a command cancels the prompt instead of being swallowed as input
	prefix := p.deps.Prefix
	if prefix == "" {
		prefix = "."
	}
	if strings.HasPrefix(strings.TrimSpace(msg.Text), prefix) {
		return false, nil
	}
	return true, p.applyEdit(ctx, msg, pe)
}

func (p *Plugin) applyEdit(ctx context.Context, msg *transport.Message, pe pendingEdit) error {
	input := strings.TrimSpace(msg.Text)
	var err error

	switch pe.field {
	case "period":
		var spec regular.PeriodSpec
		if spec, err = regular.ParsePeriod(input); err == nil {
			_, err = p.store.UpdatePeriod(ctx, pe.entryID, spec)
		}
	case "time":
		var t *regular.ClockTime
		if t, err = regular.ParseTimeOfDay(input); err == nil {
			_, err = p.store.UpdateTime(ctx, pe.entryID, t)
		}
	case "date":
		var day, month int
		if day, month, err = regular.ParseStartDate(input, time.Now().In(p.loc)); err == nil {
			_, err = p.store.UpdateDate(ctx, pe.entryID, day, month)
		}
	case "text":
		var photo []byte
		text := msg.Text
		if r := msg.Reply; r != nil && r.PhotoFileID != "" {
			if photo, err = p.deps.Adapter.DownloadPhoto(ctx, r.PhotoFileID); err != nil {
				return err
			}
			if r.Text != "" {
				text = r.Text
			}
		}
		_, err = p.store.UpdateMessage(ctx, pe.entryID, text, photo)
	default:
		return nil
	}

	if err != nil {
		return p.reply(ctx, msg.ChatID, creationError(err))
	}
	if err := p.reply(ctx, msg.ChatID, fmt.Sprintf("✏️ <b>Сообщение обновлено</b>\nID: <code>%d</code>", pe.entryID)); err != nil {
		return err
	}
	return p.editEntryMenu(ctx, msg.ChatID, pe.entryID)
}

// editEntryMenu refreshes the open menu (if any) to show the updated entry.
func (p *Plugin) editEntryMenu(ctx context.Context, chatID int64, id uint64) error {
	p.mu.Lock()
	ref, ok := p.menus[chatID]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return p.renderEntry(ctx, ref, id)
}
