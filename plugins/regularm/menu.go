package regularm

import (
	"context"
	"fmt"
	"strconv"

	"mofkobot/internal/transport"
	"mofkobot/pkg/tgui"
)

// Editor actions carried in callback_data as "regularm:<action>:<id>".
const (
	actMenu       = "menu"
	actNew        = "new"
	actShow       = "show"
	actToggle     = "toggle"
	actEditMenu   = "edit"
	actEditPeriod = "eperiod"
	actEditTime   = "etime"
	actEditDate   = "edate"
	actEditText   = "etext"
	actTest       = "test"
	actDelAsk     = "delask"
	actDelete     = "del"
	actClose      = "close"
)

func (p *Plugin) data(action string, id uint64) string {
	payload := ""
	if id != 0 {
		payload = strconv.FormatUint(id, 10)
	}
	return tgui.Data(pluginName, action, payload)
}

func (p *Plugin) sendOpts(markup *tgui.Inline) *transport.SendOptions {
	return &transport.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: markup.Markup(),
	}
}

func (p *Plugin) mainMenuView() (string, *tgui.Inline) {
	entries := p.store.List()
	kb := tgui.NewInline()

	if len(entries) == 0 {
		kb.Row(tgui.Btn("➕ Создать", p.data(actNew, 0)))
		kb.Row(tgui.Btn("❌ Закрыть", p.data(actClose, 0)))
		return "📭 <b>Нет регулярных сообщений</b>\nИспользуйте <code>.regmes</code> для создания", kb
	}

	for _, e := range entries {
		kb.Row(tgui.Btn(buttonLabel(e), p.data(actShow, e.ID)))
	}
	kb.Row(tgui.Btn("➕ Создать", p.data(actNew, 0)))
	kb.Row(tgui.Btn("❌ Закрыть", p.data(actClose, 0)))
	return "📅 <b>Регулярные сообщения</b>\n\nВыберите сообщение для редактирования:", kb
}

func (p *Plugin) showMainMenu(ctx context.Context, chatID int64) error {
	text, kb := p.mainMenuView()
	ref, err := p.deps.Adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, p.sendOpts(kb))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.menus[chatID] = ref
	p.mu.Unlock()
	return nil
}

func (p *Plugin) renderMainMenu(ctx context.Context, ref transport.MessageRef) error {
	text, kb := p.mainMenuView()
	return p.deps.Adapter.EditText(ctx, ref, text, p.sendOpts(kb))
}

func (p *Plugin) renderEntry(ctx context.Context, ref transport.MessageRef, id uint64) error {
	e, err := p.store.Get(id)
	if err != nil {
		return p.renderMainMenu(ctx, ref)
	}

	kb := tgui.NewInline()
	kb.Row(
		tgui.Btn("🔄 Вкл/Выкл", p.data(actToggle, id)),
		tgui.Btn("✏️ Изменить", p.data(actEditMenu, id)),
	)
	kb.Row(
		tgui.Btn("⏰ Тест отправки", p.data(actTest, id)),
		tgui.Btn("🗑 Удалить", p.data(actDelAsk, id)),
	)
	kb.Row(tgui.Btn("🔙 Назад", p.data(actMenu, 0)))

	return p.deps.Adapter.EditText(ctx, ref, entryDetails(e, p.loc), p.sendOpts(kb))
}

func (p *Plugin) renderEditMenu(ctx context.Context, ref transport.MessageRef, id uint64) error {
	kb := tgui.NewInline()
	kb.Row(
		tgui.Btn("📅 Период", p.data(actEditPeriod, id)),
		tgui.Btn("⏰ Время", p.data(actEditTime, id)),
	)
	kb.Row(
		tgui.Btn("📆 Дата начала", p.data(actEditDate, id)),
		tgui.Btn("💬 Сообщение", p.data(actEditText, id)),
	)
	kb.Row(tgui.Btn("🔙 Назад", p.data(actShow, id)))
	return p.deps.Adapter.EditText(ctx, ref, "✏️ <b>Что вы хотите изменить?</b>", p.sendOpts(kb))
}

// prompt switches the chat into "awaiting input" mode and shows what to type.
func (p *Plugin) prompt(ctx context.Context, cb *transport.Callback, id uint64, field, text string) error {
	p.mu.Lock()
	p.pending[cb.ChatID] = pendingEdit{entryID: id, field: field}
	p.menus[cb.ChatID] = transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	p.mu.Unlock()

	kb := tgui.NewInline()
	kb.Row(tgui.Btn("❌ Отмена", p.data(actEditMenu, id)))
	return p.deps.Adapter.EditText(ctx,
		transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}, text, p.sendOpts(kb))
}

const (
	promptPeriod = "📅 <b>Введите новый период:</b>\n\n" +
		"<b>Абсолютные периоды (требуют время):</b>\n" +
		"• д, н, м, г\n" +
		"• Дни недели (Понедельник, Вторник...)\n" +
		"• Месяцы (Январь, Февраль...)\n" +
		"• Несколько недель (2 недели, 3 недели...)\n\n" +
		"<b>Интервальные периоды (время не требуется):</b>\n" +
		"• 2ч15м - каждые 2 часа 15 минут\n" +
		"• 30м - каждые 30 минут"
	promptTime = "⏰ <b>Введите новое время в формате ЧЧ:ММ</b>\n\n" +
		"Пример: 14:30, 09:00, 23:45\n\n" +
		"Или оставьте пустым для текущего времени"
	promptDate = "📆 <b>Введите новую дату начала в формате ДД.ММ</b>\n\n" +
		"Пример: 27.12, 01.01, 15.06\n\n" +
		"Или оставьте пустым для текущей даты"
	promptText = "💬 <b>Введите новый текст сообщения</b>\n\n" +
		"Поддерживается HTML разметка и эмодзи\n\n" +
		"Или ответьте реплаем на медиа-сообщение"
)

func (p *Plugin) OnCallback(ctx context.Context, cb *transport.Callback, action, payload string) error {
	ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	id, _ := strconv.ParseUint(payload, 10, 64)

	ack := func(text string) {
		_ = p.deps.Adapter.AnswerCallback(ctx, cb.ID, text)
	}

	// a button press supersedes any pending text prompt in this chat
	if action != actEditPeriod && action != actEditTime && action != actEditDate && action != actEditText {
		p.mu.Lock()
		delete(p.pending, cb.ChatID)
		p.menus[cb.ChatID] = ref
		p.mu.Unlock()
	}

	switch action {
	case actMenu:
		ack("")
		return p.renderMainMenu(ctx, ref)

	case actNew:
		ack("")
		kb := tgui.NewInline()
		kb.Row(tgui.Btn("🔙 Назад", p.data(actMenu, 0)))
		kb.Row(tgui.Btn("❌ Закрыть", p.data(actClose, 0)))
		return p.deps.Adapter.EditText(ctx, ref, helpText, p.sendOpts(kb))

	case actShow:
		ack("")
		return p.renderEntry(ctx, ref, id)

	case actToggle:
		e, err := p.store.Toggle(ctx, id)
		if err != nil {
			ack("Сообщение не найдено")
			return p.renderMainMenu(ctx, ref)
		}
		if e.Enabled {
			ack("Статус изменен: ✅ Включено")
		} else {
			ack("Статус изменен: ❌ Выключено")
		}
		return p.renderEntry(ctx, ref, id)

	case actEditMenu:
		ack("")
		if _, err := p.store.Get(id); err != nil {
			ack("Сообщение не найдено")
			return p.renderMainMenu(ctx, ref)
		}
		return p.renderEditMenu(ctx, ref, id)

	case actEditPeriod:
		ack("")
		return p.prompt(ctx, cb, id, "period", promptPeriod)

	case actEditTime:
		e, err := p.store.Get(id)
		if err != nil {
			ack("Сообщение не найдено")
			return p.renderMainMenu(ctx, ref)
		}
		if e.Period.IsInterval() {
			ack("⚠️ Для интервальных периодов время не требуется")
			return nil
		}
		return p.prompt(ctx, cb, id, "time", promptTime)

	case actEditDate:
		ack("")
		return p.prompt(ctx, cb, id, "date", promptDate)

	case actEditText:
		ack("")
		return p.prompt(ctx, cb, id, "text", promptText)

	case actTest:
		if err := p.svc.TestSend(ctx, id); err != nil {
			ack("❌ Ошибка: " + err.Error())
			return nil
		}
		ack("✅ Сообщение отправлено")
		return p.renderEntry(ctx, ref, id)

	case actDelAsk:
		ack("")
		kb := tgui.NewInline()
		kb.Row(
			tgui.Btn("✅ Да, удалить", p.data(actDelete, id)),
			tgui.Btn("❌ Нет, отмена", p.data(actShow, id)),
		)
		return p.deps.Adapter.EditText(ctx, ref,
			"🗑 <b>Вы уверены, что хотите удалить это регулярное сообщение?</b>\n\nЭто действие невозможно отменить.",
			p.sendOpts(kb))

	case actDelete:
		if err := p.store.Delete(ctx, id); err != nil {
			ack("Сообщение не найдено")
		} else {
			ack("✅ Сообщение удалено")
		}
		return p.renderMainMenu(ctx, ref)

	case actClose:
		ack("")
		p.mu.Lock()
		delete(p.menus, cb.ChatID)
		delete(p.pending, cb.ChatID)
		p.mu.Unlock()
		return p.deps.Adapter.DeleteMessage(ctx, ref)

	default:
		ack("")
		return fmt.Errorf("unknown menu action %q", action)
	}
}
