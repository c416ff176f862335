package regularm

import (
	"fmt"
	"strings"
	"time"

	"mofkobot/internal/services/regular"
	"mofkobot/pkg/tgui"
)

// intervalDisplay renders an interval in the same units the user typed:
// "2д 3ч 15м", "2ч 15м" or "30м".
func intervalDisplay(seconds int64) string {
	switch {
	case seconds >= 86400:
		return fmt.Sprintf("%dд %dч %dм", seconds/86400, (seconds%86400)/3600, (seconds%3600)/60)
	case seconds >= 3600:
		return fmt.Sprintf("%dч %dм", seconds/3600, (seconds%3600)/60)
	default:
		return fmt.Sprintf("%dм", seconds/60)
	}
}

// periodDisplay renders a period for the entry detail view.
func periodDisplay(p regular.PeriodSpec) string {
	switch p.Kind {
	case regular.PeriodInterval:
		return "Каждые " + intervalDisplay(p.Seconds)
	case regular.PeriodDaily:
		return "Ежедневно"
	case regular.PeriodWeekly:
		return "Еженедельно"
	case regular.PeriodWeeklyDay:
		return "По " + regular.WeekdayNames[p.Weekday]
	case regular.PeriodMonthly:
		return "Ежемесячно"
	case regular.PeriodMonthlyDay:
		return "Каждый " + regular.MonthName(p.Month)
	case regular.PeriodYearly:
		return "Ежегодно"
	case regular.PeriodWeeks:
		return fmt.Sprintf("Каждые %d недель", p.Weeks)
	default:
		return "Неизвестно"
	}
}

// periodShort renders a period for a keyboard button.
func periodShort(p regular.PeriodSpec) string {
	switch p.Kind {
	case regular.PeriodInterval:
		s := p.Seconds
		switch {
		case s >= 86400:
			return fmt.Sprintf("%dд%dч%dм", s/86400, (s%86400)/3600, (s%3600)/60)
		case s >= 3600:
			return fmt.Sprintf("%dч%dм", s/3600, (s%3600)/60)
		default:
			return fmt.Sprintf("%dм", s/60)
		}
	case regular.PeriodWeeklyDay:
		return "По " + regular.WeekdayShort[p.Weekday]
	case regular.PeriodMonthlyDay:
		name := []rune(regular.MonthName(p.Month))
		if len(name) > 3 {
			name = name[:3]
		}
		return "Каждый " + string(name)
	case regular.PeriodWeeks:
		return fmt.Sprintf("Каждые %d нед", p.Weeks)
	default:
		return periodDisplay(p)
	}
}

var kindNames = map[regular.PeriodKind]string{
	regular.PeriodInterval:   "Интервальные",
	regular.PeriodDaily:      "Ежедневные",
	regular.PeriodWeekly:     "Еженедельные",
	regular.PeriodWeeklyDay:  "По дням недели",
	regular.PeriodMonthly:    "Ежемесячные",
	regular.PeriodMonthlyDay: "По месяцам",
	regular.PeriodYearly:     "Ежегодные",
	regular.PeriodWeeks:      "По несколько недель",
}

func statusIcon(enabled bool) string {
	if enabled {
		return "✅"
	}
	return "❌"
}

func buttonLabel(e regular.Entry) string {
	label := statusIcon(e.Enabled) + " " + periodShort(e.Period)
	if !e.Period.IsInterval() && e.Time != nil {
		label += " " + e.Time.String()
	}
	return tgui.TruncRunes(label, 30)
}

// entryDetails renders the management view for one entry.
func entryDetails(e regular.Entry, loc *time.Location) string {
	status := "✅ Включено"
	if !e.Enabled {
		status = "❌ Выключено"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📝 <b>Регулярное сообщение ID: %d</b>\n\n", e.ID)
	fmt.Fprintf(&b, "<b>Статус:</b> %s\n", status)
	fmt.Fprintf(&b, "<b>Период:</b> %s\n", tgui.Esc(periodDisplay(e.Period)))
	if !e.Period.IsInterval() && e.Time != nil {
		fmt.Fprintf(&b, "<b>Время:</b> %s\n", e.Time)
	}
	fmt.Fprintf(&b, "<b>Начало:</b> %02d.%02d\n", e.StartDay, e.StartMonth)

	next := "Не рассчитано"
	if e.NextFireAt > 0 {
		next = time.Unix(e.NextFireAt, 0).In(loc).Format("02.01.2006 15:04")
	}
	fmt.Fprintf(&b, "<b>Следующая отправка:</b> %s\n", next)

	chat := e.ChatTitle
	if chat == "" {
		chat = fmt.Sprintf("%d", e.ChatID)
	}
	fmt.Fprintf(&b, "<b>Чат:</b> %s\n", tgui.Esc(chat))
	if e.ErrorCount > 0 {
		fmt.Fprintf(&b, "<b>Ошибок подряд:</b> %d\n", e.ErrorCount)
	}

	b.WriteString("\n<b>Сообщение:</b>\n")
	if e.HasPhoto() {
		b.WriteString("📎 Медиа-сообщение\n")
	}
	b.WriteString(string(tgui.Esc(tgui.TruncRunes(e.Text, 200))))
	return b.String()
}

// createdReply renders the confirmation shown after a successful creation.
func createdReply(e regular.Entry, periodAsTyped string) string {
	display := periodAsTyped
	if e.Period.IsInterval() {
		display = intervalDisplay(e.Period.Seconds)
	}

	var b strings.Builder
	b.WriteString("✅ <b>Регулярное сообщение создано</b>\n\n")
	fmt.Fprintf(&b, "<b>ID:</b> <code>%d</code>\n", e.ID)
	fmt.Fprintf(&b, "<b>Период:</b> %s\n", tgui.Esc(display))
	if e.Time != nil {
		fmt.Fprintf(&b, "<b>Время:</b> %s\n", e.Time)
	}
	fmt.Fprintf(&b, "<b>Начало:</b> %02d.%02d\n", e.StartDay, e.StartMonth)
	if e.ChatTitle != "" {
		fmt.Fprintf(&b, "<b>Чат:</b> %s\n", tgui.Esc(e.ChatTitle))
	}
	fmt.Fprintf(&b, "\n<b>Сообщение:</b>\n%s", tgui.Esc(tgui.TruncRunes(e.Text, 50)))
	return b.String()
}

func statsText(st regular.Stats, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("📊 <b>Статистика регулярных сообщений</b>\n\n")
	fmt.Fprintf(&b, "<b>Всего:</b> %d\n", st.Total)
	fmt.Fprintf(&b, "<b>Активных:</b> %d\n", st.Enabled)
	fmt.Fprintf(&b, "<b>Отключенных:</b> %d\n\n", st.Disabled)

	b.WriteString("<b>По типам периодов:</b>\n")
	for kind, count := range st.ByKind {
		name := kindNames[kind]
		if name == "" {
			name = string(kind)
		}
		fmt.Fprintf(&b, "  %s: %d\n", name, count)
	}

	if len(st.Recent) > 0 {
		b.WriteString("\n<b>Последние сообщения:</b>\n")
		for _, e := range st.Recent {
			chat := e.ChatTitle
			if chat == "" {
				chat = fmt.Sprintf("%d", e.ChatID)
			}
			fmt.Fprintf(&b, "\n%s ID%d - %s - %s",
				statusIcon(e.Enabled), e.ID, periodShort(e.Period), tgui.Esc(chat))
		}
	}
	return b.String()
}

const helpText = `📅 <b>Регулярные сообщения</b>

<b>Создание:</b>
<code>.regmes период, [время], дата, сообщение</code>

<b>Абсолютные периоды (требуют время):</b>
• д - ежедневно
• н - еженедельно
• м - ежемесячно
• г - ежегодно
• день недели (Понедельник, Вторник...)
• месяц (Январь, Февраль...)
• несколько недель (2 недели, 3 недели...)

<b>Интервальные периоды (время не требуется):</b>
• 2ч15м - каждые 2 часа 15 минут
• 30м - каждые 30 минут
• 1д - каждый день

<b>Примеры:</b>
<code>.regmes Суббота, 20:15, 27.12, Собрание!</code>
<code>.regmes д, 09:00, 01.01, Доброе утро!</code>
<code>.regmes 2ч15м, 27.12, Напоминание!</code>
<code>.regmes 30м, , Постоянное напоминание</code>

<b>Управление:</b>
<code>.rmcfg</code> - меню, <code>.rmstats</code> - статистика,
<code>.rmcheck</code> - проверка, <code>.rmrecalc</code> - пересчет,
<code>.rmclear</code> - удалить все`
