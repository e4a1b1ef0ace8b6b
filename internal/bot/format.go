package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-market/internal/model"
)

var notificationIcons = map[model.EventKind]string{
	model.EventTaskAdded:         "🆕",
	model.EventTaskAccepted:      "🤝",
	model.EventTaskDoneRequested: "🕊",
	model.EventTaskDoneConfirmed: "🎉",
}

func formatNotification(n model.Notification) string {
	icon, ok := notificationIcons[n.Kind]
	if !ok {
		icon = "🔔"
	}
	text := fmt.Sprintf("%s %s", icon, escape(n.Message))
	switch n.Kind {
	case model.EventTaskAdded:
		text += fmt.Sprintf("\n/accept %d", n.TaskID)
	case model.EventTaskDoneRequested:
		text += fmt.Sprintf("\n/confirm %d", n.TaskID)
	}
	return text
}

func formatTask(t model.Task) string {
	var sb strings.Builder
	marker := "•"
	if t.Status.Ongoing() {
		marker = "🔥"
	}
	sb.WriteString(fmt.Sprintf("%s <b>#%d</b> %s <i>(%s)</i>\n", marker, t.ID, escape(t.Title), t.Status))
	if t.Description != "" {
		sb.WriteString(fmt.Sprintf("   %s\n", escape(shortTitle(t.Description, 80))))
	}
	if t.Category != "" {
		sb.WriteString(fmt.Sprintf("   🏷 %s\n", escape(model.CategoryDisplayName(t.Category))))
	}
	return sb.String()
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimPrefix(data, prefix)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if value == 0 {
		return 0, fmt.Errorf("task id must be positive")
	}
	return uint(value), nil
}

func parseTaskArg(args string) (uint, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, fmt.Errorf("missing task id")
	}
	return parseTaskID(strings.TrimPrefix(fields[0], "#"), "")
}

func shortTitle(title string, maxLen int) string {
	clean := strings.Join(strings.Fields(title), " ")
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// categoryKeyboard lays the catalogue out three buttons per row.
func categoryKeyboard() tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	var row []tgbotapi.KeyboardButton
	for _, category := range model.KnownCategories {
		row = append(row, tgbotapi.NewKeyboardButton(model.CategoryDisplayName(category)))
		if len(row) == 3 {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(row...))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)))

	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "confirm" || value == "yes"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "cancel" || value == "no"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel input"
}

func escape(s string) string {
	return html.EscapeString(s)
}
