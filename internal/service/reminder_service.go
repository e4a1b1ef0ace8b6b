package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"task-market/internal/model"
	"task-market/internal/repository"
)

// ReminderService builds the periodic digest sent to linked users.
type ReminderService struct {
	taskRepo *repository.TaskRepository
}

func NewReminderService(taskRepo *repository.TaskRepository) *ReminderService {
	return &ReminderService{taskRepo: taskRepo}
}

// Summary lists the user's ongoing task, the tasks waiting for the user's
// confirmation and how many tasks are open in the marketplace.
func (s *ReminderService) Summary(ctx context.Context, user model.User, now time.Time) (string, error) {
	var ongoing []model.Task
	for _, status := range model.OngoingStatuses {
		tasks, err := s.taskRepo.ListByParty(ctx, user.ID, status)
		if err != nil {
			return "", err
		}
		ongoing = append(ongoing, tasks...)
	}

	awaiting, err := s.taskRepo.ListAwaitingConfirmation(ctx, user.ID)
	if err != nil {
		return "", err
	}

	openCount, err := s.taskRepo.CountByStatus(ctx, model.StatusOpen)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Task digest</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02 15:04")))

	builder.WriteString("🔥 <b>Your ongoing task</b>\n")
	if len(ongoing) == 0 {
		builder.WriteString("— none, you are free to post or accept a task\n")
	} else {
		for _, task := range ongoing {
			builder.WriteString(formatDigestTask(task, user.ID, now))
		}
	}

	builder.WriteString("\n✅ <b>Waiting for your confirmation</b>\n")
	if len(awaiting) == 0 {
		builder.WriteString("— nothing to confirm\n")
	} else {
		for _, task := range awaiting {
			builder.WriteString(fmt.Sprintf("• #%d %s — /confirm %d\n", task.ID, escapeTitle(task.Title), task.ID))
		}
	}

	builder.WriteString(fmt.Sprintf("\n📂 Open tasks in the marketplace: <b>%d</b>", openCount))
	return strings.TrimSpace(builder.String()), nil
}

func formatDigestTask(task model.Task, userID uint, now time.Time) string {
	var sb strings.Builder

	role := roleOf(&task, userID)
	sb.WriteString(fmt.Sprintf("• #%d %s <i>(%s, %s)</i>", task.ID, escapeTitle(task.Title), role, task.Status))

	if task.Category != "" {
		sb.WriteString(fmt.Sprintf("\n   🏷 %s", html.EscapeString(model.CategoryDisplayName(task.Category))))
	}

	idle := now.Sub(task.UpdatedAt)
	if idle >= 24*time.Hour {
		sb.WriteString(fmt.Sprintf("\n   ⏳ no progress for %d days", int(idle.Hours()/24)))
	}

	if task.Status == model.StatusPendingVerification && requestedBy(&task, userID) {
		sb.WriteString("\n   🕊 waiting for the other party")
	}

	sb.WriteByte('\n')
	return sb.String()
}

func escapeTitle(title string) string {
	return html.EscapeString(strings.TrimSpace(title))
}
