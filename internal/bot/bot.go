package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-market/internal/model"
	"task-market/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageCategory
)

const (
	cbAcceptPrefix  = "accept:"
	cbDonePrefix    = "done:"
	cbConfirmPrefix = "confirm:"
)

const (
	btnSkip         = "⏭️ Skip"
	btnConfirm      = "✅ Confirm"
	btnCancel       = "↩️ Cancel"
	btnCancelDialog = "⏪ Cancel input"
)

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

type pendingDelete struct {
	taskID uint
}

// sender is the part of the Telegram API the bot writes through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type directory interface {
	Resolve(ctx context.Context, id uint) (*model.User, error)
	LinkTelegram(ctx context.Context, telegramID int64, username string) (*model.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	ListLinked(ctx context.Context) ([]model.User, error)
}

type lifecycle interface {
	Create(ctx context.Context, ownerID uint, input service.TaskInput) (*model.Task, error)
	Accept(ctx context.Context, taskID, userID uint) (*model.Task, error)
	RequestMarkDone(ctx context.Context, taskID, userID uint) (*model.Task, error)
	ConfirmDone(ctx context.Context, taskID, userID uint) (*model.Task, error)
	Delete(ctx context.Context, taskID, userID uint) error
	DeactivateAs(ctx context.Context, taskID, userID uint) (bool, error)
	Get(ctx context.Context, taskID uint) (*model.Task, error)
	ListByStatus(ctx context.Context, status model.TaskStatus) ([]model.Task, error)
	ListOwnedBy(ctx context.Context, userID uint) ([]model.Task, error)
	ListAcceptedBy(ctx context.Context, userID uint) ([]model.Task, error)
}

type summarizer interface {
	Summary(ctx context.Context, user model.User, now time.Time) (string, error)
}

// receipts remembers which users an event already reached.
type receipts interface {
	Delivered(ctx context.Context, eventID string, userID uint) (bool, error)
	RecordDelivery(ctx context.Context, eventID string, userID uint) error
}

// Bot is the Telegram surface of the marketplace and a NotificationSink.
type Bot struct {
	api       sender
	updates   func() tgbotapi.UpdatesChannel
	stop      func()
	users     directory
	tasks     lifecycle
	reminders summarizer
	receipts  receipts

	conversations map[int64]*conversationState
	deletes       map[int64]pendingDelete
	mu            sync.Mutex
}

func New(token string, users directory, tasks lifecycle, reminders summarizer, sent receipts) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	b := newBot(api, users, tasks, reminders, sent)
	b.updates = func() tgbotapi.UpdatesChannel {
		updateConfig := tgbotapi.NewUpdate(0)
		updateConfig.Timeout = 60
		return api.GetUpdatesChan(updateConfig)
	}
	b.stop = api.StopReceivingUpdates
	return b, nil
}

func newBot(api sender, users directory, tasks lifecycle, reminders summarizer, sent receipts) *Bot {
	return &Bot{
		api:           api,
		users:         users,
		tasks:         tasks,
		reminders:     reminders,
		receipts:      sent,
		conversations: make(map[int64]*conversationState),
		deletes:       make(map[int64]pendingDelete),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updates := b.updates()

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.stop()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

// Deliver pushes a notification to the addressed user, or to every linked
// user for broadcasts. Users without a Telegram account are skipped, and so
// are users the event already reached on an earlier attempt.
func (b *Bot) Deliver(ctx context.Context, n model.Notification) error {
	text := formatNotification(n)

	if n.Broadcast() {
		users, err := b.users.ListLinked(ctx)
		if err != nil {
			return err
		}
		var errs []error
		for _, u := range users {
			if err := b.deliverTo(ctx, n.EventID, u, text); err != nil {
				errs = append(errs, fmt.Errorf("user %d: %w", u.ID, err))
			}
		}
		return errors.Join(errs...)
	}

	user, err := b.users.Resolve(ctx, *n.UserID)
	if err != nil {
		return err
	}
	if user.TelegramID == nil {
		return nil
	}
	return b.deliverTo(ctx, n.EventID, *user, text)
}

func (b *Bot) deliverTo(ctx context.Context, eventID string, user model.User, text string) error {
	seen, err := b.receipts.Delivered(ctx, eventID, user.ID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	if err := b.sendText(*user.TelegramID, text); err != nil {
		return err
	}
	return b.receipts.RecordDelivery(ctx, eventID, user.ID)
}

// SendDigests sends the task digest to every linked user.
func (b *Bot) SendDigests(ctx context.Context) error {
	users, err := b.users.ListLinked(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := b.reminders.Summary(ctx, u, now)
		if err != nil {
			log.Printf("digest for user %d: %v", u.ID, err)
			continue
		}
		if err := b.sendText(*u.TelegramID, text); err != nil {
			log.Printf("send digest to user %d: %v", u.ID, err)
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearDelete(msg.From.ID)
		return b.sendTextWithRemove(msg.Chat.ID, "⏪ Input cancelled.")
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getDelete(msg.From.ID); ok {
		return b.handleDeleteResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Use /newtask to post a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "open":
		return b.handleOpen(ctx, msg)
	case "mytasks":
		return b.handleMyTasks(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "accept":
		return b.withTaskArg(ctx, msg, b.acceptTask)
	case "done":
		return b.withTaskArg(ctx, msg, b.requestDone)
	case "confirm":
		return b.withTaskArg(ctx, msg, b.confirmDone)
	case "hide":
		return b.withTaskArg(ctx, msg, b.hideTask)
	case "delete":
		return b.withTaskArg(ctx, msg, b.askDeleteConfirmation)
	case "digest":
		return b.handleDigest(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearDelete(msg.From.ID)
		return b.sendTextWithRemove(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /open — tasks waiting for a helper\n" +
	"• /mytasks — tasks you posted or accepted\n" +
	"• /newtask — post a task step by step\n" +
	"• /accept &lt;id&gt; — take an open task\n" +
	"• /done &lt;id&gt; — ask the other party to verify completion\n" +
	"• /confirm &lt;id&gt; — confirm the other party's request\n" +
	"• /hide &lt;id&gt; — hide a task from listings\n" +
	"• /delete &lt;id&gt; — delete a task you posted\n" +
	"• /digest — your task digest\n" +
	"• /cancel — cancel the current input"

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>Post a short task or help someone with theirs.</b>\n"+
		"Both sides confirm before a task counts as done.\n\n%s", escape(user.Username), helpText)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleOpen(ctx context.Context, msg *tgbotapi.Message) error {
	tasks, err := b.tasks.ListByStatus(ctx, model.StatusOpen)
	if err != nil {
		return err
	}
	visible := tasks[:0]
	for _, t := range tasks {
		if t.ActiveStatus == model.Active {
			visible = append(visible, t)
		}
	}
	if len(visible) == 0 {
		return b.sendText(msg.Chat.ID, "📂 No open tasks right now. Post one with /newtask.")
	}

	var sb strings.Builder
	sb.WriteString("📂 <b>Open tasks</b>\n\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range visible {
		sb.WriteString(formatTask(t))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🤝 Accept #%d %s", t.ID, shortTitle(t.Title, 24)), fmt.Sprintf("%s%d", cbAcceptPrefix, t.ID)),
		))
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, strings.TrimSpace(sb.String()), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleMyTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, user)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	posted, err := b.tasks.ListOwnedBy(ctx, user.ID)
	if err != nil {
		return err
	}
	accepted, err := b.tasks.ListAcceptedBy(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(posted) == 0 && len(accepted) == 0 {
		return b.sendText(chatID, "📋 You have no tasks yet. /open shows what others need help with.")
	}

	var sb strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton
	writeSection := func(title string, tasks []model.Task) {
		if len(tasks) == 0 {
			return
		}
		sb.WriteString(title)
		for _, t := range tasks {
			sb.WriteString(formatTask(t))
			if row := actionRow(t, user.ID); row != nil {
				rows = append(rows, row)
			}
		}
		sb.WriteByte('\n')
	}
	writeSection("📝 <b>Posted by you</b>\n", posted)
	writeSection("🤝 <b>Accepted by you</b>\n", accepted)

	text := strings.TrimSpace(sb.String())
	if len(rows) == 0 {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// actionRow offers the next handshake step the user can take on t.
func actionRow(t model.Task, userID uint) []tgbotapi.InlineKeyboardButton {
	switch t.Status {
	case model.StatusInProgress:
		return tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🏁 Mark #%d done", t.ID), fmt.Sprintf("%s%d", cbDonePrefix, t.ID)),
		)
	case model.StatusPendingVerification:
		if t.MarkedDoneBy != nil && *t.MarkedDoneBy == userID {
			return nil
		}
		return tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ Confirm #%d", t.ID), fmt.Sprintf("%s%d", cbConfirmPrefix, t.ID)),
		)
	default:
		return nil
	}
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	log.Printf("[info] start new task conversation user=%d", msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendText(msg.Chat.ID, "The title cannot be empty.")
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or press Skip).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageCategory
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Pick a category or type your own.", categoryKeyboard())
	case stageCategory:
		if text == "" || isSkipInput(text) {
			return b.sendWithReplyMarkup(msg.Chat.ID, "A category is required.", categoryKeyboard())
		}
		state.input.Category = text
		err := b.finishTaskCreation(ctx, msg.From, state.input, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Dialog reset. Try /newtask again.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TaskInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.tasks.Create(ctx, user.ID, input)
	if err != nil {
		return b.replyError(chatID, "Could not post the task", err)
	}

	log.Printf("[info] task created id=%d user=%d", task.ID, user.ID)

	var summary strings.Builder
	summary.WriteString("✅ <b>Task posted</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> %d\n", task.ID))
	summary.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(task.Title)))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(task.Description)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Category:</b> %s\n", escape(model.CategoryDisplayName(task.Category))))
	return b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String()))
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.users.FindByTelegramID(ctx, msg.From.ID)
	if errors.Is(err, service.ErrNotFound) {
		return b.sendText(msg.Chat.ID, "I do not know you yet. Send /start first.")
	}
	if err != nil {
		return err
	}
	text, err := b.reminders.Summary(ctx, *user, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the digest: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

type taskAction func(ctx context.Context, chatID int64, user *model.User, taskID uint) error

func (b *Bot) withTaskArg(ctx context.Context, msg *tgbotapi.Message, action taskAction) error {
	taskID, err := parseTaskArg(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Give the task ID: /%s 12", msg.Command()))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return action(ctx, msg.Chat.ID, user, taskID)
}

func (b *Bot) acceptTask(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	task, err := b.tasks.Accept(ctx, taskID, user.ID)
	if err != nil {
		return b.replyError(chatID, "Could not accept the task", err)
	}
	return b.sendText(chatID, fmt.Sprintf("🤝 You accepted #%d %s. Use /done %d when you are finished.", task.ID, escape(task.Title), task.ID))
}

func (b *Bot) requestDone(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	task, err := b.tasks.RequestMarkDone(ctx, taskID, user.ID)
	if err != nil {
		return b.replyError(chatID, "Could not mark the task", err)
	}
	if task.Status == model.StatusDone {
		return b.sendText(chatID, fmt.Sprintf("🎉 #%d %s is done.", task.ID, escape(task.Title)))
	}
	return b.sendText(chatID, fmt.Sprintf("🕊 #%d is waiting for the other party to confirm.", task.ID))
}

func (b *Bot) confirmDone(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	task, err := b.tasks.ConfirmDone(ctx, taskID, user.ID)
	if err != nil {
		return b.replyError(chatID, "Could not confirm the task", err)
	}
	return b.sendText(chatID, fmt.Sprintf("🎉 #%d %s is done.", task.ID, escape(task.Title)))
}

func (b *Bot) hideTask(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	found, err := b.tasks.DeactivateAs(ctx, taskID, user.ID)
	if err != nil {
		return b.replyError(chatID, "Could not hide the task", err)
	}
	if !found {
		return b.sendText(chatID, "Task not found.")
	}
	return b.sendText(chatID, fmt.Sprintf("🙈 #%d is hidden from listings.", taskID))
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	task, err := b.tasks.Get(ctx, taskID)
	if err != nil {
		return b.replyError(chatID, "Could not delete the task", err)
	}
	if task.OwnerID != user.ID {
		return b.sendText(chatID, "You can only delete tasks you posted.")
	}
	b.setDelete(*user.TelegramID, pendingDelete{taskID: taskID})
	return b.sendWithReplyMarkup(chatID, fmt.Sprintf("🗑 Delete #%d %s for good?", task.ID, escape(task.Title)), confirmKeyboard())
}

func (b *Bot) handleDeleteResponse(ctx context.Context, msg *tgbotapi.Message, req pendingDelete) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearDelete(msg.From.ID)
		user, err := b.ensureUser(ctx, msg.From)
		if err != nil {
			return err
		}
		if err := b.tasks.Delete(ctx, req.taskID, user.ID); err != nil {
			return b.replyError(msg.Chat.ID, "Could not delete the task", err)
		}
		return b.sendTextWithRemove(msg.Chat.ID, fmt.Sprintf("🗑 #%d deleted.", req.taskID))
	case isCancelInput(text):
		b.clearDelete(msg.From.ID)
		return b.sendTextWithRemove(msg.Chat.ID, "↩️ Nothing deleted.")
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Press Confirm or Cancel.", confirmKeyboard())
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("answer callback: %v", err)
	}

	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}
	chatID := cb.Message.Chat.ID

	var (
		action taskAction
		prefix string
	)
	switch {
	case strings.HasPrefix(cb.Data, cbAcceptPrefix):
		action, prefix = b.acceptTask, cbAcceptPrefix
	case strings.HasPrefix(cb.Data, cbDonePrefix):
		action, prefix = b.requestDone, cbDonePrefix
	case strings.HasPrefix(cb.Data, cbConfirmPrefix):
		action, prefix = b.confirmDone, cbConfirmPrefix
	default:
		return nil
	}

	taskID, err := parseTaskID(cb.Data, prefix)
	if err != nil {
		return b.sendText(chatID, "Could not read the task ID.")
	}
	return action(ctx, chatID, user, taskID)
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.users.LinkTelegram(ctx, from.ID, from.UserName)
}

// replyError shows lifecycle rejections to the user and returns other errors.
func (b *Bot) replyError(chatID int64, prefix string, err error) error {
	var lifecycleErr *service.Error
	if errors.As(err, &lifecycleErr) {
		return b.sendText(chatID, fmt.Sprintf("⚠️ %s: %s", prefix, escape(lifecycleErr.Reason)))
	}
	if sendErr := b.sendText(chatID, fmt.Sprintf("⚠️ %s, try again later.", prefix)); sendErr != nil {
		log.Printf("send error reply: %v", sendErr)
	}
	return err
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.conversations[userID]
	return ok && state.stage != stageNone
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) setDelete(userID int64, req pendingDelete) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes[userID] = req
}

func (b *Bot) getDelete(userID int64) (pendingDelete, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.deletes[userID]
	return req, ok
}

func (b *Bot) clearDelete(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.deletes, userID)
}
