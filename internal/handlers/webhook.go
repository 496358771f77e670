package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/ytakahashi/todo-api/internal/models"
	"github.com/ytakahashi/todo-api/internal/services"
)

// Replier is the part of the LINE messaging client the webhook needs.
type Replier interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
}

// WebhookHandler lets LINE users drive the same todo repository through chat
// commands.
type WebhookHandler struct {
	bot           Replier
	repo          services.TodoRepository
	channelSecret string
	logger        *log.Logger
}

func NewWebhookHandler(bot Replier, repo services.TodoRepository, channelSecret string, logger *log.Logger) *WebhookHandler {
	return &WebhookHandler{
		bot:           bot,
		repo:          repo,
		channelSecret: channelSecret,
		logger:        logger,
	}
}

func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request())
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("invalid webhook signature")
			return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
		}
		return models.Internal(fmt.Errorf("parse webhook: %w", err))
	}

	ctx := c.Request().Context()
	for _, event := range cb.Events {
		e, ok := event.(webhook.MessageEvent)
		if !ok {
			continue
		}
		message, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			continue
		}
		if err := h.handleTextMessage(ctx, e.ReplyToken, message.Text); err != nil {
			h.logger.Error("error handling text message", "err", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type commandKind int

const (
	commandUnknown commandKind = iota
	commandAdd
	commandList
	commandDone
	commandDelete
	commandHelp
)

type command struct {
	kind  commandKind
	title string
	id    uint64
}

var commandWords = map[string]commandKind{
	"add":    commandAdd,
	"追加":     commandAdd,
	"list":   commandList,
	"一覧":     commandList,
	"done":   commandDone,
	"完了":     commandDone,
	"delete": commandDelete,
	"削除":     commandDelete,
	"help":   commandHelp,
	"ヘルプ":    commandHelp,
}

var errBadID = errors.New("id must be a positive number")

// parseCommand understands "<word> [arg]" with an optional leading "todo"
// (any case). Unknown text yields commandUnknown and no error.
func parseCommand(text string) (command, error) {
	rest := strings.TrimSpace(text)
	if len(rest) >= 4 && strings.EqualFold(rest[:4], "todo") {
		rest = strings.TrimSpace(rest[4:])
	}

	word, arg := rest, ""
	if i := strings.IndexFunc(rest, isSpace); i >= 0 {
		word, arg = rest[:i], strings.TrimSpace(rest[i:])
	}

	kind, ok := commandWords[strings.ToLower(word)]
	if !ok {
		return command{}, nil
	}

	cmd := command{kind: kind}
	switch kind {
	case commandAdd:
		cmd.title = strings.Trim(arg, `"“”`)
	case commandDone, commandDelete:
		id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
		if err != nil || id == 0 {
			return cmd, errBadID
		}
		cmd.id = id
	}
	return cmd, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '　'
}

func (h *WebhookHandler) handleTextMessage(ctx context.Context, replyToken, text string) error {
	h.logger.Debug("received text", "text", text)

	cmd, err := parseCommand(text)
	if err != nil {
		return h.replyMessage(replyToken, "TODOの番号を指定してください。\n例: 完了 3")
	}

	switch cmd.kind {
	case commandAdd:
		return h.addTodo(ctx, replyToken, cmd.title)
	case commandList:
		return h.showTodoList(ctx, replyToken)
	case commandDone:
		return h.completeTodo(ctx, replyToken, cmd.id)
	case commandDelete:
		return h.deleteTodo(ctx, replyToken, cmd.id)
	case commandHelp:
		return h.replyMessage(replyToken, helpText)
	}

	// 認識できないメッセージには応答しない
	return nil
}

func (h *WebhookHandler) addTodo(ctx context.Context, replyToken, title string) error {
	todo, err := h.repo.Create(ctx, models.CreateInput{Title: title})
	if err != nil {
		return h.replyError(replyToken, err)
	}
	return h.replyMessage(replyToken, fmt.Sprintf("✅ TODO「%s」を追加しました。（#%d）", todo.Title, todo.ID))
}

func (h *WebhookHandler) showTodoList(ctx context.Context, replyToken string) error {
	todos, err := h.repo.List(ctx)
	if err != nil {
		return h.replyError(replyToken, err)
	}
	if len(todos) == 0 {
		return h.replyMessage(replyToken, "TODOはありません。")
	}

	lines := make([]string, 0, len(todos))
	for _, todo := range todos {
		mark := " "
		if todo.Done {
			mark = "x"
		}
		lines = append(lines, fmt.Sprintf("#%d [%s] %s", todo.ID, mark, todo.Title))
	}
	return h.replyMessage(replyToken, fmt.Sprintf("📝 TODO一覧 (%d件)\n\n%s", len(todos), strings.Join(lines, "\n")))
}

func (h *WebhookHandler) completeTodo(ctx context.Context, replyToken string, id uint64) error {
	done := true
	todo, err := h.repo.Update(ctx, id, models.UpdateInput{Done: &done})
	if err != nil {
		return h.replyError(replyToken, err)
	}
	return h.replyMessage(replyToken, fmt.Sprintf("🎉 TODO「%s」を完了しました！", todo.Title))
}

func (h *WebhookHandler) deleteTodo(ctx context.Context, replyToken string, id uint64) error {
	if err := h.repo.Delete(ctx, id); err != nil {
		return h.replyError(replyToken, err)
	}
	return h.replyMessage(replyToken, fmt.Sprintf("🗑️ TODO #%d を削除しました。", id))
}

// 内部エラーの詳細はユーザーに返さずログにだけ残す
func (h *WebhookHandler) replyError(replyToken string, err error) error {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return h.replyMessage(replyToken, verr.Message)
	case errors.Is(err, models.ErrNotFound):
		return h.replyMessage(replyToken, "指定されたTODOが見つかりませんでした。")
	default:
		h.logger.Error("repository failure", "err", err)
		return h.replyMessage(replyToken, "処理に失敗しました。もう一度お試しください。")
	}
}

const helpText = `📝 TODO Bot 使い方

🆕 TODOを追加:
・追加 <タイトル>
・add <タイトル>

📋 TODO一覧を表示:
・一覧 / list

✅ TODOを完了:
・完了 <番号> / done <番号>

🗑️ TODOを削除:
・削除 <番号> / delete <番号>

❓ ヘルプ表示:
・ヘルプ / help

💡 先頭の「TODO」は省略できます（大文字小文字は区別しません）`

func (h *WebhookHandler) replyMessage(replyToken, text string) error {
	_, err := h.bot.ReplyMessage(
		&messaging_api.ReplyMessageRequest{
			ReplyToken: replyToken,
			Messages: []messaging_api.MessageInterface{
				&messaging_api.TextMessage{Text: text},
			},
		},
	)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
