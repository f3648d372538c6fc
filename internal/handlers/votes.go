package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/service"
)

// ---------------------------------------------------------------------------
// VoteHandler – /yes <id> [note], /no <id> [note] and the inline buttons
// ---------------------------------------------------------------------------

// VoteHandler records approve or reject votes on withdrawal requests.
type VoteHandler struct {
	svc     *service.Service
	logger  *logrus.Logger
	approve bool
}

// NewVoteHandler creates a VoteHandler for /yes (approve) or /no.
func NewVoteHandler(svc *service.Service, logger *logrus.Logger, approve bool) *VoteHandler {
	return &VoteHandler{svc: svc, logger: logger, approve: approve}
}

// NewVoteCallbackHandler creates the handler for the inline vote buttons,
// where the decision travels in the callback data.
func NewVoteCallbackHandler(svc *service.Service, logger *logrus.Logger) *VoteHandler {
	return &VoteHandler{svc: svc, logger: logger}
}

// Handle processes the /yes and /no commands.
func (h *VoteHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Please provide a request id.\nUsage: `/yes 12` or `/no 12 too expensive`")
		return nil
	}
	id, err := parseID(args[0])
	if err != nil {
		reply(bot, message.Chat.ID, "❌ "+err.Error())
		return nil
	}

	txn, err := h.vote(context.Background(), message.Chat, message.From, id, h.approve, strings.Join(args[1:], " "))
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	if txn.Status == models.TransactionStatusPending {
		reply(bot, message.Chat.ID, fmt.Sprintf("🗳 Vote counted on *#%d*, still waiting for others", txn.ID))
	}
	return nil
}

// HandleCallback processes a press on an approve or reject button.
func (h *VoteHandler) HandleCallback(bot *tgbotapi.BotAPI, query *tgbotapi.CallbackQuery, args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("malformed vote callback %q", query.Data)
	}
	id, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	approve := args[1] == "yes"

	txn, err := h.vote(context.Background(), query.Message.Chat, query.From, id, approve, "")
	if err != nil {
		if text := userMessage(err); text != "" {
			return text, nil
		}
		return "", err
	}

	if txn.Status != models.TransactionStatusPending {
		return fmt.Sprintf("Vote counted, request %s", txn.Status), nil
	}
	return "🗳 Vote counted", nil
}

func (h *VoteHandler) vote(ctx context.Context, chat *tgbotapi.Chat, from *tgbotapi.User, id int64, approve bool, note string) (*models.FundTransaction, error) {
	session, err := enterChat(ctx, h.svc, chat, from)
	if err != nil {
		return nil, err
	}

	txn, err := h.svc.SubmitVote(ctx, id, session.user.ID, approve, note)
	if err != nil {
		return nil, err
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id":        chat.ID,
		"user_id":        session.user.ID,
		"transaction_id": id,
		"approve":        approve,
	}).Info("Vote via Telegram")

	return txn, nil
}

// ---------------------------------------------------------------------------
// CancelHandler – /cancel <id>
// ---------------------------------------------------------------------------

// CancelHandler lets the initiator withdraw a pending request.
type CancelHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewCancelHandler creates a new CancelHandler.
func NewCancelHandler(svc *service.Service, logger *logrus.Logger) *CancelHandler {
	return &CancelHandler{svc: svc, logger: logger}
}

// Handle processes the /cancel command.
func (h *CancelHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Please provide a request id.\nUsage: `/cancel 12`")
		return nil
	}
	id, err := parseID(args[0])
	if err != nil {
		reply(bot, message.Chat.ID, "❌ "+err.Error())
		return nil
	}

	ctx := context.Background()
	session, err := enterChat(ctx, h.svc, message.Chat, message.From)
	if err != nil {
		return err
	}

	if _, err := h.svc.CancelWithdrawal(ctx, id, session.user.ID); err != nil {
		return replyError(bot, message.Chat.ID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// OverrideHandler – /approve <id> [note], /reject <id> [note]
// ---------------------------------------------------------------------------

// OverrideHandler lets a group admin decide a request without a vote.
type OverrideHandler struct {
	svc     *service.Service
	logger  *logrus.Logger
	approve bool
}

// NewOverrideHandler creates an OverrideHandler for /approve or /reject.
func NewOverrideHandler(svc *service.Service, logger *logrus.Logger, approve bool) *OverrideHandler {
	return &OverrideHandler{svc: svc, logger: logger, approve: approve}
}

// Handle processes the /approve and /reject commands.
func (h *OverrideHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Please provide a request id.\nUsage: `/approve 12 paid the garage`")
		return nil
	}
	id, err := parseID(args[0])
	if err != nil {
		reply(bot, message.Chat.ID, "❌ "+err.Error())
		return nil
	}

	ctx := context.Background()
	session, err := enterChat(ctx, h.svc, message.Chat, message.From)
	if err != nil {
		return err
	}

	note := strings.Join(args[1:], " ")
	decide := h.svc.RejectWithdrawal
	if h.approve {
		decide = h.svc.ApproveWithdrawal
	}

	if _, err := decide(ctx, id, session.user.ID, note); err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id":        message.Chat.ID,
		"admin_id":       session.user.ID,
		"transaction_id": id,
		"approve":        h.approve,
	}).Info("Admin override via Telegram")

	return nil
}
