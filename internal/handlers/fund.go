package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/FundboT/internal/repository"
	"github.com/Kerhoff/FundboT/internal/service"
	"github.com/Kerhoff/FundboT/internal/telegram"
)

const historyLimit = 10

// ---------------------------------------------------------------------------
// FundHandler – /fund
// ---------------------------------------------------------------------------

// FundHandler handles the /fund command showing the fund summary.
type FundHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewFundHandler creates a new FundHandler.
func NewFundHandler(svc *service.Service, logger *logrus.Logger) *FundHandler {
	return &FundHandler{svc: svc, logger: logger}
}

// Handle processes the /fund command.
func (h *FundHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()

	session, err := enterChat(ctx, h.svc, message.Chat, message.From)
	if err != nil {
		return err
	}

	fund, err := h.svc.CreateFund(ctx, session.group.ID)
	if err != nil {
		return fmt.Errorf("get fund: %w", err)
	}
	summary, err := h.svc.Summary(ctx, fund.ID)
	if err != nil {
		return fmt.Errorf("fund summary: %w", err)
	}

	text := fmt.Sprintf("💰 *%s fund*\n\n"+
		"Balance: *%s*\n"+
		"Contributed: %s\n"+
		"Withdrawn: %s\n"+
		"Open requests: %d",
		telegram.Escape(session.group.Name),
		summary.CurrentBalance.StringFixed(2),
		summary.TotalContributed.StringFixed(2),
		summary.TotalWithdraw.StringFixed(2),
		summary.PendingCount,
	)
	reply(bot, message.Chat.ID, text)
	return nil
}

// ---------------------------------------------------------------------------
// DepositHandler – /deposit <amount> [purpose]
// ---------------------------------------------------------------------------

// DepositHandler handles the /deposit command.
type DepositHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewDepositHandler creates a new DepositHandler.
func NewDepositHandler(svc *service.Service, logger *logrus.Logger) *DepositHandler {
	return &DepositHandler{svc: svc, logger: logger}
}

// Handle processes the /deposit command.
func (h *DepositHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Please provide an amount.\nUsage: `/deposit 1500 monthly dues`")
		return nil
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		reply(bot, message.Chat.ID, "❌ "+err.Error())
		return nil
	}

	ctx := context.Background()
	session, err := enterChat(ctx, h.svc, message.Chat, message.From)
	if err != nil {
		return err
	}

	fund, err := h.svc.CreateFund(ctx, session.group.ID)
	if err != nil {
		return fmt.Errorf("get fund: %w", err)
	}

	txn, err := h.svc.DepositToFund(ctx, fund.ID, session.user.ID, amount, strings.Join(args[1:], " "))
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	reply(bot, message.Chat.ID, fmt.Sprintf("✅ *Deposit recorded*\n\n%s", formatTransaction(txn)))

	h.logger.WithFields(logrus.Fields{
		"chat_id":        message.Chat.ID,
		"user_id":        session.user.ID,
		"transaction_id": txn.ID,
	}).Info("Deposit via Telegram")

	return nil
}

// ---------------------------------------------------------------------------
// WithdrawHandler – /withdraw <amount> [purpose]
// ---------------------------------------------------------------------------

// WithdrawHandler handles the /withdraw command that opens a vote.
type WithdrawHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewWithdrawHandler creates a new WithdrawHandler.
func NewWithdrawHandler(svc *service.Service, logger *logrus.Logger) *WithdrawHandler {
	return &WithdrawHandler{svc: svc, logger: logger}
}

// Handle processes the /withdraw command. The request itself is announced by
// the notifier with voting buttons.
func (h *WithdrawHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Please provide an amount.\nUsage: `/withdraw 300 new tyres`")
		return nil
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		reply(bot, message.Chat.ID, "❌ "+err.Error())
		return nil
	}

	ctx := context.Background()
	session, err := enterChat(ctx, h.svc, message.Chat, message.From)
	if err != nil {
		return err
	}

	fund, err := h.svc.CreateFund(ctx, session.group.ID)
	if err != nil {
		return fmt.Errorf("get fund: %w", err)
	}

	txn, err := h.svc.RequestWithdrawal(ctx, fund.ID, session.user.ID, amount, strings.Join(args[1:], " "))
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id":        message.Chat.ID,
		"user_id":        session.user.ID,
		"transaction_id": txn.ID,
	}).Info("Withdrawal requested via Telegram")

	return nil
}

// ---------------------------------------------------------------------------
// PendingHandler – /pending
// ---------------------------------------------------------------------------

// PendingHandler handles the /pending command listing open requests.
type PendingHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewPendingHandler creates a new PendingHandler.
func NewPendingHandler(svc *service.Service, logger *logrus.Logger) *PendingHandler {
	return &PendingHandler{svc: svc, logger: logger}
}

// Handle processes the /pending command.
func (h *PendingHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()

	session, err := enterChat(ctx, h.svc, message.Chat, message.From)
	if err != nil {
		return err
	}
	fund, err := h.svc.CreateFund(ctx, session.group.ID)
	if err != nil {
		return fmt.Errorf("get fund: %w", err)
	}

	pending, err := h.svc.ListPending(ctx, fund.ID)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}

	if len(pending) == 0 {
		reply(bot, message.Chat.ID, "📭 *No open withdrawal requests*")
		return nil
	}

	var sb strings.Builder
	sb.WriteString("⏳ *Open withdrawal requests*\n\n")
	for _, t := range pending {
		sb.WriteString(formatTransaction(t))
		if requester, err := h.svc.Users.GetByID(ctx, t.UserID); err == nil && requester != nil {
			sb.WriteString(" by " + telegram.Escape(requester.DisplayName()))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nVote with `/yes <id>` or `/no <id>`")

	reply(bot, message.Chat.ID, sb.String())
	return nil
}

// ---------------------------------------------------------------------------
// HistoryHandler – /history
// ---------------------------------------------------------------------------

// HistoryHandler handles the /history command with the latest transactions.
type HistoryHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(svc *service.Service, logger *logrus.Logger) *HistoryHandler {
	return &HistoryHandler{svc: svc, logger: logger}
}

// Handle processes the /history command.
func (h *HistoryHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()

	session, err := enterChat(ctx, h.svc, message.Chat, message.From)
	if err != nil {
		return err
	}
	fund, err := h.svc.CreateFund(ctx, session.group.ID)
	if err != nil {
		return fmt.Errorf("get fund: %w", err)
	}

	txns, err := h.svc.ListTransactions(ctx, fund.ID, repository.TransactionFilters{Limit: historyLimit})
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	if len(txns) == 0 {
		reply(bot, message.Chat.ID, "📒 *No transactions yet*\n\nStart with `/deposit <amount>`")
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📒 *Last %d transactions*\n\n", len(txns)))
	for _, t := range txns {
		sb.WriteString(formatTransaction(t))
		sb.WriteString("\n")
	}

	reply(bot, message.Chat.ID, sb.String())
	return nil
}
