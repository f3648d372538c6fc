package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/service"
	"github.com/Kerhoff/FundboT/internal/telegram"
)

// chatSession is the sender and chat of a command resolved to fund entities
type chatSession struct {
	user   *models.User
	group  *models.Group
	member *models.GroupMember
}

// enterChat registers the sender and the chat and makes the sender a member.
func enterChat(ctx context.Context, svc *service.Service, chat *tgbotapi.Chat, from *tgbotapi.User) (*chatSession, error) {
	user, err := svc.EnsureUser(ctx, from.ID, from.UserName, from.FirstName, from.LastName)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	title := chat.Title
	if title == "" {
		title = from.FirstName + "'s fund"
	}
	group, err := svc.EnsureGroup(ctx, chat.ID, title)
	if err != nil {
		return nil, fmt.Errorf("ensure group: %w", err)
	}

	member, err := svc.EnsureGroupMember(ctx, group.ID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("ensure group member: %w", err)
	}

	return &chatSession{user: user, group: group, member: member}, nil
}

// parseAmount parses a positive decimal such as 1500 or 1500.50
func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

// parseID accepts a transaction id with or without a leading '#'
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a valid id", raw)
	}
	return id, nil
}

// userMessage turns expected service failures into a chat reply. Unexpected
// failures return "" and are reported by the router.
func userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		return "❌ Amount must be positive with at most two decimals"
	case errors.Is(err, service.ErrInsufficientFunds):
		return "❌ The fund does not hold enough money for that"
	case errors.Is(err, service.ErrNotFound):
		return "❌ No such transaction"
	case errors.Is(err, service.ErrDuplicateVote):
		return "ℹ️ You have already voted on this request"
	case errors.Is(err, service.ErrNotAMember):
		return "❌ You cannot vote on this request"
	case errors.Is(err, service.ErrForbidden):
		return "🔒 You are not allowed to do that"
	case errors.Is(err, service.ErrInvalidState):
		return "ℹ️ This request has already been decided"
	case errors.Is(err, service.ErrMembershipUnavailable):
		return "⏳ Membership is unavailable right now, try again shortly"
	default:
		return ""
	}
}

// reply sends a Markdown message to chatID
func reply(bot *tgbotapi.BotAPI, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	bot.Send(msg)
}

// replyError answers expected failures in chat and returns the rest
func replyError(bot *tgbotapi.BotAPI, chatID int64, err error) error {
	if text := userMessage(err); text != "" {
		reply(bot, chatID, text)
		return nil
	}
	return err
}

func statusEmoji(status models.TransactionStatus) string {
	switch status {
	case models.TransactionStatusPending:
		return "⏳"
	case models.TransactionStatusCompleted:
		return "✅"
	case models.TransactionStatusRejected:
		return "🚫"
	case models.TransactionStatusCancelled:
		return "↩️"
	default:
		return "•"
	}
}

// formatTransaction renders one ledger line, e.g. "✅ #3 ➖ 250.00 tyres"
func formatTransaction(t *models.FundTransaction) string {
	sign := "➕"
	if t.Type == models.TransactionTypeWithdraw {
		sign = "➖"
	}

	line := fmt.Sprintf("%s *#%d* %s %s", statusEmoji(t.Status), t.ID, sign, t.Amount.StringFixed(2))
	if t.Purpose != "" {
		line += " " + telegram.Escape(t.Purpose)
	}
	return line
}
