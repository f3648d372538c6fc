package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/service"
)

// StartHandler handles the /start command
type StartHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewStartHandler creates a new start command handler
func NewStartHandler(svc *service.Service, logger *logrus.Logger) *StartHandler {
	return &StartHandler{
		svc:    svc,
		logger: logger,
	}
}

// Handle processes the /start command and enrols the sender in the chat's group
func (h *StartHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	session, err := enterChat(context.Background(), h.svc, message.Chat, message.From)
	if err != nil {
		return err
	}

	role := "a member"
	if session.member.Role == models.MemberRoleAdmin {
		role = "the admin"
	}

	welcomeText := fmt.Sprintf(`
💰 *Welcome to FundboT!*

I keep the shared fund of this group. Deposits land immediately, withdrawals
need the group's approval.

You are %s of this fund.

*Getting started:*
• /deposit <amount> [purpose] - Put money in
• /withdraw <amount> [purpose] - Ask the group for money
• /fund - Show the balance
• /help - Show all commands
	`, role)

	msg := tgbotapi.NewMessage(message.Chat.ID, welcomeText)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err = bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
		"role":    session.member.Role,
	}).Info("Sent start message")

	return nil
}
