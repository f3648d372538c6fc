package handlers

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// HelpHandler handles the /help command
type HelpHandler struct {
	logger *logrus.Logger
}

func NewHelpHandler(logger *logrus.Logger) *HelpHandler {
	return &HelpHandler{logger: logger}
}

func (h *HelpHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	helpText := `📚 *FundboT Help*

*Fund:*
• /fund - Balance and totals
• /deposit <amount> [purpose] - Add money
• /history - Last transactions

*Withdrawals:*
• /withdraw <amount> [purpose] - Request money, the group votes
• /pending - Open requests
• /yes <id> [note] - Approve a request
• /no <id> [note] - Reject a request
• /cancel <id> - Cancel your own request

*Admins:*
• /approve <id> [note] - Approve without a vote
• /reject <id> [note] - Reject without a vote

_A request passes once enough members approve (51% by default). Money leaves the fund only when it is approved._`

	msg := tgbotapi.NewMessage(message.Chat.ID, helpText)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send help message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
	}).Info("Sent help message")

	return nil
}
