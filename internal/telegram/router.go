package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// CallbackSeparator splits the fields of inline keyboard callback data
const CallbackSeparator = ":"

// Router handles message routing and command parsing
type Router struct {
	logger    *logrus.Logger
	handlers  map[string]CommandHandler
	callbacks map[string]CallbackHandler
}

// CommandHandler defines the interface for command handlers
type CommandHandler interface {
	Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error
}

// CallbackHandler handles inline keyboard presses. The returned text is shown
// to the user as the callback answer.
type CallbackHandler interface {
	HandleCallback(bot *tgbotapi.BotAPI, query *tgbotapi.CallbackQuery, args []string) (string, error)
}

// NewRouter creates a new message router
func NewRouter(logger *logrus.Logger) *Router {
	return &Router{
		logger:    logger,
		handlers:  make(map[string]CommandHandler),
		callbacks: make(map[string]CallbackHandler),
	}
}

// RegisterCommand registers a command handler
func (r *Router) RegisterCommand(command string, handler CommandHandler) {
	r.handlers[command] = handler
	r.logger.Debugf("Registered command: %s", command)
}

// RegisterCallback registers a handler for callback data starting with prefix
func (r *Router) RegisterCallback(prefix string, handler CallbackHandler) {
	r.callbacks[prefix] = handler
	r.logger.Debugf("Registered callback: %s", prefix)
}

// CallbackData builds callback data that routes to the handler registered
// for prefix.
func CallbackData(prefix string, args ...string) string {
	return strings.Join(append([]string{prefix}, args...), CallbackSeparator)
}

// HandleMessage handles incoming messages
func (r *Router) HandleMessage(bot *tgbotapi.BotAPI, message *tgbotapi.Message) {
	// Channel posts have no sender
	if message.From == nil || message.Text == "" || !message.IsCommand() {
		return
	}

	r.logger.WithFields(logrus.Fields{
		"chat_id":    message.Chat.ID,
		"user_id":    message.From.ID,
		"username":   message.From.UserName,
		"message_id": message.MessageID,
		"text":       message.Text,
	}).Info("Received command")

	command := message.Command()
	args := strings.Fields(message.CommandArguments())

	handler, exists := r.handlers[command]
	if !exists {
		r.logger.WithFields(logrus.Fields{
			"command": command,
			"chat_id": message.Chat.ID,
			"user_id": message.From.ID,
		}).Warn("Unknown command")

		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "❓ Unknown command. Use /help to see available commands."))
		return
	}

	if err := handler.Handle(bot, message, args); err != nil {
		r.logger.WithFields(logrus.Fields{
			"command": command,
			"chat_id": message.Chat.ID,
			"user_id": message.From.ID,
			"error":   err,
		}).Error("Command handler failed")

		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "❌ An error occurred while processing your command. Please try again."))
	}
}

// HandleCallbackQuery routes inline keyboard presses by the prefix of their data
func (r *Router) HandleCallbackQuery(bot *tgbotapi.BotAPI, callbackQuery *tgbotapi.CallbackQuery) {
	r.logger.WithFields(logrus.Fields{
		"callback_id": callbackQuery.ID,
		"user_id":     callbackQuery.From.ID,
		"data":        callbackQuery.Data,
	}).Info("Received callback query")

	answer := ""
	parts := strings.Split(callbackQuery.Data, CallbackSeparator)
	if handler, ok := r.callbacks[parts[0]]; ok && callbackQuery.Message != nil {
		text, err := handler.HandleCallback(bot, callbackQuery, parts[1:])
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"callback_id": callbackQuery.ID,
				"data":        callbackQuery.Data,
				"error":       err,
			}).Error("Callback handler failed")
			text = "❌ Something went wrong"
		}
		answer = text
	} else {
		r.logger.WithField("data", callbackQuery.Data).Warn("Unknown callback")
	}

	// Answer the callback query to remove loading state
	if _, err := bot.Request(tgbotapi.NewCallback(callbackQuery.ID, answer)); err != nil {
		r.logger.WithError(err).Warn("Failed to answer callback query")
	}
}
