package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

// VoteCallbackPrefix routes the approve and reject buttons of a withdrawal request
const VoteCallbackPrefix = "vote"

// Sender delivers messages to Telegram. *Bot satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts withdrawal lifecycle events to the chat bound to the
// fund's group. Groups without a chat are skipped silently.
type Notifier struct {
	sender Sender
	store  repository.Store
	logger *logrus.Logger
}

// NewNotifier creates a Notifier that reads groups, funds and users from store
func NewNotifier(sender Sender, store repository.Store, logger *logrus.Logger) *Notifier {
	return &Notifier{sender: sender, store: store, logger: logger}
}

// VoteKeyboard returns the inline approve and reject buttons for a withdrawal
func VoteKeyboard(transactionID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(transactionID, 10)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", CallbackData(VoteCallbackPrefix, id, "yes")),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", CallbackData(VoteCallbackPrefix, id, "no")),
		),
	)
}

// WithdrawalRequested announces a new pending withdrawal with voting buttons
func (n *Notifier) WithdrawalRequested(ctx context.Context, fund *models.GroupFund, txn *models.FundTransaction) {
	chatID, ok := n.chatFor(ctx, fund.GroupID)
	if !ok {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("💸 *Withdrawal request #%d*\n\n", txn.ID))
	sb.WriteString(fmt.Sprintf("%s asks for *%s* from the fund.\n", n.userName(ctx, txn.UserID), txn.Amount.StringFixed(2)))
	if txn.Purpose != "" {
		sb.WriteString(fmt.Sprintf("📝 %s\n", Escape(txn.Purpose)))
	}
	sb.WriteString(fmt.Sprintf("💰 Balance: %s\n\n", fund.CurrentBalance.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Vote with the buttons or `/yes %d`, `/no %d`", txn.ID, txn.ID))

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = VoteKeyboard(txn.ID)
	n.send(msg, txn.ID)
}

// TransactionSettled announces the terminal state of a withdrawal together
// with the balance after settlement.
func (n *Notifier) TransactionSettled(ctx context.Context, fund *models.GroupFund, txn *models.FundTransaction) {
	chatID, ok := n.chatFor(ctx, fund.GroupID)
	if !ok {
		return
	}

	// The caller may hold the balance from before the debit.
	if fresh, err := n.store.Funds().GetByID(ctx, fund.ID); err == nil && fresh != nil {
		fund = fresh
	}

	msg := tgbotapi.NewMessage(chatID, SettlementText(txn, fund, n.userName(ctx, txn.UserID)))
	msg.ParseMode = tgbotapi.ModeMarkdown
	n.send(msg, txn.ID)
}

// SettlementText renders the announcement for a resolved transaction
func SettlementText(txn *models.FundTransaction, fund *models.GroupFund, requester string) string {
	var header string
	switch txn.Status {
	case models.TransactionStatusCompleted:
		header = fmt.Sprintf("✅ *Withdrawal #%d completed*", txn.ID)
	case models.TransactionStatusRejected:
		header = fmt.Sprintf("🚫 *Withdrawal #%d rejected*", txn.ID)
	case models.TransactionStatusCancelled:
		header = fmt.Sprintf("↩️ *Withdrawal #%d cancelled*", txn.ID)
	default:
		header = fmt.Sprintf("⏳ *Withdrawal #%d is %s*", txn.ID, txn.Status)
	}

	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("%s, %s", requester, txn.Amount.StringFixed(2)))
	if txn.Purpose != "" {
		sb.WriteString(" for " + Escape(txn.Purpose))
	}
	sb.WriteString("\n")

	switch txn.Note {
	case "":
	case models.NoteInsufficientFundsAtSettlement:
		sb.WriteString("⚠️ The fund could no longer cover it\n")
	default:
		sb.WriteString(fmt.Sprintf("📝 %s\n", Escape(txn.Note)))
	}

	sb.WriteString(fmt.Sprintf("💰 Balance: %s", fund.CurrentBalance.StringFixed(2)))
	return sb.String()
}

// Escape quotes user supplied text for legacy Markdown
func Escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func (n *Notifier) chatFor(ctx context.Context, groupID int64) (int64, bool) {
	group, err := n.store.Groups().GetByID(ctx, groupID)
	if err != nil {
		n.logger.WithError(err).WithField("group_id", groupID).Warn("Failed to load group for notification")
		return 0, false
	}
	if group == nil || group.ChatID == nil {
		return 0, false
	}
	return *group.ChatID, true
}

func (n *Notifier) userName(ctx context.Context, userID int64) string {
	user, err := n.store.Users().GetByID(ctx, userID)
	if err != nil || user == nil {
		return fmt.Sprintf("user #%d", userID)
	}
	return Escape(user.DisplayName())
}

func (n *Notifier) send(msg tgbotapi.MessageConfig, transactionID int64) {
	if _, err := n.sender.Send(msg); err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"chat_id":        msg.ChatID,
			"transaction_id": transactionID,
		}).Warn("Failed to send fund notification")
	}
}
