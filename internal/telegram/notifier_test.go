package telegram

import (
	"context"
	"errors"
	"io"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository/memory"
)

type captureSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (c *captureSender) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := msg.(tgbotapi.MessageConfig); ok {
		c.sent = append(c.sent, m)
	}
	return tgbotapi.Message{}, c.err
}

type notifierEnv struct {
	notifier *Notifier
	sender   *captureSender
	store    *memory.Store
	fund     *models.GroupFund
	user     *models.User
}

func newNotifierEnv(t *testing.T, chatID *int64) *notifierEnv {
	t.Helper()
	ctx := context.Background()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memory.NewStore()
	user, err := store.Users().Create(ctx, &models.User{TelegramUsername: "dmitry_k", FirstName: "Dmitry", IsActive: true})
	require.NoError(t, err)
	group, err := store.Groups().Create(ctx, &models.Group{Name: "garage", ChatID: chatID})
	require.NoError(t, err)
	fund, err := store.Funds().GetOrCreate(ctx, group.ID)
	require.NoError(t, err)
	fund, err = store.Funds().Credit(ctx, fund.ID, decimal.NewFromInt(1000))
	require.NoError(t, err)

	sender := &captureSender{}
	return &notifierEnv{
		notifier: NewNotifier(sender, store, logger),
		sender:   sender,
		store:    store,
		fund:     fund,
		user:     user,
	}
}

func chat(id int64) *int64 { return &id }

func TestNotifier_WithdrawalRequested(t *testing.T) {
	env := newNotifierEnv(t, chat(-100))
	txn := &models.FundTransaction{
		ID:      7,
		FundID:  env.fund.ID,
		UserID:  env.user.ID,
		Type:    models.TransactionTypeWithdraw,
		Amount:  decimal.NewFromInt(250),
		Purpose: "winter_tyres",
		Status:  models.TransactionStatusPending,
	}

	env.notifier.WithdrawalRequested(context.Background(), env.fund, txn)

	require.Len(t, env.sender.sent, 1)
	msg := env.sender.sent[0]
	assert.Equal(t, int64(-100), msg.ChatID)
	assert.Contains(t, msg.Text, "#7")
	assert.Contains(t, msg.Text, "250.00")
	assert.Contains(t, msg.Text, `@dmitry\_k`)
	assert.Contains(t, msg.Text, `winter\_tyres`)

	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 1)
	require.Len(t, keyboard.InlineKeyboard[0], 2)
	assert.Equal(t, "vote:7:yes", *keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "vote:7:no", *keyboard.InlineKeyboard[0][1].CallbackData)
}

func TestNotifier_TransactionSettledReloadsBalance(t *testing.T) {
	env := newNotifierEnv(t, chat(-100))
	ctx := context.Background()

	stale := *env.fund
	_, err := env.store.Funds().Debit(ctx, env.fund.ID, decimal.NewFromInt(400))
	require.NoError(t, err)

	txn := &models.FundTransaction{
		ID:     8,
		UserID: env.user.ID,
		Type:   models.TransactionTypeWithdraw,
		Amount: decimal.NewFromInt(400),
		Status: models.TransactionStatusCompleted,
	}
	env.notifier.TransactionSettled(ctx, &stale, txn)

	require.Len(t, env.sender.sent, 1)
	assert.Contains(t, env.sender.sent[0].Text, "completed")
	assert.Contains(t, env.sender.sent[0].Text, "Balance: 600.00")
}

func TestNotifier_SkipsGroupsWithoutChat(t *testing.T) {
	env := newNotifierEnv(t, nil)

	env.notifier.WithdrawalRequested(context.Background(), env.fund, &models.FundTransaction{ID: 1, UserID: env.user.ID})
	env.notifier.TransactionSettled(context.Background(), env.fund, &models.FundTransaction{ID: 1, UserID: env.user.ID})

	assert.Empty(t, env.sender.sent)
}

func TestNotifier_SendFailureIsSwallowed(t *testing.T) {
	env := newNotifierEnv(t, chat(-100))
	env.sender.err = errors.New("telegram down")

	assert.NotPanics(t, func() {
		env.notifier.TransactionSettled(context.Background(), env.fund, &models.FundTransaction{
			ID:     3,
			UserID: env.user.ID,
			Status: models.TransactionStatusRejected,
		})
	})
	assert.Len(t, env.sender.sent, 1)
}

func TestSettlementText(t *testing.T) {
	fund := &models.GroupFund{CurrentBalance: decimal.RequireFromString("10000")}

	tests := []struct {
		name string
		txn  *models.FundTransaction
		want []string
	}{
		{
			name: "rejected for lack of funds",
			txn: &models.FundTransaction{
				ID:     4,
				Amount: decimal.NewFromInt(50000),
				Status: models.TransactionStatusRejected,
				Note:   models.NoteInsufficientFundsAtSettlement,
			},
			want: []string{"#4 rejected", "50000.00", "could no longer cover", "10000.00"},
		},
		{
			name: "cancelled",
			txn: &models.FundTransaction{
				ID:      5,
				Amount:  decimal.NewFromInt(10),
				Purpose: "fuel",
				Status:  models.TransactionStatusCancelled,
			},
			want: []string{"#5 cancelled", "for fuel"},
		},
		{
			name: "admin note",
			txn: &models.FundTransaction{
				ID:     6,
				Amount: decimal.NewFromInt(10),
				Status: models.TransactionStatusCompleted,
				Note:   "urgent_repair",
			},
			want: []string{"#6 completed", `urgent\_repair`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := SettlementText(tt.txn, fund, "@anna")
			for _, w := range tt.want {
				assert.Contains(t, text, w)
			}
		})
	}
}

func TestCallbackData(t *testing.T) {
	assert.Equal(t, "vote:12:yes", CallbackData(VoteCallbackPrefix, "12", "yes"))
	assert.Equal(t, "vote", CallbackData(VoteCallbackPrefix))
}
