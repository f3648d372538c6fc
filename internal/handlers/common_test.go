package handlers

import (
	"context"
	"fmt"
	"io"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository/memory"
	"github.com/Kerhoff/FundboT/internal/service"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "1500", want: "1500"},
		{raw: "1500.50", want: "1500.5"},
		{raw: " 42 ", want: "42"},
		{raw: "0", wantErr: true},
		{raw: "-5", wantErr: true},
		{raw: "lots", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseAmount(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), got.String())
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("#12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	id, err = parseID("7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	for _, raw := range []string{"0", "-1", "abc", "#"} {
		_, err := parseID(raw)
		assert.Error(t, err, raw)
	}
}

func TestUserMessage(t *testing.T) {
	known := []error{
		service.ErrInvalidAmount,
		service.ErrInsufficientFunds,
		service.ErrNotFound,
		service.ErrDuplicateVote,
		service.ErrNotAMember,
		service.ErrForbidden,
		service.ErrInvalidState,
		service.ErrMembershipUnavailable,
	}
	for _, err := range known {
		assert.NotEmpty(t, userMessage(fmt.Errorf("wrapped: %w", err)), err.Error())
	}

	assert.Empty(t, userMessage(io.ErrUnexpectedEOF))
}

func TestFormatTransaction(t *testing.T) {
	line := formatTransaction(&models.FundTransaction{
		ID:      3,
		Type:    models.TransactionTypeWithdraw,
		Amount:  decimal.NewFromInt(250),
		Purpose: "spare_wheel",
		Status:  models.TransactionStatusCompleted,
	})
	assert.Equal(t, `✅ *#3* ➖ 250.00 spare\_wheel`, line)

	line = formatTransaction(&models.FundTransaction{
		ID:     4,
		Type:   models.TransactionTypeDeposit,
		Amount: decimal.RequireFromString("10.5"),
		Status: models.TransactionStatusCompleted,
	})
	assert.Equal(t, "✅ *#4* ➕ 10.50", line)
}

func TestEnterChat(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := service.New(memory.NewStore(), logger, service.Options{})
	ctx := context.Background()

	chat := &tgbotapi.Chat{ID: -1001, Type: "group", Title: "Garage co-op"}
	first := &tgbotapi.User{ID: 11, UserName: "anna", FirstName: "Anna"}
	second := &tgbotapi.User{ID: 22, FirstName: "Boris"}

	s1, err := enterChat(ctx, svc, chat, first)
	require.NoError(t, err)
	assert.Equal(t, models.MemberRoleAdmin, s1.member.Role)
	assert.Equal(t, "Garage co-op", s1.group.Name)

	s2, err := enterChat(ctx, svc, chat, second)
	require.NoError(t, err)
	assert.Equal(t, models.MemberRoleMember, s2.member.Role)
	assert.Equal(t, s1.group.ID, s2.group.ID)

	again, err := enterChat(ctx, svc, chat, first)
	require.NoError(t, err)
	assert.Equal(t, s1.user.ID, again.user.ID)
	assert.Equal(t, models.MemberRoleAdmin, again.member.Role)

	members, err := svc.ListMembers(ctx, s1.group.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	private, err := enterChat(ctx, svc, &tgbotapi.Chat{ID: 11, Type: "private"}, first)
	require.NoError(t, err)
	assert.Equal(t, "Anna's fund", private.group.Name)
}
