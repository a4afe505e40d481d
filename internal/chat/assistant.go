// Package chat ведет диалог с финансовым ассистентом поверх сводки операций пользователя.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/kapitallo/backend/internal/ai"
	"example.com/kapitallo/backend/internal/models"
)

const (
	MaxHistory  = 20
	SummaryDays = 30
)

var ErrInvalidHistory = errors.New("invalid chat history")

// SummaryLoader отдает агрегаты за период: итоги, топ-5 категорий расходов, последние 10 операций.
type SummaryLoader interface {
	ChatSummary(ctx context.Context, userID uuid.UUID, since time.Time) (models.FinanceSummary, error)
}

type Context struct {
	UserID  uuid.UUID
	Profile models.Profile
}

type Assistant struct {
	streamer  ai.Streamer
	summaries SummaryLoader
	logger    *slog.Logger
	now       func() time.Time
}

// NewAssistant создает ассистента.
func NewAssistant(streamer ai.Streamer, summaries SummaryLoader, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		streamer:  streamer,
		summaries: summaries,
		logger:    logger,
		now:       time.Now,
	}
}

// Reply стримит ответ на последнее сообщение пользователя и возвращает полный текст.
// Фрагменты передаются в onDelta строго в порядке поступления.
func (a *Assistant) Reply(ctx context.Context, cc Context, history []ai.Message, onDelta func(string) error) (string, error) {
	if cc.UserID == uuid.Nil {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidHistory)
	}

	messages, err := normalizeHistory(history)
	if err != nil {
		return "", err
	}

	since := a.now().AddDate(0, 0, -SummaryDays)
	summary, err := a.summaries.ChatSummary(ctx, cc.UserID, since)
	if err != nil {
		return "", fmt.Errorf("load finance summary: %w", err)
	}

	prompt := append([]ai.Message{{Role: "system", Content: SystemPrompt(cc.Profile, summary)}}, messages...)

	var content strings.Builder
	err = a.streamer.ChatStream(ctx, prompt, func(delta string) error {
		content.WriteString(delta)
		return onDelta(delta)
	})
	if err != nil {
		a.logger.Error("chat stream failed", "user_id", cc.UserID.String(), "error", err, "received", content.Len())
		return content.String(), err
	}

	return content.String(), nil
}

// normalizeHistory оставляет последние MaxHistory сообщений и проверяет роли.
func normalizeHistory(history []ai.Message) ([]ai.Message, error) {
	out := make([]ai.Message, 0, len(history))
	for i, message := range history {
		role := strings.ToLower(strings.TrimSpace(message.Role))
		if role != "user" && role != "assistant" {
			return nil, fmt.Errorf("%w: message %d has role %q", ErrInvalidHistory, i, message.Role)
		}
		content := strings.TrimSpace(message.Content)
		if content == "" {
			continue
		}
		out = append(out, ai.Message{Role: role, Content: content})
	}

	if len(out) == 0 || out[len(out)-1].Role != "user" {
		return nil, fmt.Errorf("%w: last message must come from the user", ErrInvalidHistory)
	}

	if len(out) > MaxHistory {
		out = out[len(out)-MaxHistory:]
	}
	return out, nil
}

// SystemPrompt собирает инструкцию ассистента из профиля и сводки за 30 дней.
func SystemPrompt(profile models.Profile, summary models.FinanceSummary) string {
	currency := profile.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}

	var b strings.Builder
	b.WriteString("You are Kapitallo, a personal finance assistant. Answer in the language of the user, ")
	b.WriteString("briefly and to the point. Base every number on the data below and never invent transactions.\n")

	if profile.DisplayName != nil && *profile.DisplayName != "" {
		fmt.Fprintf(&b, "User name: %s\n", *profile.DisplayName)
	}
	if profile.FinancialGoal != nil && *profile.FinancialGoal != "" {
		fmt.Fprintf(&b, "Financial goal: %s\n", *profile.FinancialGoal)
	}
	if profile.MonthlyIncome != nil {
		fmt.Fprintf(&b, "Declared monthly income: %s %s\n", profile.MonthlyIncome.StringFixed(2), currency)
	}
	if profile.AdviceTone != nil && *profile.AdviceTone != "" {
		fmt.Fprintf(&b, "Preferred tone: %s\n", *profile.AdviceTone)
	}

	fmt.Fprintf(&b, "\nLast %d days (since %s), currency %s:\n", SummaryDays, summary.Since.Format("2006-01-02"), currency)
	fmt.Fprintf(&b, "- income: %s\n- expenses: %s\n- savings: %s\n",
		summary.Income.StringFixed(2), summary.Expense.StringFixed(2), summary.Savings.StringFixed(2))

	if len(summary.TopExpenses) > 0 {
		b.WriteString("\nTop expense categories:\n")
		for _, total := range summary.TopExpenses {
			fmt.Fprintf(&b, "- %s: %s\n", total.Name, total.Total.StringFixed(2))
		}
	}

	if len(summary.Recent) > 0 {
		b.WriteString("\nRecent transactions:\n")
		for _, entry := range summary.Recent {
			category := "no category"
			if entry.CategoryName != nil {
				category = *entry.CategoryName
			}
			line := fmt.Sprintf("- %s %s %s %s (%s)", entry.Date.Format("2006-01-02"), entry.Type, entry.Amount.StringFixed(2), entry.Currency, category)
			if entry.Description != nil && *entry.Description != "" {
				line += ": " + *entry.Description
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}
