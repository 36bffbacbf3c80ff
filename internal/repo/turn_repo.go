// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// append-only conversation log, including the insert-if-absent dedup path.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finchat/go-finance-bot/internal/domain"
)

// ErrDuplicate indicates that a user turn with the same platform message id
// has already been recorded; the delivery is a replay and must be dropped.
var ErrDuplicate = errors.New("duplicate")

// CreateUserTurn inserts a user turn tagged with the platform message id.
// A unique violation on that id means the message was already handled and
// surfaces as ErrDuplicate.
func CreateUserTurn(ctx context.Context, db *gorm.DB, platformMsgID, senderID, content string) (*domain.ConversationTurn, error) {
	t := &domain.ConversationTurn{
		ID:            uuid.NewString(),
		PlatformMsgID: &platformMsgID,
		SenderID:      senderID,
		Role:          domain.RoleUser,
		Content:       content,
		ActionResult:  domain.ActionNone,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return t, nil
}

// AppendAssistantTurn inserts an assistant turn with its action result and
// processing duration.
func AppendAssistantTurn(ctx context.Context, db *gorm.DB, senderID, content, actionResult string, latency time.Duration) (*domain.ConversationTurn, error) {
	if actionResult == "" {
		actionResult = domain.ActionNone
	}
	ms := latency.Milliseconds()
	t := &domain.ConversationTurn{
		ID:           uuid.NewString(),
		SenderID:     senderID,
		Role:         domain.RoleAssistant,
		Content:      content,
		ActionResult: actionResult,
		LatencyMS:    &ms,
		CreatedAt:    time.Now().UTC(),
	}
	return t, db.WithContext(ctx).Create(t).Error
}

// RecentTurns returns up to limit turns for a sender ordered oldest-first,
// excluding the turn with excludeID (the just-inserted user turn, which the
// caller passes to the model separately).
func RecentTurns(ctx context.Context, db *gorm.DB, senderID, excludeID string, limit int) ([]domain.ConversationTurn, error) {
	var out []domain.ConversationTurn
	q := db.WithContext(ctx).
		Where("sender_id = ?", senderID).
		Order("created_at DESC, id DESC")
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountUserTurnsSince returns the number of user turns for a sender created
// at or after the given instant. Used by the per-sender rate limiter.
func CountUserTurnsSince(ctx context.Context, db *gorm.DB, senderID string, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ConversationTurn{}).
		Where("sender_id = ? AND role = ? AND created_at >= ?", senderID, domain.RoleUser, since).
		Count(&total).Error
	return total, err
}

// isUniqueViolation matches the driver-specific shapes of a UNIQUE failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
