// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file reads the exchange-rate snapshot maintained by
// the external rate-ingestion job; this subsystem never refreshes it.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finchat/go-finance-bot/internal/domain"
)

// CurrentSnapshot returns the most recently updated rate snapshot, or
// ErrNotFound when none has been ingested yet.
func CurrentSnapshot(ctx context.Context, db *gorm.DB) (*domain.ExchangeRateSnapshot, error) {
	var snap domain.ExchangeRateSnapshot
	err := db.WithContext(ctx).Order("updated_at DESC").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveSnapshot stores a new rate table. Exposed for seeding and tests; the
// production writer is the scheduled rate-ingestion collaborator.
func SaveSnapshot(ctx context.Context, db *gorm.DB, base string, rates map[string]float64) (*domain.ExchangeRateSnapshot, error) {
	snap := &domain.ExchangeRateSnapshot{
		ID:           uuid.NewString(),
		BaseCurrency: base,
		Rates:        rates,
		UpdatedAt:    time.Now().UTC(),
	}
	return snap, db.WithContext(ctx).Create(snap).Error
}
