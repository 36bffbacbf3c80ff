// Package domain defines the persistence models for conversation turns,
// profiles, categories, transactions, and exchange-rate snapshots. These
// types are mapped with GORM and form the core data layer of the bot.
package domain

import (
	"time"
)

// Conversation roles and action results stored on turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	ActionNone       = "none"
	ActionRegistered = "registered"
	ActionQueried    = "queried"
	ActionFailed     = "failed"
)

// ConversationTurn is a single utterance in a sender's conversation. Turns
// are append-only; ordering is by creation time per sender, and the most
// recent N turns form the model context window.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - PlatformMsgID: the messaging platform's message id, set on user turns
//     only. Its unique index implements dedup: a second delivery of the same
//     message id fails the insert and processing stops.
//   - SenderID: the platform sender identifier (e.g. phone number); indexed.
//   - Role: "user" or "assistant" (enforced by DB constraint).
//   - ActionResult: outcome of any tool execution tied to an assistant turn
//     ("registered", "queried", "failed", or "none").
//   - LatencyMS: optional end-to-end processing duration for assistant turns.
type ConversationTurn struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	PlatformMsgID *string   `json:"platform_msg_id" gorm:"type:varchar(128);uniqueIndex:ux_turns_platform_msg"`
	SenderID      string    `json:"sender_id"       gorm:"type:varchar(64);not null;index:idx_sender_turns,priority:1"`
	Role          string    `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content       string    `json:"content"         gorm:"type:text;not null"`
	ActionResult  string    `json:"action_result"   gorm:"type:varchar(16);not null;default:'none'"`
	LatencyMS     *int64    `json:"latency_ms,omitempty"`
	CreatedAt     time.Time `json:"created_at"      gorm:"index:idx_sender_turns,priority:2"`
}

// TableName returns the database table name for ConversationTurn.
func (ConversationTurn) TableName() string { return "conversation_turns" }

// Profile is an application user account. At most one platform sender
// identifier may be linked to a profile at a time; linking is mediated by a
// short-lived numeric pairing code.
type Profile struct {
	ID           string `json:"id"            gorm:"type:char(36);primaryKey"`
	DisplayName  string `json:"display_name"  gorm:"type:varchar(128);not null"`
	HomeCurrency string `json:"home_currency" gorm:"type:char(3);not null;default:'USD'"`

	// BotUserID is the linked platform sender id, nil while unlinked.
	BotUserID *string `json:"bot_user_id,omitempty" gorm:"type:varchar(64);uniqueIndex:ux_profiles_bot_user"`

	// PairingCode and its expiry are set while a code is outstanding and
	// cleared on successful linking. Codes are single-use and time-boxed.
	PairingCode          *string    `json:"-" gorm:"type:char(6);index"`
	PairingCodeExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Linked reports whether the profile currently has a platform identity.
func (p *Profile) Linked() bool { return p.BotUserID != nil && *p.BotUserID != "" }

// Category is static reference data used to classify transactions.
type Category struct {
	ID        string    `json:"id"   gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(64);not null;uniqueIndex"`
	Icon      string    `json:"icon" gorm:"type:varchar(16)"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// OtherCategoryName is the reserved fallback category for unmatched hints.
const OtherCategoryName = "Other"

// Transaction is a registered expense. Amounts in the profile's home
// currency and in USD are computed once, through the exchange-rate snapshot
// current at insert time, and are never recomputed when rates change.
type Transaction struct {
	ID         string  `json:"id"          gorm:"type:char(36);primaryKey"`
	ProfileID  string  `json:"profile_id"  gorm:"type:char(36);not null;index:idx_profile_txns,priority:1"`
	Amount     float64 `json:"amount"      gorm:"not null"`
	Currency   string  `json:"currency"    gorm:"type:char(3);not null"`
	AmountHome float64 `json:"amount_home" gorm:"not null"`
	AmountUSD  float64 `json:"amount_usd"  gorm:"not null"`

	// CategoryID is nil when not even the fallback category exists.
	CategoryID  *string `json:"category_id,omitempty" gorm:"type:char(36);index"`
	Description string  `json:"description" gorm:"type:varchar(255);not null"`
	RawText     string  `json:"raw_text"    gorm:"type:text"`
	Confirmed   bool    `json:"confirmed"   gorm:"not null;default:true"`

	// CreatedAt defaults to processing time; callers may backdate it.
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_profile_txns,priority:2"`

	Profile  Profile   `json:"-" gorm:"foreignKey:ProfileID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Category *Category `json:"-" gorm:"foreignKey:CategoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// ExchangeRateSnapshot is the current rate table, keyed by currency code
// relative to BaseCurrency. The base currency's own rate is implicitly 1.
// A single current snapshot is consumed read-only by the converter; refresh
// is owned by an external scheduled collaborator.
type ExchangeRateSnapshot struct {
	ID           string             `json:"id"            gorm:"type:char(36);primaryKey"`
	BaseCurrency string             `json:"base_currency" gorm:"type:char(3);not null"`
	Rates        map[string]float64 `json:"rates"         gorm:"serializer:json;type:text;not null"`
	UpdatedAt    time.Time          `json:"updated_at"    gorm:"index"`
}

// TableName returns the database table name for ExchangeRateSnapshot.
func (ExchangeRateSnapshot) TableName() string { return "exchange_rate_snapshots" }
