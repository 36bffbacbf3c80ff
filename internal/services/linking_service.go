// Package services – LinkingService
//
// This file implements the identity-linking state machine that pairs a
// messaging-platform sender identifier with an application profile through a
// short-lived 6-digit code:
//
//	unlinked → code_issued → linked → (explicit unlink) → unlinked
//
// A message consisting of a bare 6-digit number, or the "/link NNNNNN"
// command, is treated as a linking attempt regardless of the sender's
// current state, and is handled before identity resolution — no
// conversation-history lookup happens on this path.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/finchat/go-finance-bot/internal/repo"
)

var (
	bareCodeRE = regexp.MustCompile(`^\d{6}$`)
	linkCmdRE  = regexp.MustCompile(`^/link\s+(\d{6})$`)
)

// ExtractPairingCode recognizes a linking attempt in free text and returns
// the 6-digit code when present.
func ExtractPairingCode(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if bareCodeRE.MatchString(text) {
		return text, true
	}
	if m := linkCmdRE.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}

// IsUnlinkCommand recognizes the explicit unlink command.
func IsUnlinkCommand(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "/unlink")
}

// LinkingService owns profile↔sender pairing.
type LinkingService struct {
	DB      *gorm.DB
	CodeTTL time.Duration
}

// IssueCode stores a fresh random 6-digit pairing code on the profile and
// returns it. Any outstanding code is replaced; codes are single-use and
// expire after CodeTTL.
func (s *LinkingService) IssueCode(ctx context.Context, profileID string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())
	expiresAt := time.Now().UTC().Add(s.CodeTTL)
	if err := repo.IssuePairingCode(ctx, s.DB, profileID, code, expiresAt); err != nil {
		return "", err
	}
	return code, nil
}

// Attempt consumes a pairing code sent by senderID and returns the reply to
// send back. A valid, unexpired code links the profile and clears the code;
// anything else yields the invalid-or-expired reply and changes nothing.
func (s *LinkingService) Attempt(ctx context.Context, senderID, code string) string {
	profile, err := repo.FindProfileByPairingCode(ctx, s.DB, code, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Error().Err(err).Str("sender_id", senderID).Msg("pairing code lookup failed")
		}
		return ReplyLinkInvalid
	}
	if err := repo.LinkProfile(ctx, s.DB, profile.ID, senderID); err != nil {
		log.Error().Err(err).Str("sender_id", senderID).Str("profile_id", profile.ID).Msg("profile link failed")
		return ReplyFailure
	}
	log.Info().Str("sender_id", senderID).Str("profile_id", profile.ID).Msg("sender linked to profile")
	return ReplyLinkWelcome
}

// Unlink clears the pairing for senderID and returns the reply to send.
func (s *LinkingService) Unlink(ctx context.Context, senderID string) string {
	if err := repo.UnlinkProfile(ctx, s.DB, senderID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ReplyLinkPrompt
		}
		log.Error().Err(err).Str("sender_id", senderID).Msg("unlink failed")
		return ReplyFailure
	}
	log.Info().Str("sender_id", senderID).Msg("sender unlinked")
	return ReplyUnlinked
}
