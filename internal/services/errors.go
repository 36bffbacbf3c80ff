// Package services defines the application logic between the webhook
// transport and the data/agent layers. This file centralizes service-level
// error values and the static replies the bot sends without a model call.
package services

import "errors"

var (
	// ErrDuplicateMessage indicates a redelivery of an already-processed
	// platform message id. Silent no-op, never user-visible.
	ErrDuplicateMessage = errors.New("duplicate message")

	// ErrUnlinkedSender indicates the sender has no linked profile.
	ErrUnlinkedSender = errors.New("sender not linked")
)

// Static replies. These short-circuit the model entirely.
const (
	ReplyLinkPrompt = "Hi! This number isn't linked to an account yet. Open the app, request a pairing code, and send me the 6-digit code to get started."

	ReplyLinkWelcome = "You're all set! Your account is now linked. Tell me about an expense or ask how much you've spent."

	ReplyLinkInvalid = "That code is invalid or has expired. Request a new pairing code in the app and try again."

	ReplyUnlinked = "Your account has been unlinked from this number. Send a new pairing code any time to reconnect."

	ReplySlowDown = "You're sending messages a bit too fast. Give me a minute and try again."

	ReplyFailure = "Sorry, something went wrong while processing that. Please try again."
)
