// Package domain contains core concepts of the messaging hub.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"smartsolve/errors"
)

// ConversationSeparator joins the two sorted participant identities of a conversation key.
const ConversationSeparator = "_"

type UserID string

func (u UserID) String() string { return string(u) }

// ConversationKey identifies the conversation between two participants.
// Canonical form: both identities sorted lexicographically and joined by ConversationSeparator,
// so the same pair always yields the same key whoever initiates.
type ConversationKey string

// RoomKey names a broadcast group in the connection registry.
// Conversation rooms reuse the conversation key.
type RoomKey string

// ValidateUserID rejects identities that would make a conversation key ambiguous
// or break the storage key layout.
func ValidateUserID(u UserID) error {
	s := string(u)
	if s == "" {
		return fmt.Errorf("%w: empty identity", errors.ErrInvalidParticipant)
	}
	if strings.Contains(s, ConversationSeparator) || strings.Contains(s, ":") {
		return fmt.Errorf("%w: %q contains a reserved character", errors.ErrInvalidParticipant, s)
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", errors.ErrInvalidParticipant, s)
	}
	return nil
}

// NewConversationKey derives the canonical key of the pair (a, b).
func NewConversationKey(a, b UserID) ConversationKey {
	pair := []string{string(a), string(b)}
	slices.Sort(pair)
	return ConversationKey(strings.Join(pair, ConversationSeparator))
}

// ParseConversationKey validates a client supplied key and returns its participants.
func ParseConversationKey(raw string) (ConversationKey, UserID, UserID, error) {
	parts := strings.Split(raw, ConversationSeparator)
	if len(parts) != 2 {
		return "", "", "", fmt.Errorf("%w: %q is not a conversation key", errors.ErrInvalidRoom, raw)
	}
	a, b := UserID(parts[0]), UserID(parts[1])
	if ValidateUserID(a) != nil || ValidateUserID(b) != nil {
		return "", "", "", fmt.Errorf("%w: %q has invalid participants", errors.ErrInvalidRoom, raw)
	}
	key := NewConversationKey(a, b)
	if string(key) != raw {
		return "", "", "", fmt.Errorf("%w: %q is not canonical", errors.ErrInvalidRoom, raw)
	}
	return key, a, b, nil
}

// Includes reports whether the user is one of the two participants.
func (k ConversationKey) Includes(u UserID) bool {
	a, b, ok := strings.Cut(string(k), ConversationSeparator)
	return ok && (UserID(a) == u || UserID(b) == u)
}

func (k ConversationKey) Room() RoomKey { return RoomKey(k) }

func (k ConversationKey) String() string { return string(k) }
