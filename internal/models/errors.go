package models

import "errors"

var (
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotAParticipant      = errors.New("not a participant of this conversation")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidInput         = errors.New("invalid input")

	// ErrStoreUnavailable means the backing store is misconfigured or missing its schema.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreUnreachable is a transient connectivity failure; callers may retry.
	ErrStoreUnreachable = errors.New("store unreachable")

	ErrSubscriberTooSlow = errors.New("subscriber fell behind and was disconnected")
)
