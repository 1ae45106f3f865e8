package models

import "errors"

var (
	ErrSubscriberNotFound   = errors.New("subscriber not found")
	ErrSubscriberExists     = errors.New("subscriber already exists")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrContentNotFound      = errors.New("content not found")
	ErrSettingsNotFound     = errors.New("email settings not configured")
	ErrInvalidContentType   = errors.New("invalid content type")
	ErrInvalidAudience      = errors.New("invalid audience")
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrMailNotConfigured    = errors.New("mail transport not configured")
	ErrInvalidSettings      = errors.New("invalid email settings")
	ErrAlreadyClaimed       = errors.New("notification claimed by another dispatch run")
)
