package service

import "errors"

// Error taxonomy surfaced to callers. Everything else coming out of the
// repository or transport is treated as an internal failure and mapped to a
// generic response at the outermost boundary.
var (
	ErrEmptyMessage         = errors.New("message cannot be empty")
	ErrSelfConversation     = errors.New("cannot message yourself")
	ErrMessageNotFound      = errors.New("message not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrForbidden            = errors.New("forbidden")
)
