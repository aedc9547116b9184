package model

import "errors"

var (
	// ErrNotFound is returned when a content item or outbox job is absent.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the actor fails a role or tenant check.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition is returned when the state machine or a role gate
	// rejects a requested status change.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrModuleDisabled is returned when the publishing module is not enabled
	// for the tenant.
	ErrModuleDisabled = errors.New("module disabled")
	// ErrAlreadyCompleted is returned when retrying a completed outbox job.
	ErrAlreadyCompleted = errors.New("outbox job already completed")

	// ErrInvalidTenant is returned when a tenant id is missing.
	ErrInvalidTenant = errors.New("tenant id is required")
	// ErrInvalidTitle is returned when a content title is empty.
	ErrInvalidTitle = errors.New("title is required")
	// ErrInvalidChannel is returned when a channel binding lacks a network or
	// channel id.
	ErrInvalidChannel = errors.New("network and channel id are required")
	// ErrInvalidComment is returned when a change request carries no comment.
	ErrInvalidComment = errors.New("comment is required")
)
