// Package commands holds the named command table and the built-in handlers.
package commands

import (
	"context"
	"errors"
	"image"

	"spindrift/pkg/reply"
)

var (
	// ErrEmptyName is returned when registering a command without a name.
	ErrEmptyName = errors.New("command name cannot be empty")
	// ErrNilHandler is returned when registering a command without a handler.
	ErrNilHandler = errors.New("command handler cannot be nil")
)

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the command name (without /)
	Name string
	// Description is shown in the platform's command menu
	Description string
	// Usage shows how to use the command
	Usage string
	// Handler is the function that executes the command
	Handler Handler
}

// Handler handles one command invocation.
type Handler func(ctx context.Context, req Request) (reply.Result, error)

// PhotoHandler handles an inbound photo. It replies on its own, if at all.
type PhotoHandler func(ctx context.Context, req Request, img image.Image) error

// Request contains information about a command invocation.
type Request struct {
	// UserID identifies the user who sent the message
	UserID int64
	// ChatID identifies the conversation
	ChatID int64
	// MessageID is the inbound message being answered
	MessageID int
	// Username is the sender's handle, possibly empty
	Username string
	// Command is the normalized command name
	Command string
	// Args is the text after the command
	Args string
}
