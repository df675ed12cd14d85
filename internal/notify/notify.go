// Package notify defines the notification-sink boundary the orchestrator
// reports through. The actual chat transport lives outside this service;
// the sink is its interface plus a logging implementation for headless runs.
package notify

import (
	"context"
	"errors"
)

// Static errors a sink may return from Edit.
var (
	// ErrNotModified is returned when the edited text equals the current one.
	ErrNotModified = errors.New("notify: message not modified")
	// ErrGone is returned when the target message no longer exists or can
	// no longer be edited.
	ErrGone = errors.New("notify: message gone")
)

// MessageRef identifies a previously sent message so it can be edited.
type MessageRef struct {
	// ChannelID is the conversation the message was sent to.
	ChannelID string
	// MessageID is the transport's identifier for the message.
	MessageID string
}

// Sink delivers user-facing notifications. Implementations may fail
// independently of job state; callers must tolerate Edit failures silently.
type Sink interface {
	// Send delivers a new message and returns a reference for later edits.
	Send(ctx context.Context, channelID, text string) (MessageRef, error)

	// Edit replaces the text of an earlier message. Returns ErrNotModified
	// when nothing changed and ErrGone when the message cannot be edited.
	Edit(ctx context.Context, ref MessageRef, text string) error

	// SendArtifact delivers the final artifact locator with a caption.
	SendArtifact(ctx context.Context, channelID, locator, caption string) error
}
