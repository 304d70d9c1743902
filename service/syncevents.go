package service

import (
	"context"

	"github.com/go-logr/logr"
)

// EventKind names the mutation a SyncEvent records.
type EventKind string

const (
	EventUploaded      EventKind = "uploaded"
	EventContentUpdated EventKind = "content_updated"
	EventMoved         EventKind = "moved"
	EventRenamed       EventKind = "renamed"
	EventFavorited     EventKind = "favorited"
	EventSoftDeleted   EventKind = "soft_deleted"
	EventRestored      EventKind = "restored"
	EventHardDeleted   EventKind = "hard_deleted"
	EventDirectoryCreated EventKind = "directory_created"
)

// SyncEvent is one append-only entry in the optional sync-timeline feed
// (spec §6's "Sync-event sink" external collaborator).
type SyncEvent struct {
	OwnerID        string
	FileID         string
	Kind           EventKind
	ContentUpdated bool
}

// EventSink appends sync events. Every state mutation in §4.5/§4.6.3 calls
// Append exactly once; a sink that does nothing (NoopSink) is a valid
// implementation, per the spec treating this collaborator as optional.
type EventSink interface {
	Append(ctx context.Context, event SyncEvent) error
}

// NoopSink discards every event. It is selected when
// Config.SyncEventsEnabled is false (see DESIGN.md Open Question #2).
type NoopSink struct{}

// Append does nothing and never fails.
func (NoopSink) Append(context.Context, SyncEvent) error { return nil }

// LogSink records every event as a structured log line. It is the default
// EventSink wired in cmd/vaultdrived when Config.SyncEventsEnabled is true:
// a real client-facing timeline feed is out of scope, but a server that
// claims to emit sync events should actually emit something observable
// rather than silently drop them.
type LogSink struct {
	Logger logr.Logger
}

// Append logs the event and never fails.
func (s LogSink) Append(_ context.Context, event SyncEvent) error {
	s.Logger.Info("sync event", "ownerID", event.OwnerID, "fileID", event.FileID,
		"kind", event.Kind, "contentUpdated", event.ContentUpdated)
	return nil
}
