package service

import "codepair/internal/model"

// Broadcaster pushes editor state into a room's cache and out to its live
// connections. ws.Hub implements it; the interface lives here to avoid an
// import cycle.
type Broadcaster interface {
	PublishCode(roomID, exceptUserID string, change model.CodeChange)
	PublishOutput(roomID, exceptUserID string, output *model.RunOutput)
	PublishProblem(roomID, exceptUserID string, problem model.ProblemChanged)
	// ResetEditor clears code and output for everyone in the room.
	ResetEditor(roomID string)
	// CloseRoom drops the room's cached state and disconnects its clients.
	CloseRoom(roomID string)
	// Snapshot returns the room's cached editor state, if any.
	Snapshot(roomID string) (model.RoomState, bool)
}

type nopBroadcaster struct{}

func (nopBroadcaster) PublishCode(string, string, model.CodeChange) {}

func (nopBroadcaster) PublishOutput(string, string, *model.RunOutput) {}

func (nopBroadcaster) PublishProblem(string, string, model.ProblemChanged) {}

func (nopBroadcaster) ResetEditor(string) {}

func (nopBroadcaster) CloseRoom(string) {}

func (nopBroadcaster) Snapshot(string) (model.RoomState, bool) { return model.RoomState{}, false }
