package reconciler

import "github.com/couchparty/server/internal/protocol"

// Command is a typed instruction for the presentation layer, which drains
// the reconciler's queue and applies each one to the player or the UI.
type Command interface {
	command()
}

type SetPlaybackState struct {
	State protocol.PlaybackState
}

type SeekTo struct {
	Timestamp float64
}

type AppendChat struct {
	Chat protocol.ChatPayload
}

type SpawnEmote struct {
	Emote string
}

type SetTyping struct {
	Username string
	IsTyping bool
}

// SetRoster replaces the local roster wholesale; snapshots are never
// diffed.
type SetRoster struct {
	Participants []protocol.Participant
}

type SetConnState struct {
	State ConnState
}

func (SetPlaybackState) command() {}
func (SeekTo) command()           {}
func (AppendChat) command()       {}
func (SpawnEmote) command()       {}
func (SetTyping) command()        {}
func (SetRoster) command()        {}
func (SetConnState) command()     {}
