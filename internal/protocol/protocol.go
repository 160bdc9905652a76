// Package protocol defines the wire schema shared by the hub and the
// client reconciler. Every frame is one JSON object with a "type"
// discriminator and a kind-specific payload.
package protocol

import "encoding/json"

const (
	KindSync   = "sync"
	KindChat   = "chat"
	KindEmote  = "emote"
	KindTyping = "typing"
	KindRoster = "roster"
	// KindJoined is hub-to-joiner only: the initial authoritative
	// snapshot sent right after a successful join.
	KindJoined = "joined"
)

type PlaybackState string

const (
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

func (s PlaybackState) Valid() bool {
	return s == StatePlaying || s == StatePaused
}

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SyncPayload carries a playback-state change. Timestamp is seconds into
// the media, not wall-clock time. SenderID lets receivers drop their own
// echoes.
type SyncPayload struct {
	State     PlaybackState `json:"state"`
	Timestamp float64       `json:"timestamp"`
	SenderID  string        `json:"sender_id,omitempty"`
}

// ChatPayload always carries is_system explicitly so receivers reusing a
// decode buffer cannot inherit the flag from an earlier frame.
type ChatPayload struct {
	Message  string `json:"message"`
	Username string `json:"username"`
	SenderID string `json:"sender_id,omitempty"`
	IsSystem bool   `json:"is_system"`
	SentAt   int64  `json:"sent_at,omitempty"`
}

type EmotePayload struct {
	Emote    string `json:"emote"`
	SenderID string `json:"sender_id,omitempty"`
}

type TypingPayload struct {
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
	SenderID string `json:"sender_id,omitempty"`
}

type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RosterPayload is authoritative: receivers replace their local roster
// with it rather than diffing. Participants are ordered by join time.
type RosterPayload struct {
	Participants []Participant `json:"participants"`
}

// PlayerSnapshot is the authoritative playback state at UpdatedAt (unix
// milliseconds). While playing, the hub extrapolates Timestamp up to the
// moment the snapshot is produced.
type PlayerSnapshot struct {
	State     PlaybackState `json:"state"`
	Timestamp float64       `json:"timestamp"`
	UpdatedAt int64         `json:"updated_at"`
}

type JoinedPayload struct {
	Participant  Participant    `json:"participant"`
	Player       PlayerSnapshot `json:"player"`
	Participants []Participant  `json:"participants"`
}
