package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatPayloadCarriesSystemFlagExplicitly(t *testing.T) {
	data, err := json.Marshal(ChatPayload{
		Message:  "finally!",
		Username: "alice",
		SenderID: "member-1",
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"is_system":false`)

	// A decode buffer left over from a system message must be overwritten
	// by the next user chat.
	chat := ChatPayload{IsSystem: true}
	require.NoError(t, json.Unmarshal(data, &chat))
	assert.False(t, chat.IsSystem)
}

func TestPlaybackStateValid(t *testing.T) {
	assert.True(t, StatePlaying.Valid())
	assert.True(t, StatePaused.Valid())
	assert.False(t, PlaybackState("buffering").Valid())
	assert.False(t, PlaybackState("").Valid())
}
