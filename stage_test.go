package halcyon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionStageString(t *testing.T) {
	assert.Equal(t, "disconnected", StageDisconnected.String())
	assert.Equal(t, "connecting", StageConnecting.String())
	assert.Equal(t, "handshaking", StageHandshake.String())
	assert.Equal(t, "identifying", StageIdentifying.String())
	assert.Equal(t, "resuming", StageResuming.String())
	assert.Equal(t, "connected", StageConnected.String())
}

func TestConnectionStageIsConnecting(t *testing.T) {
	assert.False(t, StageDisconnected.IsConnecting())
	assert.True(t, StageConnecting.IsConnecting())
	assert.True(t, StageHandshake.IsConnecting())
	assert.True(t, StageIdentifying.IsConnecting())
	assert.True(t, StageResuming.IsConnecting())
	assert.False(t, StageConnected.IsConnecting())
}
