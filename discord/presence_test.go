package discord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivityConstructors(t *testing.T) {
	assert.Equal(t, Activity{Name: "chess", Type: ActivityTypePlaying}, NewActivityPlaying("chess"))
	assert.Equal(t, Activity{Name: "lofi", Type: ActivityTypeListening}, NewActivityListening("lofi"))
	assert.Equal(t, Activity{Name: "paint dry", Type: ActivityTypeWatching}, NewActivityWatching("paint dry"))
	assert.Equal(t, Activity{Name: "a tournament", Type: ActivityTypeCompeting}, NewActivityCompeting("a tournament"))

	streaming := NewActivityStreaming("speedrun", "https://stream.example")
	assert.Equal(t, ActivityTypeStreaming, streaming.Type)
	assert.Equal(t, "https://stream.example", streaming.URL)

	custom := NewActivityCustom("out to lunch")
	assert.Equal(t, ActivityTypeCustom, custom.Type)
	assert.Equal(t, "out to lunch", custom.State)
	assert.Equal(t, "~", custom.Name)
}
