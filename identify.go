package halcyon

import (
	"runtime"

	"github.com/halcyon-dev/halcyon/discord"
)

// BuildIdentify assembles the Identify payload for a shard. It performs no
// I/O and validates structural completeness only.
func BuildIdentify(token string, shardID, shardCount int32, intents discord.GatewayIntent, presence *discord.UpdateStatus, largeThreshold int32) (discord.Identify, error) {
	if token == "" {
		return discord.Identify{}, ErrNoAuthentication
	}

	if largeThreshold <= 0 {
		largeThreshold = GatewayLargeThreshold
	}

	return discord.Identify{
		Token: token,
		Properties: &discord.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: "Halcyon " + Version,
			Device:  "Halcyon " + Version,
		},
		Compress:       true,
		LargeThreshold: largeThreshold,
		Shard:          [2]int32{shardID, shardCount},
		Presence:       presence,
		Intents:        intents,
	}, nil
}

// BuildResume assembles the Resume payload re-attaching to a previous
// session. It performs no I/O and validates structural completeness only.
func BuildResume(token, sessionID string, sequence int64) (discord.Resume, error) {
	if token == "" {
		return discord.Resume{}, ErrNoAuthentication
	}

	if sessionID == "" {
		return discord.Resume{}, ErrNoSessionID
	}

	return discord.Resume{
		Token:     token,
		SessionID: sessionID,
		Sequence:  sequence,
	}, nil
}
