package discord

// OnlineStatus is the presence status of the current user.
type OnlineStatus string

const (
	OnlineStatusOnline    OnlineStatus = "online"
	OnlineStatusDND       OnlineStatus = "dnd"
	OnlineStatusIdle      OnlineStatus = "idle"
	OnlineStatusInvisible OnlineStatus = "invisible"
	OnlineStatusOffline   OnlineStatus = "offline"
)

// ActivityType represents an activity's type.
type ActivityType int32

const (
	ActivityTypePlaying ActivityType = iota
	ActivityTypeStreaming
	ActivityTypeListening
	ActivityTypeWatching
	ActivityTypeCustom
	ActivityTypeCompeting
)

// Activity represents what the current user is doing.
//
// URL is only meaningful when Type is ActivityTypeStreaming, State only when
// Type is ActivityTypeCustom.
type Activity struct {
	Name  string       `json:"name"`
	Type  ActivityType `json:"type"`
	URL   string       `json:"url,omitempty"`
	State string       `json:"state,omitempty"`
}

// NewActivityPlaying creates an activity shown as "Playing <name>".
func NewActivityPlaying(name string) Activity {
	return Activity{Name: name, Type: ActivityTypePlaying}
}

// NewActivityStreaming creates an activity shown as "Streaming <name>".
func NewActivityStreaming(name, url string) Activity {
	return Activity{Name: name, Type: ActivityTypeStreaming, URL: url}
}

// NewActivityListening creates an activity shown as "Listening to <name>".
func NewActivityListening(name string) Activity {
	return Activity{Name: name, Type: ActivityTypeListening}
}

// NewActivityWatching creates an activity shown as "Watching <name>".
func NewActivityWatching(name string) Activity {
	return Activity{Name: name, Type: ActivityTypeWatching}
}

// NewActivityCompeting creates an activity shown as "Competing in <name>".
func NewActivityCompeting(name string) Activity {
	return Activity{Name: name, Type: ActivityTypeCompeting}
}

// NewActivityCustom creates an activity shown as "<state>". The gateway
// requires a name even though it is never displayed.
func NewActivityCustom(state string) Activity {
	return Activity{Name: "~", Type: ActivityTypeCustom, State: state}
}

// UpdateStatus updates the presence of the current user.
type UpdateStatus struct {
	Since      int64        `json:"since,omitempty"`
	Activities []Activity   `json:"activities,omitempty"`
	Status     OnlineStatus `json:"status"`
	AFK        bool         `json:"afk"`
}
