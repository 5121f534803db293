package discord

// Dispatch event bodies. Only the subset the dispatcher decodes into typed
// handler calls lives here; everything else is delivered raw.

// Ready is received after a successful Identify.
type Ready struct {
	Version          int32              `json:"v"`
	User             User               `json:"user"`
	Guilds           []UnavailableGuild `json:"guilds"`
	SessionID        string             `json:"session_id"`
	ResumeGatewayURL string             `json:"resume_gateway_url"`
	Shard            [2]int32           `json:"shard,omitempty"`
}

// Resumed is received after a successful Resume. It carries no fields.
type Resumed struct{}

// User is the minimal current-user and author projection.
type User struct {
	ID       Snowflake `json:"id"`
	Username string    `json:"username"`
	Bot      bool      `json:"bot"`
}

// UnavailableGuild is a guild stub from Ready or GuildDelete.
type UnavailableGuild struct {
	ID          Snowflake `json:"id"`
	Unavailable bool      `json:"unavailable"`
}

// Guild is the minimal guild projection from GuildCreate.
type Guild struct {
	ID          Snowflake `json:"id"`
	Name        string    `json:"name"`
	MemberCount int32     `json:"member_count"`
	Unavailable bool      `json:"unavailable"`
}

// GuildMember is the minimal member projection from member chunks.
type GuildMember struct {
	User *User  `json:"user,omitempty"`
	Nick string `json:"nick,omitempty"`
}

// GuildMembersChunk is received in response to RequestGuildMembers.
type GuildMembersChunk struct {
	GuildID    Snowflake     `json:"guild_id"`
	Members    []GuildMember `json:"members"`
	ChunkIndex int32         `json:"chunk_index"`
	ChunkCount int32         `json:"chunk_count"`
	NotFound   []Snowflake   `json:"not_found,omitempty"`
	Nonce      string        `json:"nonce,omitempty"`
}

// Message is the minimal message projection from MessageCreate.
type Message struct {
	ID        Snowflake  `json:"id"`
	ChannelID Snowflake  `json:"channel_id"`
	GuildID   *Snowflake `json:"guild_id,omitempty"`
	Author    User       `json:"author"`
	Content   string     `json:"content"`
}

// Dispatch event names the library decodes.
const (
	EventTypeReady             = "READY"
	EventTypeResumed           = "RESUMED"
	EventTypeGuildCreate       = "GUILD_CREATE"
	EventTypeGuildDelete       = "GUILD_DELETE"
	EventTypeGuildMembersChunk = "GUILD_MEMBERS_CHUNK"
	EventTypeMessageCreate     = "MESSAGE_CREATE"
)
