// Package signaling defines the narrow message contracts the Streaming
// Controller exchanges with the control-plane signaling bus. The bus
// itself (its transport, reconnection, and sharding) is an external
// collaborator out of scope here (§1, §6); this package only names the
// message shapes both sides agree on.
package signaling

// Inbound message kinds delivered by the host's signaling bus.
const (
	KindVoiceStateUpdate  = "VOICE_STATE_UPDATE"
	KindVoiceServerUpdate = "VOICE_SERVER_UPDATE"
	KindStreamCreate      = "STREAM_CREATE"
	KindStreamServerUpdate = "STREAM_SERVER_UPDATE"
)

// VoiceStateUpdate sets the session id when UserID matches the local user.
type VoiceStateUpdate struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// VoiceServerUpdate sets the server endpoint and token when GuildID matches
// the session being joined.
type VoiceServerUpdate struct {
	GuildID  string `json:"guild_id"`
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
}

// StreamCreate announces a Go-Live sub-session. StreamKey has the form
// "guild:<guild_id>:<channel_id>:<user_id>".
type StreamCreate struct {
	StreamKey  string `json:"stream_key"`
	RTCServerID string `json:"rtc_server_id"`
}

// StreamServerUpdate carries the Go-Live sub-session's own endpoint/token.
type StreamServerUpdate struct {
	StreamKey string `json:"stream_key"`
	Endpoint  string `json:"endpoint"`
	Token     string `json:"token"`
}

// Dispatcher receives classified inbound signaling events. A Streaming
// Controller (or its owner) implements this to react to bus traffic
// without depending on the bus's transport.
type Dispatcher interface {
	OnVoiceStateUpdate(VoiceStateUpdate)
	OnVoiceServerUpdate(VoiceServerUpdate)
	OnStreamCreate(StreamCreate)
	OnStreamServerUpdate(StreamServerUpdate)
}

// Outbound gateway opcodes (§6), sent by the caller through whatever
// transport the bus uses; this package only fixes their payload shape.
const (
	OpVoiceStateUpdate = "VOICE_STATE_UPDATE"
	OpStreamCreate     = "STREAM_CREATE"
	OpStreamSetPaused  = "STREAM_SET_PAUSED"
	OpStreamDelete     = "STREAM_DELETE"
)

// OutboundVoiceStateUpdate joins a voice channel or updates self_video. A
// nil GuildID/ChannelID pair with SelfMute true leaves voice.
type OutboundVoiceStateUpdate struct {
	GuildID   *string `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
	SelfVideo bool    `json:"self_video"`
}

// JoinVoiceChannel builds the VOICE_STATE_UPDATE payload to join a channel
// and advertise camera state.
func JoinVoiceChannel(guildID, channelID string, selfVideo bool) OutboundVoiceStateUpdate {
	return OutboundVoiceStateUpdate{
		GuildID:   &guildID,
		ChannelID: &channelID,
		SelfMute:  false,
		SelfDeaf:  true,
		SelfVideo: selfVideo,
	}
}

// LeaveVoiceChannel builds the VOICE_STATE_UPDATE payload to leave voice.
func LeaveVoiceChannel() OutboundVoiceStateUpdate {
	return OutboundVoiceStateUpdate{SelfMute: true}
}

// OutboundStreamCreate starts a Go-Live sub-session in guildID/channelID.
type OutboundStreamCreate struct {
	Type            string  `json:"type"`
	GuildID         string  `json:"guild_id"`
	ChannelID       string  `json:"channel_id"`
	PreferredRegion *string `json:"preferred_region"`
}

// NewStreamCreate builds the STREAM_CREATE payload.
func NewStreamCreate(guildID, channelID string) OutboundStreamCreate {
	return OutboundStreamCreate{Type: "guild", GuildID: guildID, ChannelID: channelID}
}

// OutboundStreamSetPaused unpauses a Go-Live sub-session immediately after
// STREAM_CREATE.
type OutboundStreamSetPaused struct {
	StreamKey string `json:"stream_key"`
	Paused    bool   `json:"paused"`
}

// OutboundStreamDelete ends a Go-Live sub-session.
type OutboundStreamDelete struct {
	StreamKey string `json:"stream_key"`
}
