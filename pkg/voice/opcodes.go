package voice

import "encoding/json"

// Gateway opcodes used by the voice-gateway v7 control connection (§4.5).
const (
	OpIdentify          = 0
	OpSelectProtocol    = 1
	OpReady             = 2
	OpHeartbeat         = 3
	OpSelectProtocolAck = 4
	OpSpeaking          = 5
	OpHeartbeatAck      = 6
	OpResume            = 7
	OpHello             = 8
	OpResumed           = 9
	OpVideo             = 12
)

// heartbeatNonce is the fixed nonce value sent with every HEARTBEAT.
const heartbeatNonce = 42069

// frame is the {op, d} envelope every voice-gateway message uses.
type frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

func encodeFrame(op int, payload any) ([]byte, error) {
	d, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Op: op, D: d})
}

type identifyPayload struct {
	ServerID  string `json:"server_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	Video     bool   `json:"video"`
	Streams   []struct {
		Type string `json:"type"`
		RID  string `json:"rid"`
		SSRC uint32 `json:"ssrc"`
	} `json:"streams,omitempty"`
}

type helloPayload struct {
	HeartbeatIntervalMs float64 `json:"heartbeat_interval"`
}

type readyPayload struct {
	SSRC  uint32   `json:"ssrc"`
	IP    string   `json:"ip"`
	Port  int      `json:"port"`
	Modes []string `json:"modes"`
}

type selectProtocolPayload struct {
	Protocol string `json:"protocol"`
	Data     struct {
		Address string `json:"address"`
		Port    int    `json:"port"`
		Mode    string `json:"mode"`
	} `json:"data"`
	Codecs []codecDescriptor `json:"codecs,omitempty"`
}

type codecDescriptor struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	PayloadType  int    `json:"payload_type"`
	RTXPT        int    `json:"rtx_payload_type,omitempty"`
	Priority     int    `json:"priority"`
	Encode       bool   `json:"encode,omitempty"`
	Decode       bool   `json:"decode,omitempty"`
}

type selectProtocolAckPayload struct {
	SecretKey []int  `json:"secret_key"`
	Mode      string `json:"mode"`
}

type speakingPayload struct {
	Speaking int    `json:"speaking"`
	Delay    int    `json:"delay"`
	SSRC     uint32 `json:"ssrc"`
}

type videoSimulcastLayer struct {
	Type         string `json:"type"`
	RID          string `json:"rid"`
	Quality      int    `json:"quality"`
	SSRC         uint32 `json:"ssrc,omitempty"`
	RTXSSRC      uint32 `json:"rtx_ssrc,omitempty"`
	MaxBitrate   int    `json:"max_bitrate"`
	MaxFramerate int    `json:"max_framerate"`
	MaxResolution struct {
		Type   string `json:"type"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"max_resolution"`
}

type videoPayload struct {
	AudioSSRC uint32                `json:"audio_ssrc"`
	VideoSSRC uint32                `json:"video_ssrc"`
	RTXSSRC   uint32                `json:"rtx_ssrc"`
	Streams   []videoSimulcastLayer `json:"streams"`
}

type resumePayload struct {
	ServerID  string `json:"server_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}
