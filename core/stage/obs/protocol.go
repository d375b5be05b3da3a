package obs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

type opCode int

const (
	opHello      opCode = 0
	opIdentify   opCode = 1
	opIdentified opCode = 2
	opEvent      opCode = 5
	opRequest    opCode = 6
	opResponse   opCode = 7
)

const rpcVersion = 1

// Event subscription bits, see the obs-websocket protocol.
const (
	SubscriptionGeneral     = 1 << 0
	SubscriptionScenes      = 1 << 2
	SubscriptionInputs      = 1 << 3
	SubscriptionMediaInputs = 1 << 8
)

const (
	EventMediaInputPlaybackStarted = "MediaInputPlaybackStarted"
	EventMediaInputPlaybackEnded   = "MediaInputPlaybackEnded"

	mediaActionRestart = "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_RESTART"
)

type message struct {
	Op   opCode          `json:"op"`
	Data json.RawMessage `json:"d"`
}

type hello struct {
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication,omitempty"`
}

type identify struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type request struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type response struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment,omitempty"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData,omitempty"`
}

// Event is an OBS event pushed to subscribers.
type Event struct {
	Type string          `json:"eventType"`
	Data json.RawMessage `json:"eventData,omitempty"`
}

// InputName returns the inputName field carried by most input events.
func (e Event) InputName() string {
	var data struct {
		InputName string `json:"inputName"`
	}
	_ = json.Unmarshal(e.Data, &data)
	return data.InputName
}

// RequestError is a request OBS rejected.
type RequestError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *RequestError) Error() string {
	if e.Comment == "" {
		return fmt.Sprintf("obs request %s failed with code %d", e.RequestType, e.Code)
	}
	return fmt.Sprintf("obs request %s failed with code %d: %s", e.RequestType, e.Code, e.Comment)
}

// authResponse computes base64(sha256(base64(sha256(password + salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	encodedSecret := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(encodedSecret + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

type MediaState string

const (
	MediaStatePlaying   MediaState = "playing"
	MediaStateEnded     MediaState = "ended"
	MediaStateStopped   MediaState = "stopped"
	MediaStatePaused    MediaState = "paused"
	MediaStateOpening   MediaState = "opening"
	MediaStateBuffering MediaState = "buffering"
	MediaStateError     MediaState = "error"
	MediaStateNone      MediaState = "none"
)

// NormalizeMediaState maps raw OBS_MEDIA_STATE_* values onto MediaState.
func NormalizeMediaState(raw string) MediaState {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "obs_media_state_")
	switch {
	case s == "":
		return MediaStateNone
	case strings.Contains(s, "playing"):
		return MediaStatePlaying
	case strings.Contains(s, "ended"):
		return MediaStateEnded
	case strings.Contains(s, "stopped"):
		return MediaStateStopped
	case strings.Contains(s, "paused"):
		return MediaStatePaused
	}
	return MediaState(s)
}

// Started reports whether playback has begun at some point.
func (s MediaState) Started() bool {
	return s == MediaStatePlaying || s == MediaStateEnded || s == MediaStateStopped
}

// Finished reports whether playback is over.
func (s MediaState) Finished() bool {
	return s == MediaStateEnded || s == MediaStateStopped
}
