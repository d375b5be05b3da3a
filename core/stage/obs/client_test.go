package obs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOBS struct {
	t        *testing.T
	password string

	mu       sync.Mutex
	requests []request
	conn     *websocket.Conn
	writeMu  sync.Mutex

	handle func(req request) (bool, any)
}

func (f *fakeOBS) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("failed to upgrade: %v", err)
		return
	}
	defer conn.Close()

	helloData := map[string]any{"obsWebSocketVersion": "5.5.0", "rpcVersion": 1}
	if f.password != "" {
		helloData["authentication"] = map[string]string{"challenge": "chal", "salt": "salt"}
	}
	f.send(conn, opHello, helloData)

	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		return
	}
	var ident identify
	_ = json.Unmarshal(msg.Data, &ident)
	if f.password != "" && ident.Authentication != authResponse(f.password, "salt", "chal") {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4009, "Authentication failed."))
		return
	}
	f.send(conn, opIdentified, map[string]int{"negotiatedRpcVersion": 1})

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	for {
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		var req request
		_ = json.Unmarshal(msg.Data, &req)
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		ok, data := true, any(nil)
		if f.handle != nil {
			ok, data = f.handle(req)
		}
		resp := map[string]any{
			"requestType":   req.RequestType,
			"requestId":     req.RequestID,
			"requestStatus": map[string]any{"result": ok, "code": map[bool]int{true: 100, false: 600}[ok], "comment": map[bool]string{true: "", false: "not found"}[ok]},
		}
		if data != nil {
			resp["responseData"] = data
		}
		f.send(conn, opResponse, resp)
	}
}

func (f *fakeOBS) send(conn *websocket.Conn, op opCode, data any) {
	payload, _ := json.Marshal(data)
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.WriteJSON(message{Op: op, Data: payload})
}

func (f *fakeOBS) emit(eventType string, data any) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	payload, _ := json.Marshal(data)
	f.send(conn, opEvent, map[string]any{"eventType": eventType, "eventIntent": 256, "eventData": json.RawMessage(payload)})
}

func (f *fakeOBS) lastRequest() request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func startFakeOBS(t *testing.T, f *fakeOBS) string {
	t.Helper()
	f.t = t
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDialAuthenticatesWithPassword(t *testing.T) {
	url := startFakeOBS(t, &fakeOBS{password: "secret"})

	client, err := Dial(context.Background(), url, WithPassword("secret"))
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "5.5.0", client.Version)
}

func TestDialWithoutPasswordFailsWhenRequired(t *testing.T) {
	url := startFakeOBS(t, &fakeOBS{password: "secret"})

	_, err := Dial(context.Background(), url)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestSceneNamesAndMediaStatus(t *testing.T) {
	fake := &fakeOBS{handle: func(req request) (bool, any) {
		switch req.RequestType {
		case "GetSceneList":
			return true, map[string]any{"scenes": []map[string]any{{"sceneName": "SCENE_A"}, {"sceneName": "SCENE_B"}}}
		case "GetMediaInputStatus":
			return true, map[string]any{"mediaState": "OBS_MEDIA_STATE_PLAYING", "mediaDuration": 2500, "mediaCursor": 100}
		}
		return true, nil
	}}
	client, err := Dial(context.Background(), startFakeOBS(t, fake))
	require.NoError(t, err)
	defer client.Close()

	scenes, err := client.SceneNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SCENE_A", "SCENE_B"}, scenes)

	status, err := client.MediaStatus(context.Background(), "AUDIO_PLAYER")
	require.NoError(t, err)
	assert.Equal(t, MediaStatePlaying, status.State)
	assert.Equal(t, 2500*time.Millisecond, status.Duration)
}

func TestSetMediaFileSendsAbsolutePath(t *testing.T) {
	fake := &fakeOBS{}
	client, err := Dial(context.Background(), startFakeOBS(t, fake))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.SetMediaFile(context.Background(), "AUDIO_PLAYER", "audio/0001_A.mp3"))

	req := fake.lastRequest()
	assert.Equal(t, "SetInputSettings", req.RequestType)
	data, _ := json.Marshal(req.RequestData)
	var settings struct {
		InputName     string `json:"inputName"`
		InputSettings struct {
			LocalFile string `json:"local_file"`
		} `json:"inputSettings"`
		Overlay bool `json:"overlay"`
	}
	require.NoError(t, json.Unmarshal(data, &settings))
	assert.Equal(t, "AUDIO_PLAYER", settings.InputName)
	assert.True(t, strings.HasSuffix(settings.InputSettings.LocalFile, "audio/0001_A.mp3"))
	assert.True(t, strings.HasPrefix(settings.InputSettings.LocalFile, "/"))
	assert.True(t, settings.Overlay)
}

func TestFailedRequestReturnsRequestError(t *testing.T) {
	fake := &fakeOBS{handle: func(req request) (bool, any) { return false, nil }}
	client, err := Dial(context.Background(), startFakeOBS(t, fake))
	require.NoError(t, err)
	defer client.Close()

	err = client.InputExists(context.Background(), "MISSING")

	var requestErr *RequestError
	require.ErrorAs(t, err, &requestErr)
	assert.Equal(t, "GetInputSettings", requestErr.RequestType)
	assert.Equal(t, 600, requestErr.Code)
}

func TestSubscribeReceivesPlaybackEvents(t *testing.T) {
	fake := &fakeOBS{}
	client, err := Dial(context.Background(), startFakeOBS(t, fake))
	require.NoError(t, err)
	defer client.Close()

	events, cancel := client.Subscribe()
	defer cancel()

	// A round trip guarantees the server side connection is registered.
	_, err = client.GetVersion(context.Background())
	require.NoError(t, err)
	fake.emit(EventMediaInputPlaybackEnded, map[string]string{"inputName": "AUDIO_PLAYER"})

	select {
	case event := <-events:
		assert.Equal(t, EventMediaInputPlaybackEnded, event.Type)
		assert.Equal(t, "AUDIO_PLAYER", event.InputName())
	case <-time.After(2 * time.Second):
		t.Fatal("expected playback event")
	}
}

func TestNormalizeMediaState(t *testing.T) {
	assert.Equal(t, MediaStatePlaying, NormalizeMediaState("OBS_MEDIA_STATE_PLAYING"))
	assert.Equal(t, MediaStateEnded, NormalizeMediaState("obs_media_state_ended"))
	assert.Equal(t, MediaStateOpening, NormalizeMediaState("OBS_MEDIA_STATE_OPENING"))
	assert.Equal(t, MediaStateNone, NormalizeMediaState(""))
	assert.True(t, MediaStateStopped.Started())
	assert.True(t, MediaStateStopped.Finished())
	assert.False(t, MediaStatePlaying.Finished())
}
