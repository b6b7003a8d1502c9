package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prite36/irrigation-remote/internal/config"
	"github.com/prite36/irrigation-remote/internal/engine"
	"github.com/prite36/irrigation-remote/internal/models"
)

const signingSecret = "8f742231b10e8888abcd99yyyzzz85a5"

type call struct {
	op      string
	plant   models.Plant
	minutes float64
}

type fakeController struct {
	mu       sync.Mutex
	calls    []call
	err      error
	names    map[int64]string
	watering []engine.PlantWatering
}

func (f *fakeController) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeController) StartManual(p models.Plant, minutes float64) error {
	return f.record(call{op: "manual", plant: p, minutes: minutes})
}

func (f *fakeController) StartSmart(p models.Plant) error {
	return f.record(call{op: "smart", plant: p})
}

func (f *fakeController) Stop(id int64) error {
	return f.record(call{op: "stop", plant: models.Plant{ID: id}})
}

func (f *fakeController) RestartValve(p models.Plant) error {
	return f.record(call{op: "restart", plant: p})
}

func (f *fakeController) GetPlantWateringState(id int64) models.WateringState {
	for _, p := range f.watering {
		if p.PlantID == id {
			return p.State
		}
	}
	return models.IdleState()
}

func (f *fakeController) GetWateringPlants() []engine.PlantWatering { return f.watering }

func (f *fakeController) IsAnyPlantWatering() bool { return len(f.watering) > 0 }

func (f *fakeController) PlantName(id int64) string { return f.names[id] }

func (f *fakeController) lastCall(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type connected bool

func (c connected) IsConnected() bool { return bool(c) }

func newTestHandler(ctl *fakeController) http.Handler {
	cfg := &config.Config{Slack: config.SlackConfig{SigningSecret: signingSecret}}
	return NewHandler(cfg, ctl, connected(true), nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoints(t *testing.T) {
	ctl := &fakeController{watering: []engine.PlantWatering{
		{PlantID: 3, State: models.WateringState{Mode: models.ModeSmart, IsWateringActive: true, SessionID: "S3"}},
	}}
	h := newTestHandler(ctl)

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Connected)
	assert.True(t, status.Watering)

	rec = do(t, h, http.MethodGet, "/api/v1/watering", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var plants []engine.PlantWatering
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plants))
	require.Len(t, plants, 1)
	assert.Equal(t, "S3", plants[0].State.SessionID)

	rec = do(t, h, http.MethodGet, "/api/v1/plants/9/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"idle"`)

	rec = do(t, h, http.MethodGet, "/api/v1/plants/abc/state", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommandEndpoints(t *testing.T) {
	ctl := &fakeController{names: map[int64]string{3: "Rose"}}
	h := newTestHandler(ctl)

	rec := do(t, h, http.MethodPost, "/api/v1/plants/3/manual", `{"minutes": 5}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, call{op: "manual", plant: models.Plant{ID: 3, Name: "Rose"}, minutes: 5}, ctl.lastCall(t))

	rec = do(t, h, http.MethodPost, "/api/v1/plants/7/smart", `{"plantName": "Basil"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, call{op: "smart", plant: models.Plant{ID: 7, Name: "Basil"}}, ctl.lastCall(t))

	rec = do(t, h, http.MethodPost, "/api/v1/plants/3/stop", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "stop", ctl.lastCall(t).op)

	rec = do(t, h, http.MethodPost, "/api/v1/plants/3/restart", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "restart", ctl.lastCall(t).op)

	rec = do(t, h, http.MethodPost, "/api/v1/plants/3/manual", `{"minutes":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/plants/3/stop", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCommandErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("start manual: %w", engine.ErrPlantNameRequired), http.StatusBadRequest},
		{engine.ErrInvalidDuration, http.StatusBadRequest},
		{engine.ErrRequestInFlight, http.StatusConflict},
		{engine.ErrValveBlocked, http.StatusConflict},
		{engine.ErrNotBlocked, http.StatusConflict},
		{engine.ErrChannelDisconnected, http.StatusServiceUnavailable},
		{fmt.Errorf("broken pipe"), http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			ctl := &fakeController{err: tc.err}
			rec := do(t, newTestHandler(ctl), http.MethodPost, "/api/v1/plants/3/smart", `{"plantName":"Rose"}`)
			assert.Equal(t, tc.want, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.err.Error(), body.Error)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(&fakeController{})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/plants/3/stop", nil)
	req.Header.Set("Origin", "https://garden.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func signedSlackRequest(t *testing.T, path string, body string, secret string) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte("v0:" + ts + ":" + body))

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func slashBody(text string) string {
	form := url.Values{}
	form.Set("command", "/garden")
	form.Set("text", text)
	form.Set("user_name", "gardener")
	return form.Encode()
}

func TestSlackCommand(t *testing.T) {
	ctl := &fakeController{names: map[int64]string{5: "Fern"}}
	h := newTestHandler(ctl)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedSlackRequest(t, "/slack/commands", slashBody("manual 5 2"), signingSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	var msg struct {
		ResponseType string `json:"response_type"`
		Text         string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "ephemeral", msg.ResponseType)
	assert.Contains(t, msg.Text, "manual requested for plant 5")
	assert.Equal(t, call{op: "manual", plant: models.Plant{ID: 5, Name: "Fern"}, minutes: 2}, ctl.lastCall(t))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, signedSlackRequest(t, "/slack/commands", slashBody("dance"), signingSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Usage")
}

func TestSlackCommandRejectsBadSignature(t *testing.T) {
	ctl := &fakeController{}
	rec := httptest.NewRecorder()
	newTestHandler(ctl).ServeHTTP(rec, signedSlackRequest(t, "/slack/commands", slashBody("stop 1"), "wrong-secret"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ctl.calls)
}

func TestSlackURLVerification(t *testing.T) {
	body := `{"token":"t","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","type":"url_verification"}`
	rec := httptest.NewRecorder()
	newTestHandler(&fakeController{}).ServeHTTP(rec, signedSlackRequest(t, "/slack/events", body, signingSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", rec.Body.String())
}

func TestSlackDisabledWithoutSecret(t *testing.T) {
	h := NewHandler(&config.Config{}, &fakeController{}, connected(false), nil)
	rec := do(t, h, http.MethodPost, "/slack/commands", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
