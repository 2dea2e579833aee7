// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/noclap/internal/api/handlers"
	"github.com/wingedpig/noclap/internal/api/version"
	"github.com/wingedpig/noclap/internal/backend"
	"github.com/wingedpig/noclap/internal/config"
	"github.com/wingedpig/noclap/internal/devices"
	"github.com/wingedpig/noclap/internal/events"
	"github.com/wingedpig/noclap/internal/session"
)

type stubBackend struct{}

func (stubBackend) ListDevices(ctx context.Context) ([]backend.Device, error) {
	return []backend.Device{
		{ID: 1, Name: "Mic", Kind: backend.KindInput, Channels: 1},
		{ID: 2, Name: "Cable", Kind: backend.KindOutput, Channels: 2},
	}, nil
}

func (stubBackend) Start(ctx context.Context, inputID, outputID int, delayMs float64) error {
	return nil
}

func (stubBackend) Stop(ctx context.Context) error { return nil }

func (stubBackend) Status(ctx context.Context) (backend.Status, error) {
	return backend.Status{}, nil
}

func newTestDeps(t *testing.T) Dependencies {
	t.Helper()
	bus := events.NewMemoryEventBus(events.MemoryBusConfig{HistoryMaxEvents: 100, HistoryMaxAge: time.Hour})
	registry := devices.NewRegistry(stubBackend{}, bus, nil)
	_, err := registry.Refresh(context.Background())
	require.NoError(t, err)

	ctrl := session.NewController(session.Options{
		Backend:        stubBackend{},
		Resolver:       registry,
		Bus:            bus,
		DefaultDelayMs: 140,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		bus.Close()
	})

	return Dependencies{
		Session:  ctrl,
		Devices:  registry,
		EventBus: bus,
		Version:  "test",
	}
}

func TestRouter_Routes(t *testing.T) {
	srv := httptest.NewServer(NewRouter(newTestDeps(t)))
	defer srv.Close()

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{"GET", "/api/v1/state", "", http.StatusOK},
		{"GET", "/api/v1/version", "", http.StatusOK},
		{"GET", "/api/v1/devices", "", http.StatusOK},
		{"POST", "/api/v1/devices/refresh", "", http.StatusOK},
		{"PUT", "/api/v1/routing/selection", `{"input":"Mic","output":"Cable"}`, http.StatusOK},
		{"POST", "/api/v1/routing/enable", "", http.StatusOK},
		{"POST", "/api/v1/routing/disable", "", http.StatusOK},
		{"GET", "/api/v1/events", "", http.StatusOK},
		{"GET", "/api/v1/routing/enable", "", http.StatusMethodNotAllowed},
		{"GET", "/api/v1/backend", "", http.StatusNotFound}, // no process wired
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestRouter_UnmatchedUseEnvelope(t *testing.T) {
	srv := httptest.NewServer(NewRouter(newTestDeps(t)))
	defer srv.Close()

	tests := []struct {
		method string
		path   string
		status int
		code   string
	}{
		{"GET", "/api/v1/routing/enable", http.StatusMethodNotAllowed, handlers.ErrMethodNotAllowed},
		{"DELETE", "/api/v1/state", http.StatusMethodNotAllowed, handlers.ErrMethodNotAllowed},
		{"GET", "/api/v1/nope", http.StatusNotFound, handlers.ErrNotFound},
		{"GET", "/elsewhere", http.StatusNotFound, handlers.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var body handlers.Response
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestRouter_VersionHeader(t *testing.T) {
	srv := httptest.NewServer(NewRouter(newTestDeps(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, version.LatestVersion, resp.Header.Get(version.Header))

	req, _ := http.NewRequest("GET", srv.URL+"/api/v1/state", nil)
	req.Header.Set(version.Header, "2001-01-01")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_StateStream(t *testing.T) {
	srv := httptest.NewServer(NewRouter(newTestDeps(t)))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/state/ws?events=routing.*"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first handlers.StreamMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, handlers.MessageSnapshot, first.Type)

	req, _ := http.NewRequest("PUT", srv.URL+"/api/v1/routing/selection", strings.NewReader(`{"input":"Mic","output":"Cable"}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = http.Post(srv.URL+"/api/v1/routing/enable", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var sawRunning, sawStarted bool
	for !(sawRunning && sawStarted) {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Type     string          `json:"type"`
			Snapshot json.RawMessage `json:"snapshot"`
			Event    *events.Event   `json:"event"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		switch msg.Type {
		case handlers.MessageSnapshot:
			var snap struct {
				State string `json:"state"`
			}
			require.NoError(t, json.Unmarshal(msg.Snapshot, &snap))
			if snap.State == "running" {
				sawRunning = true
			}
		case handlers.MessageEvent:
			assert.True(t, strings.HasPrefix(msg.Event.Type, "routing."))
			if msg.Event.Type == events.EventRoutingStarted {
				sawStarted = true
			}
		}
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, newTestDeps(t))
	assert.Equal(t, "127.0.0.1:0", s.Addr())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/state")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
