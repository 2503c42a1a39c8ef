package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"geodash/internal/charts"
	"geodash/internal/config"
	"geodash/internal/core"
	"geodash/internal/draw"
	"geodash/internal/store"
	"geodash/internal/types"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC)

// testAPI wires a full control surface over an in-memory store.
type testAPI struct {
	server *core.Server
	store  *store.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{
		Environment: "local",
		Server:      config.ServerConfig{AllowedOrigins: []string{"*"}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server, err := core.NewServer(cfg, logger)
	require.NoError(t, err)

	st := store.New(store.Options{
		LookbackDays: 15,
		Clock:        fixedClock{now: testNow},
	})
	controller := draw.NewController(st, fixedClock{now: testNow}, logger)

	server.Router().Route("/v1", func(r chi.Router) {
		NewPolygonHandler(server, st, controller).RegisterRoutes(r)
		NewSourceHandler(server, st).RegisterRoutes(r)
		NewSelectionHandler(server, st).RegisterRoutes(r)
		NewSeriesHandler(st, charts.NewBuilder(st)).RegisterRoutes(r)
	})

	return &testAPI{server: server, store: st}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func validVertices() []types.LatLng {
	return []types.LatLng{
		{Lat: 22.57, Lng: 88.36},
		{Lat: 22.58, Lng: 88.37},
		{Lat: 22.56, Lng: 88.38},
	}
}

func createPolygon(t *testing.T, api *testAPI) types.Polygon {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/v1/polygons", CreatePolygonRequest{
		Vertices: validVertices(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var p types.Polygon
	decodeData(t, rec, &p)
	return p
}
