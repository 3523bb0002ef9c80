package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/routing"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type tenant string

func textHandler(status int, body string) routing.Handler {
	return func(ctx context.Context, req *routing.Request) *routing.Response {
		return routing.NewResponse(status, "text/plain", []byte(body))
	}
}

func buildRouter(t *testing.T, configure func(b *routing.Builder)) *routing.Router {
	t.Helper()
	b := routing.NewBuilder().
		Fallback(textHandler(http.StatusNotFound, "not found")).
		Logger(discardLogger)
	configure(b)
	router, err := b.Build()
	require.NoError(t, err)
	return router
}

func TestAdapterDispatch(t *testing.T) {
	var got *routing.Request
	router := buildRouter(t, func(b *routing.Builder) {
		b.Post("/echo", func(ctx context.Context, req *routing.Request) *routing.Response {
			got = req
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			return routing.NewResponse(http.StatusCreated, "text/plain", body)
		})
	})
	ext := routing.NewExtensions(tenant("acme"))
	adapter := NewAdapter(router, ext, nil, discardLogger)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"route", http.MethodPost, "/echo?x=1", "payload", http.StatusCreated, "payload"},
		{"fallback on path", http.MethodGet, "/missing", "", http.StatusNotFound, "not found"},
		{"fallback on method", http.MethodGet, "/echo", "", http.StatusNotFound, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			adapter.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
		})
	}

	require.NotNil(t, got)
	assert.Equal(t, "/echo", got.Path)
	assert.Equal(t, "x=1", got.RawQuery)
	assert.Equal(t, 1, got.ProtoMajor)
	assert.Same(t, ext, got.Extensions)
	v, ok := routing.ExtensionOf[tenant](got.Extensions)
	assert.True(t, ok)
	assert.Equal(t, tenant("acme"), v)
}

func TestAdapterEmptyBody(t *testing.T) {
	router := buildRouter(t, func(b *routing.Builder) {
		b.Delete("/item", func(ctx context.Context, req *routing.Request) *routing.Response {
			return routing.EmptyResponse(http.StatusNoContent)
		})
	})

	rec := httptest.NewRecorder()
	NewAdapter(router, nil, nil, discardLogger).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/item", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Empty(t, rec.Header().Get("Content-Length"))
}

func TestAdapterResolvesNotUpgraded(t *testing.T) {
	var upgrade routing.OnUpgrade
	router := buildRouter(t, func(b *routing.Builder) {
		b.Get("/plain", func(ctx context.Context, req *routing.Request) *routing.Response {
			upgrade = req.Upgrade
			return routing.EmptyResponse(http.StatusOK)
		})
	})

	NewAdapter(router, nil, nil, discardLogger).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))

	require.NotNil(t, upgrade)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, rw, err := upgrade.Wait(ctx)
	assert.ErrorIs(t, err, ErrNotUpgraded)
	assert.Nil(t, conn)
	assert.Nil(t, rw)
}

func TestAdapterNoUpgradeOverHTTP2(t *testing.T) {
	var upgrade routing.OnUpgrade
	router := buildRouter(t, func(b *routing.Builder) {
		b.Get("/h2", func(ctx context.Context, req *routing.Request) *routing.Response {
			upgrade = req.Upgrade
			return routing.EmptyResponse(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/h2", nil)
	req.ProtoMajor, req.ProtoMinor = 2, 0
	NewAdapter(router, nil, nil, discardLogger).ServeHTTP(httptest.NewRecorder(), req)

	assert.Nil(t, upgrade)
}

func TestAdapterHijackUnsupported(t *testing.T) {
	waitErr := make(chan error, 1)
	router := buildRouter(t, func(b *routing.Builder) {
		b.Get("/ws", func(ctx context.Context, req *routing.Request) *routing.Response {
			req.Upgrade.Claim()
			go func() {
				_, _, err := req.Upgrade.Wait(context.Background())
				waitErr <- err
			}()
			return routing.EmptyResponse(http.StatusSwitchingProtocols)
		})
	})

	rec := httptest.NewRecorder()
	NewAdapter(router, nil, nil, discardLogger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	select {
	case err := <-waitErr:
		assert.ErrorIs(t, err, http.ErrNotSupported)
	case <-time.After(5 * time.Second):
		t.Fatal("upgrade future never resolved")
	}
}

func TestAdapterRefusesUnclaimedUpgrade(t *testing.T) {
	var upgrade routing.OnUpgrade
	router := buildRouter(t, func(b *routing.Builder) {
		b.Get("/ws", func(ctx context.Context, req *routing.Request) *routing.Response {
			upgrade = req.Upgrade
			return routing.EmptyResponse(http.StatusSwitchingProtocols)
		})
	})

	rec := httptest.NewRecorder()
	NewAdapter(router, nil, nil, discardLogger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/ws", body["instance"])

	require.NotNil(t, upgrade)
	_, _, err := upgrade.Wait(context.Background())
	assert.ErrorIs(t, err, ErrUpgradeUnclaimed)
}

func TestUpgradeSlotWaitCancelled(t *testing.T) {
	slot := newUpgradeSlot()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := slot.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	slot.resolve(nil, nil, ErrNotUpgraded)
	slot.resolve(nil, nil, io.EOF)
	_, _, err = slot.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNotUpgraded)
}
