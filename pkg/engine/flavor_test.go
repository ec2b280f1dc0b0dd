package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flowpool/flowpool/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingServer(t *testing.T, headers map[string]string) engine.Endpoint {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_ping" {
			http.NotFound(w, r)
			return
		}
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	t.Cleanup(server.Close)

	return engine.Endpoint{
		Scheme:  "tcp",
		Address: strings.TrimPrefix(server.URL, "http://"),
	}
}

func TestDetectFlavor(t *testing.T) {
	ctx := context.Background()

	t.Run("a plain engine is docker", func(t *testing.T) {
		ep := pingServer(t, map[string]string{"Api-Version": "1.45"})

		flavor, err := engine.DetectFlavor(ctx, ep)
		require.NoError(t, err)
		assert.Equal(t, engine.Docker, flavor)
	})

	t.Run("Libpod-API-Version header means podman", func(t *testing.T) {
		ep := pingServer(t, map[string]string{"Libpod-API-Version": "5.1.0"})

		flavor, err := engine.DetectFlavor(ctx, ep)
		require.NoError(t, err)
		assert.Equal(t, engine.Podman, flavor)
	})

	t.Run("Libpod server banner means podman", func(t *testing.T) {
		ep := pingServer(t, map[string]string{"Server": "Libpod/5.1.0 (linux)"})

		flavor, err := engine.DetectFlavor(ctx, ep)
		require.NoError(t, err)
		assert.Equal(t, engine.Podman, flavor)
	})

	t.Run("non-200 ping is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(server.Close)

		_, err := engine.DetectFlavor(ctx, engine.Endpoint{
			Scheme:  "tcp",
			Address: strings.TrimPrefix(server.URL, "http://"),
		})
		assert.Error(t, err)
	})
}
