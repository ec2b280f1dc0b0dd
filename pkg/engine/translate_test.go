package engine_test

import (
	"testing"

	"github.com/flowpool/flowpool/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslator(t *testing.T) {
	tr := engine.Translator{
		ContainerWorkDir: "/flowpool",
		HostWorkDir:      "/home/beamline/flowpool",
	}

	t.Run("it maps paths under the work dir onto the host", func(t *testing.T) {
		host, err := tr.Translate("/flowpool/tmp/params-123.yaml")
		require.NoError(t, err)
		assert.Equal(t, "/home/beamline/flowpool/tmp/params-123.yaml", host)
	})

	t.Run("it refuses paths outside the work dir", func(t *testing.T) {
		_, err := tr.Translate("/etc/passwd")
		assert.Error(t, err)

		_, err = tr.Translate("/flowpool/../etc/passwd")
		assert.Error(t, err)
	})

	t.Run("identity translator passes everything through", func(t *testing.T) {
		id := engine.Identity()
		host, err := id.Translate("/anywhere/at/all")
		require.NoError(t, err)
		assert.Equal(t, "/anywhere/at/all", host)
	})

	t.Run("it rewrites only the source of a bind spec", func(t *testing.T) {
		bind, err := tr.TranslateBind("/flowpool/tmp/p.yaml:/app/work/config/params.yaml:ro")
		require.NoError(t, err)
		assert.Equal(
			t,
			"/home/beamline/flowpool/tmp/p.yaml:/app/work/config/params.yaml:ro",
			bind,
		)
	})

	t.Run("binds without destination are rejected", func(t *testing.T) {
		_, err := tr.TranslateBind("/flowpool/tmp/p.yaml")
		assert.Error(t, err)
	})
}
