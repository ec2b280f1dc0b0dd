package client_test

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/flowpool/flowpool/cmd/arrayd/server"
	"github.com/flowpool/flowpool/pkg/domain"
	"github.com/flowpool/flowpool/pkg/store"
	"github.com/flowpool/flowpool/pkg/store/client"
	"github.com/flowpool/flowpool/pkg/utils/try"
)

func newStoreServer(t *testing.T) *client.Client {
	t.Helper()

	e := echo.New()
	for _, ep := range server.Endpoints(store.New(t.TempDir())) {
		e.Add(ep.Method, ep.Path, ep.Handler)
	}
	svr := httptest.NewServer(e)
	t.Cleanup(svr.Close)

	return client.New(svr.URL)
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("arrays round-trip through the API", func(t *testing.T) {
		c := newStoreServer(t)

		if err := c.EnsureContainer(ctx, "runs/scan-1"); err != nil {
			t.Fatal(err)
		}
		if err := c.CreateArray(ctx, "runs/scan-1/shot_mean", []int{1, 2, 2}, []byte{1, 2, 3, 4}); err != nil {
			t.Fatal(err)
		}

		shape := try.To(c.PatchArray(
			ctx, "runs/scan-1/shot_mean", 1, true, []int{1, 2, 2}, []byte{5, 6, 7, 8},
		)).OrFatal(t)
		if len(shape) != 3 || shape[0] != 2 {
			t.Error("shape after extend:", shape)
		}

		data, shape, err := c.ReadFull(ctx, "runs/scan-1/shot_mean", "1:2,0:2,0:2")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, []byte{5, 6, 7, 8}) {
			t.Error("data:", data)
		}
		if len(shape) != 3 || shape[0] != 1 {
			t.Error("shape:", shape)
		}

		structure := try.To(c.ArrayStructure(ctx, "runs/scan-1/shot_mean")).OrFatal(t)
		if len(structure.Shape) != 3 || structure.Shape[0] != 2 {
			t.Error("structure shape:", structure.Shape)
		}
		if structure.DType != "uint8" {
			t.Error(`dtype "uint8" !=`, structure.DType)
		}
	})

	t.Run("tables round-trip through the API", func(t *testing.T) {
		c := newStoreServer(t)
		header := "seq,value\n"

		if err := c.CreateTable(ctx, "runs/scan-1/detected_peaks", []byte(header+"0,1\n")); err != nil {
			t.Fatal(err)
		}
		if err := c.AppendPartition(ctx, "runs/scan-1/detected_peaks", []byte(header+"1,2\n")); err != nil {
			t.Fatal(err)
		}

		csv := try.To(c.ReadTable(ctx, "runs/scan-1/detected_peaks")).OrFatal(t)
		if string(csv) != header+"0,1\n1,2\n" {
			t.Errorf("table: %q", csv)
		}
	})

	t.Run("the server's statuses map back onto sentinel errors", func(t *testing.T) {
		c := newStoreServer(t)

		if _, _, err := c.ReadFull(ctx, "nowhere", ""); !errors.Is(err, domain.ErrMissing) {
			t.Error("unexpected error:", err)
		}

		if err := c.CreateArray(ctx, "a", []int{1}, []byte{0}); err != nil {
			t.Fatal(err)
		}
		if err := c.CreateArray(ctx, "a", []int{1}, []byte{0}); !errors.Is(err, domain.ErrConflict) {
			t.Error("unexpected error:", err)
		}

		_, err := c.PatchArray(ctx, "a", 7, true, []int{1}, []byte{0})
		if !errors.Is(err, store.ErrOutOfRange) {
			t.Error("unexpected error:", err)
		}
	})
}
