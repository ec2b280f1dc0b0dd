package storepub_test

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/flowpool/flowpool/cmd/arrayd/server"
	"github.com/flowpool/flowpool/pkg/pipeline"
	"github.com/flowpool/flowpool/pkg/pipeline/event"
	"github.com/flowpool/flowpool/pkg/pipeline/storepub"
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

func result(frame int, mean []byte, peaks []event.Peak) pipeline.Result {
	bundle := event.Bundle{
		Width: 2, Height: 1,
		ShotRecent: mean,
		ShotMean:   mean,
		ShotStd:    []byte{0, 0},
	}
	if peaks != nil {
		if err := bundle.SetPeaks(peaks); err != nil {
			panic(err)
		}
	}
	return pipeline.Result{
		Meta:   event.Metadata{FrameNumber: frame, ShotNum: frame, ScanName: "scan-1"},
		Bundle: bundle,
	}
}

func TestPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("a scan accumulates frames into the store", func(t *testing.T) {
		c := newStoreServer(t)
		p := storepub.New(c, log.New(io.Discard, "", 0))

		if err := p.OnStart(ctx, event.NewStart("scan-1", c.Base())); err != nil {
			t.Fatal(err)
		}
		if err := p.OnResult(ctx, result(0, []byte{1, 2}, []event.Peak{{Center: 284.5, Height: 100, FWHM: 1}})); err != nil {
			t.Fatal(err)
		}
		if err := p.OnResult(ctx, result(1, []byte{3, 4}, []event.Peak{{Center: 285.0, Height: 90, FWHM: 1}})); err != nil {
			t.Fatal(err)
		}
		if err := p.OnResult(ctx, result(2, []byte{5, 6}, nil)); err != nil {
			t.Fatal(err)
		}

		data, shape, err := c.ReadFull(ctx, "runs/scan-1/shot_mean", "")
		if err != nil {
			t.Fatal(err)
		}
		if len(shape) != 3 || shape[0] != 3 || shape[1] != 1 || shape[2] != 2 {
			t.Error("shape:", shape)
		}
		if !bytes.Equal(data, []byte{1, 2, 3, 4, 5, 6}) {
			t.Error("data:", data)
		}

		peaks := string(try.To(c.ReadTable(ctx, "runs/scan-1/detected_peaks")).OrFatal(t))
		if !strings.HasPrefix(peaks, "frame,x,h,fwhm\n") {
			t.Errorf("peaks table: %q", peaks)
		}
		if !strings.Contains(peaks, "0,284.5,100,1\n") || !strings.Contains(peaks, "1,285,90,1\n") {
			t.Errorf("peaks table: %q", peaks)
		}

		if err := p.OnStop(ctx); err != nil {
			t.Fatal(err)
		}
		timings := string(try.To(c.ReadTable(ctx, "runs/scan-1/function_timings")).OrFatal(t))
		if !strings.HasPrefix(timings, "frame,seconds\n") {
			t.Errorf("timings table: %q", timings)
		}
		if lines := strings.Count(timings, "\n"); lines != 4 {
			t.Errorf("timings table has %d lines: %q", lines, timings)
		}
	})

	t.Run("results outside a scan are ignored", func(t *testing.T) {
		c := newStoreServer(t)
		p := storepub.New(c, log.New(io.Discard, "", 0))

		if err := p.OnResult(ctx, result(0, []byte{1, 2}, nil)); err != nil {
			t.Fatal(err)
		}
		if err := p.OnStop(ctx); err != nil {
			t.Fatal(err)
		}

		if _, _, err := c.ReadFull(ctx, "runs/scan-1/shot_mean", ""); err == nil {
			t.Error("an array exists for a scan that never started")
		}
	})

	t.Run("a second scan starts its arrays afresh", func(t *testing.T) {
		c := newStoreServer(t)
		p := storepub.New(c, log.New(io.Discard, "", 0))

		if err := p.OnStart(ctx, event.NewStart("scan-1", c.Base())); err != nil {
			t.Fatal(err)
		}
		if err := p.OnResult(ctx, result(0, []byte{1, 2}, nil)); err != nil {
			t.Fatal(err)
		}
		if err := p.OnStop(ctx); err != nil {
			t.Fatal(err)
		}

		if err := p.OnStart(ctx, event.NewStart("scan-2", c.Base())); err != nil {
			t.Fatal(err)
		}
		if err := p.OnResult(ctx, result(0, []byte{9, 9}, nil)); err != nil {
			t.Fatal(err)
		}

		data, shape, err := c.ReadFull(ctx, "runs/scan-2/shot_mean", "")
		if err != nil {
			t.Fatal(err)
		}
		if shape[0] != 1 || !bytes.Equal(data, []byte{9, 9}) {
			t.Error("data:", data, "shape:", shape)
		}
	})
}
