// Package storepub persists the result stream into the array store.
//
// Per scan it keeps, under runs/{scan}:
//
//   - shot_recent, shot_mean, shot_std: uint8 arrays of shape
//     (frames, height, width), one frame appended per result
//   - detected_peaks: a table of fitted peaks, one partition per frame
//     that has any
//   - function_timings: written once at end of scan
package storepub

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/flowpool/flowpool/pkg/pipeline"
	"github.com/flowpool/flowpool/pkg/pipeline/event"
	"github.com/flowpool/flowpool/pkg/store/client"
)

var peakColumns = []string{"frame", "x", "h", "fwhm"}

type Publisher struct {
	client *client.Client
	logger *log.Logger

	mu      sync.Mutex
	scan    string
	frames  int
	timings []time.Duration
}

var _ pipeline.Operator = &Publisher{}

func New(c *client.Client, logger *log.Logger) *Publisher {
	return &Publisher{client: c, logger: logger}
}

func (p *Publisher) OnStart(ctx context.Context, start event.Start) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.client.EnsureContainer(ctx, "runs/"+start.ScanName); err != nil {
		return fmt.Errorf("opening scan %s: %w", start.ScanName, err)
	}

	p.scan = start.ScanName
	p.frames = 0
	p.timings = nil
	return nil
}

func (p *Publisher) OnResult(ctx context.Context, result pipeline.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scan == "" {
		p.logger.Printf("result frame %d outside any scan, ignored", result.Meta.FrameNumber)
		return nil
	}

	began := time.Now()

	bundle := result.Bundle
	shape := []int{1, bundle.Height, bundle.Width}
	images := map[string][]byte{
		"shot_recent": bundle.ShotRecent,
		"shot_mean":   bundle.ShotMean,
		"shot_std":    bundle.ShotStd,
	}

	for _, name := range []string{"shot_recent", "shot_mean", "shot_std"} {
		node := fmt.Sprintf("runs/%s/%s", p.scan, name)
		var err error
		if p.frames == 0 {
			err = p.client.CreateArray(ctx, node, shape, images[name])
		} else {
			_, err = p.client.PatchArray(ctx, node, p.frames, true, shape, images[name])
		}
		if err != nil {
			return fmt.Errorf("storing %s of frame %d: %w", name, p.frames, err)
		}
	}

	if err := p.storePeaks(ctx, result); err != nil {
		return err
	}

	p.frames++
	p.timings = append(p.timings, time.Since(began))
	return nil
}

func (p *Publisher) storePeaks(ctx context.Context, result pipeline.Result) error {
	peaks, err := result.Bundle.Peaks()
	if err != nil {
		return fmt.Errorf("frame %d: %w", p.frames, err)
	}

	node := fmt.Sprintf("runs/%s/detected_peaks", p.scan)
	if p.frames == 0 {
		// the table exists from the first frame even if that frame
		// fitted nothing
		if err := p.client.CreateTable(ctx, node, peaksCSV(p.frames, peaks)); err != nil {
			return fmt.Errorf("creating peaks table: %w", err)
		}
		return nil
	}

	if len(peaks) == 0 {
		return nil
	}
	if err := p.client.AppendPartition(ctx, node, peaksCSV(p.frames, peaks)); err != nil {
		return fmt.Errorf("appending peaks of frame %d: %w", p.frames, err)
	}
	return nil
}

// OnStop closes the scan, flushing the timing table.
func (p *Publisher) OnStop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scan == "" {
		return nil
	}
	scan, timings := p.scan, p.timings
	p.scan = ""
	p.frames = 0
	p.timings = nil

	node := fmt.Sprintf("runs/%s/function_timings", scan)
	if err := p.client.CreateTable(ctx, node, timingsCSV(timings)); err != nil {
		return fmt.Errorf("closing scan %s: %w", scan, err)
	}
	return nil
}

func peaksCSV(frame int, peaks []event.Peak) []byte {
	buf := bytes.Buffer{}
	w := csv.NewWriter(&buf)
	w.Write(peakColumns)
	for _, peak := range peaks {
		w.Write([]string{
			strconv.Itoa(frame),
			strconv.FormatFloat(peak.Center, 'g', -1, 64),
			strconv.FormatFloat(peak.Height, 'g', -1, 64),
			strconv.FormatFloat(peak.FWHM, 'g', -1, 64),
		})
	}
	w.Flush()
	return buf.Bytes()
}

func timingsCSV(timings []time.Duration) []byte {
	buf := bytes.Buffer{}
	w := csv.NewWriter(&buf)
	w.Write([]string{"frame", "seconds"})
	for frame, d := range timings {
		w.Write([]string{
			strconv.Itoa(frame),
			strconv.FormatFloat(d.Seconds(), 'f', 6, 64),
		})
	}
	w.Flush()
	return buf.Bytes()
}
