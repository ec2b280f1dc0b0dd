// Package wslisten consumes the upstream result WebSocket.
package wslisten

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowpool/flowpool/pkg/loop"
	"github.com/flowpool/flowpool/pkg/pipeline"
	"github.com/flowpool/flowpool/pkg/pipeline/event"
)

const DefaultBackoff = 5 * time.Second

// Listener dials the upstream, decodes the two-frame protocol and
// hands results to the Operator. It reconnects forever with a fixed
// backoff; each dropped connection closes the scan (OnStop) so
// downstream state never straddles a gap in the stream.
type Listener struct {
	// URL of the upstream socket, like "ws://lse-host:8765/results".
	URL string

	Operator pipeline.Operator

	// Backoff between reconnect attempts. DefaultBackoff when zero.
	Backoff time.Duration

	Logger *log.Logger

	// Dialer, if nil, is websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// per-scan state
	scan     string
	storeURL string
	frames   int

	// metadata awaiting its binary bundle
	meta *event.Metadata
}

// Run consumes the upstream until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	_, err := loop.Start(ctx, struct{}{}, func(ctx context.Context, _ struct{}) (struct{}, loop.Next) {
		if err := l.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return struct{}{}, loop.Break(ctx.Err())
			}
			l.Logger.Printf("upstream connection lost: %v (reconnecting in %v)", err, backoff)
		}
		return struct{}{}, loop.Continue(backoff)
	})
	return err
}

// consume runs one connection until it breaks.
func (l *Listener) consume(ctx context.Context) error {
	dialer := l.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, l.URL, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", l.URL, err)
	}
	l.Logger.Printf("listening on %s", l.URL)

	// unblock ReadMessage when ctx dies
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()
	defer l.closeScan(ctx)

	// every frame stands on its own: text frames update the scan or the
	// pending metadata, binary frames pair with the latest metadata.
	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		switch messageType {
		case websocket.TextMessage:
			kind, err := event.Kind(raw)
			if err != nil {
				l.Logger.Printf("unreadable frame, skipped: %v", err)
				continue
			}
			switch kind {
			case event.MsgTypeStart:
				l.handleStart(ctx, raw)
			case "":
				l.setMetadata(raw)
			default:
				l.Logger.Printf("unknown msg_type %q, skipped", kind)
			}
		case websocket.BinaryMessage:
			l.handleBundle(ctx, raw)
		default:
			l.Logger.Printf("unexpected %d-type frame, skipped", messageType)
		}
	}
}

func (l *Listener) handleStart(ctx context.Context, raw []byte) {
	start := event.Start{}
	if err := json.Unmarshal(raw, &start); err != nil {
		l.Logger.Printf("broken start frame, skipped: %v", err)
		return
	}

	l.scan = start.ScanName
	l.storeURL = start.StoreURL
	l.frames = 0
	l.meta = nil

	if err := l.Operator.OnStart(ctx, start); err != nil {
		l.Logger.Printf("scan %s: start not handled: %v", start.ScanName, err)
	}
}

// setMetadata retains the metadata for the next binary frame. A later
// metadata frame supersedes an unconsumed one.
func (l *Listener) setMetadata(raw []byte) {
	meta := event.Metadata{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		l.Logger.Printf("broken metadata frame, skipped: %v", err)
		return
	}
	if l.meta != nil {
		l.Logger.Printf("metadata %d superseded before its bundle arrived", l.meta.FrameNumber)
	}
	l.meta = &meta
}

// handleBundle pairs the binary frame with the latest metadata and
// hands the result over.
func (l *Listener) handleBundle(ctx context.Context, packed []byte) {
	if l.meta == nil {
		l.Logger.Printf("binary frame without metadata, skipped")
		return
	}
	meta := *l.meta
	l.meta = nil

	bundle, err := event.UnpackBundle(packed)
	if err != nil {
		l.Logger.Printf("result %d: %v, skipped", meta.FrameNumber, err)
		return
	}

	// metadata may carry fresher scan coordinates than the start frame
	if meta.ScanName != "" {
		l.scan = meta.ScanName
	} else {
		meta.ScanName = l.scan
	}
	if meta.StoreURL != "" {
		l.storeURL = meta.StoreURL
	} else {
		meta.StoreURL = l.storeURL
	}

	result := pipeline.Result{
		Meta:     meta,
		Bundle:   bundle,
		SliceURL: l.sliceURL(bundle),
	}
	l.frames++

	if err := l.Operator.OnResult(ctx, result); err != nil {
		l.Logger.Printf("result %d not handled: %v", meta.FrameNumber, err)
	}
}

// sliceURL addresses this frame's shot_mean in the array store.
func (l *Listener) sliceURL(bundle event.Bundle) string {
	if l.storeURL == "" || l.scan == "" {
		return ""
	}
	return fmt.Sprintf(
		"%s/api/v1/array/full/runs/%s/shot_mean?slice=%d:%d,0:%d,0:%d",
		l.storeURL, l.scan, l.frames, l.frames+1, bundle.Height, bundle.Width,
	)
}

func (l *Listener) closeScan(ctx context.Context) {
	if l.scan == "" {
		return
	}
	l.scan = ""
	l.storeURL = ""
	l.frames = 0
	l.meta = nil

	// the recording context must outlive the broken connection
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := l.Operator.OnStop(stopCtx); err != nil {
		l.Logger.Printf("scan not closed cleanly: %v", err)
	}
}
