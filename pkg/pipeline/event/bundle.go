package event

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Peak is one fitted peak of a frame. Fitted peaks travel inside the
// Bundle as a JSON-encoded list keyed x / h / fwhm.
type Peak struct {
	Center float64 `json:"x"`
	Height float64 `json:"h"`
	FWHM   float64 `json:"fwhm"`
}

// Bundle is the binary half of a result. The image buffers are uint8
// frames of Width x Height, row major.
type Bundle struct {
	Width   int `msgpack:"width"`
	Height  int `msgpack:"height"`
	ShotNum int `msgpack:"shot_num"`

	// Fitted is a JSON-encoded []Peak.
	Fitted []byte `msgpack:"fitted"`

	ShotRecent []byte `msgpack:"shot_recent"`
	ShotMean   []byte `msgpack:"shot_mean"`
	ShotStd    []byte `msgpack:"shot_std"`
}

func (b Bundle) Pack() ([]byte, error) {
	return msgpack.Marshal(b)
}

func UnpackBundle(raw []byte) (Bundle, error) {
	b := Bundle{}
	if err := msgpack.Unmarshal(raw, &b); err != nil {
		return Bundle{}, fmt.Errorf("unpacking result bundle: %w", err)
	}
	if size := b.Width * b.Height; len(b.ShotMean) != size {
		return Bundle{}, fmt.Errorf(
			"result bundle: shot_mean has %d bytes for a %dx%d frame",
			len(b.ShotMean), b.Width, b.Height,
		)
	}
	return b, nil
}

func (b Bundle) Peaks() ([]Peak, error) {
	if len(b.Fitted) == 0 {
		return nil, nil
	}
	peaks := []Peak{}
	if err := json.Unmarshal(b.Fitted, &peaks); err != nil {
		return nil, fmt.Errorf("decoding fitted peaks: %w", err)
	}
	return peaks, nil
}

func (b *Bundle) SetPeaks(peaks []Peak) error {
	fitted, err := json.Marshal(peaks)
	if err != nil {
		return err
	}
	b.Fitted = fitted
	return nil
}
