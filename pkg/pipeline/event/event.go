// Package event defines the wire protocol of the result pipeline.
//
// A result is carried as two WebSocket frames: a JSON text frame
// (Metadata) followed by a binary msgpack frame (Bundle). A scan opens
// with a single JSON text frame whose msg_type is "start".
package event

import "encoding/json"

const MsgTypeStart = "start"

// Start opens a scan.
type Start struct {
	MsgType  string `json:"msg_type"`
	ScanName string `json:"scan_name"`
	StoreURL string `json:"store_url"`
}

func NewStart(scanName string, storeURL string) Start {
	return Start{MsgType: MsgTypeStart, ScanName: scanName, StoreURL: storeURL}
}

// Metadata is the text half of a result. The binary half follows as
// the next frame on the same connection.
type Metadata struct {
	FrameNumber int    `json:"frame_number"`
	ShotNum     int    `json:"shot_num"`
	ScanName    string `json:"scan_name"`
	StoreURL    string `json:"store_url"`
}

// Kind reports the msg_type of a JSON text frame. Frames without a
// msg_type (result metadata) report "".
func Kind(raw []byte) (string, error) {
	envelope := struct {
		MsgType string `json:"msg_type"`
	}{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", err
	}
	return envelope.MsgType, nil
}
