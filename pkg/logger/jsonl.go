// Package logger writes accepted samples and rejection events as JSONL.
package logger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"ahrsmon/pkg/engine"
)

type JSONLWriter struct {
	enc *json.Encoder
}

type sampleRecord struct {
	TS        string  `json:"ts"`
	Source    string  `json:"source"`
	Type      string  `json:"type"`
	Sequence  uint32  `json:"seq"`
	Timestamp uint64  `json:"hw_ts"`
	Dt        float64 `json:"dt"`
	Gap       bool    `json:"gap,omitempty"`
	Data      any     `json:"data"`
}

type rejectionRecord struct {
	TS     string `json:"ts"`
	Source string `json:"source"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
	RawHex string `json:"raw_hex"`
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

func (j *JSONLWriter) Consume(ctx context.Context, in <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			j.write(ev)
		}
	}
}

func (j *JSONLWriter) write(ev engine.Event) {
	switch {
	case ev.Sample != nil:
		s := ev.Sample
		_ = j.enc.Encode(sampleRecord{
			TS:        s.Received.UTC().Format(time.RFC3339Nano),
			Source:    s.Source,
			Type:      s.Frame.Header.Type.String(),
			Sequence:  s.Frame.Header.Sequence,
			Timestamp: s.Frame.Header.Timestamp,
			Dt:        s.Dt,
			Gap:       s.Gap,
			Data:      s.Frame.Payload,
		})
	case ev.Rejection != nil:
		r := ev.Rejection
		rec := rejectionRecord{
			TS:     r.Received.UTC().Format(time.RFC3339Nano),
			Source: r.Source,
			Reason: string(r.Reason),
			RawHex: hex.EncodeToString(r.Raw),
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		_ = j.enc.Encode(rec)
	}
}
