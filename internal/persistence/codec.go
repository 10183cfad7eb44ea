package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// eventRecord is the serialized form of an api.Event shared by the durable
// backends.
type eventRecord struct {
	RunID    string          `json:"run_id" bson:"run_id"`
	Workflow string          `json:"workflow" bson:"workflow"`
	Seq      uint64          `json:"seq" bson:"seq"`
	Type     string          `json:"type" bson:"type"`
	Step     string          `json:"step,omitempty" bson:"step,omitempty"`
	Output   json.RawMessage `json:"output,omitempty" bson:"-"`
	Error    string          `json:"error,omitempty" bson:"error,omitempty"`
	AtNano   int64           `json:"at" bson:"at"`
}

func toRecord(ev api.Event) (eventRecord, error) {
	out, err := EncodeValue(ev.Output)
	if err != nil {
		return eventRecord{}, fmt.Errorf("encode output of %s seq %d: %w", ev.RunID, ev.Seq, err)
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return eventRecord{
		RunID:    ev.RunID,
		Workflow: ev.Workflow,
		Seq:      ev.Seq,
		Type:     string(ev.Type),
		Step:     ev.Step,
		Output:   out,
		Error:    ev.Error,
		AtNano:   at.UnixNano(),
	}, nil
}

func (r eventRecord) event() (api.Event, error) {
	out, err := DecodeValue(r.Output)
	if err != nil {
		return api.Event{}, fmt.Errorf("decode output of %s seq %d: %w", r.RunID, r.Seq, err)
	}
	return api.Event{
		RunID:    r.RunID,
		Workflow: r.Workflow,
		Seq:      r.Seq,
		Type:     api.EventType(r.Type),
		Step:     r.Step,
		Output:   out,
		Error:    r.Error,
		At:       time.Unix(0, r.AtNano),
	}, nil
}

// EncodeValue serializes a step output as JSON. A nil value encodes to nil.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// DecodeValue reverses EncodeValue into generic JSON values.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
