package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tally/internal/record"
)

// errCorrupt marks an envelope or metadata blob that failed structural
// validation. The store treats it as a miss and deletes the blob.
var errCorrupt = errors.New("cache: corrupt envelope")

// Envelope is the persisted unit for one partition: the partition's items
// plus capture metadata.
type Envelope struct {
	PartitionKey string          `json:"partition_key"`
	Items        []record.Record `json:"items"`
	CapturedAt   time.Time       `json:"captured_at"`
	ItemCount    int             `json:"item_count"`
}

// metadata tracks the known partition keys for one entity family.
type metadata struct {
	Family    string    `json:"family"`
	Keys      []string  `json:"keys"`
	UpdatedAt time.Time `json:"updated_at"`
}

// encodeEnvelope serializes an envelope. The item count is stamped from the
// actual item list; callers cannot produce an inconsistent envelope.
func encodeEnvelope(env Envelope) ([]byte, error) {
	env.ItemCount = len(env.Items)
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %q: %w", env.PartitionKey, err)
	}
	return data, nil
}

// decodeEnvelope parses and validates an envelope blob.
//
// Numbers inside record fields are decoded as json.Number to avoid float64
// precision loss for large amounts. A count/length mismatch or an unset
// capture time means the blob was truncated or written by an incompatible
// format and fails closed as errCorrupt.
func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if env.ItemCount != len(env.Items) {
		return Envelope{}, fmt.Errorf("%w: item_count %d != %d items", errCorrupt, env.ItemCount, len(env.Items))
	}
	if env.CapturedAt.IsZero() {
		return Envelope{}, fmt.Errorf("%w: missing captured_at", errCorrupt)
	}
	return env, nil
}

func encodeMetadata(meta metadata) ([]byte, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata for %q: %w", meta.Family, err)
	}
	return data, nil
}

func decodeMetadata(data []byte) (metadata, error) {
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return metadata{}, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if meta.Family == "" {
		return metadata{}, fmt.Errorf("%w: missing family", errCorrupt)
	}
	return meta, nil
}
