package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/harborline/quotebuilder/pkg/quote"
)

// ErrCorrupt matches every CorruptionError via errors.Is.
var ErrCorrupt = errors.New("persisted quote is corrupt")

// CorruptionError reports a stored blob that cannot be turned back into a
// configuration.
type CorruptionError struct {
	Key    string
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("persisted quote %q is corrupt: %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptionError) Unwrap() error { return e.Err }

func (e *CorruptionError) Is(target error) bool { return target == ErrCorrupt }

// Meta is the envelope bookkeeping stored next to the configuration.
type Meta struct {
	Timestamp    time.Time `json:"timestamp"`
	LastActivity time.Time `json:"lastActivity"`
}

// Encode wraps c in the persisted envelope. timestamp and lastActivity are
// always written from the same instant.
func Encode(c quote.Configuration, now time.Time) ([]byte, error) {
	state, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	ms := now.UnixMilli()
	blob, err := sjson.SetRawBytes([]byte(`{}`), "state", state)
	if err != nil {
		return nil, err
	}
	if blob, err = sjson.SetBytes(blob, "timestamp", ms); err != nil {
		return nil, err
	}
	return sjson.SetBytes(blob, "lastActivity", ms)
}

// Decode parses an envelope. Shape problems are reported as
// *CorruptionError with the given key.
func Decode(key string, blob []byte) (quote.Configuration, Meta, error) {
	corrupt := func(reason string, err error) (quote.Configuration, Meta, error) {
		return quote.Empty(), Meta{}, &CorruptionError{Key: key, Reason: reason, Err: err}
	}

	if !gjson.ValidBytes(blob) {
		return corrupt("not valid JSON", nil)
	}
	root := gjson.ParseBytes(blob)
	if !root.IsObject() {
		return corrupt("envelope is not an object", nil)
	}

	state := root.Get("state")
	if !state.IsObject() {
		return corrupt("missing state object", nil)
	}
	ts := root.Get("timestamp")
	if ts.Type != gjson.Number {
		return corrupt("missing numeric timestamp", nil)
	}
	last := root.Get("lastActivity")
	switch {
	case !last.Exists():
		last = ts
	case last.Type != gjson.Number:
		return corrupt("lastActivity is not numeric", nil)
	}

	var c quote.Configuration
	if err := json.Unmarshal([]byte(state.Raw), &c); err != nil {
		return corrupt("state does not match the configuration shape", err)
	}
	meta := Meta{
		Timestamp:    time.UnixMilli(ts.Int()).UTC(),
		LastActivity: time.UnixMilli(last.Int()).UTC(),
	}
	return c.Normalize(), meta, nil
}
