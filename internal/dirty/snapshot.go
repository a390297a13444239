// Package dirty tracks unsaved changes across the sibling editor tabs of a
// room and intercepts close/navigation so that losing edits is always an
// explicit operator decision.
package dirty

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot encodes state into a canonical byte form used for structural
// comparison. Map keys are sorted and empty values are omitted, so nil and
// empty containers compare equal and rebuilt containers with the same
// contents produce identical bytes.
func Snapshot(state any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.SetOmitEmpty(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(state); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// IsDirty reports whether current differs structurally from baseline.
func IsDirty(current, baseline any) (bool, error) {
	c, err := Snapshot(current)
	if err != nil {
		return false, err
	}
	b, err := Snapshot(baseline)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(c, b), nil
}
