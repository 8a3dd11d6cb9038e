package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON renders v with sorted object keys, two-space indentation,
// UTF-8 text left unescaped, and no trailing newline. Every JSON byte stream
// that participates in hashing (meta.json, audio.json, transcript.json) goes
// through this single encoder so digests stay stable across builds.
func CanonicalJSON(v any) ([]byte, error) {
	// Round-trip through an untyped value: Go sorts map keys during
	// encoding, which gives the sorted-keys guarantee regardless of the
	// source struct's field order.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("bundle: marshaling: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("bundle: normalizing: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("bundle: encoding: %w", err)
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeJSON unmarshals data into v, tolerating an empty payload.
func DecodeJSON(data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	return json.Unmarshal(trimmed, v)
}
