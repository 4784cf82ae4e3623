package taskpool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Canonicalize returns the canonical JSON encoding of raw: object keys
// sorted recursively, numeric literals preserved verbatim, HTML escaping
// disabled so non-ASCII text and &<> survive byte-for-byte, and no
// insignificant whitespace. Two structurally equal payloads always
// canonicalize to the same bytes regardless of key order.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("malformed payload: %v", err)}
	}
	if dec.More() {
		return nil, &ValidationError{Msg: "trailing data after JSON value"}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("payload not encodable: %v", err)}
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Fingerprint computes the content id of raw and returns it together with
// the canonical form. The id is the dedup key: identical payload content
// always yields the identical id. The digest choice is not security
// sensitive, so a fast 64-bit hash is enough at the expected task volumes.
//
// Ingestion, direct priority publish and reconciliation must all derive ids
// through this function, or identity breaks.
func Fingerprint(raw []byte) (id string, canonical []byte, err error) {
	canonical, err = Canonicalize(raw)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(canonical)), canonical, nil
}
