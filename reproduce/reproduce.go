// Package reproduce implements a persisted reproduce settings value (a
// single 64-bit seed) serialized to JSON and base64-encoded, for sharing a
// specific failing invocation between runs (e.g. pasted into a bug report,
// or passed to cmd/lincheck's -reproduce flag).
package reproduce

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// currentVersion is bumped whenever the encoded payload's shape changes
// incompatibly; Decode rejects any other version.
const currentVersion = 1

// ErrInvalidReproduceSettings is returned by Decode for a payload that is
// not valid base64, not valid JSON, or carries an unrecognized Version.
var ErrInvalidReproduceSettings = errors.New("reproduce: invalid settings payload")

// Settings is the persisted state of a run: the seed a scenario was
// generated from, sufficient (together with the same Config) to regenerate
// and re-run the exact same scenario.
type Settings struct {
	Seed uint64
}

type payload struct {
	Version int    `json:"version"`
	Seed    uint64 `json:"seed"`
}

// Encode serializes s to JSON, then base64 (URL-safe, unpadded), for
// embedding in a single command-line flag or a one-line bug report field.
func (s Settings) Encode() string {
	p := payload{Version: currentVersion, Seed: s.Seed}
	b, err := json.Marshal(p)
	if err != nil {
		// payload is a fixed, always-marshalable shape; a failure here
		// would mean the standard library itself is broken.
		panic(fmt.Sprintf("reproduce: marshal settings: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a string produced by Encode back into Settings, rejecting
// malformed payloads and payloads from an incompatible future version with
// ErrInvalidReproduceSettings.
func Decode(s string) (Settings, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidReproduceSettings, err)
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidReproduceSettings, err)
	}
	if p.Version != currentVersion {
		return Settings{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidReproduceSettings, p.Version)
	}
	return Settings{Seed: p.Seed}, nil
}
