package forgewire

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pthm/forgewire/lib/snapshot"
)

// Capture reads every declared field off inst and seals them into a
// snapshot. Shared fields are read live from shared rather than from the
// possibly stale instance; when the broker has no entry the instance value
// is used.
func Capture(ctx context.Context, codec *snapshot.Codec, def *Definition, inst any, shared SharedReader) (snapshot.Snapshot, error) {
	state := make(map[string]json.RawMessage, len(def.fields))
	for _, f := range def.fields {
		if f.Shared() && shared != nil {
			v, ok, err := shared.Get(ctx, f.SharedKey)
			if err != nil {
				return snapshot.Snapshot{}, fmt.Errorf("forgewire: read shared %q: %w", f.SharedKey, err)
			}
			if ok {
				state[f.Name] = v
				continue
			}
		}
		raw, err := f.get(inst)
		if err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("forgewire: capture %s.%s: %w", def.name, f.Name, err)
		}
		state[f.Name] = raw
	}
	return codec.Seal(def.name, state), nil
}

// Restore verifies s against def and returns the field map used to hydrate a
// fresh instance. Any mismatch is reported as ErrTamperedSnapshot.
func Restore(codec *snapshot.Codec, def *Definition, s snapshot.Snapshot) (map[string]json.RawMessage, error) {
	if err := codec.Verify(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTamperedSnapshot, err)
	}
	if s.Component != def.name {
		return nil, fmt.Errorf("%w: snapshot for %q used with %q", ErrTamperedSnapshot, s.Component, def.name)
	}
	for name := range s.State {
		if _, ok := def.fieldByID[name]; !ok {
			return nil, fmt.Errorf("%w: undeclared field %q", ErrTamperedSnapshot, name)
		}
	}
	return s.State, nil
}

// openToken decodes and restores a snapshot token.
func openToken(codec *snapshot.Codec, def *Definition, token string) (map[string]json.RawMessage, error) {
	s, err := codec.Decode(token, def.sensitive)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTamperedSnapshot, err)
	}
	return Restore(codec, def, s)
}

// sealToken encodes a captured snapshot for the browser.
func sealToken(codec *snapshot.Codec, def *Definition, s snapshot.Snapshot) (string, error) {
	return codec.Encode(s, def.sensitive)
}
