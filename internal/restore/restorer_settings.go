// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"

	"github.com/tomtom215/backhaul/internal/logging"
)

// maxSettingsDepth bounds nesting in a settings snapshot.
const maxSettingsDepth = 32

// SettingsApplier writes a flattened settings snapshot to the runtime config
// store. Values are JSON-encoded. Implementations apply all keys atomically
// and notify subscribers.
type SettingsApplier interface {
	Apply(ctx context.Context, source string, settings map[string]string) error
}

// SettingsRestorer applies JSON key-value snapshots.
type SettingsRestorer struct {
	applier SettingsApplier
}

// NewSettingsRestorer creates a settings restorer.
func NewSettingsRestorer(applier SettingsApplier) *SettingsRestorer {
	return &SettingsRestorer{applier: applier}
}

// Restore parses the snapshot at path and applies it.
func (r *SettingsRestorer) Restore(ctx context.Context, path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: path is a staged or extracted artifact
	if err != nil {
		return fmt.Errorf("open settings snapshot: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	settings, err := ParseSettings(f)
	if err != nil {
		return err
	}

	if err := r.applier.Apply(ctx, filepath.Base(path), settings); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("snapshot", filepath.Base(path)).
		Int("keys", len(settings)).
		Msg("Settings snapshot applied")
	return nil
}

// ParseSettings decodes a JSON object and flattens nested objects into
// dotted keys. Arrays and scalars are kept as JSON values.
func ParseSettings(r io.Reader) (map[string]string, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse settings snapshot: %w", err)
	}
	if dec.More() {
		return nil, errors.New("parse settings snapshot: trailing data after JSON document")
	}

	root, ok := doc.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("settings snapshot must be a JSON object, got %T", doc)
	}

	out := make(map[string]string)
	if err := flatten("", root, out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, obj map[string]interface{}, out map[string]string, depth int) error {
	if depth > maxSettingsDepth {
		return fmt.Errorf("settings snapshot nested deeper than %d levels", maxSettingsDepth)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "" {
			return errors.New("settings snapshot contains an empty key")
		}
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if nested, ok := obj[k].(map[string]interface{}); ok && len(nested) > 0 {
			if err := flatten(key, nested, out, depth+1); err != nil {
				return err
			}
			continue
		}

		encoded, err := json.Marshal(obj[k])
		if err != nil {
			return fmt.Errorf("encode setting %s: %w", key, err)
		}
		if _, dup := out[key]; dup {
			return fmt.Errorf("settings snapshot defines %s more than once", key)
		}
		out[key] = string(encoded)
	}
	return nil
}
