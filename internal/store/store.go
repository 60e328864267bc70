// Package store abstracts host-native instance metadata behind a single
// capability interface. Each host persists CreatedInstance payloads
// differently (scene attributes, node parameters, JSON over a socket); the
// creator layer only ever talks to an InstanceStore.
//
// Three adapters are provided: JSON sidecar files (FileStore), an embedded
// SQLite database (SQLiteStore) and an in-memory map (MemoryStore). The
// package also provides NodeGraph, the scene graph in which creators create
// auxiliary helper nodes.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/ynput/openpype/internal/errors"
)

// Record is one stored instance payload.
type Record struct {
	ID   string
	Data map[string]any
}

// InstanceStore persists instance payloads keyed by a stable string id.
// Payloads must be JSON-compatible; adapters may round-trip them through JSON,
// so numbers read back as float64.
type InstanceStore interface {
	// Read returns the payload for id, or an error matching
	// errors.ErrInstanceNotFound.
	Read(ctx context.Context, id string) (map[string]any, error)
	// Write stores the full payload for id, replacing any previous payload.
	Write(ctx context.Context, id string, data map[string]any) error
	// Delete removes id. Deleting a missing id returns ErrInstanceNotFound.
	Delete(ctx context.Context, id string) error
	// List returns every stored record sorted by id.
	List(ctx context.Context) ([]Record, error)
}

// Closer is implemented by stores holding external resources.
type Closer interface {
	Close() error
}

// ValidateID rejects ids that cannot be used as a file name or key.
func ValidateID(id string) error {
	switch {
	case id == "":
		return errors.Wrap(errors.ErrInvalidInput, "instance id is empty")
	case strings.ContainsAny(id, `/\`) || id == "." || id == "..":
		return errors.Wrapf(errors.ErrInvalidInput, "instance id %q contains a path separator", id)
	case strings.ContainsRune(id, '\x00'):
		return errors.Wrapf(errors.ErrInvalidInput, "instance id %q contains a null character", id)
	}
	return nil
}

func notFound(id string) error {
	return errors.Wrapf(errors.ErrInstanceNotFound, "instance %q", id)
}

// encode serializes a payload, rejecting values JSON cannot represent.
func encode(id string, data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrapf(errors.Join(errors.ErrInvalidInput, err), "instance %q payload is not JSON-compatible", id)
	}
	return b, nil
}

func decode(id string, b []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, errors.Wrapf(err, "instance %q payload is corrupted", id)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}
