package fields

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/fangwd/restup/internal/record"
)

// ErrBadReference is returned by BlobStore.Load for references that do not
// name a file under the blob directory.
var ErrBadReference = errors.New("bad blob reference")

// BlobStore keeps binary field values as files and stores a reference in the
// column instead.
//
// A payload for table t is written to Dir/t/<name>, where name is the row's
// KeyColumn value when it is set and a fresh UUIDv7 otherwise. The column then
// holds "t/<name>".
type BlobStore struct {
	Dir string

	// KeyColumn names the row field used as file name. Empty means "id".
	KeyColumn string
}

// Store writes []byte values and returns their reference. Other values pass
// through unchanged, so re-submitting a row that already holds a reference is
// harmless.
func (b BlobStore) Store(ctx context.Context, table string, row record.Row, field string) (any, error) {
	data, ok := row[field].([]byte)
	if !ok {
		return row[field], nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := b.fileName(row)
	if err != nil {
		return nil, err
	}
	ref := path.Join(table, name)
	if !filepath.IsLocal(ref) {
		return nil, fmt.Errorf("%w: %q", ErrBadReference, ref)
	}

	full := filepath.Join(b.Dir, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	if err := atomic.WriteFile(full, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	return ref, nil
}

// Load replaces a reference with the file contents. Null values pass through.
func (b BlobStore) Load(ctx context.Context, table string, row record.Row, field string) (any, error) {
	ref, ok := row[field].(string)
	if !ok || ref == "" {
		return row[field], nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !filepath.IsLocal(filepath.FromSlash(ref)) {
		return nil, fmt.Errorf("%w: %q", ErrBadReference, ref)
	}
	data, err := os.ReadFile(filepath.Join(b.Dir, filepath.FromSlash(ref)))
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (b BlobStore) fileName(row record.Row) (string, error) {
	key := b.KeyColumn
	if key == "" {
		key = "id"
	}
	if v := row[key]; !record.IsEmpty(v) {
		name := fmt.Sprint(v)
		if filepath.IsLocal(name) && filepath.Base(name) == name {
			return name, nil
		}
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("blob name: %w", err)
	}
	return id.String(), nil
}
