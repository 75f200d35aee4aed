package store

import (
	"github.com/agentstation/labsync/pkg/errors"
)

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Open creates the backend of the given kind at path.
func Open(kind, path string) (Backend, error) {
	switch kind {
	case KindFile, "":
		return NewFile(path)
	case KindSQLite:
		return NewSQLite(path)
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, errors.NewConfigError("store", "unknown backend "+kind, nil)
	}
}
