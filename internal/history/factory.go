package history

import "fmt"

// NewStore builds a Store of the requested kind. "memory" (the
// default when kind is empty) never touches disk; "sqlite" requires
// the binary to have been built with -tags sqlite and sqlitePath set
// to a writable file path.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("history: unsupported store backend: %s", kind)
	}
}

// CloseIfSupported closes store if it implements io.Closer, otherwise
// it is a no-op. MemoryStore holds no resources; SQLiteStore does.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
