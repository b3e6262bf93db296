//go:build !sqlite

package history

import "fmt"

func newSQLiteStore(_ string) (Store, error) {
	return nil, fmt.Errorf("history: sqlite backend unavailable in this build; rebuild with -tags sqlite")
}
