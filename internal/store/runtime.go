package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

var (
	runtimeMu    sync.Mutex
	runtimeReady bool
)

// InitializeRuntime verifies that the SQLite runtime carries the vector
// extension and marks it ready for the rest of the process. It must run once
// before any store handle is opened; subsequent calls are no-ops.
func InitializeRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeReady {
		return nil
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return fmt.Errorf("open probe connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		return fmt.Errorf("vector extension unavailable: %w", err)
	}

	runtimeReady = true
	return nil
}

func runtimeInitialized() bool {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	return runtimeReady
}
