//go:build sqlite

package history

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a pure-Go SQLite database via
// modernc.org/sqlite (no cgo). Built only when the sqlite tag is set;
// see sqlite_disabled.go for the default stub.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func newSQLiteStore(path string) (Store, error) {
	return &SQLiteStore{path: path}, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("history: sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) AppendGeneration(ctx context.Context, runID string, record GenerationRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO generations (run_id, generation, best_fitness, mean_fitness, worst_fitness, population_size, island)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, record.Generation, record.BestFitness, record.MeanFitness, record.WorstFitness, record.PopulationSize, record.Island)
	return err
}

func (s *SQLiteStore) GenerationHistory(ctx context.Context, runID string) ([]GenerationRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT generation, best_fitness, mean_fitness, worst_fitness, population_size, island
		FROM generations WHERE run_id = ? ORDER BY generation ASC
	`, runID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var records []GenerationRecord
	for rows.Next() {
		var r GenerationRecord
		if err := rows.Scan(&r.Generation, &r.BestFitness, &r.MeanFitness, &r.WorstFitness, &r.PopulationSize, &r.Island); err != nil {
			return nil, false, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return records, len(records) > 0, nil
}

func (s *SQLiteStore) SaveTopEntities(ctx context.Context, runID string, top []TopEntityRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM top_entities WHERE run_id = ?`, runID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, e := range top {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO top_entities (run_id, generation, rank, entity_id, fitness, chromosome)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, e.Generation, e.Rank, e.EntityID, e.Fitness, e.Chromosome); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) TopEntities(ctx context.Context, runID string) ([]TopEntityRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT generation, rank, entity_id, fitness, chromosome
		FROM top_entities WHERE run_id = ? ORDER BY rank ASC
	`, runID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var top []TopEntityRecord
	for rows.Next() {
		var e TopEntityRecord
		if err := rows.Scan(&e.Generation, &e.Rank, &e.EntityID, &e.Fitness, &e.Chromosome); err != nil {
			return nil, false, err
		}
		top = append(top, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return top, len(top) > 0, nil
}

func (s *SQLiteStore) SaveRunSummary(ctx context.Context, summary RunSummary) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO run_summaries (run_id, generations, best_fitness, terminated_by_hook)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			generations = excluded.generations,
			best_fitness = excluded.best_fitness,
			terminated_by_hook = excluded.terminated_by_hook
	`, summary.RunID, summary.Generations, summary.BestFitness, summary.TerminatedByHook)
	return err
}

func (s *SQLiteStore) GetRunSummary(ctx context.Context, runID string) (RunSummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return RunSummary{}, false, err
	}
	var summary RunSummary
	summary.RunID = runID
	err = db.QueryRowContext(ctx, `
		SELECT generations, best_fitness, terminated_by_hook FROM run_summaries WHERE run_id = ?
	`, runID).Scan(&summary.Generations, &summary.BestFitness, &summary.TerminatedByHook)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("history: store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			best_fitness REAL NOT NULL,
			mean_fitness REAL NOT NULL,
			worst_fitness REAL NOT NULL,
			population_size INTEGER NOT NULL,
			island INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_generations_run ON generations (run_id, generation);
		CREATE TABLE IF NOT EXISTS top_entities (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			rank INTEGER NOT NULL,
			entity_id INTEGER NOT NULL,
			fitness REAL NOT NULL,
			chromosome BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_top_entities_run ON top_entities (run_id, rank);
		CREATE TABLE IF NOT EXISTS run_summaries (
			run_id TEXT PRIMARY KEY,
			generations INTEGER NOT NULL,
			best_fitness REAL NOT NULL,
			terminated_by_hook INTEGER NOT NULL
		);
	`)
	return err
}
