package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"
)

// IntegrityStatus reports what happened during the startup integrity
// check, surfaced verbatim by the RPC health_check method (spec §6.3).
type IntegrityStatus string

const (
	IntegrityOK       IntegrityStatus = "ok"
	IntegrityRepaired IntegrityStatus = "repaired"
	IntegrityRebuilt  IntegrityStatus = "rebuilt"
)

// CheckAndRepair runs the startup integrity sequence (spec §4.1):
// PRAGMA integrity_check; on failure, attempt PRAGMA wal_checkpoint +
// REINDEX; on continued failure, archive and recreate. Returns the
// outcome verbatim for RPC health_check (spec §6.3).
func (s *Store) CheckAndRepair(ctx context.Context) (IntegrityStatus, error) {
	if err := runIntegrityCheck(ctx, s.writeDB); err == nil {
		return IntegrityOK, nil
	}

	if _, err := s.writeDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);"); err == nil {
		if _, err := s.writeDB.ExecContext(ctx, "REINDEX;"); err == nil {
			if err := runIntegrityCheck(ctx, s.writeDB); err == nil {
				return IntegrityRepaired, nil
			}
		}
	}

	if err := s.recreate(ctx); err != nil {
		return "", fmt.Errorf("recreate after failed repair: %w", err)
	}
	return IntegrityRebuilt, nil
}

func runIntegrityCheck(ctx context.Context, db *sql.DB) error {
	var result string
	row := db.QueryRowContext(ctx, "PRAGMA integrity_check;")
	if err := row.Scan(&result); err != nil {
		return fmt.Errorf("integrity_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity_check reported: %s", result)
	}
	return nil
}

// recreate archives the corrupt database file and starts over with a
// fresh one (spec §4.1: "archive the file and open a fresh one — data
// loss here is acceptable, the indexer will reconstruct").
func (s *Store) recreate(ctx context.Context) error {
	_ = s.writeDB.Close()
	_ = s.readDB.Close()

	archivePath := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive corrupt database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(s.path + suffix)
	}

	readDB, err := dbOpen(s.path)
	if err != nil {
		return err
	}
	if err := applyPragmas(ctx, readDB); err != nil {
		return err
	}
	writeDB, err := dbOpen(s.path)
	if err != nil {
		return err
	}
	writeDB.SetMaxOpenConns(1)
	if err := applyPragmas(ctx, writeDB); err != nil {
		return err
	}

	s.readDB = readDB
	s.writeDB = writeDB
	return nil
}
