package document

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a local cache of previously-applied documents' labels, used by
// `authlyctl document apply` (with or without --dry-run) to catch a label
// collision against a document applied in an earlier run, something a
// single in-memory Validate call on one file can never see. It is not the
// authority's own database; it is a disposable, local side-cache.
type Store struct {
	write *sql.DB
	read  *sql.DB
}

// OpenStore opens (creating if absent) a SQLite-backed Store at dsn,
// running embedded goose migrations against a dual-pool connection setup:
// one writer connection, a separate read pool for concurrent lookups.
func OpenStore(dsn string) (*Store, error) {
	pragmas := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	var fullDSN string
	if dsn == ":memory:" {
		fullDSN = "file::memory:?mode=memory&cache=shared&" + pragmas
	} else {
		fullDSN = "file:" + dsn + "?" + pragmas
	}

	write, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		return nil, fmt.Errorf("document: open write db: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("document: open read db: %w", err)
	}
	read.SetMaxOpenConns(max(4, runtime.NumCPU()))

	if err := runMigrations(write); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("document: migrations: %w", err)
	}

	return &Store{write: write, read: read}, nil
}

func runMigrations(db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	_, err = provider.Up(context.Background())
	return err
}

// Close closes both pooled connections.
func (s *Store) Close() error {
	return errors.Join(s.write.Close(), s.read.Close())
}

// CheckAndRecord records every entity/domain/policy label in doc, failing
// with a collision error (and recording nothing) if any label is already
// owned by a different, previously-applied document.
func (s *Store) CheckAndRecord(ctx context.Context, path string, doc *Document) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("document: begin tx: %w", err)
	}
	defer tx.Rollback()

	docID := doc.AuthlyDocument.ID.String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, path, applied_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET path = excluded.path, applied_at = excluded.applied_at`,
		docID, path, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("document: record document: %w", err)
	}

	for kind, labels := range labelsByKind(doc) {
		for _, label := range labels {
			var owner string
			err := tx.QueryRowContext(ctx,
				`SELECT document_id FROM labels WHERE kind = ? AND label = ?`, kind, label).Scan(&owner)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO labels (document_id, kind, label) VALUES (?, ?, ?)`,
					docID, kind, label); err != nil {
					return fmt.Errorf("document: record label %s/%s: %w", kind, label, err)
				}
			case err != nil:
				return fmt.Errorf("document: lookup label %s/%s: %w", kind, label, err)
			case owner != docID:
				return fmt.Errorf("document: label %q (%s) already owned by a previously applied document", label, kind)
			}
		}
	}

	return tx.Commit()
}

func labelsByKind(doc *Document) map[string][]string {
	out := make(map[string][]string)
	for _, e := range doc.Entity {
		out["entity"] = append(out["entity"], e.Label)
	}
	for _, e := range doc.ServiceEntity {
		out["service-entity"] = append(out["service-entity"], e.Label)
	}
	for _, d := range doc.Domain {
		out["domain"] = append(out["domain"], d.Label)
	}
	for _, d := range doc.ServiceDomain {
		out["service-domain"] = append(out["service-domain"], d.Label)
	}
	for _, p := range doc.Policy {
		out["policy"] = append(out["policy"], p.Service+":"+p.Label)
	}
	return out
}
