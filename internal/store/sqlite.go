package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yourorg/ramldoc/pkg/types"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; sqlite would answer SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			title TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			fragment_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS method_fragments (
			run_id TEXT NOT NULL,
			path TEXT NOT NULL,
			method TEXT NOT NULL,
			segments TEXT NOT NULL,
			operation TEXT NOT NULL,
			fragment TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY(run_id, path, method)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fragments_run ON method_fragments(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CreateRun(source, title, outputDir string) (*types.Run, error) {
	now := time.Now().UTC()
	id, err := s.nextRunID(now)
	if err != nil {
		return nil, err
	}
	run := &types.Run{ID: id, Source: source, Title: title, OutputDir: outputDir, Status: "open", CreatedAt: now, UpdatedAt: now}
	_, err = s.db.Exec(`INSERT INTO runs(id,source,title,output_dir,fragment_count,status,created_at,updated_at) VALUES(?,?,?,?,?,?,?,?)`,
		run.ID, run.Source, run.Title, run.OutputDir, run.FragmentCount, run.Status, run.CreatedAt, run.UpdatedAt)
	return run, err
}

func (s *SQLiteStore) nextRunID(now time.Time) (string, error) {
	prefix := fmt.Sprintf("run_%s_", now.Format("20060102"))
	rows, err := s.db.Query(`SELECT id FROM runs WHERE id LIKE ?`, prefix+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	maxN := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		var n int
		_, _ = fmt.Sscanf(id, prefix+"%03d", &n)
		if n > maxN {
			maxN = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, maxN+1), nil
}

func (s *SQLiteStore) GetRun(id string) (*types.Run, error) {
	row := s.db.QueryRow(`SELECT id,source,title,output_dir,fragment_count,status,created_at,updated_at FROM runs WHERE id=?`, id)
	var out types.Run
	if err := row.Scan(&out.ID, &out.Source, &out.Title, &out.OutputDir, &out.FragmentCount, &out.Status, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SQLiteStore) UpdateRunStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE runs SET status=?, updated_at=? WHERE id=?`, status, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStore) ListRuns() ([]types.Run, error) {
	rows, err := s.db.Query(`SELECT id,source,title,output_dir,fragment_count,status,created_at,updated_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Run
	for rows.Next() {
		var r types.Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Title, &r.OutputDir, &r.FragmentCount, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRun(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM method_fragments WHERE run_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveMethod upserts one method fragment; a method documented again replaces
// the stored one.
func (s *SQLiteStore) SaveMethod(runID, path string, segments []string, mf *types.MethodFragment) error {
	if mf == nil {
		return errors.New("method fragment is nil")
	}
	segs, err := json.Marshal(segments)
	if err != nil {
		return err
	}
	frag, err := json.Marshal(mf)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`INSERT INTO method_fragments(run_id,path,method,segments,operation,fragment,updated_at)
	VALUES(?,?,?,?,?,?,?)
	ON CONFLICT(run_id,path,method) DO UPDATE SET segments=excluded.segments,operation=excluded.operation,fragment=excluded.fragment,updated_at=excluded.updated_at`,
		runID, path, mf.Method, string(segs), mf.Operation, string(frag), now); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE runs SET fragment_count=(SELECT COUNT(*) FROM method_fragments WHERE run_id=?), updated_at=? WHERE id=?`, runID, now, runID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetResource returns nil without error when nothing was documented for path.
func (s *SQLiteStore) GetResource(runID, path string) (*types.ResourceFragment, error) {
	rows, err := s.db.Query(`SELECT path,segments,fragment FROM method_fragments WHERE run_id=? AND path=? ORDER BY method ASC`, runID, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res, err := scanResources(rows)
	if err != nil || len(res) == 0 {
		return nil, err
	}
	return res[0], nil
}

func (s *SQLiteStore) ListResources(runID string) ([]*types.ResourceFragment, error) {
	rows, err := s.db.Query(`SELECT path,segments,fragment FROM method_fragments WHERE run_id=? ORDER BY path ASC, method ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResources(rows)
}

func scanResources(rows *sql.Rows) ([]*types.ResourceFragment, error) {
	byPath := make(map[string]*types.ResourceFragment)
	for rows.Next() {
		var path, segS, fragS string
		if err := rows.Scan(&path, &segS, &fragS); err != nil {
			return nil, err
		}
		var mf types.MethodFragment
		if err := json.Unmarshal([]byte(fragS), &mf); err != nil {
			return nil, fmt.Errorf("decode fragment %s: %w", path, err)
		}
		res, ok := byPath[path]
		if !ok {
			res = &types.ResourceFragment{Path: path, Methods: make(map[string]*types.MethodFragment)}
			_ = json.Unmarshal([]byte(segS), &res.Segments)
			byPath[path] = res
		}
		res.Methods[mf.Method] = &mf
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*types.ResourceFragment, 0, len(byPath))
	for _, r := range byPath {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}
