package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"lifesupport.ai/internal/protocol"
	"lifesupport.ai/internal/sim/planets"
)

// SQLiteIndex is an append-only, queryable history of zone events. Writes are queued to a
// single writer goroutine and dropped if it falls behind; the JSONL audit log stays the
// source of truth. Nothing here is read back into the live registries.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan protocol.ZoneEvent
	wg   sync.WaitGroup
	once sync.Once

	// commitMaxWait bounds how long written events stay in an open transaction.
	commitMaxWait time.Duration

	closed  atomic.Bool
	dropped atomic.Uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 2*time.Second)
}

func openSQLite(path string, commitMaxWait time.Duration) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:            db,
		ch:            make(chan protocol.ZoneEvent, 65536),
		commitMaxWait: commitMaxWait,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS planets (
			world TEXT PRIMARY KEY,
			breathable INTEGER NOT NULL,
			gravity REAL NOT NULL,
			digest TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seq INTEGER NOT NULL,
			time TEXT NOT NULL,
			world TEXT NOT NULL,
			kind TEXT NOT NULL,
			action TEXT NOT NULL,
			ax INTEGER,
			ay INTEGER,
			az INTEGER,
			requested INTEGER NOT NULL,
			granted INTEGER NOT NULL,
			changed INTEGER NOT NULL,
			gravity REAL,
			reason TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_anchor ON events(world, kind, ax, ay, az, id);`,
		`CREATE TABLE IF NOT EXISTS event_coords (
			event_id INTEGER NOT NULL REFERENCES events(id),
			world TEXT NOT NULL,
			kind TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			PRIMARY KEY (event_id, x, y, z)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_event_coords_pos ON event_coords(world, kind, x, z, y, event_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts events discarded because the writer queue was full.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) WriteZoneEvent(ev protocol.ZoneEvent) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// UpsertPlanets records the planet table that was in effect, keyed by the file digest.
func (s *SQLiteIndex) UpsertPlanets(cat *planets.Catalog) error {
	if s == nil || cat == nil || !cat.IsDataLoaded() {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('planets_digest',?)`, cat.Digest()); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO planets(world,breathable,gravity,digest,updated_at) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range cat.List() {
		breathable := 0
		if p.Breathable {
			breathable = 1
		}
		if _, err := stmt.Exec(p.World, breathable, p.Gravity, cat.Digest(), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT INTO events(seq,time,world,kind,action,ax,ay,az,requested,granted,changed,gravity,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertCoord, _ := s.db.Prepare(`INSERT OR IGNORE INTO event_coords(event_id,world,kind,x,y,z) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertCoord != nil {
			_ = insertCoord.Close()
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		lastCommit  = time.Now()
		commitEvery = 2000
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	write := func(ev protocol.ZoneEvent) {
		begin()
		if tx == nil || insertEvent == nil {
			return
		}
		raw, _ := json.Marshal(ev)
		var ax, ay, az any
		if ev.Anchor != nil {
			ax, ay, az = ev.Anchor[0], ev.Anchor[1], ev.Anchor[2]
		}
		var gravity any
		if ev.Gravity != nil {
			gravity = *ev.Gravity
		}
		res, err := tx.Stmt(insertEvent).Exec(
			int64(ev.Seq), ev.Time, ev.World, ev.Kind, ev.Action,
			ax, ay, az,
			ev.Requested, ev.Granted, ev.Changed,
			gravity, ev.Reason, string(raw),
		)
		if err != nil {
			rollback()
			return
		}
		opCount++
		if id, err := res.LastInsertId(); err == nil && insertCoord != nil {
			for _, c := range ev.Coords {
				if _, err := tx.Stmt(insertCoord).Exec(id, ev.World, ev.Kind, c[0], c[1], c[2]); err != nil {
					rollback()
					break
				}
				opCount++
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= s.commitMaxWait) {
			commit()
		}
	}

	// The ticker flushes a partial batch once the queue goes quiet.
	ticker := time.NewTicker(s.commitMaxWait)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			write(ev)
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= s.commitMaxWait {
				commit()
			}
		}
	}
}
