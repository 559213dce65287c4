// Package indexdb stores edited chunks and the block edit history in a
// SQLite database. Writes are queued to a single writer goroutine so the
// pipeline tick never waits on disk.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"voxelforge.ai/internal/sim/world"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

const schemaVersion = "1"

var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zdec, _ = zstd.NewReader(nil)
)

type ChunkDB struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed   atomic.Bool
	inflight atomic.Int64

	// pending holds saves and deletes not yet committed, so LoadChunk sees
	// its own writes.
	pendMu  sync.Mutex
	pending map[store.ChunkPos]pendingWrite
	seq     uint64

	dropSave   atomic.Uint64
	dropEdit   atomic.Uint64
	writeFail  atomic.Uint64
	commitFail atomic.Uint64
	saved      atomic.Uint64
}

type reqKind int

const (
	reqSave reqKind = iota + 1
	reqDelete
	reqEdit
)

type req struct {
	kind reqKind
	seq  uint64
	pos  store.ChunkPos
	p    store.PackedChunk
	edit world.AuditEntry
}

type pendingWrite struct {
	seq     uint64
	deleted bool
	p       store.PackedChunk
}

// Stats are the writer's queue and drop counters.
type Stats struct {
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	Pending         int    `json:"pending"`
	SavedTotal      uint64 `json:"saved_total"`
	DropSaveTotal   uint64 `json:"drop_save_total"`
	DropEditTotal   uint64 `json:"drop_edit_total"`
	WriteFailTotal  uint64 `json:"write_fail_total"`
	CommitFailTotal uint64 `json:"commit_fail_total"`
}

// StoredChunk is one row of ListChunks.
type StoredChunk struct {
	Pos       store.ChunkPos `json:"pos"`
	Bits      int            `json:"bits"`
	Palette   int            `json:"palette"`
	Digest    string         `json:"digest"`
	UpdatedAt string         `json:"updated_at"`
}

// Edit is one row of the edit history.
type Edit struct {
	Seq   int64  `json:"seq"`
	Tick  uint64 `json:"tick"`
	Actor string `json:"actor"`
	Pos   [3]int `json:"pos"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

func Open(path string) (*ChunkDB, error) {
	return open(path, 65536)
}

func open(path string, queue int) (*ChunkDB, error) {
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

	s := &ChunkDB{
		db:      db,
		ch:      make(chan req, queue),
		pending: map[store.ChunkPos]pendingWrite{},
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
		`CREATE TABLE IF NOT EXISTS chunks (
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			bits INTEGER NOT NULL,
			palette_json TEXT NOT NULL,
			words_zst BLOB,
			digest TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (cx, cy, cz)
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			actor TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			old TEXT NOT NULL,
			new TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_pos ON edits(x, z, y, tick);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the write queue and closes the database.
func (s *ChunkDB) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// SaveChunk queues p for writing. It reports false when the queue is full
// and the write was dropped.
func (s *ChunkDB) SaveChunk(pos store.ChunkPos, p store.PackedChunk) bool {
	return s.enqueue(req{kind: reqSave, pos: pos, p: p}, false)
}

// DeleteChunk queues removal of a stored chunk.
func (s *ChunkDB) DeleteChunk(pos store.ChunkPos) bool {
	return s.enqueue(req{kind: reqDelete, pos: pos}, true)
}

func (s *ChunkDB) enqueue(r req, deleted bool) bool {
	if s == nil || s.closed.Load() {
		return false
	}
	s.pendMu.Lock()
	s.seq++
	r.seq = s.seq
	s.pending[r.pos] = pendingWrite{seq: r.seq, deleted: deleted, p: r.p}
	s.pendMu.Unlock()

	s.inflight.Add(1)
	select {
	case s.ch <- r:
		return true
	default:
		s.inflight.Add(-1)
		s.dropSave.Add(1)
		s.settle(r.pos, r.seq)
		return false
	}
}

// settle forgets a pending write once it is committed or dropped, unless a
// newer write for the same position replaced it.
func (s *ChunkDB) settle(pos store.ChunkPos, seq uint64) {
	s.pendMu.Lock()
	if pw, ok := s.pending[pos]; ok && pw.seq == seq {
		delete(s.pending, pos)
	}
	s.pendMu.Unlock()
}

// WriteAudit records a block edit. It implements world.AuditLogger and
// never blocks; edits are dropped when the queue is full.
func (s *ChunkDB) WriteAudit(e world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.inflight.Add(1)
	select {
	case s.ch <- req{kind: reqEdit, edit: e}:
	default:
		s.inflight.Add(-1)
		s.dropEdit.Add(1)
	}
	return nil
}

// RecordEdit is WriteAudit for callers outside the pipeline.
func (s *ChunkDB) RecordEdit(e world.AuditEntry) { _ = s.WriteAudit(e) }

// LoadChunk implements world.ChunkLoader.
func (s *ChunkDB) LoadChunk(pos store.ChunkPos) (*store.ChunkData, bool, error) {
	s.pendMu.Lock()
	pw, ok := s.pending[pos]
	s.pendMu.Unlock()
	if ok {
		if pw.deleted {
			return nil, false, nil
		}
		d, err := store.Unpack(pw.p)
		return d, err == nil, err
	}

	p, ok, err := s.loadPacked(context.Background(), pos)
	if err != nil || !ok {
		return nil, false, err
	}
	d, err := store.Unpack(p)
	if err != nil {
		return nil, false, fmt.Errorf("chunk %s: %w", pos, err)
	}
	return d, true, nil
}

func (s *ChunkDB) loadPacked(ctx context.Context, pos store.ChunkPos) (store.PackedChunk, bool, error) {
	var (
		p       store.PackedChunk
		palette string
		words   []byte
	)
	row := s.db.QueryRowContext(ctx, `SELECT bits, palette_json, words_zst FROM chunks WHERE cx=? AND cy=? AND cz=?`, pos.X, pos.Y, pos.Z)
	if err := row.Scan(&p.Bits, &palette, &words); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, false, nil
		}
		return p, false, err
	}
	if err := json.Unmarshal([]byte(palette), &p.Palette); err != nil {
		return p, false, fmt.Errorf("chunk %s palette: %w", pos, err)
	}
	w, err := decodeWords(words)
	if err != nil {
		return p, false, fmt.Errorf("chunk %s words: %w", pos, err)
	}
	p.Words = w
	return p, true, nil
}

// ListChunks returns the stored chunks in position order.
func (s *ChunkDB) ListChunks(ctx context.Context) ([]StoredChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cx, cy, cz, bits, palette_json, digest, updated_at FROM chunks ORDER BY cy, cx, cz`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredChunk
	for rows.Next() {
		var (
			c       StoredChunk
			palette string
		)
		if err := rows.Scan(&c.Pos.X, &c.Pos.Y, &c.Pos.Z, &c.Bits, &palette, &c.Digest, &c.UpdatedAt); err != nil {
			return nil, err
		}
		var entries []store.PackedEntry
		if err := json.Unmarshal([]byte(palette), &entries); err == nil {
			c.Palette = len(entries)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Edits returns up to limit edits, newest first.
func (s *ChunkDB) Edits(ctx context.Context, limit int) ([]Edit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT seq, tick, actor, x, y, z, old, new FROM edits ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Edit
	for rows.Next() {
		var (
			e    Edit
			tick int64
		)
		if err := rows.Scan(&e.Seq, &tick, &e.Actor, &e.Pos[0], &e.Pos[1], &e.Pos[2], &e.Old, &e.New); err != nil {
			return nil, err
		}
		e.Tick = uint64(tick)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Meta reads one meta value; ok is false when the key is unset.
func (s *ChunkDB) Meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return v, err == nil, err
}

func (s *ChunkDB) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, key, value)
	return err
}

// Flush waits until every write queued before the call is committed.
func (s *ChunkDB) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.inflight.Load() == 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (s *ChunkDB) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	s.pendMu.Lock()
	pending := len(s.pending)
	s.pendMu.Unlock()
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		Pending:         pending,
		SavedTotal:      s.saved.Load(),
		DropSaveTotal:   s.dropSave.Load(),
		DropEditTotal:   s.dropEdit.Load(),
		WriteFailTotal:  s.writeFail.Load(),
		CommitFailTotal: s.commitFail.Load(),
	}
}

func encodeWords(w []uint64) []byte {
	if len(w) == 0 {
		return nil
	}
	raw := make([]byte, 8*len(w))
	for i, v := range w {
		binary.LittleEndian.PutUint64(raw[8*i:], v)
	}
	return zenc.EncodeAll(raw, nil)
}

func decodeWords(b []byte) ([]uint64, error) {
	if len(b) == 0 {
		return nil, nil
	}
	raw, err := zdec.DecodeAll(b, nil)
	if err != nil {
		return nil, err
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("word stream length %d", len(raw))
	}
	out := make([]uint64, len(raw)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(raw[8*i:])
	}
	return out, nil
}

const batchMax = 512

// loop commits one transaction per batch of queued requests.
func (s *ChunkDB) loop() {
	ctx := context.Background()
	for r := range s.ch {
		batch := []req{r}
	fill:
		for len(batch) < batchMax {
			select {
			case next, ok := <-s.ch:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		s.writeBatch(ctx, batch)
	}
}

func (s *ChunkDB) writeBatch(ctx context.Context, batch []req) {
	defer func() {
		for _, r := range batch {
			if r.kind == reqSave || r.kind == reqDelete {
				s.settle(r.pos, r.seq)
			}
		}
		s.inflight.Add(-int64(len(batch)))
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.commitFail.Add(1)
		return
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	saved := 0
	for _, r := range batch {
		var err error
		switch r.kind {
		case reqSave:
			palette, _ := json.Marshal(r.p.Palette)
			_, err = tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO chunks(cx,cy,cz,bits,palette_json,words_zst,digest,updated_at) VALUES(?,?,?,?,?,?,?,?)`,
				r.pos.X, r.pos.Y, r.pos.Z, r.p.Bits, string(palette), encodeWords(r.p.Words), r.p.Digest(), now)
			if err == nil {
				saved++
			}
		case reqDelete:
			_, err = tx.ExecContext(ctx, `DELETE FROM chunks WHERE cx=? AND cy=? AND cz=?`, r.pos.X, r.pos.Y, r.pos.Z)
		case reqEdit:
			e := r.edit
			_, err = tx.ExecContext(ctx,
				`INSERT INTO edits(tick,actor,x,y,z,old,new) VALUES(?,?,?,?,?,?,?)`,
				int64(e.Tick), e.Actor, e.Pos[0], e.Pos[1], e.Pos[2], e.From, e.To)
		}
		if err != nil {
			s.writeFail.Add(1)
		}
	}
	if err := tx.Commit(); err != nil {
		s.commitFail.Add(1)
		return
	}
	s.saved.Add(uint64(saved))
}
