package record

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/opmlog/pkg/acquire"
	"github.com/itohio/opmlog/pkg/display"
	"github.com/itohio/opmlog/pkg/n7745c"

	_ "modernc.org/sqlite"
)

var _ display.Sink = (*Recorder)(nil)

// ErrNoRun is returned when a batch is recorded outside of a run.
var ErrNoRun = errors.New("no run in progress")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	points INTEGER NOT NULL,
	integration_time REAL NOT NULL,
	time_unit TEXT NOT NULL,
	loop_delay REAL NOT NULL,
	simulated INTEGER NOT NULL,
	batches INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS batches (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	seq INTEGER NOT NULL,
	fetched_at INTEGER NOT NULL,
	count INTEGER NOT NULL,
	min REAL,
	max REAL,
	mean REAL,
	samples BLOB NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Run describes one recorded acquisition run.
type Run struct {
	ID        int64
	StartedAt time.Time
	EndedAt   time.Time // Zero while the run is open
	Config    acquire.Config
	Simulated bool
	Batches   int
}

// Recorder stores runs and their batches in a SQLite database.
type Recorder struct {
	db *sql.DB

	mu      sync.Mutex
	runID   int64
	batches int
}

// Open opens or creates the database at path.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		log.Printf("failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		log.Printf("failed to set synchronous mode: %v", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Recorder{db: db}, nil
}

// BeginRun opens a new run row. A run left open is closed first.
func (r *Recorder) BeginRun(cfg acquire.Config, simulate bool) error {
	if err := r.EndRun(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		INSERT INTO runs (started_at, points, integration_time, time_unit, loop_delay, simulated)
		VALUES (?, ?, ?, ?, ?, ?)
	`, time.Now().UnixNano(), cfg.Points, cfg.IntegrationTime, string(cfg.Unit), cfg.LoopDelay.Seconds(), simulate)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}
	r.runID = id
	r.batches = 0
	return nil
}

// Record stores one batch of the current run.
func (r *Recorder) Record(b acquire.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runID == 0 {
		return ErrNoRun
	}

	s := b.Stats()
	var minV, maxV, mean any
	if s.Count > 0 {
		minV, maxV, mean = s.Min, s.Max, s.Mean
	}

	_, err := r.db.Exec(`
		INSERT INTO batches (run_id, seq, fetched_at, count, min, max, mean, samples)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.runID, int64(b.Seq), b.Time.UnixNano(), s.Count, minV, maxV, mean, encodeSamples(b.Values))
	if err != nil {
		return fmt.Errorf("failed to insert batch %d: %w", b.Seq, err)
	}
	r.batches++
	return nil
}

// EndRun closes the current run. It is a no-op when no run is open.
func (r *Recorder) EndRun() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runID == 0 {
		return nil
	}

	_, err := r.db.Exec(`UPDATE runs SET ended_at = ?, batches = ? WHERE id = ?`,
		time.Now().UnixNano(), r.batches, r.runID)
	if err != nil {
		return fmt.Errorf("failed to close run %d: %w", r.runID, err)
	}
	log.Printf("recorded run %d with %d batches", r.runID, r.batches)
	r.runID = 0
	return nil
}

// Runs lists the recorded runs, oldest first.
func (r *Recorder) Runs(ctx context.Context) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, points, integration_time, time_unit, loop_delay, simulated, batches
		FROM runs ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			started   int64
			ended     sql.NullInt64
			unit      string
			loopDelay float64
		)
		if err := rows.Scan(&run.ID, &started, &ended, &run.Config.Points, &run.Config.IntegrationTime,
			&unit, &loopDelay, &run.Simulated, &run.Batches); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = time.Unix(0, started)
		if ended.Valid {
			run.EndedAt = time.Unix(0, ended.Int64)
		}
		run.Config.Unit = n7745c.TimeUnit(unit)
		run.Config.LoopDelay = time.Duration(math.Round(loopDelay * float64(time.Second)))
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Batches returns the batches of one run in fetch order.
func (r *Recorder) Batches(ctx context.Context, runID int64) ([]acquire.Batch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, fetched_at, samples FROM batches WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var out []acquire.Batch
	for rows.Next() {
		var (
			seq     int64
			fetched int64
			blob    []byte
		)
		if err := rows.Scan(&seq, &fetched, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		values, err := decodeSamples(blob)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", seq, err)
		}
		out = append(out, acquire.Batch{Seq: uint64(seq), Time: time.Unix(0, fetched), Values: values})
	}
	return out, rows.Err()
}

// Close ends an open run and closes the database.
func (r *Recorder) Close() error {
	if err := r.EndRun(); err != nil {
		log.Printf("failed to end run: %v", err)
	}
	return r.db.Close()
}

// encodeSamples stores values as little-endian float32, the instrument's
// native resolution.
func encodeSamples(values []float64) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math32.Float32bits(float32(v)))
	}
	return buf
}

func decodeSamples(buf []byte) ([]float64, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("sample blob length %d is not a multiple of 4", len(buf))
	}
	values := make([]float64, len(buf)/4)
	for i := range values {
		values[i] = float64(math32.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return values, nil
}
