// Package results persists campaigns, the probes they ran and the boundaries they found in a SQLite database, so
// that several campaigns can be compared after the fact.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
	"github.com/G-Research/cliffbench/internal/common/util"
	"github.com/G-Research/cliffbench/internal/experiment"
)

var (
	runsTable     = goqu.T("runs")
	probesTable   = goqu.T("probes")
	outcomesTable = goqu.T("outcomes")
)

type Run struct {
	ID       string    `db:"id"`
	Campaign string    `db:"campaign"`
	Sense    string    `db:"sense"`
	Started  time.Time `db:"started"`
	// Finished is nil while the run is in progress or if it never completed.
	Finished  *time.Time `db:"finished"`
	Cancelled bool       `db:"cancelled"`
}

type Probe struct {
	ID               string        `db:"id"`
	RunID            string        `db:"run_id"`
	Group            string        `db:"group_name"`
	Wave             string        `db:"wave"`
	Load             uint64        `db:"load"`
	Leading          bool          `db:"leading"`
	Overloaded       bool          `db:"overloaded"`
	Reasons          string        `db:"reasons"`
	Requests         uint64        `db:"requests"`
	Throughput       float64       `db:"throughput"`
	SuccessRatio     float64       `db:"success_ratio"`
	MedianSojourn    time.Duration `db:"median_sojourn_ns"`
	MedianProcessing time.Duration `db:"median_processing_ns"`
	P99Processing    time.Duration `db:"p99_processing_ns"`
	// Scraped holds the target's own metrics as a JSON object.
	Scraped  string    `db:"scraped"`
	Recorded time.Time `db:"recorded"`
}

type Outcome struct {
	RunID    string `db:"run_id"`
	Group    string `db:"group_name"`
	LastGood uint64 `db:"last_good"`
	// Backfill is the comma separated list of loads the group was re-measured at.
	Backfill string `db:"backfill"`
	Replayed uint64 `db:"replayed"`
}

// Store is safe for concurrent use; writes are serialised.
type Store struct {
	db   *goqu.Database
	raw  *sql.DB
	lock sync.Mutex
	now  func() time.Time
}

// Open opens or creates the database at path, creating its directory if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "could not make directory %s for results database", dir)
		}
	}
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening results database %s", path)
	}
	// One connection keeps in-memory databases alive and avoids SQLITE_BUSY between our own writers.
	raw.SetMaxOpenConns(1)
	return &Store{
		db:  goqu.New("sqlite3", raw),
		raw: raw,
		now: time.Now,
	}, nil
}

// Setup creates any missing tables.
func (s *Store) Setup(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	statements := []string{
		"PRAGMA journal_mode=WAL",
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			campaign TEXT NOT NULL,
			sense TEXT NOT NULL,
			started TIMESTAMP NOT NULL,
			finished TIMESTAMP,
			cancelled BOOLEAN NOT NULL DEFAULT FALSE)`,
		`CREATE TABLE IF NOT EXISTS probes (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id),
			group_name TEXT NOT NULL,
			wave TEXT NOT NULL,
			load INTEGER NOT NULL,
			leading BOOLEAN NOT NULL,
			overloaded BOOLEAN NOT NULL,
			reasons TEXT NOT NULL,
			requests INTEGER NOT NULL,
			throughput REAL NOT NULL,
			success_ratio REAL NOT NULL,
			median_sojourn_ns INTEGER NOT NULL,
			median_processing_ns INTEGER NOT NULL,
			p99_processing_ns INTEGER NOT NULL,
			scraped TEXT NOT NULL,
			recorded TIMESTAMP NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS idx_probes_run ON probes (run_id, group_name)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL REFERENCES runs(id),
			group_name TEXT NOT NULL,
			last_good INTEGER NOT NULL,
			backfill TEXT NOT NULL,
			replayed INTEGER NOT NULL,
			PRIMARY KEY (run_id, group_name))`,
	}
	for _, stmt := range statements {
		if _, err := s.raw.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "setting up results database")
		}
	}
	return nil
}

// StartRun records the start of a campaign and returns its id. Ids sort in start order.
func (s *Store) StartRun(ctx context.Context, campaign, sense string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	started := s.now()
	id := util.NewULID(started)
	_, err := s.db.Insert(runsTable).Rows(goqu.Record{
		"id":        id,
		"campaign":  campaign,
		"sense":     sense,
		"started":   started.UTC(),
		"cancelled": false,
	}).Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "recording start of campaign %s", campaign)
	}
	return id, nil
}

// FinishRun marks a run as complete.
func (s *Store) FinishRun(ctx context.Context, runID string, cancelled bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	res, err := s.db.Update(runsTable).
		Set(goqu.Record{"finished": s.now().UTC(), "cancelled": cancelled}).
		Where(goqu.C("id").Eq(runID)).
		Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "finishing run %s", runID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.WithStack(&bencherrors.ErrNotFound{Type: "run", Value: runID})
	}
	return nil
}

// RecordProbe stores one classified probe.
func (s *Store) RecordProbe(ctx context.Context, runID, group, wave string, leading bool, v experiment.Verdict) error {
	scraped := []byte("{}")
	if len(v.Telemetry.Scraped) > 0 {
		var err error
		if scraped, err = json.Marshal(v.Telemetry.Scraped); err != nil {
			return errors.WithStack(err)
		}
	}
	reasons, err := json.Marshal(v.Reasons)
	if err != nil {
		return errors.WithStack(err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	t := v.Telemetry
	_, err = s.db.Insert(probesTable).Rows(goqu.Record{
		"id":                   uuid.NewString(),
		"run_id":               runID,
		"group_name":           group,
		"wave":                 wave,
		"load":                 int64(t.Load),
		"leading":              leading,
		"overloaded":           v.Overloaded,
		"reasons":              string(reasons),
		"requests":             int64(t.Requests),
		"throughput":           t.Throughput,
		"success_ratio":        t.SuccessRatio,
		"median_sojourn_ns":    int64(t.MedianSojourn),
		"median_processing_ns": int64(t.MedianProcessing),
		"p99_processing_ns":    int64(t.P99Processing),
		"scraped":              string(scraped),
		"recorded":             s.now().UTC(),
	}).Prepared(true).Executor().ExecContext(ctx)
	return errors.Wrapf(err, "recording probe of %s at %d", group, t.Load)
}

// RecordOutcome stores, or replaces, the result of one group.
func (s *Store) RecordOutcome(ctx context.Context, o Outcome) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	err := s.db.WithTx(func(tx *goqu.TxDatabase) error {
		_, err := tx.Delete(outcomesTable).
			Where(goqu.C("run_id").Eq(o.RunID), goqu.C("group_name").Eq(o.Group)).
			Prepared(true).Executor().ExecContext(ctx)
		if err != nil {
			return err
		}
		_, err = tx.Insert(outcomesTable).Rows(goqu.Record{
			"run_id":     o.RunID,
			"group_name": o.Group,
			"last_good":  int64(o.LastGood),
			"backfill":   o.Backfill,
			"replayed":   int64(o.Replayed),
		}).Prepared(true).Executor().ExecContext(ctx)
		return err
	})
	return errors.Wrapf(err, "recording outcome of %s", o.Group)
}

func (s *Store) Run(ctx context.Context, runID string) (*Run, error) {
	var run Run
	found, err := s.db.From(runsTable).Where(goqu.C("id").Eq(runID)).Prepared(true).ScanStructContext(ctx, &run)
	if err != nil {
		return nil, errors.Wrapf(err, "loading run %s", runID)
	}
	if !found {
		return nil, errors.WithStack(&bencherrors.ErrNotFound{Type: "run", Value: runID})
	}
	return &run, nil
}

// Probes returns every probe of a run in the order they were recorded.
func (s *Store) Probes(ctx context.Context, runID string) ([]*Probe, error) {
	probes := make([]*Probe, 0)
	err := s.db.From(probesTable).
		Where(goqu.C("run_id").Eq(runID)).
		Order(goqu.C("recorded").Asc(), goqu.C("rowid").Asc()).
		Prepared(true).
		ScanStructsContext(ctx, &probes)
	return probes, errors.Wrapf(err, "loading probes of run %s", runID)
}

// Outcomes returns the results of a run ordered by group.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]*Outcome, error) {
	outcomes := make([]*Outcome, 0)
	err := s.db.From(outcomesTable).
		Where(goqu.C("run_id").Eq(runID)).
		Order(goqu.C("group_name").Asc()).
		Prepared(true).
		ScanStructsContext(ctx, &outcomes)
	return outcomes, errors.Wrapf(err, "loading outcomes of run %s", runID)
}

func (s *Store) Close() error {
	return errors.WithStack(s.raw.Close())
}
