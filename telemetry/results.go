package telemetry

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/store"
)

// RunSummary describes a finished run.
type RunSummary struct {
	ID          int64   `db:"id"`
	Mode        string  `db:"mode"`
	Workers     int     `db:"workers"`
	Bees        int     `db:"bees"`
	Flowers     int     `db:"flowers"`
	Seed        int64   `db:"seed"`
	Timesteps   int     `db:"timesteps"`
	TotalNectar float64 `db:"total_nectar"`
	ElapsedSec  float64 `db:"elapsed_sec"`
	FinishedAt  string  `db:"finished_at"`
}

// FlowerResult is the final state of one flower.
type FlowerResult struct {
	RunID  int64   `db:"run_id"`
	ID     int32   `db:"id"`
	X      float64 `db:"x"`
	Y      float64 `db:"y"`
	Nectar float64 `db:"nectar"`
	Total  float64 `db:"total"`
}

// NewRunSummary builds a summary of st under cfg.
func NewRunSummary(cfg *config.Config, st *store.Store, elapsed time.Duration) RunSummary {
	return RunSummary{
		Mode:        cfg.Execution.Mode,
		Workers:     cfg.Execution.Workers,
		Bees:        st.NumBees(),
		Flowers:     st.NumFlowers(),
		Seed:        cfg.Run.Seed,
		Timesteps:   st.Timestep(),
		TotalNectar: st.TotalNectar(),
		ElapsedSec:  elapsed.Seconds(),
		FinishedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

// WriteResults writes the final totals and every flower as text.
func WriteResults(path, title string, st *store.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating results: %w", err)
	}
	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "# %s\n", title)
	fmt.Fprintf(w, "# Total nectar collected: %.2f\n", st.TotalNectar())
	fmt.Fprintf(w, "# Timesteps: %d\n\n", st.Timestep())
	fmt.Fprintf(w, "# Flower positions and remaining nectar:\n")
	st.EachFlower(func(fl store.FlowerView) {
		fmt.Fprintf(w, "Flower %d: (%.2f, %.2f) nectar=%.2f/%.2f\n",
			fl.ID, fl.Pos.X, fl.Pos.Y, fl.Nectar, fl.Total)
	})

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing results: %w", err)
	}
	return f.Close()
}

// ResultsDB stores run summaries and final flower states in SQLite.
type ResultsDB struct {
	conn *sqlx.DB
}

// OpenResultsDB opens or creates a results database at path.
func OpenResultsDB(path string) (*ResultsDB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &ResultsDB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *ResultsDB) Close() error {
	return db.conn.Close()
}

func (db *ResultsDB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mode TEXT NOT NULL,
		workers INTEGER NOT NULL,
		bees INTEGER NOT NULL,
		flowers INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		timesteps INTEGER NOT NULL,
		total_nectar REAL NOT NULL,
		elapsed_sec REAL NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS flowers (
		run_id INTEGER NOT NULL REFERENCES runs(id),
		id INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		nectar REAL NOT NULL,
		total REAL NOT NULL,
		PRIMARY KEY (run_id, id)
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveRun records a run and its final flowers in one transaction and
// returns the new run id.
func (db *ResultsDB) SaveRun(run RunSummary, st *store.Store) (int64, error) {
	tx, err := db.conn.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.NamedExec(`INSERT INTO runs
		(mode, workers, bees, flowers, seed, timesteps, total_nectar, elapsed_sec, finished_at)
		VALUES (:mode, :workers, :bees, :flowers, :seed, :timesteps, :total_nectar, :elapsed_sec, :finished_at)`,
		run)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Preparex(`INSERT INTO flowers (run_id, id, x, y, nectar, total) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var insertErr error
	st.EachFlower(func(f store.FlowerView) {
		if insertErr != nil {
			return
		}
		_, insertErr = stmt.Exec(id, f.ID, f.Pos.X, f.Pos.Y, f.Nectar, f.Total)
	})
	if insertErr != nil {
		return 0, fmt.Errorf("insert flowers: %w", insertErr)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Runs returns every recorded run, oldest first.
func (db *ResultsDB) Runs() ([]RunSummary, error) {
	var runs []RunSummary
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY id")
	return runs, err
}

// Flowers returns the final flowers of a run.
func (db *ResultsDB) Flowers(runID int64) ([]FlowerResult, error) {
	var flowers []FlowerResult
	err := db.conn.Select(&flowers, "SELECT * FROM flowers WHERE run_id = ? ORDER BY id", runID)
	return flowers, err
}

// BestRun returns the run with the most nectar collected.
func (db *ResultsDB) BestRun() (RunSummary, error) {
	var run RunSummary
	err := db.conn.Get(&run, "SELECT * FROM runs ORDER BY total_nectar DESC, id LIMIT 1")
	return run, err
}
