package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"procwatch/monitoring"
)

// EnsureDB creates the database directory if needed and returns the DSN
// for the sqlite file.
func EnsureDB(dir, file string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("creating database directory: %w", err)
	}
	fullPath := filepath.Join(dir, file)
	return fullPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", nil
}

// InitDB opens the database and creates the schema.
func InitDB(dataSourceName string) (*sql.DB, error) {
	database, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := createTables(database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func createTables(database *sql.DB) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS process_lifetimes (
		  pid INTEGER NOT NULL,
		  name TEXT NOT NULL,
		  first_seen DATETIME NOT NULL,
		  last_seen DATETIME NOT NULL,
		  max_cpu REAL NOT NULL DEFAULT 0,
		  max_memory INTEGER NOT NULL DEFAULT 0,
		  total_samples INTEGER NOT NULL DEFAULT 0,
		  lifetime_seconds REAL,
		  exited INTEGER NOT NULL DEFAULT 0,
		  PRIMARY KEY (pid, first_seen)
		);`,
		`
		CREATE TABLE IF NOT EXISTS resource_logs (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  timestamp DATETIME NOT NULL,
		  metric_type TEXT,  -- cpu_count, memory_percent, swap_percent, gpu_usage
		  value REAL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_process_lifetimes_last_seen ON process_lifetimes(last_seen);`,
		`CREATE INDEX IF NOT EXISTS idx_resource_logs_timestamp ON resource_logs(timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_resource_logs_metric_type_timestamp ON resource_logs(metric_type, timestamp);`,
	}
	for _, query := range queries {
		if _, err := database.Exec(query); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
	}
	return nil
}

// Store implements monitoring.LifetimeStore on top of sqlite.
type Store struct {
	DB *sql.DB
}

func NewStore(database *sql.DB) *Store {
	return &Store{DB: database}
}

func (s *Store) LoadLifetimes() ([]monitoring.ProcessLifetime, error) {
	rows, err := s.DB.Query(`
		SELECT pid, name, first_seen, last_seen, max_cpu, max_memory,
		       total_samples, COALESCE(lifetime_seconds, 0), exited
		FROM process_lifetimes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []monitoring.ProcessLifetime
	for rows.Next() {
		var record monitoring.ProcessLifetime
		var exited int
		if err := rows.Scan(&record.PID, &record.Name, &record.FirstSeen, &record.LastSeen,
			&record.MaxCPU, &record.MaxMemory, &record.Samples, &record.LifetimeSeconds, &exited); err != nil {
			return nil, err
		}
		record.Exited = exited != 0
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) SaveLifetime(record monitoring.ProcessLifetime) error {
	exited := 0
	if record.Exited {
		exited = 1
	}
	_, err := s.DB.Exec(`
		INSERT INTO process_lifetimes
		  (pid, name, first_seen, last_seen, max_cpu, max_memory, total_samples, lifetime_seconds, exited)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pid, first_seen) DO UPDATE SET
		  name = excluded.name,
		  last_seen = excluded.last_seen,
		  max_cpu = excluded.max_cpu,
		  max_memory = excluded.max_memory,
		  total_samples = excluded.total_samples,
		  lifetime_seconds = excluded.lifetime_seconds,
		  exited = excluded.exited;`,
		record.PID, record.Name, record.FirstSeen, record.LastSeen,
		record.MaxCPU, record.MaxMemory, record.Samples, record.LifetimeSeconds, exited)
	return err
}

func (s *Store) PruneLifetimes(cutoff time.Time) error {
	_, err := s.DB.Exec(`DELETE FROM process_lifetimes WHERE last_seen < ?`, cutoff)
	return err
}

// BatchInsertResourceLogs drains poll snapshots and writes their summary
// metrics in one transaction per second.
func BatchInsertResourceLogs(snapshots <-chan *monitoring.Snapshot, database *sql.DB) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	buffer := make([]*monitoring.Snapshot, 0, 10)

	for {
		select {
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			buffer = append(buffer, snapshot)
		case <-ticker.C:
			if len(buffer) == 0 {
				continue
			}
			if err := flushResourceLogs(database, buffer); err != nil {
				monitoring.LogError("Failed to write resource logs", "error", err)
			}
			buffer = buffer[:0]
		}
	}
}

func flushResourceLogs(database *sql.DB, buffer []*monitoring.Snapshot) error {
	tx, err := database.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO resource_logs (timestamp, metric_type, value) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, snapshot := range buffer {
		metrics := map[string]float64{
			"process_count": float64(len(snapshot.Processes)),
			"gpu_usage":     snapshot.GPUTotals.Usage,
		}
		if snapshot.System != nil {
			metrics["memory_percent"] = snapshot.System.MemoryPercent
			metrics["swap_percent"] = snapshot.System.SwapPercent
			metrics["load_1"] = snapshot.System.Load1
		}
		for metricType, value := range metrics {
			if _, err := stmt.Exec(snapshot.Timestamp, metricType, value); err != nil {
				tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}
