package store

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// Run is one persisted orchestration run.
type Run struct {
	ID            int64
	ChatID        string
	Objective     string
	Status        string // running, completed, failed
	FinalResponse string
	Error         string
}

// StepRow is one executed step of a run, in execution order.
type StepRow struct {
	Position int
	Step     string
	Result   string
}

// Objective is a recurring objective the scheduler re-runs.
type Objective struct {
	ID              int64
	ChatID          string
	Objective       string
	IntervalSeconds int
}

// RunStore persists runs, their executed steps, and recurring
// objectives in sqlite.
type RunStore struct {
	DB *sql.DB
}

func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database at %s: %w", dbPath, err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			objective TEXT,
			status TEXT DEFAULT 'running',
			final_response TEXT DEFAULT '',
			error TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER,
			position INTEGER,
			step TEXT,
			result TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS objectives (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			objective TEXT,
			interval_seconds INTEGER,
			last_run DATETIME,
			status TEXT DEFAULT 'active'
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return nil, err
		}
	}

	return &RunStore{DB: db}, nil
}

func (s *RunStore) Close() error {
	return s.DB.Close()
}

// CreateRun records a new run and returns its ID.
func (s *RunStore) CreateRun(chatID, objective string) (int64, error) {
	res, err := s.DB.Exec(
		`INSERT INTO runs (chat_id, objective) VALUES (?, ?)`,
		chatID, objective)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AppendStep records one executed step. Position is zero-based and
// must only ever grow for a given run.
func (s *RunStore) AppendStep(runID int64, position int, step, result string) error {
	_, err := s.DB.Exec(
		`INSERT INTO run_steps (run_id, position, step, result) VALUES (?, ?, ?, ?)`,
		runID, position, step, result)
	return err
}

// CompleteRun marks the run finished with its final response.
func (s *RunStore) CompleteRun(runID int64, finalResponse string) error {
	_, err := s.DB.Exec(
		`UPDATE runs SET status = 'completed', final_response = ?, finished_at = datetime('now') WHERE id = ?`,
		finalResponse, runID)
	return err
}

// FailRun marks the run aborted with the failure kind and message.
func (s *RunStore) FailRun(runID int64, kind, message string) error {
	_, err := s.DB.Exec(
		`UPDATE runs SET status = 'failed', error = ?, finished_at = datetime('now') WHERE id = ?`,
		fmt.Sprintf("%s: %s", kind, message), runID)
	return err
}

func (s *RunStore) GetRun(runID int64) (Run, error) {
	var r Run
	err := s.DB.QueryRow(
		`SELECT id, chat_id, objective, status, final_response, error FROM runs WHERE id = ?`,
		runID).Scan(&r.ID, &r.ChatID, &r.Objective, &r.Status, &r.FinalResponse, &r.Error)
	return r, err
}

// GetRunSteps returns the executed steps of a run in execution order.
func (s *RunStore) GetRunSteps(runID int64) ([]StepRow, error) {
	rows, err := s.DB.Query(
		`SELECT position, step, result FROM run_steps WHERE run_id = ? ORDER BY position ASC`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []StepRow
	for rows.Next() {
		var st StepRow
		if err := rows.Scan(&st.Position, &st.Step, &st.Result); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// AddObjective schedules a recurring objective. An interval of zero
// means run once and delete.
func (s *RunStore) AddObjective(chatID, objective string, intervalSeconds int) error {
	_, err := s.DB.Exec(
		`INSERT INTO objectives (chat_id, objective, interval_seconds, last_run) VALUES (?, ?, ?, datetime('now', '-365 days'))`,
		chatID, objective, intervalSeconds)
	return err
}

// GetDueObjectives returns active objectives whose interval has
// elapsed since their last run.
func (s *RunStore) GetDueObjectives() ([]Objective, error) {
	rows, err := s.DB.Query(`
		SELECT id, chat_id, objective, interval_seconds
		FROM objectives
		WHERE status = 'active'
		AND (last_run IS NULL OR (julianday('now') - julianday(last_run)) * 86400 >= interval_seconds)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Objective
	for rows.Next() {
		var o Objective
		if err := rows.Scan(&o.ID, &o.ChatID, &o.Objective, &o.IntervalSeconds); err != nil {
			return nil, err
		}
		due = append(due, o)
	}
	return due, rows.Err()
}

func (s *RunStore) UpdateObjectiveLastRun(id int64) error {
	_, err := s.DB.Exec(`UPDATE objectives SET last_run = datetime('now') WHERE id = ?`, id)
	return err
}

func (s *RunStore) DeleteObjective(chatID string, id int64) error {
	_, err := s.DB.Exec(`DELETE FROM objectives WHERE chat_id = ? AND id = ?`, chatID, id)
	return err
}

// ClearObjectives removes every recurring objective for a chat.
func (s *RunStore) ClearObjectives(chatID string) error {
	_, err := s.DB.Exec(`DELETE FROM objectives WHERE chat_id = ?`, chatID)
	return err
}
