package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/seqsweep/internal/compiler"
	"github.com/banshee-data/seqsweep/internal/config"
)

// PlanRecord is a stored plan with its source definition.
type PlanRecord struct {
	ID         string                  `json:"id"`
	Sequence   string                  `json:"sequence"`
	StreamMode string                  `json:"stream_mode"`
	SweepSize  int                     `json:"sweep_size"`
	Shape      []int                   `json:"shape"`
	ArrayWords int                     `json:"array_words"`
	Warnings   int                     `json:"warnings"`
	CreatedAt  time.Time               `json:"created_at"`
	Definition *config.SweepDefinition `json:"definition,omitempty"`
	Plan       *compiler.Plan          `json:"plan,omitempty"`
}

// AxisRow is one axis of a stored plan.
type AxisRow struct {
	PlanID     string   `json:"plan_id"`
	Index      int      `json:"index"`
	Strategy   string   `json:"strategy"`
	Length     int      `json:"length"`
	Parameters []string `json:"parameters"`
	WordsSaved int      `json:"words_saved"`
}

// InsertPlan stores plan and the definition it was compiled from and returns
// the new plan id.
func (db *DB) InsertPlan(def *config.SweepDefinition, plan *compiler.Plan) (string, error) {
	if def == nil || plan == nil {
		return "", fmt.Errorf("definition and plan are required")
	}
	defJSON, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("failed to encode definition: %w", err)
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("failed to encode plan: %w", err)
	}
	shapeJSON, err := json.Marshal(plan.Shape)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO plans (
			plan_id, sequence, stream_mode, sweep_size, shape, array_words,
			warnings, definition, plan, created_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, plan.Sequence, plan.StreamMode, plan.Size, string(shapeJSON), plan.ArrayWords,
		len(plan.Warnings), string(defJSON), string(planJSON), time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert plan: %w", err)
	}
	for _, a := range plan.Axes {
		_, err = tx.Exec(`INSERT INTO plan_axes (
				plan_id, axis_index, strategy, length, parameters, words_saved
			) VALUES (?, ?, ?, ?, ?, ?)`,
			id, a.Index, a.Strategy.String(), a.Length, strings.Join(a.Parameters, ","), a.WordsSaved,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert axis %d: %w", a.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// GetPlan loads a plan with its definition.
func (db *DB) GetPlan(id string) (*PlanRecord, error) {
	row := db.QueryRow(`SELECT plan_id, sequence, stream_mode, sweep_size, shape,
			array_words, warnings, created_unix, definition, plan
		FROM plans WHERE plan_id = ?`, id)

	var (
		rec              PlanRecord
		shape, def, plan string
		createdUnixNanos int64
	)
	err := row.Scan(&rec.ID, &rec.Sequence, &rec.StreamMode, &rec.SweepSize, &shape,
		&rec.ArrayWords, &rec.Warnings, &createdUnixNanos, &def, &plan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdUnixNanos).UTC()
	if err := json.Unmarshal([]byte(shape), &rec.Shape); err != nil {
		return nil, fmt.Errorf("failed to decode shape of %s: %w", id, err)
	}
	rec.Definition = &config.SweepDefinition{}
	if err := json.Unmarshal([]byte(def), rec.Definition); err != nil {
		return nil, fmt.Errorf("failed to decode definition of %s: %w", id, err)
	}
	rec.Plan = &compiler.Plan{}
	if err := json.Unmarshal([]byte(plan), rec.Plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan %s: %w", id, err)
	}
	return &rec, nil
}

// ListPlans returns the newest plans first, without definitions. A sequence
// of "" lists all sequences; limit <= 0 means 100.
func (db *DB) ListPlans(sequence string, limit int) ([]PlanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT plan_id, sequence, stream_mode, sweep_size, shape,
			array_words, warnings, created_unix
		FROM plans
		WHERE (? = '' OR sequence = ?)
		ORDER BY created_unix DESC, rowid DESC
		LIMIT ?`, sequence, sequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []PlanRecord
	for rows.Next() {
		var (
			rec     PlanRecord
			shape   string
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.Sequence, &rec.StreamMode, &rec.SweepSize, &shape,
			&rec.ArrayWords, &rec.Warnings, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		if err := json.Unmarshal([]byte(shape), &rec.Shape); err != nil {
			return nil, fmt.Errorf("failed to decode shape of %s: %w", rec.ID, err)
		}
		plans = append(plans, rec)
	}
	return plans, rows.Err()
}

// PlanAxes returns the axes of a stored plan in declaration order.
func (db *DB) PlanAxes(id string) ([]AxisRow, error) {
	rows, err := db.Query(`SELECT plan_id, axis_index, strategy, length, parameters, words_saved
		FROM plan_axes WHERE plan_id = ? ORDER BY axis_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var axes []AxisRow
	for rows.Next() {
		var (
			a      AxisRow
			params string
		)
		if err := rows.Scan(&a.PlanID, &a.Index, &a.Strategy, &a.Length, &params, &a.WordsSaved); err != nil {
			return nil, err
		}
		if params != "" {
			a.Parameters = strings.Split(params, ",")
		}
		axes = append(axes, a)
	}
	return axes, rows.Err()
}

// DeletePlan removes a plan and its axes.
func (db *DB) DeletePlan(id string) error {
	res, err := db.Exec(`DELETE FROM plans WHERE plan_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
