package db

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/seqsweep/internal/monitoring"
)

// SequenceStats summarizes the stored plans of one sequence.
type SequenceStats struct {
	Sequence string    `json:"sequence"`
	Plans    int       `json:"plans"`
	Latest   time.Time `json:"latest"`
}

// PlanStats returns the number of stored plans and the newest plan time per
// sequence, ordered by sequence name.
func (db *DB) PlanStats() ([]SequenceStats, error) {
	rows, err := db.Query(`SELECT sequence, COUNT(*), MAX(created_unix)
		FROM plans GROUP BY sequence ORDER BY sequence`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []SequenceStats{}
	for rows.Next() {
		var (
			s      SequenceStats
			latest int64
		)
		if err := rows.Scan(&s.Sequence, &s.Plans, &latest); err != nil {
			return nil, err
		}
		s.Latest = time.Unix(0, latest).UTC()
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// AttachAdminRoutes mounts the debug pages of the plan store on mux under
// /debug/: a tailsql console over the database and per-sequence plan counts.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://plans.db", db.DB, &tailsql.DBOptions{
		Label: "Plans DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("plan-stats", "Stored plans per sequence", func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.PlanStats()
		if err != nil {
			monitoring.Logf("plan-stats: %v", err)
			http.Error(w, "Failed to read plan stats", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			monitoring.Warnf("failed to encode plan stats: %v", err)
		}
	})
	return nil
}
