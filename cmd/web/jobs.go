package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/boscoh/uniprot/internal/fetch"
	"github.com/boscoh/uniprot/internal/flatfile"

	_ "modernc.org/sqlite"
)

// FetchJob records one metadata fetch triggered from the UI.
type FetchJob struct {
	ID        string    `json:"id"`
	Accession string    `json:"accession"`
	State     string    `json:"state"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Job history backend. "json" stores jobs as a JSON array at jobsPath;
// "sqlite" stores them in the jobs table of the database at jobsPath.
var (
	jobsStore = "json"
	jobsPath  = "jobs.json"
	jobsDB    *sql.DB
)

func openSQLite(path string) (*sql.DB, error) {
	return sql.Open("sqlite", path)
}

func initJobsSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
        id TEXT PRIMARY KEY,
        accession TEXT,
        state TEXT,
        message TEXT,
        created_at TEXT,
        updated_at TEXT
    )`)
	return err
}

// saveJobs persists the full job list to the configured backend.
func saveJobs(path string, jobs []FetchJob) error {
	if jobsStore == "sqlite" {
		tx, err := jobsDB.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM jobs`); err != nil {
			tx.Rollback()
			return err
		}
		for _, j := range jobs {
			if _, err := tx.Exec(`INSERT INTO jobs (id, accession, state, message, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
				j.ID, j.Accession, j.State, j.Message,
				j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339)); err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	}
	out, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}

// loadJobs reads the full job list from the configured backend. A missing
// store is not an error; it reads as empty history.
func loadJobs(path string) ([]FetchJob, error) {
	if jobsStore == "sqlite" {
		rows, err := jobsDB.Query(`SELECT id, accession, state, message, created_at, updated_at FROM jobs`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var jobs []FetchJob
		for rows.Next() {
			var j FetchJob
			var created, updated string
			if err := rows.Scan(&j.ID, &j.Accession, &j.State, &j.Message, &created, &updated); err != nil {
				return nil, err
			}
			j.CreatedAt, _ = time.Parse(time.RFC3339, created)
			j.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
			jobs = append(jobs, j)
		}
		return jobs, rows.Err()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var jobs []FetchJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func appendJob(job FetchJob) error {
	jobs, err := loadJobs(jobsPath)
	if err != nil {
		return err
	}
	jobs = append(jobs, job)
	return saveJobs(jobsPath, jobs)
}

// entryFromRecord converts a parsed record into the database.json shape.
func entryFromRecord(rec *flatfile.Record) ProteinRecord {
	e := ProteinRecord{
		EntryName:   rec.ID,
		Description: rec.Description,
		Gene:        rec.Gene,
		Organism:    rec.Organism,
		Reviewed:    rec.Reviewed,
		Length:      rec.Length,
		Sequence:    rec.Sequence,
	}
	if len(rec.Accessions) > 0 {
		e.Accession = rec.Accessions[0]
		e.Seqids = []string{rec.Accessions[0]}
	}
	ordinals := make([]string, 0, len(rec.Isoforms))
	for ordinal := range rec.Isoforms {
		ordinals = append(ordinals, ordinal)
	}
	sort.Strings(ordinals)
	for _, ordinal := range ordinals {
		iso := rec.Isoforms[ordinal]
		e.Isoforms = append(e.Isoforms, IsoformEntry{Ordinal: ordinal, IsoID: iso.ID, Sequence: iso.Sequence})
	}
	for _, v := range rec.Variations {
		kind := "substitution"
		if v.Kind == flatfile.Deletion {
			kind = "deletion"
		}
		e.Variations = append(e.Variations, VariationEntry{
			Start: v.Start, End: v.End, Kind: kind,
			Replacement: v.Replacement, Isoforms: v.AppliesTo,
		})
	}
	return e
}

// fetchSubmitHandler fetches metadata for one accession and merges the parsed
// record into database.json (simple read-modify-write), recording a job entry
// either way.
func fetchSubmitHandler(dbPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 4 || parts[3] == "" {
			http.Error(w, "missing accession", http.StatusBadRequest)
			return
		}
		acc := parts[3]
		now := time.Now().UTC()
		job := FetchJob{
			ID:        fmt.Sprintf("job-%d", now.UnixNano()),
			Accession: acc,
			State:     "running",
			CreatedAt: now,
			UpdatedAt: now,
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()
		text, err := fetch.Metadata(ctx, []string{acc})
		if err == nil {
			var records map[string]*flatfile.Record
			records, err = flatfile.ParseRecords(strings.NewReader(text))
			if err == nil && len(records) == 0 {
				err = fmt.Errorf("no record returned for %s", acc)
			}
			if err == nil {
				for _, rec := range records {
					for ordinal := range rec.Isoforms {
						if _, isoErr := rec.ReconstructIsoform(ordinal); isoErr != nil {
							job.Message = isoErr.Error()
						}
					}
					mergeEntry(dbPath, entryFromRecord(rec))
				}
			}
		}

		job.UpdatedAt = time.Now().UTC()
		if err != nil {
			job.State = "error"
			job.Message = err.Error()
		} else {
			job.State = "done"
		}
		if jerr := appendJob(job); jerr != nil {
			http.Error(w, fmt.Sprintf("failed to record job: %v", jerr), http.StatusInternalServerError)
			return
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("fetch failed: %v", err), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": job.ID, "state": job.State})
	}
}

// mergeEntry replaces or appends the entry in database.json by accession.
func mergeEntry(dbPath string, entry ProteinRecord) {
	records, err := readDatabase(dbPath)
	if err != nil {
		records = nil
	}
	replaced := false
	for i := range records {
		if records[i].Accession == entry.Accession {
			entry.Seqids = records[i].Seqids
			records[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, entry)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].EntryName < records[j].EntryName })
	out, _ := json.MarshalIndent(records, "", "  ")
	_ = os.WriteFile(dbPath, out, 0644)
}
