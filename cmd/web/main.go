package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// IsoformEntry mirrors the isoform objects written to database.json.
type IsoformEntry struct {
	Ordinal  string `json:"ordinal"`
	IsoID    string `json:"iso_id"`
	Sequence string `json:"sequence"`
}

// VariationEntry mirrors the variation objects written to database.json.
type VariationEntry struct {
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Kind        string   `json:"kind"`
	Replacement string   `json:"replacement,omitempty"`
	Isoforms    []string `json:"isoforms"`
}

// ProteinRecord mirrors one entry of database.json.
type ProteinRecord struct {
	Seqids      []string         `json:"seqids"`
	EntryName   string           `json:"entry_name"`
	Accession   string           `json:"accession"`
	Description string           `json:"description,omitempty"`
	Gene        string           `json:"gene,omitempty"`
	Organism    string           `json:"organism,omitempty"`
	Reviewed    bool             `json:"reviewed"`
	Length      int              `json:"length"`
	Sequence    string           `json:"sequence"`
	Isoforms    []IsoformEntry   `json:"isoforms,omitempty"`
	Variations  []VariationEntry `json:"variations,omitempty"`
}

// RecordsPage is used to render the base page and to carry query state
type RecordsPage struct {
	Records []ProteinRecord
	Query   string
	Sort    string
}

var templates *template.Template

func loadTemplates(dir string) error {
	t := template.New("")
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".html") {
			if _, err := t.ParseFiles(path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	templates = t
	return nil
}

// statusResponseWriter captures status and bytes written for logging
type statusResponseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// loggingMiddleware logs each request with method, path, status, size and duration
func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w}
		next.ServeHTTP(srw, r)
		if srw.status == 0 {
			srw.status = http.StatusOK
		}
		duration := time.Since(start)
		logger.Printf("%s - %s %s %d %dB %s %q",
			r.RemoteAddr, r.Method, r.URL.RequestURI(), srw.status, srw.written, duration, r.UserAgent())
	})
}

// readDatabase reads and unmarshals the JSON file at path
func readDatabase(path string) ([]ProteinRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []ProteinRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func findRecord(records []ProteinRecord, acc string) *ProteinRecord {
	for i := range records {
		if records[i].Accession == acc || records[i].EntryName == acc {
			return &records[i]
		}
	}
	return nil
}

// filterRecords keeps records whose accession, entry name, gene or organism
// contains the lowercased query.
func filterRecords(records []ProteinRecord, q string) []ProteinRecord {
	filtered := make([]ProteinRecord, 0, len(records))
	for _, rec := range records {
		if q == "" {
			filtered = append(filtered, rec)
			continue
		}
		if strings.Contains(strings.ToLower(rec.Accession), q) ||
			strings.Contains(strings.ToLower(rec.EntryName), q) ||
			strings.Contains(strings.ToLower(rec.Gene), q) ||
			strings.Contains(strings.ToLower(rec.Organism), q) {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

func sortRecords(records []ProteinRecord, sortMode string) {
	switch sortMode {
	case "length":
		sort.Slice(records, func(i, j int) bool { return records[i].Length > records[j].Length })
	case "name":
		sort.Slice(records, func(i, j int) bool {
			return strings.ToLower(records[i].EntryName) < strings.ToLower(records[j].EntryName)
		})
	default:
		sort.Slice(records, func(i, j int) bool {
			return strings.ToLower(records[i].Accession) < strings.ToLower(records[j].Accession)
		})
	}
}

func indexHandler(dbPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := readDatabase(dbPath)
		if err != nil {
			log.Printf("warning: failed to read database for index: %v", err)
			records = []ProteinRecord{}
		}
		page := RecordsPage{Records: records, Query: r.URL.Query().Get("q"), Sort: r.URL.Query().Get("sort")}
		if err := templates.ExecuteTemplate(w, "base.html", page); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func recordsHandler(dbPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := readDatabase(dbPath)
		if err != nil {
			http.Error(w, "failed to read database", http.StatusInternalServerError)
			return
		}
		q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
		filtered := filterRecords(records, q)
		sortRecords(filtered, r.URL.Query().Get("sort"))

		// render fragment (send only the slice)
		if err := templates.ExecuteTemplate(w, "records.html", filtered); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func recordHandler(dbPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "missing accession", http.StatusBadRequest)
			return
		}
		acc := parts[2]
		records, err := readDatabase(dbPath)
		if err != nil {
			http.Error(w, "failed to read database", http.StatusInternalServerError)
			return
		}
		found := findRecord(records, acc)
		if found == nil {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		// HX requests get the detail fragment, everything else the full page
		if r.Header.Get("HX-Request") == "true" || r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
			if err := templates.ExecuteTemplate(w, "detail.html", found); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			return
		}
		if err := templates.ExecuteTemplate(w, "record_page.html", found); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

// fastaHandler serves the record's primary sequence and all isoform sequences
// as a plain-text FASTA download.
func fastaHandler(dbPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "missing accession", http.StatusBadRequest)
			return
		}
		acc := parts[2]
		records, err := readDatabase(dbPath)
		if err != nil {
			http.Error(w, "failed to read database", http.StatusInternalServerError)
			return
		}
		found := findRecord(records, acc)
		if found == nil {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		writeFasta(w, found.Accession+" "+found.Description, found.Sequence)
		for _, iso := range found.Isoforms {
			writeFasta(w, iso.IsoID, iso.Sequence)
		}
	}
}

func writeFasta(w io.Writer, header, seq string) {
	fmt.Fprintf(w, ">%s\n", header)
	for i := 0; i < len(seq); i += 50 {
		end := i + 50
		if end > len(seq) {
			end = len(seq)
		}
		fmt.Fprintln(w, seq[i:end])
	}
}

// apiRecordHandler returns JSON for a single record
func apiRecordHandler(dbPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 4 || parts[3] == "" {
			http.Error(w, "missing accession", http.StatusBadRequest)
			return
		}
		acc := parts[3]
		records, err := readDatabase(dbPath)
		if err != nil {
			http.Error(w, "failed to read database", http.StatusInternalServerError)
			return
		}
		if found := findRecord(records, acc); found != nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_ = json.NewEncoder(w).Encode(found)
			return
		}
		http.Error(w, "record not found", http.StatusNotFound)
	}
}

// apiRecordsHandler returns the full database as JSON
func apiRecordsHandler(dbPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := readDatabase(dbPath)
		if err != nil {
			http.Error(w, "failed to read database", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(records)
	}
}

// jobsHandler shows the fetch job history table
func jobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := loadJobs(jobsPath)
		if err != nil {
			http.Error(w, "failed to load jobs", http.StatusInternalServerError)
			return
		}
		if err := templates.ExecuteTemplate(w, "jobs.html", jobs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

// apiJobsHandler returns the fetch job history as JSON
func apiJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := loadJobs(jobsPath)
		if err != nil {
			http.Error(w, "failed to load jobs", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(jobs)
	}
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP address to serve on")
	dbPath := flag.String("db", "database.json", "path to database.json")
	templatesDir := flag.String("templates", "web/templates", "directory of HTML templates")
	jobsStoreFlag := flag.String("jobs-store", "json", "fetch job history backend: json or sqlite")
	jobsPathFlag := flag.String("jobs-path", "jobs.json", "path to the fetch job history store")
	logFile := flag.String("log", "", "path to write access logs (optional). If empty, logs go to stdout only")
	flag.Parse()

	if err := loadTemplates(*templatesDir); err != nil {
		log.Fatalf("failed to load templates: %v", err)
	}

	jobsStore = *jobsStoreFlag
	jobsPath = *jobsPathFlag
	if jobsStore == "sqlite" {
		db, err := openSQLite(jobsPath)
		if err != nil {
			log.Fatalf("failed to open jobs db: %v", err)
		}
		if err := initJobsSchema(db); err != nil {
			log.Fatalf("failed to init jobs schema: %v", err)
		}
		jobsDB = db
		defer jobsDB.Close()
	}

	// prepare mux so we can wrap with middleware
	mux := http.NewServeMux()
	fileServer := http.FileServer(http.Dir("web/static"))
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", indexHandler(*dbPath))
	mux.HandleFunc("/records", recordsHandler(*dbPath))
	mux.HandleFunc("/record/", recordHandler(*dbPath))
	mux.HandleFunc("/fasta/", fastaHandler(*dbPath))
	mux.HandleFunc("/fetch/submit/", fetchSubmitHandler(*dbPath))
	mux.HandleFunc("/jobs", jobsHandler())
	// API endpoints for SPA-like interactions
	mux.HandleFunc("/api/records", apiRecordsHandler(*dbPath))
	mux.HandleFunc("/api/record/", apiRecordHandler(*dbPath))
	mux.HandleFunc("/api/jobs", apiJobsHandler())

	// configure logger
	var out io.Writer = os.Stdout
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		out = io.MultiWriter(os.Stdout, f)
	}
	logger := log.New(out, "uniprot: ", log.LstdFlags)

	// wrap mux with logging middleware
	handler := loggingMiddleware(logger, mux)

	srv := &http.Server{Addr: *addr, Handler: handler, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}
	fmt.Printf("serving UI at http://%s/ (db=%s)\n", *addr, *dbPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
