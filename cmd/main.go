package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boscoh/uniprot/internal/config"
	"github.com/boscoh/uniprot/internal/fasta"
	"github.com/boscoh/uniprot/internal/fetch"
	"github.com/boscoh/uniprot/internal/flatfile"
	"github.com/boscoh/uniprot/internal/seqid"

	"github.com/charmbracelet/log"
)

// version is the program version. It can be overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

// IsoformEntry is one reconstructed isoform in the output database.
type IsoformEntry struct {
	Ordinal  string `json:"ordinal"`
	IsoID    string `json:"iso_id"`
	Sequence string `json:"sequence"`
}

// VariationEntry is one decoded VAR_SEQ edit in the output database.
type VariationEntry struct {
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Kind        string   `json:"kind"`
	Replacement string   `json:"replacement,omitempty"`
	Isoforms    []string `json:"isoforms"`
}

// Entry is one record of the output database, keyed by primary accession.
type Entry struct {
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

// timestampWriter prefixes each flushed line with an RFC3339 timestamp.
type timestampWriter struct {
	w   io.Writer
	buf bytes.Buffer
	mu  sync.Mutex
}

// Write buffers bytes until a newline is found; for each full line, write a timestamped
// line to the underlying writer. Partial lines are kept in the buffer.
func (t *timestampWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	total := n
	for {
		line, err := t.buf.ReadString('\n')
		if err != nil {
			break
		}
		ts := time.Now().Format(time.RFC3339)
		if _, err := t.w.Write([]byte(ts + " " + line)); err != nil {
			return total, err
		}
	}
	return total, nil
}

// terminalWriter wraps an io.Writer and exposes an Fd method so libraries that
// inspect the file descriptor (for TTY detection) can work with wrapped writers.
type terminalWriter struct {
	w  io.Writer
	fd uintptr
}

func (tw *terminalWriter) Write(p []byte) (int, error) { return tw.w.Write(p) }

// Fd exposes the underlying file descriptor (e.g., os.Stderr.Fd()).
func (tw *terminalWriter) Fd() uintptr { return tw.fd }

// readSeqids collects input identifiers from positional args, an id-list or
// FASTA file given with -in, and the configured input FASTA.
func readSeqids(args []string, path, fastaPath string) ([]string, error) {
	ids := append([]string{}, args...)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if filepath.Ext(path) == ".fasta" {
			for _, rec := range fasta.ParseFasta(bytes.NewReader(data)) {
				id, _ := fasta.ParseHeader(rec.Header)
				ids = append(ids, id)
			}
		} else {
			ids = append(ids, strings.Fields(string(data))...)
		}
	}
	if fastaPath != "" && fastaPath != path {
		data, err := os.ReadFile(fastaPath)
		if err != nil {
			return nil, err
		}
		for _, rec := range fasta.ParseFasta(bytes.NewReader(data)) {
			id, _ := fasta.ParseHeader(rec.Header)
			ids = append(ids, id)
		}
	}
	// de-duplicate, keeping first occurrence order
	seen := make(map[string]bool, len(ids))
	unique := ids[:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique, nil
}

func main() {
	// CLI flags
	inputFlag := flag.String("in", "", "input file: .fasta or a whitespace-separated seqid list")
	outputFlag := flag.String("out", "database.json", "output JSON file path")
	fastaOutFlag := flag.String("fasta-out", "", "optional FASTA export of all isoform sequences")
	configFlag := flag.String("config", "", "path to config.json (optional)")
	cacheFlag := flag.String("cache", "", "cache directory for fetch snapshots (empty disables caching)")
	baseURLFlag := flag.String("base-url", "", "override the uniprot service base URL")
	skipMapFlag := flag.Bool("skip-mapping", false, "treat all inputs as UniProt accessions, skip id mapping")
	dryRun := flag.Bool("dry-run", false, "perform a dry run without network calls or output writes")
	verbose := flag.Bool("verbose", false, "enable verbose (debug) logging")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("uniprot", version)
		return
	}

	// load config (optional file)
	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad config:", err)
		os.Exit(1)
	}

	// merge CLI flags into config (flags override config when provided)
	if *inputFlag != "" {
		cfg.InputSeqids = *inputFlag
	}
	if *outputFlag != "" {
		cfg.OutputJSON = *outputFlag
	}
	if *fastaOutFlag != "" {
		cfg.OutputFasta = *fastaOutFlag
	}
	if *cacheFlag != "" {
		cfg.CacheDir = *cacheFlag
	}
	if *baseURLFlag != "" {
		cfg.BaseURL = *baseURLFlag
	}
	if *skipMapFlag {
		cfg.SkipMapping = true
	}

	// configure logger output
	var loggerOut io.Writer = os.Stderr
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			// write to both stderr and file so running interactively still shows logs
			loggerOut = io.MultiWriter(os.Stderr, f)
			defer func() { _ = f.Close() }()
		}
	}
	tw := &timestampWriter{w: loggerOut}
	termW := &terminalWriter{w: tw, fd: os.Stderr.Fd()}
	logger := log.New(termW)

	if *verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			logger.SetLevel(log.DebugLevel)
		case "info", "":
			logger.SetLevel(log.InfoLevel)
		case "warn", "warning":
			logger.SetLevel(log.WarnLevel)
		case "error":
			logger.SetLevel(log.ErrorLevel)
		default:
			logger.SetLevel(log.InfoLevel)
			logger.Warn("unknown log_level in config.json, defaulting to info", "provided", cfg.LogLevel)
		}
	}

	if cfg.BaseURL != "" {
		fetch.SetBaseURL(cfg.BaseURL)
	}

	// batching and rate limits
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	qps := cfg.QPS
	if qps <= 0 {
		qps = 3
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	rawSeqids, err := readSeqids(flag.Args(), cfg.InputSeqids, cfg.InputFasta)
	if err != nil {
		logger.Fatal("failed to read input seqids", "path", cfg.InputSeqids, "err", err)
	}
	if len(rawSeqids) == 0 {
		logger.Fatal("no input seqids; pass them as arguments or with -in")
	}
	logger.Info("starting uniprot lookup", "seqids", len(rawSeqids), "batch_size", batchSize, "qps", qps, "concurrency", concurrency, "cache_dir", cfg.CacheDir)

	cacheBase := ""
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			logger.Warn("cannot create cache dir; caching disabled", "path", cfg.CacheDir, "err", err)
		} else {
			cacheBase = filepath.Join(cfg.CacheDir, "uniprot")
		}
	}

	if *dryRun {
		logger.Info("dry-run: skipping mapping, fetch and output", "seqids", len(rawSeqids))
		return
	}

	// Convert foreign identifier schemes to UniProt accessions through the
	// mapping service, one request per recognized scheme.
	accOf := make(map[string]string, len(rawSeqids))
	naked := make(map[string]string, len(rawSeqids))
	for _, raw := range rawSeqids {
		naked[raw] = seqid.Naked(raw)
	}
	if !cfg.SkipMapping {
		groups := map[string][]string{}
		for _, raw := range rawSeqids {
			id := naked[raw]
			if t := seqid.MappingType(id); t != "" && t != seqid.TypeACCID {
				groups[t] = append(groups[t], id)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		for typ, ids := range groups {
			base := ""
			if cacheBase != "" {
				base = cacheBase + ".mapping"
			}
			pairs, err := fetch.BatchMapIDs(ctx, typ, seqid.TypeACC, ids, batchSize, base)
			if err != nil {
				logger.Warn("id mapping incomplete", "from_type", typ, "err", err)
			}
			for _, p := range pairs {
				accOf[p[0]] = p[1]
			}
			logger.Info("mapped identifiers", "from_type", typ, "requested", len(ids), "mapped", len(pairs))
		}
		cancel()
	}
	for _, raw := range rawSeqids {
		id := naked[raw]
		if _, ok := accOf[id]; ok {
			continue
		}
		switch {
		case seqid.IsUniProt(id):
			accOf[id] = id
		case seqid.IsUniProtVariant(id):
			// keep the suffix; the resolver handles isoform lookups
			accOf[id] = id[:6]
		default:
			logger.Warn("cannot classify seqid; skipping", "seqid", raw)
		}
	}

	accessions := []string{}
	seenAcc := map[string]bool{}
	for _, raw := range rawSeqids {
		if acc, ok := accOf[naked[raw]]; ok && !seenAcc[acc] {
			seenAcc[acc] = true
			accessions = append(accessions, acc)
		}
	}
	logger.Info("fetching metadata", "accessions", len(accessions))

	// simple rate limiter: ticker at qps (use NewTicker to avoid leaking goroutine)
	ticker := time.NewTicker(time.Second / time.Duration(qps))
	defer ticker.Stop()

	// worker pool over batch offsets
	type task struct {
		offset int
		ids    []string
	}
	tasks := make(chan task)
	results := make(chan string)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tk := range tasks {
				<-ticker.C // rate limit per batch
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				base := ""
				if cacheBase != "" {
					base = fmt.Sprintf("%s.metadata.%d", cacheBase, tk.offset)
				}
				text, err := fetch.BatchMetadata(ctx, tk.ids, 0, base)
				cancel()
				if err != nil {
					logger.Warn("metadata batch fetch error", "offset", tk.offset, "err", err)
				}
				results <- text
			}
		}()
	}

	go func() {
		for i := 0; i < len(accessions); i += batchSize {
			end := i + batchSize
			if end > len(accessions) {
				end = len(accessions)
			}
			tasks <- task{offset: i, ids: accessions[i:end]}
		}
		close(tasks)
	}()

	expected := (len(accessions) + batchSize - 1) / batchSize
	var combined strings.Builder
	for received := 0; received < expected; received++ {
		combined.WriteString(<-results)
	}
	close(results)
	wg.Wait()

	records, err := flatfile.ParseRecords(strings.NewReader(combined.String()))
	if err != nil {
		logger.Warn("some records failed to parse", "err", err)
	}
	logger.Info("parsed metadata", "records", len(records))

	// Reconstruct every declared isoform up front so the database carries
	// full sequences.
	for _, rec := range records {
		for _, bad := range rec.BadVariations {
			logger.Warn("rejected sequence variation", "record", rec.ID, "err", bad)
		}
		for ordinal := range rec.Isoforms {
			if _, err := rec.ReconstructIsoform(ordinal); err != nil {
				logger.Warn("isoform reconstruction failed", "record", rec.ID, "isoform", ordinal, "err", err)
			}
		}
	}

	// Re-key results by the caller's original seqids.
	ix := flatfile.NewIndex(records)
	seqidsOf := map[*flatfile.Record][]string{}
	for _, raw := range rawSeqids {
		rec, _, err := ix.Resolve(naked[raw])
		if err != nil {
			logger.Warn("no record found for seqid", "seqid", raw)
			continue
		}
		seqidsOf[rec] = append(seqidsOf[rec], raw)
	}

	entries := make([]Entry, 0, len(seqidsOf))
	for rec, raws := range seqidsOf {
		e := Entry{
			Seqids:      raws,
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
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].EntryName < entries[j].EntryName })

	jsonData, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		logger.Fatal("json marshal failed", "err", err)
	}
	if err := os.WriteFile(cfg.OutputJSON, jsonData, 0o644); err != nil {
		logger.Fatal("failed to write output JSON", "path", cfg.OutputJSON, "err", err)
	}
	logger.Info("wrote output JSON", "path", cfg.OutputJSON, "entries", len(entries))

	if cfg.OutputFasta != "" {
		var out []fasta.FastaRecord
		for _, e := range entries {
			out = append(out, fasta.FastaRecord{Header: e.Accession + " " + e.Description, Sequence: e.Sequence})
			for _, iso := range e.Isoforms {
				out = append(out, fasta.FastaRecord{Header: iso.IsoID, Sequence: iso.Sequence})
			}
		}
		f, err := os.Create(cfg.OutputFasta)
		if err != nil {
			logger.Fatal("failed to create output FASTA", "path", cfg.OutputFasta, "err", err)
		}
		if err := fasta.Write(f, out, cfg.FastaWidth); err != nil {
			f.Close()
			logger.Fatal("failed to write output FASTA", "path", cfg.OutputFasta, "err", err)
		}
		f.Close()
		logger.Info("wrote output FASTA", "path", cfg.OutputFasta, "records", len(out))
	}
}
