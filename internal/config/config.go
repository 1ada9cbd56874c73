package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	InputFasta   string `json:"input_fasta"`
	InputSeqids  string `json:"input_seqids"`
	OutputJSON   string `json:"output_json"`
	OutputFasta  string `json:"output_fasta"`
	LogFile      string `json:"log_file"`
	LogLevel     string `json:"log_level"`
	BaseURL      string `json:"base_url"`
	CacheDir     string `json:"cache_dir"`
	BatchSize    int    `json:"batch_size"`
	QPS          int    `json:"qps"`
	Concurrency  int    `json:"concurrency"`
	SkipMapping  bool   `json:"skip_mapping"`
	FastaWidth   int    `json:"fasta_width"`
}

// LoadConfig loads a JSON config from the given path. If path is empty, looks for ./config.json.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}
	f, err := os.Open(path)
	if err != nil {
		// not fatal: return defaults
		return &Config{}, nil
	}
	defer f.Close()
	var c Config
	dec := json.NewDecoder(f)
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
