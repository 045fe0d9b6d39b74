// Package config resolves runtime settings from config file, environment,
// and CLI flags, tracking where each value came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue is a setting plus its provenance.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries the CLI-level overrides.
type ResolveOptions struct {
	ConfigPath    string
	CLILLM        string
	CLIEmbed      string
	CLIDBPath     string
	CLITranscript string
}

// ResolvedConfig is the merged view of all configuration sources.
// Precedence: CLI flag > environment > config file > built-in default.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath        ResolvedValue `json:"db_path"`
	LLM           ResolvedValue `json:"llm"`
	Embed         ResolvedValue `json:"embed"`
	TranscriptURL ResolvedValue `json:"transcript_url"`

	Cluster ClusterValues `json:"cluster"`
}

// ClusterValues holds the clustering tunables, resolvable from the config
// file or environment but rarely overridden.
type ClusterValues struct {
	NoteWeight        ResolvedValue `json:"note_weight"`
	LabelWeight       ResolvedValue `json:"label_weight"`
	BaseThreshold     ResolvedValue `json:"base_threshold"`
	RaisedThreshold   ResolvedValue `json:"raised_threshold"`
	SoftCapSize       ResolvedValue `json:"soft_cap_size"`
	HardCap           ResolvedValue `json:"hard_cap"`
	CategoryThreshold ResolvedValue `json:"category_threshold"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	LLM    struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"llm"`
	Embed struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"embed"`
	Transcript struct {
		URL string `yaml:"url"`
	} `yaml:"transcript"`
	Cluster struct {
		NoteWeight        string `yaml:"note_weight"`
		LabelWeight       string `yaml:"label_weight"`
		BaseThreshold     string `yaml:"base_threshold"`
		RaisedThreshold   string `yaml:"raised_threshold"`
		SoftCapSize       string `yaml:"soft_cap_size"`
		HardCap           string `yaml:"hard_cap"`
		CategoryThreshold string `yaml:"category_threshold"`
	} `yaml:"cluster"`
}

// DefaultConfigPath is ~/.gist/config.yaml.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gist", "config.yaml")
}

// ResolveConfig merges all sources into one view. A missing config file is
// not an error; a malformed one is.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LLM, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.Embed, cfg.Embed.Provider, SourceConfig, path)
		apply(&out.TranscriptURL, cfg.Transcript.URL, SourceConfig, path)

		apply(&out.Cluster.NoteWeight, cfg.Cluster.NoteWeight, SourceConfig, path)
		apply(&out.Cluster.LabelWeight, cfg.Cluster.LabelWeight, SourceConfig, path)
		apply(&out.Cluster.BaseThreshold, cfg.Cluster.BaseThreshold, SourceConfig, path)
		apply(&out.Cluster.RaisedThreshold, cfg.Cluster.RaisedThreshold, SourceConfig, path)
		apply(&out.Cluster.SoftCapSize, cfg.Cluster.SoftCapSize, SourceConfig, path)
		apply(&out.Cluster.HardCap, cfg.Cluster.HardCap, SourceConfig, path)
		apply(&out.Cluster.CategoryThreshold, cfg.Cluster.CategoryThreshold, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "GIST_DB")
	applyEnv(&out.DBPath, "GIST_DB_PATH")
	applyEnv(&out.LLM, "GIST_LLM")
	applyEnv(&out.Embed, "GIST_EMBED")
	applyEnv(&out.TranscriptURL, "GIST_TRANSCRIPT_SERVICE_URL")

	applyEnv(&out.Cluster.NoteWeight, "GIST_NOTE_WEIGHT")
	applyEnv(&out.Cluster.LabelWeight, "GIST_LABEL_WEIGHT")
	applyEnv(&out.Cluster.BaseThreshold, "GIST_BASE_THRESHOLD")
	applyEnv(&out.Cluster.RaisedThreshold, "GIST_RAISED_THRESHOLD")
	applyEnv(&out.Cluster.SoftCapSize, "GIST_SOFT_CAP_SIZE")
	applyEnv(&out.Cluster.HardCap, "GIST_HARD_CAP")
	applyEnv(&out.Cluster.CategoryThreshold, "GIST_CATEGORY_THRESHOLD")

	apply(&out.LLM, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.Embed, opts.CLIEmbed, SourceCLI, "--embed")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.TranscriptURL, opts.CLITranscript, SourceCLI, "--transcript-url")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	return out, nil
}

// Float reads v as a float64, returning fallback for unset values and an
// error for unparseable ones.
func (v ResolvedValue) Float(fallback float64) (float64, error) {
	s := strings.TrimSpace(v.Value)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q from %s: %w", v.Value, v.From, err)
	}
	return f, nil
}

// Int reads v as an int, returning fallback for unset values.
func (v ResolvedValue) Int(fallback int) (int, error) {
	s := strings.TrimSpace(v.Value)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q from %s: %w", v.Value, v.From, err)
	}
	return n, nil
}

// Or returns the value, or fallback when unset.
func (v ResolvedValue) Or(fallback string) string {
	if strings.TrimSpace(v.Value) == "" {
		return fallback
	}
	return v.Value
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
