// Package config resolves the effective configuration for one task. The
// precedence rule is an ordered list of lookup sources evaluated
// first-match-wins: per-request overrides, the per-request secret, process
// environment, a static YAML defaults file, and hard-coded fallbacks. A
// value that wins resolution but fails validation is rejected with the
// offending key named; a default is never silently substituted for an
// explicitly supplied value.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/mumehta/MeetScribe/internal/snapshot"
	"github.com/mumehta/MeetScribe/internal/tasks"
	"github.com/mumehta/MeetScribe/pkg/api"
)

// ErrInvalidConfig marks an unknown or malformed configuration value. The
// wrapped message names the offending key.
var ErrInvalidConfig = errors.New("invalid configuration")

func invalidf(key, format string, args ...any) error {
	return fmt.Errorf("%w: key %q: %s", ErrInvalidConfig, key, fmt.Sprintf(format, args...))
}

// Configuration keys. Environment variable names are the uppercased key.
const (
	KeyWhisperModel    = "whisper_model"
	KeyComputeType     = "compute_type"
	KeyUseDiarization  = "use_diarization"
	KeyDiarizationMode = "diarization_mode"
	KeyModelPath       = "diarization_model_path"
	KeyMinSpeakers     = "diarization_min_speakers"
	KeyMaxSpeakers     = "diarization_max_speakers"
	KeyHFToken         = "huggingface_token"
	KeyNotesBackend    = "notes_backend"
	KeyNotesModel      = "notes_model"
	KeyOllamaBaseURL   = "ollama_base_url"
)

var envNames = map[string]string{
	KeyWhisperModel:    "WHISPER_MODEL",
	KeyComputeType:     "COMPUTE_TYPE",
	KeyUseDiarization:  "USE_SPEAKER_DIARIZATION",
	KeyDiarizationMode: "DIARIZATION_MODE",
	KeyModelPath:       "DIARIZATION_MODEL_PATH",
	KeyMinSpeakers:     "DIARIZATION_MIN_SPEAKERS",
	KeyMaxSpeakers:     "DIARIZATION_MAX_SPEAKERS",
	KeyHFToken:         "HUGGINGFACE_TOKEN",
	KeyNotesBackend:    "NOTES_BACKEND",
	KeyNotesModel:      "NOTES_MODEL",
	KeyOllamaBaseURL:   "OLLAMA_BASE_URL",
}

var fallbacks = map[string]string{
	KeyWhisperModel:    "base",
	KeyComputeType:     "int8",
	KeyUseDiarization:  "false",
	KeyDiarizationMode: "auto",
	KeyModelPath:       "models/speaker-diarization",
	KeyMinSpeakers:     "1",
	KeyMaxSpeakers:     "10",
	KeyNotesBackend:    "ollama",
	KeyNotesModel:      "llama2",
	KeyOllamaBaseURL:   "http://localhost:11434",
}

var (
	modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9._/:-]+$`)
	computeTypes     = map[string]bool{"int8": true, "int8_float16": true, "float16": true, "float32": true}
	notesBackends    = map[string]bool{"ollama": true, "openai": true}
)

// EffectiveConfig is the fully resolved configuration for one task. It is
// captured verbatim into the task's config snapshot at launch time. The
// credential is carried for the task's execution only and is excluded from
// serialization.
type EffectiveConfig struct {
	Stage string `json:"stage"`

	WhisperModel string `json:"whisper_model,omitempty"`
	ComputeType  string `json:"compute_type,omitempty"`

	UseDiarization  bool          `json:"use_diarization"`
	DiarizationMode snapshot.Mode `json:"diarization_mode,omitempty"`
	ModelPath       string        `json:"diarization_model_path,omitempty"`
	MinSpeakers     int           `json:"diarization_min_speakers,omitempty"`
	MaxSpeakers     int           `json:"diarization_max_speakers,omitempty"`

	NotesBackend  string `json:"notes_backend,omitempty"`
	NotesModel    string `json:"notes_model,omitempty"`
	OllamaBaseURL string `json:"ollama_base_url,omitempty"`

	Credential string `json:"-"`
}

// source is one layer of the precedence chain.
type source interface {
	lookup(key string) (string, bool)
}

type mapSource map[string]string

func (m mapSource) lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type envSource struct {
	lookupEnv func(string) (string, bool)
}

func (e envSource) lookup(key string) (string, bool) {
	name, ok := envNames[key]
	if !ok {
		return "", false
	}
	v, ok := e.lookupEnv(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Resolver merges the configuration layers for one request. Construct once
// in main and share; Resolve is safe for concurrent use.
type Resolver struct {
	lookupEnv func(string) (string, bool)
	defaults  mapSource
}

type Option func(*Resolver)

// WithEnvLookup replaces the process environment lookup, for tests.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(r *Resolver) { r.lookupEnv = fn }
}

// NewResolver builds a resolver. defaultsFile is the optional static YAML
// defaults file (flat string-to-string mapping keyed like the Key*
// constants); an empty path means no file layer.
func NewResolver(defaultsFile string, opts ...Option) (*Resolver, error) {
	r := &Resolver{lookupEnv: os.LookupEnv, defaults: mapSource{}}
	for _, opt := range opts {
		opt(r)
	}

	if defaultsFile != "" {
		raw, err := os.ReadFile(defaultsFile)
		if err != nil {
			return nil, fmt.Errorf("reading config defaults file %s: %w", defaultsFile, err)
		}
		var parsed map[string]string
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("parsing config defaults file %s: %w", defaultsFile, err)
		}
		r.defaults = mapSource(parsed)
	}

	return r, nil
}

// Resolve produces the effective configuration for one task. The secret, if
// supplied, applies to this task only; it is never persisted or logged.
func (r *Resolver) Resolve(kind tasks.Kind, overrides api.ConfigOverrides, secret string) (EffectiveConfig, error) {
	chain := []source{
		overrideSource(overrides),
		secretSource(secret),
		envSource{lookupEnv: r.lookupEnv},
		r.defaults,
		mapSource(fallbacks),
	}

	res := resolution{chain: chain}
	cfg := EffectiveConfig{Stage: string(kind)}

	switch kind {
	case tasks.KindPreparation:
		// Preparation has no tunables today; the snapshot still records
		// the stage so "what actually ran" stays reproducible.

	case tasks.KindTranscription:
		cfg.WhisperModel = res.str(KeyWhisperModel)
		cfg.ComputeType = res.str(KeyComputeType)
		cfg.UseDiarization = res.boolean(KeyUseDiarization)
		cfg.ModelPath = res.str(KeyModelPath)
		cfg.Credential = res.str(KeyHFToken)

		mode := res.str(KeyDiarizationMode)
		if res.err == nil {
			parsed, err := snapshot.ParseMode(mode)
			if err != nil {
				res.err = invalidf(KeyDiarizationMode, "%v", err)
			}
			cfg.DiarizationMode = parsed
		}

		cfg.MinSpeakers = res.integer(KeyMinSpeakers)
		cfg.MaxSpeakers = res.integer(KeyMaxSpeakers)

		if res.err == nil {
			if !modelNamePattern.MatchString(cfg.WhisperModel) {
				res.err = invalidf(KeyWhisperModel, "malformed model name %q", cfg.WhisperModel)
			} else if !computeTypes[cfg.ComputeType] {
				res.err = invalidf(KeyComputeType, "unknown compute type %q", cfg.ComputeType)
			} else if cfg.MinSpeakers < 1 {
				res.err = invalidf(KeyMinSpeakers, "must be at least 1, got %d", cfg.MinSpeakers)
			} else if cfg.MaxSpeakers < cfg.MinSpeakers {
				res.err = invalidf(KeyMaxSpeakers, "must be >= %s, got %d", KeyMinSpeakers, cfg.MaxSpeakers)
			}
		}

	case tasks.KindNotes:
		cfg.NotesBackend = res.str(KeyNotesBackend)
		cfg.NotesModel = res.str(KeyNotesModel)
		cfg.OllamaBaseURL = res.str(KeyOllamaBaseURL)

		if res.err == nil {
			if !notesBackends[cfg.NotesBackend] {
				res.err = invalidf(KeyNotesBackend, "unknown backend %q", cfg.NotesBackend)
			} else if !modelNamePattern.MatchString(cfg.NotesModel) {
				res.err = invalidf(KeyNotesModel, "malformed model name %q", cfg.NotesModel)
			}
		}

	default:
		return EffectiveConfig{}, fmt.Errorf("unknown task kind %q", kind)
	}

	if res.err != nil {
		return EffectiveConfig{}, res.err
	}
	return cfg, nil
}

// overrideSource flattens the supplied override struct into the key space.
// Only set pointers participate.
func overrideSource(o api.ConfigOverrides) mapSource {
	m := mapSource{}
	if o.WhisperModel != nil {
		m[KeyWhisperModel] = *o.WhisperModel
	}
	if o.ComputeType != nil {
		m[KeyComputeType] = *o.ComputeType
	}
	if o.UseDiarization != nil {
		m[KeyUseDiarization] = strconv.FormatBool(*o.UseDiarization)
	}
	if o.DiarizationMode != nil {
		m[KeyDiarizationMode] = *o.DiarizationMode
	}
	if o.MinSpeakers != nil {
		m[KeyMinSpeakers] = strconv.Itoa(*o.MinSpeakers)
	}
	if o.MaxSpeakers != nil {
		m[KeyMaxSpeakers] = strconv.Itoa(*o.MaxSpeakers)
	}
	if o.NotesBackend != nil {
		m[KeyNotesBackend] = *o.NotesBackend
	}
	if o.NotesModel != nil {
		m[KeyNotesModel] = *o.NotesModel
	}
	return m
}

// secretSource exposes a caller-supplied credential as the huggingface token
// key, ranked just below explicit overrides.
func secretSource(secret string) mapSource {
	if secret == "" {
		return mapSource{}
	}
	return mapSource{KeyHFToken: secret}
}

// resolution walks the chain first-match-wins and records the first
// validation failure. A key absent from every layer resolves to the empty
// string, which only matters for keys without a fallback constant.
type resolution struct {
	chain []source
	err   error
}

func (r *resolution) str(key string) string {
	for _, src := range r.chain {
		if v, ok := src.lookup(key); ok {
			return v
		}
	}
	return ""
}

func (r *resolution) boolean(key string) bool {
	raw := r.str(key)
	if r.err != nil {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.err = invalidf(key, "not a boolean: %q", raw)
		return false
	}
	return v
}

func (r *resolution) integer(key string) int {
	raw := r.str(key)
	if r.err != nil {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.err = invalidf(key, "not an integer: %q", raw)
		return 0
	}
	return v
}
