// Package filestore persists model bundles as a directory of JSON artifacts
// sharing a common file prefix:
//
//	<prefix>_<algorithm>.json   one file per trained model
//	<prefix>_scaler.json        per-column mean and scale
//	<prefix>_encoders.json      categorical classes per field
//	<prefix>_aggregates.json    route counts and delay statistics
//	<prefix>_features.json      ordered feature columns
//	<prefix>_manifest.json      bundle id, trained-at, best model, failures
//
// Loading tolerates any subset of these files being absent.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/features"
	"github.com/couchcryptid/flight-delay-engine/internal/model"
)

// Artifact suffixes shared by every bundle.
const (
	ArtifactScaler     = "scaler"
	ArtifactEncoders   = "encoders"
	ArtifactAggregates = "aggregates"
	ArtifactFeatures   = "features"
	ArtifactManifest   = "manifest"
)

// ErrNoModels is returned by Load when no model artifact could be used.
var ErrNoModels = errors.New("no usable model artifacts")

// Manifest is the bundle metadata written alongside the model files.
type Manifest struct {
	BundleID   string                     `json:"bundle_id"`
	TrainedAt  time.Time                  `json:"trained_at"`
	BestModel  model.Algorithm            `json:"best_model"`
	Algorithms []model.Algorithm          `json:"algorithms"`
	Failures   map[model.Algorithm]string `json:"failures,omitempty"`
}

// Store reads and writes bundles under one directory.
type Store struct {
	dir    string
	prefix string
	logger *slog.Logger
}

// New creates a Store for dir using prefix for every artifact name.
func New(dir, prefix string, logger *slog.Logger) *Store {
	return &Store{dir: dir, prefix: prefix, logger: logger}
}

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, s.prefix+"_"+name+".json")
}

// Save writes every artifact of b. Model files for algorithms the bundle
// does not contain are removed so a later Load cannot mix bundles.
func (s *Store) Save(b *model.Bundle) error {
	if b == nil {
		return errors.New("save bundle: nil bundle")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	manifest := Manifest{
		BundleID:  b.ID,
		TrainedAt: b.TrainedAt,
		BestModel: b.Best,
		Failures:  b.Failures(),
	}
	for _, alg := range model.Algorithms {
		m, ok := b.Models[alg]
		if !ok || m == nil {
			if err := os.Remove(s.path(string(alg))); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove stale %s: %w", alg, err)
			}
			continue
		}
		if err := s.write(string(alg), m); err != nil {
			return err
		}
		manifest.Algorithms = append(manifest.Algorithms, alg)
	}

	var (
		encoders   map[string]*features.Encoder
		aggregates features.Aggregates
	)
	if b.Extractor != nil {
		encoders = b.Extractor.Encoders
		aggregates = b.Extractor.Aggregates
	}
	artifacts := []struct {
		name string
		v    any
	}{
		{ArtifactScaler, b.Scaler},
		{ArtifactEncoders, encoders},
		{ArtifactAggregates, aggregates},
		{ArtifactFeatures, b.Columns},
		{ArtifactManifest, manifest},
	}
	for _, a := range artifacts {
		if err := s.write(a.name, a.v); err != nil {
			return err
		}
	}

	s.logger.Info("bundle saved",
		"dir", s.dir,
		"prefix", s.prefix,
		"bundle_id", b.ID,
		"models", len(manifest.Algorithms),
	)
	return nil
}

// write encodes v to a temp file and renames it into place.
func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	dst := s.path(name)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// read decodes an artifact into v. It reports false without error when the
// file does not exist.
func (s *Store) read(name string, v any) (bool, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// Load reads the bundle back. Missing artifacts are listed in the report: a
// missing scaler means identity scaling, missing encoders encode every value
// as unknown, and missing aggregates read as zero. A model file that fails
// to decode or validate, or whose width disagrees with the feature columns,
// is reported unusable. Load returns ErrNoModels, together with the report,
// when nothing usable remains. Corrupt shared artifacts are errors.
func (s *Store) Load() (*model.Bundle, model.LoadReport, error) {
	report := model.LoadReport{Unusable: make(map[model.Algorithm]string)}
	missing := func(name string) { report.Missing = append(report.Missing, filepath.Base(s.path(name))) }

	var manifest Manifest
	ok, err := s.read(ArtifactManifest, &manifest)
	if err != nil {
		return nil, report, err
	}
	if !ok {
		missing(ArtifactManifest)
	}

	var columns []string
	if ok, err := s.read(ArtifactFeatures, &columns); err != nil {
		return nil, report, err
	} else if !ok {
		missing(ArtifactFeatures)
	}

	var scaler *features.Scaler
	if ok, err := s.read(ArtifactScaler, &scaler); err != nil {
		return nil, report, err
	} else if !ok {
		missing(ArtifactScaler)
	}
	if scaler != nil && len(scaler.Mean) == 0 && len(scaler.Scale) == 0 {
		scaler = nil
	}
	if scaler != nil && (len(scaler.Mean) != len(columns) || len(scaler.Scale) != len(columns)) {
		return nil, report, fmt.Errorf("decode %s: %w: %d columns, %d features",
			ArtifactScaler, features.ErrScalerWidth, len(scaler.Mean), len(columns))
	}

	extractor := &features.Extractor{}
	if ok, err := s.read(ArtifactEncoders, &extractor.Encoders); err != nil {
		return nil, report, err
	} else if !ok {
		missing(ArtifactEncoders)
	}
	if ok, err := s.read(ArtifactAggregates, &extractor.Aggregates); err != nil {
		return nil, report, err
	} else if !ok {
		missing(ArtifactAggregates)
	}

	b := &model.Bundle{
		ID:        manifest.BundleID,
		TrainedAt: manifest.TrainedAt,
		Models:    make(map[model.Algorithm]*model.TrainedModel),
		Scaler:    scaler,
		Extractor: extractor,
		Columns:   columns,
	}
	for _, alg := range model.Algorithms {
		if text, failed := manifest.Failures[alg]; failed {
			b.Results = append(b.Results, model.AlgorithmResult{Algorithm: alg, Err: errors.New(text)})
			continue
		}
		m, err := s.loadModel(alg, len(columns))
		switch {
		case err != nil:
			report.Unusable[alg] = err.Error()
			s.logger.Warn("model artifact unusable", "algorithm", alg, "error", err)
			continue
		case m == nil:
			missing(string(alg))
			continue
		}
		b.Models[alg] = m
		b.Results = append(b.Results, model.AlgorithmResult{Algorithm: alg, Model: m})
		report.Loaded = append(report.Loaded, alg)
	}

	if len(report.Loaded) == 0 {
		return nil, report, fmt.Errorf("load %s: %w", s.dir, ErrNoModels)
	}
	b.Best = manifest.BestModel
	if _, ok := b.Models[b.Best]; !ok {
		b.Best = report.Loaded[0]
		report.FellBack = true
	}

	s.logger.Info("bundle loaded",
		"dir", s.dir,
		"bundle_id", b.ID,
		"best_model", b.Best,
		"loaded", len(report.Loaded),
		"unusable", len(report.Unusable),
		"missing", len(report.Missing),
	)
	return b, report, nil
}

// loadModel reads one model file. It returns nil without error when the file
// does not exist.
func (s *Store) loadModel(alg model.Algorithm, width int) (*model.TrainedModel, error) {
	var m model.TrainedModel
	ok, err := s.read(string(alg), &m)
	if err != nil || !ok {
		return nil, err
	}
	if m.Algorithm == "" {
		m.Algorithm = alg
	}
	if m.Algorithm != alg {
		return nil, fmt.Errorf("file holds %s", m.Algorithm)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Width() != width {
		return nil, fmt.Errorf("%w: model has %d, feature list has %d", model.ErrWidthMismatch, m.Width(), width)
	}
	return &m, nil
}
