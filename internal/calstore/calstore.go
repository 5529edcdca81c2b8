// Package calstore persists the calibrated VCO tuning range between runs.
package calstore

import (
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/ocxoctl/internal/control"
	"codeberg.org/mutker/ocxoctl/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	ErrRead    = errors.ErrorCode("calstore_read_failed")
	ErrWrite   = errors.ErrorCode("calstore_write_failed")
	ErrInvalid = errors.ErrorCode("calstore_invalid_range")

	defaultDirPerm = 0o755
)

// Record is the stored file layout.
type Record struct {
	Range        control.Range `yaml:"range"`
	CalibratedAt time.Time     `yaml:"calibrated_at"`
}

// Store reads and writes one calibration file.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored record. ok is false when no file exists yet.
func (s *Store) Load() (rec Record, ok bool, err error) {
	errFactory := errors.New()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errFactory.Wrap(ErrRead, err)
	}

	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, false, errFactory.Wrap(ErrRead, err)
	}
	if !rec.Range.Valid() {
		return Record{}, false, errFactory.WithData(ErrInvalid, rec.Range)
	}

	return rec, true, nil
}

// Save writes r stamped with at. The file is replaced atomically.
func (s *Store) Save(r control.Range, at time.Time) error {
	errFactory := errors.New()

	if !r.Valid() {
		return errFactory.WithData(ErrInvalid, r)
	}

	data, err := yaml.Marshal(Record{Range: r, CalibratedAt: at.UTC()})
	if err != nil {
		return errFactory.Wrap(ErrWrite, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), defaultDirPerm); err != nil {
		return errFactory.Wrap(ErrWrite, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errFactory.Wrap(ErrWrite, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errFactory.Wrap(ErrWrite, err)
	}

	return nil
}
