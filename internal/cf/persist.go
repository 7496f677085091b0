package cf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/eventiq/recoengine/internal/errs"
)

// snapshotSchemaVersion gates forward compatibility: a snapshot written by
// a newer schema is rejected at load rather than misread.
const snapshotSchemaVersion = 1

// persistedModel is the on-disk form of a Model snapshot. Factor matrices
// are stored row-major with explicit dimensions so a dimension mismatch is
// detectable before the snapshot is published.
type persistedModel struct {
	SchemaVersion int    `json:"schema_version"`
	Version       string `json:"version"`

	UserIndex  map[string]int `json:"user_index"`
	EventIndex map[string]int `json:"event_index"`
	EventIDs   []string       `json:"event_ids"`

	Factors     int       `json:"factors"`
	UserFactors []float64 `json:"user_factors"` // len(UserIndex) x Factors, row-major
	ItemFactors []float64 `json:"item_factors"` // len(EventIndex) x Factors, row-major
	UserBias    []float64 `json:"user_bias"`
	ItemBias    []float64 `json:"item_bias"`
	GlobalBias  float64   `json:"global_bias"`

	Ratings []map[int]float64 `json:"ratings"`
	ColSums []float64         `json:"col_sums"`
}

// SaveSnapshot writes the currently published model to path atomically
// (temp file in the same directory, then rename), so a crash mid-write can
// never leave a partially written snapshot where a loader will find it.
// Returns an error if no model has been published yet.
func (rec *Recommender) SaveSnapshot(path string) error {
	model := rec.current.Load()
	if model == nil {
		return fmt.Errorf("cf: no model to persist")
	}

	n := len(model.userIndex)
	m := len(model.eventIdx)
	_, factors := model.userFactors.Dims()

	p := persistedModel{
		SchemaVersion: snapshotSchemaVersion,
		Version:       model.Version,
		UserIndex:     model.userIndex,
		EventIndex:    model.eventIdx,
		EventIDs:      model.eventIDs,
		Factors:       factors,
		UserFactors:   flatten(model.userFactors, n, factors),
		ItemFactors:   flatten(model.itemFactors, m, factors),
		UserBias:      model.userBias,
		ItemBias:      model.itemBias,
		GlobalBias:    model.globalBias,
		Ratings:       model.ratings,
		ColSums:       model.colSums,
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cf: marshaling snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.New(errs.Transient, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cf-snapshot-*")
	if err != nil {
		return errs.New(errs.Transient, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.New(errs.Transient, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.New(errs.Transient, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.New(errs.Transient, err)
	}
	return nil
}

// LoadSnapshot reads a persisted snapshot, validates it, and publishes it
// as the serving model. A snapshot that fails schema gating or dimensional
// validation is rejected with a Fatal error and the previously published
// model, if any, keeps serving untouched.
func (rec *Recommender) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.New(errs.Transient, err)
	}

	var p persistedModel
	if err := json.Unmarshal(data, &p); err != nil {
		return errs.New(errs.Fatal, fmt.Errorf("cf: snapshot unreadable: %w", err))
	}
	if p.SchemaVersion != snapshotSchemaVersion {
		return errs.New(errs.Fatal, fmt.Errorf("cf: snapshot schema version %d, want %d", p.SchemaVersion, snapshotSchemaVersion))
	}

	n := len(p.UserIndex)
	m := len(p.EventIndex)
	if n == 0 || m == 0 {
		return errs.New(errs.Fatal, fmt.Errorf("cf: snapshot has empty user or event index"))
	}
	if p.Factors <= 0 || len(p.UserFactors) != n*p.Factors || len(p.ItemFactors) != m*p.Factors {
		return errs.New(errs.Fatal, fmt.Errorf("cf: snapshot factor data does not match %d users x %d events x %d factors", n, m, p.Factors))
	}

	model := &Model{
		Version:     p.Version,
		userIndex:   p.UserIndex,
		eventIdx:    p.EventIndex,
		eventIDs:    p.EventIDs,
		userFactors: mat.NewDense(n, p.Factors, p.UserFactors),
		itemFactors: mat.NewDense(m, p.Factors, p.ItemFactors),
		userBias:    p.UserBias,
		itemBias:    p.ItemBias,
		globalBias:  p.GlobalBias,
		ratings:     p.Ratings,
		colSums:     p.ColSums,
	}
	for i := range model.ratings {
		if model.ratings[i] == nil {
			model.ratings[i] = map[int]float64{}
		}
	}
	model.maxColSum = 0
	for _, v := range model.colSums {
		if v > model.maxColSum {
			model.maxColSum = v
		}
	}

	if err := validateModel(model); err != nil {
		return err
	}

	rec.current.Store(model)
	rec.logger.WithField("version", model.Version).Info("cf: snapshot loaded and published")
	return nil
}

func flatten(d *mat.Dense, rows, cols int) []float64 {
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		out = append(out, d.RawRowView(i)...)
	}
	return out
}
