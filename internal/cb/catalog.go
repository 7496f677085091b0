package cb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/eventiq/recoengine/internal/errs"
	"github.com/eventiq/recoengine/internal/models"
)

// catalogSchemaVersion gates forward compatibility for persisted catalogs.
const catalogSchemaVersion = 1

// Catalog is one rebuildable CB model snapshot: the event feature table
// with precomputed semantic vectors, plus the derived category set and
// tag vocabulary. Rebuilt whenever the event corpus changes enough.
type Catalog struct {
	SchemaVersion int                    `json:"schema_version"`
	Version       string                 `json:"version"`
	Events        []models.EventFeatures `json:"events"`
	Categories    []string               `json:"categories"`
	TagVocabulary []string               `json:"tag_vocabulary"`
}

// BuildCatalog derives a Catalog from the event corpus, deduplicating
// categories and tags into sorted sets so two builds over the same corpus
// produce identical snapshots.
func BuildCatalog(events []models.EventFeatures, version string) Catalog {
	categories := map[string]bool{}
	tags := map[string]bool{}
	for _, e := range events {
		if e.Category != "" {
			categories[e.Category] = true
		}
		for _, t := range e.Tags {
			tags[t] = true
		}
	}

	return Catalog{
		SchemaVersion: catalogSchemaVersion,
		Version:       version,
		Events:        events,
		Categories:    sortedKeys(categories),
		TagVocabulary: sortedKeys(tags),
	}
}

// Save writes the catalog to path atomically (temp file in the target
// directory, then rename), so loaders never observe a partial snapshot.
func (c Catalog) Save(path string) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("cb: marshaling catalog: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.New(errs.Transient, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cb-catalog-*")
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

// LoadCatalog reads a persisted catalog, rejecting one whose schema
// version does not match (Fatal: the caller's previously loaded catalog,
// if any, keeps serving).
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, errs.New(errs.Transient, err)
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return Catalog{}, errs.New(errs.Fatal, fmt.Errorf("cb: catalog unreadable: %w", err))
	}
	if c.SchemaVersion != catalogSchemaVersion {
		return Catalog{}, errs.New(errs.Fatal, fmt.Errorf("cb: catalog schema version %d, want %d", c.SchemaVersion, catalogSchemaVersion))
	}
	return c, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
