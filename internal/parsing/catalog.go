package parsing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPricePerArea is the material price per square meter used when the
// catalog document has no pricing section.
const DefaultPricePerArea = 360.0

// Catalog is the priced reference data used to resolve service phrases.
// All map keys are normalized. A Catalog is read-only once loaded and may be
// shared between goroutines.
type Catalog struct {
	Elements     map[string]float64 // phrase -> area, m²
	Labor        map[string]float64 // phrase -> labor fee
	Fixed        map[string]float64 // trigger -> flat material surcharge
	PricePerArea float64
}

// CatalogLoadError reports a catalog that is missing, unreadable or malformed.
type CatalogLoadError struct {
	Path string
	Err  error
}

func (e *CatalogLoadError) Error() string {
	return fmt.Sprintf("loading catalog %s: %v", e.Path, e.Err)
}

func (e *CatalogLoadError) Unwrap() error {
	return e.Err
}

// CatalogSource provides the catalog for a parse call
type CatalogSource interface {
	Load() (*Catalog, error)
}

type catalogDocument struct {
	Elements map[string]float64 `json:"elements" yaml:"elements"`
	Labor    map[string]float64 `json:"labor" yaml:"labor"`
	Fixed    map[string]float64 `json:"fixed" yaml:"fixed"`
	Pricing  struct {
		AreaCostPerSquareMeter *float64 `json:"areaCostPerSquareMeter" yaml:"areaCostPerSquareMeter"`
		AreaCostPerM2          *float64 `json:"area_cost_per_m2" yaml:"area_cost_per_m2"`
	} `json:"pricing" yaml:"pricing"`
}

// LoadCatalog reads a catalog document from path. Files ending in .yaml or
// .yml are decoded as YAML, anything else as JSON. Every failure is returned
// as a *CatalogLoadError.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CatalogLoadError{Path: path, Err: err}
	}

	cat, err := decodeCatalog(data, filepath.Ext(path))
	if err != nil {
		return nil, &CatalogLoadError{Path: path, Err: err}
	}
	return cat, nil
}

func decodeCatalog(data []byte, ext string) (*Catalog, error) {
	var doc catalogDocument
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}
	}

	price := DefaultPricePerArea
	switch {
	case doc.Pricing.AreaCostPerSquareMeter != nil:
		price = *doc.Pricing.AreaCostPerSquareMeter
	case doc.Pricing.AreaCostPerM2 != nil:
		price = *doc.Pricing.AreaCostPerM2
	}
	if price <= 0 {
		return nil, fmt.Errorf("area cost per square meter must be positive, got %v", price)
	}

	for section, m := range map[string]map[string]float64{
		"elements": doc.Elements,
		"labor":    doc.Labor,
		"fixed":    doc.Fixed,
	} {
		for k, v := range m {
			if v < 0 {
				return nil, fmt.Errorf("%s: negative value %v for %q", section, v, k)
			}
		}
	}

	return &Catalog{
		Elements:     normalizeKeys(doc.Elements),
		Labor:        normalizeKeys(doc.Labor),
		Fixed:        normalizeKeys(doc.Fixed),
		PricePerArea: price,
	}, nil
}

// FileCatalog reloads the catalog file on every call
type FileCatalog struct {
	Path string
}

// Load implements CatalogSource
func (f FileCatalog) Load() (*Catalog, error) {
	return LoadCatalog(f.Path)
}

// CachedCatalog memoizes the catalog file and reloads it when the file's
// modification time or size changes, or after Invalidate.
type CachedCatalog struct {
	path string

	mu      sync.RWMutex
	catalog *Catalog
	modTime time.Time
	size    int64
}

// NewCachedCatalog creates a CachedCatalog for path. Nothing is read until
// the first Load.
func NewCachedCatalog(path string) *CachedCatalog {
	return &CachedCatalog{path: path}
}

// Load implements CatalogSource
func (c *CachedCatalog) Load() (*Catalog, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, &CatalogLoadError{Path: c.path, Err: err}
	}
	if info.IsDir() {
		return nil, &CatalogLoadError{Path: c.path, Err: errors.New("is a directory")}
	}

	c.mu.RLock()
	if c.catalog != nil && info.ModTime().Equal(c.modTime) && info.Size() == c.size {
		cat := c.catalog
		c.mu.RUnlock()
		return cat, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	cat, err := LoadCatalog(c.path)
	if err != nil {
		return nil, err
	}
	c.catalog = cat
	c.modTime = info.ModTime()
	c.size = info.Size()
	return cat, nil
}

// Invalidate drops the memoized catalog; the next Load reads the file again.
func (c *CachedCatalog) Invalidate() {
	c.mu.Lock()
	c.catalog = nil
	c.mu.Unlock()
}
