package deliver

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// ErrManifest wraps every failure to read or apply a results manifest.
var ErrManifest = errors.New("manifest failure")

// Target is where one deliverable is copied to, relative to the parent of
// the run's output directory.
type Target struct {
	Location string `mapstructure:"location"`
	Name     string `mapstructure:"name"`
}

// Manifest maps deliverables to their destinations.
type Manifest map[core.Deliverable]Target

// Keys returns the declared deliverables in canonical order.
func (m Manifest) Keys() []core.Deliverable {
	var keys []core.Deliverable
	for _, d := range core.Deliverables() {
		if _, ok := m[d]; ok {
			keys = append(keys, d)
		}
	}
	return keys
}

// LoadManifest reads a JSON results manifest. Unknown deliverable keys,
// unknown or missing entry fields and names that are not plain file names
// are rejected.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // caller-provided manifest path
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest content.
func ParseManifest(data []byte) (Manifest, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrManifest, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: manifest is not an object", ErrManifest)
	}

	var entries map[string]Target
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		ErrorUnset:  true,
		Result:      &entries,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}

	var errs []error
	m := make(Manifest, len(entries))
	for key, target := range entries {
		d := core.Deliverable(key)
		if !slices.Contains(core.Deliverables(), d) {
			errs = append(errs, fmt.Errorf("unknown deliverable %q", key))
			continue
		}
		if target.Name == "" || filepath.Base(target.Name) != target.Name {
			errs = append(errs, fmt.Errorf("%s: invalid name %q", key, target.Name))
			continue
		}
		m[d] = target
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrManifest, errors.Join(errs...))
	}
	return m, nil
}
