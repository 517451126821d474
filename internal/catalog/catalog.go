// Package catalog is the validated, immutable registry of purchasable
// bundles: base prices, granted capabilities, and per-cycle feature quotas.
// It is loaded once at startup; an invalid catalog aborts boot instead of
// surfacing as lookup failures at request time.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidBundle = errors.New("invalid_bundle_combination")
	ErrEmptyCatalog  = errors.New("empty_catalog")
)

// Bundle is a purchasable feature package. Prices are minor currency units
// per monthly cycle. Immutable after catalog load.
type Bundle struct {
	Code         string           `mapstructure:"code"`
	Name         string           `mapstructure:"name"`
	BasePrice    int64            `mapstructure:"basePrice"`
	Capabilities []string         `mapstructure:"capabilities"`
	Quotas       map[string]int64 `mapstructure:"quotas"`
}

type Catalog struct {
	bundles map[string]Bundle
	codes   []string
}

// New validates the bundle set and builds the registry.
func New(bundles []Bundle) (*Catalog, error) {
	if len(bundles) == 0 {
		return nil, ErrEmptyCatalog
	}

	byCode := make(map[string]Bundle, len(bundles))
	codes := make([]string, 0, len(bundles))
	for _, b := range bundles {
		if err := validateBundle(b); err != nil {
			return nil, err
		}
		if _, exists := byCode[b.Code]; exists {
			return nil, fmt.Errorf("duplicate bundle code %q", b.Code)
		}
		byCode[b.Code] = b
		codes = append(codes, b.Code)
	}
	sort.Strings(codes)

	return &Catalog{bundles: byCode, codes: codes}, nil
}

func validateBundle(b Bundle) error {
	if strings.TrimSpace(b.Code) == "" {
		return errors.New("bundle code cannot be empty")
	}
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("bundle %q: name cannot be empty", b.Code)
	}
	if b.BasePrice < 0 {
		return fmt.Errorf("bundle %q: base price cannot be negative", b.Code)
	}
	for _, capability := range b.Capabilities {
		if strings.TrimSpace(capability) == "" {
			return fmt.Errorf("bundle %q: blank capability", b.Code)
		}
	}
	for feature, limit := range b.Quotas {
		if strings.TrimSpace(feature) == "" {
			return fmt.Errorf("bundle %q: blank feature id", b.Code)
		}
		if limit < 0 {
			return fmt.Errorf("bundle %q: quota for %q cannot be negative", b.Code, feature)
		}
	}
	return nil
}

// Get returns the bundle for code.
func (c *Catalog) Get(code string) (Bundle, bool) {
	b, ok := c.bundles[code]
	return b, ok
}

// Codes returns all bundle codes in stable order.
func (c *Catalog) Codes() []string {
	out := make([]string, len(c.codes))
	copy(out, c.codes)
	return out
}

// Resolve maps codes to bundles, failing on the first unknown code.
func (c *Catalog) Resolve(codes []string) ([]Bundle, error) {
	out := make([]Bundle, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		b, ok := c.bundles[code]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidBundle, code)
		}
		out = append(out, b)
	}
	return out, nil
}

// LimitFor sums the per-cycle quota for feature across the given bundles.
// The second return is false when no bundle declares the feature at all;
// callers treat that as an unmetered, fail-closed feature.
func (c *Catalog) LimitFor(codes []string, feature string) (int64, bool, error) {
	bundles, err := c.Resolve(codes)
	if err != nil {
		return 0, false, err
	}
	var total int64
	declared := false
	for _, b := range bundles {
		if limit, ok := b.Quotas[feature]; ok {
			declared = true
			total += limit
		}
	}
	return total, declared, nil
}

// HasCapability reports whether any of the given bundles declares capability.
func (c *Catalog) HasCapability(codes []string, capability string) (bool, error) {
	bundles, err := c.Resolve(codes)
	if err != nil {
		return false, err
	}
	for _, b := range bundles {
		for _, granted := range b.Capabilities {
			if granted == capability {
				return true, nil
			}
		}
	}
	return false, nil
}
