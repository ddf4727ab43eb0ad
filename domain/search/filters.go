package search

import "strings"

// Filters constrain a query by metadata. Empty fields do not constrain.
// Regions is set membership on the entry's region; Certifications and
// PrimaryCrops match when any requested value is present on the entry.
type Filters struct {
	regions        []string
	certifications []string
	primaryCrops   []string
}

// FiltersOption configures Filters.
type FiltersOption func(*Filters)

// WithRegions restricts matches to entries in any of the regions.
func WithRegions(regions ...string) FiltersOption {
	return func(f *Filters) { f.regions = appendNonEmpty(f.regions, regions) }
}

// WithCertifications restricts matches to entries holding any of the certifications.
func WithCertifications(certs ...string) FiltersOption {
	return func(f *Filters) { f.certifications = appendNonEmpty(f.certifications, certs) }
}

// WithPrimaryCrops restricts matches to entries growing any of the crops.
func WithPrimaryCrops(crops ...string) FiltersOption {
	return func(f *Filters) { f.primaryCrops = appendNonEmpty(f.primaryCrops, crops) }
}

// NewFilters creates Filters from options.
func NewFilters(opts ...FiltersOption) Filters {
	var f Filters
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Regions returns the region constraint.
func (f Filters) Regions() []string { return cloneStrings(f.regions) }

// Certifications returns the certification constraint.
func (f Filters) Certifications() []string { return cloneStrings(f.certifications) }

// PrimaryCrops returns the crop constraint.
func (f Filters) PrimaryCrops() []string { return cloneStrings(f.primaryCrops) }

// IsEmpty reports whether no constraint is set.
func (f Filters) IsEmpty() bool {
	return len(f.regions) == 0 && len(f.certifications) == 0 && len(f.primaryCrops) == 0
}

// Matches reports whether metadata satisfies every constraint.
func (f Filters) Matches(m Metadata) bool {
	if len(f.regions) > 0 && !contains(f.regions, m.Region) {
		return false
	}
	if len(f.certifications) > 0 && !overlaps(f.certifications, m.Certifications) {
		return false
	}
	if len(f.primaryCrops) > 0 && !overlaps(f.primaryCrops, m.PrimaryCrops) {
		return false
	}
	return true
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func overlaps(want, have []string) bool {
	for _, h := range have {
		if contains(want, h) {
			return true
		}
	}
	return false
}

func appendNonEmpty(dst, src []string) []string {
	for _, s := range src {
		if s = strings.TrimSpace(s); s != "" {
			dst = append(dst, s)
		}
	}
	return dst
}
