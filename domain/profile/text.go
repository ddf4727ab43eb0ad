package profile

import (
	"strconv"
	"strings"
)

// Facets are the filterable attributes of a profile.
type Facets struct {
	Region         string
	Certifications []string
	PrimaryCrops   []string
}

// Render serializes the profile's approved detail into the plain text used
// for embedding. Drafts are ignored.
func Render(p Profile) string {
	var parts []string

	basic := p.Basic()
	name := joinNonEmpty(" ", basic.FirstName, basic.MiddleName, basic.LastName)
	if name != "" {
		parts = append(parts, "Name: "+name+".")
	}
	if basic.Country != "" {
		parts = append(parts, "Country: "+basic.Country+".")
	}

	d := p.Active()
	if d == nil {
		return strings.Join(parts, " ")
	}

	if d.Description != "" {
		parts = append(parts, "Description: "+d.Description+".")
	}
	if d.FarmName != "" {
		parts = append(parts, "Farm name: "+d.FarmName+". Contact person: "+d.ContactPerson+".")
	}
	for _, prod := range d.Products {
		var pp []string
		if prod.Name != "" {
			pp = append(pp, prod.Name)
		}
		if prod.Category != "" {
			pp = append(pp, "category "+prod.Category)
		}
		if prod.Variety != "" {
			pp = append(pp, "variety "+prod.Variety)
		}
		if prod.QuantityAvailable != nil && prod.Unit != "" {
			pp = append(pp, strconv.FormatFloat(*prod.QuantityAvailable, 'f', -1, 64)+" "+prod.Unit)
		}
		if len(pp) > 0 {
			parts = append(parts, "Product: "+strings.Join(pp, ", ")+".")
		}
	}

	return strings.Join(parts, " ")
}

// FacetsOf extracts search facets from the profile's approved detail. The
// region is the detail's province, falling back to the registration country.
func FacetsOf(p Profile) Facets {
	f := Facets{Region: p.Basic().Country}

	d := p.Active()
	if d == nil {
		return f
	}
	if d.Location.Province != "" {
		f.Region = d.Location.Province
	}

	certs := make([]string, 0, len(d.Certifications))
	for _, c := range d.Certifications {
		certs = append(certs, c.Name)
	}
	f.Certifications = dedupe(certs)

	crops := make([]string, 0, len(d.Products))
	for _, prod := range d.Products {
		if prod.Category != "" {
			crops = append(crops, prod.Category)
		}
	}
	f.PrimaryCrops = dedupe(crops)

	return f
}

func joinNonEmpty(sep string, values ...string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}

// dedupe removes blanks and duplicates, keeping first occurrences in order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
