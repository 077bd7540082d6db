package rating

import (
	"fmt"
	"strings"

	"github.com/egorkaBurkenya/rateshop/carriererr"
)

const (
	maxPackages    = 200
	maxAddressLine = 35
	maxLines       = 3
	maxWeightLB    = 150
	maxWeightKG    = 70
)

type fieldErrors map[string][]string

func (f fieldErrors) add(path, format string, args ...any) {
	f[path] = append(f[path], fmt.Sprintf(format, args...))
}

// Validate checks r and returns a KindValidation error listing every
// problem, or nil.
func (r RateRequest) Validate() error {
	errs := fieldErrors{}

	validateAddress(errs, "origin", r.Origin)
	validateAddress(errs, "destination", r.Destination)

	switch {
	case len(r.Packages) == 0:
		errs.add("packages", "at least one package is required")
	case len(r.Packages) > maxPackages:
		errs.add("packages", "at most %d packages are allowed", maxPackages)
	}
	for i, p := range r.Packages {
		validatePackage(errs, fmt.Sprintf("packages[%d]", i), p)
	}

	if r.ServiceCode != "" && !isAlnum(r.ServiceCode, 2, 3) {
		errs.add("serviceCode", "must be a 2 or 3 character service code")
	}

	if len(errs) == 0 {
		return nil
	}
	return carriererr.NewValidation("invalid rate request", errs)
}

func validateAddress(errs fieldErrors, path string, a Address) {
	if strings.TrimSpace(a.PostalCode) == "" {
		errs.add(path+".postalCode", "is required")
	}
	switch cc := strings.TrimSpace(a.CountryCode); {
	case cc == "":
		errs.add(path+".countryCode", "is required")
	case !isAlpha(cc, 2):
		errs.add(path+".countryCode", "must be an ISO 3166-1 alpha-2 code")
	}
	if len(a.Lines) > maxLines {
		errs.add(path+".lines", "at most %d address lines are allowed", maxLines)
	}
	for i, l := range a.Lines {
		if len(l) > maxAddressLine {
			errs.add(fmt.Sprintf("%s.lines[%d]", path, i), "must be at most %d characters", maxAddressLine)
		}
	}
}

func validatePackage(errs fieldErrors, path string, p Package) {
	unit := strings.ToUpper(p.WeightUnit)
	switch unit {
	case "", WeightLB, WeightKG:
	default:
		errs.add(path+".weightUnit", "must be %s or %s", WeightLB, WeightKG)
	}

	switch {
	case p.Weight <= 0:
		errs.add(path+".weight", "must be greater than 0")
	case unit == WeightKG && p.Weight > maxWeightKG:
		errs.add(path+".weight", "must be at most %d %s", maxWeightKG, WeightKG)
	case unit != WeightKG && p.Weight > maxWeightLB:
		errs.add(path+".weight", "must be at most %d %s", maxWeightLB, WeightLB)
	}

	if p.HasDimensions() {
		for name, v := range map[string]float64{"length": p.Length, "width": p.Width, "height": p.Height} {
			if v <= 0 {
				errs.add(path+"."+name, "must be greater than 0 when dimensions are given")
			}
		}
	}
	switch strings.ToUpper(p.DimensionUnit) {
	case "", DimensionIN, DimensionCM:
	default:
		errs.add(path+".dimensionUnit", "must be %s or %s", DimensionIN, DimensionCM)
	}
}

func isAlpha(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func isAlnum(s string, min, max int) bool {
	if len(s) < min || len(s) > max {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
