// Package rating holds the carrier-agnostic rate request and quote types.
package rating

// Weight units.
const (
	WeightLB = "LBS"
	WeightKG = "KGS"
)

// Dimension units.
const (
	DimensionIN = "IN"
	DimensionCM = "CM"
)

// Address is a shipping origin or destination.
type Address struct {
	Name        string   `json:"name,omitempty"`
	Lines       []string `json:"lines,omitempty"`
	City        string   `json:"city,omitempty"`
	StateCode   string   `json:"stateCode,omitempty"`
	PostalCode  string   `json:"postalCode"`
	CountryCode string   `json:"countryCode"`
	Residential bool     `json:"residential,omitempty"`
}

// Package is a single parcel. Dimensions are optional but must be given
// together.
type Package struct {
	Weight        float64 `json:"weight"`
	WeightUnit    string  `json:"weightUnit,omitempty"`
	Length        float64 `json:"length,omitempty"`
	Width         float64 `json:"width,omitempty"`
	Height        float64 `json:"height,omitempty"`
	DimensionUnit string  `json:"dimensionUnit,omitempty"`
	PackagingType string  `json:"packagingType,omitempty"`
}

// HasDimensions reports whether any dimension is set.
func (p Package) HasDimensions() bool {
	return p.Length != 0 || p.Width != 0 || p.Height != 0
}

// RateRequest asks for quotes for one shipment. An empty ServiceCode asks
// for every available service.
type RateRequest struct {
	Origin      Address   `json:"origin"`
	Destination Address   `json:"destination"`
	Packages    []Package `json:"packages"`
	ServiceCode string    `json:"serviceCode,omitempty"`
}

// Money is an amount in a currency.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Quote is one normalized rate.
type Quote struct {
	Carrier     string   `json:"carrier"`
	ServiceCode string   `json:"serviceCode"`
	ServiceName string   `json:"serviceName"`
	Total       Money    `json:"total"`
	Negotiated  *Money   `json:"negotiated,omitempty"`
	TransitDays int      `json:"transitDays,omitempty"`
	Guaranteed  bool     `json:"guaranteed"`
	Warnings    []string `json:"warnings,omitempty"`
}

// BestPrice returns the negotiated total when present, else the published total.
func (q Quote) BestPrice() Money {
	if q.Negotiated != nil {
		return *q.Negotiated
	}
	return q.Total
}
