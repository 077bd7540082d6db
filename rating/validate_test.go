package rating

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egorkaBurkenya/rateshop/carriererr"
)

func validRequest() RateRequest {
	return RateRequest{
		Origin: Address{
			Lines:       []string{"100 Main St"},
			City:        "Atlanta",
			StateCode:   "GA",
			PostalCode:  "30301",
			CountryCode: "US",
		},
		Destination: Address{
			City:        "Beverly Hills",
			StateCode:   "CA",
			PostalCode:  "90210",
			CountryCode: "us",
			Residential: true,
		},
		Packages: []Package{
			{Weight: 5, WeightUnit: "lbs", Length: 10, Width: 8, Height: 4, DimensionUnit: "in"},
		},
	}
}

func TestValidateAcceptsValidRequest(t *testing.T) {
	assert.NoError(t, validRequest().Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	req := validRequest()
	req.Origin.PostalCode = ""
	req.Destination.CountryCode = "USA"
	req.Packages = append(req.Packages,
		Package{Weight: 0},
		Package{Weight: 80, WeightUnit: "KGS", Length: 10, DimensionUnit: "ft"},
	)
	req.ServiceCode = "ground!"

	err := req.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, carriererr.ErrValidation))

	ce, ok := carriererr.As(err)
	require.True(t, ok)
	fields := ce.ValidationErrors
	assert.Equal(t, []string{"is required"}, fields["origin.postalCode"])
	assert.Equal(t, []string{"must be an ISO 3166-1 alpha-2 code"}, fields["destination.countryCode"])
	assert.Equal(t, []string{"must be greater than 0"}, fields["packages[1].weight"])
	assert.Equal(t, []string{"must be at most 70 KGS"}, fields["packages[2].weight"])
	assert.Contains(t, fields, "packages[2].width")
	assert.Contains(t, fields, "packages[2].height")
	assert.NotContains(t, fields, "packages[2].length")
	assert.Contains(t, fields, "packages[2].dimensionUnit")
	assert.Contains(t, fields, "serviceCode")
	assert.NotContains(t, fields, "packages[0].weight")
}

func TestValidateRequiresPackages(t *testing.T) {
	req := validRequest()
	req.Packages = nil

	ce, ok := carriererr.As(req.Validate())
	require.True(t, ok)
	assert.Equal(t, []string{"at least one package is required"}, ce.ValidationErrors["packages"])
}

func TestValidateAddressLines(t *testing.T) {
	req := validRequest()
	req.Origin.Lines = []string{"a", "b", "c", strings.Repeat("x", 36)}

	ce, ok := carriererr.As(req.Validate())
	require.True(t, ok)
	assert.Contains(t, ce.ValidationErrors, "origin.lines")
	assert.Contains(t, ce.ValidationErrors, "origin.lines[3]")
}

func TestValidatePoundLimit(t *testing.T) {
	req := validRequest()
	req.Packages[0].Weight = 151

	ce, ok := carriererr.As(req.Validate())
	require.True(t, ok)
	assert.Equal(t, []string{"must be at most 150 LBS"}, ce.ValidationErrors["packages[0].weight"])
}

func TestBestPrice(t *testing.T) {
	q := Quote{Total: Money{Amount: 20, Currency: "USD"}}
	assert.Equal(t, 20.0, q.BestPrice().Amount)

	q.Negotiated = &Money{Amount: 15.5, Currency: "USD"}
	assert.Equal(t, 15.5, q.BestPrice().Amount)
}
