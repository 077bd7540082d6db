package ups

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tiendc/go-deepcopy"

	"github.com/egorkaBurkenya/rateshop/carriererr"
	"github.com/egorkaBurkenya/rateshop/rating"
)

// CarrierID identifies UPS in quotes and errors.
const CarrierID = "ups"

// Request options.
const (
	OptionShop = "Shop"
	OptionRate = "Rate"
)

// DefaultPackagingType is "Customer Supplied Package".
const DefaultPackagingType = "02"

var serviceNames = map[string]string{
	"01": "UPS Next Day Air",
	"02": "UPS 2nd Day Air",
	"03": "UPS Ground",
	"07": "UPS Worldwide Express",
	"08": "UPS Worldwide Expedited",
	"11": "UPS Standard",
	"12": "UPS 3 Day Select",
	"13": "UPS Next Day Air Saver",
	"14": "UPS Next Day Air Early",
	"54": "UPS Worldwide Express Plus",
	"59": "UPS 2nd Day Air A.M.",
	"65": "UPS Worldwide Saver",
	"71": "UPS Worldwide Express Freight Midday",
	"74": "UPS Express 12:00",
	"82": "UPS Today Standard",
	"93": "UPS Ground Saver",
	"96": "UPS Worldwide Express Freight",
}

// ServiceName returns the display name for a UPS service code.
func ServiceName(code string) string {
	if name, ok := serviceNames[code]; ok {
		return name
	}
	return "UPS Service " + code
}

// Shipper is the account the rates are requested for. A zero Address
// means the shipment origin.
type Shipper struct {
	Name          string
	AccountNumber string
	Address       rating.Address
}

// RequestOption returns Shop when no service is requested, Rate otherwise.
func RequestOption(req rating.RateRequest) string {
	if strings.TrimSpace(req.ServiceCode) == "" {
		return OptionShop
	}
	return OptionRate
}

// BuildRateRequest maps req to a Rating API request body. req is not
// modified.
func BuildRateRequest(req rating.RateRequest, shipper Shipper) ([]byte, error) {
	n, err := normalize(req)
	if err != nil {
		return nil, err
	}

	from := shipper.Address
	if from.PostalCode == "" && from.CountryCode == "" {
		from = n.Origin
	}
	name := shipper.Name
	if name == "" {
		name = n.Origin.Name
	}

	s := shipment{
		Shipper:  party{Name: name, ShipperNumber: shipper.AccountNumber, Address: toAddress(from)},
		ShipTo:   party{Name: n.Destination.Name, Address: toAddress(n.Destination)},
		ShipFrom: party{Name: n.Origin.Name, Address: toAddress(n.Origin)},
		Package:  make([]pkg, 0, len(n.Packages)),
	}
	if n.ServiceCode != "" {
		s.Service = &codeDescription{Code: n.ServiceCode, Description: ServiceName(n.ServiceCode)}
	}
	if len(n.Packages) > 1 {
		s.NumOfPieces = strconv.Itoa(len(n.Packages))
	}
	if shipper.AccountNumber != "" {
		s.ShipmentRatingOptions = &shipmentRatingOptions{NegotiatedRatesIndicator: "Y"}
	}
	for _, p := range n.Packages {
		s.Package = append(s.Package, toPackage(p))
	}

	env := rateRequestEnvelope{RateRequest: rateRequest{
		Request:  requestInfo{RequestOption: RequestOption(n)},
		Shipment: s,
	}}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, carriererr.Wrap(carriererr.KindValidation, "encode rate request", err).WithCarrier(CarrierID)
	}
	return body, nil
}

// normalize returns a deep copy of req with codes upper-cased and units
// defaulted.
func normalize(req rating.RateRequest) (rating.RateRequest, error) {
	var n rating.RateRequest
	if err := deepcopy.Copy(&n, req); err != nil {
		return n, fmt.Errorf("copy rate request: %w", err)
	}

	for _, a := range []*rating.Address{&n.Origin, &n.Destination} {
		a.CountryCode = strings.ToUpper(strings.TrimSpace(a.CountryCode))
		a.StateCode = strings.ToUpper(strings.TrimSpace(a.StateCode))
		a.PostalCode = strings.TrimSpace(a.PostalCode)
		a.City = strings.TrimSpace(a.City)
	}
	for i := range n.Packages {
		p := &n.Packages[i]
		p.WeightUnit = strings.ToUpper(p.WeightUnit)
		if p.WeightUnit == "" {
			p.WeightUnit = rating.WeightLB
		}
		p.DimensionUnit = strings.ToUpper(p.DimensionUnit)
		if p.DimensionUnit == "" {
			p.DimensionUnit = rating.DimensionIN
		}
		if p.PackagingType == "" {
			p.PackagingType = DefaultPackagingType
		}
	}
	n.ServiceCode = strings.ToUpper(strings.TrimSpace(n.ServiceCode))
	return n, nil
}

func toAddress(a rating.Address) address {
	out := address{
		AddressLine:       a.Lines,
		City:              a.City,
		StateProvinceCode: a.StateCode,
		PostalCode:        a.PostalCode,
		CountryCode:       a.CountryCode,
	}
	if a.Residential {
		empty := ""
		out.ResidentialAddressIndicator = &empty
	}
	return out
}

func toPackage(p rating.Package) pkg {
	out := pkg{
		PackagingType: codeDescription{Code: p.PackagingType},
		PackageWeight: packageWeight{
			UnitOfMeasurement: codeDescription{Code: p.WeightUnit},
			Weight:            formatNumber(p.Weight),
		},
	}
	if p.HasDimensions() {
		out.Dimensions = &dimensions{
			UnitOfMeasurement: codeDescription{Code: p.DimensionUnit},
			Length:            formatNumber(p.Length),
			Width:             formatNumber(p.Width),
			Height:            formatNumber(p.Height),
		}
	}
	return out
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseRateResponse converts a Rating API response body into quotes sorted
// by best price. A body that does not have the expected shape is a
// KindResponse error.
func ParseRateResponse(body []byte) ([]rating.Quote, error) {
	var env rateResponseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, responseErr("decode rate response", body, err)
	}
	if env.RateResponse == nil {
		return nil, responseErr("missing RateResponse", body, nil)
	}
	rr := env.RateResponse
	if len(rr.RatedShipment) == 0 {
		return nil, responseErr("no rated shipments in response", body, nil)
	}

	common := alertMessages(rr.Response.Alert)
	quotes := make([]rating.Quote, 0, len(rr.RatedShipment))
	for i, rs := range rr.RatedShipment {
		q, err := toQuote(rs, common)
		if err != nil {
			return nil, responseErr(fmt.Sprintf("rated shipment %d", i), body, err)
		}
		quotes = append(quotes, q)
	}

	slices.SortStableFunc(quotes, func(a, b rating.Quote) int {
		return cmp.Compare(a.BestPrice().Amount, b.BestPrice().Amount)
	})
	return quotes, nil
}

func toQuote(rs ratedShipment, common []string) (rating.Quote, error) {
	if rs.Service.Code == "" {
		return rating.Quote{}, fmt.Errorf("missing service code")
	}
	if rs.TotalCharges == nil {
		return rating.Quote{}, fmt.Errorf("service %s: missing TotalCharges", rs.Service.Code)
	}
	total, err := toMoney(*rs.TotalCharges)
	if err != nil {
		return rating.Quote{}, fmt.Errorf("service %s: total: %w", rs.Service.Code, err)
	}

	q := rating.Quote{
		Carrier:     CarrierID,
		ServiceCode: rs.Service.Code,
		ServiceName: ServiceName(rs.Service.Code),
		Total:       total,
	}
	if nc := rs.NegotiatedRateCharges; nc != nil && nc.TotalCharge != nil {
		neg, err := toMoney(*nc.TotalCharge)
		if err != nil {
			return rating.Quote{}, fmt.Errorf("service %s: negotiated: %w", rs.Service.Code, err)
		}
		q.Negotiated = &neg
	}
	if gd := rs.GuaranteedDelivery; gd != nil && gd.BusinessDaysInTransit != "" {
		days, err := strconv.Atoi(strings.TrimSpace(gd.BusinessDaysInTransit))
		if err != nil {
			return rating.Quote{}, fmt.Errorf("service %s: transit days: %w", rs.Service.Code, err)
		}
		q.TransitDays = days
		q.Guaranteed = true
	}
	if w := append(slices.Clone(common), alertMessages(rs.RatedShipmentAlert)...); len(w) > 0 {
		q.Warnings = w
	}
	return q, nil
}

func toMoney(c charge) (rating.Money, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(c.MonetaryValue), 64)
	if err != nil {
		return rating.Money{}, fmt.Errorf("monetary value %q: %w", c.MonetaryValue, err)
	}
	return rating.Money{Amount: amount, Currency: c.CurrencyCode}, nil
}

func alertMessages(alerts []codeDescription) []string {
	var out []string
	for _, a := range alerts {
		switch {
		case a.Code != "" && a.Description != "":
			out = append(out, a.Code+": "+a.Description)
		case a.Description != "":
			out = append(out, a.Description)
		}
	}
	return out
}

func responseErr(msg string, body []byte, cause error) *carriererr.Error {
	return carriererr.NewResponse(msg, string(body), cause).WithCarrier(CarrierID)
}
