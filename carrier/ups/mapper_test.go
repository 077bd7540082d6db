package ups

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egorkaBurkenya/rateshop/carriererr"
	"github.com/egorkaBurkenya/rateshop/rating"
)

func sampleRequest() rating.RateRequest {
	return rating.RateRequest{
		Origin: rating.Address{
			Name:        "Warehouse",
			Lines:       []string{"100 Main St"},
			City:        " Atlanta ",
			StateCode:   "ga",
			PostalCode:  "30301",
			CountryCode: "us",
		},
		Destination: rating.Address{
			Name:        "Customer",
			City:        "Beverly Hills",
			StateCode:   "CA",
			PostalCode:  "90210",
			CountryCode: "US",
			Residential: true,
		},
		Packages: []rating.Package{
			{Weight: 5.5, WeightUnit: "lbs", Length: 10, Width: 8, Height: 4},
			{Weight: 2},
		},
	}
}

func decodeRequest(t *testing.T, body []byte) rateRequestEnvelope {
	t.Helper()
	var env rateRequestEnvelope
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

func TestBuildRateRequestShop(t *testing.T) {
	req := sampleRequest()
	body, err := BuildRateRequest(req, Shipper{AccountNumber: "A1B2C3"})
	require.NoError(t, err)

	env := decodeRequest(t, body)
	rr := env.RateRequest
	assert.Equal(t, OptionShop, rr.Request.RequestOption)
	assert.Nil(t, rr.Shipment.Service)
	assert.Equal(t, "2", rr.Shipment.NumOfPieces)
	require.NotNil(t, rr.Shipment.ShipmentRatingOptions)
	assert.Equal(t, "Y", rr.Shipment.ShipmentRatingOptions.NegotiatedRatesIndicator)

	shipper := rr.Shipment.Shipper
	assert.Equal(t, "A1B2C3", shipper.ShipperNumber)
	assert.Equal(t, "Warehouse", shipper.Name)
	assert.Equal(t, "30301", shipper.Address.PostalCode)

	wantFrom := address{
		AddressLine:       []string{"100 Main St"},
		City:              "Atlanta",
		StateProvinceCode: "GA",
		PostalCode:        "30301",
		CountryCode:       "US",
	}
	if diff := cmp.Diff(wantFrom, rr.Shipment.ShipFrom.Address); diff != "" {
		t.Errorf("ShipFrom mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, rr.Shipment.ShipTo.Address.ResidentialAddressIndicator)

	wantPackages := []pkg{
		{
			PackagingType: codeDescription{Code: DefaultPackagingType},
			Dimensions: &dimensions{
				UnitOfMeasurement: codeDescription{Code: "IN"},
				Length:            "10",
				Width:             "8",
				Height:            "4",
			},
			PackageWeight: packageWeight{UnitOfMeasurement: codeDescription{Code: "LBS"}, Weight: "5.5"},
		},
		{
			PackagingType: codeDescription{Code: DefaultPackagingType},
			PackageWeight: packageWeight{UnitOfMeasurement: codeDescription{Code: "LBS"}, Weight: "2"},
		},
	}
	if diff := cmp.Diff(wantPackages, rr.Shipment.Package); diff != "" {
		t.Errorf("packages mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRateRequestDoesNotModifyInput(t *testing.T) {
	req := sampleRequest()
	before := sampleRequest()

	_, err := BuildRateRequest(req, Shipper{})
	require.NoError(t, err)

	if diff := cmp.Diff(before, req); diff != "" {
		t.Errorf("request modified (-before +after):\n%s", diff)
	}
}

func TestBuildRateRequestRate(t *testing.T) {
	req := sampleRequest()
	req.ServiceCode = "03"
	req.Packages = req.Packages[:1]

	body, err := BuildRateRequest(req, Shipper{Name: "Acme", Address: rating.Address{PostalCode: "10001", CountryCode: "US"}})
	require.NoError(t, err)

	rr := decodeRequest(t, body).RateRequest
	assert.Equal(t, OptionRate, rr.Request.RequestOption)
	require.NotNil(t, rr.Shipment.Service)
	assert.Equal(t, "03", rr.Shipment.Service.Code)
	assert.Equal(t, "UPS Ground", rr.Shipment.Service.Description)
	assert.Empty(t, rr.Shipment.NumOfPieces)
	assert.Nil(t, rr.Shipment.ShipmentRatingOptions)
	assert.Equal(t, "Acme", rr.Shipment.Shipper.Name)
	assert.Equal(t, "10001", rr.Shipment.Shipper.Address.PostalCode)
}

const shopResponse = `{
  "RateResponse": {
    "Response": {
      "ResponseStatus": {"Code": "1", "Description": "Success"},
      "Alert": {"Code": "110971", "Description": "Your invoice may vary from the displayed reference rates"}
    },
    "RatedShipment": [
      {
        "Service": {"Code": "01"},
        "TotalCharges": {"CurrencyCode": "USD", "MonetaryValue": "85.20"},
        "NegotiatedRateCharges": {"TotalCharge": {"CurrencyCode": "USD", "MonetaryValue": "61.04"}},
        "GuaranteedDelivery": {"BusinessDaysInTransit": "1", "DeliveryByTime": "10:30 A.M."}
      },
      {
        "Service": {"Code": "03"},
        "RatedShipmentAlert": [{"Code": "120900", "Description": "Ground residential surcharge applied"}],
        "TotalCharges": {"CurrencyCode": "USD", "MonetaryValue": "14.75"}
      }
    ]
  }
}`

func TestParseRateResponse(t *testing.T) {
	quotes, err := ParseRateResponse([]byte(shopResponse))
	require.NoError(t, err)

	alert := "110971: Your invoice may vary from the displayed reference rates"
	want := []rating.Quote{
		{
			Carrier:     CarrierID,
			ServiceCode: "03",
			ServiceName: "UPS Ground",
			Total:       rating.Money{Amount: 14.75, Currency: "USD"},
			Warnings:    []string{alert, "120900: Ground residential surcharge applied"},
		},
		{
			Carrier:     CarrierID,
			ServiceCode: "01",
			ServiceName: "UPS Next Day Air",
			Total:       rating.Money{Amount: 85.20, Currency: "USD"},
			Negotiated:  &rating.Money{Amount: 61.04, Currency: "USD"},
			TransitDays: 1,
			Guaranteed:  true,
			Warnings:    []string{alert},
		},
	}
	if diff := cmp.Diff(want, quotes); diff != "" {
		t.Errorf("quotes mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRateResponseSingleShipmentObject(t *testing.T) {
	body := `{"RateResponse":{"Response":{"ResponseStatus":{"Code":"1"}},
	  "RatedShipment":{"Service":{"Code":"99"},"TotalCharges":{"CurrencyCode":"CAD","MonetaryValue":"20.00"}}}}`

	quotes, err := ParseRateResponse([]byte(body))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "UPS Service 99", quotes[0].ServiceName)
	assert.Equal(t, rating.Money{Amount: 20, Currency: "CAD"}, quotes[0].Total)
	assert.Nil(t, quotes[0].Warnings)
}

func TestParseRateResponseMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>maintenance</html>`},
		{"missing envelope", `{"foo":{}}`},
		{"no shipments", `{"RateResponse":{"Response":{}}}`},
		{"missing total", `{"RateResponse":{"RatedShipment":{"Service":{"Code":"03"}}}}`},
		{"bad amount", `{"RateResponse":{"RatedShipment":{"Service":{"Code":"03"},"TotalCharges":{"MonetaryValue":"n/a"}}}}`},
		{"missing service", `{"RateResponse":{"RatedShipment":{"TotalCharges":{"MonetaryValue":"1.00"}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRateResponse([]byte(tt.body))
			require.Error(t, err)
			ce, ok := carriererr.As(err)
			require.True(t, ok)
			assert.Equal(t, carriererr.KindResponse, ce.Kind())
			assert.Equal(t, CarrierID, ce.Carrier)
			assert.Equal(t, tt.body, ce.Body)
		})
	}
}

func TestRequestOption(t *testing.T) {
	assert.Equal(t, OptionShop, RequestOption(rating.RateRequest{}))
	assert.Equal(t, OptionShop, RequestOption(rating.RateRequest{ServiceCode: "  "}))
	assert.Equal(t, OptionRate, RequestOption(rating.RateRequest{ServiceCode: "02"}))
}
