package ups

import (
	"bytes"
	"encoding/json"
)

// Rating API request envelope.

type rateRequestEnvelope struct {
	RateRequest rateRequest `json:"RateRequest"`
}

type rateRequest struct {
	Request  requestInfo `json:"Request"`
	Shipment shipment    `json:"Shipment"`
}

type requestInfo struct {
	RequestOption        string                `json:"RequestOption"`
	TransactionReference *transactionReference `json:"TransactionReference,omitempty"`
}

type transactionReference struct {
	CustomerContext string `json:"CustomerContext,omitempty"`
}

type shipment struct {
	Shipper               party                  `json:"Shipper"`
	ShipTo                party                  `json:"ShipTo"`
	ShipFrom              party                  `json:"ShipFrom"`
	Service               *codeDescription       `json:"Service,omitempty"`
	NumOfPieces           string                 `json:"NumOfPieces,omitempty"`
	Package               []pkg                  `json:"Package"`
	ShipmentRatingOptions *shipmentRatingOptions `json:"ShipmentRatingOptions,omitempty"`
}

type party struct {
	Name          string  `json:"Name,omitempty"`
	ShipperNumber string  `json:"ShipperNumber,omitempty"`
	Address       address `json:"Address"`
}

type address struct {
	AddressLine                 []string `json:"AddressLine,omitempty"`
	City                        string   `json:"City,omitempty"`
	StateProvinceCode           string   `json:"StateProvinceCode,omitempty"`
	PostalCode                  string   `json:"PostalCode"`
	CountryCode                 string   `json:"CountryCode"`
	ResidentialAddressIndicator *string  `json:"ResidentialAddressIndicator,omitempty"`
}

type codeDescription struct {
	Code        string `json:"Code"`
	Description string `json:"Description,omitempty"`
}

type pkg struct {
	PackagingType codeDescription `json:"PackagingType"`
	Dimensions    *dimensions     `json:"Dimensions,omitempty"`
	PackageWeight packageWeight   `json:"PackageWeight"`
}

type dimensions struct {
	UnitOfMeasurement codeDescription `json:"UnitOfMeasurement"`
	Length            string          `json:"Length"`
	Width             string          `json:"Width"`
	Height            string          `json:"Height"`
}

type packageWeight struct {
	UnitOfMeasurement codeDescription `json:"UnitOfMeasurement"`
	Weight            string          `json:"Weight"`
}

type shipmentRatingOptions struct {
	NegotiatedRatesIndicator string `json:"NegotiatedRatesIndicator,omitempty"`
}

// Rating API response envelope.

type rateResponseEnvelope struct {
	RateResponse *rateResponse `json:"RateResponse"`
}

type rateResponse struct {
	Response      responseInfo             `json:"Response"`
	RatedShipment oneOrMany[ratedShipment] `json:"RatedShipment"`
}

type responseInfo struct {
	ResponseStatus codeDescription            `json:"ResponseStatus"`
	Alert          oneOrMany[codeDescription] `json:"Alert"`
}

type ratedShipment struct {
	Service               codeDescription            `json:"Service"`
	RatedShipmentAlert    oneOrMany[codeDescription] `json:"RatedShipmentAlert"`
	TotalCharges          *charge                    `json:"TotalCharges"`
	NegotiatedRateCharges *negotiatedCharges         `json:"NegotiatedRateCharges"`
	GuaranteedDelivery    *guaranteedDelivery        `json:"GuaranteedDelivery"`
}

type charge struct {
	CurrencyCode  string `json:"CurrencyCode"`
	MonetaryValue string `json:"MonetaryValue"`
}

type negotiatedCharges struct {
	TotalCharge *charge `json:"TotalCharge"`
}

type guaranteedDelivery struct {
	BusinessDaysInTransit string `json:"BusinessDaysInTransit"`
	DeliveryByTime        string `json:"DeliveryByTime"`
}

// oneOrMany decodes a field the API sends as a single object when there is
// one element and as an array otherwise.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*o = nil
		return nil
	case b[0] == '[':
		var many []T
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*o = many
		return nil
	default:
		var one T
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*o = oneOrMany[T]{one}
		return nil
	}
}
