package shipping

import (
	"context"

	"halo-bridge/internal/config"
	"halo-bridge/internal/domain"
)

// FedEx offers the configured FedEx method tables to two customer groups:
// the standard FedEx group pays the handling fee, the purchase-order group
// ships free.
type FedEx struct {
	Code          string
	Methods       map[string][]config.FedExMethod
	HandlingFee   float64
	CustomerGroup string
	POGroup       string
}

func (FedEx) Name() string { return "fedex" }

func (s FedEx) Quote(_ context.Context, req *Request) ([]domain.Operation, error) {
	if req.GroupCode == "" {
		return nil, nil
	}
	if req.GroupCode != s.CustomerGroup && req.GroupCode != s.POGroup {
		return nil, nil
	}

	table := "FEDEX_INTL"
	if req.DestCountryID == "US" {
		table = "FEDEX"
	}
	methods := s.Methods[table]
	if len(methods) == 0 {
		return nil, nil
	}

	price := s.HandlingFee
	if req.GroupCode == s.POGroup {
		price = 0
	}

	code := s.Code
	if code == "" {
		code = "FEDEX"
	}

	ops := make([]domain.Operation, 0, len(methods))
	for _, m := range methods {
		ops = append(ops, AddRate(RateValue{
			CarrierCode:  code,
			Method:       m.MethodCode,
			CarrierTitle: "FedEx",
			MethodTitle:  m.MethodTitle,
			Price:        price,
			Cost:         price,
		}))
	}
	return ops, nil
}
