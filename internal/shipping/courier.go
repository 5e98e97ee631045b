package shipping

import (
	"context"

	"halo-bridge/internal/domain"
)

// Courier offers a single free courier delivery to one customer group.
// The delivery runs to a fixed courier address; the enricher rewrites the
// order's shipping address accordingly at export time.
type Courier struct {
	Group string
	Title string
}

func (Courier) Name() string { return "courier" }

func (s Courier) Quote(_ context.Context, req *Request) ([]domain.Operation, error) {
	if s.Group == "" || req.GroupCode != s.Group {
		return nil, nil
	}
	title := s.Title
	if title == "" {
		title = "Courier Shipping"
	}
	return []domain.Operation{AddRate(RateValue{
		CarrierCode:  "COURIER",
		Method:       "courier_shipping",
		CarrierTitle: title,
		MethodTitle:  title,
		Price:        0,
		Cost:         0,
	})}, nil
}
