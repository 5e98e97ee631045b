package shipping

import (
	"context"

	"halo-bridge/internal/domain"
)

// USPSRemoval always removes the platform's bestway (USPS) rates; the
// deployment does not ship USPS.
type USPSRemoval struct{}

func (USPSRemoval) Name() string { return "usps-removal" }

func (USPSRemoval) Quote(_ context.Context, _ *Request) ([]domain.Operation, error) {
	return []domain.Operation{{Op: domain.OpRemove, Path: "result/bestway"}}, nil
}

// WarehousePickup offers free pickup for US destinations only.
type WarehousePickup struct {
	Title string
}

func (WarehousePickup) Name() string { return "warehouse-pickup" }

func (s WarehousePickup) Quote(_ context.Context, req *Request) ([]domain.Operation, error) {
	if req.DestCountryID != "US" {
		return nil, nil
	}
	title := s.Title
	if title == "" {
		title = "Warehouse Pickup"
	}
	return []domain.Operation{AddRate(RateValue{
		CarrierCode:  "WAREHOUSE_PICKUP",
		Method:       "warehouse-pickup",
		CarrierTitle: title,
		MethodTitle:  title,
		Price:        0,
		Cost:         0,
	})}, nil
}
