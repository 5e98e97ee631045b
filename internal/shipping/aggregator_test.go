package shipping

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"halo-bridge/internal/config"
	"halo-bridge/internal/domain"
)

type stubGroups struct {
	code string
	err  error
}

func (s *stubGroups) Resolve(_ context.Context, _ int) (string, error) {
	return s.code, s.err
}

type stubRestrictions struct {
	eligible map[string][]string
	err      error
}

func (s *stubRestrictions) EligibleCountries(_ context.Context, _ []string) (map[string][]string, error) {
	return s.eligible, s.err
}

type stubStrategy struct {
	name string
	ops  []domain.Operation
	err  error
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Quote(_ context.Context, _ *Request) ([]domain.Operation, error) {
	return s.ops, s.err
}

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

func TestAggregator_FixedOrderAndIsolation(t *testing.T) {
	agg := NewAggregator(
		[]Strategy{
			&stubStrategy{name: "usps", ops: []domain.Operation{{Op: domain.OpRemove, Path: "result/bestway"}}},
			&stubStrategy{name: "broken", err: errors.New("carrier down")},
			&stubStrategy{name: "ups", ops: []domain.Operation{AddRate(RateValue{CarrierCode: "UPS", Method: "UPS"})}},
		},
		&stubGroups{code: "General"},
		nil,
		discard(),
		nil,
	)

	ops, err := agg.Quote(context.Background(), RateRequest{DestCountryID: "US"})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected failing strategy isolated, got %d ops", len(ops))
	}
	if ops[0].Op != domain.OpRemove || ops[1].Op != domain.OpAdd {
		t.Fatalf("strategy order not preserved: %+v", ops)
	}
}

func TestAggregator_RestrictionGateAborts(t *testing.T) {
	agg := NewAggregator(
		[]Strategy{&stubStrategy{name: "ups", ops: []domain.Operation{AddRate(RateValue{})}}},
		&stubGroups{code: "General"},
		&stubRestrictions{eligible: map[string][]string{"SKU-A": {"US", "CA"}}},
		discard(),
		nil,
	)

	_, err := agg.Quote(context.Background(), RateRequest{
		DestCountryID: "DE",
		AllItems:      []QuoteItem{{SKU: "SKU-A", ProductType: domain.TypeSimple}},
	})
	var restriction *domain.RestrictionError
	if !errors.As(err, &restriction) {
		t.Fatalf("expected restriction error, got %v", err)
	}
	if len(restriction.SKUs) != 1 || restriction.SKUs[0] != "SKU-A" {
		t.Fatalf("expected restricted SKU listed, got %+v", restriction.SKUs)
	}
}

func TestAggregator_EmptyEligibleSetMeansUnrestricted(t *testing.T) {
	agg := NewAggregator(
		nil,
		&stubGroups{code: "General"},
		&stubRestrictions{eligible: map[string][]string{"SKU-A": nil}},
		discard(),
		nil,
	)
	if _, err := agg.Quote(context.Background(), RateRequest{
		DestCountryID: "DE",
		AllItems:      []QuoteItem{{SKU: "SKU-A", ProductType: domain.TypeSimple}},
	}); err != nil {
		t.Fatalf("expected no restriction, got %v", err)
	}
}

func TestWarehousePickup_USOnly(t *testing.T) {
	s := WarehousePickup{Title: "Pickup"}

	ops, _ := s.Quote(context.Background(), &Request{RateRequest: RateRequest{DestCountryID: "US"}})
	if len(ops) != 1 {
		t.Fatalf("expected pickup for US")
	}
	value, ok := ops[0].Value.(RateValue)
	if !ok || value.Price != 0 {
		t.Fatalf("pickup must be free, got %+v", ops[0].Value)
	}

	ops, _ = s.Quote(context.Background(), &Request{RateRequest: RateRequest{DestCountryID: "CA"}})
	if len(ops) != 0 {
		t.Fatalf("expected no pickup outside US")
	}
}

func TestFedEx_GroupGatingAndPricing(t *testing.T) {
	s := FedEx{
		Methods: map[string][]config.FedExMethod{
			"FEDEX":      {{MethodCode: "fedex_ground", MethodTitle: "FedEx Ground"}},
			"FEDEX_INTL": {{MethodCode: "fedex_intl_economy", MethodTitle: "FedEx International Economy"}},
		},
		HandlingFee:   12.5,
		CustomerGroup: "FedEx Shippers",
		POGroup:       "Purchase Order Eligible",
	}

	if ops, _ := s.Quote(context.Background(), &Request{GroupCode: "General", RateRequest: RateRequest{DestCountryID: "US"}}); len(ops) != 0 {
		t.Fatalf("ungated group must get no FedEx rates")
	}

	ops, _ := s.Quote(context.Background(), &Request{GroupCode: "FedEx Shippers", RateRequest: RateRequest{DestCountryID: "US"}})
	if len(ops) != 1 {
		t.Fatalf("expected one domestic method")
	}
	if v := ops[0].Value.(RateValue); v.Price != 12.5 || v.Method != "fedex_ground" {
		t.Fatalf("unexpected domestic rate %+v", v)
	}

	ops, _ = s.Quote(context.Background(), &Request{GroupCode: "Purchase Order Eligible", RateRequest: RateRequest{DestCountryID: "FR"}})
	if len(ops) != 1 {
		t.Fatalf("expected one international method")
	}
	if v := ops[0].Value.(RateValue); v.Price != 0 || v.Method != "fedex_intl_economy" {
		t.Fatalf("PO group must ship free, got %+v", v)
	}
}

func TestFedEx_CarrierCode(t *testing.T) {
	s := FedEx{
		Methods:       map[string][]config.FedExMethod{"FEDEX": {{MethodCode: "fedex_ground", MethodTitle: "FedEx Ground"}}},
		CustomerGroup: "FedEx Shippers",
	}
	req := &Request{GroupCode: "FedEx Shippers", RateRequest: RateRequest{DestCountryID: "US"}}

	ops, _ := s.Quote(context.Background(), req)
	if v := ops[0].Value.(RateValue); v.CarrierCode != "FEDEX" {
		t.Fatalf("zero-value code must default to FEDEX, got %q", v.CarrierCode)
	}

	s.Code = "FEDEXCORP"
	ops, _ = s.Quote(context.Background(), req)
	if v := ops[0].Value.(RateValue); v.CarrierCode != "FEDEXCORP" {
		t.Fatalf("configured carrier code not applied, got %q", v.CarrierCode)
	}
}

func TestCourier_SingleGroup(t *testing.T) {
	s := Courier{Group: "Adobe Employees", Title: "Courier"}

	if ops, _ := s.Quote(context.Background(), &Request{GroupCode: "General"}); len(ops) != 0 {
		t.Fatalf("courier must be group gated")
	}
	ops, _ := s.Quote(context.Background(), &Request{GroupCode: "Adobe Employees"})
	if len(ops) != 1 || ops[0].Value.(RateValue).Price != 0 {
		t.Fatalf("expected single free courier op")
	}
}
