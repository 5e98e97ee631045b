// Package shipping aggregates per-carrier rate strategies for the
// shipping-rates webhook.
package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"halo-bridge/internal/domain"
)

// RateInstance is the platform class instantiated for added rate values.
const RateInstance = `Magento\Quote\Model\Quote\Address\RateResult\Method`

// RateRequest is the webhook's decoded rateRequest payload.
type RateRequest struct {
	DestCountryID string      `json:"dest_country_id"`
	DestPostcode  string      `json:"dest_postcode"`
	DestRegionID  string      `json:"dest_region_id"`
	DestRegion    string      `json:"dest_region_code"`
	PackageWeight float64     `json:"package_weight"`
	PackageValue  float64     `json:"package_value"`
	AllItems      []QuoteItem `json:"all_items"`
	Customer      Customer    `json:"customer"`
}

// QuoteItem is one quote line inside a rate request.
type QuoteItem struct {
	ItemID       int64   `json:"item_id"`
	ParentItemID int64   `json:"parent_item_id"`
	SKU          string  `json:"sku"`
	ProductID    string  `json:"product_id"`
	ProductType  string  `json:"product_type"`
	Qty          float64 `json:"qty"`
	Price        float64 `json:"price"`
}

// Customer identifies the quote's customer for group gating.
type Customer struct {
	GroupID int `json:"group_id"`
}

// RateValue is the payload of one added shipping rate operation.
type RateValue struct {
	CarrierCode  string  `json:"carrier_code"`
	Method       string  `json:"method"`
	CarrierTitle string  `json:"carrier_title"`
	MethodTitle  string  `json:"method_title"`
	Price        float64 `json:"price"`
	Cost         float64 `json:"cost"`
}

// Request is a rate request enriched with the resolved group code; it is
// what strategies consume.
type Request struct {
	RateRequest
	GroupCode string
}

// Strategy produces rate operations for one carrier. A strategy failure
// yields zero ops for that carrier and never aborts the aggregate.
type Strategy interface {
	Name() string
	Quote(ctx context.Context, req *Request) ([]domain.Operation, error)
}

type groupResolver interface {
	Resolve(ctx context.Context, groupID int) (string, error)
}

type restrictionChecker interface {
	EligibleCountries(ctx context.Context, skus []string) (map[string][]string, error)
}

// Aggregator runs the restriction gate and then every strategy in fixed
// order.
type Aggregator struct {
	strategies   []Strategy
	groups       groupResolver
	restrictions restrictionChecker
	logger       *log.Logger
	onFailure    func(strategy string)
}

func NewAggregator(strategies []Strategy, groups groupResolver, restrictions restrictionChecker, logger *log.Logger, onFailure func(strategy string)) *Aggregator {
	return &Aggregator{
		strategies:   strategies,
		groups:       groups,
		restrictions: restrictions,
		logger:       logger,
		onFailure:    onFailure,
	}
}

// Quote returns the aggregated rate operations. Only a restriction
// violation produces an error.
func (a *Aggregator) Quote(ctx context.Context, rr RateRequest) ([]domain.Operation, error) {
	if err := a.checkRestrictions(ctx, rr); err != nil {
		return nil, err
	}

	req := &Request{RateRequest: rr}
	if a.groups != nil {
		code, err := a.groups.Resolve(ctx, rr.Customer.GroupID)
		if err != nil {
			a.logger.Printf("shipping: resolve customer group: %v", err)
		} else {
			req.GroupCode = code
		}
	}

	var ops []domain.Operation
	for _, s := range a.strategies {
		strategyOps, err := s.Quote(ctx, req)
		if err != nil {
			a.logger.Printf("shipping: strategy %s failed: %v", s.Name(), err)
			if a.onFailure != nil {
				a.onFailure(s.Name())
			}
			continue
		}
		ops = append(ops, strategyOps...)
	}
	return ops, nil
}

// checkRestrictions fails the whole request when any configurable parent
// or standalone item cannot ship to the destination country.
func (a *Aggregator) checkRestrictions(ctx context.Context, rr RateRequest) error {
	if a.restrictions == nil {
		return nil
	}

	var skus []string
	for _, item := range rr.AllItems {
		if item.ParentItemID != 0 && item.ProductType == domain.TypeSimple {
			continue // children follow their configurable parent
		}
		if item.ProductType == domain.TypeBundle {
			continue
		}
		skus = append(skus, item.SKU)
	}
	if len(skus) == 0 {
		return nil
	}

	eligible, err := a.restrictions.EligibleCountries(ctx, skus)
	if err != nil {
		// lookup failure must not block checkout
		a.logger.Printf("shipping: restriction lookup failed: %v", err)
		return nil
	}

	var restricted []string
	for sku, countries := range eligible {
		if len(countries) == 0 {
			continue
		}
		if !contains(countries, rr.DestCountryID) {
			restricted = append(restricted, sku)
		}
	}
	if len(restricted) > 0 {
		return &domain.RestrictionError{Country: rr.DestCountryID, SKUs: restricted}
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

// AddRate wraps a RateValue into the platform add operation.
func AddRate(v RateValue) domain.Operation {
	return domain.Add("result", v, RateInstance)
}

// encodeOps serializes operations for the rate cache.
func encodeOps(ops []domain.Operation) (string, error) {
	raw, err := json.Marshal(ops)
	if err != nil {
		return "", fmt.Errorf("encode rate ops: %w", err)
	}
	return string(raw), nil
}

func decodeOps(raw string) ([]domain.Operation, error) {
	var ops []domain.Operation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		return nil, fmt.Errorf("decode cached rate ops: %w", err)
	}
	return ops, nil
}
