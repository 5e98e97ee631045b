package domain

import (
	"encoding/json"
	"strings"
)

// Product types as reported by the commerce platform.
const (
	TypeSimple       = "simple"
	TypeConfigurable = "configurable"
	TypeBundle       = "bundle"
	TypeGiftCard     = "giftcard"
	TypeVirtual      = "virtual"
)

// Address types inside an order.
const (
	AddressShipping = "shipping"
	AddressBilling  = "billing"
)

// Shipping method codes with special handling in the pipeline.
const (
	MethodWarehousePickup = "WAREHOUSE_PICKUP_warehouse-pickup"
	MethodCourier         = "COURIER_courier_shipping"
)

// Order is the saved-order projection consumed by the export pipeline.
// The platform delivers it as a loose JSON object; decoding into this
// record plus validation replaces ad-hoc nested-path indexing.
type Order struct {
	EntityID        int64        `json:"entity_id" validate:"required"`
	IncrementID     string       `json:"increment_id" validate:"required"`
	CreatedAt       string       `json:"created_at"`
	State           string       `json:"state"`
	Status          string       `json:"status"`
	CustomerGroupID int          `json:"customer_group_id"`
	CustomerEmail   string       `json:"customer_email"`
	StoreCurrency   string       `json:"store_currency_code"`
	GrandTotal      float64      `json:"grand_total"`
	Subtotal        float64      `json:"subtotal"`
	ShippingAmount  float64      `json:"shipping_amount"`
	ShippingInclTax float64      `json:"shipping_incl_tax"`
	TaxAmount       float64      `json:"tax_amount"`
	DiscountAmount  float64      `json:"discount_amount"`
	DiscountDesc    string       `json:"discount_description"`
	CouponCode      string       `json:"coupon_code"`
	ShippingMethod  string       `json:"shipping_method"`
	ShippingDesc    string       `json:"shipping_description"`
	Addresses       []Address    `json:"addresses" validate:"min=1,dive"`
	Items           []Item       `json:"items" validate:"min=1,dive"`
	Payment         Payment      `json:"payment"`
	GiftWrapID      int          `json:"gw_id,string"`
	GiftWrapPrice   float64      `json:"gw_price_incl_tax,string"`
	GiftMessageID   int          `json:"gift_message_id,string"`
	GiftMessage     *GiftMessage `json:"gift_message"`
	GiftCardsBlob   string       `json:"gift_cards"`
}

// GiftMessage carries the sender/recipient/body of an order gift note.
type GiftMessage struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// Address is one order address. The enricher mutates only local copies.
type Address struct {
	AddressType string `json:"address_type" validate:"required,oneof=billing shipping"`
	Firstname   string `json:"firstname"`
	Lastname    string `json:"lastname"`
	Company     string `json:"company"`
	Street      string `json:"street"`
	City        string `json:"city"`
	Region      string `json:"region"`
	RegionCode  string `json:"region_code"`
	PostCode    string `json:"postcode"`
	CountryID   string `json:"country_id"`
	Telephone   string `json:"telephone"`
	Email       string `json:"email"`
}

// Item is one order line as received from the platform.
type Item struct {
	ItemID        int64   `json:"item_id"`
	ParentItemID  int64   `json:"parent_item_id"`
	SKU           string  `json:"sku" validate:"required"`
	Name          string  `json:"name"`
	ProductType   string  `json:"product_type"`
	QtyOrdered    float64 `json:"qty_ordered"`
	Price         float64 `json:"price"`
	PriceInclTax  float64 `json:"price_incl_tax"`
	RowTotal      float64 `json:"row_total"`
	TaxAmount     float64 `json:"tax_amount"`
	TaxPercent    float64 `json:"tax_percent"`
	DiscountAmt   float64 `json:"discount_amount"`
	GiftCardPrice float64 `json:"gift_cards_amount"`
}

// Payment carries the method plus the platform's free-form extension bag.
type Payment struct {
	Method         string         `json:"method"`
	AdditionalInfo AdditionalInfo `json:"additional_information"`
}

// AdditionalInfo holds the payment extension fields the pipeline reads.
type AdditionalInfo struct {
	ExtShippingInfo string `json:"ext_shipping_info"`
}

// GiftCard is one redeemed card from the order's gift_cards blob.
type GiftCard struct {
	Amount float64 `json:"a"`
	Code   string  `json:"c"`
}

// GiftCards decodes the JSON-encoded gift_cards blob. An empty or absent
// blob yields no cards and no error.
func (o *Order) GiftCards() ([]GiftCard, error) {
	blob := strings.TrimSpace(o.GiftCardsBlob)
	if blob == "" || blob == "[]" || blob == "null" {
		return nil, nil
	}
	var cards []GiftCard
	if err := json.Unmarshal([]byte(blob), &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// AddressOfType returns the first address of the given type, or nil.
func (o *Order) AddressOfType(addrType string) *Address {
	for i := range o.Addresses {
		if o.Addresses[i].AddressType == addrType {
			return &o.Addresses[i]
		}
	}
	return nil
}

// FirstStreetLine splits the platform's newline-joined street field.
func (a *Address) FirstStreetLine() string {
	if i := strings.IndexByte(a.Street, '\n'); i >= 0 {
		return a.Street[:i]
	}
	return a.Street
}
