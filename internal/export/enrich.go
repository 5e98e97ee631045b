package export

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"halo-bridge/internal/config"
	"halo-bridge/internal/domain"
)

// Line is one exported cXML line item.
type Line struct {
	LineNumber  int
	SKU         string
	Name        string
	Quantity    float64
	UnitPrice   float64
	ProductType string
	Comments    string

	// Bundle aggregation, zero for non-bundle lines.
	BundleQty   float64
	BundleRatio float64
}

// Projection is the ERP-ready reshaping of a saved order. Addresses are
// ordered shipping first, billing second; the cXML builder relies on that.
type Projection struct {
	Order          *domain.Order
	Addresses      []domain.Address
	GroupCode      string
	Lines          []Line
	TotalBundleQty float64
	GiftCards      []domain.GiftCard
}

// ShipTo returns the enriched shipping address.
func (p *Projection) ShipTo() domain.Address { return p.Addresses[0] }

// BillTo returns the enriched billing address.
func (p *Projection) BillTo() domain.Address { return p.Addresses[1] }

type groupResolver interface {
	Resolve(ctx context.Context, groupID int) (string, error)
}

// Enricher reshapes saved orders for export. The incoming order is never
// mutated; all address rewrites happen on local copies.
type Enricher struct {
	groups groupResolver
	cfg    *config.Config
	log    *log.Logger
}

func NewEnricher(groups groupResolver, cfg *config.Config, logger *log.Logger) *Enricher {
	return &Enricher{groups: groups, cfg: cfg, log: logger}
}

func (e *Enricher) Enrich(ctx context.Context, order *domain.Order) (*Projection, error) {
	billing := order.AddressOfType(domain.AddressBilling)
	if billing == nil {
		return nil, fmt.Errorf("order %s has no billing address", order.IncrementID)
	}

	ship := e.shippingAddress(order, billing)

	groupCode := ""
	if e.groups != nil {
		code, err := e.groups.Resolve(ctx, order.CustomerGroupID)
		if err != nil {
			e.log.Printf("order %s: resolve customer group %d: %v", order.IncrementID, order.CustomerGroupID, err)
		} else {
			groupCode = code
		}
	}

	cards, err := order.GiftCards()
	if err != nil {
		return nil, fmt.Errorf("order %s: decode gift_cards: %w", order.IncrementID, err)
	}

	lines, totalBundleQty := e.buildLines(order, ship.CountryID, cards)
	for i := range lines {
		lines[i].LineNumber = i + 1
	}

	return &Projection{
		Order:          order,
		Addresses:      []domain.Address{ship, *billing},
		GroupCode:      groupCode,
		Lines:          lines,
		TotalBundleQty: totalBundleQty,
		GiftCards:      cards,
	}, nil
}

// shippingAddress returns the order's shipping address, synthesized from
// billing when absent, and overwritten with the fixed warehouse/courier
// location for pickup and courier methods.
func (e *Enricher) shippingAddress(order *domain.Order, billing *domain.Address) domain.Address {
	var ship domain.Address
	if found := order.AddressOfType(domain.AddressShipping); found != nil {
		ship = *found
	} else {
		ship = *billing
		ship.AddressType = domain.AddressShipping
	}

	var fixed *domain.Address
	switch order.ShippingMethod {
	case domain.MethodWarehousePickup:
		fixed = &e.cfg.Warehouse.Address
	case domain.MethodCourier:
		fixed = &e.cfg.Courier.Address
	}
	if fixed != nil {
		// recipient identity survives; the location is the facility's
		ship.Company = fixed.Company
		ship.Street = fixed.Street
		ship.City = fixed.City
		ship.Region = fixed.Region
		ship.RegionCode = fixed.RegionCode
		ship.PostCode = fixed.PostCode
		ship.CountryID = fixed.CountryID
		ship.Telephone = fixed.Telephone
	}
	return ship
}

func (e *Enricher) buildLines(order *domain.Order, shipCountry string, cards []domain.GiftCard) ([]Line, float64) {
	// child quantities aggregate onto their bundle parent
	childQty := make(map[int64]float64)
	for _, item := range order.Items {
		if item.ParentItemID != 0 && item.ProductType == domain.TypeSimple {
			childQty[item.ParentItemID] += item.QtyOrdered
		}
	}

	var (
		lines          []Line
		index          = make(map[string]int)
		totalBundleQty float64
	)
	add := func(l Line) {
		if at, ok := index[l.SKU]; ok {
			lines[at].Quantity += l.Quantity
			return
		}
		index[l.SKU] = len(lines)
		lines = append(lines, l)
	}

	for _, item := range order.Items {
		if item.ParentItemID != 0 {
			// children are represented by their parent line
			continue
		}
		switch item.ProductType {
		case domain.TypeBundle:
			total := childQty[item.ItemID]
			ratio := 0.0
			if item.QtyOrdered > 0 {
				ratio = total / item.QtyOrdered
			}
			totalBundleQty += total
			add(Line{
				SKU:         item.SKU,
				Name:        item.Name,
				Quantity:    item.QtyOrdered,
				UnitPrice:   item.Price,
				ProductType: item.ProductType,
				BundleQty:   total,
				BundleRatio: ratio,
			})
		case domain.TypeGiftCard:
			add(Line{
				SKU:         giftCardSKU(e.cfg.Export.GiftCardSKU, item.Price),
				Name:        e.cfg.Export.GiftCardName,
				Quantity:    item.QtyOrdered,
				UnitPrice:   item.Price,
				ProductType: item.ProductType,
			})
		default:
			add(Line{
				SKU:         item.SKU,
				Name:        item.Name,
				Quantity:    item.QtyOrdered,
				UnitPrice:   item.Price,
				ProductType: item.ProductType,
			})
		}
	}

	lines = append(lines, e.staticLines(order, shipCountry, totalBundleQty, cards)...)
	return lines, totalBundleQty
}

// staticLines appends the config-defined products: handling and shipping
// fees, gift wrap, gift-card redemptions and the promo-code line.
func (e *Enricher) staticLines(order *domain.Order, shipCountry string, totalBundleQty float64, cards []domain.GiftCard) []Line {
	var lines []Line
	exp := e.cfg.Export

	fedex := strings.Contains(strings.ToLower(order.ShippingMethod), "fedex")
	if fedex && e.cfg.FedEx.ProductSKU != "" {
		lines = append(lines, Line{
			SKU:         e.cfg.FedEx.ProductSKU,
			Name:        e.cfg.FedEx.ProductName,
			Quantity:    1,
			UnitPrice:   e.cfg.FedEx.ProductPrice,
			ProductType: domain.TypeVirtual,
		})
	}
	if shipCountry != "US" && !fedex && exp.IntlShippingSKU != "" {
		lines = append(lines, Line{
			SKU:         exp.IntlShippingSKU,
			Name:        exp.IntlShipName,
			Quantity:    1,
			UnitPrice:   exp.IntlShipPrice,
			ProductType: domain.TypeVirtual,
		})
	}

	if order.GiftWrapID > 0 {
		lines = append(lines, Line{
			SKU:         exp.GiftWrapSKU,
			Name:        exp.GiftWrapName,
			Quantity:    1,
			UnitPrice:   order.GiftWrapPrice,
			ProductType: domain.TypeVirtual,
		})
		if totalBundleQty > 0 && exp.GiftWrapBundle != "" {
			lines = append(lines, Line{
				SKU:         exp.GiftWrapBundle,
				Name:        exp.GiftWrapName,
				Quantity:    totalBundleQty,
				UnitPrice:   0,
				ProductType: domain.TypeVirtual,
			})
		}
	}

	// a gift note can travel without gift wrap
	if order.GiftMessageID > 0 && exp.GiftNoteSKU != "" {
		note := Line{
			SKU:         exp.GiftNoteSKU,
			Name:        "Gift Note",
			Quantity:    1,
			UnitPrice:   0,
			ProductType: domain.TypeVirtual,
		}
		if msg := order.GiftMessage; msg != nil {
			note.Comments = fmt.Sprintf("From: %s; To: %s; Message: %s", msg.Sender, msg.Recipient, msg.Message)
		}
		lines = append(lines, note)
	}

	for _, card := range cards {
		lines = append(lines, Line{
			SKU:         exp.GiftCardSKU,
			Name:        fmt.Sprintf("%s Redemption (%s)", exp.GiftCardName, card.Code),
			Quantity:    1,
			UnitPrice:   -card.Amount,
			ProductType: domain.TypeVirtual,
		})
	}

	if order.CouponCode != "" && exp.PromoSKU != "" {
		lines = append(lines, Line{
			SKU:         exp.PromoSKU,
			Name:        exp.PromoName,
			Quantity:    1,
			UnitPrice:   order.DiscountAmount,
			ProductType: domain.TypeVirtual,
			Comments:    order.DiscountDesc,
		})
	}
	return lines
}

// giftCardSKU builds the synthetic SKU gift cards collapse under, one per
// face value.
func giftCardSKU(prefix string, price float64) string {
	return prefix + strconv.FormatFloat(price, 'f', -1, 64) + "-PURCH"
}
