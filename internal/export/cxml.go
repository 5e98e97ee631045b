package export

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"halo-bridge/internal/domain"
)

const (
	cxmlVersion = "1.2.044"
	cxmlDoctype = `<!DOCTYPE cXML SYSTEM "http://xml.cxml.org/schemas/cXML/1.2.044/cXML.dtd">`
	unspscCode  = "80141605"
)

// BuilderSettings is the deployment-fixed half of the cXML document:
// credentials, identifiers and rendering knobs taken from config.
type BuilderSettings struct {
	OrderIDPrefix  string
	SupplierID     string
	BuyerSystemID  string
	SenderIdentity string
	SharedSecret   string
	UserAgent      string
	DeploymentMode string
	PaymentTerm    int
	UnitOfMeasure  string
	Methods        domain.MethodTable
}

type money struct {
	Currency string `xml:"currency,attr"`
	Amount   string `xml:",chardata"`
}

type description struct {
	Lang string `xml:"xml:lang,attr"`
	Text string `xml:",chardata"`
}

type credential struct {
	Domain       string `xml:"domain,attr"`
	Identity     string `xml:"Identity"`
	SharedSecret string `xml:"SharedSecret,omitempty"`
}

type party struct {
	Credentials []credential `xml:"Credential"`
}

type sender struct {
	Credential credential `xml:"Credential"`
	UserAgent  string     `xml:"UserAgent"`
}

type cxmlHeader struct {
	From   party  `xml:"From"`
	To     party  `xml:"To"`
	Sender sender `xml:"Sender"`
}

type country struct {
	ISOCountryCode string `xml:"isoCountryCode,attr"`
	Name           string `xml:",chardata"`
}

type phoneNumber struct {
	CountryCode string `xml:"CountryCode"`
	AreaOrCity  string `xml:"AreaOrCityCode"`
	Number      string `xml:"Number"`
}

type phone struct {
	Name   string      `xml:"name,attr"`
	Number phoneNumber `xml:"TelephoneNumber"`
}

type postalAddress struct {
	DeliverTo  string   `xml:"DeliverTo"`
	Street     []string `xml:"Street"`
	City       string   `xml:"City"`
	State      string   `xml:"State"`
	PostalCode string   `xml:"PostalCode"`
	Country    country  `xml:"Country"`
}

type cxmlAddress struct {
	Name          description   `xml:"Name"`
	PostalAddress postalAddress `xml:"PostalAddress"`
	Email         string        `xml:"Email,omitempty"`
	Phone         *phone        `xml:"Phone,omitempty"`
}

type extrinsic struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type paymentTerm struct {
	PayInNumberOfDays int         `xml:"payInNumberOfDays,attr"`
	Extrinsics        []extrinsic `xml:"Extrinsic"`
}

type shipping struct {
	Money       money       `xml:"Money"`
	Description description `xml:"Description"`
}

type orderRequestHeader struct {
	OrderID      string      `xml:"orderID,attr"`
	OrderDate    string      `xml:"orderDate,attr"`
	OrderType    string      `xml:"orderType,attr"`
	OrderVersion string      `xml:"orderVersion,attr"`
	Type         string      `xml:"type,attr"`
	Total        money       `xml:"Total>Money"`
	ShipTo       cxmlAddress `xml:"ShipTo>Address"`
	BillTo       cxmlAddress `xml:"BillTo>Address"`
	Shipping     shipping    `xml:"Shipping"`
	PaymentTerm  paymentTerm `xml:"PaymentTerm"`
	Extrinsics   []extrinsic `xml:"Extrinsic"`
}

type classification struct {
	Domain string `xml:"domain,attr"`
	Value  string `xml:",chardata"`
}

type itemDetail struct {
	UnitPrice      money          `xml:"UnitPrice>Money"`
	Description    description    `xml:"Description"`
	UnitOfMeasure  string         `xml:"UnitOfMeasure"`
	Classification classification `xml:"Classification"`
	Extrinsics     []extrinsic    `xml:"Extrinsic,omitempty"`
}

type itemOut struct {
	LineNumber int        `xml:"lineNumber,attr"`
	Quantity   string     `xml:"quantity,attr"`
	ItemID     string     `xml:"ItemID>SupplierPartID"`
	Detail     itemDetail `xml:"ItemDetail"`
	Comments   string     `xml:"Comments,omitempty"`
}

type orderRequest struct {
	Header orderRequestHeader `xml:"OrderRequestHeader"`
	Items  []itemOut          `xml:"ItemOut"`
}

type cxmlRequest struct {
	DeploymentMode string       `xml:"deploymentMode,attr"`
	OrderRequest   orderRequest `xml:"OrderRequest"`
}

type cxmlDocument struct {
	XMLName   xml.Name    `xml:"cXML"`
	PayloadID string      `xml:"payloadID,attr"`
	Timestamp string      `xml:"timestamp,attr"`
	Version   string      `xml:"version,attr"`
	Header    cxmlHeader  `xml:"Header"`
	Request   cxmlRequest `xml:"Request"`
}

// BuildCXML renders a projection into the cXML order document. The
// function is pure: the same projection and settings always produce
// byte-identical output.
func BuildCXML(p *Projection, s BuilderSettings) ([]byte, error) {
	order := p.Order
	doc := cxmlDocument{
		PayloadID: PayloadID(order.CreatedAt, order.IncrementID, s.OrderIDPrefix),
		Timestamp: order.CreatedAt,
		Version:   cxmlVersion,
		Header:    buildHeader(s),
		Request: cxmlRequest{
			DeploymentMode: s.DeploymentMode,
			OrderRequest: orderRequest{
				Header: buildOrderHeader(p, s),
				Items:  buildItems(p, s),
			},
		},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cXML: %w", err)
	}

	var out strings.Builder
	out.WriteString(xml.Header)
	out.WriteString(cxmlDoctype)
	out.WriteByte('\n')
	out.Write(body)
	out.WriteByte('\n')
	return []byte(out.String()), nil
}

// PayloadID builds the stable document identifier:
// base64 of created_at with spaces removed, then "_@", the increment id
// and the deployment's order id prefix.
func PayloadID(createdAt, incrementID, prefix string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(strings.ReplaceAll(createdAt, " ", "")))
	return encoded + "_@" + incrementID + "_" + prefix
}

// FormatOrderID renders the ERP-side order identifier.
func FormatOrderID(incrementID, prefix string) string {
	return incrementID + "_" + prefix
}

func buildHeader(s BuilderSettings) cxmlHeader {
	return cxmlHeader{
		From: party{Credentials: []credential{
			{Domain: "NetworkId", Identity: "Adobe"},
			{Domain: "SystemID", Identity: "1"},
		}},
		To: party{Credentials: []credential{
			{Domain: "NetworkId", Identity: "Halo"},
			{Domain: "internalsupplierid", Identity: s.SupplierID},
			{Domain: "buyersystemid", Identity: s.BuyerSystemID},
		}},
		Sender: sender{
			Credential: credential{
				Domain:       "NetworkID",
				Identity:     s.SenderIdentity,
				SharedSecret: s.SharedSecret,
			},
			UserAgent: s.UserAgent,
		},
	}
}

func buildOrderHeader(p *Projection, s BuilderSettings) orderRequestHeader {
	order := p.Order
	currency := order.StoreCurrency

	header := orderRequestHeader{
		OrderID:      FormatOrderID(order.IncrementID, s.OrderIDPrefix),
		OrderDate:    order.CreatedAt,
		OrderType:    "regular",
		OrderVersion: "1",
		Type:         "new",
		Total:        money{Currency: currency, Amount: formatAmount(order.GrandTotal)},
		ShipTo:       buildAddress(p.ShipTo()),
		BillTo:       buildAddress(p.BillTo()),
		Shipping: shipping{
			Money:       money{Currency: currency, Amount: formatAmount(order.ShippingAmount)},
			Description: description{Lang: "en-US", Text: order.ShippingDesc},
		},
		PaymentTerm: paymentTerm{
			PayInNumberOfDays: s.PaymentTerm,
			Extrinsics: []extrinsic{
				{Name: "discountAmount", Value: formatAmount(order.DiscountAmount)},
				{Name: "couponCode", Value: order.CouponCode},
				{Name: "paymentMethod", Value: order.Payment.Method},
			},
		},
	}

	groupCode := p.GroupCode
	if groupCode == domain.GroupNotLoggedIn {
		groupCode = domain.GroupNonLoggedUser
	}
	header.Extrinsics = []extrinsic{
		{Name: "shippingMethodCode", Value: s.Methods.Resolve(order.ShippingMethod).Method},
		{Name: "costCenter", Value: order.Payment.AdditionalInfo.ExtShippingInfo},
		{Name: "giftWrapId", Value: strconv.Itoa(order.GiftWrapID)},
		{Name: "giftWrapPrice", Value: formatAmount(order.GiftWrapPrice)},
		{Name: "giftMessageId", Value: strconv.Itoa(order.GiftMessageID)},
		{Name: "customerGroup", Value: groupCode},
	}
	return header
}

func buildItems(p *Projection, s BuilderSettings) []itemOut {
	currency := p.Order.StoreCurrency
	items := make([]itemOut, 0, len(p.Lines))
	for _, line := range p.Lines {
		item := itemOut{
			LineNumber: line.LineNumber,
			Quantity:   formatQuantity(line.Quantity),
			ItemID:     line.SKU,
			Detail: itemDetail{
				UnitPrice:      money{Currency: currency, Amount: formatAmount(line.UnitPrice)},
				Description:    description{Lang: "en-US", Text: line.Name},
				UnitOfMeasure:  s.UnitOfMeasure,
				Classification: classification{Domain: "UNSPSC", Value: unspscCode},
			},
			Comments: line.Comments,
		}
		if line.BundleQty > 0 {
			item.Detail.Extrinsics = []extrinsic{
				{Name: "totalBundleQty", Value: formatQuantity(line.BundleQty)},
				{Name: "bundleRatio", Value: formatQuantity(line.BundleRatio)},
			}
		}
		items = append(items, item)
	}
	return items
}

func buildAddress(a domain.Address) cxmlAddress {
	fullName := strings.TrimSpace(a.Firstname + " " + a.Lastname)
	addr := cxmlAddress{
		Name: description{Lang: "en-US", Text: fullName},
		PostalAddress: postalAddress{
			DeliverTo:  fullName,
			Street:     streetLines(a.Street),
			City:       a.City,
			State:      stateCode(a),
			PostalCode: a.PostCode,
			Country:    country{ISOCountryCode: a.CountryID, Name: CountryName(a.CountryID)},
		},
		Email: a.Email,
	}
	if a.Telephone != "" {
		addr.Phone = &phone{
			Name: "work",
			Number: phoneNumber{
				CountryCode: "1",
				AreaOrCity:  cityAreaCode(a.City),
				Number:      a.Telephone,
			},
		}
	}
	return addr
}

func stateCode(a domain.Address) string {
	if a.RegionCode != "" {
		return a.RegionCode
	}
	return RegionCode(a.Region)
}

func streetLines(street string) []string {
	parts := strings.Split(street, "\n")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

// cityAreaCode synthesizes the phone areaOrCity field from the city's
// word initials, e.g. "San Jose" -> "SJ".
func cityAreaCode(city string) string {
	var b strings.Builder
	for _, word := range strings.Fields(city) {
		for _, r := range word {
			b.WriteRune(unicode.ToUpper(r))
			break
		}
	}
	return b.String()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
