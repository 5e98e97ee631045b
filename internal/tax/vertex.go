package tax

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"halo-bridge/internal/domain"
)

// SOAPAction for Vertex quotation requests.
const vertexSOAPAction = "CalculateTax90"

// VertexSeller is the fixed seller origin for quotation requests.
type VertexSeller struct {
	Company    string
	Street     string
	City       string
	MainDiv    string
	PostalCode string
}

// Vertex calculates US tax through the Vertex SOAP quotation endpoint.
type Vertex struct {
	endpoint     string
	trustedID    string
	seller       VertexSeller
	productCodes map[string]string
	http         *http.Client
}

func NewVertex(endpoint, trustedID string, seller VertexSeller, productCodes map[string]string, httpClient *http.Client) *Vertex {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Vertex{
		endpoint:     endpoint,
		trustedID:    trustedID,
		seller:       seller,
		productCodes: productCodes,
		http:         httpClient,
	}
}

// productCode maps a tax class to its Vertex product class, default 000.
func (v *Vertex) productCode(taxClass string) string {
	if code, ok := v.productCodes[taxClass]; ok && code != "" {
		return code
	}
	return "000"
}

func (v *Vertex) Calculate(ctx context.Context, quote *Quote) ([]domain.Operation, error) {
	envelope := v.buildEnvelope(quote)
	payload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	body := append([]byte(xml.Header), payload...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", vertexSOAPAction)

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var decoded vertexResponse
	if err := xml.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.New("Invalid response format")
	}

	return buildVertexOps(quote, decoded.LineItems())
}

// soap envelope types

type soapEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	NSSoap  string   `xml:"xmlns:soapenv,attr"`
	NSVtx   string   `xml:"xmlns:ns1,attr"`
	Header  struct{} `xml:"soapenv:Header"`
	Body    soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Envelope vertexEnvelope `xml:"ns1:VertexEnvelope"`
}

type vertexEnvelope struct {
	Login   vertexLogin   `xml:"ns1:Login"`
	Request vertexRequest `xml:"ns1:QuotationRequest"`
}

type vertexLogin struct {
	TrustedID string `xml:"ns1:TrustedId"`
}

type vertexRequest struct {
	DocumentDate string           `xml:"documentDate,attr"`
	Transaction  string           `xml:"transactionType,attr"`
	Seller       vertexSellerXML  `xml:"ns1:Seller"`
	Customer     vertexCustomer   `xml:"ns1:Customer"`
	Lines        []vertexLineItem `xml:"ns1:LineItem"`
}

type vertexSellerXML struct {
	Company string        `xml:"ns1:Company"`
	Origin  vertexAddress `xml:"ns1:PhysicalOrigin"`
}

type vertexCustomer struct {
	Destination vertexAddress `xml:"ns1:Destination"`
}

type vertexAddress struct {
	Street       string `xml:"ns1:StreetAddress1"`
	City         string `xml:"ns1:City"`
	MainDivision string `xml:"ns1:MainDivision"`
	PostalCode   string `xml:"ns1:PostalCode"`
	Country      string `xml:"ns1:Country"`
}

type vertexLineItem struct {
	LineItemNumber string  `xml:"lineItemNumber,attr"`
	Product        product `xml:"ns1:Product"`
	Quantity       float64 `xml:"ns1:Quantity"`
	ExtendedPrice  float64 `xml:"ns1:ExtendedPrice"`
}

type product struct {
	ProductClass string `xml:"productClass,attr"`
	Value        string `xml:",chardata"`
}

func (v *Vertex) buildEnvelope(quote *Quote) soapEnvelope {
	req := vertexRequest{
		DocumentDate: time.Now().UTC().Format("2006-01-02"),
		Transaction:  "SALE",
		Seller: vertexSellerXML{
			Company: v.seller.Company,
			Origin: vertexAddress{
				Street:       v.seller.Street,
				City:         v.seller.City,
				MainDivision: v.seller.MainDiv,
				PostalCode:   v.seller.PostalCode,
				Country:      "US",
			},
		},
		Customer: vertexCustomer{
			Destination: vertexAddress{
				Street:       quote.ShipTo.FirstStreetLine(),
				City:         quote.ShipTo.City,
				MainDivision: quote.ShipTo.RegionCode,
				PostalCode:   quote.ShipTo.PostCode,
				Country:      quote.ShipTo.CountryID,
			},
		},
	}
	for _, line := range quote.Items {
		req.Lines = append(req.Lines, vertexLineItem{
			LineItemNumber: line.Code,
			Product:        product{ProductClass: v.productCode(line.TaxClass), Value: line.SKU},
			Quantity:       line.Quantity,
			ExtendedPrice:  line.RowTotal,
		})
	}
	return soapEnvelope{
		NSSoap: "http://schemas.xmlsoap.org/soap/envelope/",
		NSVtx:  "urn:vertexinc:o-series:tps:9:0",
		Body:   soapBody{Envelope: vertexEnvelope{Login: vertexLogin{TrustedID: v.trustedID}, Request: req}},
	}
}

// response types; element matching is by local name so namespace prefixes
// in the reply do not matter

type vertexResponse struct {
	Response struct {
		Lines []vertexResponseLine `xml:"QuotationResponse>LineItem"`
	} `xml:"Body>VertexEnvelope"`
}

func (r vertexResponse) LineItems() []vertexResponseLine {
	return r.Response.Lines
}

type vertexResponseLine struct {
	LineItemNumber string      `xml:"lineItemNumber,attr"`
	TotalTax       float64     `xml:"TotalTax"`
	Taxes          []vertexTax `xml:"Taxes"`
}

type vertexTax struct {
	EffectiveRate float64            `xml:"EffectiveRate"`
	CalculatedTax float64            `xml:"CalculatedTax"`
	Jurisdiction  vertexJurisdiction `xml:"Jurisdiction"`
}

type vertexJurisdiction struct {
	Level string `xml:"jurisdictionLevel,attr"`
	ID    string `xml:"jurisdictionId,attr"`
	Name  string `xml:",chardata"`
}

// buildVertexOps emits one tax replace per quote line plus breakdown adds
// deduplicated by (jurisdictionLevel, jurisdictionId).
func buildVertexOps(quote *Quote, lines []vertexResponseLine) ([]domain.Operation, error) {
	byCode := make(map[string]Line, len(quote.Items))
	for _, item := range quote.Items {
		byCode[item.Code] = item
	}

	var ops []domain.Operation
	for _, line := range lines {
		item, ok := byCode[line.LineItemNumber]
		if !ok {
			continue
		}

		rate := 0.0
		base := decimal.NewFromFloat(item.Quantity).Mul(decimal.NewFromFloat(item.UnitPrice))
		if !base.IsZero() {
			rate, _ = decimal.NewFromFloat(line.TotalTax).
				Div(base).
				Mul(decimal.NewFromInt(100)).
				Round(2).
				Float64()
		}
		amount, _ := decimal.NewFromFloat(line.TotalTax).Round(2).Float64()

		ops = append(ops, domain.Replace(
			"result/items/"+line.LineItemNumber+"/tax",
			TaxValue{Rate: rate, Amount: amount},
		))

		seen := make(map[string]bool)
		for _, tax := range line.Taxes {
			key := tax.Jurisdiction.Level + "|" + tax.Jurisdiction.ID
			if seen[key] {
				continue
			}
			seen[key] = true
			breakdownRate, _ := decimal.NewFromFloat(tax.EffectiveRate).Mul(decimal.NewFromInt(100)).Round(4).Float64()
			breakdownAmount, _ := decimal.NewFromFloat(tax.CalculatedTax).Round(2).Float64()
			ops = append(ops, domain.Add(
				"result/items/"+line.LineItemNumber+"/tax_breakdown",
				Breakdown{
					Code:   tax.Jurisdiction.Level,
					Title:  tax.Jurisdiction.Name,
					Rate:   breakdownRate,
					Amount: breakdownAmount,
				},
				"",
			))
		}
	}
	return ops, nil
}
