package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"halo-bridge/internal/domain"
	"halo-bridge/internal/metrics"
	"halo-bridge/internal/state"
)

// SurepostServiceCode is the UPS service code for SurePost / ground saver.
const SurepostServiceCode = "92"

// UPSConfig wires the UPS endpoints and pricing knobs.
type UPSConfig struct {
	ServiceDomain       string
	RateEndpoint        string
	SurepostEndpoint    string
	ClientID            string
	ClientSecret        string
	ShipperNumber       string
	RequestOption       string
	DomesticPayPct      float64
	InternationalPayPct float64
	CacheSalt           string
}

// UPS quotes UPS Rating plus SurePost. Rates are cached for five minutes
// keyed by destination and weight; the OAuth token lives in the state
// store and is refreshed on expiry or 401.
type UPS struct {
	cfg    UPSConfig
	http   *http.Client
	store  state.Store
	logger *log.Logger
}

func NewUPS(cfg UPSConfig, httpClient *http.Client, store state.Store, logger *log.Logger) *UPS {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &UPS{cfg: cfg, http: httpClient, store: store, logger: logger}
}

func (s *UPS) Name() string { return "ups" }

func (s *UPS) Quote(ctx context.Context, req *Request) ([]domain.Operation, error) {
	cacheKey := state.RateCacheKey(req.DestCountryID, req.DestPostcode, req.DestRegionID, req.PackageWeight, s.cfg.CacheSalt)
	if raw, ok, _ := s.store.Get(ctx, cacheKey); ok {
		metrics.RateCacheHits.Inc()
		return decodeOps(raw)
	}
	metrics.RateCacheMisses.Inc()

	token, err := s.token(ctx, false)
	if err != nil {
		return nil, err
	}

	type rateOutcome struct {
		shipments []ratedShipment
		err       error
	}
	var (
		wg       sync.WaitGroup
		rating   rateOutcome
		surepost rateOutcome
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rating.shipments, rating.err = s.rate(ctx, token, s.cfg.RateEndpoint, req, "")
	}()
	go func() {
		defer wg.Done()
		surepost.shipments, surepost.err = s.rate(ctx, token, s.cfg.SurepostEndpoint, req, SurepostServiceCode)
	}()
	wg.Wait()

	// a 401 on either leg means the cached token died early; refresh once
	if errors.Is(rating.err, domain.ErrUnauthorized) || errors.Is(surepost.err, domain.ErrUnauthorized) {
		token, err = s.token(ctx, true)
		if err != nil {
			return nil, err
		}
		if errors.Is(rating.err, domain.ErrUnauthorized) {
			rating.shipments, rating.err = s.rate(ctx, token, s.cfg.RateEndpoint, req, "")
		}
		if errors.Is(surepost.err, domain.ErrUnauthorized) {
			surepost.shipments, surepost.err = s.rate(ctx, token, s.cfg.SurepostEndpoint, req, SurepostServiceCode)
		}
	}
	if rating.err != nil {
		return nil, rating.err
	}
	if surepost.err != nil && s.logger != nil {
		s.logger.Printf("shipping: surepost quote failed: %v", surepost.err)
	}

	ops := s.buildOps(req, rating.shipments, surepost.shipments)

	if encoded, encErr := encodeOps(ops); encErr == nil {
		// stale-for-up-to-5-minutes is accepted by callers
		_ = s.store.Put(ctx, cacheKey, encoded, state.TTLRateCache)
	}
	return ops, nil
}

// buildOps maps rated shipments to platform operations, applying the
// service-code table and the pay percentage.
func (s *UPS) buildOps(req *Request, rated, surepost []ratedShipment) []domain.Operation {
	pct := s.cfg.InternationalPayPct
	if req.DestCountryID == "US" {
		pct = s.cfg.DomesticPayPct
	}

	var ops []domain.Operation
	for _, shipment := range rated {
		method, ok := domain.UPSServiceMethods[shipment.Service.Code]
		if !ok {
			continue
		}
		if shipment.Service.Code == "65" && req.DestCountryID != "MX" && req.DestCountryID != "CA" {
			continue
		}
		ops = append(ops, AddRate(RateValue{
			CarrierCode:  "UPS",
			Method:       method,
			CarrierTitle: "UPS",
			MethodTitle:  serviceTitle(shipment.Service.Code),
			Price:        applyPct(shipment.TotalCharges.MonetaryValue, pct),
			Cost:         applyPct(shipment.TotalCharges.MonetaryValue, pct),
		}))
	}

	for _, shipment := range surepost {
		if shipment.Service.Code != SurepostServiceCode {
			continue
		}
		ops = append(ops, AddRate(RateValue{
			CarrierCode:  "UPS",
			Method:       domain.UPSServiceMethods[SurepostServiceCode],
			CarrierTitle: "UPS",
			MethodTitle:  "UPS Ground Saver",
			Price:        applyPct(shipment.TotalCharges.MonetaryValue, pct),
			Cost:         applyPct(shipment.TotalCharges.MonetaryValue, pct),
		}))
		break
	}
	return ops
}

// applyPct multiplies a monetary string by a percentage, rounding to cents.
func applyPct(monetary string, pct float64) float64 {
	value, err := decimal.NewFromString(monetary)
	if err != nil {
		return 0
	}
	out, _ := value.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Round(2).Float64()
	return out
}

func serviceTitle(code string) string {
	titles := map[string]string{
		"01": "UPS Next Day Air",
		"02": "UPS 2nd Day Air",
		"03": "UPS Ground",
		"07": "UPS Worldwide Express",
		"08": "UPS Worldwide Expedited",
		"12": "UPS 3 Day Select",
		"65": "UPS Worldwide Saver",
		"92": "UPS Ground Saver",
	}
	if t, ok := titles[code]; ok {
		return t
	}
	return "UPS " + code
}

type upsToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// token returns a valid OAuth token, refreshing when forced or on a cache
// miss. Concurrent refreshes are last-writer-wins; tokens stay valid until
// issuer expiry, so the race is benign.
func (s *UPS) token(ctx context.Context, force bool) (string, error) {
	if !force {
		if cached, ok, _ := s.store.Get(ctx, state.KeyUPSToken); ok {
			return cached, nil
		}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.cfg.ServiceDomain, "/")+"/security/v1/oauth/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ups oauth: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ups oauth: status %d", resp.StatusCode)
	}

	var tok upsToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("ups oauth: decode: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("ups oauth: empty access token")
	}

	ttl := time.Hour
	if secs, convErr := strconv.Atoi(tok.ExpiresIn); convErr == nil {
		ttl = time.Duration(secs)*time.Second - state.TokenSafety
	}
	if ttl > 0 {
		_ = s.store.Put(ctx, state.KeyUPSToken, tok.AccessToken, ttl)
	}
	return tok.AccessToken, nil
}

type ratedShipment struct {
	Service struct {
		Code string `json:"Code"`
	} `json:"Service"`
	TotalCharges struct {
		CurrencyCode  string `json:"CurrencyCode"`
		MonetaryValue string `json:"MonetaryValue"`
	} `json:"TotalCharges"`
}

type rateResponse struct {
	RateResponse struct {
		RatedShipment json.RawMessage `json:"RatedShipment"`
	} `json:"RateResponse"`
}

// rate posts the fixed weight-only package template to a rating endpoint.
// serviceCode is set only for the SurePost leg.
func (s *UPS) rate(ctx context.Context, token, endpoint string, r *Request, serviceCode string) ([]ratedShipment, error) {
	if endpoint == "" {
		return nil, nil
	}

	shipment := map[string]interface{}{
		"Shipper": map[string]interface{}{
			"ShipperNumber": s.cfg.ShipperNumber,
		},
		"ShipTo": map[string]interface{}{
			"Address": map[string]interface{}{
				"City":              "",
				"StateProvinceCode": r.DestRegionID,
				"PostalCode":        r.DestPostcode,
				"CountryCode":       r.DestCountryID,
			},
		},
		"Package": map[string]interface{}{
			"PackagingType": map[string]string{"Code": "02"},
			"PackageWeight": map[string]string{
				"UnitOfMeasurement": "LBS",
				"Weight":            strconv.FormatFloat(r.PackageWeight, 'f', -1, 64),
			},
		},
	}
	if serviceCode != "" {
		shipment["Service"] = map[string]string{"Code": serviceCode}
	}

	payload := map[string]interface{}{
		"RateRequest": map[string]interface{}{
			"Request":  map[string]string{"RequestOption": s.cfg.RequestOption},
			"Shipment": shipment,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ups rate: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, domain.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ups rate: status %d", resp.StatusCode)
	}

	var decoded rateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("ups rate: decode: %w", err)
	}
	return decodeRatedShipments(decoded.RateResponse.RatedShipment)
}

// decodeRatedShipments accepts both the single-object and the array form
// UPS uses for RatedShipment.
func decodeRatedShipments(raw json.RawMessage) ([]ratedShipment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var many []ratedShipment
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one ratedShipment
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("decode rated shipment: %w", err)
	}
	return []ratedShipment{one}, nil
}
