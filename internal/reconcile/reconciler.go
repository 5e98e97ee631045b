package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"halo-bridge/internal/commerce"
	"halo-bridge/internal/domain"
	"halo-bridge/internal/export"
	"halo-bridge/internal/metrics"
)

type commerceAPI interface {
	GetOrders(ctx context.Context, pageSize int) commerce.Result
	OrderStatusUpdate(ctx context.Context, entityID int64, state, status string, history commerce.StatusHistory) commerce.Result
	InvoiceOrder(ctx context.Context, entityID int64) commerce.Result
	ShipmentOrder(ctx context.Context, entityID int64, tracks []commerce.Track, comment string) commerce.Result
}

type auditPurger interface {
	Purge(ctx context.Context) (int64, error)
}

// Settings configure one reconciliation pass.
type Settings struct {
	PageSize       int
	StatusEndpoint string
	AuthToken      string
	OrderIDPrefix  string
	TimeZone       string
	// ERPRequestsPerSecond bounds the tracking polls; zero means 2/s.
	ERPRequestsPerSecond float64
}

// transition is the commerce status/state pair an ERP status maps to.
type transition struct {
	Status string
	State  string
	// Fulfil marks the ERP statuses that create invoices and shipments.
	Fulfil bool
}

// erpTransitions maps ERP statuses (lower-cased) to commerce transitions.
var erpTransitions = map[string]transition{
	"posted":      {Status: "shipped", State: "complete", Fulfil: true},
	"shipped":     {Status: "shipped", State: "complete", Fulfil: true},
	"cancelled":   {Status: "canceled", State: "canceled"},
	"active":      {Status: "processing", State: "processing"},
	"in progress": {Status: "processing", State: "processing"},
}

// openOrder is the slice of the commerce order the reconciler needs.
type openOrder struct {
	EntityID    int64  `json:"entity_id"`
	IncrementID string `json:"increment_id"`
	State       string `json:"state"`
	Status      string `json:"status"`
	Payment     struct {
		Method string `json:"method"`
	} `json:"payment"`
}

type trackingDetail struct {
	CarrierCode string `json:"carrier_code"`
	TrackingNo  string `json:"tracking_no"`
	TrackingURL string `json:"tracking_url"`
	OrderStatus string `json:"order_status"`
}

type trackingReply struct {
	Success         bool             `json:"success"`
	OrderID         string           `json:"order_id"`
	Status          string           `json:"status"`
	TrackingDetails []trackingDetail `json:"tracking_details"`
}

// Reconciler polls the ERP for every open order and reflects the ERP
// status back into commerce, creating invoices and shipments on
// fulfilment. Orders are processed sequentially to bound ERP load.
type Reconciler struct {
	api      commerceAPI
	purger   auditPurger
	settings Settings
	limiter  *rate.Limiter
	http     *http.Client
	location *time.Location
	log      *log.Logger
}

func New(api commerceAPI, purger auditPurger, settings Settings, httpClient *http.Client, logger *log.Logger) (*Reconciler, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	loc, err := time.LoadLocation(settings.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", settings.TimeZone, err)
	}
	rps := settings.ERPRequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Reconciler{
		api:      api,
		purger:   purger,
		settings: settings,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		http:     httpClient,
		location: loc,
		log:      logger,
	}, nil
}

// Run executes one reconciliation pass.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.purger != nil {
		if n, err := r.purger.Purge(ctx); err != nil {
			r.log.Printf("purge expired audit rows: %v", err)
		} else if n > 0 {
			r.log.Printf("purged %d expired audit rows", n)
		}
	}

	res := r.api.GetOrders(ctx, r.settings.PageSize)
	if !res.Success {
		return fmt.Errorf("list open orders: %s", res.Message)
	}
	var page struct {
		Items []openOrder `json:"items"`
	}
	if err := json.Unmarshal(res.Body, &page); err != nil {
		return fmt.Errorf("decode open orders: %w", err)
	}

	for _, order := range page.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.reconcileOrder(ctx, order); err != nil {
			r.log.Printf("order %s: %v", order.IncrementID, err)
		}
	}
	return nil
}

func (r *Reconciler) reconcileOrder(ctx context.Context, order openOrder) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	tracking, err := r.fetchTracking(ctx, order.IncrementID)
	if err != nil {
		// the ERP answers 404 until the export lands; try again next tick
		if domain.StatusOf(err) == http.StatusNotFound {
			r.log.Printf("order %s: not at fulfillment yet", order.IncrementID)
			return nil
		}
		return err
	}
	if !tracking.Success {
		return nil // not known to the ERP yet
	}

	target, ok := erpTransitions[strings.ToLower(strings.TrimSpace(tracking.Status))]
	if !ok {
		r.log.Printf("order %s: unmapped fulfillment status %q", order.IncrementID, tracking.Status)
		return nil
	}

	if !strings.EqualFold(order.Status, target.Status) {
		stamp := time.Now().In(r.location).Format("2006-01-02 15:04:05 MST")
		res := r.api.OrderStatusUpdate(ctx, order.EntityID, target.State, target.Status, commerce.StatusHistory{
			Comment: fmt.Sprintf("Fulfillment status %s; order moved to %s at %s", tracking.Status, target.Status, stamp),
		})
		if !res.Success {
			return fmt.Errorf("status update to %s: %s", target.Status, res.Message)
		}
		metrics.ReconcilerTransitions.WithLabelValues(target.Status).Inc()
	}

	if target.Fulfil {
		return r.fulfil(ctx, order, tracking)
	}
	return nil
}

// fulfil creates the invoice and/or shipment the payment method calls
// for. Invoice and shipment run in parallel and both must finish before
// the order counts as reconciled.
func (r *Reconciler) fulfil(ctx context.Context, order openOrder, tracking *trackingReply) error {
	invoice, ship := fulfilmentPlan(order.Payment.Method, order.State)

	var (
		wg         sync.WaitGroup
		invoiceErr error
		shipErr    error
	)
	if invoice {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := r.api.InvoiceOrder(ctx, order.EntityID); !res.Success {
				invoiceErr = fmt.Errorf("invoice: %s", res.Message)
			}
		}()
	}
	if ship {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shipErr = r.ship(ctx, order, tracking)
		}()
	}
	wg.Wait()

	if invoiceErr != nil {
		return invoiceErr
	}
	return shipErr
}

// fulfilmentPlan decides which of invoice/ship apply for a payment
// method. Authorize.net orders in processing were invoiced at capture.
func fulfilmentPlan(paymentMethod, orderState string) (invoice, ship bool) {
	switch {
	case paymentMethod == "purchaseorder":
		return true, true
	case paymentMethod == "authorizenet" && strings.EqualFold(orderState, "processing"):
		return false, true
	default:
		return true, true
	}
}

func (r *Reconciler) ship(ctx context.Context, order openOrder, tracking *trackingReply) error {
	if len(tracking.TrackingDetails) == 0 {
		return fmt.Errorf("ship: no tracking details")
	}

	// the first entry is authoritative; extras go into the comment
	first := tracking.TrackingDetails[0]
	tracks := []commerce.Track{{
		CarrierCode: first.CarrierCode,
		Title:       first.CarrierCode,
		TrackNumber: first.TrackingNo,
	}}

	comment := first.TrackingURL
	if extra := tracking.TrackingDetails[1:]; len(extra) > 0 {
		parts := make([]string, 0, len(extra))
		for _, d := range extra {
			parts = append(parts, fmt.Sprintf("%s %s", d.CarrierCode, d.TrackingNo))
		}
		comment = strings.TrimSpace(comment + " Additional packages: " + strings.Join(parts, ", "))
	}

	if res := r.api.ShipmentOrder(ctx, order.EntityID, tracks, comment); !res.Success {
		return fmt.Errorf("ship: %s", res.Message)
	}
	return nil
}

func (r *Reconciler) fetchTracking(ctx context.Context, incrementID string) (*trackingReply, error) {
	orderID := export.FormatOrderID(incrementID, r.settings.OrderIDPrefix)
	endpoint := r.settings.StatusEndpoint + "tracking/get?order_id=" + url.QueryEscape(orderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", r.settings.AuthToken)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tracking: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Message: "tracking endpoint"}
	}

	var reply trackingReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode tracking reply: %w", err)
	}
	return &reply, nil
}
