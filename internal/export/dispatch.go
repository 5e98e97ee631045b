package export

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"halo-bridge/internal/commerce"
	"halo-bridge/internal/domain"
	"halo-bridge/internal/metrics"
	"halo-bridge/internal/state"
)

type orderUpdater interface {
	OrderStatusUpdate(ctx context.Context, entityID int64, state, status string, history commerce.StatusHistory) commerce.Result
	OrderCommentUpdate(ctx context.Context, entityID int64, history commerce.StatusHistory) commerce.Result
}

// DispatcherSettings are the ERP-side knobs of the dispatch flow.
type DispatcherSettings struct {
	Endpoint      string
	SuccessStatus string
	LogParams     bool
}

// Dispatcher runs the export flow: enrich, build cXML, persist audit
// artifacts, POST to the ERP and reflect the verdict back into commerce.
type Dispatcher struct {
	enricher *Enricher
	builder  BuilderSettings
	settings DispatcherSettings
	store    state.Store
	commerce orderUpdater
	http     *http.Client
	validate *validator.Validate
	log      *log.Logger
}

func NewDispatcher(enricher *Enricher, builder BuilderSettings, settings DispatcherSettings, store state.Store, updater orderUpdater, httpClient *http.Client, logger *log.Logger) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Dispatcher{
		enricher: enricher,
		builder:  builder,
		settings: settings,
		store:    store,
		commerce: updater,
		http:     httpClient,
		validate: validator.New(),
		log:      logger,
	}
}

// Task is a handle on a forked dispatch. Production callers detach;
// tests await the outcome.
type Task struct {
	done chan struct{}
	err  error
}

// Wait blocks until processing finishes and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Dispatch validates the order and forks the export flow. The returned
// Task outlives the caller's request context.
func (d *Dispatcher) Dispatch(ctx context.Context, order *domain.Order) (*Task, error) {
	if err := d.validate.Struct(order); err != nil {
		return nil, fmt.Errorf("invalid order: %w", err)
	}

	task := &Task{done: make(chan struct{})}
	detached := context.WithoutCancel(ctx)
	go func() {
		defer close(task.done)
		task.err = d.process(detached, order)
		if task.err != nil {
			d.log.Printf("order %s: export failed: %v", order.IncrementID, task.err)
		}
	}()
	return task, nil
}

func (d *Dispatcher) process(ctx context.Context, order *domain.Order) error {
	// audit writes are best-effort and always sequenced before the POST
	if d.settings.LogParams {
		if snapshot, err := json.Marshal(order); err == nil {
			if err := d.store.Put(ctx, state.KeyPushedParamPrefix+order.IncrementID, string(snapshot), state.TTLAudit); err != nil {
				d.log.Printf("order %s: persist params snapshot: %v", order.IncrementID, err)
			}
		}
	}

	projection, err := d.enricher.Enrich(ctx, order)
	if err != nil {
		metrics.ExportResults.WithLabelValues("failed").Inc()
		return err
	}
	payload, err := BuildCXML(projection, d.builder)
	if err != nil {
		metrics.ExportResults.WithLabelValues("failed").Inc()
		return err
	}
	if err := d.store.Put(ctx, state.KeyPushedXMLPrefix+order.IncrementID, string(payload), state.TTLAudit); err != nil {
		d.log.Printf("order %s: persist cXML artifact: %v", order.IncrementID, err)
	}

	status, err := d.post(ctx, payload)
	if err != nil {
		metrics.ExportResults.WithLabelValues("failed").Inc()
		return err
	}

	switch status.Code {
	case "200":
		if err := d.markAccepted(ctx, order); err != nil {
			metrics.ExportResults.WithLabelValues("failed").Inc()
			return err
		}
		metrics.ExportResults.WithLabelValues("accepted").Inc()
		return nil
	case "400":
		metrics.ExportResults.WithLabelValues("rejected").Inc()
		return fmt.Errorf("order %s rejected by fulfillment: %s", order.IncrementID, status.Reason())
	default:
		metrics.ExportResults.WithLabelValues("failed").Inc()
		return fmt.Errorf("order %s: unexpected fulfillment status %q", order.IncrementID, status.Code)
	}
}

type erpStatus struct {
	Code string `xml:"code,attr"`
	Text string `xml:"text,attr"`
	Body string `xml:",chardata"`
}

// Reason prefers the status text attribute, falling back to the element
// body.
func (s erpStatus) Reason() string {
	if s.Text != "" {
		return s.Text
	}
	return strings.TrimSpace(s.Body)
}

type erpReply struct {
	Status erpStatus `xml:"Response>Status"`
}

func (d *Dispatcher) post(ctx context.Context, payload []byte) (erpStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.settings.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return erpStatus{}, err
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := d.http.Do(req)
	if err != nil {
		return erpStatus{}, fmt.Errorf("post to fulfillment: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return erpStatus{}, err
	}

	var reply erpReply
	if err := xml.Unmarshal(body, &reply); err != nil || reply.Status.Code == "" {
		return erpStatus{}, errors.New("Invalid response format")
	}
	return reply.Status, nil
}

func (d *Dispatcher) markAccepted(ctx context.Context, order *domain.Order) error {
	orderID := FormatOrderID(order.IncrementID, d.builder.OrderIDPrefix)
	res := d.commerce.OrderStatusUpdate(ctx, order.EntityID, order.State, d.settings.SuccessStatus, commerce.StatusHistory{
		Comment: fmt.Sprintf("Order %s accepted by fulfillment", orderID),
	})
	if !res.Success {
		return fmt.Errorf("order %s: status update: %s", order.IncrementID, res.Message)
	}

	if cc := order.Payment.AdditionalInfo.ExtShippingInfo; cc != "" {
		res := d.commerce.OrderCommentUpdate(ctx, order.EntityID, commerce.StatusHistory{
			Comment:          "Cost Center Number: " + cc,
			IsVisibleOnFront: 0,
		})
		if !res.Success {
			d.log.Printf("order %s: cost center comment: %s", order.IncrementID, res.Message)
		}
	}
	return nil
}
