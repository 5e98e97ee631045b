package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"halo-bridge/internal/domain"
	"halo-bridge/internal/metrics"
	"halo-bridge/internal/shipping"
	"halo-bridge/internal/tax"
	"halo-bridge/internal/webhook"
)

// exceptionClass is the platform exception type tag webhook replies carry.
const exceptionClass = `Magento\Framework\Exception\LocalizedException`

const rawBodyKey = "rawBody"

// signatureMiddleware verifies the webhook signature over the raw body
// and stashes the body for the handler. Verification failures still
// answer HTTP 200, with an exception body, per the platform contract.
func signatureMiddleware(verifier *webhook.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil || len(body) == 0 {
			c.AbortWithStatusJSON(http.StatusOK, domain.Exception(exceptionClass, "Empty webhook request"))
			return
		}
		if err := verifier.Verify(body, c.GetHeader(webhook.SignatureHeader)); err != nil {
			c.AbortWithStatusJSON(http.StatusOK, domain.Exception(exceptionClass, "Webhook signature could not be verified"))
			return
		}
		c.Set(rawBodyKey, body)
		c.Next()
	}
}

func rawBody(c *gin.Context) []byte {
	body, _ := c.MustGet(rawBodyKey).([]byte)
	return body
}

func shippingRatesHandler(rates rateQuoter, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload struct {
			RateRequest shipping.RateRequest `json:"rateRequest"`
		}
		if err := webhook.Decode(rawBody(c), &payload); err != nil {
			metrics.WebhookRequests.WithLabelValues("shipping-rates", "exception").Inc()
			c.JSON(http.StatusOK, domain.Exception(exceptionClass, "Malformed rate request"))
			return
		}

		ops, err := rates.Quote(c.Request.Context(), payload.RateRequest)
		if err != nil {
			metrics.WebhookRequests.WithLabelValues("shipping-rates", "exception").Inc()
			var restricted *domain.RestrictionError
			if errors.As(err, &restricted) {
				msg := fmt.Sprintf("The following items cannot be shipped to %s: %s",
					restricted.Country, strings.Join(restricted.SKUs, ", "))
				c.JSON(http.StatusOK, domain.Exception(exceptionClass, msg))
				return
			}
			logger.Printf("shipping-rates: %v", err)
			c.JSON(http.StatusOK, domain.Exception(exceptionClass, "Unable to retrieve shipping rates"))
			return
		}

		metrics.WebhookRequests.WithLabelValues("shipping-rates", "success").Inc()
		if len(ops) == 0 {
			c.JSON(http.StatusOK, domain.Success())
			return
		}
		c.JSON(http.StatusOK, ops)
	}
}

func collectTaxesHandler(taxes taxCollector, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload struct {
			Quote *tax.Quote `json:"quote"`
		}
		if err := webhook.Decode(rawBody(c), &payload); err != nil || payload.Quote == nil {
			metrics.WebhookRequests.WithLabelValues("collect-taxes", "exception").Inc()
			c.JSON(http.StatusOK, domain.Exception(exceptionClass, "Malformed tax quote"))
			return
		}

		ops, err := taxes.Collect(c.Request.Context(), payload.Quote)
		if err != nil {
			metrics.WebhookRequests.WithLabelValues("collect-taxes", "exception").Inc()
			logger.Printf("collect-taxes: %v", err)
			c.JSON(http.StatusOK, domain.Exception(exceptionClass, "Unable to calculate taxes for this order. Please try again."))
			return
		}

		metrics.WebhookRequests.WithLabelValues("collect-taxes", "success").Inc()
		if len(ops) == 0 {
			c.JSON(http.StatusOK, domain.Success())
			return
		}
		c.JSON(http.StatusOK, ops)
	}
}

func validateQuoteHandler(groups groupResolver, rules QuoteRules, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload struct {
			Quote struct {
				CustomerGroupID int                  `json:"customer_group_id"`
				GiftCards       json.RawMessage      `json:"gift_cards"`
				CouponCode      string               `json:"coupon_code"`
				Items           []shipping.QuoteItem `json:"items"`
			} `json:"quote"`
		}
		if err := webhook.Decode(rawBody(c), &payload); err != nil {
			metrics.WebhookRequests.WithLabelValues("validate-quote", "exception").Inc()
			c.JSON(http.StatusOK, domain.Exception(exceptionClass, "Malformed quote"))
			return
		}

		groupCode := ""
		if groups != nil {
			code, err := groups.Resolve(c.Request.Context(), payload.Quote.CustomerGroupID)
			if err != nil {
				logger.Printf("validate-quote: resolve group %d: %v", payload.Quote.CustomerGroupID, err)
			} else {
				groupCode = code
			}
		}

		// employee-only product gating
		if sku := employeeOnlySKU(payload.Quote.Items, rules.EmployeeSKUs); sku != "" && !strings.EqualFold(groupCode, rules.EmployeeGroup) {
			metrics.WebhookRequests.WithLabelValues("validate-quote", "exception").Inc()
			c.JSON(http.StatusOK, domain.Exception(exceptionClass, "This product can only be purchased by Adobe employees"))
			return
		}

		// purchase-order carts may not combine gift cards or coupons
		var ops []domain.Operation
		if strings.EqualFold(groupCode, rules.POGroup) {
			if present(payload.Quote.GiftCards) {
				ops = append(ops, domain.Replace("result/gift_cards", json.RawMessage("null")))
			}
			if payload.Quote.CouponCode != "" {
				ops = append(ops, domain.Replace("result/coupon_code", json.RawMessage("null")))
			}
		}

		metrics.WebhookRequests.WithLabelValues("validate-quote", "success").Inc()
		if len(ops) == 0 {
			c.JSON(http.StatusOK, domain.Success())
			return
		}
		c.JSON(http.StatusOK, ops)
	}
}

func employeeOnlySKU(items []shipping.QuoteItem, employeeSKUs []string) string {
	for _, item := range items {
		for _, sku := range employeeSKUs {
			if item.SKU == sku {
				return sku
			}
		}
	}
	return ""
}

func present(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != "[]"
}

// orderExportHandler accepts a saved order, acknowledges immediately and
// forks the export pipeline. Errors use the uniform action envelope.
func orderExportHandler(d orderDispatcher, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var order domain.Order
		if err := c.ShouldBindJSON(&order); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "statusCode": 400, "error": "malformed order payload"})
			return
		}

		if _, err := d.Dispatch(c.Request.Context(), &order); err != nil {
			logger.Printf("order export: %v", err)
			c.JSON(http.StatusOK, gin.H{"success": false, "statusCode": 400, "error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "statusCode": 200, "message": "order accepted for export"})
	}
}
