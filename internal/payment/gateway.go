package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"griff_shop/internal/apperr"
)

const maxGatewayBody = 1 << 20

// ConfirmRequest is the body posted to the gateway confirm endpoint.
type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// Approval is the accepted confirmation.
type Approval struct {
	PaymentKey string
	Method     string
	Status     string
	ApprovedAt *time.Time
}

// Gateway confirms a payment with the external provider.
type Gateway interface {
	Confirm(ctx context.Context, req ConfirmRequest) (Approval, error)
}

// TossClient talks to a Toss Payments compatible confirm API.
type TossClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewTossClient builds a client; timeout bounds every gateway call.
func NewTossClient(baseURL, secret string, timeout time.Duration) *TossClient {
	return &TossClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}
}

type approvalBody struct {
	PaymentKey string `json:"paymentKey"`
	Method     string `json:"method"`
	Status     string `json:"status"`
	ApprovedAt string `json:"approvedAt"`
}

type failureBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Confirm POSTs {paymentKey, orderId, amount} with HTTP Basic auth "<secret>:".
func (c *TossClient) Confirm(ctx context.Context, req ConfirmRequest) (Approval, error) {
	if c.secret == "" {
		return Approval{}, apperr.New(apperr.CodeGatewayMisconfigured, "payment gateway is not configured").
			WithOp("payment.gateway")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Approval{}, apperr.Internal("payment.gateway", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/confirm", bytes.NewReader(payload))
	if err != nil {
		return Approval{}, apperr.Wrap(apperr.CodeGatewayMisconfigured, err, "invalid gateway url").WithOp("payment.gateway")
	}
	httpReq.SetBasicAuth(c.secret, "")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Approval{}, apperr.Wrap(apperr.CodeGatewayUnavailable, err, "payment gateway unreachable").WithOp("payment.gateway")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if err != nil {
		return Approval{}, apperr.Wrap(apperr.CodeGatewayUnavailable, err, "read gateway response").WithOp("payment.gateway")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var fail failureBody
		_ = json.Unmarshal(body, &fail)
		msg := fail.Message
		if msg == "" {
			msg = fmt.Sprintf("payment gateway rejected the confirmation (status %d)", resp.StatusCode)
		}
		return Approval{}, apperr.New(apperr.CodeGatewayRejected, msg).
			WithOp("payment.gateway").
			WithStatus(resp.StatusCode).
			WithDetails(map[string]any{
				"gateway_code":    fail.Code,
				"gateway_message": fail.Message,
				"gateway_status":  resp.StatusCode,
			})
	}

	var ok approvalBody
	if err := json.Unmarshal(body, &ok); err != nil {
		return Approval{}, apperr.Wrap(apperr.CodeGatewayUnavailable, err, "malformed gateway response").WithOp("payment.gateway")
	}
	out := Approval{PaymentKey: ok.PaymentKey, Method: ok.Method, Status: ok.Status}
	if ok.ApprovedAt != "" {
		if t, err := time.Parse(time.RFC3339, ok.ApprovedAt); err == nil {
			out.ApprovedAt = &t
		}
	}
	return out, nil
}
