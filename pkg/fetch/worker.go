package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/ledgerline/mp-resolve/pkg/retry"
)

// Prometheus metrics for API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolve_requests_total",
		Help: "Total payment API requests by result status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resolve_request_duration_seconds",
		Help:    "Payment API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// Worker resolves payment identifiers one at a time. It owns its HTTP
// client exclusively; the dispatch engine creates one Worker per
// concurrent slot and never shares them.
type Worker struct {
	client  *http.Client
	policy  retry.Policy
	baseURL string
	clock   quartz.Clock
	logger  zerolog.Logger
}

// NewWorker creates a worker around its own client. baseURL is the
// payments endpoint without a trailing slash, e.g.
// "https://api.mercadopago.com/v1/payments".
func NewWorker(client *http.Client, policy retry.Policy, baseURL string, logger zerolog.Logger) *Worker {
	return &Worker{
		client:  client,
		policy:  policy,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		clock:   quartz.NewReal(),
		logger:  logger,
	}
}

// SetClock replaces the backoff clock (for testing).
func (w *Worker) SetClock(clock quartz.Clock) {
	w.clock = clock
}

// Resolve drives one identifier through the request/retry loop to a
// single terminal outcome. It never returns an error: every failure
// mode is folded into the Outcome.
func (w *Worker) Resolve(ctx context.Context, paymentID string) Outcome {
	url := w.baseURL + "/" + paymentID

	for attempt := 1; attempt <= w.policy.MaxAttempts; attempt++ {
		res := w.do(ctx, url)

		decision := w.policy.Decide(res.Attempt, attempt)
		if !decision.Retry {
			return w.terminal(paymentID, res)
		}

		w.logger.Warn().
			Str("payment_id", paymentID).
			Int("status", res.Status).
			Int("attempt", attempt).
			Dur("backoff", decision.Delay).
			Msg("Transient failure, retrying after backoff")

		if !w.sleep(ctx, decision.Delay) {
			// Interrupted mid-backoff; settle with what we have.
			return w.terminal(paymentID, res)
		}
	}

	// Unreachable given the decision table: the final attempt always
	// yields a terminal decision. Kept so a policy bug cannot lose an
	// identifier.
	w.logger.Error().
		Str("payment_id", paymentID).
		Msg("Retry loop ended without terminal decision")

	return Outcome{PaymentID: paymentID, HTTPStatus: 0, Err: ErrMsgExhausted}
}

// attemptResult carries one attempt's classification plus whatever was
// decoded from the body.
type attemptResult struct {
	retry.Attempt

	// body is the decoded JSON object, nil when the body was absent,
	// unparseable, or not an object.
	body map[string]any

	// text is a bounded excerpt of the raw body, for error reporting.
	text string
}

// do issues one GET and classifies the result. It never fails: a
// transport error is recorded on the Attempt.
func (w *Worker) do(ctx context.Context, url string) attemptResult {
	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return attemptResult{Attempt: retry.Attempt{Err: err}}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues("network_error").Inc()
		return attemptResult{Attempt: retry.Attempt{Err: err}}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	res := attemptResult{
		Attempt: retry.Attempt{Status: resp.StatusCode, Header: resp.Header},
		text:    excerpt(string(raw)),
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var body map[string]any
		if err := dec.Decode(&body); err == nil {
			res.body = body
		}
	}

	return res
}

// terminal converts the last attempt into the identifier's outcome.
func (w *Worker) terminal(paymentID string, res attemptResult) Outcome {
	if res.Err != nil {
		return Outcome{
			PaymentID:  paymentID,
			HTTPStatus: 0,
			Err:        fmt.Sprintf("request failed: %v", res.Err),
		}
	}

	status := res.Status

	if status >= 200 && status < 300 {
		if res.body == nil {
			return Outcome{PaymentID: paymentID, HTTPStatus: status, Err: ErrMsgInvalidBody}
		}

		var orderID string
		if order, ok := res.body["order"].(map[string]any); ok {
			orderID = stringify(order["id"])
		}

		return Outcome{
			PaymentID:         paymentID,
			OrderID:           orderID,
			ExternalReference: stringify(res.body["external_reference"]),
			HTTPStatus:        status,
		}
	}

	var msg string
	if res.body != nil {
		msg = apiMessage(res.body)
	} else {
		msg = res.text
	}
	if msg == "" {
		msg = httpError(status)
	}

	return Outcome{PaymentID: paymentID, HTTPStatus: status, Err: msg}
}

// sleep blocks this worker only. It reports false when the context was
// cancelled before the delay elapsed.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := w.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
