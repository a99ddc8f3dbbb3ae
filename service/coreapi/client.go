package coreapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fingrow/service-welfare/service/utility"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	operationToken        = "token"
	operationCollection   = "collection"
	operationDisbursement = "disbursement"

	tokenExpiryMargin = 60 * time.Second
	maxResponseBytes  = 1 << 20
)

var gatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "welfare",
	Subsystem: "gateway",
	Name:      "request_duration_seconds",
	Help:      "Latency of outbound mobile-money gateway calls.",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation", "outcome"})

// Config holds the credentials and endpoints of one Daraja integration.
type Config struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	TransactionType string
	CallbackURL     string

	InitiatorName      string
	SecurityCredential string
	B2CShortCode       string
	CommandID          string
	ResultURL          string
	QueueTimeoutURL    string

	Organisation string
	Timeout      time.Duration
	MaxRetries   uint64
}

// Client talks to the Daraja API.
type Client struct {
	Config     Config
	HTTPClient *http.Client
	Logger     *logrus.Entry
	NewBackOff func() backoff.BackOff
	Now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func New(cfg Config, logger *logrus.Entry) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	return &Client{
		Config: cfg,
		HTTPClient: &http.Client{
			Transport: tr,
			Timeout:   cfg.Timeout,
		},
		Logger: logger,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		Now: time.Now,
	}
}

// GetAccessToken returns a cached token while it is still comfortably valid
// and fetches a new one otherwise.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.Now().Before(c.expiresAt) {
		return c.token, nil
	}

	if c.Config.ConsumerKey == "" || c.Config.ConsumerSecret == "" {
		return "", &GatewayAuthError{Message: "consumer key and secret are not configured"}
	}

	start := time.Now()
	var tokenResponse AccessTokenResponse

	err := c.retry(ctx, func() error {
		status, body, err := c.send(ctx, http.MethodGet, tokenPath, nil, func(req *http.Request) {
			req.SetBasicAuth(c.Config.ConsumerKey, c.Config.ConsumerSecret)
		})
		if err != nil {
			return err
		}
		if status >= http.StatusInternalServerError {
			return fmt.Errorf("token endpoint returned status %d", status)
		}
		if status != http.StatusOK {
			return backoff.Permanent(&GatewayAuthError{StatusCode: status, Message: string(body)})
		}
		if err = json.Unmarshal(body, &tokenResponse); err != nil {
			return backoff.Permanent(&GatewayAuthError{StatusCode: status, Message: "unreadable token response", Err: err})
		}
		if tokenResponse.AccessToken == "" {
			return backoff.Permanent(&GatewayAuthError{StatusCode: status, Message: "empty access token"})
		}
		return nil
	})
	if err != nil {
		observe(operationToken, start, err)
		var authErr *GatewayAuthError
		if errors.As(err, &authErr) {
			return "", authErr
		}
		return "", &GatewayAuthError{Message: "token endpoint unreachable", Err: err}
	}
	observe(operationToken, start, nil)

	expiresIn, err := strconv.Atoi(tokenResponse.ExpiresIn.String())
	if err != nil || expiresIn <= 0 {
		expiresIn = 3599
	}

	c.token = tokenResponse.AccessToken
	c.expiresAt = c.Now().Add(time.Duration(expiresIn)*time.Second - tokenExpiryMargin)
	return c.token, nil
}

// InitiateCollection sends an STK push asking the payer to approve a deposit.
func (c *Client) InitiateCollection(ctx context.Context, phone string, amount decimal.Decimal, accountReference string) (*STKPushResponse, error) {
	canonical, err := utility.NormalizePhone(phone)
	if err != nil {
		return nil, &GatewayRequestError{Operation: operationCollection, Err: err}
	}

	timestamp := Timestamp(c.Now())
	request := STKPushRequest{
		BusinessShortCode: c.Config.ShortCode,
		Password:          STKPassword(c.Config.ShortCode, c.Config.PassKey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   c.Config.TransactionType,
		Amount:            json.Number(utility.WholeAmount(amount)),
		PartyA:            canonical,
		PartyB:            c.Config.ShortCode,
		PhoneNumber:       canonical,
		CallBackURL:       c.Config.CallbackURL,
		AccountReference:  accountReference,
		TransactionDesc:   fmt.Sprintf("%s savings deposit", c.Config.Organisation),
	}

	var response STKPushResponse
	status, err := c.postPayment(ctx, operationCollection, stkPath, request, &response)
	if err != nil {
		return nil, err
	}

	if response.ResponseCode != ResponseCodeAccepted || response.CheckoutRequestID == "" {
		return nil, &GatewayRequestError{
			Operation:    operationCollection,
			StatusCode:   status,
			ResponseCode: response.ResponseCode,
			Description:  describe(response.ResponseDescription, response.ErrorMessage, http.StatusText(status)),
		}
	}

	return &response, nil
}

// InitiateDisbursement sends a B2C payout for a loan. The loan id travels in
// the remarks as "(ID: <loanID>)".
func (c *Client) InitiateDisbursement(ctx context.Context, phone string, amount decimal.Decimal, loanID string) (*B2CResponse, error) {
	canonical, err := utility.NormalizePhone(phone)
	if err != nil {
		return nil, &GatewayRequestError{Operation: operationDisbursement, Err: err}
	}

	request := B2CRequest{
		OriginatorConversationID: uuid.NewString(),
		InitiatorName:            c.Config.InitiatorName,
		SecurityCredential:       c.Config.SecurityCredential,
		CommandID:                c.Config.CommandID,
		Amount:                   json.Number(utility.WholeAmount(amount)),
		PartyA:                   c.Config.B2CShortCode,
		PartyB:                   canonical,
		Remarks:                  DisbursementRemarks(c.Config.Organisation, loanID),
		QueueTimeOutURL:          c.Config.QueueTimeoutURL,
		ResultURL:                c.Config.ResultURL,
		Occasion:                 "Welfare Loan",
	}

	var response B2CResponse
	status, err := c.postPayment(ctx, operationDisbursement, b2cPath, request, &response)
	if err != nil {
		return nil, err
	}

	if response.ResponseCode != ResponseCodeAccepted || response.ConversationID == "" {
		return nil, &GatewayRequestError{
			Operation:    operationDisbursement,
			StatusCode:   status,
			ResponseCode: response.ResponseCode,
			Description:  describe(response.ResponseDescription, response.ErrorMessage, http.StatusText(status)),
		}
	}

	if response.OriginatorConversationID == "" {
		response.OriginatorConversationID = request.OriginatorConversationID
	}

	return &response, nil
}

func DisbursementRemarks(organisation, loanID string) string {
	return fmt.Sprintf("%s Loan Disbursement (ID: %s)", organisation, loanID)
}

// postPayment posts a payment request. Only attempts that provably never
// reached the gateway are retried, so a payout can not be sent twice.
func (c *Client) postPayment(ctx context.Context, operation, path string, payload any, out any) (int, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	var status int
	var body []byte

	err = c.retry(ctx, func() error {
		var sendErr error
		status, body, sendErr = c.send(ctx, http.MethodPost, path, payload, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		})
		if sendErr != nil {
			if isUnsent(sendErr) {
				return sendErr
			}
			return backoff.Permanent(sendErr)
		}
		if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
			return fmt.Errorf("gateway busy with status %d", status)
		}
		return nil
	})
	if err != nil {
		observe(operation, start, err)
		return status, &GatewayRequestError{Operation: operation, StatusCode: status, Err: err}
	}

	if status == http.StatusUnauthorized {
		c.invalidateToken()
	}

	if jsonErr := json.Unmarshal(body, out); jsonErr != nil {
		observe(operation, start, jsonErr)
		return status, &GatewayRequestError{
			Operation:   operation,
			StatusCode:  status,
			Description: "unreadable gateway response",
			Err:         jsonErr,
		}
	}

	observe(operation, start, nil)
	return status, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any, decorate func(*http.Request)) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, backoff.Permanent(err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Config.BaseURL+path, reader)
	if err != nil {
		return 0, nil, backoff.Permanent(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	decorate(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, classify(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && c.Logger != nil {
			c.Logger.WithError(closeErr).Warn("failed to close gateway response body")
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, classify(err)
	}

	return resp.StatusCode, respBody, nil
}

func (c *Client) retry(ctx context.Context, op backoff.Operation) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(c.NewBackOff(), c.Config.MaxRetries), ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		if c.Logger != nil {
			c.Logger.WithError(err).WithField("retry_in", wait).Debug("retrying gateway call")
		}
	})
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return err
}

func isUnsent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func observe(operation string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrGatewayTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	gatewayLatency.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}
