package coreapi

import (
	"errors"
	"fmt"
)

var ErrGatewayTimeout = errors.New("gateway request timed out")

// GatewayAuthError reports a failure to obtain an access token.
type GatewayAuthError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayAuthError) Error() string {
	msg := "gateway authentication failed"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GatewayAuthError) Unwrap() error {
	return e.Err
}

// GatewayRequestError reports an outbound payment request that the gateway
// rejected or that never got a synchronous answer.
type GatewayRequestError struct {
	Operation    string
	StatusCode   int
	ResponseCode string
	Description  string
	Err          error
}

func (e *GatewayRequestError) Error() string {
	msg := fmt.Sprintf("%s request failed", e.Operation)
	if e.ResponseCode != "" {
		msg = fmt.Sprintf("%s with response code %s", msg, e.ResponseCode)
	}
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Description)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GatewayRequestError) Unwrap() error {
	return e.Err
}

func (e *GatewayRequestError) Timeout() bool {
	return errors.Is(e.Err, ErrGatewayTimeout)
}
