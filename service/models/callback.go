package models

import (
	"bytes"
	"encoding/json"
)

// STKCallbackEnvelope is the body the gateway posts to the STK callback URL.
type STKCallbackEnvelope struct {
	Body *STKCallbackBody `json:"Body" validate:"required"`
}

type STKCallbackBody struct {
	StkCallback *STKCallback `json:"stkCallback" validate:"required"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID" validate:"required"`
	ResultCode        *int              `json:"ResultCode" validate:"required"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem values arrive as numbers or strings depending on the field.
type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Lookup finds an item by name, never by position.
func (m *CallbackMetadata) Lookup(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, item := range m.Item {
		if item.Name == name {
			return rawText(item.Value)
		}
	}
	return "", false
}

// B2CResultEnvelope is the body posted to both the B2C result and queue
// timeout URLs.
type B2CResultEnvelope struct {
	Result *B2CResult `json:"Result" validate:"required"`
}

type B2CResult struct {
	ResultType               int               `json:"ResultType"`
	ResultCode               *int              `json:"ResultCode" validate:"required"`
	ResultDesc               string            `json:"ResultDesc"`
	OriginatorConversationID string            `json:"OriginatorConversationID"`
	ConversationID           string            `json:"ConversationID"`
	TransactionID            string            `json:"TransactionID"`
	ResultParameters         *ResultParameters `json:"ResultParameters,omitempty"`
}

// Lookup finds a result parameter by key.
func (r *B2CResult) Lookup(key string) (string, bool) {
	if r == nil || r.ResultParameters == nil {
		return "", false
	}
	for _, parameter := range r.ResultParameters.ResultParameter {
		if parameter.Key == key {
			return rawText(parameter.Value)
		}
	}
	return "", false
}

type ResultParameter struct {
	Key   string          `json:"Key"`
	Value json.RawMessage `json:"Value,omitempty"`
}

type ResultParameters struct {
	ResultParameter ResultParameterList `json:"ResultParameter"`
}

// ResultParameterList accepts either a list or, as the gateway sends when
// there is only one parameter, a bare object.
type ResultParameterList []ResultParameter

func (l *ResultParameterList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var single ResultParameter
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*l = ResultParameterList{single}
		return nil
	}

	var list []ResultParameter
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

func rawText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", false
		}
		return text, true
	}
	return string(raw), true
}

// CallbackAcknowledgement is the only response the gateway ever receives.
type CallbackAcknowledgement struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func Accepted() CallbackAcknowledgement {
	return CallbackAcknowledgement{ResultCode: 0, ResultDesc: "Accepted"}
}
