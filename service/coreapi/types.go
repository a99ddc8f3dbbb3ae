package coreapi

import "encoding/json"

const (
	ResponseCodeAccepted = "0"

	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	stkPath   = "/mpesa/stkpush/v1/processrequest"
	b2cPath   = "/mpesa/b2c/v1/paymentrequest"
)

// AccessTokenResponse carries expires_in as a quoted number.
type AccessTokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

type STKPushRequest struct {
	BusinessShortCode string      `json:"BusinessShortCode"`
	Password          string      `json:"Password"`
	Timestamp         string      `json:"Timestamp"`
	TransactionType   string      `json:"TransactionType"`
	Amount            json.Number `json:"Amount"`
	PartyA            string      `json:"PartyA"`
	PartyB            string      `json:"PartyB"`
	PhoneNumber       string      `json:"PhoneNumber"`
	CallBackURL       string      `json:"CallBackURL"`
	AccountReference  string      `json:"AccountReference"`
	TransactionDesc   string      `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`

	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type B2CRequest struct {
	OriginatorConversationID string      `json:"OriginatorConversationID"`
	InitiatorName            string      `json:"InitiatorName"`
	SecurityCredential       string      `json:"SecurityCredential"`
	CommandID                string      `json:"CommandID"`
	Amount                   json.Number `json:"Amount"`
	PartyA                   string      `json:"PartyA"`
	PartyB                   string      `json:"PartyB"`
	Remarks                  string      `json:"Remarks"`
	QueueTimeOutURL          string      `json:"QueueTimeOutURL"`
	ResultURL                string      `json:"ResultURL"`
	Occasion                 string      `json:"Occasion"`
}

type B2CResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`

	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func describe(description, errorMessage, status string) string {
	switch {
	case description != "":
		return description
	case errorMessage != "":
		return errorMessage
	default:
		return status
	}
}
