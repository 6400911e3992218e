package coreapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	timestampLayout = "20060102150405"

	// tokenExpiryMargin is subtracted from the provider expiry so a token is
	// refreshed before it actually lapses mid-request.
	tokenExpiryMargin = 30 * time.Second
)

// Client talks to the Safaricom Daraja API. Credentials for the collection
// leg (consumer key/secret, shortcode, passkey) are always required; the
// operator credentials (initiator name, security credential) are only needed
// for disbursement.
type Client struct {
	ConsumerKey        string
	ConsumerSecret     string
	BusinessShortCode  string
	Passkey            string
	CallbackURL        string
	B2BResultURL       string
	TimeoutURL         string
	InitiatorName      string
	SecurityCredential string
	BaseURL            string
	HttpClient         *http.Client

	logger *logrus.Entry

	tokenMu     sync.Mutex
	cachedToken string
	tokenExpiry time.Time
}

// New creates a Daraja API client.
func New(consumerKey, consumerSecret, shortCode, passkey, baseURL string) *Client {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:       10,
		IdleConnTimeout:    30 * time.Second,
		DisableCompression: true,
	}

	httpClient := &http.Client{
		Transport: tr,
		Timeout:   30 * time.Second,
	}

	return &Client{
		ConsumerKey:       consumerKey,
		ConsumerSecret:    consumerSecret,
		BusinessShortCode: shortCode,
		Passkey:           passkey,
		BaseURL:           baseURL,
		HttpClient:        httpClient,
		logger:            logrus.WithField("component", "mpesa-client"),
	}
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// GenerateAccessToken exchanges the client credentials for a short lived
// bearer token. Tokens are cached until near expiry; the cache is process
// local only.
func (c *Client) GenerateAccessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.cachedToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.cachedToken, nil
	}

	url := fmt.Sprintf("%s/oauth/v1/generate?grant_type=client_credentials", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.ConsumerKey + ":" + c.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.WithField("status", resp.Status).Warn("token request rejected")
		return "", fmt.Errorf("%w: %s %s", ErrAuthenticationFailed, resp.Status, string(body))
	}

	var tokenResponse accessTokenResponse
	if err = json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	c.cachedToken = tokenResponse.AccessToken
	expiresIn, err := strconv.Atoi(tokenResponse.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3600
	}
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - tokenExpiryMargin)

	return c.cachedToken, nil
}

// stkPassword derives the push request password for the given timestamp.
func (c *Client) stkPassword(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.BusinessShortCode + c.Passkey + timestamp))
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse carries the correlation identifiers the provider assigns
// to an accepted customer push prompt.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiateSTKPush triggers a customer facing payment prompt. A nil error
// only confirms the prompt was dispatched, the outcome arrives later on the
// collection callback URL.
func (c *Client) InitiateSTKPush(ctx context.Context, phoneNumber string, amount decimal.Decimal, accountReference, transactionDesc string) (*STKPushResponse, error) {
	accessToken, err := c.GenerateAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	if transactionDesc == "" {
		transactionDesc = "Rent Payment"
	}

	timestamp := time.Now().Format(timestampLayout)
	request := stkPushRequest{
		BusinessShortCode: c.BusinessShortCode,
		Password:          c.stkPassword(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		// whole shillings on the wire
		Amount:           amount.Floor().String(),
		PartyA:           phoneNumber,
		PartyB:           c.BusinessShortCode,
		PhoneNumber:      phoneNumber,
		CallBackURL:      c.CallbackURL,
		AccountReference: accountReference,
		TransactionDesc:  transactionDesc,
	}

	var response STKPushResponse
	if err = c.post(ctx, "/mpesa/stkpush/v1/processrequest", "stk push", accessToken, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

type b2bRequest struct {
	Initiator              string `json:"Initiator"`
	SecurityCredential     string `json:"SecurityCredential"`
	CommandID              string `json:"CommandID"`
	SenderIdentifierType   string `json:"SenderIdentifierType"`
	RecieverIdentifierType string `json:"RecieverIdentifierType"`
	Amount                 string `json:"Amount"`
	PartyA                 string `json:"PartyA"`
	PartyB                 string `json:"PartyB"`
	AccountReference       string `json:"AccountReference"`
	Remarks                string `json:"Remarks"`
	QueueTimeOutURL        string `json:"QueueTimeOutURL"`
	ResultURL              string `json:"ResultURL"`
}

// B2BResponse carries the conversation identifiers the provider assigns to
// an accepted business transfer.
type B2BResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// InitiateB2B triggers a paybill-to-paybill business transfer. Requires the
// operator credentials, which are distinct from the collection flow.
func (c *Client) InitiateB2B(ctx context.Context, receiverPaybill string, amount decimal.Decimal, accountReference, remarks string) (*B2BResponse, error) {
	if c.InitiatorName == "" || c.SecurityCredential == "" {
		return nil, ErrOperatorCredentialsMissing
	}

	accessToken, err := c.GenerateAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	if remarks == "" {
		remarks = "Rent disbursement"
	}

	request := b2bRequest{
		Initiator:          c.InitiatorName,
		SecurityCredential: c.SecurityCredential,
		CommandID:          "BusinessPayBill",
		// identifier type 4 = paybill on both legs
		SenderIdentifierType:   "4",
		RecieverIdentifierType: "4",
		Amount:                 amount.Floor().String(),
		PartyA:                 c.BusinessShortCode,
		PartyB:                 receiverPaybill,
		AccountReference:       accountReference,
		Remarks:                remarks,
		QueueTimeOutURL:        c.TimeoutURL,
		ResultURL:              c.B2BResultURL,
	}

	c.logger.WithFields(logrus.Fields{
		"from":    request.PartyA,
		"to":      request.PartyB,
		"amount":  request.Amount,
		"account": request.AccountReference,
	}).Info("initiating B2B payment")

	var response B2BResponse
	if err = c.post(ctx, "/mpesa/b2b/v1/paymentrequest", "b2b payment", accessToken, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

type providerError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (c *Client) post(ctx context.Context, path, operation, accessToken string, payload any, out any) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return &RequestError{Operation: operation, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var provider providerError
		message := resp.Status
		if err = json.Unmarshal(body, &provider); err == nil && provider.ErrorMessage != "" {
			message = provider.ErrorMessage
		}
		c.logger.WithFields(logrus.Fields{
			"operation": operation,
			"status":    resp.Status,
		}).Warn("provider rejected request")
		return &RequestError{Operation: operation, Message: message}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
