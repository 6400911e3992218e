package models

// Daraja reports asynchronous results by POSTing these envelopes to the
// registered callback URLs. Field names follow the provider wire format and
// must not be renamed.

const (
	// ResultCodeSuccess is the provider result code for a settled leg.
	ResultCodeSuccess = 0

	// MetadataReceiptNumber names the settlement receipt item in the STK
	// callback metadata list.
	MetadataReceiptNumber = "MpesaReceiptNumber"

	// ResultParameterTransactionID names the transaction id item in the B2B
	// result parameter list.
	ResultParameterTransactionID = "TransactionID"
)

type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// ReceiptNumber extracts the settlement receipt from the metadata list,
// returning the empty string when the provider omitted it.
func (cb *StkCallback) ReceiptNumber() string {
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name == MetadataReceiptNumber {
			if receipt, ok := item.Value.(string); ok {
				return receipt
			}
		}
	}
	return ""
}

type StkCallbackEnvelope struct {
	Body struct {
		StkCallback *StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type ResultParameter struct {
	Key   string      `json:"Key"`
	Value interface{} `json:"Value,omitempty"`
}

type B2BResult struct {
	ResultType               int    `json:"ResultType"`
	ResultCode               int    `json:"ResultCode"`
	ResultDesc               string `json:"ResultDesc"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ConversationID           string `json:"ConversationID"`
	TransactionID            string `json:"TransactionID"`
	ResultParameters         struct {
		ResultParameter []ResultParameter `json:"ResultParameter"`
	} `json:"ResultParameters"`
}

// SettledTransactionID returns the provider transaction id for a completed
// transfer, preferring the result parameter list over the envelope field.
func (r *B2BResult) SettledTransactionID() string {
	for _, param := range r.ResultParameters.ResultParameter {
		if param.Key == ResultParameterTransactionID {
			if id, ok := param.Value.(string); ok && id != "" {
				return id
			}
		}
	}
	return r.TransactionID
}

type B2BResultEnvelope struct {
	Result *B2BResult `json:"Result"`
}

// CallbackAck is the fixed acknowledgement body every webhook answers with,
// regardless of internal outcome. The provider keys its retry behavior on
// receiving this ack, so it is a protocol contract.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// AckSuccess is the acknowledgement returned to the provider on every
// webhook delivery.
func AckSuccess() CallbackAck {
	return CallbackAck{ResultCode: 0, ResultDesc: "Success"}
}
