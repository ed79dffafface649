package protocol

import "time"

// IdTagInfo is the authorization verdict embedded in several replies.
type IdTagInfo struct {
	Status string `json:"status"`
}

// BootNotificationRequest minimal subset.
type BootNotificationRequest struct {
	ChargePointVendor string `json:"chargePointVendor"`
	ChargePointModel  string `json:"chargePointModel"`
	ChargePointSerial string `json:"chargePointSerialNumber"`
	ChargeBoxSerial   string `json:"chargeBoxSerialNumber"`
	FirmwareVersion   string `json:"firmwareVersion"`
}

// BootNotificationResponse minimal response.
type BootNotificationResponse struct {
	Status      string    `json:"status"`
	CurrentTime time.Time `json:"currentTime"`
	Interval    int       `json:"interval"`
}

// HeartbeatResponse returns server time.
type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime"`
}

// StatusNotificationRequest payload.
type StatusNotificationRequest struct {
	ConnectorID int       `json:"connectorId"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"errorCode"`
	Info        string    `json:"info"`
	Timestamp   time.Time `json:"timestamp"`
	VendorID    string    `json:"vendorId"`
}

// StatusNotificationResponse is empty (ack).
type StatusNotificationResponse struct{}

// AuthorizeRequest payload.
type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

// AuthorizeResponse payload.
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// StartTransactionRequest payload.
type StartTransactionRequest struct {
	ConnectorID   int       `json:"connectorId"`
	IdTag         string    `json:"idTag"`
	MeterStart    int64     `json:"meterStart"`
	ReservationID int       `json:"reservationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// StartTransactionResponse carries the server-allocated transaction id.
type StartTransactionResponse struct {
	TransactionID int       `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

// StopTransactionRequest payload. The transaction id arrives in the payload,
// not as the RPC message id.
type StopTransactionRequest struct {
	TransactionID int       `json:"transactionId"`
	IdTag         string    `json:"idTag"`
	MeterStop     int64     `json:"meterStop"`
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"reason"`
}

// StopTransactionResponse ack.
type StopTransactionResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// SampledValue is one measurement inside a MeterValue entry.
type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

// MeterValue is one timestamped group of samples.
type MeterValue struct {
	Timestamp    time.Time      `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// MeterValuesRequest payload with the nested sample structure.
type MeterValuesRequest struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID int          `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

// MeterValuesResponse is empty (ack).
type MeterValuesResponse struct{}

// FirmwareStatusNotificationRequest payload.
type FirmwareStatusNotificationRequest struct {
	Status string `json:"status"`
}

// DiagnosticsStatusNotificationRequest payload.
type DiagnosticsStatusNotificationRequest struct {
	Status string `json:"status"`
}

// SecurityEventNotificationRequest payload.
type SecurityEventNotificationRequest struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TechInfo  string    `json:"techInfo,omitempty"`
}

// DataTransferRequest payload.
type DataTransferRequest struct {
	VendorID  string `json:"vendorId"`
	MessageID string `json:"messageId,omitempty"`
	Data      string `json:"data,omitempty"`
}

// DataTransferResponse payload.
type DataTransferResponse struct {
	Status string `json:"status"`
}

// GetConfigurationRequest asks for all keys when Key is empty.
type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

// GetConfigurationResponse payload of the charge point's reply.
type GetConfigurationResponse struct {
	ConfigurationKey []ConfigurationKey `json:"configurationKey"`
	UnknownKey       []string           `json:"unknownKey,omitempty"`
}

// ConfigurationKey is one reported configuration entry.
type ConfigurationKey struct {
	Key      string `json:"key"`
	Readonly bool   `json:"readonly"`
	Value    string `json:"value"`
}

// RemoteStartTransactionRequest outbound payload.
type RemoteStartTransactionRequest struct {
	IdTag       string `json:"idTag"`
	ConnectorID int    `json:"connectorId,omitempty"`
}

// RemoteStopTransactionRequest outbound payload.
type RemoteStopTransactionRequest struct {
	TransactionID int `json:"transactionId"`
}

// ChangeAvailabilityRequest outbound payload. Type is Operative or Inoperative.
type ChangeAvailabilityRequest struct {
	ConnectorID int    `json:"connectorId"`
	Type        string `json:"type"`
}

// ChangeConfigurationRequest outbound payload.
type ChangeConfigurationRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
