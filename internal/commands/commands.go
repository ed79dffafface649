package commands

import (
	"go.uber.org/zap"

	"chargecore/internal/ocpp"
	"chargecore/internal/ocpp/protocol"
)

// Dispatcher maps control-plane requests onto outbound OCPP CALLs. Both the
// HTTP control API and the upstream bridge route through it, so there is a
// single source of truth for remote commands. The charge point's subsequent
// StartTransaction/StopTransaction CALL is the authoritative trigger for
// ledger changes; the CALLRESULTs of these commands are only logged.
type Dispatcher struct {
	sender *ocpp.CallSender
	logger *zap.Logger
}

// NewDispatcher builds the dispatcher.
func NewDispatcher(sender *ocpp.CallSender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logger: logger}
}

// RemoteStart asks a charge point to start a transaction.
func (d *Dispatcher) RemoteStart(chargePointID, idTag string, connectorID int) error {
	_, err := d.sender.Send(chargePointID, protocol.ActionRemoteStartTransaction, protocol.RemoteStartTransactionRequest{
		IdTag:       idTag,
		ConnectorID: connectorID,
	})
	return err
}

// RemoteStop asks a charge point to stop a transaction.
func (d *Dispatcher) RemoteStop(chargePointID string, transactionID int) error {
	_, err := d.sender.Send(chargePointID, protocol.ActionRemoteStopTransaction, protocol.RemoteStopTransactionRequest{
		TransactionID: transactionID,
	})
	return err
}

// ChangeAvailability toggles a connector between Operative and Inoperative.
func (d *Dispatcher) ChangeAvailability(chargePointID string, connectorID int, availabilityType string) error {
	_, err := d.sender.Send(chargePointID, protocol.ActionChangeAvailability, protocol.ChangeAvailabilityRequest{
		ConnectorID: connectorID,
		Type:        availabilityType,
	})
	return err
}

// ChangeConfiguration pushes one configuration key to a charge point.
func (d *Dispatcher) ChangeConfiguration(chargePointID, key, value string) error {
	_, err := d.sender.Send(chargePointID, protocol.ActionChangeConfiguration, protocol.ChangeConfigurationRequest{
		Key:   key,
		Value: value,
	})
	return err
}
