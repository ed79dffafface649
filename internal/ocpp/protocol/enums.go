package protocol

// Inbound actions handled by the central system.
const (
	ActionBootNotification              = "BootNotification"
	ActionHeartbeat                     = "Heartbeat"
	ActionStatusNotification            = "StatusNotification"
	ActionAuthorize                     = "Authorize"
	ActionStartTransaction              = "StartTransaction"
	ActionStopTransaction               = "StopTransaction"
	ActionMeterValues                   = "MeterValues"
	ActionFirmwareStatusNotification    = "FirmwareStatusNotification"
	ActionDiagnosticsStatusNotification = "DiagnosticsStatusNotification"
	ActionSecurityEventNotification     = "SecurityEventNotification"
	ActionDataTransfer                  = "DataTransfer"
)

// Outbound (server-initiated) actions.
const (
	ActionGetConfiguration       = "GetConfiguration"
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
	ActionChangeAvailability     = "ChangeAvailability"
	ActionChangeConfiguration    = "ChangeConfiguration"
)

// Registration status values.
const (
	RegistrationAccepted = "Accepted"
	RegistrationRejected = "Rejected"
)

// Authorization status values.
const (
	AuthorizationAccepted = "Accepted"
	AuthorizationBlocked  = "Blocked"
	AuthorizationInvalid  = "Invalid"
)

// Connector status values reported via StatusNotification.
const (
	ConnectorAvailable   = "Available"
	ConnectorPreparing   = "Preparing"
	ConnectorCharging    = "Charging"
	ConnectorOccupied    = "Occupied"
	ConnectorFinishing   = "Finishing"
	ConnectorReserved    = "Reserved"
	ConnectorUnavailable = "Unavailable"
	ConnectorFaulted     = "Faulted"
)

// CALLERROR codes used by this implementation.
const (
	ErrorNotSupported       = "NotSupported"
	ErrorInternalError      = "InternalError"
	ErrorFormationViolation = "FormationViolation"
)

// Measurands extracted from MeterValues samples.
const (
	MeasurandEnergyActiveImport = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport  = "Power.Active.Import"
)
