package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"chargecore/internal/ocpp"
	"chargecore/internal/ocpp/protocol"
)

// Authorizer decides whether an id tag may charge. The default accepts every
// tag; a deployment plugs in an allow-list here.
type Authorizer interface {
	Authorize(ctx context.Context, chargePointID, idTag string) string
}

// AcceptAllAuthorizer accepts every id tag.
type AcceptAllAuthorizer struct{}

// Authorize always returns Accepted.
func (AcceptAllAuthorizer) Authorize(ctx context.Context, chargePointID, idTag string) string {
	return protocol.AuthorizationAccepted
}

// NewAuthorizeHandler answers Authorize requests through the authorizer hook.
func NewAuthorizeHandler(auth Authorizer) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.AuthorizeRequest](payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ocpp.ErrInvalidPayload, err)
		}

		return protocol.AuthorizeResponse{
			IdTagInfo: protocol.IdTagInfo{Status: auth.Authorize(ctx, chargePointID, req.IdTag)},
		}, nil
	}
}
