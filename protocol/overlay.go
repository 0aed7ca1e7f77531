// Package protocol implements the RPC handlers (C8) that wrap the contract,
// audit, storage, and shard-transfer layers into the OFFER/CONSIGN/MIRROR/
// RETRIEVE/AUDIT/RENEW calls a farmer node answers for a renter.
package protocol

import "context"

// Overlay is the narrow transport abstraction an RPC method is bound to.
// Kademlia-style routing to a given nodeID is explicitly out of scope; a
// concrete Overlay only needs to get bytes to whichever peer it already
// knows how to reach.
type Overlay interface {
	// Send issues method against nodeID with body as the request payload
	// and blocks for the response.
	Send(ctx context.Context, nodeID string, method string, body []byte) ([]byte, error)

	// Handle registers fn as the implementation of method for inbound
	// calls. Registering the same method twice replaces the prior
	// handler.
	Handle(method string, fn func(ctx context.Context, peer string, body []byte) ([]byte, error))
}

// Method names, one per RPC handler.
const (
	MethodOffer    = "OFFER"
	MethodConsign  = "CONSIGN"
	MethodMirror   = "MIRROR"
	MethodRetrieve = "RETRIEVE"
	MethodAudit    = "AUDIT"
	MethodRenew    = "RENEW"
)
