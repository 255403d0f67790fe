package bounty

import (
	"encoding/hex"
	"strconv"

	"bountyexchange/core/types"
)

const (
	EventTypeBountyCreated   = "bounty.created"
	EventTypeBountyFulfilled = "bounty.fulfilled"
	EventTypeBountyClaimed   = "bounty.claimed"
	EventTypeFactoryCreated  = "bounty.factory.created"
)

// NewCreatedEvent returns the canonical payload emitted once a request holds
// the locked asset.
func NewCreatedEvent(r *BountyRequest) *types.Event {
	return newBountyEvent(EventTypeBountyCreated, r)
}

// NewFulfilledEvent returns the canonical payload for a successful submit.
func NewFulfilledEvent(r *BountyRequest) *types.Event {
	evt := newBountyEvent(EventTypeBountyFulfilled, r)
	evt.Attributes["success"] = "true"
	return evt
}

// NewClaimedEvent returns the canonical payload for a reclaim after expiry.
func NewClaimedEvent(r *BountyRequest) *types.Event {
	return newBountyEvent(EventTypeBountyClaimed, r)
}

// NewFactoryCreatedEvent returns the payload emitted when the factory deploys
// an unfunded instance.
func NewFactoryCreatedEvent(r *BountyRequest) *types.Event {
	evt := newBountyEvent(EventTypeFactoryCreated, r)
	if r != nil {
		evt.Attributes["instance"] = hex.EncodeToString(r.Custody[:])
	}
	return evt
}

func newBountyEvent(eventType string, r *BountyRequest) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeRequest(r)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["requester"] = hex.EncodeToString(sanitized.Requester[:])
	attrs["provider"] = hex.EncodeToString(sanitized.Provider[:])
	attrs["lockedToken"] = hex.EncodeToString(sanitized.Locked.Token[:])
	attrs["lockedAmount"] = sanitized.Locked.Amount.String()
	attrs["bountyToken"] = hex.EncodeToString(sanitized.Bounty.Token[:])
	attrs["bountyAmount"] = sanitized.Bounty.Amount.String()
	attrs["deadline"] = strconv.FormatInt(sanitized.Deadline, 10)
	attrs["status"] = sanitized.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
