package trade

import "errors"

var (
	ErrInvalidTradeState = errors.New("trade is not in a valid state for this action")
	ErrNotParticipant    = errors.New("user is not part of this trade")
	ErrInvalidOffer      = errors.New("invalid trade offer")
	// ErrStaleOwnership means settlement re-validation found an offered item
	// no longer held; the trade was cancelled with nothing transferred.
	ErrStaleOwnership = errors.New("offered items no longer held")
)
