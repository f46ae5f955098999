package exchange

import (
	"errors"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
)

// Rejections of the exchange entry points. Every invocation that returns one
// of them leaves the listing store unchanged.
var (
	ErrParameterDecode             = errors.New("parameter decode failure")
	ErrCallerIsContract            = errors.New("caller is a contract")
	ErrCollectionNotSupported      = cis2.ErrCollectionNotSupported
	ErrNotAuthorizedOperator       = cis2.ErrNotAuthorizedOperator
	ErrInsufficientExternalBalance = cis2.ErrInsufficientExternalBalance
	ErrListingNotFound             = errors.New("listing not found")
	ErrInsufficientListedQuantity  = errors.New("requested quantity exceeds listed quantity")
	ErrUnderpaidRequest            = errors.New("attached amount below price times quantity")
	ErrInsufficientContractFunds   = errors.New("contract balance cannot cover payout")
	ErrLedgerCommunication         = cis2.ErrLedgerCommunication
	ErrCurrencyTransferFailed      = errors.New("currency transfer failed")
	ErrUnauthorized                = errors.New("unauthorized")
	ErrIntentNotPending            = errors.New("settlement intent is not awaiting payout")
)

var rejectCodes = []struct {
	err  error
	code int32
}{
	{ErrParameterDecode, -1},
	{ErrCallerIsContract, -2},
	{ErrCollectionNotSupported, -3},
	{ErrNotAuthorizedOperator, -4},
	{ErrInsufficientExternalBalance, -5},
	{ErrListingNotFound, -6},
	{ErrInsufficientListedQuantity, -7},
	{ErrUnderpaidRequest, -8},
	{ErrInsufficientContractFunds, -9},
	{ErrLedgerCommunication, -10},
	{ErrCurrencyTransferFailed, -11},
	{ErrUnauthorized, -12},
	{ErrIntentNotPending, -13},
}

// RejectCode returns the reject code of err, or false when err is not an
// exchange rejection.
func RejectCode(err error) (int32, bool) {
	for _, rc := range rejectCodes {
		if errors.Is(err, rc.err) {
			return rc.code, true
		}
	}
	return 0, false
}
