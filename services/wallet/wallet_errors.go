package wallet

import (
	"fmt"

	"github.com/SwiftFiat/SwiftFiat-Settlement/models"
)

var (
	ErrWalletNotFound     = fmt.Errorf("wallet not found")
	ErrWalletExists       = fmt.Errorf("wallet already exists")
	ErrInsufficientFunds  = fmt.Errorf("insufficient funds")
	ErrInvalidAmount      = fmt.Errorf("amount must be greater than zero")
	ErrInvalidWalletType  = fmt.Errorf("invalid wallet type")
	ErrInvalidStatsWindow = fmt.Errorf("stats window must be 7, 30 or 90 days")
	ErrInvalidStatus      = fmt.Errorf("invalid transaction status")
)

// WalletError ties a ledger failure to the user whose wallet was involved.
// Kind decides how the API layer reports it.
type WalletError struct {
	ErrorObj error
	UserID   int64
	Kind     models.ErrorKind
}

func (w *WalletError) Error() string {
	return w.ErrorObj.Error()
}

func (w *WalletError) ErrorOut() string {
	return fmt.Sprintf("%v: user %d", w.ErrorObj.Error(), w.UserID)
}

func (w *WalletError) Unwrap() error {
	return w.ErrorObj
}

// As lets models.KindOf classify wallet errors.
func (w *WalletError) As(target interface{}) bool {
	se, ok := target.(**models.ServiceError)
	if !ok {
		return false
	}
	*se = &models.ServiceError{Kind: w.Kind, Cause: w.ErrorObj}
	return true
}

func NewWalletError(err error, userID int64, kind models.ErrorKind) *WalletError {
	return &WalletError{
		ErrorObj: err,
		UserID:   userID,
		Kind:     kind,
	}
}
