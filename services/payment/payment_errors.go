package payment

import "fmt"

var (
	ErrPaymentInProgress   = fmt.Errorf("a payment for this user is already in progress")
	ErrCannotCancel        = fmt.Errorf("cannot cancel")
	ErrTransactionNotFound = fmt.Errorf("transaction not found")
	ErrCancelledDuringInit = fmt.Errorf("transaction was cancelled while being initiated")
	ErrPaymentLockLost     = fmt.Errorf("payment lock expired during initiation")
)
