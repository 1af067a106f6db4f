package apistrings

const (
	/// Basic User Related Strings
	UserNotFound    = "user or account does not exist"
	Unauthorized    = "unauthorized request"
	InvalidBearer   = "invalid token, expects bearer token"
	InvalidPhone    = "invalid phone number, please use a standard phone number"
	InvalidPageArgs = "check 'page' and 'limit' query parameters"

	/// Core Functionality Error
	ServerError = "a server error occurred, please try again later"
	NotFound    = "resource not found"

	/// Wallet Related Strings
	UserNoWallet        = "user does not have a wallet created"
	DuplicateWallet     = "user already has a wallet"
	InvalidWalletInput  = "check 'type' or 'lightning_address' keys, invalid request"
	InvalidStatsWindow  = "check 'days' query parameter, expects 7, 30 or 90"
	InsufficientBalance = "insufficient wallet balance"

	/// Payment Related Strings
	InvalidPaymentInput  = "check 'amount', 'currency', 'phone_number' or 'payee' keys, invalid request"
	InvalidTransactionID = "entered ID is invalid"
	PaymentInProgress    = "a payment for this account is already in progress"
	PaymentFailed        = "payment could not be completed"
	ProviderUnavailable  = "payment provider is unavailable, please try again later"
	CallbackAccepted     = "Accepted"
)
