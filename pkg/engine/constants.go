package engine

const (
	operationSignup   = "signup"
	operationLike     = "like"
	operationReaction = "reaction"
	operationPurchase = "purchase"
	operationTopUp    = "topup"
	operationCashOut  = "cashout"
	operationPost     = "post"
	operationFollow   = "follow"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// maxConflictRetries bounds transparent retries of store-level
	// transaction conflicts before surfacing ErrOperationFailed.
	maxConflictRetries = 3
)
