package engine

import "context"

// Store is the persistence contract used by Service. Implementations must
// provide failure-atomic transactions through WithTx: every write issued
// through the transactional Store becomes visible together or not at all.
// ForUpdate reads must lock the row for the remainder of the transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, userID UserID) (Account, error)
	GetAccountForUpdate(ctx context.Context, userID UserID) (Account, error)
	SaveAccount(ctx context.Context, account Account) error

	CreatePost(ctx context.Context, post Post) error
	GetPost(ctx context.Context, postID PostID) (Post, error)
	GetPostForUpdate(ctx context.Context, postID PostID) (Post, error)
	SavePost(ctx context.Context, post Post) error
	ListPosts(ctx context.Context, limit int) ([]Post, error)

	HasLikeGrant(ctx context.Context, spenderID UserID, postID PostID) (bool, error)
	CreateLikeGrant(ctx context.Context, grant LikeGrant) error
	ListLikeGrants(ctx context.Context, spenderID UserID) ([]LikeGrant, error)
	HasReactionGrant(ctx context.Context, spenderID UserID, postID PostID, kind ReactionKind) (bool, error)
	CreateReactionGrant(ctx context.Context, grant ReactionGrant) error

	HasFollow(ctx context.Context, followerID UserID, followeeID UserID) (bool, error)
	CreateFollow(ctx context.Context, follow Follow) error

	CreateCashOutRequest(ctx context.Context, request CashOutRequest) error
	AddPlatformTotals(ctx context.Context, delta PlatformTotals) error

	InsertEntry(ctx context.Context, entry TransactionEntry) error
	ListEntries(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]TransactionEntry, error)
}

// Notifier receives events the engine decides to emit. Delivery and storage
// are the collaborator's concern; emission happens after the transaction
// commits and failures do not undo the committed operation.
type Notifier interface {
	Notify(ctx context.Context, event NotificationEvent) error
}
