package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// UserID identifies an account owner.
type UserID struct {
	value string
}

// PostID identifies a post.
type PostID struct {
	value string
}

// ReactionKind identifies a purchasable reaction emoji.
type ReactionKind struct {
	value string
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewPostID validates and normalizes a post id.
func NewPostID(raw string) (PostID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PostID{}, fmt.Errorf("%w: empty value", ErrInvalidPostID)
	}
	return PostID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id PostID) String() string {
	return id.value
}

// NewReactionKind validates and normalizes a reaction kind identifier.
func NewReactionKind(raw string) (ReactionKind, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReactionKind{}, fmt.Errorf("%w: empty value", ErrInvalidReactionKind)
	}
	return ReactionKind{value: trimmed}, nil
}

// String returns the normalized identifier.
func (kind ReactionKind) String() string {
	return kind.value
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// Price is a strictly positive monetary amount.
type Price struct {
	value decimal.Decimal
}

// NewPrice validates a strictly positive monetary amount.
func NewPrice(raw decimal.Decimal) (Price, error) {
	if raw.Sign() <= 0 {
		return Price{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Price{value: raw}, nil
}

// Decimal returns the underlying amount.
func (price Price) Decimal() decimal.Decimal {
	return price.value
}

// ReactionKindSet is an append-only set of owned reaction kinds.
type ReactionKindSet []ReactionKind

// Contains reports whether the set holds the given kind.
func (set ReactionKindSet) Contains(kind ReactionKind) bool {
	for _, owned := range set {
		if owned == kind {
			return true
		}
	}
	return false
}

// Add appends a kind if it is not already present.
func (set ReactionKindSet) Add(kind ReactionKind) ReactionKindSet {
	if set.Contains(kind) {
		return set
	}
	return append(set, kind)
}

// Strings returns the raw kind identifiers.
func (set ReactionKindSet) Strings() []string {
	raw := make([]string, 0, len(set))
	for _, kind := range set {
		raw = append(raw, kind.String())
	}
	return raw
}

// Account is the per-user wallet record.
type Account struct {
	UserID             UserID
	DisplayName        string
	SpendableBalance   decimal.Decimal
	PendingEarnings    decimal.Decimal
	LifetimeEarned     decimal.Decimal
	LifetimeSpent      decimal.Decimal
	LifetimeCashedOut  decimal.Decimal
	HasCashedOut       bool
	OwnedReactionKinds ReactionKindSet
	CreatedUnixUTC     int64
}

// Post is the target of monetized actions. Counters only ever increase.
type Post struct {
	PostID         PostID
	AuthorID       UserID
	Content        string
	LikeCount      int64
	ReactionCount  int64
	ReactionCounts map[string]int64
	CreatedUnixUTC int64
}

// LikeGrant marks that a user has liked a post. Existence is the idempotency guard.
type LikeGrant struct {
	SpenderID      UserID
	PostID         PostID
	CreatedUnixUTC int64
}

// ReactionGrant marks that a user has reacted to a post with a specific kind.
type ReactionGrant struct {
	SpenderID      UserID
	PostID         PostID
	Kind           ReactionKind
	CreatedUnixUTC int64
}

// Follow marks that one user follows another.
type Follow struct {
	FollowerID     UserID
	FolloweeID     UserID
	CreatedUnixUTC int64
}

// CashOutRequestStatus defines the cash-out lifecycle.
type CashOutRequestStatus string

const (
	CashOutStatusPending   CashOutRequestStatus = "pending"
	CashOutStatusCompleted CashOutRequestStatus = "completed"
)

// CashOutRequest snapshots a withdrawal of pending earnings.
type CashOutRequest struct {
	RequestID      string
	UserID         UserID
	Amount         decimal.Decimal
	FiatAmount     decimal.Decimal
	Status         CashOutRequestStatus
	CreatedUnixUTC int64
}

// PlatformTotals is the additive platform bookkeeping record. It is written
// alongside every monetized operation and never read for validation.
type PlatformTotals struct {
	Revenue   decimal.Decimal
	Likes     int64
	Reactions int64
	Purchases int64
	CashOuts  int64
}

// EntryType enumerates transaction log entry kinds.
type EntryType string

const (
	EntryDebit    EntryType = "debit"
	EntryCredit   EntryType = "credit"
	EntryPurchase EntryType = "purchase"
	EntryTopUp    EntryType = "topup"
	EntryCashOut  EntryType = "cashout"
	EntryStarter  EntryType = "starter"
)

// TransactionEntry is a single immutable line in the audit log.
type TransactionEntry struct {
	EntryID        string
	UserID         UserID
	Type           EntryType
	Amount         decimal.Decimal
	CounterpartyID UserID
	PostID         PostID
	Kind           ReactionKind
	MetadataJSON   MetadataJSON
	CreatedUnixUTC int64
}

// NotificationKind enumerates emitted event kinds.
type NotificationKind string

const (
	NotificationLike     NotificationKind = "like"
	NotificationReaction NotificationKind = "reaction"
	NotificationFollow   NotificationKind = "follow"
)

// NotificationEvent is handed to the Notifier after a successful operation.
type NotificationEvent struct {
	RecipientID      UserID
	Kind             NotificationKind
	ActorID          UserID
	ActorDisplayName string
	PostID           PostID
	ReactionKind     ReactionKind
	Read             bool
	CreatedUnixUTC   int64
}
