package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Account represents the accounts table.
type Account struct {
	UserID             string          `gorm:"primaryKey"`
	DisplayName        string          `gorm:"not null"`
	SpendableBalance   decimal.Decimal `gorm:"type:numeric;not null"`
	PendingEarnings    decimal.Decimal `gorm:"type:numeric;not null"`
	LifetimeEarned     decimal.Decimal `gorm:"type:numeric;not null"`
	LifetimeSpent      decimal.Decimal `gorm:"type:numeric;not null"`
	LifetimeCashedOut  decimal.Decimal `gorm:"type:numeric;not null"`
	HasCashedOut       bool            `gorm:"not null"`
	OwnedReactionKinds datatypes.JSON  `gorm:"not null"`
	CreatedAt          time.Time       `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// Post mirrors the posts table.
type Post struct {
	PostID         string         `gorm:"type:uuid;primaryKey"`
	AuthorID       string         `gorm:"not null;index:idx_posts_author_created,priority:1"`
	Content        string         `gorm:"not null"`
	LikeCount      int64          `gorm:"not null"`
	ReactionCount  int64          `gorm:"not null"`
	ReactionCounts datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_posts_author_created,priority:2"`
}

func (Post) TableName() string { return "posts" }

func (post *Post) BeforeCreate(tx *gorm.DB) error {
	if post.PostID == "" {
		post.PostID = uuid.NewString()
	}
	return nil
}

// LikeGrant mirrors the like_grants table. The composite primary key is the
// idempotency guard for likes.
type LikeGrant struct {
	SpenderID string    `gorm:"primaryKey"`
	PostID    string    `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (LikeGrant) TableName() string { return "like_grants" }

// ReactionGrant mirrors the reaction_grants table; unique per
// (spender, post, kind).
type ReactionGrant struct {
	SpenderID string    `gorm:"primaryKey"`
	PostID    string    `gorm:"type:uuid;primaryKey"`
	Kind      string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ReactionGrant) TableName() string { return "reaction_grants" }

// Follow mirrors the follows table; unique per (follower, followee).
type Follow struct {
	FollowerID string    `gorm:"primaryKey"`
	FolloweeID string    `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Follow) TableName() string { return "follows" }

// CashOutRequest mirrors the cash_out_requests table.
type CashOutRequest struct {
	RequestID  string          `gorm:"type:uuid;primaryKey"`
	UserID     string          `gorm:"not null;index"`
	Amount     decimal.Decimal `gorm:"type:numeric;not null"`
	FiatAmount decimal.Decimal `gorm:"type:numeric;not null"`
	Status     string          `gorm:"not null"`
	CreatedAt  time.Time       `gorm:"not null"`
}

func (CashOutRequest) TableName() string { return "cash_out_requests" }

func (request *CashOutRequest) BeforeCreate(tx *gorm.DB) error {
	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}
	return nil
}

// PlatformTotals is the singleton platform bookkeeping row.
type PlatformTotals struct {
	ID        int64           `gorm:"primaryKey"`
	Revenue   decimal.Decimal `gorm:"type:numeric;not null"`
	Likes     int64           `gorm:"not null"`
	Reactions int64           `gorm:"not null"`
	Purchases int64           `gorm:"not null"`
	CashOuts  int64           `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (PlatformTotals) TableName() string { return "platform_totals" }

// TransactionEntry mirrors the transaction_entries table.
type TransactionEntry struct {
	EntryID        string          `gorm:"type:uuid;primaryKey"`
	UserID         string          `gorm:"not null;index:idx_entries_user_created,priority:1"`
	Type           string          `gorm:"not null"`
	Amount         decimal.Decimal `gorm:"type:numeric;not null"`
	CounterpartyID string          `gorm:""`
	PostID         string          `gorm:""`
	Kind           string          `gorm:""`
	Metadata       datatypes.JSON  `gorm:"not null"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_entries_user_created,priority:2"`
}

func (TransactionEntry) TableName() string { return "transaction_entries" }

func (entry *TransactionEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Migrate creates or updates the schema for every table the store owns and
// seeds the platform totals singleton so concurrent merges never race on the
// first insert.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Account{},
		&Post{},
		&LikeGrant{},
		&ReactionGrant{},
		&Follow{},
		&CashOutRequest{},
		&PlatformTotals{},
		&TransactionEntry{},
	)
	if err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&PlatformTotals{ID: platformTotalsRowID}).Error
}
