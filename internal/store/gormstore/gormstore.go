package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/TbhX/centx-backend/pkg/engine"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	platformTotalsRowID = 1

	pgUniqueViolationCode      = "23505"
	pgSerializationFailureCode = "40001"
	pgDeadlockDetectedCode     = "40P01"
	sqliteConstraintCode       = 19
	sqliteBusyCode             = 5
	sqliteLockedCode           = 6

	defaultMetadataJSON = "{}"

	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectPost      = "post"
	errorSubjectGrant     = "grant"
	errorSubjectFollow    = "follow"
	errorSubjectCashOut   = "cashout"
	errorSubjectTotals    = "totals"
	errorSubjectEntry     = "entry"
	errorSubjectTx        = "tx"
	errorCodeCreate       = "create"
	errorCodeGet          = "get"
	errorCodeSave         = "save"
	errorCodeList         = "list"
	errorCodeLookup       = "lookup"
	errorCodeDuplicate    = "duplicate"
	errorCodeInvalid      = "invalid"
	errorCodeConflict     = "conflict"
	errorCodeInsert       = "insert"
	errorCodeAccumulate   = "accumulate"
	errorCodeNotFound     = "not_found"
	errorCodeMarshalJSON  = "marshal_json"
	errorCodeDecodeRecord = "decode_record"
)

// Store implements engine.Store using GORM. It works against PostgreSQL and
// the glebarez pure-Go SQLite driver.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Serialization failures and
// deadlocks surface as engine.ErrTxConflict so the engine can retry.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore engine.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
	if err != nil && isTxConflict(err) {
		return wrapStoreError(errorSubjectTx, errorCodeConflict, engine.ErrTxConflict)
	}
	return err
}

func (store *Store) CreateAccount(ctx context.Context, account engine.Account) error {
	model, err := accountToModel(account)
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeMarshalJSON, err)
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectAccount, errorCodeDuplicate, engine.ErrAccountExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, userID engine.UserID) (engine.Account, error) {
	return store.getAccount(ctx, userID, false)
}

func (store *Store) GetAccountForUpdate(ctx context.Context, userID engine.UserID) (engine.Account, error) {
	return store.getAccount(ctx, userID, true)
}

func (store *Store) getAccount(ctx context.Context, userID engine.UserID, forUpdate bool) (engine.Account, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = store.lockForUpdate(query)
	}
	var model Account
	err := query.Where("user_id = ?", userID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Account{}, wrapStoreError(errorSubjectAccount, errorCodeNotFound, engine.ErrAccountNotFound)
	}
	if err != nil {
		return engine.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := accountFromModel(model)
	if err != nil {
		return engine.Account{}, wrapStoreError(errorSubjectAccount, errorCodeDecodeRecord, err)
	}
	return account, nil
}

func (store *Store) SaveAccount(ctx context.Context, account engine.Account) error {
	model, err := accountToModel(account)
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeMarshalJSON, err)
	}
	result := store.db.WithContext(ctx).Model(&Account{}).
		Where("user_id = ?", model.UserID).
		Updates(map[string]interface{}{
			"spendable_balance":    model.SpendableBalance,
			"pending_earnings":     model.PendingEarnings,
			"lifetime_earned":      model.LifetimeEarned,
			"lifetime_spent":       model.LifetimeSpent,
			"lifetime_cashed_out":  model.LifetimeCashedOut,
			"has_cashed_out":       model.HasCashedOut,
			"owned_reaction_kinds": model.OwnedReactionKinds,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeNotFound, engine.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) CreatePost(ctx context.Context, post engine.Post) error {
	model, err := postToModel(post)
	if err != nil {
		return wrapStoreError(errorSubjectPost, errorCodeMarshalJSON, err)
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectPost, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetPost(ctx context.Context, postID engine.PostID) (engine.Post, error) {
	return store.getPost(ctx, postID, false)
}

func (store *Store) GetPostForUpdate(ctx context.Context, postID engine.PostID) (engine.Post, error) {
	return store.getPost(ctx, postID, true)
}

func (store *Store) getPost(ctx context.Context, postID engine.PostID, forUpdate bool) (engine.Post, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = store.lockForUpdate(query)
	}
	var model Post
	err := query.Where("post_id = ?", postID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Post{}, wrapStoreError(errorSubjectPost, errorCodeNotFound, engine.ErrPostNotFound)
	}
	if err != nil {
		return engine.Post{}, wrapStoreError(errorSubjectPost, errorCodeGet, err)
	}
	post, err := postFromModel(model)
	if err != nil {
		return engine.Post{}, wrapStoreError(errorSubjectPost, errorCodeDecodeRecord, err)
	}
	return post, nil
}

func (store *Store) SavePost(ctx context.Context, post engine.Post) error {
	model, err := postToModel(post)
	if err != nil {
		return wrapStoreError(errorSubjectPost, errorCodeMarshalJSON, err)
	}
	result := store.db.WithContext(ctx).Model(&Post{}).
		Where("post_id = ?", model.PostID).
		Updates(map[string]interface{}{
			"like_count":      model.LikeCount,
			"reaction_count":  model.ReactionCount,
			"reaction_counts": model.ReactionCounts,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPost, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPost, errorCodeNotFound, engine.ErrPostNotFound)
	}
	return nil
}

func (store *Store) ListPosts(ctx context.Context, limit int) ([]engine.Post, error) {
	var rows []Post
	err := store.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPost, errorCodeList, err)
	}
	posts := make([]engine.Post, 0, len(rows))
	for _, row := range rows {
		post, err := postFromModel(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPost, errorCodeDecodeRecord, err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (store *Store) HasLikeGrant(ctx context.Context, spenderID engine.UserID, postID engine.PostID) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&LikeGrant{}).
		Where("spender_id = ? AND post_id = ?", spenderID.String(), postID.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectGrant, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *Store) CreateLikeGrant(ctx context.Context, grant engine.LikeGrant) error {
	model := LikeGrant{
		SpenderID: grant.SpenderID.String(),
		PostID:    grant.PostID.String(),
		CreatedAt: time.Unix(grant.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectGrant, errorCodeDuplicate, engine.ErrAlreadyGranted)
	}
	if err != nil {
		return wrapStoreError(errorSubjectGrant, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) ListLikeGrants(ctx context.Context, spenderID engine.UserID) ([]engine.LikeGrant, error) {
	var rows []LikeGrant
	err := store.db.WithContext(ctx).
		Where("spender_id = ?", spenderID.String()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectGrant, errorCodeList, err)
	}
	grants := make([]engine.LikeGrant, 0, len(rows))
	for _, row := range rows {
		grantSpenderID, err := engine.NewUserID(row.SpenderID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectGrant, errorCodeDecodeRecord, err)
		}
		postID, err := engine.NewPostID(row.PostID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectGrant, errorCodeDecodeRecord, err)
		}
		grants = append(grants, engine.LikeGrant{
			SpenderID:      grantSpenderID,
			PostID:         postID,
			CreatedUnixUTC: row.CreatedAt.Unix(),
		})
	}
	return grants, nil
}

func (store *Store) HasReactionGrant(ctx context.Context, spenderID engine.UserID, postID engine.PostID, kind engine.ReactionKind) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&ReactionGrant{}).
		Where("spender_id = ? AND post_id = ? AND kind = ?", spenderID.String(), postID.String(), kind.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectGrant, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *Store) CreateReactionGrant(ctx context.Context, grant engine.ReactionGrant) error {
	model := ReactionGrant{
		SpenderID: grant.SpenderID.String(),
		PostID:    grant.PostID.String(),
		Kind:      grant.Kind.String(),
		CreatedAt: time.Unix(grant.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectGrant, errorCodeDuplicate, engine.ErrAlreadyGranted)
	}
	if err != nil {
		return wrapStoreError(errorSubjectGrant, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) HasFollow(ctx context.Context, followerID engine.UserID, followeeID engine.UserID) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID.String(), followeeID.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectFollow, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *Store) CreateFollow(ctx context.Context, follow engine.Follow) error {
	model := Follow{
		FollowerID: follow.FollowerID.String(),
		FolloweeID: follow.FolloweeID.String(),
		CreatedAt:  time.Unix(follow.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectFollow, errorCodeDuplicate, engine.ErrAlreadyFollowing)
	}
	if err != nil {
		return wrapStoreError(errorSubjectFollow, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) CreateCashOutRequest(ctx context.Context, request engine.CashOutRequest) error {
	model := CashOutRequest{
		RequestID:  request.RequestID,
		UserID:     request.UserID.String(),
		Amount:     request.Amount,
		FiatAmount: request.FiatAmount,
		Status:     string(request.Status),
		CreatedAt:  time.Unix(request.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectCashOut, errorCodeCreate, err)
	}
	return nil
}

// AddPlatformTotals merges the delta into the singleton row, creating it with
// zeroed counters on first use.
func (store *Store) AddPlatformTotals(ctx context.Context, delta engine.PlatformTotals) error {
	db := store.db.WithContext(ctx)
	var row PlatformTotals
	err := store.lockForUpdate(db).
		Where("id = ?", platformTotalsRowID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = PlatformTotals{ID: platformTotalsRowID}
		if createErr := db.Create(&row).Error; createErr != nil {
			if isUniqueViolation(createErr) {
				// Lost the bootstrap race. On PostgreSQL the violation has
				// already aborted the surrounding transaction, so surface a
				// conflict and let the engine retry the whole operation.
				return wrapStoreError(errorSubjectTotals, errorCodeConflict, engine.ErrTxConflict)
			}
			return wrapStoreError(errorSubjectTotals, errorCodeCreate, createErr)
		}
	} else if err != nil {
		return wrapStoreError(errorSubjectTotals, errorCodeGet, err)
	}
	result := db.Model(&PlatformTotals{}).
		Where("id = ?", platformTotalsRowID).
		Updates(map[string]interface{}{
			"revenue":   row.Revenue.Add(delta.Revenue),
			"likes":     gorm.Expr("likes + ?", delta.Likes),
			"reactions": gorm.Expr("reactions + ?", delta.Reactions),
			"purchases": gorm.Expr("purchases + ?", delta.Purchases),
			"cash_outs": gorm.Expr("cash_outs + ?", delta.CashOuts),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectTotals, errorCodeAccumulate, result.Error)
	}
	return nil
}

// PlatformTotals returns the current bookkeeping row (zero values before the
// first monetized operation). Reporting only; the engine never reads it.
func (store *Store) PlatformTotals(ctx context.Context) (engine.PlatformTotals, error) {
	var row PlatformTotals
	err := store.db.WithContext(ctx).Where("id = ?", platformTotalsRowID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.PlatformTotals{}, nil
	}
	if err != nil {
		return engine.PlatformTotals{}, wrapStoreError(errorSubjectTotals, errorCodeGet, err)
	}
	return engine.PlatformTotals{
		Revenue:   row.Revenue,
		Likes:     row.Likes,
		Reactions: row.Reactions,
		Purchases: row.Purchases,
		CashOuts:  row.CashOuts,
	}, nil
}

func (store *Store) InsertEntry(ctx context.Context, entry engine.TransactionEntry) error {
	model := TransactionEntry{
		EntryID:        entry.EntryID,
		UserID:         entry.UserID.String(),
		Type:           string(entry.Type),
		Amount:         entry.Amount,
		CounterpartyID: entry.CounterpartyID.String(),
		PostID:         entry.PostID.String(),
		Kind:           entry.Kind.String(),
		Metadata:       datatypesJSON(entry.MetadataJSON.String()),
		CreatedAt:      time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListEntries(ctx context.Context, userID engine.UserID, beforeUnixUTC int64, limit int) ([]engine.TransactionEntry, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}
	var rows []TransactionEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND created_at < ?", userID.String(), before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]engine.TransactionEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := entryFromModel(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeDecodeRecord, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// lockForUpdate adds a row lock on PostgreSQL. SQLite has no FOR UPDATE in its
// grammar and serializes writers per database, so the clause is omitted there.
func (store *Store) lockForUpdate(query *gorm.DB) *gorm.DB {
	if store.db.Dialector.Name() == "sqlite" {
		return query
	}
	return query.Clauses(clause.Locking{Strength: "UPDATE"})
}

func wrapStoreError(subject string, code string, err error) error {
	return engine.WrapError(errorOperationStore, subject, code, err)
}

func accountToModel(account engine.Account) (Account, error) {
	owned, err := json.Marshal(account.OwnedReactionKinds.Strings())
	if err != nil {
		return Account{}, err
	}
	return Account{
		UserID:             account.UserID.String(),
		DisplayName:        account.DisplayName,
		SpendableBalance:   account.SpendableBalance,
		PendingEarnings:    account.PendingEarnings,
		LifetimeEarned:     account.LifetimeEarned,
		LifetimeSpent:      account.LifetimeSpent,
		LifetimeCashedOut:  account.LifetimeCashedOut,
		HasCashedOut:       account.HasCashedOut,
		OwnedReactionKinds: datatypes.JSON(owned),
		CreatedAt:          time.Unix(account.CreatedUnixUTC, 0).UTC(),
	}, nil
}

func accountFromModel(model Account) (engine.Account, error) {
	userID, err := engine.NewUserID(model.UserID)
	if err != nil {
		return engine.Account{}, err
	}
	var rawKinds []string
	if len(model.OwnedReactionKinds) > 0 {
		if err := json.Unmarshal(model.OwnedReactionKinds, &rawKinds); err != nil {
			return engine.Account{}, err
		}
	}
	owned := make(engine.ReactionKindSet, 0, len(rawKinds))
	for _, raw := range rawKinds {
		kind, err := engine.NewReactionKind(raw)
		if err != nil {
			return engine.Account{}, err
		}
		owned = owned.Add(kind)
	}
	return engine.Account{
		UserID:             userID,
		DisplayName:        model.DisplayName,
		SpendableBalance:   model.SpendableBalance,
		PendingEarnings:    model.PendingEarnings,
		LifetimeEarned:     model.LifetimeEarned,
		LifetimeSpent:      model.LifetimeSpent,
		LifetimeCashedOut:  model.LifetimeCashedOut,
		HasCashedOut:       model.HasCashedOut,
		OwnedReactionKinds: owned,
		CreatedUnixUTC:     model.CreatedAt.Unix(),
	}, nil
}

func postToModel(post engine.Post) (Post, error) {
	counts := post.ReactionCounts
	if counts == nil {
		counts = map[string]int64{}
	}
	encoded, err := json.Marshal(counts)
	if err != nil {
		return Post{}, err
	}
	return Post{
		PostID:         post.PostID.String(),
		AuthorID:       post.AuthorID.String(),
		Content:        post.Content,
		LikeCount:      post.LikeCount,
		ReactionCount:  post.ReactionCount,
		ReactionCounts: datatypes.JSON(encoded),
		CreatedAt:      time.Unix(post.CreatedUnixUTC, 0).UTC(),
	}, nil
}

func postFromModel(model Post) (engine.Post, error) {
	postID, err := engine.NewPostID(model.PostID)
	if err != nil {
		return engine.Post{}, err
	}
	authorID, err := engine.NewUserID(model.AuthorID)
	if err != nil {
		return engine.Post{}, err
	}
	counts := map[string]int64{}
	if len(model.ReactionCounts) > 0 {
		if err := json.Unmarshal(model.ReactionCounts, &counts); err != nil {
			return engine.Post{}, err
		}
	}
	return engine.Post{
		PostID:         postID,
		AuthorID:       authorID,
		Content:        model.Content,
		LikeCount:      model.LikeCount,
		ReactionCount:  model.ReactionCount,
		ReactionCounts: counts,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func entryFromModel(model TransactionEntry) (engine.TransactionEntry, error) {
	userID, err := engine.NewUserID(model.UserID)
	if err != nil {
		return engine.TransactionEntry{}, err
	}
	metadata, err := engine.NewMetadataJSON(string(model.Metadata))
	if err != nil {
		return engine.TransactionEntry{}, err
	}
	entry := engine.TransactionEntry{
		EntryID:        model.EntryID,
		UserID:         userID,
		Type:           engine.EntryType(model.Type),
		Amount:         model.Amount,
		MetadataJSON:   metadata,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
	if model.CounterpartyID != "" {
		counterpartyID, err := engine.NewUserID(model.CounterpartyID)
		if err != nil {
			return engine.TransactionEntry{}, err
		}
		entry.CounterpartyID = counterpartyID
	}
	if model.PostID != "" {
		postID, err := engine.NewPostID(model.PostID)
		if err != nil {
			return engine.TransactionEntry{}, err
		}
		entry.PostID = postID
	}
	if model.Kind != "" {
		kind, err := engine.NewReactionKind(model.Kind)
		if err != nil {
			return engine.TransactionEntry{}, err
		}
		entry.Kind = kind
	}
	return entry, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func isTxConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailureCode || pgErr.Code == pgDeadlockDetectedCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		primary := sqliteErr.Code() & 0xFF
		return primary == sqliteBusyCode || primary == sqliteLockedCode
	}
	return false
}
