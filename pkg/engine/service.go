package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Service contains the wallet and revenue-split logic over a Store. All
// mutations of one operation happen inside a single store transaction so a
// failed operation leaves no partial effect.
type Service struct {
	store    Store
	economy  Economy
	nowFn    func() int64
	logger   OperationLogger
	notifier Notifier
}

// NewService wires a Service.
func NewService(store Store, now func() int64, economy Economy, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if err := economy.Validate(); err != nil {
		return nil, err
	}
	service := &Service{store: store, economy: economy, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Economy returns the monetary policy the service applies.
func (service *Service) Economy() Economy {
	return service.economy
}

// CreateAccount provisions a wallet at signup with the starter balance and
// the default owned-reaction set.
func (service *Service) CreateAccount(ctx context.Context, userID UserID, displayName string) (Account, error) {
	var account Account
	operationError := service.runWrite(ctx, func(ctx context.Context, txStore Store) error {
		owned := make(ReactionKindSet, 0, len(service.economy.DefaultReactionKinds))
		for _, raw := range service.economy.DefaultReactionKinds {
			kind, err := NewReactionKind(raw)
			if err != nil {
				return err
			}
			owned = owned.Add(kind)
		}
		nowUnixUTC := service.nowFn()
		account = Account{
			UserID:             userID,
			DisplayName:        displayName,
			SpendableBalance:   service.economy.StarterBalance,
			OwnedReactionKinds: owned,
			CreatedUnixUTC:     nowUnixUTC,
		}
		if err := txStore.CreateAccount(ctx, account); err != nil {
			return err
		}
		if service.economy.StarterBalance.Sign() <= 0 {
			return nil
		}
		return txStore.InsertEntry(ctx, TransactionEntry{
			EntryID:        uuid.NewString(),
			UserID:         userID,
			Type:           EntryStarter,
			Amount:         service.economy.StarterBalance,
			CreatedUnixUTC: nowUnixUTC,
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSignup,
		UserID:    userID,
		Amount:    service.economy.StarterBalance.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return Account{}, operationError
	}
	return account, nil
}

// Account returns the wallet record for a user.
func (service *Service) Account(ctx context.Context, userID UserID) (Account, error) {
	return service.store.GetAccount(ctx, userID)
}

// GrantLike charges the spender one like and splits the price between the
// post author and the platform. The split is decided from the author's
// cash-out flag as it stands inside this transaction.
func (service *Service) GrantLike(ctx context.Context, spenderID UserID, postID PostID) error {
	price := service.economy.LikePrice
	var event *NotificationEvent
	operationError := service.runWrite(ctx, func(ctx context.Context, txStore Store) error {
		event = nil
		post, err := txStore.GetPostForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		granted, err := txStore.HasLikeGrant(ctx, spenderID, postID)
		if err != nil {
			return err
		}
		if granted {
			return ErrAlreadyGranted
		}
		spender, author, err := lockPair(ctx, txStore, spenderID, post.AuthorID)
		if err != nil {
			return err
		}
		if spender.SpendableBalance.LessThan(price) {
			return ErrInsufficientBalance
		}
		creatorCut := price.Mul(service.economy.shareFor(*author))
		platformCut := price.Sub(creatorCut)

		spender.SpendableBalance = spender.SpendableBalance.Sub(price)
		spender.LifetimeSpent = spender.LifetimeSpent.Add(price)
		if creatorCut.Sign() > 0 {
			author.PendingEarnings = author.PendingEarnings.Add(creatorCut)
			author.LifetimeEarned = author.LifetimeEarned.Add(creatorCut)
		}
		post.LikeCount++

		nowUnixUTC := service.nowFn()
		if err := saveAccounts(ctx, txStore, spender, author); err != nil {
			return err
		}
		if err := txStore.SavePost(ctx, post); err != nil {
			return err
		}
		if err := txStore.CreateLikeGrant(ctx, LikeGrant{
			SpenderID:      spenderID,
			PostID:         postID,
			CreatedUnixUTC: nowUnixUTC,
		}); err != nil {
			return err
		}
		if err := txStore.AddPlatformTotals(ctx, PlatformTotals{Revenue: platformCut, Likes: 1}); err != nil {
			return err
		}
		if err := txStore.InsertEntry(ctx, TransactionEntry{
			EntryID:        uuid.NewString(),
			UserID:         spenderID,
			Type:           EntryDebit,
			Amount:         price.Neg(),
			CounterpartyID: post.AuthorID,
			PostID:         postID,
			CreatedUnixUTC: nowUnixUTC,
		}); err != nil {
			return err
		}
		if err := txStore.InsertEntry(ctx, TransactionEntry{
			EntryID:        uuid.NewString(),
			UserID:         post.AuthorID,
			Type:           EntryCredit,
			Amount:         creatorCut,
			CounterpartyID: spenderID,
			PostID:         postID,
			CreatedUnixUTC: nowUnixUTC,
		}); err != nil {
			return err
		}
		if spenderID != post.AuthorID {
			event = &NotificationEvent{
				RecipientID:      post.AuthorID,
				Kind:             NotificationLike,
				ActorID:          spenderID,
				ActorDisplayName: spender.DisplayName,
				PostID:           postID,
				CreatedUnixUTC:   nowUnixUTC,
			}
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationLike,
		UserID:    spenderID,
		PostID:    postID,
		Amount:    price.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return operationError
	}
	service.emit(ctx, event)
	return nil
}

// GrantReaction charges the spender the reaction price and splits it like a
// like. The spender must own the reaction kind.
func (service *Service) GrantReaction(ctx context.Context, spenderID UserID, postID PostID, kind ReactionKind, price Price) error {
	var event *NotificationEvent
	operationError := service.runWrite(ctx, func(ctx context.Context, txStore Store) error {
		event = nil
		post, err := txStore.GetPostForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		granted, err := txStore.HasReactionGrant(ctx, spenderID, postID, kind)
		if err != nil {
			return err
		}
		if granted {
			return ErrAlreadyGranted
		}
		spender, author, err := lockPair(ctx, txStore, spenderID, post.AuthorID)
		if err != nil {
			return err
		}
		if !spender.OwnedReactionKinds.Contains(kind) {
			return ErrReactionNotOwned
		}
		amount := price.Decimal()
		if spender.SpendableBalance.LessThan(amount) {
			return ErrInsufficientBalance
		}
		creatorCut := amount.Mul(service.economy.shareFor(*author))
		platformCut := amount.Sub(creatorCut)

		spender.SpendableBalance = spender.SpendableBalance.Sub(amount)
		spender.LifetimeSpent = spender.LifetimeSpent.Add(amount)
		if creatorCut.Sign() > 0 {
			author.PendingEarnings = author.PendingEarnings.Add(creatorCut)
			author.LifetimeEarned = author.LifetimeEarned.Add(creatorCut)
		}
		post.ReactionCount++
		if post.ReactionCounts == nil {
			post.ReactionCounts = map[string]int64{}
		}
		post.ReactionCounts[kind.String()]++

		nowUnixUTC := service.nowFn()
		if err := saveAccounts(ctx, txStore, spender, author); err != nil {
			return err
		}
		if err := txStore.SavePost(ctx, post); err != nil {
			return err
		}
		if err := txStore.CreateReactionGrant(ctx, ReactionGrant{
			SpenderID:      spenderID,
			PostID:         postID,
			Kind:           kind,
			CreatedUnixUTC: nowUnixUTC,
		}); err != nil {
			return err
		}
		if err := txStore.AddPlatformTotals(ctx, PlatformTotals{Revenue: platformCut, Reactions: 1}); err != nil {
			return err
		}
		if err := txStore.InsertEntry(ctx, TransactionEntry{
			EntryID:        uuid.NewString(),
			UserID:         spenderID,
			Type:           EntryDebit,
			Amount:         amount.Neg(),
			CounterpartyID: post.AuthorID,
			PostID:         postID,
			Kind:           kind,
			CreatedUnixUTC: nowUnixUTC,
		}); err != nil {
			return err
		}
		if err := txStore.InsertEntry(ctx, TransactionEntry{
			EntryID:        uuid.NewString(),
			UserID:         post.AuthorID,
			Type:           EntryCredit,
			Amount:         creatorCut,
			CounterpartyID: spenderID,
			PostID:         postID,
			Kind:           kind,
			CreatedUnixUTC: nowUnixUTC,
		}); err != nil {
			return err
		}
		if spenderID != post.AuthorID {
			event = &NotificationEvent{
				RecipientID:      post.AuthorID,
				Kind:             NotificationReaction,
				ActorID:          spenderID,
				ActorDisplayName: spender.DisplayName,
				PostID:           postID,
				ReactionKind:     kind,
				CreatedUnixUTC:   nowUnixUTC,
			}
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationReaction,
		UserID:    spenderID,
		PostID:    postID,
		Kind:      kind,
		Amount:    price.Decimal().String(),
		Error:     operationError,
	})
	if operationError != nil {
		return operationError
	}
	service.emit(ctx, event)
	return nil
}

// runWrite executes fn in a store transaction, transparently retrying
// transaction conflicts a bounded number of times. Business-rule failures are
// surfaced on the first attempt and never retried.
func (service *Service) runWrite(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		lastErr = service.store.WithTx(ctx, fn)
		if lastErr == nil || !errors.Is(lastErr, ErrTxConflict) || isBusinessError(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: %d conflict retries exhausted: %v", ErrOperationFailed, maxConflictRetries, lastErr)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// emit hands a committed event to the notifier. Emission is best-effort: the
// balance transfer has already committed and is never rolled back here.
func (service *Service) emit(ctx context.Context, event *NotificationEvent) {
	if service.notifier == nil || event == nil {
		return
	}
	if err := service.notifier.Notify(ctx, *event); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: "notify",
			UserID:    event.RecipientID,
			Status:    operationStatusError,
			Error:     err,
		})
	}
}

// lockPair locks the spender and author accounts in a deterministic order so
// concurrent operations on the same pair cannot deadlock. When the spender is
// the author both pointers refer to the same record.
func lockPair(ctx context.Context, txStore Store, spenderID UserID, authorID UserID) (*Account, *Account, error) {
	if spenderID == authorID {
		account, err := txStore.GetAccountForUpdate(ctx, spenderID)
		if err != nil {
			return nil, nil, err
		}
		return &account, &account, nil
	}
	firstID, secondID := spenderID, authorID
	if secondID.String() < firstID.String() {
		firstID, secondID = secondID, firstID
	}
	first, err := txStore.GetAccountForUpdate(ctx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := txStore.GetAccountForUpdate(ctx, secondID)
	if err != nil {
		return nil, nil, err
	}
	if firstID == spenderID {
		return &first, &second, nil
	}
	return &second, &first, nil
}

// saveAccounts persists the mutated pair, writing once when both point at the
// same record.
func saveAccounts(ctx context.Context, txStore Store, spender *Account, author *Account) error {
	if err := txStore.SaveAccount(ctx, *spender); err != nil {
		return err
	}
	if spender == author {
		return nil
	}
	return txStore.SaveAccount(ctx, *author)
}
