package engine

import (
	"context"

	"github.com/google/uuid"
)

// PurchaseReactionKind debits the price from the buyer, appends the kind to
// the owned set, and books the flat platform commission. The commission is
// independent of the like/reaction split policy.
func (service *Service) PurchaseReactionKind(ctx context.Context, userID UserID, kind ReactionKind, price Price) error {
	amount := price.Decimal()
	operationError := service.runWrite(ctx, func(ctx context.Context, txStore Store) error {
		account, err := txStore.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if account.OwnedReactionKinds.Contains(kind) {
			return ErrReactionAlreadyOwned
		}
		if account.SpendableBalance.LessThan(amount) {
			return ErrInsufficientBalance
		}
		account.SpendableBalance = account.SpendableBalance.Sub(amount)
		account.LifetimeSpent = account.LifetimeSpent.Add(amount)
		account.OwnedReactionKinds = account.OwnedReactionKinds.Add(kind)
		if err := txStore.SaveAccount(ctx, account); err != nil {
			return err
		}
		commission := amount.Mul(service.economy.PurchaseCommission)
		if err := txStore.AddPlatformTotals(ctx, PlatformTotals{Revenue: commission, Purchases: 1}); err != nil {
			return err
		}
		return txStore.InsertEntry(ctx, TransactionEntry{
			EntryID:        uuid.NewString(),
			UserID:         userID,
			Type:           EntryPurchase,
			Amount:         amount.Neg(),
			Kind:           kind,
			CreatedUnixUTC: service.nowFn(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationPurchase,
		UserID:    userID,
		Kind:      kind,
		Amount:    amount.String(),
		Error:     operationError,
	})
	return operationError
}

// TopUp credits the spendable balance. Payment settlement happens upstream;
// the engine only books the already-settled amount.
func (service *Service) TopUp(ctx context.Context, userID UserID, amount Price) error {
	value := amount.Decimal()
	operationError := service.runWrite(ctx, func(ctx context.Context, txStore Store) error {
		account, err := txStore.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		account.SpendableBalance = account.SpendableBalance.Add(value)
		if err := txStore.SaveAccount(ctx, account); err != nil {
			return err
		}
		return txStore.InsertEntry(ctx, TransactionEntry{
			EntryID:        uuid.NewString(),
			UserID:         userID,
			Type:           EntryTopUp,
			Amount:         value,
			CreatedUnixUTC: service.nowFn(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationTopUp,
		UserID:    userID,
		Amount:    value.String(),
		Error:     operationError,
	})
	return operationError
}
