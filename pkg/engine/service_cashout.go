package engine

import (
	"context"

	"github.com/google/uuid"
)

// RequestCashOut withdraws the full pending-earnings balance. The transition
// is terminal: HasCashedOut flips to true exactly once and every later
// like/reaction on this author's posts routes its full price to the platform.
func (service *Service) RequestCashOut(ctx context.Context, userID UserID) (CashOutRequest, error) {
	var request CashOutRequest
	operationError := service.runWrite(ctx, func(ctx context.Context, txStore Store) error {
		account, err := txStore.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if account.PendingEarnings.LessThan(service.economy.MinCashOutThreshold) {
			return ErrBelowMinimumThreshold
		}
		amount := account.PendingEarnings
		fiat := amount.Div(service.economy.ExchangeRate)
		nowUnixUTC := service.nowFn()
		request = CashOutRequest{
			RequestID:      uuid.NewString(),
			UserID:         userID,
			Amount:         amount,
			FiatAmount:     fiat,
			Status:         CashOutStatusPending,
			CreatedUnixUTC: nowUnixUTC,
		}
		account.PendingEarnings = account.PendingEarnings.Sub(amount)
		account.HasCashedOut = true
		account.LifetimeCashedOut = account.LifetimeCashedOut.Add(fiat)
		if err := txStore.SaveAccount(ctx, account); err != nil {
			return err
		}
		if err := txStore.CreateCashOutRequest(ctx, request); err != nil {
			return err
		}
		if err := txStore.AddPlatformTotals(ctx, PlatformTotals{CashOuts: 1}); err != nil {
			return err
		}
		return txStore.InsertEntry(ctx, TransactionEntry{
			EntryID:        uuid.NewString(),
			UserID:         userID,
			Type:           EntryCashOut,
			Amount:         amount.Neg(),
			CreatedUnixUTC: nowUnixUTC,
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCashOut,
		UserID:    userID,
		Amount:    request.Amount.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return CashOutRequest{}, operationError
	}
	return request, nil
}
