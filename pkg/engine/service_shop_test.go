package engine

import (
	"context"
	"errors"
	"testing"
)

func TestPurchaseReactionKindAddsOwnershipAndBooksCommission(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	userID := store.seedAccount(t, "buyer", 100)
	fire := mustKind(t, "fire")

	if err := service.PurchaseReactionKind(context.Background(), userID, fire, mustPrice(t, "5")); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	account := store.mustAccount(t, userID)
	mustDecimalEqual(t, "balance after purchase", account.SpendableBalance, "95")
	mustDecimalEqual(t, "lifetime spent", account.LifetimeSpent, "5")
	if !account.OwnedReactionKinds.Contains(fire) {
		t.Fatalf("purchase did not add the kind: %v", account.OwnedReactionKinds.Strings())
	}
	mustDecimalEqual(t, "platform commission", store.totals.Revenue, "0.5")
	if store.totals.Purchases != 1 {
		t.Fatalf("expected totals.Purchases 1, got %d", store.totals.Purchases)
	}
	if len(store.entries) != 1 || store.entries[0].Type != EntryPurchase {
		t.Fatalf("expected one purchase entry, got %+v", store.entries)
	}
	mustDecimalEqual(t, "purchase entry amount", store.entries[0].Amount, "-5")
}

func TestPurchaseReactionKindAlreadyOwned(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	userID := store.seedAccount(t, "buyer", 100, "fire")

	err := service.PurchaseReactionKind(context.Background(), userID, mustKind(t, "fire"), mustPrice(t, "5"))
	if !errors.Is(err, ErrReactionAlreadyOwned) {
		t.Fatalf("expected ErrReactionAlreadyOwned, got %v", err)
	}
	mustDecimalEqual(t, "balance unchanged", store.mustAccount(t, userID).SpendableBalance, "100")
}

func TestPurchaseReactionKindInsufficientBalance(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	userID := store.seedAccount(t, "buyer", 2)

	err := service.PurchaseReactionKind(context.Background(), userID, mustKind(t, "fire"), mustPrice(t, "5"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTopUpCreditsSpendableBalance(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	userID := store.seedAccount(t, "user", 10)

	if err := service.TopUp(context.Background(), userID, mustPrice(t, "50")); err != nil {
		t.Fatalf("top up: %v", err)
	}
	mustDecimalEqual(t, "balance after top-up", store.mustAccount(t, userID).SpendableBalance, "60")
	if len(store.entries) != 1 || store.entries[0].Type != EntryTopUp {
		t.Fatalf("expected one topup entry, got %+v", store.entries)
	}
	mustDecimalEqual(t, "topup entry amount", store.entries[0].Amount, "50")
}

func TestTopUpUnknownAccount(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)

	err := service.TopUp(context.Background(), mustUserID(t, "ghost"), mustPrice(t, "50"))
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
