package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCreateAccountSeedsStarterBalanceAndDefaultKinds(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)

	account, err := service.CreateAccount(context.Background(), mustUserID(t, "alice"), "Alice")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	mustDecimalEqual(t, "starter balance", account.SpendableBalance, "100")
	if !account.OwnedReactionKinds.Contains(mustKind(t, "heart")) {
		t.Fatalf("default kind missing: %v", account.OwnedReactionKinds.Strings())
	}
	if len(store.entries) != 1 || store.entries[0].Type != EntryStarter {
		t.Fatalf("expected one starter entry, got %+v", store.entries)
	}
}

func TestCreateAccountDuplicate(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)

	if _, err := service.CreateAccount(context.Background(), mustUserID(t, "alice"), "Alice"); err != nil {
		t.Fatalf("create account: %v", err)
	}
	_, err := service.CreateAccount(context.Background(), mustUserID(t, "alice"), "Alice Again")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestCreatePostValidatesContent(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	authorID := store.seedAccount(t, "author", 0)

	cases := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "whitespace only", content: "   \n\t"},
		{name: "too long", content: strings.Repeat("x", 2001)},
	}
	for _, testCase := range cases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			_, err := service.CreatePost(context.Background(), authorID, testCase.content)
			if !errors.Is(err, ErrInvalidContent) {
				t.Fatalf("expected ErrInvalidContent, got %v", err)
			}
		})
	}
}

func TestCreatePostRequiresExistingAccount(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)

	_, err := service.CreatePost(context.Background(), mustUserID(t, "ghost"), "hello")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestCreatePostTrimsContentAndZeroesCounters(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	authorID := store.seedAccount(t, "author", 0)

	post, err := service.CreatePost(context.Background(), authorID, "  hello world  ")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.Content != "hello world" {
		t.Fatalf("expected trimmed content, got %q", post.Content)
	}
	if post.LikeCount != 0 || post.ReactionCount != 0 || len(post.ReactionCounts) != 0 {
		t.Fatalf("counters not zeroed: %+v", post)
	}
	if post.PostID.String() == "" {
		t.Fatalf("post id not assigned")
	}
}

func TestFollowRejectsSelf(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	userID := store.seedAccount(t, "alice", 0)

	err := service.Follow(context.Background(), userID, userID)
	if !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("expected ErrSelfFollow, got %v", err)
	}
}

func TestFollowIsIdempotentAndEmitsEvent(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	notifier := &stubNotifier{}
	service := mustNewService(t, store, WithNotifier(notifier))
	aliceID := store.seedAccount(t, "alice", 0)
	bobID := store.seedAccount(t, "bob", 0)

	if err := service.Follow(context.Background(), aliceID, bobID); err != nil {
		t.Fatalf("follow: %v", err)
	}
	err := service.Follow(context.Background(), aliceID, bobID)
	if !errors.Is(err, ErrAlreadyFollowing) {
		t.Fatalf("expected ErrAlreadyFollowing, got %v", err)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(notifier.events))
	}
	event := notifier.events[0]
	if event.Kind != NotificationFollow || event.RecipientID != bobID || event.ActorID != aliceID {
		t.Fatalf("unexpected follow event: %+v", event)
	}
}

func TestFollowRequiresBothAccounts(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	aliceID := store.seedAccount(t, "alice", 0)

	err := service.Follow(context.Background(), aliceID, mustUserID(t, "ghost"))
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestListTransactionsDelegatesToStore(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	store.listEntries = []TransactionEntry{
		{EntryID: "e1"},
		{EntryID: "e2"},
	}
	service := mustNewService(t, store)

	out, err := service.ListTransactions(context.Background(), mustUserID(t, "alice"), 0, 5)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(out) != 2 || out[0].EntryID != "e1" || out[1].EntryID != "e2" {
		t.Fatalf("unexpected entries: %+v", out)
	}
}

func TestNotifierFailureDoesNotFailTheOperation(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	notifier := &stubNotifier{err: errors.New("sink down")}
	service := mustNewService(t, store, WithNotifier(notifier))
	aliceID := store.seedAccount(t, "alice", 0)
	bobID := store.seedAccount(t, "bob", 0)

	if err := service.Follow(context.Background(), aliceID, bobID); err != nil {
		t.Fatalf("follow should commit despite notifier failure: %v", err)
	}
	following, err := store.HasFollow(context.Background(), aliceID, bobID)
	if err != nil || !following {
		t.Fatalf("follow record missing: %v %v", following, err)
	}
}
