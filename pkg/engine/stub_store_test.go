package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

// stubStore keeps everything in maps. WithTx serializes callers with a mutex
// so concurrent service calls observe consistent state; nothing is rolled
// back, which is fine because the service checks business rules before it
// mutates.
type stubStore struct {
	mu sync.Mutex

	accounts       map[UserID]Account
	posts          map[PostID]Post
	likeGrants     map[likeKey]LikeGrant
	reactionGrants map[reactionKey]struct{}
	follows        map[followKey]struct{}
	cashOuts       []CashOutRequest
	totals         PlatformTotals
	entries        []TransactionEntry
	listEntries    []TransactionEntry

	txCalls            int
	conflictsRemaining int
}

type likeKey struct {
	spender UserID
	post    PostID
}

type reactionKey struct {
	spender UserID
	post    PostID
	kind    ReactionKind
}

type followKey struct {
	follower UserID
	followee UserID
}

func newStubStore() *stubStore {
	return &stubStore{
		accounts:       make(map[UserID]Account),
		posts:          make(map[PostID]Post),
		likeGrants:     make(map[likeKey]LikeGrant),
		reactionGrants: make(map[reactionKey]struct{}),
		follows:        make(map[followKey]struct{}),
	}
}

func (s *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCalls++
	if s.conflictsRemaining > 0 {
		s.conflictsRemaining--
		return ErrTxConflict
	}
	return fn(ctx, s)
}

func (s *stubStore) CreateAccount(ctx context.Context, account Account) error {
	if _, exists := s.accounts[account.UserID]; exists {
		return ErrAccountExists
	}
	s.accounts[account.UserID] = account
	return nil
}

func (s *stubStore) GetAccount(ctx context.Context, userID UserID) (Account, error) {
	account, ok := s.accounts[userID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *stubStore) GetAccountForUpdate(ctx context.Context, userID UserID) (Account, error) {
	return s.GetAccount(ctx, userID)
}

func (s *stubStore) SaveAccount(ctx context.Context, account Account) error {
	if _, ok := s.accounts[account.UserID]; !ok {
		return ErrAccountNotFound
	}
	s.accounts[account.UserID] = account
	return nil
}

func (s *stubStore) CreatePost(ctx context.Context, post Post) error {
	s.posts[post.PostID] = post
	return nil
}

func (s *stubStore) GetPost(ctx context.Context, postID PostID) (Post, error) {
	post, ok := s.posts[postID]
	if !ok {
		return Post{}, ErrPostNotFound
	}
	return post, nil
}

func (s *stubStore) GetPostForUpdate(ctx context.Context, postID PostID) (Post, error) {
	return s.GetPost(ctx, postID)
}

func (s *stubStore) SavePost(ctx context.Context, post Post) error {
	if _, ok := s.posts[post.PostID]; !ok {
		return ErrPostNotFound
	}
	s.posts[post.PostID] = post
	return nil
}

func (s *stubStore) ListPosts(ctx context.Context, limit int) ([]Post, error) {
	out := make([]Post, 0, len(s.posts))
	for _, post := range s.posts {
		out = append(out, post)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) HasLikeGrant(ctx context.Context, spenderID UserID, postID PostID) (bool, error) {
	_, ok := s.likeGrants[likeKey{spender: spenderID, post: postID}]
	return ok, nil
}

func (s *stubStore) CreateLikeGrant(ctx context.Context, grant LikeGrant) error {
	key := likeKey{spender: grant.SpenderID, post: grant.PostID}
	if _, exists := s.likeGrants[key]; exists {
		return ErrAlreadyGranted
	}
	s.likeGrants[key] = grant
	return nil
}

func (s *stubStore) ListLikeGrants(ctx context.Context, spenderID UserID) ([]LikeGrant, error) {
	var grants []LikeGrant
	for _, grant := range s.likeGrants {
		if grant.SpenderID == spenderID {
			grants = append(grants, grant)
		}
	}
	return grants, nil
}

func (s *stubStore) HasReactionGrant(ctx context.Context, spenderID UserID, postID PostID, kind ReactionKind) (bool, error) {
	_, ok := s.reactionGrants[reactionKey{spender: spenderID, post: postID, kind: kind}]
	return ok, nil
}

func (s *stubStore) CreateReactionGrant(ctx context.Context, grant ReactionGrant) error {
	key := reactionKey{spender: grant.SpenderID, post: grant.PostID, kind: grant.Kind}
	if _, exists := s.reactionGrants[key]; exists {
		return ErrAlreadyGranted
	}
	s.reactionGrants[key] = struct{}{}
	return nil
}

func (s *stubStore) HasFollow(ctx context.Context, followerID UserID, followeeID UserID) (bool, error) {
	_, ok := s.follows[followKey{follower: followerID, followee: followeeID}]
	return ok, nil
}

func (s *stubStore) CreateFollow(ctx context.Context, follow Follow) error {
	key := followKey{follower: follow.FollowerID, followee: follow.FolloweeID}
	if _, exists := s.follows[key]; exists {
		return ErrAlreadyFollowing
	}
	s.follows[key] = struct{}{}
	return nil
}

func (s *stubStore) CreateCashOutRequest(ctx context.Context, request CashOutRequest) error {
	s.cashOuts = append(s.cashOuts, request)
	return nil
}

func (s *stubStore) AddPlatformTotals(ctx context.Context, delta PlatformTotals) error {
	s.totals.Revenue = s.totals.Revenue.Add(delta.Revenue)
	s.totals.Likes += delta.Likes
	s.totals.Reactions += delta.Reactions
	s.totals.Purchases += delta.Purchases
	s.totals.CashOuts += delta.CashOuts
	return nil
}

func (s *stubStore) InsertEntry(ctx context.Context, entry TransactionEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubStore) ListEntries(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]TransactionEntry, error) {
	return append([]TransactionEntry(nil), s.listEntries...), nil
}

func (s *stubStore) mustAccount(t *testing.T, userID UserID) Account {
	t.Helper()
	account, ok := s.accounts[userID]
	if !ok {
		t.Fatalf("account %s not found", userID)
	}
	return account
}

func (s *stubStore) mustPost(t *testing.T, postID PostID) Post {
	t.Helper()
	post, ok := s.posts[postID]
	if !ok {
		t.Fatalf("post %s not found", postID)
	}
	return post
}

// seedAccount bypasses the service so tests can start from arbitrary wallet
// states.
func (s *stubStore) seedAccount(t *testing.T, rawUserID string, balance int64, kinds ...string) UserID {
	t.Helper()
	userID := mustUserID(t, rawUserID)
	owned := ReactionKindSet{}
	for _, raw := range kinds {
		owned = owned.Add(mustKind(t, raw))
	}
	s.accounts[userID] = Account{
		UserID:             userID,
		DisplayName:        rawUserID,
		SpendableBalance:   decimal.NewFromInt(balance),
		OwnedReactionKinds: owned,
	}
	return userID
}

func (s *stubStore) seedPost(t *testing.T, rawPostID string, authorID UserID) PostID {
	t.Helper()
	postID := mustPostID(t, rawPostID)
	s.posts[postID] = Post{
		PostID:         postID,
		AuthorID:       authorID,
		Content:        "seeded",
		ReactionCounts: map[string]int64{},
	}
	return postID
}

// stubNotifier records emitted events.
type stubNotifier struct {
	mu     sync.Mutex
	events []NotificationEvent
	err    error
}

func (n *stubNotifier) Notify(ctx context.Context, event NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

// stubLogger records operation log entries.
type stubLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (l *stubLogger) LogOperation(ctx context.Context, entry OperationLog) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// --- helpers ---

func mustNewService(t *testing.T, store Store, options ...ServiceOption) *Service {
	t.Helper()
	service, err := NewService(store, func() int64 { return 100 }, DefaultEconomy(), options...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(t *testing.T, raw string) UserID {
	t.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return value
}

func mustPostID(t *testing.T, raw string) PostID {
	t.Helper()
	value, err := NewPostID(raw)
	if err != nil {
		t.Fatalf("post id: %v", err)
	}
	return value
}

func mustKind(t *testing.T, raw string) ReactionKind {
	t.Helper()
	value, err := NewReactionKind(raw)
	if err != nil {
		t.Fatalf("reaction kind: %v", err)
	}
	return value
}

func mustPrice(t *testing.T, raw string) Price {
	t.Helper()
	value, err := NewPrice(decimal.RequireFromString(raw))
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	return value
}

func mustDecimalEqual(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got)
	}
}
