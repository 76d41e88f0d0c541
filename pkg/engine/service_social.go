package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const maxPostContentLength = 2000

// CreatePost publishes a post with zeroed counters.
func (service *Service) CreatePost(ctx context.Context, authorID UserID, content string) (Post, error) {
	var post Post
	operationError := service.runWrite(ctx, func(ctx context.Context, txStore Store) error {
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || len(trimmed) > maxPostContentLength {
			return fmt.Errorf("%w: must be 1..%d characters", ErrInvalidContent, maxPostContentLength)
		}
		if _, err := txStore.GetAccount(ctx, authorID); err != nil {
			return err
		}
		postID, err := NewPostID(uuid.NewString())
		if err != nil {
			return err
		}
		post = Post{
			PostID:         postID,
			AuthorID:       authorID,
			Content:        trimmed,
			ReactionCounts: map[string]int64{},
			CreatedUnixUTC: service.nowFn(),
		}
		return txStore.CreatePost(ctx, post)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationPost,
		UserID:    authorID,
		PostID:    post.PostID,
		Error:     operationError,
	})
	if operationError != nil {
		return Post{}, operationError
	}
	return post, nil
}

// Follow records that follower follows followee and emits a follow event.
// Following moves no money; the grant record alone makes it idempotent.
func (service *Service) Follow(ctx context.Context, followerID UserID, followeeID UserID) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}
	var event *NotificationEvent
	operationError := service.runWrite(ctx, func(ctx context.Context, txStore Store) error {
		event = nil
		follower, err := txStore.GetAccount(ctx, followerID)
		if err != nil {
			return err
		}
		if _, err := txStore.GetAccount(ctx, followeeID); err != nil {
			return err
		}
		following, err := txStore.HasFollow(ctx, followerID, followeeID)
		if err != nil {
			return err
		}
		if following {
			return ErrAlreadyFollowing
		}
		nowUnixUTC := service.nowFn()
		if err := txStore.CreateFollow(ctx, Follow{
			FollowerID:     followerID,
			FolloweeID:     followeeID,
			CreatedUnixUTC: nowUnixUTC,
		}); err != nil {
			return err
		}
		event = &NotificationEvent{
			RecipientID:      followeeID,
			Kind:             NotificationFollow,
			ActorID:          followerID,
			ActorDisplayName: follower.DisplayName,
			CreatedUnixUTC:   nowUnixUTC,
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationFollow,
		UserID:    followerID,
		Error:     operationError,
	})
	if operationError != nil {
		return operationError
	}
	service.emit(ctx, event)
	return nil
}

// Post returns one post.
func (service *Service) Post(ctx context.Context, postID PostID) (Post, error) {
	return service.store.GetPost(ctx, postID)
}

// ListPosts returns the newest posts up to limit.
func (service *Service) ListPosts(ctx context.Context, limit int) ([]Post, error) {
	return service.store.ListPosts(ctx, limit)
}

// ListLikes returns the like grants a user has issued, so clients can render
// which posts are already liked.
func (service *Service) ListLikes(ctx context.Context, spenderID UserID) ([]LikeGrant, error) {
	return service.store.ListLikeGrants(ctx, spenderID)
}

// ListTransactions lists audit entries for a user before a cutoff time.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]TransactionEntry, error) {
	return service.store.ListEntries(ctx, userID, beforeUnixUTC, limit)
}
