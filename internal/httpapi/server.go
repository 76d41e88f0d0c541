package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/TbhX/centx-backend/internal/notify"
	"github.com/TbhX/centx-backend/pkg/engine"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TotalsReader exposes the platform bookkeeping row for the admin view.
type TotalsReader interface {
	PlatformTotals(ctx context.Context) (engine.PlatformTotals, error)
}

// Server exposes the ledger engine over HTTP.
type Server struct {
	engine        *engine.Service
	notifications *notify.Emitter
	totals        TotalsReader
	gatherer      prometheus.Gatherer
	logger        *zap.Logger
	cfg           Config
}

// NewServer wires the HTTP facade.
func NewServer(ledgerEngine *engine.Service, notifications *notify.Emitter, totals TotalsReader, gatherer prometheus.Gatherer, logger *zap.Logger, cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		engine:        ledgerEngine,
		notifications: notifications,
		totals:        totals,
		gatherer:      gatherer,
		logger:        logger,
		cfg:           cfg,
	}, nil
}

// Router builds the gin engine with all routes mounted.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{})))

	router.POST("/api/signup", server.handleSignup)

	api := router.Group("/api")
	api.Use(authRequired(&server.cfg))

	api.GET("/wallet", server.handleWallet)
	api.POST("/wallet/topup", server.handleTopUp)
	api.POST("/wallet/cashout", server.handleCashOut)
	api.GET("/posts", server.handleListPosts)
	api.POST("/posts", server.handleCreatePost)
	api.POST("/posts/:id/like", server.handleLike)
	api.GET("/likes", server.handleListLikes)
	api.POST("/posts/:id/reactions", server.handleReaction)
	api.GET("/shop/reactions", server.handleCatalog)
	api.POST("/shop/reactions", server.handlePurchase)
	api.POST("/users/:id/follow", server.handleFollow)
	api.GET("/notifications", server.handleListNotifications)
	api.POST("/notifications/:id/read", server.handleMarkNotificationRead)
	api.GET("/transactions", server.handleListTransactions)
	api.GET("/admin/totals", server.handleTotals)

	return router
}

// Run serves the router until the context is cancelled.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type signupRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

func (server *Server) handleSignup(ctx *gin.Context) {
	var request signupRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "display_name is required"))
		return
	}
	userID, err := engine.NewUserID(uuid.NewString())
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	account, err := server.engine.CreateAccount(ctx.Request.Context(), userID, request.DisplayName)
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	token, err := server.cfg.GenerateToken(userID.String(), request.DisplayName, time.Now().UTC())
	if err != nil {
		server.logger.Error("token mint failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "token mint failed"))
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"token":   token,
		"account": accountResponse(account),
	})
}

func (server *Server) handleWallet(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	account, err := server.engine.Account(ctx.Request.Context(), userID)
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, accountResponse(account))
}

type topUpRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (server *Server) handleTopUp(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	var request topUpRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "amount is required"))
		return
	}
	raw, err := decimal.NewFromString(request.Amount)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", "amount must be a decimal string"))
		return
	}
	amount, err := engine.NewPrice(raw)
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	if err := server.engine.TopUp(ctx.Request.Context(), userID, amount); err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	server.respondWallet(ctx, userID)
}

func (server *Server) handleCashOut(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	request, err := server.engine.RequestCashOut(ctx.Request.Context(), userID)
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"request_id":  request.RequestID,
		"amount":      request.Amount.String(),
		"fiat_amount": request.FiatAmount.String(),
		"status":      string(request.Status),
	})
}

func (server *Server) handleListPosts(ctx *gin.Context) {
	limit := normalizeListLimit(queryInt(ctx, "limit"), defaultFeedLimit)
	posts, err := server.engine.ListPosts(ctx.Request.Context(), limit)
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(posts))
	for _, post := range posts {
		payload = append(payload, postResponse(post))
	}
	ctx.JSON(http.StatusOK, gin.H{"posts": payload})
}

type createPostRequest struct {
	Content string `json:"content" binding:"required"`
}

func (server *Server) handleCreatePost(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	var request createPostRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "content is required"))
		return
	}
	post, err := server.engine.CreatePost(ctx.Request.Context(), userID, request.Content)
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, postResponse(post))
}

func (server *Server) handleLike(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	postID, err := engine.NewPostID(ctx.Param("id"))
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	if err := server.engine.GrantLike(ctx.Request.Context(), userID, postID); err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	server.respondWallet(ctx, userID)
}

func (server *Server) handleListLikes(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	grants, err := server.engine.ListLikes(ctx.Request.Context(), userID)
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(grants))
	for _, grant := range grants {
		payload = append(payload, gin.H{
			"post_id":    grant.PostID.String(),
			"created_at": grant.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"likes": payload})
}

type reactionRequest struct {
	Kind string `json:"kind" binding:"required"`
}

func (server *Server) handleReaction(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	postID, err := engine.NewPostID(ctx.Param("id"))
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	var request reactionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "kind is required"))
		return
	}
	kind, price, ok := server.resolveCatalogPrice(ctx, request.Kind)
	if !ok {
		return
	}
	if err := server.engine.GrantReaction(ctx.Request.Context(), userID, postID, kind, price); err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	server.respondWallet(ctx, userID)
}

func (server *Server) handleCatalog(ctx *gin.Context) {
	items := make([]gin.H, 0, len(server.cfg.Catalog))
	for kind, price := range server.cfg.Catalog {
		items = append(items, gin.H{"kind": kind, "price": price.String()})
	}
	ctx.JSON(http.StatusOK, gin.H{"reactions": items})
}

func (server *Server) handlePurchase(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	var request reactionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "kind is required"))
		return
	}
	kind, price, ok := server.resolveCatalogPrice(ctx, request.Kind)
	if !ok {
		return
	}
	if err := server.engine.PurchaseReactionKind(ctx.Request.Context(), userID, kind, price); err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	server.respondWallet(ctx, userID)
}

func (server *Server) handleFollow(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	followeeID, err := engine.NewUserID(ctx.Param("id"))
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	if err := server.engine.Follow(ctx.Request.Context(), userID, followeeID); err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "following"})
}

func (server *Server) handleListNotifications(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	limit := normalizeListLimit(queryInt(ctx, "limit"), defaultNotificationLimit)
	notifications, err := server.notifications.List(ctx.Request.Context(), userID, limit)
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(notifications))
	for _, notification := range notifications {
		payload = append(payload, gin.H{
			"id":                 notification.NotificationID,
			"kind":               notification.Kind,
			"actor_id":           notification.ActorID,
			"actor_display_name": notification.ActorDisplayName,
			"post_id":            notification.PostID,
			"reaction_kind":      notification.ReactionKind,
			"read":               notification.Read,
			"created_at":         notification.CreatedAt.Unix(),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"notifications": payload})
}

func (server *Server) handleMarkNotificationRead(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	err := server.notifications.MarkRead(ctx.Request.Context(), userID, ctx.Param("id"))
	if errors.Is(err, notify.ErrNotificationNotFound) {
		ctx.JSON(http.StatusNotFound, errorResponse("notification_not_found", "no such notification"))
		return
	}
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (server *Server) handleListTransactions(ctx *gin.Context) {
	userID, ok := server.currentUser(ctx)
	if !ok {
		return
	}
	limit := normalizeListLimit(queryInt(ctx, "limit"), defaultTransactionLimit)
	before := int64(queryInt(ctx, "before"))
	entries, err := server.engine.ListTransactions(ctx.Request.Context(), userID, before, limit)
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, gin.H{
			"entry_id":      entry.EntryID,
			"type":          string(entry.Type),
			"amount":        entry.Amount.String(),
			"counterparty":  entry.CounterpartyID.String(),
			"post_id":       entry.PostID.String(),
			"reaction_kind": entry.Kind.String(),
			"created_at":    entry.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": payload})
}

func (server *Server) handleTotals(ctx *gin.Context) {
	totals, err := server.totals.PlatformTotals(ctx.Request.Context())
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"revenue":   totals.Revenue.String(),
		"likes":     totals.Likes,
		"reactions": totals.Reactions,
		"purchases": totals.Purchases,
		"cash_outs": totals.CashOuts,
	})
}

func (server *Server) currentUser(ctx *gin.Context) (engine.UserID, bool) {
	userID, err := engine.NewUserID(sessionUserID(ctx))
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return engine.UserID{}, false
	}
	return userID, true
}

func (server *Server) resolveCatalogPrice(ctx *gin.Context, rawKind string) (engine.ReactionKind, engine.Price, bool) {
	kind, err := engine.NewReactionKind(rawKind)
	if err != nil {
		server.respondEngineError(ctx, err)
		return engine.ReactionKind{}, engine.Price{}, false
	}
	rawPrice, exists := server.cfg.Catalog[kind.String()]
	if !exists {
		ctx.JSON(http.StatusNotFound, errorResponse("unknown_reaction", "reaction kind is not in the catalog"))
		return engine.ReactionKind{}, engine.Price{}, false
	}
	price, err := engine.NewPrice(rawPrice)
	if err != nil {
		server.respondEngineError(ctx, err)
		return engine.ReactionKind{}, engine.Price{}, false
	}
	return kind, price, true
}

func (server *Server) respondWallet(ctx *gin.Context, userID engine.UserID) {
	account, err := server.engine.Account(ctx.Request.Context(), userID)
	if err != nil {
		server.respondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, accountResponse(account))
}

func (server *Server) respondEngineError(ctx *gin.Context, err error) {
	status, code := mapEngineError(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		server.logger.Error("engine operation failed", zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func mapEngineError(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrAlreadyGranted):
		return http.StatusConflict, "already_granted"
	case errors.Is(err, engine.ErrReactionAlreadyOwned):
		return http.StatusConflict, "already_owned"
	case errors.Is(err, engine.ErrAlreadyFollowing):
		return http.StatusConflict, "already_following"
	case errors.Is(err, engine.ErrAccountExists):
		return http.StatusConflict, "account_exists"
	case errors.Is(err, engine.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "insufficient_balance"
	case errors.Is(err, engine.ErrBelowMinimumThreshold):
		return http.StatusBadRequest, "below_minimum_threshold"
	case errors.Is(err, engine.ErrReactionNotOwned):
		return http.StatusForbidden, "reaction_not_owned"
	case errors.Is(err, engine.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, engine.ErrPostNotFound):
		return http.StatusNotFound, "post_not_found"
	case errors.Is(err, engine.ErrSelfFollow):
		return http.StatusBadRequest, "self_follow"
	case errors.Is(err, engine.ErrInvalidUserID),
		errors.Is(err, engine.ErrInvalidPostID),
		errors.Is(err, engine.ErrInvalidReactionKind),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidContent),
		errors.Is(err, engine.ErrInvalidMetadataJSON):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, engine.ErrOperationFailed):
		return http.StatusServiceUnavailable, "operation_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func accountResponse(account engine.Account) gin.H {
	return gin.H{
		"user_id":              account.UserID.String(),
		"display_name":         account.DisplayName,
		"spendable_balance":    account.SpendableBalance.String(),
		"pending_earnings":     account.PendingEarnings.String(),
		"lifetime_earned":      account.LifetimeEarned.String(),
		"lifetime_spent":       account.LifetimeSpent.String(),
		"lifetime_cashed_out":  account.LifetimeCashedOut.String(),
		"has_cashed_out":       account.HasCashedOut,
		"owned_reaction_kinds": account.OwnedReactionKinds.Strings(),
	}
}

func postResponse(post engine.Post) gin.H {
	return gin.H{
		"post_id":         post.PostID.String(),
		"author_id":       post.AuthorID.String(),
		"content":         post.Content,
		"like_count":      post.LikeCount,
		"reaction_count":  post.ReactionCount,
		"reaction_counts": post.ReactionCounts,
		"created_at":      post.CreatedUnixUTC,
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{"error": code, "message": message}
}

func queryInt(ctx *gin.Context, name string) int {
	raw := ctx.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
