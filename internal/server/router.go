package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/modular-rag/backend/internal/auth"
	"github.com/modular-rag/backend/internal/provider"
	"github.com/modular-rag/backend/internal/users"
	"go.uber.org/zap"
)

const currentUserContextKey = "rag_current_user"

// Rotated pairs produced as a side effect of request authentication are
// handed back through these response headers.
const (
	rotatedAccessHeader  = "X-Access-Token"
	rotatedRefreshHeader = "X-Refresh-Token"
)

var (
	errMissingFlow      = errors.New("auth flow dependency required")
	errMissingGate      = errors.New("auth gate dependency required")
	errMissingDirectory = errors.New("user directory dependency required")
)

// AuthFlow drives login, refresh and logout.
type AuthFlow interface {
	Login(ctx context.Context, prov provider.Provider, code, state string) (*users.User, auth.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*users.User, auth.Pair, error)
	Logout(ctx context.Context, userID string) error
}

// RequestGate authenticates bearer access tokens.
type RequestGate interface {
	Authenticate(ctx context.Context, presented string) (auth.Result, error)
}

// UserDirectory serves the user routes.
type UserDirectory interface {
	Get(ctx context.Context, userID string) (*users.User, error)
	List(ctx context.Context, offset, limit int) ([]users.User, error)
	Apply(ctx context.Context, userID string, update users.Update) (*users.User, error)
}

// Dependencies wires the HTTP surface to the auth core.
type Dependencies struct {
	Flow           AuthFlow
	Gate           RequestGate
	Users          UserDirectory
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewHTTPHandler builds the gin router for the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Flow == nil {
		return nil, errMissingFlow
	}
	if deps.Gate == nil {
		return nil, errMissingGate
	}
	if deps.Users == nil {
		return nil, errMissingDirectory
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		flow:   deps.Flow,
		gate:   deps.Gate,
		users:  deps.Users,
		logger: logger,
	}

	router.GET("/health", handler.handleHealth)

	api := router.Group("/api")
	api.POST("/auth/:provider/callback", handler.handleProviderCallback)
	api.POST("/auth/refresh", handler.handleRefresh)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/auth/logout", handler.handleLogout)
	protected.GET("/users", handler.handleListUsers)
	protected.GET("/users/me", handler.handleReadMe)
	protected.PUT("/users/me", handler.handleUpdateMe)
	protected.GET("/users/:id", handler.handleReadUser)

	return router, nil
}

type httpHandler struct {
	flow   AuthFlow
	gate   RequestGate
	users  UserDirectory
	logger *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type callbackRequestPayload struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type tokenPairPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func pairPayload(pair auth.Pair) tokenPairPayload {
	return tokenPairPayload{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
	}
}

// rejectUnauthenticated sends the single uniform response every failed
// credential check maps to; the cause stays in server-side logs.
func rejectUnauthenticated(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "could_not_validate_credentials"})
}

func (h *httpHandler) handleProviderCallback(c *gin.Context) {
	prov, err := provider.Parse(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_provider"})
		return
	}

	var request callbackRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	_, pair, err := h.flow.Login(c.Request.Context(), prov, request.Code, request.State)
	if err != nil {
		if errors.Is(err, auth.ErrStoreUnavailable) {
			h.logger.Error("login failed: token store unavailable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
			return
		}
		h.logger.Warn("login failed", zap.String("provider", string(prov)), zap.Error(err))
		rejectUnauthenticated(c)
		return
	}

	c.JSON(http.StatusOK, pairPayload(pair))
}

type refreshRequestPayload struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	var request refreshRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.RefreshToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	_, pair, err := h.flow.Refresh(c.Request.Context(), request.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrStoreUnavailable) {
			h.logger.Error("refresh failed: token store unavailable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
			return
		}
		h.logger.Info("refresh rejected", zap.Error(err))
		rejectUnauthenticated(c)
		return
	}

	c.JSON(http.StatusOK, pairPayload(pair))
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		rejectUnauthenticated(c)
		return
	}
	if err := h.flow.Logout(c.Request.Context(), user.ID); err != nil {
		h.logger.Error("logout failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// authorizeRequest authenticates the bearer token and stores the resolved
// user in the request context. A rotated pair is surfaced via response
// headers so clients can adopt the fresh tokens.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) || strings.TrimSpace(header[len(prefix):]) == "" {
		rejectUnauthenticated(c)
		return
	}

	result, err := h.gate.Authenticate(c.Request.Context(), strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		rejectUnauthenticated(c)
		return
	}
	if !result.User.IsActive {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "inactive_user"})
		return
	}

	if result.RotatedPair != nil {
		c.Header(rotatedAccessHeader, result.RotatedPair.AccessToken)
		c.Header(rotatedRefreshHeader, result.RotatedPair.RefreshToken)
	}

	c.Set(currentUserContextKey, result.User)
	c.Next()
}

func currentUser(c *gin.Context) *users.User {
	value, ok := c.Get(currentUserContextKey)
	if !ok {
		return nil
	}
	user, ok := value.(*users.User)
	if !ok {
		return nil
	}
	return user
}

type userPayload struct {
	ID           string     `json:"id"`
	Provider     string     `json:"provider"`
	Email        string     `json:"email,omitempty"`
	Username     string     `json:"username,omitempty"`
	FullName     string     `json:"full_name,omitempty"`
	Nickname     string     `json:"nickname,omitempty"`
	ProfileImage string     `json:"profile_image,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	PhoneNumber  string     `json:"phone_number,omitempty"`
	Address      string     `json:"address,omitempty"`
	AgeRange     string     `json:"age_range,omitempty"`
	Locale       string     `json:"locale,omitempty"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func newUserPayload(user *users.User) userPayload {
	return userPayload{
		ID:           user.ID,
		Provider:     user.SocialProvider,
		Email:        user.Email,
		Username:     user.Username,
		FullName:     user.FullName,
		Nickname:     user.Nickname,
		ProfileImage: user.ProfileImage,
		Gender:       user.Gender,
		BirthDate:    user.BirthDate,
		PhoneNumber:  user.PhoneNumber,
		Address:      user.Address,
		AgeRange:     user.AgeRange,
		Locale:       user.Locale,
		Role:         string(user.Role),
		IsActive:     user.IsActive,
		LastLogin:    user.LastLogin,
		CreatedAt:    user.CreatedAt,
	}
}

func (h *httpHandler) handleReadMe(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		rejectUnauthenticated(c)
		return
	}
	c.JSON(http.StatusOK, newUserPayload(user))
}

type updateMePayload struct {
	Username     *string `json:"username"`
	FullName     *string `json:"full_name"`
	Nickname     *string `json:"nickname"`
	ProfileImage *string `json:"profile_image"`
	PhoneNumber  *string `json:"phone_number"`
	Address      *string `json:"address"`
}

func (h *httpHandler) handleUpdateMe(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		rejectUnauthenticated(c)
		return
	}

	var request updateMePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	updated, err := h.users.Apply(c.Request.Context(), user.ID, users.Update{
		Username:     request.Username,
		FullName:     request.FullName,
		Nickname:     request.Nickname,
		ProfileImage: request.ProfileImage,
		PhoneNumber:  request.PhoneNumber,
		Address:      request.Address,
	})
	if err != nil {
		h.logger.Error("failed to update user", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}
	c.JSON(http.StatusOK, newUserPayload(updated))
}

func (h *httpHandler) handleReadUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
			return
		}
		h.logger.Error("failed to read user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	c.JSON(http.StatusOK, newUserPayload(user))
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	page, err := h.users.List(c.Request.Context(), skip, limit)
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	payloads := make([]userPayload, 0, len(page))
	for index := range page {
		payloads = append(payloads, newUserPayload(&page[index]))
	}
	c.JSON(http.StatusOK, payloads)
}
