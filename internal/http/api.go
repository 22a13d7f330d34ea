package http

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vidstream/internal/domain"
	"vidstream/internal/service"
	"vidstream/internal/token"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"

	ctxUserID = "userID"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	identity     service.IdentityService
	channels     service.ChannelService
	tokens       *token.Manager
	logger       *logrus.Logger
	cookieSecure bool
	tmpDir       string
}

func NewHandler(identity service.IdentityService, channels service.ChannelService, tokens *token.Manager, logger *logrus.Logger, cookieSecure bool) *Handler {
	return &Handler{
		identity:     identity,
		channels:     channels,
		tokens:       tokens,
		logger:       logger,
		cookieSecure: cookieSecure,
		tmpDir:       os.TempDir(),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api/v1")
	{
		users := api.Group("/users")
		{
			users.POST("/register", h.register)
			users.POST("/login", h.login)
			users.POST("/refresh-token", h.refreshToken)
			users.GET("/c/:handle", h.authOptional(), h.channelProfile)

			users.POST("/logout", h.authRequired(), h.logout)
			users.POST("/change-password", h.authRequired(), h.changePassword)
			users.GET("/me", h.authRequired(), h.currentUser)
			users.PATCH("/me", h.authRequired(), h.updateAccount)
			users.PATCH("/me/avatar", h.authRequired(), h.updateAvatar)
			users.PATCH("/me/cover", h.authRequired(), h.updateCoverImage)
			users.GET("/history", h.authRequired(), h.watchHistory)
			users.POST("/history/:videoId", h.authRequired(), h.recordWatch)
		}

		api.POST("/subscriptions/:channelId", h.authRequired(), h.toggleSubscription)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// authRequired resolves the caller from the Authorization header or the
// access cookie and injects the user id into the request context.
func (h *Handler) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := h.callerID(c)
		if err != nil {
			h.writeError(c, domain.WrapError(domain.KindAuthentication, "unauthorized request", err))
			c.Abort()
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// authOptional injects the caller id when a valid access token is present
// and stays silent otherwise.
func (h *Handler) authOptional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, err := h.callerID(c); err == nil {
			c.Set(ctxUserID, userID)
		}
		c.Next()
	}
}

func (h *Handler) callerID(c *gin.Context) (string, error) {
	var tokenStr string
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		tokenStr = strings.TrimPrefix(header, "Bearer ")
	}
	if tokenStr == "" {
		tokenStr, _ = c.Cookie(accessCookie)
	}
	if tokenStr == "" {
		return "", errors.New("missing access token")
	}

	claims, err := h.tokens.ParseAccessToken(tokenStr)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

type UserResponse struct {
	ID         string `json:"id"`
	UserName   string `json:"userName"`
	Email      string `json:"email"`
	FullName   string `json:"fullName"`
	Avatar     string `json:"avatar"`
	CoverImage string `json:"coverImage,omitempty"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

func (h *Handler) register(c *gin.Context) {
	in := service.RegisterInput{
		FullName: c.PostForm("fullName"),
		Email:    c.PostForm("email"),
		UserName: c.PostForm("userName"),
		Password: c.PostForm("password"),
	}

	avatarPath, cleanupAvatar, err := h.saveUpload(c, "avatar")
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer cleanupAvatar()
	in.AvatarPath = avatarPath

	coverPath, cleanupCover, err := h.saveUpload(c, "coverImage")
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer cleanupCover()
	in.CoverImagePath = coverPath

	user, err := h.identity.Register(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":    userToResponse(user),
		"message": "user registered successfully",
	})
}

// saveUpload writes a multipart file to a temp path so the storage service
// can consume it. An absent file yields an empty path, not an error.
func (h *Handler) saveUpload(c *gin.Context, field string) (string, func(), error) {
	file, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", func() {}, nil
		}
		return "", func() {}, domain.WrapError(domain.KindValidation, "invalid "+field+" upload", err)
	}
	return h.saveUploadFile(c, file, field)
}

func (h *Handler) saveUploadFile(c *gin.Context, file *multipart.FileHeader, field string) (string, func(), error) {
	path := filepath.Join(h.tmpDir, uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		return "", func() {}, domain.WrapError(domain.KindInternal, "failed to store "+field+" upload", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

type loginRequest struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.WrapError(domain.KindValidation, "invalid request body", err))
		return
	}

	user, pair, err := h.identity.Login(c.Request.Context(), req.UserName, req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"user":         userToResponse(user),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"message":      "user logged in successfully",
	})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.identity.Logout(c.Request.Context(), c.GetString(ctxUserID)); err != nil {
		h.writeError(c, err)
		return
	}
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "user logged out"})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) refreshToken(c *gin.Context) {
	tokenStr, _ := c.Cookie(refreshCookie)
	if tokenStr == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			tokenStr = req.RefreshToken
		}
	}

	pair, err := h.identity.RefreshAccessToken(c.Request.Context(), tokenStr)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"message":      "access token refreshed",
	})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.WrapError(domain.KindValidation, "invalid request body", err))
		return
	}

	if err := h.identity.ChangePassword(c.Request.Context(), c.GetString(ctxUserID), req.OldPassword, req.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed successfully"})
}

func (h *Handler) currentUser(c *gin.Context) {
	user, err := h.identity.GetByID(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": userToResponse(user)})
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

func (h *Handler) updateAccount(c *gin.Context) {
	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.WrapError(domain.KindValidation, "invalid request body", err))
		return
	}

	user, err := h.identity.UpdateAccount(c.Request.Context(), c.GetString(ctxUserID), req.FullName, req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": userToResponse(user)})
}

func (h *Handler) updateAvatar(c *gin.Context) {
	h.updateImage(c, "avatar", h.identity.UpdateAvatar)
}

func (h *Handler) updateCoverImage(c *gin.Context) {
	h.updateImage(c, "coverImage", h.identity.UpdateCoverImage)
}

func (h *Handler) updateImage(c *gin.Context, field string, update func(ctx context.Context, userID, path string) (*domain.User, error)) {
	path, cleanup, err := h.saveUpload(c, field)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer cleanup()

	user, err := update(c.Request.Context(), c.GetString(ctxUserID), path)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": userToResponse(user)})
}

type ChannelProfileResponse struct {
	FullName          string `json:"fullName"`
	UserName          string `json:"userName"`
	Email             string `json:"email"`
	Avatar            string `json:"avatar"`
	CoverImage        string `json:"coverImage,omitempty"`
	SubscriberCount   int64  `json:"subscriberCount"`
	SubscribedToCount int64  `json:"subscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}

func (h *Handler) channelProfile(c *gin.Context) {
	profile, err := h.channels.GetChannelProfile(c.Request.Context(), c.Param("handle"), c.GetString(ctxUserID))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ChannelProfileResponse{
		FullName:          profile.FullName,
		UserName:          profile.UserName,
		Email:             profile.Email,
		Avatar:            profile.AvatarURL,
		CoverImage:        profile.CoverImageURL,
		SubscriberCount:   profile.SubscriberCount,
		SubscribedToCount: profile.SubscribedToCount,
		IsSubscribed:      profile.IsSubscribed,
	}})
}

type HistoryItemResponse struct {
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Duration  int64  `json:"duration"`
	Views     int64  `json:"views"`
	WatchedAt string `json:"watchedAt"`
	Owner     struct {
		FullName string `json:"fullName"`
		UserName string `json:"userName"`
		Avatar   string `json:"avatar"`
	} `json:"owner"`
}

func (h *Handler) watchHistory(c *gin.Context) {
	items, err := h.channels.GetWatchHistory(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]HistoryItemResponse, len(items))
	for i := range items {
		resp[i] = historyItemToResponse(items[i])
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *Handler) recordWatch(c *gin.Context) {
	if err := h.channels.RecordWatch(c.Request.Context(), c.GetString(ctxUserID), c.Param("videoId")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "watch event recorded"})
}

func (h *Handler) toggleSubscription(c *gin.Context) {
	subscribed, err := h.channels.ToggleSubscription(c.Request.Context(), c.GetString(ctxUserID), c.Param("channelId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": subscribed})
}

func (h *Handler) setAuthCookies(c *gin.Context, pair *service.TokenPair) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(accessCookie, pair.AccessToken, int(h.tokens.AccessTTL().Seconds()), "/", "", h.cookieSecure, true)
	c.SetCookie(refreshCookie, pair.RefreshToken, int(h.tokens.RefreshTTL().Seconds()), "/", "", h.cookieSecure, true)
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(accessCookie, "", -1, "/", "", h.cookieSecure, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", h.cookieSecure, true)
}

// writeError renders the structured error envelope. Underlying causes stay in
// the logs and never reach the caller.
func (h *Handler) writeError(c *gin.Context, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		derr = domain.WrapError(domain.KindInternal, "internal server error", err)
	}

	if derr.Kind == domain.KindInternal && h.logger != nil {
		h.logger.WithError(err).Errorf("%s %s failed", c.Request.Method, c.Request.URL.Path)
	}

	body := gin.H{"kind": derr.Kind, "message": derr.Message}
	if derr.Detail != nil {
		body["detail"] = derr.Detail
	}
	c.JSON(derr.Kind.HTTPStatus(), gin.H{"error": body})
}

func userToResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:         user.ID,
		UserName:   user.UserName,
		Email:      user.Email,
		FullName:   user.FullName,
		Avatar:     user.AvatarURL,
		CoverImage: user.CoverImageURL,
		CreatedAt:  user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  user.UpdatedAt.Format(time.RFC3339),
	}
}

func historyItemToResponse(item domain.HistoryItem) HistoryItemResponse {
	resp := HistoryItemResponse{
		VideoID:   item.Video.ID,
		Title:     item.Video.Title,
		Thumbnail: item.Video.ThumbnailURL,
		Duration:  item.Video.DurationSeconds,
		Views:     item.Video.Views,
		WatchedAt: item.WatchedAt.Format(time.RFC3339),
	}
	resp.Owner.FullName = item.Owner.FullName
	resp.Owner.UserName = item.Owner.UserName
	resp.Owner.Avatar = item.Owner.AvatarURL
	return resp
}
