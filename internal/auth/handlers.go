package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/mediecho/internal/apierror"
	"github.com/jimdaga/mediecho/internal/models"
	"gorm.io/gorm"
)

// UserView is the client representation of an account
type UserView struct {
	ID                  uint       `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	SubscriptionPlan    string     `json:"subscriptionPlan"`
	SubscriptionStatus  string     `json:"subscriptionStatus"`
	SubscriptionEndDate *time.Time `json:"subscriptionEndDate,omitempty"`
	Settings            Settings   `json:"settings"`
	CreatedAt           time.Time  `json:"createdAt"`
	LastLoginAt         *time.Time `json:"lastLogin,omitempty"`
	LastBriefAt         *time.Time `json:"lastBriefAt,omitempty"`
}

// Settings holds user preferences
type Settings struct {
	PrivacyLocalFirst bool `json:"privacyLocalFirst"`
	Notifications     bool `json:"notifications"`
}

// NewUserView builds the client representation of u
func NewUserView(u *models.User) UserView {
	return UserView{
		ID:                  u.ID,
		Email:               u.Email,
		Name:                u.Name,
		SubscriptionPlan:    string(u.SubscriptionPlan),
		SubscriptionStatus:  string(u.SubscriptionStatus),
		SubscriptionEndDate: u.SubscriptionEndDate,
		Settings: Settings{
			PrivacyLocalFirst: u.PrivacyLocalFirst,
			Notifications:     u.Notifications,
		},
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
		LastBriefAt: u.LastBriefAt,
	}
}

// Handler serves the account endpoints
type Handler struct {
	db     *gorm.DB
	tokens *TokenService
	errs   apierror.Responder
	now    func() time.Time
}

// NewHandler creates a Handler
func NewHandler(db *gorm.DB, tokens *TokenService, errs apierror.Responder) *Handler {
	return &Handler{db: db, tokens: tokens, errs: errs, now: time.Now}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"max=50"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type updateProfileRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=50"`
	Settings *struct {
		PrivacyLocalFirst *bool `json:"privacyLocalFirst"`
		Notifications     *bool `json:"notifications"`
	} `json:"settings"`
}

type authResponse struct {
	User         UserView `json:"user"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
}

// Register creates an account and signs it in
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, apierror.FromBinding(err))
		return
	}
	email := normalizeEmail(req.Email)

	var count int64
	if err := h.db.WithContext(c.Request.Context()).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}
	if count > 0 {
		h.errs.Respond(c, apierror.Validation("User already exists"))
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}

	now := h.now()
	user := models.User{
		Email:              email,
		Name:               strings.TrimSpace(req.Name),
		PasswordHash:       hash,
		SubscriptionPlan:   models.PlanFree,
		SubscriptionStatus: models.SubscriptionNone,
		PrivacyLocalFirst:  true,
		Notifications:      true,
		LastLoginAt:        &now,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			h.errs.Respond(c, apierror.Validation("User already exists"))
			return
		}
		h.errs.Respond(c, apierror.Internal(err))
		return
	}

	slog.Info("User registered", "user_id", user.ID)
	h.signIn(c, http.StatusCreated, &user)
}

// Login verifies credentials and issues tokens
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, apierror.FromBinding(err))
		return
	}

	var user models.User
	err := h.db.WithContext(c.Request.Context()).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}
	if err != nil || !CheckPassword(user.PasswordHash, req.Password) {
		h.errs.Respond(c, apierror.Unauthenticated("Invalid credentials"))
		return
	}

	now := h.now()
	if err := h.db.WithContext(c.Request.Context()).Model(&user).Update("last_login_at", now).Error; err != nil {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}
	user.LastLoginAt = &now

	h.signIn(c, http.StatusOK, &user)
}

// Refresh exchanges a refresh token for a new access token
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, apierror.FromBinding(err))
		return
	}

	claims, err := h.tokens.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		h.errs.Respond(c, apierror.Unauthenticated("Invalid refresh token"))
		return
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.errs.Respond(c, apierror.Unauthenticated("Invalid refresh token"))
			return
		}
		h.errs.Respond(c, apierror.Internal(err))
		return
	}

	token, err := h.tokens.GenerateAccessToken(user.ID)
	if err != nil {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}
	h.saveSessionToken(c, token)

	apierror.OK(c, http.StatusOK, gin.H{"token": token})
}

// Logout clears the session cookie. Bearer tokens expire on their own.
func (h *Handler) Logout(c *gin.Context) {
	if _, ok := c.Get(sessions.DefaultKey); ok {
		session := sessions.Default(c)
		session.Clear()
		session.Options(sessions.Options{Path: "/", MaxAge: -1})
		if err := session.Save(); err != nil {
			slog.Warn("Session clear error", "error", err)
		}
	}
	apierror.OK(c, http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the authenticated user
func (h *Handler) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}
	apierror.OK(c, http.StatusOK, NewUserView(user))
}

// UpdateProfile edits the display name and settings of the authenticated user
func (h *Handler) UpdateProfile(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, apierror.FromBinding(err))
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Settings != nil {
		if req.Settings.PrivacyLocalFirst != nil {
			updates["privacy_local_first"] = *req.Settings.PrivacyLocalFirst
		}
		if req.Settings.Notifications != nil {
			updates["notifications"] = *req.Settings.Notifications
		}
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(c.Request.Context()).Model(user).Updates(updates).Error; err != nil {
			h.errs.Respond(c, apierror.Internal(err))
			return
		}
	}

	apierror.OK(c, http.StatusOK, NewUserView(user))
}

func (h *Handler) signIn(c *gin.Context, status int, user *models.User) {
	token, err := h.tokens.GenerateAccessToken(user.ID)
	if err != nil {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}
	refresh, err := h.tokens.GenerateRefreshToken(user.ID)
	if err != nil {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}
	h.saveSessionToken(c, token)

	apierror.OK(c, status, authResponse{
		User:         NewUserView(user),
		Token:        token,
		RefreshToken: refresh,
	})
}

// saveSessionToken stores the access token in the signed session cookie when sessions are enabled
func (h *Handler) saveSessionToken(c *gin.Context, token string) {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return
	}
	session := sessions.Default(c)
	session.Set(sessionTokenKey, token)
	if err := session.Save(); err != nil {
		slog.Warn("Session save error", "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
