package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/convert-iq/convertiq/internal/billing"
	"github.com/convert-iq/convertiq/internal/config"
	"github.com/convert-iq/convertiq/internal/models"
	"github.com/convert-iq/convertiq/internal/security"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler manages registration and login.
type AuthHandler struct {
	db      *gorm.DB
	jwtCfg  config.JWTConfig
	billing *billing.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, billingSvc *billing.Service) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, billing: billingSvc}
}

// registerRequest defines the request body for registration.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new user account. Payment-processor customer
// provisioning is best effort and must never block signup.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email"})
		return
	}
	password := strings.TrimSpace(body.Password)
	if password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}

	ctx := c.Request.Context()

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := models.User{
		Email:    email,
		Password: hash,
		Active:   true,
	}
	// The unique index on email is the duplicate check; concurrent
	// signups for the same address lose here, not in a pre-query.
	if errCreate := h.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	if h.billing != nil {
		if _, errCustomer := h.billing.EnsureCustomer(ctx, &user); errCustomer != nil {
			log.WithError(errCustomer).WithField("user_id", user.ID).
				Warn("stripe customer creation failed, continuing without one")
		}
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully"})
}

// Login exchanges form credentials for a session token. The form field
// is named username for OAuth2 password-flow compatibility but carries
// the email.
func (h *AuthHandler) Login(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.PostForm("username")))
	password := c.PostForm("password")
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing credentials"})
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where("email = ?", email).First(&user).Error
	if errFind != nil || !security.VerifyPassword(password, user.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token, errToken := security.IssueToken(h.jwtCfg.Secret, h.jwtCfg.Expiry, user.ID)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
	})
}
