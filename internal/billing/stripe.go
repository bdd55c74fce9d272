// Package billing integrates with Stripe: customer provisioning,
// checkout sessions, and webhook-driven subscription state.
package billing

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/convert-iq/convertiq/internal/config"
	"github.com/convert-iq/convertiq/internal/models"
	"github.com/convert-iq/convertiq/internal/plans"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"gorm.io/gorm"
)

// ErrNotConfigured is returned when billing operations run without a
// Stripe secret key or frontend URL.
var ErrNotConfigured = errors.New("billing is not configured")

// Service drives outbound Stripe operations for checkout and customer
// provisioning.
type Service struct {
	db  *gorm.DB
	cfg config.StripeConfig
	api *client.API
}

// NewService constructs a Service bound to the configured Stripe account.
func NewService(conn *gorm.DB, cfg config.StripeConfig) *Service {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Service{db: conn, cfg: cfg, api: api}
}

// PriceForPlan maps a plan name to its configured Stripe price ID.
func (s *Service) PriceForPlan(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "starter", "":
		if s.cfg.StarterPriceID != "" {
			return s.cfg.StarterPriceID, true
		}
		return plans.PriceStarterMonthly, true
	case "growth":
		if s.cfg.GrowthPriceID != "" {
			return s.cfg.GrowthPriceID, true
		}
		return plans.PriceGrowthMonthly, true
	}
	return "", false
}

// EnsureCustomer returns the user's Stripe customer ID, creating the
// customer on first use and persisting the ID on the user row.
func (s *Service) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	if s.cfg.SecretKey == "" {
		return "", ErrNotConfigured
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
	}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatUint(user.ID, 10))

	customer, errNew := s.api.Customers.New(params)
	if errNew != nil {
		return "", errNew
	}

	user.StripeCustomerID = &customer.ID
	if errSave := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("stripe_customer_id", customer.ID).Error; errSave != nil {
		return "", errSave
	}
	return customer.ID, nil
}

// CheckoutURL creates a subscription-mode checkout session for the
// price and returns the hosted checkout URL.
func (s *Service) CheckoutURL(ctx context.Context, user *models.User, priceID string) (string, error) {
	if s.cfg.SecretKey == "" || s.cfg.FrontendURL == "" {
		return "", ErrNotConfigured
	}

	customerID, errCustomer := s.EnsureCustomer(ctx, user)
	if errCustomer != nil {
		return "", errCustomer
	}

	frontendURL := strings.TrimRight(s.cfg.FrontendURL, "/")
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/success"),
		CancelURL:  stripe.String(frontendURL + "/billing"),
	}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatUint(user.ID, 10))

	session, errSession := s.api.CheckoutSessions.New(params)
	if errSession != nil {
		return "", errSession
	}
	return session.URL, nil
}

// RetrieveSubscription loads a subscription from Stripe by ID.
func (s *Service) RetrieveSubscription(id string) (*stripe.Subscription, error) {
	return s.api.Subscriptions.Get(id, nil)
}
