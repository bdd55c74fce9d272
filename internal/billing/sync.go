package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/convert-iq/convertiq/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// providerStripe tags persisted webhook events.
const providerStripe = "stripe"

// SubscriptionRetriever loads a subscription from Stripe by ID. It is
// a parameter so event handling stays testable without a Stripe
// account.
type SubscriptionRetriever func(id string) (*stripe.Subscription, error)

// Syncer applies Stripe webhook events to local subscription state.
type Syncer struct {
	db            *gorm.DB
	webhookSecret string
	retrieve      SubscriptionRetriever
	nowFn         func() time.Time
}

// NewSyncer constructs a Syncer. retrieve is used to resolve the full
// subscription object after a completed checkout.
func NewSyncer(conn *gorm.DB, webhookSecret string, retrieve SubscriptionRetriever) *Syncer {
	return &Syncer{db: conn, webhookSecret: webhookSecret, retrieve: retrieve, nowFn: time.Now}
}

// VerifyEvent checks the payload signature and parses the event.
func (s *Syncer) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
}

// HandleEvent applies a verified event. Redelivery of an event that
// already processed successfully is skipped; redelivery of one whose
// processing failed is retried, so a transient error does not lose the
// transition. Unrecognized event types are recorded and acknowledged
// without further action.
func (s *Syncer) HandleEvent(ctx context.Context, event stripe.Event) error {
	if event.Data == nil {
		return errors.New("event has no payload")
	}
	record, fresh, errRecord := s.recordEvent(ctx, event)
	if errRecord != nil {
		return errRecord
	}
	if !fresh {
		if record.ProcessedAt != nil {
			log.WithField("event_id", event.ID).Debug("billing: duplicate webhook event skipped")
			return nil
		}
		log.WithField("event_id", event.ID).Info("billing: retrying webhook event after earlier failure")
	}

	errApply := s.applyEvent(ctx, event)

	updates := map[string]any{"processed_at": s.nowFn().UTC(), "processing_error": ""}
	if errApply != nil {
		updates = map[string]any{"processing_error": errApply.Error()}
	}
	if errMark := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", record.ID).
		Updates(updates).Error; errMark != nil {
		log.WithError(errMark).Warn("billing: failed to mark webhook event")
	}
	return errApply
}

// recordEvent persists the raw event, reporting whether this delivery
// is the first one seen.
func (s *Syncer) recordEvent(ctx context.Context, event stripe.Event) (*models.WebhookEvent, bool, error) {
	record := &models.WebhookEvent{
		Provider:        providerStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		Payload:         datatypes.JSON(event.Data.Raw),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 0 {
		var existing models.WebhookEvent
		errFind := s.db.WithContext(ctx).
			Where("provider = ? AND provider_event_id = ?", providerStripe, event.ID).
			First(&existing).Error
		if errFind != nil {
			return nil, false, errFind
		}
		return &existing, false, nil
	}
	return record, true, nil
}

func (s *Syncer) applyEvent(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_failed":
		return s.handlePaymentFailed(ctx, event)
	default:
		log.WithField("event_type", event.Type).Debug("billing: ignoring webhook event")
		return nil
	}
}

func (s *Syncer) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if errUnmarshal := json.Unmarshal(event.Data.Raw, &session); errUnmarshal != nil {
		return fmt.Errorf("decode checkout session: %w", errUnmarshal)
	}
	if session.Mode != stripe.CheckoutSessionModeSubscription {
		return nil
	}
	if session.Customer == nil || session.Subscription == nil {
		return errors.New("checkout session missing customer or subscription")
	}

	user, errUser := s.userByCustomer(ctx, session.Customer.ID)
	if errUser != nil {
		return errUser
	}
	if user == nil {
		log.WithField("customer_id", session.Customer.ID).Warn("billing: checkout completed for unknown customer")
		return nil
	}

	sub, errRetrieve := s.retrieve(session.Subscription.ID)
	if errRetrieve != nil {
		return fmt.Errorf("retrieve subscription %s: %w", session.Subscription.ID, errRetrieve)
	}
	return s.upsertSubscription(ctx, user.ID, sub)
}

func (s *Syncer) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if errUnmarshal := json.Unmarshal(event.Data.Raw, &sub); errUnmarshal != nil {
		return fmt.Errorf("decode subscription: %w", errUnmarshal)
	}
	if sub.Customer == nil {
		return errors.New("subscription event missing customer")
	}

	user, errUser := s.userByCustomer(ctx, sub.Customer.ID)
	if errUser != nil {
		return errUser
	}
	if user == nil {
		return nil
	}
	return s.upsertSubscription(ctx, user.ID, &sub)
}

func (s *Syncer) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if errUnmarshal := json.Unmarshal(event.Data.Raw, &sub); errUnmarshal != nil {
		return fmt.Errorf("decode subscription: %w", errUnmarshal)
	}
	return s.markStatus(ctx, sub.ID, models.SubscriptionStatusCanceled)
}

func (s *Syncer) handlePaymentFailed(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if errUnmarshal := json.Unmarshal(event.Data.Raw, &invoice); errUnmarshal != nil {
		return fmt.Errorf("decode invoice: %w", errUnmarshal)
	}
	if invoice.Subscription == nil {
		return nil
	}
	return s.markStatus(ctx, invoice.Subscription.ID, models.SubscriptionStatusPastDue)
}

// markStatus overwrites a known subscription's status, then refreshes
// the owner's pro flag. Unknown subscriptions are ignored.
func (s *Syncer) markStatus(ctx context.Context, stripeSubscriptionID string, status models.SubscriptionStatus) error {
	var sub models.Subscription
	errFind := s.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil
	}
	if errFind != nil {
		return errFind
	}

	if errUpdate := s.db.WithContext(ctx).Model(&sub).
		Update("status", status).Error; errUpdate != nil {
		return errUpdate
	}
	return s.refreshProFlag(ctx, sub.UserID)
}

// upsertSubscription creates or updates the local row for a Stripe
// subscription and refreshes the owner's pro flag.
func (s *Syncer) upsertSubscription(ctx context.Context, userID uint64, stripeSub *stripe.Subscription) error {
	if stripeSub == nil {
		return errors.New("nil subscription")
	}

	priceID := ""
	if stripeSub.Items != nil && len(stripeSub.Items.Data) > 0 && stripeSub.Items.Data[0].Price != nil {
		priceID = stripeSub.Items.Data[0].Price.ID
	}
	customerID := ""
	if stripeSub.Customer != nil {
		customerID = stripeSub.Customer.ID
	}
	periodStart := time.Unix(stripeSub.CurrentPeriodStart, 0).UTC()
	periodEnd := time.Unix(stripeSub.CurrentPeriodEnd, 0).UTC()

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		errFind := tx.Where("stripe_subscription_id = ?", stripeSub.ID).First(&sub).Error
		if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return errFind
		}
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			sub = models.Subscription{
				UserID:               userID,
				StripeSubscriptionID: stripeSub.ID,
				StripeCustomerID:     customerID,
			}
		}

		sub.StripePriceID = priceID
		sub.Status = models.SubscriptionStatus(stripeSub.Status)
		sub.CurrentPeriodStart = &periodStart
		sub.CurrentPeriodEnd = &periodEnd
		sub.CancelAtPeriodEnd = stripeSub.CancelAtPeriodEnd
		return tx.Save(&sub).Error
	})
	if errTx != nil {
		return errTx
	}
	return s.refreshProFlag(ctx, userID)
}

// refreshProFlag recomputes users.is_pro from the presence of an
// active or trialing subscription.
func (s *Syncer) refreshProFlag(ctx context.Context, userID uint64) error {
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND status IN ?", userID, []models.SubscriptionStatus{
			models.SubscriptionStatusActive,
			models.SubscriptionStatusTrialing,
		}).
		Count(&count).Error; errCount != nil {
		return errCount
	}
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("is_pro", count > 0).Error
}

func (s *Syncer) userByCustomer(ctx context.Context, customerID string) (*models.User, error) {
	if customerID == "" {
		return nil, nil
	}
	var user models.User
	errFind := s.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		First(&user).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, errFind
	}
	return &user, nil
}
