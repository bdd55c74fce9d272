package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/convert-iq/convertiq/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stripe/stripe-go/v72"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.User{}, &models.Subscription{}, &models.WebhookEvent{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func seedUser(t *testing.T, conn *gorm.DB, customerID string) *models.User {
	t.Helper()
	user := &models.User{Email: "buyer@example.com", Password: "x", Active: true}
	if customerID != "" {
		user.StripeCustomerID = &customerID
	}
	if errCreate := conn.Create(user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	return user
}

const subscriptionJSON = `{
	"id": "sub_1",
	"customer": "cus_1",
	"status": "active",
	"cancel_at_period_end": true,
	"current_period_start": 1750000000,
	"current_period_end": 1752600000,
	"items": {"data": [{"price": {"id": "price_starter_monthly"}}]}
}`

func makeEvent(t *testing.T, id, eventType, raw string) stripe.Event {
	t.Helper()
	return stripe.Event{
		ID:   id,
		Type: eventType,
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func TestHandleEvent_SubscriptionUpdated(t *testing.T) {
	conn := openTestDB(t)
	user := seedUser(t, conn, "cus_1")
	syncer := NewSyncer(conn, "whsec_test", nil)

	event := makeEvent(t, "evt_1", "customer.subscription.updated", subscriptionJSON)
	if errHandle := syncer.HandleEvent(context.Background(), event); errHandle != nil {
		t.Fatalf("handle: %v", errHandle)
	}

	var sub models.Subscription
	if errFind := conn.Where("stripe_subscription_id = ?", "sub_1").First(&sub).Error; errFind != nil {
		t.Fatalf("find subscription: %v", errFind)
	}
	if sub.UserID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, sub.UserID)
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("expected active, got %q", sub.Status)
	}
	if sub.StripePriceID != "price_starter_monthly" {
		t.Fatalf("unexpected price id %q", sub.StripePriceID)
	}
	if !sub.CancelAtPeriodEnd {
		t.Fatal("expected cancel_at_period_end to carry over")
	}
	if sub.CurrentPeriodStart == nil || !sub.CurrentPeriodStart.Equal(time.Unix(1750000000, 0).UTC()) {
		t.Fatalf("unexpected period start %v", sub.CurrentPeriodStart)
	}

	var fresh models.User
	if errFind := conn.First(&fresh, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if !fresh.IsPro {
		t.Fatal("expected is_pro set after active subscription")
	}
}

func TestHandleEvent_CheckoutCompleted(t *testing.T) {
	conn := openTestDB(t)
	seedUser(t, conn, "cus_1")

	retrieved := 0
	retrieve := func(id string) (*stripe.Subscription, error) {
		retrieved++
		if id != "sub_1" {
			t.Fatalf("unexpected subscription id %q", id)
		}
		var sub stripe.Subscription
		if errUnmarshal := json.Unmarshal([]byte(subscriptionJSON), &sub); errUnmarshal != nil {
			t.Fatalf("unmarshal fixture: %v", errUnmarshal)
		}
		return &sub, nil
	}
	syncer := NewSyncer(conn, "whsec_test", retrieve)

	raw := `{"id": "cs_1", "mode": "subscription", "customer": "cus_1", "subscription": "sub_1"}`
	event := makeEvent(t, "evt_2", "checkout.session.completed", raw)
	if errHandle := syncer.HandleEvent(context.Background(), event); errHandle != nil {
		t.Fatalf("handle: %v", errHandle)
	}
	if retrieved != 1 {
		t.Fatalf("expected one retrieval, got %d", retrieved)
	}

	var count int64
	if errCount := conn.Model(&models.Subscription{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected one subscription row, got %d", count)
	}
}

func TestHandleEvent_CheckoutUnknownCustomer(t *testing.T) {
	conn := openTestDB(t)
	syncer := NewSyncer(conn, "whsec_test", func(string) (*stripe.Subscription, error) {
		t.Fatal("retrieve should not run for an unknown customer")
		return nil, nil
	})

	raw := `{"id": "cs_1", "mode": "subscription", "customer": "cus_missing", "subscription": "sub_1"}`
	event := makeEvent(t, "evt_3", "checkout.session.completed", raw)
	if errHandle := syncer.HandleEvent(context.Background(), event); errHandle != nil {
		t.Fatalf("expected unknown customer to be ignored, got %v", errHandle)
	}
}

func TestHandleEvent_SubscriptionDeleted(t *testing.T) {
	conn := openTestDB(t)
	user := seedUser(t, conn, "cus_1")
	syncer := NewSyncer(conn, "whsec_test", nil)

	if errHandle := syncer.HandleEvent(context.Background(),
		makeEvent(t, "evt_4", "customer.subscription.updated", subscriptionJSON)); errHandle != nil {
		t.Fatalf("seed subscription: %v", errHandle)
	}

	raw := `{"id": "sub_1", "customer": "cus_1", "status": "canceled"}`
	if errHandle := syncer.HandleEvent(context.Background(),
		makeEvent(t, "evt_5", "customer.subscription.deleted", raw)); errHandle != nil {
		t.Fatalf("handle delete: %v", errHandle)
	}

	var sub models.Subscription
	if errFind := conn.Where("stripe_subscription_id = ?", "sub_1").First(&sub).Error; errFind != nil {
		t.Fatalf("find subscription: %v", errFind)
	}
	if sub.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled, got %q", sub.Status)
	}

	var fresh models.User
	if errFind := conn.First(&fresh, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if fresh.IsPro {
		t.Fatal("expected is_pro cleared after cancellation")
	}
}

func TestHandleEvent_PaymentFailed(t *testing.T) {
	conn := openTestDB(t)
	seedUser(t, conn, "cus_1")
	syncer := NewSyncer(conn, "whsec_test", nil)

	if errHandle := syncer.HandleEvent(context.Background(),
		makeEvent(t, "evt_6", "customer.subscription.updated", subscriptionJSON)); errHandle != nil {
		t.Fatalf("seed subscription: %v", errHandle)
	}

	raw := `{"id": "in_1", "subscription": "sub_1"}`
	if errHandle := syncer.HandleEvent(context.Background(),
		makeEvent(t, "evt_7", "invoice.payment_failed", raw)); errHandle != nil {
		t.Fatalf("handle payment failure: %v", errHandle)
	}

	var sub models.Subscription
	if errFind := conn.Where("stripe_subscription_id = ?", "sub_1").First(&sub).Error; errFind != nil {
		t.Fatalf("find subscription: %v", errFind)
	}
	if sub.Status != models.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due, got %q", sub.Status)
	}
}

func TestHandleEvent_DuplicateDelivery(t *testing.T) {
	conn := openTestDB(t)
	seedUser(t, conn, "cus_1")
	syncer := NewSyncer(conn, "whsec_test", nil)

	event := makeEvent(t, "evt_8", "customer.subscription.updated", subscriptionJSON)
	if errHandle := syncer.HandleEvent(context.Background(), event); errHandle != nil {
		t.Fatalf("first delivery: %v", errHandle)
	}
	if errHandle := syncer.HandleEvent(context.Background(), event); errHandle != nil {
		t.Fatalf("redelivery: %v", errHandle)
	}

	var count int64
	if errCount := conn.Model(&models.WebhookEvent{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count events: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected one stored event, got %d", count)
	}
}

func TestHandleEvent_RedeliveryRetriesAfterFailure(t *testing.T) {
	conn := openTestDB(t)
	seedUser(t, conn, "cus_1")

	retrievals := 0
	retrieve := func(string) (*stripe.Subscription, error) {
		retrievals++
		if retrievals == 1 {
			return nil, errors.New("stripe unavailable")
		}
		var sub stripe.Subscription
		if errUnmarshal := json.Unmarshal([]byte(subscriptionJSON), &sub); errUnmarshal != nil {
			t.Fatalf("unmarshal fixture: %v", errUnmarshal)
		}
		return &sub, nil
	}
	syncer := NewSyncer(conn, "whsec_test", retrieve)

	raw := `{"id": "cs_1", "mode": "subscription", "customer": "cus_1", "subscription": "sub_1"}`
	event := makeEvent(t, "evt_10", "checkout.session.completed", raw)
	if errHandle := syncer.HandleEvent(context.Background(), event); errHandle == nil {
		t.Fatal("expected first delivery to fail")
	}

	var record models.WebhookEvent
	if errFind := conn.Where("provider_event_id = ?", "evt_10").First(&record).Error; errFind != nil {
		t.Fatalf("find event record: %v", errFind)
	}
	if record.ProcessedAt != nil || record.ProcessingError == "" {
		t.Fatalf("expected failed record, got processed_at=%v error=%q", record.ProcessedAt, record.ProcessingError)
	}

	if errHandle := syncer.HandleEvent(context.Background(), event); errHandle != nil {
		t.Fatalf("redelivery: %v", errHandle)
	}
	if retrievals != 2 {
		t.Fatalf("expected redelivery to retry retrieval, got %d calls", retrievals)
	}

	var sub models.Subscription
	if errFind := conn.Where("stripe_subscription_id = ?", "sub_1").First(&sub).Error; errFind != nil {
		t.Fatalf("subscription missing after redelivery: %v", errFind)
	}

	if errFind := conn.Where("provider_event_id = ?", "evt_10").First(&record).Error; errFind != nil {
		t.Fatalf("reload event record: %v", errFind)
	}
	if record.ProcessedAt == nil || record.ProcessingError != "" {
		t.Fatalf("expected record cleared after retry, got processed_at=%v error=%q", record.ProcessedAt, record.ProcessingError)
	}

	var count int64
	if errCount := conn.Model(&models.WebhookEvent{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count events: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected one stored event, got %d", count)
	}
}

func TestHandleEvent_UnknownTypeIgnored(t *testing.T) {
	conn := openTestDB(t)
	syncer := NewSyncer(conn, "whsec_test", nil)

	event := makeEvent(t, "evt_9", "customer.created", `{"id": "cus_1"}`)
	if errHandle := syncer.HandleEvent(context.Background(), event); errHandle != nil {
		t.Fatalf("expected unknown type to be acknowledged, got %v", errHandle)
	}
}

func TestVerifyEvent_BadSignature(t *testing.T) {
	syncer := NewSyncer(openTestDB(t), "whsec_test", nil)
	if _, errVerify := syncer.VerifyEvent([]byte(`{}`), "t=1,v1=bogus"); errVerify == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestActiveSubscriptions_FiltersStatusAndPeriod(t *testing.T) {
	conn := openTestDB(t)
	user := seedUser(t, conn, "cus_1")
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	future := now.AddDate(0, 1, 0)
	past := now.AddDate(0, -1, 0)
	rows := []models.Subscription{
		{UserID: user.ID, StripeSubscriptionID: "sub_live", StripePriceID: "p", StripeCustomerID: "cus_1", Status: models.SubscriptionStatusActive, CurrentPeriodEnd: &future},
		{UserID: user.ID, StripeSubscriptionID: "sub_lapsed", StripePriceID: "p", StripeCustomerID: "cus_1", Status: models.SubscriptionStatusActive, CurrentPeriodEnd: &past},
		{UserID: user.ID, StripeSubscriptionID: "sub_canceled", StripePriceID: "p", StripeCustomerID: "cus_1", Status: models.SubscriptionStatusCanceled, CurrentPeriodEnd: &future},
	}
	for i := range rows {
		if errCreate := conn.Create(&rows[i]).Error; errCreate != nil {
			t.Fatalf("seed subscription: %v", errCreate)
		}
	}

	subs, errFind := ActiveSubscriptions(context.Background(), conn, user.ID, now)
	if errFind != nil {
		t.Fatalf("query: %v", errFind)
	}
	if len(subs) != 1 || subs[0].StripeSubscriptionID != "sub_live" {
		t.Fatalf("expected only the live subscription, got %+v", subs)
	}
}

func TestCurrentSubscription_NilWhenFree(t *testing.T) {
	conn := openTestDB(t)
	user := seedUser(t, conn, "cus_1")

	sub, errFind := CurrentSubscription(context.Background(), conn, user.ID)
	if errFind != nil {
		t.Fatalf("query: %v", errFind)
	}
	if sub != nil {
		t.Fatalf("expected nil for free user, got %+v", sub)
	}
}
