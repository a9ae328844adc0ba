package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jimdaga/mediecho/internal/apierror"
	"github.com/jimdaga/mediecho/internal/models"
	"github.com/jimdaga/mediecho/internal/plans"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errAlreadyProcessed = errors.New("event already processed")

// Service manages subscriptions. A nil gateway disables the Stripe-backed operations.
type Service struct {
	db      *gorm.DB
	gateway Gateway
	plans   *plans.Registry
	appURL  string
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a Service
func NewService(db *gorm.DB, gateway Gateway, registry *plans.Registry, appURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:      db,
		gateway: gateway,
		plans:   registry,
		appURL:  appURL,
		logger:  logger,
		now:     time.Now,
	}
}

// Plans returns the catalog in display order
func (s *Service) Plans() []*plans.Plan {
	return s.plans.List()
}

// Checkout starts a subscription checkout for priceID, creating the Stripe
// customer on first use
func (s *Service) Checkout(ctx context.Context, user *models.User, priceID, successURL, cancelURL string) (*CheckoutSession, error) {
	if s.gateway == nil {
		return nil, apierror.Unavailable("Billing is not configured")
	}

	plan, ok := s.plans.ByPriceID(priceID)
	if !ok {
		return nil, apierror.Validation("Unknown price", "priceId does not match any plan")
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	if successURL == "" {
		successURL = s.appURL + "/subscription/success?session_id={CHECKOUT_SESSION_ID}"
	}
	if cancelURL == "" {
		cancelURL = s.appURL + "/subscription/failure"
	}

	return s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customerID,
		PriceID:    priceID,
		UserID:     user.ID,
		Plan:       string(plan.Name),
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
}

// Portal opens the billing portal for a user who already has a Stripe customer
func (s *Service) Portal(ctx context.Context, user *models.User, returnURL string) (string, error) {
	if s.gateway == nil {
		return "", apierror.Unavailable("Billing is not configured")
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", apierror.Precondition("No active subscription found")
	}
	if returnURL == "" {
		returnURL = s.appURL + "/dashboard"
	}
	return s.gateway.CreatePortalSession(ctx, *user.StripeCustomerID, returnURL)
}

// VerifySession reports the state of a completed checkout
func (s *Service) VerifySession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	if s.gateway == nil {
		return nil, apierror.Unavailable("Billing is not configured")
	}
	return s.gateway.GetCheckoutSession(ctx, sessionID)
}

func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, user.Email, user.Name, user.ID)
	if err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("stripe_customer_id", customerID).Error; err != nil {
		return "", fmt.Errorf("failed to save stripe customer: %w", err)
	}
	user.StripeCustomerID = &customerID
	return customerID, nil
}

// ApplyEvent updates subscription state from a verified webhook event.
// Each event ID is applied at most once; redeliveries report applied=false.
func (s *Service) ApplyEvent(ctx context.Context, event stripe.Event) (applied bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := models.BillingEvent{
			EventID:     event.ID,
			Type:        string(event.Type),
			Payload:     datatypes.JSON(event.Data.Raw),
			ProcessedAt: s.now(),
		}
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyProcessed
			}
			return fmt.Errorf("failed to record billing event: %w", err)
		}
		return s.apply(tx, event)
	})

	if errors.Is(err, errAlreadyProcessed) {
		s.logger.Info("Duplicate webhook event ignored", "event_id", event.ID, "type", event.Type)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) apply(tx *gorm.DB, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("failed to decode checkout session: %w", err)
		}

		user, err := s.findUser(tx, customerID(session.Customer), session.Metadata["userId"])
		if err != nil || user == nil {
			return err
		}

		updates := map[string]interface{}{
			"subscription_status": models.SubscriptionActive,
		}
		if user.StripeCustomerID == nil && session.Customer != nil {
			updates["stripe_customer_id"] = session.Customer.ID
		}
		if session.Subscription != nil && session.Subscription.ID != "" {
			updates["stripe_subscription_id"] = session.Subscription.ID
		}
		if plan := models.Plan(session.Metadata["plan"]); models.ValidPlan(plan) {
			updates["subscription_plan"] = plan
		}
		return s.updateUser(tx, user, event, updates)

	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("failed to decode invoice: %w", err)
		}

		user, err := s.findUser(tx, customerID(invoice.Customer), "")
		if err != nil || user == nil {
			return err
		}

		updates := map[string]interface{}{}
		if event.Type == stripe.EventTypeInvoicePaymentSucceeded {
			updates["subscription_status"] = models.SubscriptionActive
			if invoice.Subscription != nil && invoice.Subscription.ID != "" {
				updates["stripe_subscription_id"] = invoice.Subscription.ID
			}
		} else {
			updates["subscription_status"] = models.SubscriptionPastDue
		}
		return s.updateUser(tx, user, event, updates)

	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("failed to decode subscription: %w", err)
		}

		user, err := s.findUser(tx, customerID(sub.Customer), sub.Metadata["userId"])
		if err != nil || user == nil {
			return err
		}

		updates := map[string]interface{}{
			"subscription_status":    mapStatus(sub.Status),
			"stripe_subscription_id": sub.ID,
		}
		if sub.CurrentPeriodEnd > 0 {
			updates["subscription_end_date"] = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			if plan, ok := s.plans.ByPriceID(sub.Items.Data[0].Price.ID); ok {
				updates["subscription_plan"] = plan.Name
			}
		}
		return s.updateUser(tx, user, event, updates)

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("failed to decode subscription: %w", err)
		}

		user, err := s.findUser(tx, customerID(sub.Customer), sub.Metadata["userId"])
		if err != nil || user == nil {
			return err
		}

		endedAt := s.now().UTC()
		if sub.EndedAt > 0 {
			endedAt = time.Unix(sub.EndedAt, 0).UTC()
		}
		return s.updateUser(tx, user, event, map[string]interface{}{
			"subscription_status":    models.SubscriptionCanceled,
			"subscription_plan":      models.PlanFree,
			"stripe_subscription_id": nil,
			"subscription_end_date":  endedAt,
		})

	default:
		s.logger.Info("Unhandled webhook event type", "event_id", event.ID, "type", event.Type)
		return nil
	}
}

// findUser locates the account by Stripe customer, falling back to the user ID in
// metadata. Events for unknown customers are recorded but change nothing.
func (s *Service) findUser(tx *gorm.DB, customer, userID string) (*models.User, error) {
	var user models.User
	var err error
	switch {
	case customer != "":
		err = tx.Where("stripe_customer_id = ?", customer).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) && userID != "" {
			err = s.findByID(tx, userID, &user)
		}
	case userID != "":
		err = s.findByID(tx, userID, &user)
	default:
		err = gorm.ErrRecordNotFound
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn("No user for webhook event", "customer", customer, "user_id", userID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (s *Service) findByID(tx *gorm.DB, userID string, user *models.User) error {
	id, err := strconv.ParseUint(userID, 10, 64)
	if err != nil {
		return gorm.ErrRecordNotFound
	}
	return tx.First(user, id).Error
}

func (s *Service) updateUser(tx *gorm.DB, user *models.User, event stripe.Event, updates map[string]interface{}) error {
	if err := tx.Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	s.logger.Info("Subscription updated from webhook",
		"event_id", event.ID,
		"type", event.Type,
		"user_id", user.ID,
		"status", updates["subscription_status"],
	)
	return nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// mapStatus folds Stripe's subscription states onto the ones accounts track
func mapStatus(status stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return models.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return models.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionCanceled
	default:
		return models.SubscriptionNone
	}
}
