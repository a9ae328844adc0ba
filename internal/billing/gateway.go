// Package billing connects accounts to Stripe subscriptions.
package billing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// CheckoutRequest describes a subscription checkout for one user
type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	UserID     uint
	Plan       string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is a created hosted checkout page
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// SessionStatus is the state of a checkout session after the customer returns
type SessionStatus struct {
	ID             string `json:"id"`
	PaymentStatus  string `json:"payment_status"`
	Status         string `json:"status"`
	SubscriptionID string `json:"subscription,omitempty"`
	CustomerID     string `json:"-"`
}

// Gateway is the subset of the payment processor used by the service
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name string, userID uint) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*SessionStatus, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// StripeGateway implements Gateway with the Stripe API
type StripeGateway struct {
	sc *client.API
}

// NewStripeGateway creates a StripeGateway authenticated with secretKey
func NewStripeGateway(secretKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{sc: sc}
}

// CreateCustomer registers the user as a Stripe customer and returns its ID
func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string, userID uint) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.Context = ctx
	params.AddMetadata("userId", strconv.FormatUint(uint64(userID), 10))

	customer, err := g.sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return customer.ID, nil
}

// CreateCheckoutSession starts a subscription checkout
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	userID := strconv.FormatUint(uint64(req.UserID), 10)
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:           stripe.String(req.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:          stripe.String(req.SuccessURL),
		CancelURL:           stripe.String(req.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"userId": userID, "plan": req.Plan},
		},
	}
	params.Context = ctx
	params.AddMetadata("userId", userID)
	params.AddMetadata("plan", req.Plan)

	session, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// GetCheckoutSession retrieves a checkout session with its subscription expanded
func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (*SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")

	session, err := g.sc.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}

	status := &SessionStatus{
		ID:            session.ID,
		PaymentStatus: string(session.PaymentStatus),
		Status:        string(session.Status),
	}
	if session.Subscription != nil {
		status.SubscriptionID = session.Subscription.ID
	}
	if session.Customer != nil {
		status.CustomerID = session.Customer.ID
	}
	return status, nil
}

// CreatePortalSession opens the billing portal for a customer and returns its URL
func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := g.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return session.URL, nil
}
