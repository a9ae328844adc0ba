package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/mediecho/internal/apierror"
	"github.com/jimdaga/mediecho/internal/auth"
)

// Handler serves the subscription endpoints
type Handler struct {
	svc  *Service
	errs apierror.Responder
}

// NewHandler creates a Handler
func NewHandler(svc *Service, errs apierror.Responder) *Handler {
	return &Handler{svc: svc, errs: errs}
}

type checkoutRequest struct {
	PriceID    string `json:"priceId" binding:"required"`
	SuccessURL string `json:"successUrl" binding:"omitempty,url"`
	CancelURL  string `json:"cancelUrl" binding:"omitempty,url"`
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl" binding:"omitempty,url"`
}

// Plans lists the plan catalog
func (h *Handler) Plans(c *gin.Context) {
	apierror.OK(c, http.StatusOK, h.svc.Plans())
}

// Checkout creates a hosted checkout page for the authenticated user
func (h *Handler) Checkout(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, apierror.FromBinding(err))
		return
	}

	session, err := h.svc.Checkout(c.Request.Context(), user, req.PriceID, req.SuccessURL, req.CancelURL)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}
	apierror.OK(c, http.StatusOK, session)
}

// Portal opens the billing portal for the authenticated user
func (h *Handler) Portal(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}

	var req portalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.errs.Respond(c, apierror.FromBinding(err))
			return
		}
	}

	url, err := h.svc.Portal(c.Request.Context(), user, req.ReturnURL)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}
	apierror.OK(c, http.StatusOK, gin.H{"url": url})
}

// Subscription returns the authenticated user's subscription state
func (h *Handler) Subscription(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}

	apierror.OK(c, http.StatusOK, gin.H{
		"subscriptionStatus":  user.SubscriptionStatus,
		"subscriptionPlan":    user.SubscriptionPlan,
		"stripeCustomerId":    user.StripeCustomerID,
		"subscriptionEndDate": user.SubscriptionEndDate,
	})
}

// VerifySession reports the outcome of a checkout the customer returned from
func (h *Handler) VerifySession(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		h.errs.Respond(c, apierror.Validation("Session ID required"))
		return
	}

	status, err := h.svc.VerifySession(c.Request.Context(), sessionID)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}
	apierror.OK(c, http.StatusOK, gin.H{"session": status})
}
