package billing

import (
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/mediecho/internal/apierror"
	"github.com/jimdaga/mediecho/internal/auth"
	"github.com/jimdaga/mediecho/internal/models"
)

// PaidPlans are the tiers that unlock weekly briefs
var PaidPlans = []models.Plan{models.PlanPro, models.PlanCoach}

// Eligible reports whether user's subscription grants one of plans
func Eligible(user *models.User, plans ...models.Plan) bool {
	return slices.Contains(plans, user.SubscriptionPlan) && user.HasActiveSubscription()
}

// RequirePlan rejects requests from users without an active subscription to one of plans.
// It must run after auth.RequireAuth.
func RequirePlan(errs apierror.Responder, plans ...models.Plan) gin.HandlerFunc {
	required := make([]string, len(plans))
	for i, p := range plans {
		required[i] = string(p)
	}

	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
			return
		}

		if !Eligible(user, plans...) {
			errs.Respond(c, apierror.PaymentRequired("An active Pro or Coach subscription is required").
				With("requiredPlans", required).
				With("currentPlan", user.SubscriptionPlan).
				With("subscriptionStatus", user.SubscriptionStatus))
			return
		}

		c.Next()
	}
}
