package funnel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pulsai/pulsai/internal/payment"
	"github.com/pulsai/pulsai/pkg/models"
)

// LinkGenerator creates a hosted payment link for a resolved request.
type LinkGenerator interface {
	GenerateLink(ctx context.Context, req models.PaymentLinkRequest) (string, error)
}

// Action tag prefixes the model uses to steer payment resolution.
const (
	planTagPrefix   = "plan:"
	amountTagPrefix = "amount:"
)

// ResolvePaymentRequest turns a directive's action tags into a concrete
// payment link request.
//
// The actions are scanned left to right. The last valid plan tag picks the
// plan; the last valid amount tag pins the amount. The two fields are
// independent: an explicit amount survives a later plan tag, because a plan
// only supplies the amount when no amount tag named one. Malformed tags are
// ignored and the prior value kept. With no plan tag at all, the pro plan
// applies.
func ResolvePaymentRequest(directive models.Directive, userID string) models.PaymentLinkRequest {
	planID := payment.DefaultPlanID
	amount := 0
	amountExplicit := false

	for _, action := range directive.Actions {
		switch {
		case strings.HasPrefix(action, planTagPrefix):
			name := strings.TrimSpace(strings.TrimPrefix(action, planTagPrefix))
			if _, ok := payment.PlanByID(name); ok {
				planID = name
			} else {
				log.Warn().Str("action", action).Msg("unknown plan tag ignored")
			}
		case strings.HasPrefix(action, amountTagPrefix):
			value := strings.TrimSpace(strings.TrimPrefix(action, amountTagPrefix))
			if parsed, err := strconv.Atoi(value); err == nil {
				amount = parsed
				amountExplicit = true
			} else {
				log.Warn().Str("action", action).Msg("malformed amount tag ignored")
			}
		}
	}

	plan, _ := payment.PlanByID(planID)
	if !amountExplicit {
		amount = plan.Price
	}

	return models.PaymentLinkRequest{
		Amount: amount,
		Reason: fmt.Sprintf("%s — %d %s", plan.Name, amount, plan.Currency),
		UserID: userID,
	}
}

// ExecutePaymentTrigger resolves the request and calls the link generator.
// A generator fault propagates so the orchestrator can decide what of the
// composed reply survives; nothing written before this point is rolled back.
func ExecutePaymentTrigger(ctx context.Context, generator LinkGenerator, directive models.Directive, userID string) (string, error) {
	req := ResolvePaymentRequest(directive, userID)
	url, err := generator.GenerateLink(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate payment link for %s: %w", userID, err)
	}
	return url, nil
}

// paymentLine is the user-visible confirmation appended to the reply text
// when a link was generated.
func paymentLine(url string) string {
	return fmt.Sprintf("\n\n💳 Voici votre lien de paiement sécurisé : %s", url)
}
