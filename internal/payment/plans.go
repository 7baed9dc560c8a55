package payment

// Plan is one subscription tier. Price is in FCFA minor units.
type Plan struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    int      `json:"price"`
	Currency string   `json:"currency"`
	Period   string   `json:"period"`
	Features []string `json:"features"`
}

// DefaultPlanID is assumed when the model requests a payment link without
// naming a plan.
const DefaultPlanID = "pro"

var plans = []Plan{
	{
		ID:       "starter",
		Name:     "Starter",
		Price:    9900,
		Currency: "FCFA",
		Period:   "mois",
		Features: []string{"1 canal", "500 messages/mois", "Support email"},
	},
	{
		ID:       "pro",
		Name:     "Pro",
		Price:    29900,
		Currency: "FCFA",
		Period:   "mois",
		Features: []string{"5 canaux", "5000 messages/mois", "WhatsApp inclus", "Support prioritaire"},
	},
	{
		ID:       "enterprise",
		Name:     "Enterprise",
		Price:    99900,
		Currency: "FCFA",
		Period:   "mois",
		Features: []string{"Canaux illimités", "Messages illimités", "IA personnalisée", "Support dédié"},
	},
}

// Plans returns the plan catalog.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// PlanByID looks up a plan by its identifier.
func PlanByID(id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
