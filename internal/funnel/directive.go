package funnel

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"

	"github.com/pulsai/pulsai/pkg/models"
)

// fallbackText is used when the model returns valid JSON with no text field.
const fallbackText = "Je suis là pour vous aider !"

// paymentSentinel is the wire value the model puts in payment_url to ask for
// link generation.
const paymentSentinel = "GENERATE"

// rawDirective mirrors the JSON contract the model is instructed to follow.
type rawDirective struct {
	Text       string   `json:"text"`
	Stage      string   `json:"stage"`
	PaymentURL *string  `json:"payment_url"`
	Actions    []string `json:"actions"`
}

// ParserOptions tunes directive parsing. Repair runs the jsonrepair pass on
// undecodable output before giving up; it is off by default so that
// non-compliant model output degrades to the verbatim fallback.
type ParserOptions struct {
	Repair bool
}

// ParseDirective validates raw model output against the response contract.
//
// On a clean decode the fields are taken as-is, with per-field defaults:
// empty text gets a fixed friendly line, an absent or unknown stage keeps the
// conversation's current stage, absent actions become an empty list.
//
// Anything that does not decode as the contract (prose, truncated JSON,
// JSON wrapped in commentary) yields the designed fallback: the raw text
// verbatim, the stage unchanged, no payment directive, no actions. This
// function never fails; it is the safety net for a model that ignored its
// instructions.
func ParseDirective(rawText string, current models.Stage, opts ParserOptions) models.Directive {
	var raw rawDirective
	if err := json.Unmarshal([]byte(rawText), &raw); err != nil {
		if opts.Repair {
			if repaired, repairErr := jsonrepair.JSONRepair(rawText); repairErr == nil {
				if json.Unmarshal([]byte(repaired), &raw) == nil {
					log.Debug().Str("stage", current.String()).Msg("model output repaired into contract shape")
					return fromRaw(raw, current)
				}
			}
		}
		return models.Directive{
			Text:    rawText,
			Stage:   current,
			Payment: models.PaymentDirective{Kind: models.PaymentNone},
			Actions: []string{},
		}
	}
	return fromRaw(raw, current)
}

func fromRaw(raw rawDirective, current models.Stage) models.Directive {
	text := raw.Text
	if strings.TrimSpace(text) == "" {
		text = fallbackText
	}

	stage, ok := models.ParseStage(raw.Stage)
	if !ok {
		stage = current
	}

	actions := raw.Actions
	if actions == nil {
		actions = []string{}
	}

	return models.Directive{
		Text:    text,
		Stage:   stage,
		Payment: parsePayment(raw.PaymentURL),
		Actions: actions,
	}
}

func parsePayment(value *string) models.PaymentDirective {
	if value == nil {
		return models.PaymentDirective{Kind: models.PaymentNone}
	}
	v := strings.TrimSpace(*value)
	switch {
	case v == "":
		return models.PaymentDirective{Kind: models.PaymentNone}
	case v == paymentSentinel:
		return models.PaymentDirective{Kind: models.PaymentGenerate}
	default:
		// The model supplied a URL itself; pass it through untouched.
		return models.PaymentDirective{Kind: models.PaymentURL, URL: v}
	}
}
