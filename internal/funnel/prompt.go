// Package funnel implements the conversation orchestration core: one inbound
// user message goes in, one structured assistant reply comes out, and the
// sales funnel stage moves the way the model tells it to.
package funnel

import (
	"fmt"
	"strings"

	"github.com/pulsai/pulsai/pkg/models"
)

// Turn is one prior exchange handed to the model.
type Turn struct {
	Role    string
	Content string
}

// maxHistoryTurns caps how many prior turns are replayed to the model.
// Older context is dropped outright; there is no summarization.
const maxHistoryTurns = 10

// systemPrompt is the funnel script. It tells the model the six stages and
// pins the JSON-only response contract.
const systemPrompt = `Tu es PulsAI, un assistant commercial intelligent et empathique pour une plateforme CRM multi-canaux.

Ton objectif est de guider chaque client à travers ces étapes :
1. **Accueil** (greeting) : Souhaiter la bienvenue, comprendre le besoin
2. **Qualification** (qualification) : Identifier le profil, budget, urgence
3. **Présentation** (presentation) : Proposer la solution adaptée avec les prix
4. **Traitement des objections** (objection) : Répondre aux questions, rassurer
5. **Paiement** (payment) : Proposer le lien de paiement sécurisé, conclure la vente
6. **Terminé** (completed) : Remercier, confirmer la commande

Règles importantes :
- Sois naturel, chaleureux, jamais robotique
- Adapte ton ton au canal (plus formel par email, plus direct sur WhatsApp)
- Ne jamais mentir sur les prix ou fonctionnalités
- Si l'utilisateur est prêt à payer, mets "GENERATE" dans payment_url
- Réponds TOUJOURS en JSON avec ce format exact :
{
  "text": "ta réponse visible par l'utilisateur",
  "stage": "greeting|qualification|presentation|objection|payment|completed",
  "payment_url": "GENERATE" ou null,
  "actions": ["plan:pro", "amount:29900"] ou []
}

IMPORTANT : Ne sors JAMAIS du format JSON. Pas de texte avant ou après.`

// channelTone maps each channel to its tone directive. Unknown channels get
// the web tone rather than an error.
var channelTone = map[models.Channel]string{
	models.ChannelWeb:       "Utilise un ton professionnel mais accessible.",
	models.ChannelWhatsApp:  "Utilise un ton décontracté, des messages courts, des emojis appropriés.",
	models.ChannelEmail:     "Utilise un ton formel avec des phrases complètes et structurées.",
	models.ChannelMessenger: "Utilise un ton convivial et dynamique, messages courts.",
	models.ChannelInstagram: "Utilise un ton moderne, inspirant, avec des emojis.",
}

// BuildSystemPrompt composes the funnel script with the channel tone, the
// conversation's current stage and the user id for grounding.
func BuildSystemPrompt(channel models.Channel, stage models.Stage, userID string) string {
	tone, ok := channelTone[channel]
	if !ok {
		tone = channelTone[models.ChannelWeb]
	}
	return fmt.Sprintf("%s\n\nCanal actuel : %s. %s\nStade actuel de la conversation : %s\nID utilisateur : %s",
		systemPrompt, strings.ToUpper(channel.String()), tone, stage, userID)
}

// BuildWindow assembles the bounded message list for a model call: the last
// maxHistoryTurns turns of history, then the new user message. History must
// already be in ascending chronological order; truncation keeps the tail.
func BuildWindow(history []models.Message, userText string) []Turn {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	turns := make([]Turn, 0, len(history)+1)
	for _, m := range history {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	turns = append(turns, Turn{Role: models.RoleUser, Content: userText})
	return turns
}
