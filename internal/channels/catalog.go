// Package channels adapts each delivery surface (web chat, WhatsApp, email,
// Messenger, Instagram) to the canonical inbound event and back out again.
package channels

import (
	"fmt"

	"github.com/pulsai/pulsai/pkg/models"
)

// Info describes one supported channel for the catalog endpoint.
type Info struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Icon   string `json:"icon"`
	Active bool   `json:"active"`
}

var catalog = []Info{
	{ID: "web", Label: "Chat Web", Icon: "globe", Active: true},
	{ID: "whatsapp", Label: "WhatsApp", Icon: "phone", Active: true},
	{ID: "email", Label: "Email", Icon: "mail", Active: true},
	{ID: "messenger", Label: "Messenger", Icon: "message", Active: true},
	{ID: "instagram", Label: "Instagram", Icon: "camera", Active: true},
}

// Catalog lists every supported channel.
func Catalog() []Info {
	out := make([]Info, len(catalog))
	copy(out, catalog)
	return out
}

// Status returns the catalog entry for one channel.
func Status(id string) (Info, error) {
	for _, c := range catalog {
		if c.ID == id {
			return c, nil
		}
	}
	return Info{}, fmt.Errorf("unknown channel %q", id)
}

// Supported reports whether the id names a deliverable channel.
func Supported(id string) bool {
	_, ok := models.ParseChannel(id)
	return ok
}
