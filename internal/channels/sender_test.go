package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioSender(t *testing.T) {
	var gotPath, gotFrom, gotTo, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotFrom = r.PostForm.Get("From")
		gotTo = r.PostForm.Get("To")
		gotBody = r.PostForm.Get("Body")

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid": "SM1"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "secret", "whatsapp:+14155238886")
	sender.BaseURL = srv.URL

	err := sender.Send(context.Background(), "+22959085540", "Bonjour !")
	require.NoError(t, err)

	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	assert.Equal(t, "whatsapp:+14155238886", gotFrom)
	assert.Equal(t, "whatsapp:+22959085540", gotTo, "bare numbers get the whatsapp prefix")
	assert.Equal(t, "Bonjour !", gotBody)
}

func TestTwilioSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "bad", "whatsapp:+14155238886")
	sender.BaseURL = srv.URL

	err := sender.Send(context.Background(), "+22959085540", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestMetaSender(t *testing.T) {
	var gotPayload map[string]map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/messages", r.URL.Path)
		assert.Equal(t, "page-token", r.URL.Query().Get("access_token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write([]byte(`{"message_id": "m.1"}`))
	}))
	defer srv.Close()

	sender := NewMetaSender("page-token")
	sender.BaseURL = srv.URL

	err := sender.Send(context.Background(), "psid-1", "Bienvenue")
	require.NoError(t, err)

	assert.Equal(t, "psid-1", gotPayload["recipient"]["id"])
	assert.Equal(t, "Bienvenue", gotPayload["message"]["text"])
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	_, ok := registry.Lookup("whatsapp")
	assert.False(t, ok)

	sender := NewMetaSender("tok")
	registry.Register("messenger", sender)

	got, ok := registry.Lookup("messenger")
	require.True(t, ok)
	assert.Same(t, sender, got)
}

func TestMailgunSender(t *testing.T) {
	var gotPath, gotFrom, gotTo, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotFrom = r.PostForm.Get("from")
		gotTo = r.PostForm.Get("to")
		gotText = r.PostForm.Get("text")

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "api", user)
		assert.Equal(t, "key-123", pass)

		w.Write([]byte(`{"id": "<msg@mg>", "message": "Queued."}`))
	}))
	defer srv.Close()

	sender := NewMailgunSender("mg.pulsai.io", "key-123", "assistant@mg.pulsai.io")
	sender.BaseURL = srv.URL

	err := sender.Send(context.Background(), "lead@example.com", "Bonjour !")
	require.NoError(t, err)

	assert.Equal(t, "/v3/mg.pulsai.io/messages", gotPath)
	assert.Equal(t, "assistant@mg.pulsai.io", gotFrom)
	assert.Equal(t, "lead@example.com", gotTo)
	assert.Equal(t, "Bonjour !", gotText)
}

func TestRegistryLen(t *testing.T) {
	registry := NewRegistry()
	assert.Equal(t, 0, registry.Len())
	registry.Register("email", NewMailgunSender("d", "k", "f@d"))
	assert.Equal(t, 1, registry.Len())
}
