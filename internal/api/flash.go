package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookie = "flash"

// Flash kinds, also used as CSS classes.
const (
	flashSuccess = "success"
	flashInfo    = "info"
	flashDanger  = "danger"
)

// User-facing messages.
const (
	msgURLAdded      = "Page successfully added"
	msgURLExists     = "Page already exists"
	msgCheckDone     = "Page successfully checked"
	msgCheckFailed   = "Failed to connect to the page"
	msgIncorrectURL  = "Incorrect URL"
	msgNotFound      = "Page not found"
	msgInternalError = "Something went wrong"
)

type flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// setFlash stores a one-shot message shown on the next rendered page.
func setFlash(w http.ResponseWriter, kind, message string) {
	data, err := json.Marshal([]flash{{Kind: kind, Message: message}})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlashes reads and clears pending messages. A tampered or stale cookie
// yields no messages.
func popFlashes(w http.ResponseWriter, r *http.Request) []flash {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var out []flash
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
