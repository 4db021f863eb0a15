package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlashRoundTrip(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	setFlash(rec, flashDanger, msgCheckFailed)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	got := popFlashes(httptest.NewRecorder(), req)
	require.Equal(t, []flash{{Kind: flashDanger, Message: msgCheckFailed}}, got)
}

func TestFlashIgnoresGarbage(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"%%%", "bm90LWpzb24"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: flashCookie, Value: value})
		require.Nil(t, popFlashes(httptest.NewRecorder(), req))
	}
	require.Nil(t, popFlashes(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)))
}
