package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAdmin_AllowsAdminKey_BlocksPublicKey(t *testing.T) {
	keys := Keys{
		Public: []string{"pub_key"},
		Admin:  []string{"adm_key"},
	}

	// Admin key -> 200
	reqAdm := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	reqAdm.Header.Set("Authorization", "Bearer adm_key")
	recAdm := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler()).ServeHTTP(recAdm, reqAdm)
	if recAdm.Code != http.StatusOK {
		t.Fatalf("admin key should pass; got %d", recAdm.Code)
	}

	// Public key -> 403
	reqPub := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	reqPub.Header.Set("X-API-Key", "pub_key")
	recPub := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler()).ServeHTTP(recPub, reqPub)
	if recPub.Code != http.StatusForbidden {
		t.Fatalf("public key should be forbidden; got %d", recPub.Code)
	}

	// Missing key -> 401
	reqNone := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	recNone := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler()).ServeHTTP(recNone, reqNone)
	if recNone.Code != http.StatusUnauthorized {
		t.Fatalf("missing key should be 401; got %d", recNone.Code)
	}
}

func TestRequireAny(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}
	h := RequireAny(keys)(okHandler())

	cases := []struct {
		name string
		url  string
		key  string
		want int
	}{
		{"public header", "/api/catalog", "pub_key", http.StatusOK},
		{"admin header", "/api/catalog", "adm_key", http.StatusOK},
		{"query param", "/api/events/ws?api_key=pub_key", "", http.StatusOK},
		{"wrong key", "/api/catalog", "nope", http.StatusUnauthorized},
		{"no key", "/api/catalog", "", http.StatusUnauthorized},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, c.url, nil)
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("%s: want %d got %d", c.name, c.want, rec.Code)
		}
	}
}

func TestRequire_OpenWhenNoKeys(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	for _, mw := range []func(http.Handler) http.Handler{RequireAny(Keys{}), RequireAdmin(Keys{})} {
		rec := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("no keys configured should allow all; got %d", rec.Code)
		}
	}
}

func TestRequireAdmin_UnknownKeyIsUnauthorized(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}
	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	req.Header.Set("Authorization", "Bearer stolen")
	rec := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown key should be 401; got %d", rec.Code)
	}
}

func TestRequireAdmin_OnlyPublicKeysConfigured(t *testing.T) {
	// reads are gated, run starts are not
	keys := Keys{Public: []string{"pub_key"}}
	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin gate without admin keys should pass; got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	RequireAny(keys)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("read gate should still require a key; got %d", rec.Code)
	}
}

func TestPresentedKey(t *testing.T) {
	cases := []struct {
		name   string
		header string
		value  string
		url    string
		want   string
	}{
		{"bearer lowercase", "Authorization", "bearer  k1 ", "/", "k1"},
		{"bearer only scheme", "Authorization", "Bearer", "/?api_key=q", "q"},
		{"api key header", "X-API-Key", " k2", "/", "k2"},
		{"query", "", "", "/ws?api_key=k3", "k3"},
		{"basic ignored", "Authorization", "Basic abc", "/", ""},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, c.url, nil)
		if c.header != "" {
			req.Header.Set(c.header, c.value)
		}
		if got := presentedKey(req); got != c.want {
			t.Fatalf("%s: got %q want %q", c.name, got, c.want)
		}
	}
}
