package shopsync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*shopClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("SHOPFRONT_API_BASE_URL", srv.URL)
	t.Setenv("SHOPFRONT_RATE_LIMIT_PER_MIN", "600000")

	c, err := newShopClient("test-token")
	if err != nil {
		t.Fatalf("newShopClient: %v", err)
	}
	t.Cleanup(c.Close)
	return c, srv
}

func TestNewShopClient_RequiresBaseURL(t *testing.T) {
	t.Setenv("SHOPFRONT_API_BASE_URL", "")
	if _, err := newShopClient(""); err == nil {
		t.Fatal("expected error when SHOPFRONT_API_BASE_URL is unset")
	}
}

func TestDeleteListing_Success(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))

	gone, err := c.DeleteListing(context.Background(), "sku-123")
	if err != nil {
		t.Fatalf("DeleteListing: %v", err)
	}
	if !gone {
		t.Error("expected listing confirmed absent")
	}
	if gotMethod != http.MethodDelete || gotPath != "/listings/sku-123" {
		t.Errorf("got %s %s, want DELETE /listings/sku-123", gotMethod, gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("got Authorization %q", gotAuth)
	}
}

func TestDeleteListing_NotFoundIsSuccess(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	gone, err := c.DeleteListing(context.Background(), "already-gone")
	if err != nil {
		t.Fatalf("404 must not be an error: %v", err)
	}
	if !gone {
		t.Error("404 means the listing is already absent")
	}
}

func TestDeleteListing_ServerErrorCarriesBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))

	gone, err := c.DeleteListing(context.Background(), "sku-9")
	if err == nil {
		t.Fatal("expected error on 502")
	}
	if gone {
		t.Error("failed delete must not report the listing absent")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream exploded") {
		t.Errorf("error should carry status and body, got %q", err.Error())
	}
}

func TestDesyncWebListing(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.DesyncWebListing(context.Background(), "sku-5"); err != nil {
		t.Fatalf("DesyncWebListing: %v", err)
	}
	if gotPath != "/web-listings/sku-5/desync" {
		t.Errorf("got path %q", gotPath)
	}
}

func TestDesyncWebListing_NotFoundTolerated(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	if err := c.DesyncWebListing(context.Background(), "missing"); err != nil {
		t.Fatalf("missing web listing is not an error: %v", err)
	}
}

func TestSendStoreIntake_PostsEachEntryWithHeaders(t *testing.T) {
	type seenReq struct {
		path, role, userId, storeId, auth string
		body                              string
	}
	var seen []seenReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		seen = append(seen, seenReq{
			path:    r.URL.Path,
			role:    r.Header.Get("X-Role"),
			userId:  r.Header.Get("X-User-Id"),
			storeId: r.Header.Get("X-Store-Id"),
			auth:    r.Header.Get("Authorization"),
			body:    string(buf),
		})
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	t.Setenv("STORE_INTAKE_API_BASE_URL", srv.URL)

	entries := []IntakeEntry{
		{Sku: "SKU-A", Name: "Jacket"},
		{Sku: "SKU-B", Name: "Boots"},
	}
	err := SendStoreIntake(context.Background(), "store-77", "ADMIN", 42, "tkn", entries)
	if err != nil {
		t.Fatalf("SendStoreIntake: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("got %d requests, want one per entry", len(seen))
	}
	for i, s := range seen {
		if s.path != "/inventory/intake" {
			t.Errorf("req %d path %q", i, s.path)
		}
		if s.role != "ADMIN" || s.userId != "42" || s.storeId != "store-77" {
			t.Errorf("req %d headers role=%q user=%q store=%q", i, s.role, s.userId, s.storeId)
		}
		if s.auth != "Bearer tkn" {
			t.Errorf("req %d auth %q", i, s.auth)
		}
	}
	if !strings.Contains(seen[0].body, `"sku":"SKU-A"`) || !strings.Contains(seen[1].body, `"sku":"SKU-B"`) {
		t.Errorf("entries not delivered in order: %q / %q", seen[0].body, seen[1].body)
	}
}

func TestSendStoreIntake_FailureNamesSku(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("duplicate sku"))
	}))
	defer srv.Close()
	t.Setenv("STORE_INTAKE_API_BASE_URL", srv.URL)

	err := SendStoreIntake(context.Background(), "store-1", "ADMIN", 1, "", []IntakeEntry{{Sku: "SKU-X"}})
	if err == nil {
		t.Fatal("expected error on 422")
	}
	for _, want := range []string{"SKU-X", "422", "duplicate sku"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should contain %q", err.Error(), want)
		}
	}
}

func TestSendStoreIntake_RequiresBaseURL(t *testing.T) {
	t.Setenv("STORE_INTAKE_API_BASE_URL", "")
	err := SendStoreIntake(context.Background(), "s", "ADMIN", 1, "", []IntakeEntry{{Sku: "A"}})
	if err == nil {
		t.Fatal("expected error when STORE_INTAKE_API_BASE_URL is unset")
	}
}
