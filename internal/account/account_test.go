package account

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janekbaraniewski/tokenpulse/internal/core"
)

func TestReadAccountFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".claude.json")
	acctData := `{"hasAvailableSubscription": true, "oauthAccount": {"emailAddress": "test@example.com", "displayName": "Test", "organizationUuid": "org-123", "billingType": "stripe_subscription"}}`
	if err := os.WriteFile(path, []byte(acctData), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := ReadAccountFile(path)
	if err != nil {
		t.Fatalf("ReadAccountFile error: %v", err)
	}
	want := core.Profile{
		DisplayName:  "Test",
		Email:        "test@example.com",
		Organization: "org-123",
		BillingType:  "stripe_subscription",
		Subscription: "active",
	}
	if p != want {
		t.Errorf("profile = %+v, want %+v", p, want)
	}
}

func TestReadAccountFile_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadAccountFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadAccountFile(bad); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "nested", "profile.json")}

	p, err := store.Load()
	if err != nil {
		t.Fatalf("Load of missing store: %v", err)
	}
	if !p.IsZero() {
		t.Errorf("missing store should load empty, got %+v", p)
	}

	saved := core.Profile{DisplayName: "Net Name", Email: "net@example.com"}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != saved {
		t.Errorf("loaded %+v, want %+v", got, saved)
	}
}

func TestReadAccountFile_NoSubscriptionLeavesFieldEmpty(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"false.json":   `{"hasAvailableSubscription": false, "oauthAccount": {"emailAddress": "a@example.com"}}`,
		"missing.json": `{"oauthAccount": {"emailAddress": "a@example.com"}}`,
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		p, err := ReadAccountFile(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if p.Subscription != "" {
			t.Errorf("%s: subscription = %q, want empty so lower-priority sources apply", name, p.Subscription)
		}
	}
}
