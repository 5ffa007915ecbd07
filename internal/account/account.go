// Package account reads the client's account file and keeps a local cache
// of profile fields learned from the network.
package account

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/janekbaraniewski/tokenpulse/internal/core"
)

type accountConfig struct {
	HasAvailableSubscription bool       `json:"hasAvailableSubscription"`
	OAuthAccount             *oauthAcct `json:"oauthAccount"`
}

type oauthAcct struct {
	AccountUUID      string `json:"accountUuid"`
	EmailAddress     string `json:"emailAddress"`
	OrganizationUUID string `json:"organizationUuid"`
	OrganizationName string `json:"organizationName"`
	BillingType      string `json:"billingType"`
	DisplayName      string `json:"displayName"`
}

// ReadAccountFile extracts profile fields from ~/.claude.json.
func ReadAccountFile(path string) (core.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Profile{}, fmt.Errorf("reading account config: %w", err)
	}

	var acct accountConfig
	if err := json.Unmarshal(data, &acct); err != nil {
		return core.Profile{}, fmt.Errorf("parsing account config: %w", err)
	}

	var p core.Profile
	if acct.OAuthAccount != nil {
		p.DisplayName = strings.TrimSpace(acct.OAuthAccount.DisplayName)
		p.Email = strings.TrimSpace(acct.OAuthAccount.EmailAddress)
		p.Organization = strings.TrimSpace(acct.OAuthAccount.OrganizationName)
		if p.Organization == "" {
			p.Organization = strings.TrimSpace(acct.OAuthAccount.OrganizationUUID)
		}
		p.BillingType = strings.TrimSpace(acct.OAuthAccount.BillingType)
	}
	if acct.HasAvailableSubscription {
		p.Subscription = "active"
	}
	return p, nil
}

// DefaultAccountPath returns ~/.claude.json.
func DefaultAccountPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude.json")
}

// FileStore persists a profile as JSON.
type FileStore struct {
	Path string
}

// Load returns the stored profile; a missing file is an empty profile.
func (s FileStore) Load() (core.Profile, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.Profile{}, nil
		}
		return core.Profile{}, fmt.Errorf("reading profile cache: %w", err)
	}
	var p core.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return core.Profile{}, fmt.Errorf("parsing profile cache %s: %w", s.Path, err)
	}
	return p, nil
}

func (s FileStore) Save(p core.Profile) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("creating profile cache dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling profile cache: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("writing profile cache: %w", err)
	}
	return nil
}
