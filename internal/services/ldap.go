package services

import (
	"crypto/tls"
	"fmt"

	"github.com/deedox/platform/internal/config"
	"github.com/go-ldap/ldap/v3"
)

// LDAPService signs users in against a directory. Accounts are matched to
// platform users by their mail attribute.
type LDAPService struct {
	config *config.LDAPConfig
}

func NewLDAPService(cfg *config.LDAPConfig) *LDAPService {
	return &LDAPService{config: cfg}
}

func (s *LDAPService) IsEnabled() bool {
	return s.config != nil && s.config.Enabled && s.config.Host != ""
}

func (s *LDAPService) url() string {
	scheme := "ldap"
	if s.config.UseSSL {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.config.Host, s.config.Port)
}

func (s *LDAPService) Authenticate(username, password string) (*LDAPUser, error) {
	if !s.IsEnabled() {
		return nil, fmt.Errorf("LDAP is not enabled")
	}
	if password == "" {
		// an empty password would be an unauthenticated bind and always succeed
		return nil, fmt.Errorf("invalid credentials")
	}

	conn, err := ldap.DialURL(s.url(), ldap.DialWithTLSConfig(&tls.Config{ServerName: s.config.Host}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}
	defer conn.Close()

	if s.config.BindDN != "" {
		if err := conn.Bind(s.config.BindDN, s.config.BindPassword); err != nil {
			return nil, fmt.Errorf("failed to bind with service account: %w", err)
		}
	}

	searchRequest := ldap.NewSearchRequest(
		s.config.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf(s.config.UserFilter, ldap.EscapeFilter(username)),
		[]string{"dn", "cn", "displayName", "mail", "uid"},
		nil,
	)

	result, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("LDAP search failed: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("user not found in LDAP")
	}
	if len(result.Entries) > 1 {
		return nil, fmt.Errorf("multiple users found in LDAP")
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	user := &LDAPUser{
		DN:       entry.DN,
		Email:    entry.GetAttributeValue("mail"),
		FullName: entry.GetAttributeValue("displayName"),
	}
	if user.FullName == "" {
		user.FullName = entry.GetAttributeValue("cn")
	}
	return user, nil
}

type LDAPUser struct {
	DN       string
	Email    string
	FullName string
}
