package services

import (
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/fuseproject/fuse/backend/internal/config"
	"github.com/go-ldap/ldap/v3"
)

var errLDAPUserNotFound = errors.New("user not found in LDAP")

type LDAPUser struct {
	DN       string
	Username string
	Email    string
	Nickname string
}

type LDAPService struct {
	config *config.LDAPConfig
}

func NewLDAPService(cfg *config.LDAPConfig) *LDAPService {
	return &LDAPService{config: cfg}
}

func (s *LDAPService) Enabled() bool {
	return s.config != nil && s.config.Enabled
}

func (s *LDAPService) url() string {
	scheme := "ldap"
	if s.config.UseSSL {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.config.Host, s.config.Port)
}

// Authenticate looks the user up with the service account, then binds as
// the user to check the password.
func (s *LDAPService) Authenticate(username, password string) (*LDAPUser, error) {
	if !s.Enabled() {
		return nil, errors.New("LDAP is not enabled")
	}
	if password == "" {
		// An empty password would be an unauthenticated bind and always succeed.
		return nil, errors.New("empty password")
	}

	var opts []ldap.DialOpt
	if s.config.UseSSL {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{ServerName: s.config.Host}))
	}
	conn, err := ldap.DialURL(s.url(), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to LDAP: %w", err)
	}
	defer conn.Close()

	if s.config.BindDN != "" {
		if err := conn.Bind(s.config.BindDN, s.config.BindPassword); err != nil {
			return nil, fmt.Errorf("bind service account: %w", err)
		}
	}

	result, err := conn.Search(ldap.NewSearchRequest(
		s.config.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		fmt.Sprintf(s.config.UserFilter, ldap.EscapeFilter(username)),
		[]string{"dn", "cn", "mail", "uid", "sAMAccountName"},
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("LDAP search: %w", err)
	}
	switch len(result.Entries) {
	case 0:
		return nil, errLDAPUserNotFound
	case 1:
	default:
		return nil, fmt.Errorf("%d LDAP entries match %q", len(result.Entries), username)
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("bind as user: %w", err)
	}

	user := &LDAPUser{
		DN:       entry.DN,
		Username: entry.GetAttributeValue("uid"),
		Email:    entry.GetAttributeValue("mail"),
		Nickname: entry.GetAttributeValue("cn"),
	}
	if user.Username == "" {
		// Active Directory
		user.Username = entry.GetAttributeValue("sAMAccountName")
	}
	if user.Username == "" {
		user.Username = username
	}
	return user, nil
}
