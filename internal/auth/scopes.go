package auth

import "strings"

const (
	ScopeOpenID          = "openid"
	ScopeProfile         = "profile"
	ScopeEmail           = "email"
	ScopeInitiativeRead  = "initiative:read"
	ScopeInitiativeWrite = "initiative:write"
)

// AllScopes is the full set of scopes an API client should request.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeInitiativeRead,
	ScopeInitiativeWrite,
}

// scopeClaims accepts both the Okta "scp" list and the RFC 8693 "scope"
// space separated string.
type scopeClaims struct {
	Email string   `json:"email"`
	Sub   string   `json:"sub"`
	Scp   []string `json:"scp"`
	Scope string   `json:"scope"`
}

func (c scopeClaims) scopes() []string {
	return append(append([]string(nil), c.Scp...), strings.Fields(c.Scope)...)
}

func hasScope(granted []string, scope string) bool {
	for _, s := range granted {
		if s == scope {
			return true
		}
	}
	return false
}
