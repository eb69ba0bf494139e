package domain

import "fmt"

// Provider IDs understood by the identity provider.
const (
	ProviderGoogle    = "google.com"
	ProviderPlayGames = "playgames.google.com"
)

// Identity is the signed-in user as reported by the identity provider.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url"`
	ProviderID  string `json:"provider_id"`
}

// Credential is a provider credential extracted from a finished flow.
type Credential struct {
	ProviderID string `json:"provider_id"`
	Token      string `json:"-"`
}

// CredentialFor extracts the credential carried by a successful flow result.
// Play Games flows yield a server auth code, Google flows an ID token.
func CredentialFor(kind FlowKind, r FlowResult) (Credential, error) {
	switch kind {
	case FlowPlayGames:
		if r.ServerAuthCode == "" {
			return Credential{}, fmt.Errorf("play games sign-in succeeded but returned no server auth code")
		}
		return Credential{ProviderID: ProviderPlayGames, Token: r.ServerAuthCode}, nil
	case FlowGoogle:
		if r.IDToken == "" {
			return Credential{}, fmt.Errorf("google sign-in succeeded but returned no id token")
		}
		return Credential{ProviderID: ProviderGoogle, Token: r.IDToken}, nil
	default:
		return Credential{}, fmt.Errorf("no credential for flow %q", kind)
	}
}
