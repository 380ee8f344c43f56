package session

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// GraphScopes are the delegated permissions needed to read and write the
// user's workbook.
var GraphScopes = []string{"User.Read", "Files.ReadWrite", "offline_access"}

// MicrosoftConfig returns the OAuth2 configuration for a public client
// registered in Azure AD. tenant may be "common", "organizations",
// "consumers" or a tenant id.
func MicrosoftConfig(clientID, tenant, redirectURL string) *oauth2.Config {
	endpoint := microsoft.AzureADEndpoint(tenant)
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Scopes:      GraphScopes,
		Endpoint:    endpoint,
	}
}
