package google

import (
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"
)

// Scopes lets the client see only files it created, and edit spreadsheets.
var Scopes = []string{drive.DriveFileScope, sheets.SpreadsheetsScope}

// OAuthConfig loads an installed-app client from a Google Cloud credentials
// file and points its redirect at the local callback listener.
func OAuthConfig(credentialsPath, redirectURL string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %v", err)
	}

	config, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %v", err)
	}

	config.RedirectURL = redirectURL
	return config, nil
}
