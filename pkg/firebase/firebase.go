// Package firebase connects to Firebase Authentication, which backs the
// optional ID-token login and the display profile overlay.
package firebase

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// Options selects the service account and project.
type Options struct {
	CredentialsFile string
	ProjectID       string
}

// NewAuthClient returns the Firebase auth client. No credentials file means
// Firebase is disabled and (nil, nil) is returned.
func NewAuthClient(ctx context.Context, opts Options) (*auth.Client, error) {
	if opts.CredentialsFile == "" {
		log.Info().Msg("Firebase credentials not configured, Firebase features disabled")
		return nil, nil
	}
	if _, err := os.Stat(opts.CredentialsFile); err != nil {
		return nil, fmt.Errorf("firebase credentials file %s: %w", opts.CredentialsFile, err)
	}

	var appConfig *firebase.Config
	if opts.ProjectID != "" {
		appConfig = &firebase.Config{ProjectID: opts.ProjectID}
	}
	app, err := firebase.NewApp(ctx, appConfig, option.WithCredentialsFile(opts.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}

	log.Info().Str("project", opts.ProjectID).Msg("Firebase auth client initialized")
	return client, nil
}
