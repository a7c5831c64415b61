// Package auth verifies Firebase ID tokens on incoming requests.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/lib"
	"voxa/m/v2/app/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"google.golang.org/api/option"
)

// Client is the subset of the Firebase auth client we depend on.
type Client interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	DeleteUser(ctx context.Context, uid string) error
}

var AuthClient Client

// NewFirebaseClient initializes the Firebase app. FIREBASE_CREDENTIALS may be
// a path to a service account file or the base64 encoded JSON; when empty the
// application default credentials are used.
func NewFirebaseClient(ctx context.Context, cfg *config.Config) (*auth.Client, error) {
	if cfg.FirebaseProjectID == "" {
		return nil, errors.New("NewFirebaseClient: FIREBASE_PROJECT_ID must be set")
	}
	var opts []option.ClientOption
	if credentials := cfg.FirebaseCredentials; credentials != "" {
		if _, err := os.Stat(credentials); err == nil {
			opts = append(opts, option.WithCredentialsFile(credentials))
		} else {
			jsonKey, err := base64.StdEncoding.DecodeString(credentials)
			if err != nil {
				return nil, errors.New("NewFirebaseClient: FIREBASE_CREDENTIALS is neither a file nor a valid base64 string")
			}
			opts = append(opts, option.WithCredentialsJSON(jsonKey))
		}
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewFirebaseClient: error initializing Firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewFirebaseClient: error getting auth client: %w", err)
	}
	return client, nil
}

// Handler is a request handler for authenticated callers. requestContext
// carries the user id, email and admin flag.
type Handler func(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser)

// Authenticated verifies the bearer token, provisions the profile on first
// use and calls next.
func Authenticated(next Handler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		idToken := lib.BearerToken(ctx)
		if idToken == "" {
			lib.WriteError(ctx, http.StatusUnauthorized, "authorization header format must be Bearer {token}")
			return
		}
		token, err := AuthClient.VerifyIDToken(context.Background(), idToken)
		if err != nil {
			log.WithError(err).Debug("Invalid ID token")
			config.CONFIG.DataDogClient.Incr("auth.invalid_token", nil, 1)
			lib.WriteError(ctx, http.StatusUnauthorized, "invalid ID token")
			return
		}

		user, requestContext, cancel, err := lib.SetupUserAndContext(context.Background(), SessionFromToken(token))
		if err != nil {
			log.WithError(err).Errorf("Failed to set up user %s", token.UID)
			lib.WriteError(ctx, http.StatusInternalServerError, "failed to load profile")
			return
		}
		defer cancel()
		next(ctx, requestContext, user)
	}
}

func SessionFromToken(token *auth.Token) lib.Session {
	session := lib.Session{UserID: token.UID}
	session.Email, _ = token.Claims["email"].(string)
	session.Name, _ = token.Claims["name"].(string)
	session.Picture, _ = token.Claims["picture"].(string)
	return session
}

// DeleteUser removes the Firebase account. A user that is already gone is
// not an error.
func DeleteUser(ctx context.Context, uid string) error {
	err := AuthClient.DeleteUser(ctx, uid)
	if err != nil && !auth.IsUserNotFound(err) {
		return fmt.Errorf("DeleteUser: %w", err)
	}
	return nil
}
