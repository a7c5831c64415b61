package api

import (
	"context"
	"voxa/m/v2/app/auth"

	fbauth "firebase.google.com/go/v4/auth"
)

type fakeAuth struct {
	deleted []string
}

func (f *fakeAuth) VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error) {
	return &fbauth.Token{UID: idToken}, nil
}

func (f *fakeAuth) DeleteUser(ctx context.Context, uid string) error {
	f.deleted = append(f.deleted, uid)
	return nil
}

func useAuth(client auth.Client) {
	auth.AuthClient = client
}
