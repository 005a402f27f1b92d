package dblayer

import (
	"context"
	"errors"
	"fmt"

	"folio/apitypes"

	"cloud.google.com/go/firestore"
	"golang.org/x/crypto/bcrypt"
)

var ErrUserAlreadyExists = errors.New("user already exists")

func checkPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return fmt.Errorf("%w: unknown user or wrong password", apitypes.ErrAuth)
	}
	return nil
}

func (db *DB) CreateUser(ctx context.Context, user apitypes.User, passwordHash string) (apitypes.User, error) {
	return CreateUser(ctx, db.firestoreClient, user, passwordHash)
}

// CreateUser stores an account that can log in with the given bcrypt hash.
// Emails are unique.
func CreateUser(ctx context.Context, client *firestore.Client, user apitypes.User, passwordHash string) (apitypes.User, error) {
	existing, err := firstDoc(ctx, client, usersCollection, "email", user.Email)
	if err != nil {
		return apitypes.User{}, err
	}
	if existing != nil {
		return apitypes.User{}, fmt.Errorf("%w: %q", ErrUserAlreadyExists, user.Email)
	}

	ref := client.Collection(usersCollection).NewDoc()
	user.ID = ref.ID
	if _, err := ref.Create(ctx, userDoc{User: user, PasswordHash: passwordHash}); err != nil {
		return apitypes.User{}, fmt.Errorf("while creating user %q: %w", user.Email, err)
	}
	return user, nil
}
