// passtool hashes a password read from the terminal.  With --email it also
// creates the account in Firestore; otherwise it prints the bcrypt hash.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"folio/apitypes"
	"folio/dblayer"

	"cloud.google.com/go/firestore"
	"github.com/golang/glog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

var (
	cost        = flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor.")
	dataProject = flag.String("data-project", "", "GCP project that contains the application state.")
	email       = flag.String("email", "", "If set, create a user with this email instead of printing the hash.")
	displayName = flag.String("name", "", "Display name for the created user.")
)

func do(ctx context.Context) error {
	fmt.Fprint(os.Stderr, "Password: ")
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("while reading password: %w", err)
	}
	if len(pass) == 0 {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword(pass, *cost)
	if err != nil {
		return fmt.Errorf("while hashing password: %w", err)
	}

	if *email == "" {
		fmt.Println(string(hash))
		return nil
	}

	fstore, err := firestore.NewClient(ctx, *dataProject)
	if err != nil {
		return fmt.Errorf("while creating FireStore client: %w", err)
	}
	defer fstore.Close()

	user, err := dblayer.CreateUser(ctx, fstore, apitypes.User{Email: *email, Name: *displayName}, string(hash))
	if err != nil {
		return err
	}
	fmt.Printf("Created user %s <%s>\n", user.ID, user.Email)
	return nil
}

func main() {
	flag.Parse()

	if err := do(context.Background()); err != nil {
		glog.Exitf("Error: %v", err)
	}
}
