// foliotool is a command-line client for the content API.  It shares the
// persisted session format with the folio site.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"folio/apitypes"
	"folio/gateway"
	"folio/localstate"
	"folio/session"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var cmdRoot = &cobra.Command{
	Use:          "foliotool",
	SilenceUsage: true,
}

var (
	apiURL   string
	stateDir string
)

func init() {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}
	cmdRoot.PersistentFlags().StringVar(&apiURL, "api-url", "http://127.0.0.1:8080", "Base URL of the content API.")
	cmdRoot.PersistentFlags().StringVar(&stateDir, "state-dir", filepath.Join(configDir, "foliotool"), "Directory for the persisted session.")
}

// env is what every subcommand needs.  Call close when done.
type env struct {
	state   *localstate.Badger
	client  *gateway.Client
	session *session.Store
}

func newEnv() (*env, error) {
	state, err := localstate.OpenBadger(stateDir)
	if err != nil {
		return nil, fmt.Errorf("while opening local state: %w", err)
	}

	client, err := gateway.New(&http.Client{Timeout: 60 * time.Second}, apiURL, localstate.TokenSource(state))
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("while creating content API client: %w", err)
	}

	sess, err := session.New(client.Auth(), state)
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("while restoring session: %w", err)
	}

	return &env{state: state, client: client, session: sess}, nil
}

func (e *env) close() {
	if err := e.state.Close(); err != nil {
		glog.Errorf("Error while closing local state: %v", err)
	}
}

// withEnv adapts a subcommand body to cobra.
func withEnv(fn func(ctx context.Context, e *env, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		return fn(ctx, e, args)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var loginEmail string

var cmdLogin = &cobra.Command{
	Use:  "login",
	Args: cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		fmt.Print("Password: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("while reading password: %w", err)
		}

		s, err := e.session.Login(ctx, apitypes.Credentials{Email: loginEmail, Password: string(pass)})
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s <%s>\n", s.DisplayName, s.Email)
		return nil
	}),
}

func init() {
	cmdLogin.Flags().StringVar(&loginEmail, "email", "", "Account email.")
}

var cmdLogout = &cobra.Command{
	Use:  "logout",
	Args: cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		return e.session.Logout(ctx)
	}),
}

var cmdWhoami = &cobra.Command{
	Use:  "whoami",
	Args: cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		s, ok := e.session.Current()
		if !ok {
			return fmt.Errorf("not logged in")
		}
		fmt.Printf("%s <%s> (%s)\n", s.DisplayName, s.Email, s.UserID)
		return nil
	}),
}

var cmdRefreshToken = &cobra.Command{
	Use:  "refresh-token",
	Args: cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		_, err := e.session.Refresh(ctx)
		return err
	}),
}

func main() {
	glog.CopyStandardLogTo("INFO")

	cmdRoot.AddCommand(cmdLogin, cmdLogout, cmdWhoami, cmdRefreshToken, cmdPosts, cmdThoughts, cmdGallery)

	if err := cmdRoot.Execute(); err != nil {
		glog.Flush()
		os.Exit(1)
	}
	glog.Flush()
}
