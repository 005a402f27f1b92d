// Package session holds the signed-in identity.  The token lives in durable
// client storage; the in-memory Session mirrors it.
package session

import (
	"context"
	"fmt"
	"sync"

	"folio/apitypes"
	"folio/localstate"
	"folio/observe"

	"github.com/golang/glog"
)

// Session is the current identity plus its credential.
type Session struct {
	UserID      string
	Email       string
	DisplayName string
	Token       string
}

// AuthGateway is the remote side of the session.
type AuthGateway interface {
	Login(ctx context.Context, creds apitypes.Credentials) (apitypes.AuthResponse, error)
	Logout(ctx context.Context) error
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
}

type change struct {
	session Session
	ok      bool
}

// Store owns the session.  There is at most one per process, built by main
// and handed to whoever needs it.
type Store struct {
	gw    AuthGateway
	state localstate.Store

	// opLock serializes Login, Logout and Refresh end to end, so a refresh
	// in flight when Logout starts finishes first and Logout revokes the
	// token it produced.
	opLock sync.Mutex

	lock    sync.Mutex
	current *Session

	observers observe.List[change]
}

// New restores any session persisted in state.
func New(gw AuthGateway, state localstate.Store) (*Store, error) {
	s := &Store{
		gw:    gw,
		state: state,
	}

	var token string
	found, err := state.Get(localstate.KeyAuthToken, &token)
	if err != nil {
		return nil, fmt.Errorf("while restoring session: %w", err)
	}
	if !found || token == "" {
		return s, nil
	}

	user := apitypes.User{}
	if _, err := state.Get(localstate.KeyUser, &user); err != nil {
		return nil, fmt.Errorf("while restoring session user: %w", err)
	}

	s.current = fromUser(user, token)
	return s, nil
}

func fromUser(user apitypes.User, token string) *Session {
	return &Session{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.Name,
		Token:       token,
	}
}

// Current returns the session, if there is one.
func (s *Store) Current() (Session, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

func (s *Store) IsAuthenticated() bool {
	_, ok := s.Current()
	return ok
}

// Subscribe registers fn to be called whenever the session changes.
func (s *Store) Subscribe(fn func(sess Session, ok bool)) (cancel func()) {
	return s.observers.Subscribe(func(c change) {
		fn(c.session, c.ok)
	})
}

func (s *Store) set(sess *Session) {
	s.lock.Lock()
	s.current = sess
	c := change{}
	if sess != nil {
		c = change{session: *sess, ok: true}
	}
	s.lock.Unlock()
	s.observers.Notify(c)
}

// Login signs in with creds and persists the returned tokens.  On failure
// there is no session.
func (s *Store) Login(ctx context.Context, creds apitypes.Credentials) (Session, error) {
	if err := creds.Validate(); err != nil {
		return Session{}, err
	}

	s.opLock.Lock()
	defer s.opLock.Unlock()

	resp, err := s.gw.Login(ctx, creds)
	if err != nil {
		return Session{}, err
	}

	if err := s.persist(resp); err != nil {
		if delErr := s.state.Delete(localstate.KeyAuthToken, localstate.KeyRefreshToken, localstate.KeyUser); delErr != nil {
			glog.Errorf("Error while clearing partially persisted session: %v", delErr)
		}
		s.set(nil)
		return Session{}, err
	}

	sess := fromUser(resp.User, resp.Token)
	s.set(sess)
	glog.Infof("Logged in as %q", resp.User.Email)
	return *sess, nil
}

func (s *Store) persist(resp apitypes.AuthResponse) error {
	if err := s.state.Put(localstate.KeyAuthToken, resp.Token); err != nil {
		return fmt.Errorf("while persisting token: %w", err)
	}
	if resp.RefreshToken != "" {
		if err := s.state.Put(localstate.KeyRefreshToken, resp.RefreshToken); err != nil {
			return fmt.Errorf("while persisting refresh token: %w", err)
		}
	} else if err := s.state.Delete(localstate.KeyRefreshToken); err != nil {
		return fmt.Errorf("while clearing stale refresh token: %w", err)
	}
	if err := s.state.Put(localstate.KeyUser, resp.User); err != nil {
		return fmt.Errorf("while persisting user: %w", err)
	}
	return nil
}

// Logout tells the server the session is over, then clears it locally.  The
// local clear always happens, even if the server could not be reached; the
// returned error only reports a failure to clear durable storage.
func (s *Store) Logout(ctx context.Context) (err error) {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	defer func() {
		if delErr := s.state.Delete(localstate.KeyAuthToken, localstate.KeyRefreshToken, localstate.KeyUser); delErr != nil {
			err = fmt.Errorf("while clearing persisted session: %w", delErr)
		}
		s.set(nil)
	}()

	if gwErr := s.gw.Logout(ctx); gwErr != nil {
		glog.Errorf("Error while logging out server-side (clearing local session anyway): %v", gwErr)
	}
	return nil
}

// Refresh trades the persisted refresh token for a new bearer token.
func (s *Store) Refresh(ctx context.Context) (Session, error) {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	cur, ok := s.Current()
	if !ok {
		return Session{}, fmt.Errorf("%w: not logged in", apitypes.ErrAuth)
	}

	var refresh string
	if _, err := s.state.Get(localstate.KeyRefreshToken, &refresh); err != nil {
		return Session{}, fmt.Errorf("while reading refresh token: %w", err)
	}

	token, err := s.gw.RefreshToken(ctx, refresh)
	if err != nil {
		return Session{}, err
	}

	if err := s.state.Put(localstate.KeyAuthToken, token); err != nil {
		return Session{}, fmt.Errorf("while persisting token: %w", err)
	}

	cur.Token = token
	s.set(&cur)
	return cur, nil
}
