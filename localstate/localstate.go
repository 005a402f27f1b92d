// Package localstate is the durable client-side key/value storage that backs
// the session: tokens and the current user identity, each JSON-encoded under
// a fixed key.
package localstate

import (
	"encoding/json"
	"fmt"
	"sync"

	"folio/apitypes"

	"github.com/dgraph-io/badger"
	"golang.org/x/oauth2"
)

// Fixed keys.
const (
	KeyAuthToken    = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// Store is key/value storage with JSON-encoded values.
type Store interface {
	// Get decodes the value under key into v.  It reports false if the key
	// is absent.
	Get(key string, v interface{}) (bool, error)
	Put(key string, v interface{}) error
	// Delete removes keys.  Absent keys are not an error.
	Delete(keys ...string) error
}

// Badger is a Store kept on disk.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the state directory dir.
func OpenBadger(dir string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dir))
	if err != nil {
		return nil, fmt.Errorf("while opening badger db in %q: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) Get(key string, v interface{}) (bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("while reading %q: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("while unmarshaling %q: %w", key, err)
	}
	return true, nil
}

func (b *Badger) Put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("while marshaling %q: %w", key, err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("while writing %q: %w", key, err)
	}
	return nil
}

func (b *Badger) Delete(keys ...string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				return fmt.Errorf("while deleting %q: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("while deleting keys: %w", err)
	}
	return nil
}

// Memory is a Store that lives only as long as the process.
type Memory struct {
	lock   sync.Mutex
	values map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{values: map[string][]byte{}}
}

func (m *Memory) Get(key string, v interface{}) (bool, error) {
	m.lock.Lock()
	data, ok := m.values[key]
	m.lock.Unlock()
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("while unmarshaling %q: %w", key, err)
	}
	return true, nil
}

func (m *Memory) Put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("while marshaling %q: %w", key, err)
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[key] = data
	return nil
}

func (m *Memory) Delete(keys ...string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

type tokenSource struct {
	store Store
}

// TokenSource returns an oauth2.TokenSource that reads the bearer token from
// store on every call.  A missing token is an ErrAuth failure.
func TokenSource(store Store) oauth2.TokenSource {
	return &tokenSource{store: store}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	var token string
	found, err := ts.store.Get(KeyAuthToken, &token)
	if err != nil {
		return nil, fmt.Errorf("while reading auth token: %w", err)
	}
	if !found || token == "" {
		return nil, fmt.Errorf("%w: no auth token stored", apitypes.ErrAuth)
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}
