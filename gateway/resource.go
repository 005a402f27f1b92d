package gateway

import (
	"context"
	"fmt"
	"net/http"

	"folio/apitypes"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type validator interface {
	Validate() error
}

// Resource is the call group for a collection with full CRUD: records of
// type T, created from C, patched with P.
type Resource[T any, C validator, P validator] struct {
	c        *Client
	resource string
	path     []string
}

type (
	Posts    = Resource[apitypes.Post, apitypes.NewPost, apitypes.PostPatch]
	Thoughts = Resource[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch]
)

// Posts returns the call group for /api/blog.
func (c *Client) Posts() *Posts {
	return &Posts{c: c, resource: "Posts", path: []string{"api", "blog"}}
}

// Thoughts returns the call group for /api/thoughts.
func (c *Client) Thoughts() *Thoughts {
	return &Thoughts{c: c, resource: "Thoughts", path: []string{"api", "thoughts"}}
}

func (r *Resource[T, C, P]) endpoint(id ...string) string {
	return r.c.endpoint(append(append([]string{}, r.path...), id...)...)
}

// List returns the full current collection.
func (r *Resource[T, C, P]) List(ctx context.Context) ([]T, error) {
	out := []T{}
	err := r.c.do(ctx, &call{
		resource:  r.resource,
		operation: "List",
		method:    http.MethodGet,
		url:       r.endpoint(),
		out:       &out,
	})
	if err != nil {
		return nil, fmt.Errorf("while listing %s: %w", r.resource, err)
	}
	return out, nil
}

// Get returns one record.  An unknown id fails with ErrNotFound.
func (r *Resource[T, C, P]) Get(ctx context.Context, id string) (T, error) {
	var out T
	if err := requireID(id); err != nil {
		return out, err
	}

	err := r.c.do(ctx, &call{
		resource:  r.resource,
		operation: "Get",
		method:    http.MethodGet,
		url:       r.endpoint(id),
		out:       &out,
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("while getting %s %q: %w", r.resource, id, err)
	}
	return out, nil
}

// Create sends in and returns the record the server stored, including its
// assigned id and creation time.
func (r *Resource[T, C, P]) Create(ctx context.Context, in C) (T, error) {
	var out T
	if err := in.Validate(); err != nil {
		return out, err
	}

	body, err := jsonBody(in)
	if err != nil {
		return out, err
	}

	err = r.c.do(ctx, &call{
		resource:    r.resource,
		operation:   "Create",
		method:      http.MethodPost,
		url:         r.endpoint(),
		auth:        true,
		body:        body,
		contentType: "application/json",
		out:         &out,
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("while creating %s: %w", r.resource, err)
	}
	return out, nil
}

// Update sends only the fields set in patch and returns the full updated
// record.
func (r *Resource[T, C, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	var out T
	if err := requireID(id); err != nil {
		return out, err
	}
	if err := patch.Validate(); err != nil {
		return out, err
	}

	body, err := jsonBody(patch)
	if err != nil {
		return out, err
	}

	err = r.c.do(ctx, &call{
		resource:    r.resource,
		operation:   "Update",
		method:      http.MethodPut,
		url:         r.endpoint(id),
		auth:        true,
		body:        body,
		contentType: "application/json",
		out:         &out,
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("while updating %s %q: %w", r.resource, id, err)
	}
	return out, nil
}

// Delete removes a record.  What a second delete of the same id does is up to
// the server.
func (r *Resource[T, C, P]) Delete(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}

	err := r.c.do(ctx, &call{
		resource:  r.resource,
		operation: "Delete",
		method:    http.MethodDelete,
		url:       r.endpoint(id),
		auth:      true,
	})
	if err != nil {
		return fmt.Errorf("while deleting %s %q: %w", r.resource, id, err)
	}
	return nil
}

// GetMany fetches the given records concurrently, at most 8 in flight.  The
// result is in the order of ids; the first failure cancels the rest.
func (r *Resource[T, C, P]) GetMany(ctx context.Context, ids []string) ([]T, error) {
	out := make([]T, len(ids))

	eg, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(8)

	var acquireErr error
	for i, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}

		eg.Go(func() error {
			defer sem.Release(1)
			rec, err := r.Get(ctx, id)
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if acquireErr != nil {
		return nil, fmt.Errorf("%w: while acquiring concurrency limiter semaphore: %w", apitypes.ErrNetwork, acquireErr)
	}
	return out, nil
}
