package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"folio/apitypes"
)

// Gallery is the call group for /api/gallery.  Uploads are multipart; every
// other call in the package is structured JSON.
type Gallery struct {
	c *Client
}

func (c *Client) Gallery() *Gallery {
	return &Gallery{c: c}
}

// List returns every image, with URLs made absolute.
func (g *Gallery) List(ctx context.Context) ([]apitypes.Image, error) {
	out := []apitypes.Image{}
	err := g.c.do(ctx, &call{
		resource:  "Gallery",
		operation: "List",
		method:    http.MethodGet,
		url:       g.c.endpoint("api", "gallery"),
		out:       &out,
	})
	if err != nil {
		return nil, fmt.Errorf("while listing gallery: %w", err)
	}

	for i := range out {
		out[i].URL = g.c.resolve(out[i].URL)
	}
	return out, nil
}

// Upload sends the file plus optional title and description, and returns the
// stored image.
func (g *Gallery) Upload(ctx context.Context, up apitypes.ImageUpload) (apitypes.Image, error) {
	if err := up.Validate(); err != nil {
		return apitypes.Image{}, err
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	fw, err := mw.CreateFormFile("file", up.Filename)
	if err != nil {
		return apitypes.Image{}, fmt.Errorf("while creating file part: %w", err)
	}
	if _, err := io.Copy(fw, up.Body); err != nil {
		return apitypes.Image{}, fmt.Errorf("while copying %q into request: %w", up.Filename, err)
	}
	if up.Title != "" {
		if err := mw.WriteField("title", up.Title); err != nil {
			return apitypes.Image{}, fmt.Errorf("while writing title part: %w", err)
		}
	}
	if up.Description != "" {
		if err := mw.WriteField("description", up.Description); err != nil {
			return apitypes.Image{}, fmt.Errorf("while writing description part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return apitypes.Image{}, fmt.Errorf("while closing multipart writer: %w", err)
	}

	out := apitypes.Image{}
	err = g.c.do(ctx, &call{
		resource:    "Gallery",
		operation:   "Upload",
		method:      http.MethodPost,
		url:         g.c.endpoint("api", "gallery", "upload"),
		auth:        true,
		body:        body,
		contentType: mw.FormDataContentType(),
		out:         &out,
	})
	if err != nil {
		return apitypes.Image{}, fmt.Errorf("while uploading %q: %w", up.Filename, err)
	}

	out.URL = g.c.resolve(out.URL)
	return out, nil
}

// Delete removes an image.
func (g *Gallery) Delete(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}

	err := g.c.do(ctx, &call{
		resource:  "Gallery",
		operation: "Delete",
		method:    http.MethodDelete,
		url:       g.c.endpoint("api", "gallery", id),
		auth:      true,
	})
	if err != nil {
		return fmt.Errorf("while deleting image %q: %w", id, err)
	}
	return nil
}
