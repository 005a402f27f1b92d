package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"folio/apitypes"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var cmdPosts = &cobra.Command{
	Use: "posts [command]",
}

var cmdPostsList = &cobra.Command{
	Use:  "list",
	Args: cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		posts, err := e.client.Posts().List(ctx)
		if err != nil {
			return err
		}
		for _, p := range posts {
			fmt.Printf("%s\t%s\t%s\n", p.ID, p.CreatedAt.Format("2006-01-02"), p.Title)
		}
		return nil
	}),
}

var cmdPostsGet = &cobra.Command{
	Use:  "get ID...",
	Args: cobra.MinimumNArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		posts, err := e.client.Posts().GetMany(ctx, args)
		if err != nil {
			return err
		}
		return printJSON(posts)
	}),
}

var postFields struct {
	title, excerpt, contentFile, author, image string
}

func init() {
	for _, c := range []*cobra.Command{cmdPostsCreate, cmdPostsUpdate} {
		c.Flags().StringVar(&postFields.title, "title", "", "")
		c.Flags().StringVar(&postFields.excerpt, "excerpt", "", "")
		c.Flags().StringVar(&postFields.contentFile, "content-file", "", "File holding the post's body markup.")
		c.Flags().StringVar(&postFields.author, "author", "", "")
		c.Flags().StringVar(&postFields.image, "image", "", "Header image URL.")
	}
}

func readContent() (string, error) {
	data, err := os.ReadFile(postFields.contentFile)
	if err != nil {
		return "", fmt.Errorf("while reading post content: %w", err)
	}
	return string(data), nil
}

var cmdPostsCreate = &cobra.Command{
	Use:  "create",
	Args: cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		in := apitypes.NewPost{
			Title:   postFields.title,
			Excerpt: postFields.excerpt,
			Author:  postFields.author,
			Image:   postFields.image,
		}
		if postFields.contentFile != "" {
			content, err := readContent()
			if err != nil {
				return err
			}
			in.Content = content
		}
		p, err := e.client.Posts().Create(ctx, in)
		if err != nil {
			return err
		}
		return printJSON(p)
	}),
}

// Only flags given on the command line go into the patch.
var cmdPostsUpdate = &cobra.Command{
	Use:  "update ID",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(ctx context.Context, e *env, args []string) error {
			return updatePost(ctx, e, cmd.Flags(), args[0])
		})(cmd, args)
	},
}

func updatePost(ctx context.Context, e *env, flags *pflag.FlagSet, id string) error {
	patch := apitypes.PostPatch{}
	if flags.Changed("title") {
		patch.Title = apitypes.String(postFields.title)
	}
	if flags.Changed("excerpt") {
		patch.Excerpt = apitypes.String(postFields.excerpt)
	}
	if flags.Changed("author") {
		patch.Author = apitypes.String(postFields.author)
	}
	if flags.Changed("image") {
		patch.Image = apitypes.String(postFields.image)
	}
	if flags.Changed("content-file") {
		content, err := readContent()
		if err != nil {
			return err
		}
		patch.Content = apitypes.String(content)
	}
	p, err := e.client.Posts().Update(ctx, id, patch)
	if err != nil {
		return err
	}
	return printJSON(p)
}

var cmdPostsDelete = &cobra.Command{
	Use:  "delete ID",
	Args: cobra.ExactArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		return e.client.Posts().Delete(ctx, args[0])
	}),
}

var cmdThoughts = &cobra.Command{
	Use: "thoughts [command]",
}

var cmdThoughtsList = &cobra.Command{
	Use:  "list",
	Args: cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		thoughts, err := e.client.Thoughts().List(ctx)
		if err != nil {
			return err
		}
		for _, t := range thoughts {
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.CreatedAt.Format("2006-01-02"), t.Content)
		}
		return nil
	}),
}

var cmdThoughtsCreate = &cobra.Command{
	Use:  "create CONTENT",
	Args: cobra.ExactArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		t, err := e.client.Thoughts().Create(ctx, apitypes.NewThought{Content: args[0]})
		if err != nil {
			return err
		}
		return printJSON(t)
	}),
}

var cmdThoughtsUpdate = &cobra.Command{
	Use:  "update ID CONTENT",
	Args: cobra.ExactArgs(2),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		t, err := e.client.Thoughts().Update(ctx, args[0], apitypes.ThoughtPatch{Content: apitypes.String(args[1])})
		if err != nil {
			return err
		}
		return printJSON(t)
	}),
}

var cmdThoughtsDelete = &cobra.Command{
	Use:  "delete ID",
	Args: cobra.ExactArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		return e.client.Thoughts().Delete(ctx, args[0])
	}),
}

var cmdGallery = &cobra.Command{
	Use: "gallery [command]",
}

var cmdGalleryList = &cobra.Command{
	Use:  "list",
	Args: cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		images, err := e.client.Gallery().List(ctx)
		if err != nil {
			return err
		}
		for _, img := range images {
			fmt.Printf("%s\t%s\t%s\n", img.ID, img.Title, img.URL)
		}
		return nil
	}),
}

var galleryUploadTitle, galleryUploadDescription string

var cmdGalleryUpload = &cobra.Command{
	Use:  "upload FILE",
	Args: cobra.ExactArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("while opening %s: %w", args[0], err)
		}
		defer f.Close()

		img, err := e.client.Gallery().Upload(ctx, apitypes.ImageUpload{
			Filename:    filepath.Base(args[0]),
			Body:        f,
			Title:       galleryUploadTitle,
			Description: galleryUploadDescription,
		})
		if err != nil {
			return err
		}
		return printJSON(img)
	}),
}

var cmdGalleryDelete = &cobra.Command{
	Use:  "delete ID",
	Args: cobra.ExactArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		return e.client.Gallery().Delete(ctx, args[0])
	}),
}

func init() {
	cmdGalleryUpload.Flags().StringVar(&galleryUploadTitle, "title", "", "")
	cmdGalleryUpload.Flags().StringVar(&galleryUploadDescription, "description", "", "")

	cmdPosts.AddCommand(cmdPostsList, cmdPostsGet, cmdPostsCreate, cmdPostsUpdate, cmdPostsDelete)
	cmdThoughts.AddCommand(cmdThoughtsList, cmdThoughtsCreate, cmdThoughtsUpdate, cmdThoughtsDelete)
	cmdGallery.AddCommand(cmdGalleryList, cmdGalleryUpload, cmdGalleryDelete)
}
