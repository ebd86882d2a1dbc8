package assets

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Bundle is everything read from disk at startup.
type Bundle struct {
	VertexShader   []uint32
	FragmentShader []uint32
	// Image is nil when no image path was given.
	Image *Image
}

// LoadAll reads both shaders and, if imagePath is set, the image, in
// parallel. The first failure cancels the rest.
func LoadAll(ctx context.Context, vertexPath, fragmentPath, imagePath string) (*Bundle, error) {
	var bundle Bundle

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		bundle.VertexShader, err = LoadShader(vertexPath)
		return err
	})
	group.Go(func() error {
		var err error
		bundle.FragmentShader, err = LoadShader(fragmentPath)
		return err
	})
	if imagePath != "" {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var err error
			bundle.Image, err = LoadImage(imagePath)
			return err
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}
