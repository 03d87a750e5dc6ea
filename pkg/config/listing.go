package config

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/dav/fslister"
)

// CreateLister creates the listing engine selected by cfg.Type.
func CreateLister(cfg *ListingConfig) (dav.Lister, error) {
	switch cfg.Type {
	case "os":
		info, err := os.Stat(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("listing root: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("listing root %s is not a directory", cfg.Root)
		}
		return fslister.NewOS(cfg.Root), nil
	case "memory":
		return fslister.New(afero.NewMemMapFs()), nil
	default:
		return nil, fmt.Errorf("unknown listing type: %q", cfg.Type)
	}
}
