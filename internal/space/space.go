// Package space is the admission controller: it refuses to start a run whose
// output would not fit on the target volume.
package space

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/constants"
)

// FreeSpaceFunc returns the bytes available to the current user on the volume holding path.
type FreeSpaceFunc func(path string) (uint64, error)

// Controller compares required space plus a safety margin against free space.
type Controller struct {
	MarginPercent float64
	FreeSpace     FreeSpaceFunc
}

// NewController returns a controller using the volume's real free space.
// A negative margin selects the default of 5%.
func NewController(marginPercent float64) *Controller {
	if marginPercent < 0 {
		marginPercent = constants.DefaultSpaceMarginPercent
	}
	return &Controller{MarginPercent: marginPercent, FreeSpace: Available}
}

// WithMargin returns required grown by the controller's margin, rounded up.
func (c *Controller) WithMargin(required uint64) uint64 {
	return required + uint64(math.Ceil(float64(required)*c.MarginPercent/100))
}

// HasSpace reports whether required bytes (plus margin) fit on the volume containing path.
// path does not need to exist yet.
func (c *Controller) HasSpace(required uint64, path string) (bool, error) {
	_, _, ok, err := c.check(required, path)
	return ok, err
}

// Admit returns an *backuperr.InsufficientSpaceError when HasSpace would be false.
func (c *Controller) Admit(required uint64, path string) error {
	needed, available, ok, err := c.check(required, path)
	if err != nil {
		return err
	}
	if !ok {
		return &backuperr.InsufficientSpaceError{
			Path:       path,
			Required:   required,
			WithMargin: needed,
			Available:  available,
		}
	}
	return nil
}

func (c *Controller) check(required uint64, path string) (needed, available uint64, ok bool, err error) {
	free := c.FreeSpace
	if free == nil {
		free = Available
	}

	volume, err := existingAncestor(path)
	if err != nil {
		return 0, 0, false, err
	}

	available, err = free(volume)
	if err != nil {
		return 0, 0, false, backuperr.IO("check free space", volume, err)
	}

	needed = c.WithMargin(required)
	return needed, available, needed <= available, nil
}

func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", backuperr.IO("check free space", path, err)
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", backuperr.NotFound("check free space", path, fmt.Errorf("no existing ancestor"))
		}
		abs = parent
	}
}
