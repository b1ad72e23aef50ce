package service

import (
	"fmt"
	"sync"

	"github.com/ringsaturn/tzf"
	"github.com/vzahanych/area-insight/internal/model"
)

type TimezoneFinder interface {
	Timezone(coord model.Coordinate) (string, error)
}

type tzfFinder struct {
	finder tzf.F
}

var (
	finderInstance *tzfFinder
	finderErr      error
	finderOnce     sync.Once
)

// NewTimezoneFinder returns the process-wide tzf finder. The polygon data is
// large, so it is loaded once.
func NewTimezoneFinder() (TimezoneFinder, error) {
	finderOnce.Do(func() {
		f, err := tzf.NewDefaultFinder()
		if err != nil {
			finderErr = fmt.Errorf("failed to initialize timezone finder: %w", err)
			return
		}
		finderInstance = &tzfFinder{finder: f}
	})
	if finderErr != nil {
		return nil, finderErr
	}
	return finderInstance, nil
}

func (f *tzfFinder) Timezone(coord model.Coordinate) (string, error) {
	name := f.finder.GetTimezoneName(coord.Longitude, coord.Latitude)
	if name == "" {
		return "", fmt.Errorf("no timezone for lat=%f lon=%f", coord.Latitude, coord.Longitude)
	}
	return name, nil
}
