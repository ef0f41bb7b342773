package rcache

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/iovacache/percpu"
)

const (
	// DefaultMagSize is the number of PFNs a magazine holds.
	DefaultMagSize = 128

	// DefaultMaxGlobalMags is the number of spare magazines each depot holds.
	DefaultMaxGlobalMags = 32

	// DefaultNumClasses is the number of size classes; the largest cached
	// range is 1<<(DefaultNumClasses-1) PFNs.
	DefaultNumClasses = 6

	// maxNumClasses keeps 1<<order within a uint64.
	maxNumClasses = 63
)

// Config tunes a Bank. Zero fields take their defaults.
type Config struct {
	// MagSize is the capacity of every magazine.
	MagSize int

	// MaxGlobalMags bounds each size class's depot.
	MaxGlobalMags int

	// NumClasses is the number of power-of-two size classes.
	NumClasses int

	// MaxMagazines caps the magazines alive at once across the bank,
	// 0 for no cap. A slot that needs a fresh magazine beyond the cap fails
	// its insert and the caller frees the range the slow way.
	MaxMagazines int

	// Runtime supplies core ids. Defaults to percpu.System().
	Runtime percpu.Runtime

	// Logger receives debug and warning events. Defaults to the package logger.
	Logger *slog.Logger
}

// DefaultConfig returns the reference tuning on the host runtime.
func DefaultConfig() Config {
	return Config{
		MagSize:       DefaultMagSize,
		MaxGlobalMags: DefaultMaxGlobalMags,
		NumClasses:    DefaultNumClasses,
		Runtime:       percpu.System(),
	}
}

func (c Config) withDefaults() Config {
	if c.MagSize == 0 {
		c.MagSize = DefaultMagSize
	}
	if c.MaxGlobalMags == 0 {
		c.MaxGlobalMags = DefaultMaxGlobalMags
	}
	if c.NumClasses == 0 {
		c.NumClasses = DefaultNumClasses
	}
	if c.Runtime == nil {
		c.Runtime = percpu.System()
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.MagSize < 0:
		return fmt.Errorf("%w: MagSize %d", ErrBadConfig, c.MagSize)
	case c.MaxGlobalMags < 0:
		return fmt.Errorf("%w: MaxGlobalMags %d", ErrBadConfig, c.MaxGlobalMags)
	case c.NumClasses < 0 || c.NumClasses > maxNumClasses:
		return fmt.Errorf("%w: NumClasses %d not in [1, %d]", ErrBadConfig, c.NumClasses, maxNumClasses)
	case c.MaxMagazines < 0:
		return fmt.Errorf("%w: MaxMagazines %d", ErrBadConfig, c.MaxMagazines)
	case c.Runtime.Possible() < 1:
		return fmt.Errorf("%w: runtime reports no cores", ErrBadConfig)
	}
	return nil
}
