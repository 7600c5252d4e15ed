// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// EnvDriver is the environment variable consulted by
// SelectFromEnv.
const EnvDriver = "RHI_DRIVER"

// EnvValidation is the environment variable that enables
// API validation in backends that support it.
const EnvValidation = "RHI_VALIDATION"

// Validation reports whether EnvValidation is set to a
// true value ("1", "true", "on" or "yes").
func Validation() bool {
	switch strings.ToLower(os.Getenv(EnvValidation)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Context is the result of selecting a driver.
// It holds the opened Driver and its GPU, which every
// call site must use from then on. There is no global
// instance: the Context is passed around explicitly.
type Context struct {
	drv Driver
	gpu GPU
}

// Select opens the first registered Driver whose name
// contains name (ignoring case). An empty name matches
// any driver, in registration order.
// Drivers that fail to open are closed before the next
// candidate is tried. If none can be opened, the returned
// error wraps ErrNoDriver and the last Open error.
func Select(name string) (*Context, error) {
	name = strings.ToLower(name)
	var last error
	for _, drv := range Drivers() {
		if !strings.Contains(strings.ToLower(drv.Name()), name) {
			continue
		}
		gpu, err := drv.Open()
		if err != nil {
			Logger().Warn("driver open failed", "name", drv.Name(), "err", err)
			drv.Close()
			last = err
			continue
		}
		Logger().Info("driver selected", "name", drv.Name())
		return &Context{drv, gpu}, nil
	}
	if last != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrNoDriver, name, last)
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDriver, name)
}

// SelectFromEnv calls Select with the value of EnvDriver,
// falling back to fallback when the variable is unset.
// If the variable names a driver that cannot be opened,
// it does not try fallback.
func SelectFromEnv(fallback string) (*Context, error) {
	if s, ok := os.LookupEnv(EnvDriver); ok {
		return Select(s)
	}
	return Select(fallback)
}

// MustSelect is like Select but panics on failure.
// Initialization failure is fatal: nothing in the
// interface can be used without an opened driver.
func MustSelect(name string) *Context {
	ctx, err := Select(name)
	if err != nil {
		panic(err)
	}
	return ctx
}

// Driver returns the selected driver.
func (c *Context) Driver() Driver { return c.drv }

// GPU returns the GPU of the selected driver.
func (c *Context) GPU() GPU { return c.gpu }

// Close closes the selected driver.
// Everything created from c.GPU() must have been
// destroyed already.
func (c *Context) Close() {
	if c.drv == nil {
		return
	}
	c.drv.Close()
	*c = Context{}
}

// IsFatal reports whether err requires the Context to be
// closed.
func IsFatal(err error) bool { return errors.Is(err, ErrFatal) }
