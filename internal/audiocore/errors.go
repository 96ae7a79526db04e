package audiocore

import (
	"github.com/tphakala/audiorouter/internal/errors"
)

const componentName = "audiocore"

// Sentinel errors. errors.Is matches any error of the same category.
var (
	// ErrConfiguration marks a bad device or route cross-reference. Fatal at startup.
	ErrConfiguration = errors.New(nil).
		Component(componentName).
		Category(errors.CategoryConfiguration).
		Build()

	// ErrDeviceResolution marks a device that could not be found within the wait policy.
	ErrDeviceResolution = errors.New(nil).
		Component(componentName).
		Category(errors.CategoryDeviceResolution).
		Build()

	// ErrDeviceLoss marks a bound device that stopped delivering callbacks.
	ErrDeviceLoss = errors.New(nil).
		Component(componentName).
		Category(errors.CategoryDeviceLoss).
		Build()

	// ErrBufferOverflow marks captured samples dropped because a ring was full.
	ErrBufferOverflow = errors.New(nil).
		Component(componentName).
		Category(errors.CategoryBufferOverflow).
		Build()

	// ErrBufferUnderrun marks render requests padded with silence.
	ErrBufferUnderrun = errors.New(nil).
		Component(componentName).
		Category(errors.CategoryBufferUnderrun).
		Build()

	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New(errors.NewStd("engine is closed")).
		Component(componentName).
		Category(errors.CategoryState).
		Build()
)

func configError(format string, args ...any) *errors.EnhancedError {
	return errors.Newf(format, args...).
		Component(componentName).
		Category(errors.CategoryConfiguration).
		Build()
}
