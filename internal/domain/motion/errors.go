package motion

import "errors"

var (
	// ErrAccessDenied is returned when an identity is not on the allow-list.
	ErrAccessDenied = errors.New("access denied")
	// ErrStoreUnavailable is returned when the subscriber file cannot be read or written.
	ErrStoreUnavailable = errors.New("subscriber store unavailable")
	// ErrSensorUnavailable is returned when the sensor hardware cannot be acquired.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrGateway wraps failures of the messaging transport.
	ErrGateway = errors.New("messaging gateway error")
)
