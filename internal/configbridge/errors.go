package configbridge

import "errors"

// Domain-specific errors for configuration decoding.
// Use errors.Is() to check for these errors in calling code.
var (
	ErrUnknownAuthMethod  = errors.New("configbridge: unknown auth method")
	ErrUnknownEncoding    = errors.New("configbridge: unknown binary encoding")
	ErrItemCount          = errors.New("configbridge: unexpected number of items")
	ErrEmptyItem          = errors.New("configbridge: item is empty")
	ErrItemTooLarge       = errors.New("configbridge: item exceeds destination size")
	ErrInvalidEncoding    = errors.New("configbridge: item is not validly encoded")
	ErrInvalidPort        = errors.New("configbridge: invalid broker port")
	ErrInvalidCertificate = errors.New("configbridge: invalid certificate")
	ErrInvalidKey         = errors.New("configbridge: invalid private key")
	ErrUnsupportedKey     = errors.New("configbridge: unsupported private key type")

	// ErrInvalidConnectionString is returned when an Azure IoT Hub device
	// connection string lacks HostName, DeviceId or SharedAccessKey.
	ErrInvalidConnectionString = errors.New("configbridge: invalid connection string")
)
