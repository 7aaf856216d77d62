package configbridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AzurePort is the MQTT over TLS port used by Azure IoT Hub.
const AzurePort = 8883

// AzureConnection is a parsed IoT Hub device connection string.
type AzureConnection struct {
	HostName        string
	DeviceID        string
	SharedAccessKey []byte
}

// ParseAzureConnectionString parses
// "HostName=<hub>;DeviceId=<id>;SharedAccessKey=<base64>". Field order is
// not significant; unknown fields are ignored.
func ParseAzureConnectionString(s string) (AzureConnection, error) {
	var conn AzureConnection
	var keyB64 string

	for _, part := range strings.Split(strings.TrimSpace(s), ";") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch name {
		case "HostName":
			conn.HostName = value
		case "DeviceId":
			conn.DeviceID = value
		case "SharedAccessKey":
			// Base64 padding means the value itself may contain '='.
			keyB64 = value
		}
	}

	if conn.HostName == "" || conn.DeviceID == "" || keyB64 == "" {
		return AzureConnection{}, ErrInvalidConnectionString
	}
	if len(conn.HostName) > MaxHostLength {
		return AzureConnection{}, fmt.Errorf("%w: host name too long", ErrInvalidConnectionString)
	}

	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return AzureConnection{}, fmt.Errorf("%w: shared access key: %w", ErrInvalidConnectionString, err)
	}
	conn.SharedAccessKey = key
	return conn, nil
}

// Username returns the MQTT username IoT Hub expects: "<hub>/<device>".
func (c AzureConnection) Username() string {
	return c.HostName + "/" + c.DeviceID
}

// SASToken builds a shared access signature valid until expiry. The signed
// string is the URL-encoded resource URI and the expiry in Unix seconds,
// separated by a newline, signed with HMAC-SHA256 under the shared key.
func (c AzureConnection) SASToken(expiry time.Time) string {
	resource := urlEncode(c.HostName + "/devices/" + c.DeviceID)
	se := strconv.FormatInt(expiry.Unix(), 10)

	mac := hmac.New(sha256.New, c.SharedAccessKey)
	mac.Write([]byte(resource + "\n" + se)) //nolint:errcheck // hash.Hash.Write never fails
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%s", resource, urlEncode(sig), se)
}

// urlEncode percent-encodes everything outside the RFC 3986 unreserved set.
func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
