package authenticator

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/edgehub-go/devicesession/pkg/session"
)

// sasToken builds an IoT-Hub-style SharedAccessSignature token for
// resourceURI, valid until expiry. Signing is plain HMAC-SHA256 over
// "urlEncode(resourceURI)\nexpiry" — stdlib crypto/hmac and crypto/sha256
// are used directly rather than reaching for a third-party crypto package;
// see DESIGN.md.
func sasToken(resourceURI string, key string, expiry time.Time) (string, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("authenticator: decode shared access key: %w", err)
	}

	encodedURI := url.QueryEscape(resourceURI)
	expirySecs := expiry.Unix()
	stringToSign := fmt.Sprintf("%s\n%d", encodedURI, expirySecs)

	mac := hmac.New(sha256.New, keyBytes)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%d",
		encodedURI, url.QueryEscape(signature), expirySecs), nil
}

// resourceURI returns the CBS audience string for a device: hub/devices/id.
func resourceURI(hubHost, deviceID string) string {
	return hubHost + "/devices/" + url.PathEscape(deviceID)
}

// buildToken returns the token to present for this device under creds,
// valid for lifetime starting at now. When creds carries a pre-issued
// SASToken (AuthMode CBS with a caller-supplied token), that token is used
// verbatim instead of being derived from a key.
func buildToken(hubHost, deviceID string, creds session.Credentials, now time.Time, lifetime time.Duration) (string, error) {
	if creds.SASToken != "" {
		return creds.SASToken, nil
	}
	if creds.PrimaryKey == "" {
		return "", fmt.Errorf("authenticator: no sas token or primary key available")
	}
	return sasToken(resourceURI(hubHost, deviceID), creds.PrimaryKey, now.Add(lifetime))
}
