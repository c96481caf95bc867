package fetcher

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// solisSigner produces the per-request authentication headers for the
// SolisCloud API. There is no session: every request carries a Content-MD5
// digest, a GMT date, and an HMAC-SHA1 signature over a canonical string.
// The scheme must stay bit-reproducible against the vendor's verifier.
type solisSigner struct {
	keyID     string
	keySecret string
	now       func() time.Time
}

// contentMD5 returns the base64-encoded MD5 digest of the request body.
func contentMD5(body []byte) string {
	sum := md5.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// httpDate formats t as the Solis Date header: GMT, day of month without
// zero padding ("Fri, 23 May 2025 19:53:00 GMT").
func httpDate(t time.Time) string {
	return t.UTC().Format("Mon, 2 Jan 2006 15:04:05 GMT")
}

// stringToSign builds the canonical string the signature covers. The line
// breaks are literal "\n" bytes.
func stringToSign(method, digest, contentType, date, path string) string {
	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s", method, digest, contentType, date, path)
}

// sign computes base64(HMAC-SHA1(secret, canonical)).
func (s *solisSigner) sign(canonical string) string {
	mac := hmac.New(sha1.New, []byte(s.keySecret))
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// headers returns the full header set for a request to path with the given
// compact-JSON body.
func (s *solisSigner) headers(method, path string, body []byte) http.Header {
	const contentType = "application/json"

	digest := contentMD5(body)
	date := httpDate(s.now())
	signature := s.sign(stringToSign(method, digest, contentType, date, path))

	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("Content-MD5", digest)
	h.Set("Date", date)
	h.Set("Authorization", fmt.Sprintf("API %s:%s", s.keyID, signature))
	return h
}
