package http

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// DigestChallenge is the parsed WWW-Authenticate header of a digest 401.
type DigestChallenge struct {
	Realm     string
	Nonce     string
	Qop       string
	Opaque    string
	Algorithm string
}

// ParseDigestChallenge parses a WWW-Authenticate header. It reports false
// when the header is not a digest challenge.
func ParseDigestChallenge(header string) (DigestChallenge, bool) {
	scheme, rest, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "Digest") {
		return DigestChallenge{}, false
	}

	params := parseAuthParams(rest)
	return DigestChallenge{
		Realm:     params["realm"],
		Nonce:     params["nonce"],
		Qop:       params["qop"],
		Opaque:    params["opaque"],
		Algorithm: params["algorithm"],
	}, params["nonce"] != ""
}

// parseAuthParams splits key=value pairs, honouring commas inside quotes.
func parseAuthParams(s string) map[string]string {
	result := make(map[string]string)

	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())

	for _, part := range parts {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		result[strings.ToLower(strings.TrimSpace(key))] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return result
}

// DigestAuth contains the parameters needed for one digest response
type DigestAuth struct {
	Username  string
	Password  string
	Method    string
	URI       string
	Challenge DigestChallenge
	Nc        string
	Cnonce    string
	qop       string
}

func newDigestAuth(creds *DigestAuthCredentials, challenge DigestChallenge, method, uri string) (*DigestAuth, error) {
	d := &DigestAuth{
		Username:  creds.Username,
		Password:  creds.Password,
		Method:    method,
		URI:       uri,
		Challenge: challenge,
	}

	if challenge.Qop != "" {
		// Only "auth" is supported; auth-int would require hashing the body.
		for _, q := range strings.Split(challenge.Qop, ",") {
			if strings.TrimSpace(q) == "auth" {
				d.qop = "auth"
			}
		}
		if d.qop == "" {
			return nil, fmt.Errorf("unsupported digest qop: %s", challenge.Qop)
		}

		cnonce, err := GenerateCnonce()
		if err != nil {
			return nil, err
		}
		d.Nc = "00000001"
		d.Cnonce = cnonce
	}

	return d, nil
}

func (d *DigestAuth) newHash() (func() hash.Hash, error) {
	switch strings.ToUpper(d.Challenge.Algorithm) {
	case "", "MD5":
		return md5.New, nil
	case "SHA-256":
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm: %s", d.Challenge.Algorithm)
	}
}

// Response calculates the digest response hash
func (d *DigestAuth) Response() (string, error) {
	h, err := d.newHash()
	if err != nil {
		return "", err
	}
	sum := func(s string) string {
		hh := h()
		_, _ = io.WriteString(hh, s)
		return hex.EncodeToString(hh.Sum(nil))
	}

	ha1 := sum(d.Username + ":" + d.Challenge.Realm + ":" + d.Password)
	ha2 := sum(d.Method + ":" + d.URI)

	if d.qop != "" {
		return sum(strings.Join([]string{ha1, d.Challenge.Nonce, d.Nc, d.Cnonce, d.qop, ha2}, ":")), nil
	}
	return sum(ha1 + ":" + d.Challenge.Nonce + ":" + ha2), nil
}

// Authorization creates the Authorization header value
func (d *DigestAuth) Authorization() (string, error) {
	response, err := d.Response()
	if err != nil {
		return "", err
	}

	parts := []string{
		fmt.Sprintf(`username="%s"`, d.Username),
		fmt.Sprintf(`realm="%s"`, d.Challenge.Realm),
		fmt.Sprintf(`nonce="%s"`, d.Challenge.Nonce),
		fmt.Sprintf(`uri="%s"`, d.URI),
		fmt.Sprintf(`response="%s"`, response),
	}

	if d.Challenge.Algorithm != "" {
		parts = append(parts, "algorithm="+d.Challenge.Algorithm)
	}

	if d.qop != "" {
		parts = append(parts, "qop="+d.qop, "nc="+d.Nc, fmt.Sprintf(`cnonce="%s"`, d.Cnonce))
	}

	if d.Challenge.Opaque != "" {
		parts = append(parts, fmt.Sprintf(`opaque="%s"`, d.Challenge.Opaque))
	}

	return "Digest " + strings.Join(parts, ", "), nil
}

// GenerateCnonce generates a random client nonce
func GenerateCnonce() (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
