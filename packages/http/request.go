package http

import (
	"encoding/base64"
	"net/url"
	"time"
)

// Request describes a single HTTP exchange to be sent by a Client.
type Request struct {
	Method           string
	URL              string
	Headers          map[string]string
	Body             []byte
	Timeout          time.Duration
	QueryParams      map[string]string
	DigestAuth       *DigestAuthCredentials
	ProgressInterval time.Duration
}

func NewRequest(method, requestURL string) *Request {
	if method == "" {
		method = "GET"
	}
	return &Request{
		Method:      method,
		URL:         requestURL,
		Headers:     make(map[string]string),
		QueryParams: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	return r
}

func (r *Request) SetBodyString(body string) *Request {
	r.Body = []byte(body)
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

func (r *Request) SetQueryParam(key, value string) *Request {
	if r.QueryParams == nil {
		r.QueryParams = make(map[string]string)
	}
	r.QueryParams[key] = value
	return r
}

// SetBasicAuth sets a Basic Authorization header
func (r *Request) SetBasicAuth(username, password string) *Request {
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return r.SetHeader("Authorization", "Basic "+encoded)
}

// SetBearerToken sets a Bearer Authorization header
func (r *Request) SetBearerToken(token string) *Request {
	return r.SetHeader("Authorization", "Bearer "+token)
}

// SetDigestAuth enables the digest challenge-response flow for this request
func (r *Request) SetDigestAuth(username, password string) *Request {
	r.DigestAuth = &DigestAuthCredentials{
		Username: username,
		Password: password,
	}
	return r
}

func (r *Request) BuildURL() string {
	if len(r.QueryParams) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, v := range r.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Clone returns a deep copy so callers may reuse the original.
func (r *Request) Clone() *Request {
	c := *r
	c.Headers = make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		c.Headers[k] = v
	}
	c.QueryParams = make(map[string]string, len(r.QueryParams))
	for k, v := range r.QueryParams {
		c.QueryParams[k] = v
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	if r.DigestAuth != nil {
		d := *r.DigestAuth
		c.DigestAuth = &d
	}
	return &c
}
