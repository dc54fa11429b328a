package planbuild

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// sessionJar keeps the ambient cookies the portal hands out (load balancer affinity and the
// like) but never sends the session cookie on its own, that one is attached explicitly from
// the Session value so a replaced session is never resent by accident.
type sessionJar struct {
	inner   *cookiejar.Jar
	exclude string
}

func newSessionJar(sessionCookie string) (*sessionJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &sessionJar{inner: jar, exclude: sessionCookie}, nil
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	stored := j.inner.Cookies(u)
	out := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if c.Name == j.exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

// stored returns the value of a cookie the jar received for u, including the excluded one.
func (j *sessionJar) stored(u *url.URL, name string) string {
	for _, c := range j.inner.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
