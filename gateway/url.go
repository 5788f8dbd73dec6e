package gateway

import (
	"fmt"
	"net/url"
	"strconv"
)

// ResumeState carries the sequence number and session identifier needed to
// resume a dropped connection instead of starting a fresh session.
type ResumeState struct {
	SN        uint64
	SessionID string
}

// GatewayURL is a parsed gateway endpoint, with enough structure to
// re-encode it with resume parameters attached.
type GatewayURL struct {
	Scheme   string
	Host     string
	Port     string
	Path     string
	Compress bool
	Token    string
	Resume   *ResumeState
}

// ParseGatewayURLError reports why a gateway URL string could not be
// parsed into a GatewayURL.
type ParseGatewayURLError struct {
	Reason string
	URL    string
	Err    error
}

func (e *ParseGatewayURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid gateway url %q: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid gateway url %q: %s", e.URL, e.Reason)
}

func (e *ParseGatewayURLError) Unwrap() error { return e.Err }

// ParseGatewayURL parses a gateway URL as returned by the index lookup,
// plus the token used to authenticate the websocket upgrade.
func ParseGatewayURL(raw, token string) (*GatewayURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ParseGatewayURLError{Reason: "invalid url", URL: raw, Err: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, &ParseGatewayURLError{Reason: "invalid schema", URL: raw}
	}
	if u.Hostname() == "" {
		return nil, &ParseGatewayURLError{Reason: "no host", URL: raw}
	}
	if token == "" {
		return nil, &ParseGatewayURLError{Reason: "no token", URL: raw}
	}

	port := u.Port()
	if port == "" {
		if u.Scheme == "wss" {
			port = "443"
		} else {
			port = "80"
		}
	}

	g := &GatewayURL{
		Scheme: u.Scheme,
		Host:   u.Hostname(),
		Port:   port,
		Path:   u.Path,
		Token:  token,
	}

	q := u.Query()
	if q.Get("compress") == "1" {
		g.Compress = true
	}

	if q.Get("resume") == "1" {
		snStr := q.Get("sn")
		if snStr == "" {
			return nil, &ParseGatewayURLError{Reason: "no sn", URL: raw}
		}
		sn, err := strconv.ParseUint(snStr, 10, 64)
		if err != nil {
			return nil, &ParseGatewayURLError{Reason: "invalid sn", URL: raw, Err: err}
		}
		sessionID := q.Get("session_id")
		if sessionID == "" {
			return nil, &ParseGatewayURLError{Reason: "no session id", URL: raw}
		}
		g.Resume = &ResumeState{SN: sn, SessionID: sessionID}
	}

	return g, nil
}

// WithResume returns a copy of the URL carrying the given resume state.
func (g GatewayURL) WithResume(r *ResumeState) GatewayURL {
	g.Resume = r
	return g
}

// String re-encodes the gateway URL, attaching resume parameters when
// present.
func (g GatewayURL) String() string {
	u := url.URL{
		Scheme: g.Scheme,
		Host:   fmt.Sprintf("%s:%s", g.Host, g.Port),
		Path:   g.Path,
	}

	q := url.Values{}
	if g.Compress {
		q.Set("compress", "1")
	} else {
		q.Set("compress", "0")
	}
	q.Set("token", g.Token)
	if g.Resume != nil {
		q.Set("resume", "1")
		q.Set("sn", strconv.FormatUint(g.Resume.SN, 10))
		q.Set("session_id", g.Resume.SessionID)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
