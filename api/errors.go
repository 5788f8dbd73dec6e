// Package api is a thin HTTP client for the gateway index lookup: the
// single REST call a bot makes before it ever opens a websocket.
package api

import "fmt"

// StatusError reports a non-200 HTTP response from the index endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway index request failed with status %d: %s", e.StatusCode, e.Body)
}

// CodeNotZeroError reports that the index endpoint replied with HTTP 200
// but an application-level error code.
type CodeNotZeroError struct {
	Code    int64
	Message string
}

func (e *CodeNotZeroError) Error() string {
	return fmt.Sprintf("gateway index request returned code %d: %s", e.Code, e.Message)
}
