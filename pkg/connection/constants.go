package connection

import "time"

const (
	// DefaultTimeout is the HTTP client timeout used when Config.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	// SessionTokenHeader carries the session token in the sessions response.
	SessionTokenHeader = "X-FM-Data-Access-Token"

	tokenKey = "token"
)
