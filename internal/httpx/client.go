// Package httpx builds the resty clients shared by the HTTP backed tools.
package httpx

import (
	"errors"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
)

// UserAgent is sent by every tool request.
const UserAgent = "Mozilla/5.0 (compatible; codeagent/1.0)"

// Options configure a tool HTTP client.
type Options struct {
	Timeout       time.Duration
	RetryCount    int
	RetryWaitTime time.Duration
}

// NewClient returns a resty client retrying transient failures (network
// timeouts, 429 and 5xx responses).
func NewClient(optFns ...func(o *Options)) *resty.Client {
	opts := Options{
		Timeout:       10 * time.Second,
		RetryCount:    3,
		RetryWaitTime: time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWaitTime).
		SetHeader("User-Agent", UserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				var netErr net.Error
				return errors.As(err, &netErr) && netErr.Timeout()
			}
			code := r.StatusCode()
			return code == 429 || code >= 500
		})
}
