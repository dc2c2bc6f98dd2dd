// Package google provides tools backed by Google web APIs: Custom Search
// (web_search), Places text search (places_search) and Place Details
// (get_place_working_hours).
//
// Credentials default to the GOOGLE_API_KEY and GOOGLE_CSE_ID environment
// variables.
package google

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hupe1980/codeagent/internal/httpx"
)

const (
	defaultSearchURL  = "https://www.googleapis.com/customsearch/v1"
	defaultPlacesURL  = "https://maps.googleapis.com/maps/api/place/textsearch/json"
	defaultDetailsURL = "https://maps.googleapis.com/maps/api/place/details/json"

	// Belgrade, Serbia.
	DefaultLatitude  = 44.8176
	DefaultLongitude = 20.4633
	DefaultRadius    = 5000
)

// Options configure the Google tools. Base URLs are overridable for tests
// and proxies.
type Options struct {
	APIKey     string
	CSEID      string
	SearchURL  string
	PlacesURL  string
	DetailsURL string
	Timeout    time.Duration
	RetryCount int
}

func newOptions(optFns ...func(o *Options)) Options {
	opts := Options{
		APIKey:     os.Getenv("GOOGLE_API_KEY"),
		CSEID:      os.Getenv("GOOGLE_CSE_ID"),
		SearchURL:  defaultSearchURL,
		PlacesURL:  defaultPlacesURL,
		DetailsURL: defaultDetailsURL,
		Timeout:    10 * time.Second,
		RetryCount: 3,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

func (o Options) newClient() *resty.Client {
	return httpx.NewClient(func(h *httpx.Options) {
		h.Timeout = o.Timeout
		h.RetryCount = o.RetryCount
	})
}

// intArg reads an integer argument that may arrive as any numeric type
// (JSON decoding yields float64) or a numeric string.
func intArg(args map[string]any, key string) (int, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false, fmt.Errorf("%s must be an integer, got %q", key, n)
		}
		return i, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}
