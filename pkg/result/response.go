package result

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the terminal outcome of one endpoint.
type Response struct {
	// URL is the fully qualified address that was attempted.
	URL string `json:"url"`

	// Status is the HTTP status code, or 0 when no HTTP response was obtained.
	Status int `json:"status"`

	// Data is the JSON body. Set only when a reply arrived and its body was valid JSON.
	Data json.RawMessage `json:"data,omitempty"`

	// Error describes the failure. Set only when Status is 0 or the body could not be decoded.
	Error string `json:"error,omitempty"`

	// Timestamp is when the outcome was finalized, in seconds since the epoch.
	Timestamp float64 `json:"timestamp"`
}

// Success builds a Response for a reply whose body decoded.
func Success(url string, status int, data json.RawMessage, at time.Time) Response {
	return Response{
		URL:       url,
		Status:    status,
		Data:      data,
		Timestamp: Timestamp(at),
	}
}

// Failure builds a Response carrying err. status is 0 for transport
// failures and the reply status for decode failures.
func Failure(url string, status int, err error, at time.Time) Response {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Response{
		URL:       url,
		Status:    status,
		Error:     msg,
		Timestamp: Timestamp(at),
	}
}

// Timestamp converts t to fractional seconds since the epoch.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// HasData reports whether a decoded body is present.
func (r Response) HasData() bool {
	return len(r.Data) > 0
}

// HasError reports whether a failure description is present.
func (r Response) HasError() bool {
	return r.Error != ""
}

// Time returns Timestamp as a time.Time.
func (r Response) Time() time.Time {
	sec := int64(r.Timestamp)
	nsec := int64((r.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// IsSuccessful reports whether the response is a 200 with data.
func (r Response) IsSuccessful() bool {
	return r.Status == http.StatusOK && r.HasData()
}

// IsFailed reports whether the response carries an error or a non-200 status.
func (r Response) IsFailed() bool {
	return r.HasError() || r.Status != http.StatusOK
}
