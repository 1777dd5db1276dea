// Package backend is the HTTP client for the course backend's
// answer-generation and job-status endpoints.
//
// Both endpoints speak plain JSON over HTTP. Non-2xx responses are
// surfaced as *HTTPError with the backend's detail field extracted when
// the body is JSON, and the raw body otherwise. Transport failures
// (connection refused, DNS) pass through untyped so callers can
// distinguish an unreachable service from an HTTP-level failure.
package backend
