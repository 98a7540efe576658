// Package validator decides whether a response may be stored.
package validator

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const DefaultMaxSize = 1048576

// Names of the individual checks in Results.
const (
	CheckResponseCode = "hasCacheableResponseCode"
	CheckContentType  = "hasCacheableContentType"
	CheckSize         = "hasReasonableSize"
	CheckStreaming    = "isStreamingResponse"
)

var (
	cacheableRedirects = []int{http.StatusMovedPermanently, http.StatusFound, http.StatusNotModified}
	cacheableTypes     = []string{"/json", "+json", "/xml", "+xml"}
	streamingTypes     = []string{"text/event-stream", "application/octet-stream", "multipart/"}
)

type Validator struct {
	// MaxSize is the largest cacheable body in bytes.
	MaxSize int64
}

func New(maxSize int64) Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return Validator{MaxSize: maxSize}
}

// ShouldCache reports whether res passes every check.
func (v Validator) ShouldCache(res *http.Response) bool {
	return HasCacheableResponseCode(res) &&
		HasCacheableContentType(res) &&
		v.HasReasonableSize(res) &&
		!IsStreamingResponse(res)
}

// Results returns the outcome of every check, for diagnostics.
func (v Validator) Results(res *http.Response) map[string]bool {
	return map[string]bool{
		CheckResponseCode: HasCacheableResponseCode(res),
		CheckContentType:  HasCacheableContentType(res),
		CheckSize:         v.HasReasonableSize(res),
		CheckStreaming:    IsStreamingResponse(res),
	}
}

// HasCacheableResponseCode accepts 2xx and the redirects 301, 302 and 304.
func HasCacheableResponseCode(res *http.Response) bool {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return true
	}
	for _, code := range cacheableRedirects {
		if res.StatusCode == code {
			return true
		}
	}
	return false
}

// HasCacheableContentType accepts text, JSON and XML bodies.
func HasCacheableContentType(res *http.Response) bool {
	ct := res.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	for _, t := range cacheableTypes {
		if strings.Contains(ct, t) {
			return true
		}
	}
	return false
}

// HasReasonableSize checks the Content-Length header, or the body when the
// header is absent. The body is restored after measuring.
func (v Validator) HasReasonableSize(res *http.Response) bool {
	if cl := res.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		return err == nil && n <= v.MaxSize
	}
	if res.Body == nil || res.Body == http.NoBody {
		return true
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, v.MaxSize+1))
	if err != nil {
		return false
	}
	res.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), res.Body), res.Body}
	return int64(len(body)) <= v.MaxSize
}

// IsStreamingResponse detects event streams, binary streams, multipart
// bodies and chunked transfer encoding.
func IsStreamingResponse(res *http.Response) bool {
	ct := res.Header.Get("Content-Type")
	for _, t := range streamingTypes {
		if strings.Contains(ct, t) {
			return true
		}
	}
	if strings.EqualFold(res.Header.Get("Transfer-Encoding"), "chunked") {
		return true
	}
	for _, te := range res.TransferEncoding {
		if strings.EqualFold(te, "chunked") {
			return true
		}
	}
	return false
}
