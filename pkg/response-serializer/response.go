package serializer

import (
	"bufio"
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	responseTimeHeaderName = "Prefetch-Response-Time"
	requestTimeHeaderName  = "Prefetch-Request-Time"
)

var ErrMalformed = errors.New("serializer: malformed stored response")

type TimedResponse struct {
	Response *http.Response
	// The value of the clock when the prefetch request was dispatched.
	RequestTime time.Time
	// The value of the clock when the prefetch response was received.
	ResponseTime time.Time
}

// Age returns how long ago the response was received.
func (t TimedResponse) Age(now time.Time) time.Duration {
	if t.ResponseTime.IsZero() || now.Before(t.ResponseTime) {
		return 0
	}
	return now.Sub(t.ResponseTime)
}

func BytesToStoredResponse(b []byte) (TimedResponse, error) {
	sRes := TimedResponse{}
	res, err := bytesToResponse(b)
	if err != nil {
		return sRes, err
	}
	sRes.Response = res
	resTimeInt, err := strconv.ParseInt(res.Header.Get(responseTimeHeaderName), 10, 64)
	if err != nil {
		return sRes, err
	}
	reqTimeInt, err := strconv.ParseInt(res.Header.Get(requestTimeHeaderName), 10, 64)
	if err != nil {
		return sRes, err
	}
	sRes.ResponseTime = time.UnixMilli(resTimeInt)
	sRes.RequestTime = time.UnixMilli(reqTimeInt)
	// delete extra headers
	sRes.Response.Header.Del(responseTimeHeaderName)
	sRes.Response.Header.Del(requestTimeHeaderName)
	return sRes, nil
}

var delim = []byte("\r\n\r\n----\r\n\r\n")

// StoredResponseToBytes writes the request line of the originating request
// followed by the full response. Request headers are not stored since they
// carry credentials.
func StoredResponseToBytes(sRes TimedResponse) ([]byte, error) {
	res := sRes.Response
	buf := &bytes.Buffer{}

	if req := res.Request; req != nil && req.URL != nil {
		bare := &http.Request{
			Method:     req.Method,
			URL:        req.URL,
			Host:       req.Host,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     http.Header{},
		}
		if err := bare.Write(buf); err != nil {
			log.Warn().Err(err).Msg("Could not write request to bytes")
		}
	} else {
		log.Warn().Msg("Request not set")
	}
	buf.Write(delim)

	res.Header.Set(responseTimeHeaderName, strconv.FormatInt(sRes.ResponseTime.UnixMilli(), 10))
	res.Header.Set(requestTimeHeaderName, strconv.FormatInt(sRes.RequestTime.UnixMilli(), 10))
	bts, err := responseToBytes(res)
	// remove the extra headers just in case
	res.Header.Del(responseTimeHeaderName)
	res.Header.Del(requestTimeHeaderName)

	buf.Write(bts)

	return buf.Bytes(), err
}

// bytesToResponse converts a byte slice to a http.Response.
func bytesToResponse(b []byte) (*http.Response, error) {
	bParts := bytes.SplitN(b, delim, 2)
	if len(bParts) != 2 {
		return nil, ErrMalformed
	}
	reqBytes := bParts[0]
	resBytes := bParts[1]
	var req *http.Request
	if len(reqBytes) > 0 {
		var err error
		req, err = http.ReadRequest(bufio.NewReader(bytes.NewReader(reqBytes)))
		if err != nil {
			log.Warn().Err(err).Bytes("bytes", reqBytes).Msg("Could not read request from stored response")
		}
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(resBytes)), req)
}

// responseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response
// and leaves the body of res readable.
func responseToBytes(res *http.Response) ([]byte, error) {
	// write response to buffer
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	// set response body back
	bts := buf.Bytes()
	clonedRes, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	res.Body = clonedRes.Body
	// return buffer bytes
	return bts, nil
}
