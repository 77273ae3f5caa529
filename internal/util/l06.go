package util

import (
	"net/http"
	"strings"
	"time"

	"github.com/motemen/go-loghttp"
	"github.com/motemen/go-nuts/roundtime"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-httpstat"
)

// Redacted replaces the values of sensitive headers in logs.
const Redacted = "[redacted]"

// sensitiveHeaders lists (canonical) header names whose values never reach the logs.
var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Cookie":              {},
	"Set-Cookie":          {},
	"Www-Authenticate":    {},
	"X-Ms-Encryption-Key": {},
}

// LoggerFunc turns a function into an a zerolog marshaller.
type LoggerFunc func(e *zerolog.Event)

// MarshalZerologObject makes the LoggerFunc type a LogObjectMarshaler.
func (f LoggerFunc) MarshalZerologObject(e *zerolog.Event) {
	f(e)
}

func ResultToLogObjectMarshaller(result *httpstat.Result) zerolog.LogObjectMarshaler {
	return LoggerFunc(func(e *zerolog.Event) {
		if result == nil {
			return
		}

		e.
			Dur("dns-lookup", result.DNSLookup).
			Dur("tcp-connection", result.TCPConnection).
			Dur("tls-handshake", result.TLSHandshake).
			Dur("server-processing", result.ServerProcessing).
			Dur("start-transfer", result.StartTransfer)
	})
}

// HTTPHeaderToLogObjectMarshaller logs the headers, masking the credentials they may carry.
func HTTPHeaderToLogObjectMarshaller(h http.Header) zerolog.LogObjectMarshaler {
	return LoggerFunc(func(e *zerolog.Event) {
		for k, v := range h {
			if IsSensitiveHeader(k) {
				e.Str(k, Redacted)
				continue
			}

			e.Strs(k, v)
		}
	})
}

// IsSensitiveHeader tells whether the value of the given header shall be redacted.
func IsSensitiveHeader(name string) bool {
	_, found := sensitiveHeaders[http.CanonicalHeaderKey(strings.TrimSpace(name))]

	return found
}

func RequestToLogObjectMarshaller(req *http.Request) zerolog.LogObjectMarshaler {
	return LoggerFunc(func(e *zerolog.Event) {
		if req != nil {
			e.
				Str("url", req.URL.String()).
				Str("method", req.Method).
				Str("remote-addr", req.RemoteAddr).
				Object("headers", HTTPHeaderToLogObjectMarshaller(req.Header))
		}
	})
}

func ResponseToLogObjectMarshaller(resp *http.Response) zerolog.LogObjectMarshaler {
	return LoggerFunc(func(e *zerolog.Event) {
		if resp != nil {
			e.
				Int64("content-length", resp.ContentLength).
				Int("status-code", resp.StatusCode).
				Object("headers", HTTPHeaderToLogObjectMarshaller(resp.Header))

			if resp.Request == nil {
				return
			}

			if start, ok := resp.Request.Context().Value(loghttp.ContextKeyRequestStart).(time.Time); ok {
				e.Dur("duration", roundtime.Duration(time.Since(start), 2))
			}
		}
	})
}

// HTTPRequestLogger is a convenient higher-order function which returns a function ready to be used as
// parameter for LogRequest field of loghttp.Transport.
func HTTPRequestLogger() func(request *http.Request) {
	return func(request *http.Request) {
		log.
			Ctx(request.Context()).
			Debug().
			Msgf("📤 %s %s://%s%s", request.Method, request.URL.Scheme, request.URL.Host, request.URL.Path)
	}
}

// HTTPResponseLogger is a convenient higher-order function which returns a function ready to be used as
// parameter for LogResponse field of loghttp.Transport. result may be nil when no connection statistics are
// collected.
func HTTPResponseLogger(result *httpstat.Result) func(response *http.Response) {
	return func(response *http.Response) {
		log.Ctx(response.Request.Context()).
			Debug().
			Object("response", ResponseToLogObjectMarshaller(response)).
			Object("stats", ResultToLogObjectMarshaller(result)).
			Msgf("📥 %d %s%s", response.StatusCode, response.Request.URL.Host, response.Request.URL.Path)
	}
}

// NewLoggingClient returns an HTTP client logging every exchange through the logger found in the request
// context. A nil base uses http.DefaultTransport.
func NewLoggingClient(base http.RoundTripper, timeout time.Duration) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}

	return &http.Client{
		Transport: &loghttp.Transport{
			LogRequest:  HTTPRequestLogger(),
			LogResponse: HTTPResponseLogger(nil),
			Transport:   base,
		},
		Timeout: timeout,
	}
}
