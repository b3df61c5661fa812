// Package gzippedhttp compresses HTTP responses with gzip
// for clients that advertise support for it.
package gzippedhttp

import (
	"compress/gzip"
	"net/http"
	"strings"
	"sync"
)

// CompressedHTTPResponseWriter wraps http.ResponseWriter and compresses
// the response body using gzip. Headers are sent with the first non-empty
// write, so a response without a body goes out unencoded.
type CompressedHTTPResponseWriter struct {
	w           http.ResponseWriter
	zw          *gzip.Writer
	statusCode  int
	wroteHeader bool
	compressing bool
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

// NewCompressedHTTPResponseWriter takes a pooled gzip writer targeting w.
func NewCompressedHTTPResponseWriter(w http.ResponseWriter) *CompressedHTTPResponseWriter {
	zw := gzipWriterPool.Get().(*gzip.Writer)
	zw.Reset(w)
	return &CompressedHTTPResponseWriter{
		w:          w,
		zw:         zw,
		statusCode: http.StatusOK,
	}
}

// Header returns the HTTP headers associated with the response.
func (c *CompressedHTTPResponseWriter) Header() http.Header {
	return c.w.Header()
}

// WriteHeader records the status code until the body is known.
func (c *CompressedHTTPResponseWriter) WriteHeader(statusCode int) {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true
	c.statusCode = statusCode
}

// Write writes gzip-compressed data to the response body.
func (c *CompressedHTTPResponseWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !c.compressing {
		c.compressing = true
		c.wroteHeader = true

		header := c.w.Header()
		header.Set("Content-Encoding", "gzip")
		header.Add("Vary", "Accept-Encoding")
		header.Del("Content-Length")
		c.w.WriteHeader(c.statusCode)
	}
	return c.zw.Write(p)
}

// Close flushes the gzip stream and returns the writer to the pool.
// A response without a body only gets its status code.
func (c *CompressedHTTPResponseWriter) Close() error {
	defer gzipWriterPool.Put(c.zw)

	if !c.compressing {
		if c.wroteHeader {
			c.w.WriteHeader(c.statusCode)
		}
		return nil
	}
	return c.zw.Close()
}

// GzipResponse is the middleware that compresses the response when the request's
// "Accept-Encoding" header allows gzip.
func GzipResponse(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if !strings.Contains(request.Header.Get("Accept-Encoding"), "gzip") {
			h.ServeHTTP(response, request)
			return
		}

		responseWithCompression := NewCompressedHTTPResponseWriter(response)
		defer responseWithCompression.Close()

		h.ServeHTTP(responseWithCompression, request)
	}

	return http.HandlerFunc(middleware)
}
