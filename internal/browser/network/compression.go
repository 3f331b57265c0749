// internal/browser/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is advertised on every request that does not set its own.
const acceptEncoding = "br, gzip, deflate"

var (
	gzipPool   = sync.Pool{New: func() interface{} { return new(gzip.Reader) }}
	brotliPool = sync.Pool{New: func() interface{} { return brotli.NewReader(nil) }}
)

// DecompressingTransport negotiates compression with the server and unwraps
// gzip, deflate and brotli bodies before handing the response back.
type DecompressingTransport struct {
	Base http.RoundTripper
}

// NewDecompressingTransport wraps base, or http.DefaultTransport when base is nil.
func NewDecompressingTransport(base http.RoundTripper) *DecompressingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DecompressingTransport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *DecompressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := Decompress(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

// pooledBody closes the decoder, releases it to its pool, then closes the wire body.
type pooledBody struct {
	io.Reader
	wire    io.ReadCloser
	release func()
}

func (b *pooledBody) Close() error {
	var errs []error
	if c, ok := b.Reader.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if b.release != nil {
		b.release()
		b.release = nil
	}
	errs = append(errs, b.wire.Close())
	return errors.Join(errs...)
}

// Decompress replaces resp.Body with a decoding reader for each Content-Encoding
// layer, last applied first. On error the body must be treated as consumed.
func Decompress(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	layers := resp.Header.Values("Content-Encoding")
	if len(layers) == 0 {
		return nil
	}

	for i := len(layers) - 1; i >= 0; i-- {
		for _, enc := range strings.Split(layers[i], ",") {
			body, err := wrapLayer(strings.ToLower(strings.TrimSpace(enc)), resp.Body)
			if err != nil {
				return err
			}
			resp.Body = body
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

func wrapLayer(encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr := gzipPool.Get().(*gzip.Reader)
		if err := zr.Reset(body); err != nil {
			gzipPool.Put(zr)
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &pooledBody{Reader: zr, wire: body, release: func() { gzipPool.Put(zr) }}, nil
	case "br":
		br := brotliPool.Get().(*brotli.Reader)
		if err := br.Reset(body); err != nil {
			brotliPool.Put(br)
			return nil, fmt.Errorf("brotli: %w", err)
		}
		return &pooledBody{Reader: br, wire: body, release: func() { brotliPool.Put(br) }}, nil
	case "deflate":
		return &pooledBody{Reader: inflate(body), wire: body}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// inflate reads zlib-wrapped deflate, falling back to raw deflate when the
// stream has no zlib header.
func inflate(r io.Reader) io.ReadCloser {
	buffered := bufio.NewReader(r)
	header, err := buffered.Peek(2)
	if err == nil && isZlibHeader(header) {
		if zr, err := zlib.NewReader(buffered); err == nil {
			return zr
		}
	}
	return flate.NewReader(buffered)
}

func isZlibHeader(h []byte) bool {
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
