// Package fetch implements the source fetcher (C4): it retrieves bytes
// from a resolved source, whichever of object_store/remote/fallback that
// source is, applying the source's auth scheme along the way.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/origins"
	"github.com/cdnforge/edgevideo/internal/util/log"
)

// ErrNotFound is returned when the underlying source reports the object
// does not exist (object-store 404-equivalent, or an HTTP 404).
var ErrNotFound = fmt.Errorf("fetch: source object not found")

// SourceError wraps a fetch failure with the HTTP status the source
// reported, if any, so C5's retry/failover classification can act on it.
type SourceError struct {
	Status int
	Err    error
}

func (e *SourceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch: source returned status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("fetch: %v", e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Response is what a successful fetch returns.
type Response struct {
	Body          io.ReadCloser
	Status        int
	ContentType   string
	ContentLength int64
	Headers       http.Header
	FallbackApplied bool
}

// ObjectStoreBinder resolves a configured binding name to an S3 client and
// bucket, so object_store sources aren't hardwired to one account/region.
type ObjectStoreBinder interface {
	Bind(bindingName string) (client *s3.Client, bucket string, err error)
}

// Fetcher retrieves bytes from a resolved source.
type Fetcher struct {
	HTTPClient *http.Client
	Bindings   ObjectStoreBinder
	Presign    *PresignCache
}

// New returns a Fetcher using http.DefaultClient and the given bindings.
func New(bindings ObjectStoreBinder) *Fetcher {
	return &Fetcher{HTTPClient: http.DefaultClient, Bindings: bindings, Presign: NewPresignCache(512)}
}

// Fetch retrieves src.Path from the resolved source, optionally
// constrained to a byte range (the raw `Range` header value, or "").
func (f *Fetcher) Fetch(ctx context.Context, src origins.ResolvedSource, rangeHeader string) (*Response, error) {
	switch src.Source.Type {
	case config.SourceObjectStore:
		return f.fetchObjectStore(ctx, src, rangeHeader)
	case config.SourceRemote:
		return f.fetchRemote(ctx, src, rangeHeader, false)
	case config.SourceFallback:
		return f.fetchRemote(ctx, src, rangeHeader, true)
	default:
		return nil, &SourceError{Err: fmt.Errorf("unknown source type %q", src.Source.Type)}
	}
}

func (f *Fetcher) fetchObjectStore(ctx context.Context, src origins.ResolvedSource, rangeHeader string) (*Response, error) {
	if f.Bindings == nil {
		return nil, &SourceError{Err: fmt.Errorf("no object store bindings configured")}
	}
	client, bucket, err := f.Bindings.Bind(src.Source.BindingName)
	if err != nil {
		return nil, &SourceError{Err: err}
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(src.Path),
	}
	if rangeHeader != "" {
		in.Range = aws.String(rangeHeader)
	}

	out, err := client.GetObject(ctx, in)
	if err != nil {
		log.Debug("object store fetch failed", log.Pairs{"bucket": bucket, "key": src.Path, "error": err.Error()})
		return nil, &SourceError{Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	}

	status := 200
	if rangeHeader != "" {
		status = 206
	}
	resp := &Response{Body: out.Body, Status: status, Headers: http.Header{}}
	if out.ContentType != nil {
		resp.ContentType = *out.ContentType
	}
	if out.ContentLength != nil {
		resp.ContentLength = *out.ContentLength
	}
	return resp, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, src origins.ResolvedSource, rangeHeader string, fallback bool) (*Response, error) {
	url := src.Source.BaseURL + src.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &SourceError{Err: err}
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	auth, err := origins.NewAuthenticator(src.Source.Auth)
	if err != nil {
		return nil, &SourceError{Err: err}
	}
	if auth != nil {
		if err := auth.Authenticate(ctx, req, nil); err != nil {
			return nil, &SourceError{Err: err}
		}
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, &SourceError{Err: err}
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &SourceError{Status: resp.StatusCode, Err: ErrNotFound}
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &SourceError{Status: resp.StatusCode, Err: fmt.Errorf("remote source error: %s", body)}
	}

	out := &Response{
		Body: resp.Body, Status: resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"), Headers: resp.Header,
		FallbackApplied: fallback,
	}
	if resp.ContentLength > 0 {
		out.ContentLength = resp.ContentLength
	}
	return out, nil
}
