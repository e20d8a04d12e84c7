// Package source fetches the snapshot and log resources the overlay polls.
package source

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source returns the full current body of one resource
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// ObjectGetter is the part of the S3 client used by S3Source
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Deps carries the clients sources are built with
type Deps struct {
	HTTPClient *http.Client
	S3         ObjectGetter // Required for s3:// locations
}

// New builds a source from a location: a local path, an http(s) URL or s3://bucket/key.
// cacheBust adds a random query parameter to HTTP requests.
func New(location string, cacheBust bool, deps Deps) (Source, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		client := deps.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		return &HTTPSource{url: u, client: client, cacheBust: cacheBust}, nil

	case strings.HasPrefix(location, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(location, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid s3 location: %s", location)
		}
		if deps.S3 == nil {
			return nil, fmt.Errorf("s3 location %s requires s3 configuration", location)
		}
		return &S3Source{client: deps.S3, bucket: bucket, key: key}, nil

	default:
		return &FileSource{path: strings.TrimPrefix(location, "file://")}, nil
	}
}

// HTTPSource fetches a resource with a GET request
type HTTPSource struct {
	url       *url.URL
	client    *http.Client
	cacheBust bool
}

// Fetch downloads the resource body
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	u := *s.url
	if s.cacheBust {
		// The producer keeps the log open, so servers keep returning the same ETag
		q := u.Query()
		q.Set("v", strconv.FormatFloat(rand.Float64(), 'f', -1, 64))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", s.url.Redacted(), resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (s *HTTPSource) String() string { return s.url.Redacted() }

// FileSource reads a resource from the local filesystem
type FileSource struct {
	path string
}

// Fetch reads the whole file
func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Path returns the watched file path
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) String() string { return s.path }

// S3Source reads a resource from an S3 object
type S3Source struct {
	client ObjectGetter
	bucket string
	key    string
}

// Fetch downloads the object
func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return body, nil
}

func (s *S3Source) String() string { return "s3://" + s.bucket + "/" + s.key }
