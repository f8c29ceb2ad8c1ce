package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/BartekS5/storefront-etl/pkg/logger"
	"github.com/BartekS5/storefront-etl/pkg/models"
)

// DefaultFetchTimeout bounds a single GET.
const DefaultFetchTimeout = 10 * time.Second

// StatusError carries the upstream status of a non-2xx response.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// Fetcher downloads raw JSON documents and persists them to the artifact store.
type Fetcher struct {
	Endpoints map[string]string
	Store     ArtifactStore
	Client    *http.Client
	Now       func() time.Time
}

func NewFetcher(endpoints map[string]string, store ArtifactStore, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		Endpoints: endpoints,
		Store:     store,
		Client:    &http.Client{Timeout: timeout},
		Now:       time.Now,
	}
}

// Fetch GETs the endpoint configured under name and writes the canonical JSON
// body to raw/{name}_raw.json. Nothing is written on failure.
func (f *Fetcher) Fetch(ctx context.Context, name string) (*models.RawDocument, error) {
	op := "fetch " + name
	url, ok := f.Endpoints[name]
	if !ok || url == "" {
		logger.Errorf("No endpoint configured for %q.", name)
		return nil, errorf(KindConfiguration, op, "no endpoint configured for %q", name)
	}

	logger.Infof("Fetching data from API endpoint: %s", url)
	body, err := f.get(ctx, op, url)
	if err != nil {
		return nil, err
	}

	data, err := canonicalJSON(body)
	if err != nil {
		logger.Errorf("Failed to encode JSON from %s: %v", url, err)
		return nil, newError(KindDecode, op, err)
	}

	path := models.RawPath(name)
	if err := f.Store.Put(ctx, path, "application/json", data); err != nil {
		logger.Errorf("Error uploading data for %s to %s: %v", name, path, err)
		return nil, newError(KindStorage, op, err)
	}
	logger.Infof("Data for %s uploaded to %s (%d bytes)", name, path, len(data))

	return &models.RawDocument{
		Source:    name,
		Path:      path,
		FetchedAt: f.now(),
		Body:      body,
	}, nil
}

// FetchAll fetches every configured endpoint. A failing endpoint does not stop
// the others; the returned map holds one entry per failed name.
func (f *Fetcher) FetchAll(ctx context.Context) map[string]error {
	names := make([]string, 0, len(f.Endpoints))
	for name := range f.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := make(map[string]error)
	for _, name := range names {
		if _, err := f.Fetch(ctx, name); err != nil {
			failed[name] = err
		}
	}
	return failed
}

func (f *Fetcher) get(ctx context.Context, op, url string) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Errorf("Invalid request for %s: %v", url, err)
		return nil, newError(KindConfiguration, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		if isTimeout(err) {
			logger.Errorf("Request to %s timed out.", url)
		} else {
			logger.Errorf("Request error occurred: %v", err)
		}
		return nil, newError(KindNetwork, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		statusErr := &StatusError{URL: url, Code: resp.StatusCode, Status: resp.Status}
		logger.Errorf("HTTP error occurred while accessing %s: %s", url, resp.Status)
		return nil, newError(KindHTTPStatus, op, statusErr)
	}

	body, err := decodeJSON(resp.Body)
	if err != nil {
		if isTimeout(err) {
			logger.Errorf("Request to %s timed out.", url)
			return nil, newError(KindNetwork, op, err)
		}
		logger.Errorf("Failed to decode JSON response from %s.", url)
		return nil, newError(KindDecode, op, err)
	}
	return body, nil
}

func (f *Fetcher) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

// decodeJSON reads exactly one JSON value, keeping numbers as json.Number.
func decodeJSON(r io.Reader) (interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

// canonicalJSON renders v with sorted keys and 4-space indentation.
func canonicalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
