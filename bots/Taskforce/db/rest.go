package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

const (
	restPrefix     = "/rest/v1/"
	defaultTimeout = 10 * time.Second
)

// RESTStore talks to a PostgREST endpoint (e.g. Supabase).
type RESTStore struct {
	client  *fasthttp.Client
	baseURL string
	apiKey  string
	timeout time.Duration
}

// NewRESTStore creates a store for the PostgREST server at baseURL.
func NewRESTStore(baseURL, apiKey string, timeout time.Duration) *RESTStore {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &RESTStore{
		client:  &fasthttp.Client{Name: "taskforce-bot"},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
	}
}

func (s *RESTStore) Do(ctx context.Context, q Query) ([]Row, error) {
	if _, err := q.validate(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL + restPrefix + q.Collection)
	s.authorize(req)

	args := req.URI().QueryArgs()
	for _, f := range q.Filters {
		args.Add(f.Field, string(f.Op)+"."+restValue(f.Value))
	}

	switch q.Verb {
	case VerbRead:
		req.Header.SetMethod(fasthttp.MethodGet)
		args.Add("select", "*")
		if q.OrderBy != "" {
			args.Add("order", q.OrderBy+".asc")
		}

	case VerbCreate, VerbUpsert:
		body, err := json.Marshal(q.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed encoding payload")
		}
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		req.SetBody(body)

		prefer := "return=representation"
		if q.Verb == VerbUpsert {
			args.Add("on_conflict", q.ConflictKey)
			prefer = "resolution=merge-duplicates," + prefer
		}
		req.Header.Set("Prefer", prefer)

	case VerbDelete:
		req.Header.SetMethod(fasthttp.MethodDelete)
	}

	if err := s.do(ctx, req, resp); err != nil {
		return nil, errors.Wrapf(err, "failed to %s %s", q.Verb, q.Collection)
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, errors.Errorf("failed to %s %s: store responded %d: %s",
			q.Verb, q.Collection, code, bytes.TrimSpace(resp.Body()))
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 || q.Verb == VerbDelete {
		return nil, nil
	}

	var rows []Row
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, errors.Wrapf(err, "failed decoding %s", q.Collection)
	}
	return rows, nil
}

// Ping checks that the server answers at all; any non-5xx status will do.
func (s *RESTStore) Ping(ctx context.Context) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL + restPrefix)
	req.Header.SetMethod(fasthttp.MethodGet)
	s.authorize(req)

	if err := s.do(ctx, req, resp); err != nil {
		return err
	}
	if resp.StatusCode() >= 500 {
		return errors.Errorf("store responded %d", resp.StatusCode())
	}
	return nil
}

func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *RESTStore) authorize(req *fasthttp.Request) {
	if s.apiKey == "" {
		return
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
}

func (s *RESTStore) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		return s.client.DoDeadline(req, resp, deadline)
	}
	return s.client.DoTimeout(req, resp, s.timeout)
}

func restValue(v any) string {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
