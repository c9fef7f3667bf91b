package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

const maxErrorBody = 4096

// SIS is what the sync engine needs from the remote system.
type SIS interface {
	ImportGrades(ctx context.Context, req model.GradeImportRequest) (*model.GradeImportResponse, error)
	Enrollments(ctx context.Context, term, courseCode string) (*model.EnrollmentsResponse, error)
	Users(ctx context.Context, ids []string) (*model.UsersResponse, error)
}

type Client struct {
	cfg        config.SISConfig
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg config.SISConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.For("sis_client"),
	}
}

// Call sends one request and decodes a 2xx JSON body into out. Network
// failures come back as TransportError, non-2xx as HTTPError and bad JSON as
// DecodeError. Nothing is retried.
func (c *Client) Call(ctx context.Context, method, path string, body, out interface{}) error {
	target := strings.TrimRight(c.cfg.BaseURL, "/") + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		if c.cfg.DebugMode {
			c.log.Debug().Str("method", method).Str("url", target).RawJSON("request", payload).Msg("SIS API call")
		}
		reader = bytes.NewReader(payload)
	} else if c.cfg.DebugMode {
		c.log.Debug().Str("method", method).Str("url", target).Msg("SIS API call")
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errors.TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errors.TransportError{Method: method, URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		c.log.Warn().Str("method", method).Str("url", target).Int("status", resp.StatusCode).Msg("SIS returned error status")
		return &errors.HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &errors.DecodeError{Err: err}
	}
	if c.cfg.DebugMode {
		c.log.Debug().Str("url", target).Int("status", resp.StatusCode).Bytes("response", raw).Msg("SIS API response")
	}
	return nil
}

// Ping reports whether the SIS answers at all. Any HTTP status counts as
// reachable.
func (c *Client) Ping(ctx context.Context) error {
	err := c.Call(ctx, http.MethodGet, "/", nil, nil)
	var he *errors.HTTPError
	if errors.As(err, &he) {
		return nil
	}
	return err
}

func (c *Client) ImportGrades(ctx context.Context, req model.GradeImportRequest) (*model.GradeImportResponse, error) {
	var out model.GradeImportResponse
	if err := c.Call(ctx, http.MethodPost, "/api/grades/import", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Enrollments(ctx context.Context, term, courseCode string) (*model.EnrollmentsResponse, error) {
	q := url.Values{}
	if term != "" {
		q.Set("term", term)
	}
	if courseCode != "" {
		q.Set("course_code", courseCode)
	}
	path := "/api/enrollments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out model.EnrollmentsResponse
	if err := c.Call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Users(ctx context.Context, ids []string) (*model.UsersResponse, error) {
	path := "/api/users"
	if len(ids) > 0 {
		path += "?" + url.Values{"user_ids": {strings.Join(ids, ",")}}.Encode()
	}

	var out model.UsersResponse
	if err := c.Call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
