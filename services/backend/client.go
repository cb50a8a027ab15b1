// Package backend is the HTTP client for the registration REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lanos_go/config"
	"lanos_go/forms"
	"lanos_go/models"

	"github.com/sirupsen/logrus"
)

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func NewFromConfig(cfg *config.Config) *Client {
	return New(cfg.BackendBaseURL, cfg.BackendTimeout)
}

// APIError is a non-2xx reply. It satisfies forms.Rejection so the
// controller can show the server's message and field errors.
type APIError struct {
	Status  int
	Message string
	Errors  map[string]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend: HTTP error! status: %d", e.Status)
}

func (e *APIError) UserMessage() string            { return e.Message }
func (e *APIError) FieldErrors() map[string]string { return e.Errors }

var _ forms.Rejection = (*APIError)(nil)

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("backend: read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp.StatusCode, data)
		logrus.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("backend request rejected")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return nil
}

// decodeError reads {"message": "...", "errors": {...}}. errors may map a
// field to a string or to a list of strings.
func decodeError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}
	var raw struct {
		Message string                     `json:"message"`
		Errors  map[string]json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return apiErr
	}
	apiErr.Message = raw.Message
	if len(raw.Errors) == 0 {
		return apiErr
	}
	apiErr.Errors = make(map[string]string, len(raw.Errors))
	for field, msg := range raw.Errors {
		var s string
		if json.Unmarshal(msg, &s) == nil {
			apiErr.Errors[field] = s
			continue
		}
		var list []string
		if json.Unmarshal(msg, &list) == nil {
			apiErr.Errors[field] = strings.Join(list, ", ")
		}
	}
	return apiErr
}

// Create posts a new record and returns the generated id, if any.
func (c *Client) Create(ctx context.Context, endpoint string, payload map[string]any) (forms.Receipt, error) {
	var out struct {
		ID models.RemoteID `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, nil, payload, &out); err != nil {
		return forms.Receipt{}, err
	}
	return forms.Receipt{ID: string(out.ID)}, nil
}

// Exists calls an existence check such as /registrations/check-email?email=.
func (c *Client) Exists(ctx context.Context, endpoint, param, value string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, url.Values{param: {value}}, nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// Options fetches a list of select values.
func (c *Client) Options(ctx context.Context, endpoint string) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Registrations(ctx context.Context) ([]models.RegistrationRecord, error) {
	var out []models.RegistrationRecord
	err := c.do(ctx, http.MethodGet, "/registrations", nil, nil, &out)
	return out, err
}

func (c *Client) Statistics(ctx context.Context) (models.RegistrationStatistics, error) {
	var out models.RegistrationStatistics
	err := c.do(ctx, http.MethodGet, "/registrations/statistics", nil, nil, &out)
	return out, err
}

func (c *Client) ReferralCodes(ctx context.Context) ([]models.ReferralCode, error) {
	var out []models.ReferralCode
	err := c.do(ctx, http.MethodGet, "/referral-codes", nil, nil, &out)
	return out, err
}

// ValidateReferral asks the backend whether code is a known, active code.
// A 404 is reported as an invalid code rather than an error.
func (c *Client) ValidateReferral(ctx context.Context, code string) (models.ReferralValidation, error) {
	var out models.ReferralValidation
	err := c.do(ctx, http.MethodGet, "/referral-codes/validate/"+url.PathEscape(code), nil, nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return models.ReferralValidation{Valid: false, Message: apiErr.Message}, nil
	}
	return out, err
}

// Ping checks that the API answers. Any reply below 500 counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/registrations/statistics", nil, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return nil
	}
	return err
}
