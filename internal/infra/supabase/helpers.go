package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
)

// ============================================================
// PostgREST helpers for GET, POST, PATCH and DELETE
// ============================================================

func (c *Client) restURL(path string) string {
	return fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	return c.send(ctx, http.MethodGet, c.restURL(path), nil, nil)
}

// doPost inserts rows. upsert merges on the given conflict column.
func (c *Client) doPost(ctx context.Context, path string, data any, upsert bool) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	prefer := "return=representation"
	if upsert {
		prefer = "resolution=merge-duplicates,return=representation"
	}
	return c.send(ctx, http.MethodPost, c.restURL(path), bytes.NewReader(jsonBody), map[string]string{"Prefer": prefer})
}

func (c *Client) doPatch(ctx context.Context, path string, data any) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, http.MethodPatch, c.restURL(path), bytes.NewReader(jsonBody), map[string]string{"Prefer": "return=representation"})
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	_, err := c.send(ctx, http.MethodDelete, c.restURL(path), nil, nil)
	return err
}

// decodeRows decodes a PostgREST array; an empty body decodes to nil.
func decodeRows[T any](body []byte, what string) ([]T, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return rows, nil
}

// decodeFirst returns the first row or nil.
func decodeFirst[T any](body []byte, what string) (*T, error) {
	rows, err := decodeRows[T](body, what)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

var zeroTime = time.Time{}.Format(time.RFC3339Nano)

// insertPayload turns a domain row into an insert body, leaving out the
// columns the database fills (empty id, zero timestamps) and embedded
// relations.
func insertPayload(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	for k, val := range row {
		switch x := val.(type) {
		case nil:
			delete(row, k)
		case string:
			if (k == "id" && x == "") || x == zeroTime {
				delete(row, k)
			}
		}
	}
	delete(row, "companies")
	return row, nil
}

func eq(v string) string {
	return "eq." + url.QueryEscape(v)
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ============================================================
// API errors
// ============================================================

// APIError is a non-2xx answer from PostgREST, GoTrue or Storage.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
	// GoTrue answers use these names instead.
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Msg
	}
	if msg == "" {
		msg = e.ErrorDescription
	}
	return fmt.Sprintf("supabase returned status %d: %s %s", e.Status, e.Code, msg)
}

// ClientError marks 4xx answers as caused by the request.
func (e *APIError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

var fkColumnRe = regexp.MustCompile(`Key \(([a-z0-9_]+)\)=`)

// DomainError maps well-known Postgres and auth codes to domain errors.
func (e *APIError) DomainError() error {
	switch e.Code {
	case "23505":
		return &domain.ErrDuplicate{Key: e.Details}
	case "23503":
		column := ""
		if m := fkColumnRe.FindStringSubmatch(e.Details); len(m) == 2 {
			column = m[1]
		}
		return &domain.ErrForeignKey{Column: column, Details: e.Details}
	}
	switch {
	case e.Status == http.StatusUnauthorized, e.ErrorCode == "invalid_credentials",
		e.ErrorCode == "bad_jwt", e.ErrorCode == "session_not_found":
		return &domain.ErrUnauthorized{Message: "Credenciales inválidas o sesión expirada"}
	case e.ErrorCode == "user_already_exists":
		return &domain.ErrConflict{Message: "Ya existe una cuenta con este correo"}
	case e.ErrorCode == "weak_password":
		return &domain.ErrValidation{Field: "password", Message: "La contraseña es demasiado débil"}
	case e.Status == http.StatusForbidden:
		return &domain.ErrForbidden{Action: e.Message}
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
	}
	apiErr.Status = status
	if apiErr.Message == "" && apiErr.Msg == "" && apiErr.ErrorDescription == "" {
		apiErr.Message = string(body)
	}
	return apiErr
}
