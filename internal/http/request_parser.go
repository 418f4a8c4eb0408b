// Package http provides the JSON HTTP surface of the service.
//
// This file implements utilities for parsing and validating request bodies
// and query strings into domain values.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"saldo/internal/core"
)

const maxBodyBytes = 1 << 20

var (
	errEmptyBody     = &core.Error{Kind: core.ErrValidation, Message: "request body is required"}
	errMalformedBody = &core.Error{Kind: core.ErrValidation, Message: "request body must be a JSON object"}
	errBodyTooLarge  = &core.Error{Kind: core.ErrValidation, Message: "request body too large"}
	errInvalidIsPaid = &core.Error{Kind: core.ErrValidation, Message: "is_paid must be true or false"}
)

// readBody reads at most maxBodyBytes and rejects empty bodies.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, errMalformedBody
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errEmptyBody
	}
	return body, nil
}

// decodeJSON decodes a single JSON object from the request body into v.
// Errors raised by domain types keep their message.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return unmarshalObject(body, v)
}

func unmarshalObject(body []byte, v any) error {
	if len(body) == 0 || body[0] != '{' {
		return errMalformedBody
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return bodyError(err)
	}
	if dec.More() {
		return errMalformedBody
	}
	return nil
}

func bodyError(err error) error {
	if core.IsKnown(err) {
		return err
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return core.Errorf(core.ErrValidation, "invalid value for %s", typeErr.Field)
	}
	return errMalformedBody
}

// credentialsRequest is the body of POST /login.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registrationRequest is the body of POST /users.
type registrationRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	core.ProfilePatch
}

// changeStaffRequest is the body of POST /admin.
type changeStaffRequest struct {
	Action  string `json:"action"`
	UserID  string `json:"user_id"`
	IsStaff *bool  `json:"is_staff"`
}

type categoryRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

func (c categoryRequest) toCategory() (core.Category, error) {
	typ, err := core.ParseTransactionType(c.Type)
	if err != nil {
		return core.Category{}, err
	}
	return core.NewCategory("", c.Name, typ, c.Color, c.Icon), nil
}

// parseCategoryPatch decodes a partial category. The type is matched
// case-insensitively like on create.
func parseCategoryPatch(w http.ResponseWriter, r *http.Request) (core.CategoryPatch, error) {
	var req struct {
		Name  *string `json:"name"`
		Type  *string `json:"type"`
		Color *string `json:"color"`
		Icon  *string `json:"icon"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		return core.CategoryPatch{}, err
	}
	patch := core.CategoryPatch{Name: req.Name, Color: req.Color, Icon: req.Icon}
	if req.Type != nil {
		typ, err := core.ParseTransactionType(*req.Type)
		if err != nil {
			return core.CategoryPatch{}, err
		}
		patch.Type = &typ
	}
	return patch, nil
}

type transactionRequest struct {
	Type        string     `json:"type"`
	Amount      core.Money `json:"amount"`
	Description string     `json:"description"`
	Date        *core.Date `json:"date"`
	CategoryID  *string    `json:"category_id"`
	Tags        []string   `json:"tags"`
	Notes       *string    `json:"notes"`
	IsPaid      bool       `json:"is_paid"`
}

func (t transactionRequest) toTransaction() (core.Transaction, error) {
	typ, err := core.ParseTransactionType(t.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		Type:        typ,
		Amount:      t.Amount,
		Description: t.Description,
		CategoryID:  t.CategoryID,
		Tags:        t.Tags,
		Notes:       t.Notes,
		IsPaid:      t.IsPaid,
	}
	if t.Date != nil {
		tx.Date = *t.Date
	}
	return tx, nil
}

// parseTransactionPatch decodes a partial transaction. Only keys present in
// the body are applied; "category_id": null (or "") clears the category and
// "notes": null clears the notes.
func parseTransactionPatch(w http.ResponseWriter, r *http.Request) (core.TransactionPatch, error) {
	body, err := readBody(w, r)
	if err != nil {
		return core.TransactionPatch{}, err
	}
	var fields map[string]json.RawMessage
	if err := unmarshalObject(body, &fields); err != nil {
		return core.TransactionPatch{}, err
	}

	var patch core.TransactionPatch
	for key, raw := range fields {
		isNull := string(raw) == "null"
		switch key {
		case "type":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return patch, core.ErrInvalidType
			}
			typ, err := core.ParseTransactionType(s)
			if err != nil {
				return patch, err
			}
			patch.Type = &typ
		case "amount":
			var m core.Money
			if err := json.Unmarshal(raw, &m); err != nil {
				return patch, bodyError(err)
			}
			patch.Amount = &m
		case "description":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return patch, core.ErrEmptyDescription
			}
			patch.Description = &s
		case "date":
			var d core.Date
			if err := json.Unmarshal(raw, &d); err != nil {
				return patch, core.ErrInvalidDate
			}
			patch.Date = &d
		case "category_id":
			var s string
			if !isNull {
				if err := json.Unmarshal(raw, &s); err != nil {
					return patch, core.Errorf(core.ErrValidation, "category_id must be a string or null")
				}
			}
			if strings.TrimSpace(s) == "" {
				patch.ClearCategory = true
			} else {
				patch.CategoryID = &s
			}
		case "tags":
			tags := []string{}
			if !isNull {
				if err := json.Unmarshal(raw, &tags); err != nil {
					return patch, core.Errorf(core.ErrValidation, "tags must be a list of strings")
				}
			}
			patch.Tags = &tags
		case "notes":
			var s string
			if !isNull {
				if err := json.Unmarshal(raw, &s); err != nil {
					return patch, core.Errorf(core.ErrValidation, "notes must be a string or null")
				}
			}
			patch.Notes = &s
		case "is_paid":
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return patch, errInvalidIsPaid
			}
			patch.IsPaid = &b
		}
	}
	return patch, nil
}

// parseTransactionFilter reads the list filters from the query string.
func parseTransactionFilter(q url.Values) (core.TransactionFilter, error) {
	var f core.TransactionFilter

	start, end, err := parseDateRange(q)
	if err != nil {
		return f, err
	}
	f.StartDate, f.EndDate = start, end

	if v := strings.TrimSpace(q.Get("type")); v != "" {
		typ, err := core.ParseTransactionType(v)
		if err != nil {
			return f, err
		}
		f.Type = typ
	}
	f.CategoryID = strings.TrimSpace(q.Get("category_id"))

	if v := strings.TrimSpace(q.Get("is_paid")); v != "" {
		paid, err := strconv.ParseBool(v)
		if err != nil {
			return f, errInvalidIsPaid
		}
		f.IsPaid = &paid
	}

	if f.Limit, err = parseIntParam(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseIntParam(q, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

// parseDateRange reads the inclusive start_date and end_date parameters.
func parseDateRange(q url.Values) (start, end *core.Date, err error) {
	if v := strings.TrimSpace(q.Get("start_date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return nil, nil, err
		}
		start = &d
	}
	if v := strings.TrimSpace(q.Get("end_date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return nil, nil, err
		}
		end = &d
	}
	if start != nil && end != nil && start.After(end.Time) {
		return nil, nil, core.ErrInvalidDateRange
	}
	return start, end, nil
}

func parseIntParam(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.ErrInvalidPagination
	}
	return n, nil
}
