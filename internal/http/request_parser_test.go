package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"saldo/internal/core"
)

func jsonRequest(body string) (*httptest.ResponseRecorder, *http.Request) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return httptest.NewRecorder(), r
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"valid object", `{"email":"a@b.c","password":"secret123"}`, nil},
		{"unknown fields are ignored", `{"email":"a@b.c","extra":1}`, nil},
		{"empty body", ``, errEmptyBody},
		{"array body", `[1,2]`, errMalformedBody},
		{"broken json", `{"email":`, errMalformedBody},
		{"trailing object", `{"email":"a"}{"email":"b"}`, errMalformedBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, r := jsonRequest(tt.body)
			var req credentialsRequest
			err := decodeJSON(w, r, &req)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("decodeJSON() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("decodeJSON() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeJSONTypeErrorNamesField(t *testing.T) {
	w, r := jsonRequest(`{"email": 42}`)
	var req credentialsRequest
	err := decodeJSON(w, r, &req)
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("error = %v, want validation error", err)
	}
	if !strings.Contains(core.Message(err), "email") {
		t.Errorf("message %q should name the field", core.Message(err))
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	w, r := jsonRequest(`{"notes":"` + strings.Repeat("x", maxBodyBytes) + `"}`)
	var req transactionRequest
	if err := decodeJSON(w, r, &req); !errors.Is(err, errBodyTooLarge) {
		t.Fatalf("error = %v, want errBodyTooLarge", err)
	}
}

func TestTransactionRequest(t *testing.T) {
	w, r := jsonRequest(`{"type":"Expense","amount":"12,50","description":"Lunch","date":"2024-03-05","tags":["food"]}`)
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		t.Fatalf("decodeJSON() error = %v", err)
	}
	tx, err := req.toTransaction()
	if err != nil {
		t.Fatalf("toTransaction() error = %v", err)
	}
	if tx.Type != core.Expense {
		t.Errorf("Type = %q, want expense", tx.Type)
	}
	if tx.Amount.Cents != 1250 {
		t.Errorf("Amount = %d cents, want 1250", tx.Amount.Cents)
	}
	if tx.Date.String() != "2024-03-05" {
		t.Errorf("Date = %s", tx.Date)
	}

	w, r = jsonRequest(`{"type":"expense","amount":1,"description":"x","date":"05/03/2024"}`)
	if err := decodeJSON(w, r, &req); !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("bad date error = %v, want ErrInvalidDate", err)
	}

	req = transactionRequest{Type: "transfer"}
	if _, err := req.toTransaction(); !errors.Is(err, core.ErrInvalidType) {
		t.Errorf("bad type error = %v, want ErrInvalidType", err)
	}
}

func TestParseTransactionPatch(t *testing.T) {
	t.Run("present keys only", func(t *testing.T) {
		w, r := jsonRequest(`{"amount": 9.99, "is_paid": true}`)
		patch, err := parseTransactionPatch(w, r)
		if err != nil {
			t.Fatalf("parseTransactionPatch() error = %v", err)
		}
		if patch.Amount == nil || patch.Amount.Cents != 999 {
			t.Errorf("Amount = %v, want 999 cents", patch.Amount)
		}
		if patch.IsPaid == nil || !*patch.IsPaid {
			t.Errorf("IsPaid = %v, want true", patch.IsPaid)
		}
		if patch.Description != nil || patch.CategoryID != nil || patch.ClearCategory {
			t.Errorf("absent keys must stay unset: %+v", patch)
		}
	})

	t.Run("null category clears it", func(t *testing.T) {
		w, r := jsonRequest(`{"category_id": null}`)
		patch, err := parseTransactionPatch(w, r)
		if err != nil {
			t.Fatalf("parseTransactionPatch() error = %v", err)
		}
		if !patch.ClearCategory || patch.CategoryID != nil {
			t.Errorf("expected ClearCategory, got %+v", patch)
		}
	})

	t.Run("category id is kept", func(t *testing.T) {
		w, r := jsonRequest(`{"category_id": "c-1", "notes": null, "tags": null}`)
		patch, err := parseTransactionPatch(w, r)
		if err != nil {
			t.Fatalf("parseTransactionPatch() error = %v", err)
		}
		if patch.CategoryID == nil || *patch.CategoryID != "c-1" {
			t.Errorf("CategoryID = %v", patch.CategoryID)
		}
		if patch.Notes == nil || *patch.Notes != "" {
			t.Errorf("null notes should clear: %v", patch.Notes)
		}
		if patch.Tags == nil || len(*patch.Tags) != 0 {
			t.Errorf("null tags should clear: %v", patch.Tags)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		for _, body := range []string{
			`{"type": "gift"}`,
			`{"amount": "abc"}`,
			`{"is_paid": "yes"}`,
			`{"date": "tomorrow"}`,
			`{"tags": "food"}`,
		} {
			w, r := jsonRequest(body)
			if _, err := parseTransactionPatch(w, r); !errors.Is(err, core.ErrValidation) {
				t.Errorf("%s: error = %v, want validation error", body, err)
			}
		}
	})

	t.Run("empty object yields empty patch", func(t *testing.T) {
		w, r := jsonRequest(`{}`)
		patch, err := parseTransactionPatch(w, r)
		if err != nil {
			t.Fatalf("parseTransactionPatch() error = %v", err)
		}
		if !patch.IsEmpty() {
			t.Errorf("expected empty patch, got %+v", patch)
		}
	})
}

func TestParseCategoryPatch(t *testing.T) {
	w, r := jsonRequest(`{"type":"INCOME","color":"#00FF00"}`)
	patch, err := parseCategoryPatch(w, r)
	if err != nil {
		t.Fatalf("parseCategoryPatch() error = %v", err)
	}
	if patch.Type == nil || *patch.Type != core.Income {
		t.Errorf("Type = %v, want income", patch.Type)
	}
	if patch.Name != nil {
		t.Errorf("Name should be unset")
	}
}

func TestParseTransactionFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		wantErr error
		check   func(t *testing.T, f core.TransactionFilter)
	}{
		{
			name:  "no filters",
			query: url.Values{},
			check: func(t *testing.T, f core.TransactionFilter) {
				if f.Limit != 0 || f.Offset != 0 || f.IsPaid != nil || f.StartDate != nil {
					t.Errorf("unexpected filter %+v", f)
				}
			},
		},
		{
			name: "all filters",
			query: url.Values{
				"start_date": {"2024-01-01"}, "end_date": {"2024-01-31"},
				"type": {"income"}, "category_id": {"c-1"}, "is_paid": {"false"},
				"limit": {"10"}, "offset": {"20"},
			},
			check: func(t *testing.T, f core.TransactionFilter) {
				if f.StartDate.String() != "2024-01-01" || f.EndDate.String() != "2024-01-31" {
					t.Errorf("dates = %v..%v", f.StartDate, f.EndDate)
				}
				if f.Type != core.Income || f.CategoryID != "c-1" {
					t.Errorf("type/category = %q/%q", f.Type, f.CategoryID)
				}
				if f.IsPaid == nil || *f.IsPaid {
					t.Errorf("IsPaid = %v, want false", f.IsPaid)
				}
				if f.Limit != 10 || f.Offset != 20 {
					t.Errorf("limit/offset = %d/%d", f.Limit, f.Offset)
				}
			},
		},
		{name: "bad date", query: url.Values{"start_date": {"2024-13-01"}}, wantErr: core.ErrInvalidDate},
		{name: "reversed range", query: url.Values{"start_date": {"2024-02-01"}, "end_date": {"2024-01-01"}}, wantErr: core.ErrInvalidDateRange},
		{name: "bad type", query: url.Values{"type": {"gift"}}, wantErr: core.ErrInvalidType},
		{name: "bad is_paid", query: url.Values{"is_paid": {"maybe"}}, wantErr: errInvalidIsPaid},
		{name: "bad limit", query: url.Values{"limit": {"ten"}}, wantErr: core.ErrInvalidPagination},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := parseTransactionFilter(tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTransactionFilter() error = %v", err)
			}
			tt.check(t, f)
		})
	}
}
