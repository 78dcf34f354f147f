package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := ValidationError{
		Field:   "name",
		Value:   "",
		Message: "field is required",
	}

	expected := "validation error on field 'name': field is required (got: )"
	assert.Equal(t, expected, err.Error())
}

func TestValidationErrors(t *testing.T) {
	sentinel := errors.New("sentinel")
	errs := ValidationErrors{
		{Field: "name", Value: "", Message: "field is required"},
		{Field: "limit", Value: -1, Message: "must be positive", Err: sentinel},
	}

	expected := "validation error on field 'name': field is required (got: ); validation error on field 'limit': must be positive (got: -1)"
	assert.Equal(t, expected, errs.Error())
	assert.ErrorIs(t, errs, sentinel)
	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
}

type renameRequest struct {
	NodeID string `json:"nodeId" validate:"required,node_id"`
	Name   string `json:"name" validate:"required,max=10"`
}

type portRequest struct {
	NodeID string `json:"nodeId"`
	Ref    string `json:"ref" validate:"port_ref=NodeID"`
}

type checkedRequest struct {
	Value int `json:"value"`
}

func (c *checkedRequest) Validate() error {
	if c.Value%2 != 0 {
		return ValidationErrors{{Field: "value", Value: c.Value, Message: "must be even"}}
	}
	return nil
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(&renameRequest{NodeID: "node-1", Name: "Start"}))
		assert.NoError(t, ValidateStruct(&renameRequest{NodeID: "has space", Name: "Start"}))
	})

	t.Run("json field names", func(t *testing.T) {
		err := ValidateStruct(&renameRequest{Name: "far too long a name"})
		var ve ValidationErrors
		require.ErrorAs(t, err, &ve)
		require.Len(t, ve, 2)
		assert.Equal(t, "nodeId", ve[0].Field)
		assert.Equal(t, "field is required", ve[0].Message)
		assert.Equal(t, "name", ve[1].Field)
		assert.Equal(t, "maximum value/length is 10", ve[1].Message)
	})

	t.Run("port reference", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(&portRequest{NodeID: "a", Ref: "a-out"}))
		assert.Error(t, ValidateStruct(&portRequest{NodeID: "a", Ref: "b-out"}))
		assert.Error(t, ValidateStruct(&portRequest{NodeID: "a", Ref: "a-"}))
	})

	t.Run("custom validator", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(&checkedRequest{Value: 2}))
		assert.Error(t, ValidateStruct(&checkedRequest{Value: 3}))
	})
}

func TestMiddleware_ValidateJSON(t *testing.T) {
	m := NewMiddleware(0)
	var got *renameRequest
	handler := m.ValidateJSON(renameRequest{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = Body[renameRequest](r)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{"valid", `{"nodeId":"a","name":"A"}`, http.StatusNoContent, ""},
		{"malformed", `{"nodeId":`, http.StatusBadRequest, "request_body"},
		{"missing name", `{"nodeId":"a"}`, http.StatusBadRequest, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantField == "" {
				require.NotNil(t, got)
				assert.Equal(t, "a", got.NodeID)
				return
			}
			assert.Nil(t, got)
			var resp struct {
				Errors []ValidationError `json:"errors"`
				Count  int               `json:"count"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotEmpty(t, resp.Errors)
			assert.Equal(t, tt.wantField, resp.Errors[0].Field)
			assert.Equal(t, len(resp.Errors), resp.Count)
		})
	}
}

func TestMiddleware_DecodeJSON(t *testing.T) {
	m := NewMiddleware(0)
	var got *checkedRequest
	handler := m.DecodeJSON(checkedRequest{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = Body[checkedRequest](r)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", bytes.NewBufferString(`{"value":3}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code, "rules are left to the handler")
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Value)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", bytes.NewBufferString(`{"value":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
