package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"catalog-rules-service/internal/domain"
	"catalog-rules-service/internal/engine"
	"catalog-rules-service/internal/rule"
	"catalog-rules-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func postRule(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url+"/api/v1/rules/apply", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return res
}

func TestHTTPHandler_GetProductByID_Found(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore, nil)
	defer server.Close()

	product := &domain.Product{ID: 7, SKU: "TS-001", Name: "Tee", Price: decimal.RequireFromString("19.99")}
	product.AddCategory(&domain.Category{ID: 10, Code: "tshirts", RootID: PtrTo(int64(1))})
	mockProdStore.On("GetProductByID", mock.Anything, int64(7)).Return(product, nil).Once()

	res, err := http.Get(server.URL + "/api/v1/products/7")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var got domain.Product
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, "TS-001", got.SKU)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, []int64{10}, got.CategoryIDs())

	mockProdStore.AssertExpectations(t)
}

func TestHTTPHandler_GetProductByID_NotFound(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore, nil)
	defer server.Close()

	mockProdStore.On("GetProductByID", mock.Anything, int64(404)).Return(nil, store.ErrProductNotFound).Once()

	res, err := http.Get(server.URL + "/api/v1/products/404")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	mockProdStore.AssertExpectations(t)
}

func TestHTTPHandler_ApplyRule_Success(t *testing.T) {
	mockRunner := new(MockRuleRunner)
	server := setupTestChiServer(t, nil, nil, mockRunner)
	defer server.Close()

	product := &domain.Product{ID: 1, SKU: "TS-001"}
	product.AddCategory(&domain.Category{ID: 20, Code: "shoes", RootID: PtrTo(int64(2))})

	mockRunner.On("Run", mock.Anything, mock.MatchedBy(func(req engine.RunRequest) bool {
		if req.Rule.Code() != "summer" || req.Rule.Len() != 2 || req.DryRun {
			return false
		}
		actions := req.Rule.Actions()
		add, ok := actions[0].(rule.AddCategoryAction)
		if !ok || add.CategoryCode != "shoes" {
			return false
		}
		set, ok := actions[1].(rule.SetCategoryAction)
		return ok && set.CategoryCode == "shoes" && set.TreeCode == "sales" &&
			assert.ObjectsAreEqual([]int64{1, 2}, req.ProductIDs)
	})).Return(&engine.RunResult{
		RunID:    "run-1",
		RuleCode: "summer",
		Products: []*domain.Product{product},
	}, nil).Once()

	res := postRule(t, server.URL, `{
		"product_ids": [1, 2],
		"rule": {"code": "summer", "actions": [
			{"type": "add_category", "value": "shoes"},
			{"type": "set_category", "value": "shoes", "tree": "sales"}
		]}
	}`)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var payload struct {
		RunID    string           `json:"run_id"`
		Rule     string           `json:"rule"`
		DryRun   bool             `json:"dry_run"`
		Products []domain.Product `json:"products"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	assert.Equal(t, "run-1", payload.RunID)
	assert.Equal(t, "summer", payload.Rule)
	require.Len(t, payload.Products, 1)
	assert.Equal(t, []int64{20}, payload.Products[0].CategoryIDs())

	mockRunner.AssertExpectations(t)
}

func TestHTTPHandler_ApplyRule_DryRunForwarded(t *testing.T) {
	mockRunner := new(MockRuleRunner)
	server := setupTestChiServer(t, nil, nil, mockRunner)
	defer server.Close()

	mockRunner.On("Run", mock.Anything, mock.MatchedBy(func(req engine.RunRequest) bool {
		return req.DryRun
	})).Return(&engine.RunResult{RunID: "run-2", RuleCode: "r", DryRun: true}, nil).Once()

	res := postRule(t, server.URL, `{"product_ids":[1],"dry_run":true,"rule":{"code":"r","actions":[{"type":"set_value","field":"color","value":"red"}]}}`)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	mockRunner.AssertExpectations(t)
}

func TestHTTPHandler_ApplyRule_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "malformed json", body: `{"product_ids":`, want: "Invalid request payload"},
		{name: "no products", body: `{"product_ids":[],"rule":{"code":"r"}}`, want: "Validation failed"},
		{name: "non-positive id", body: `{"product_ids":[0],"rule":{"code":"r"}}`, want: "Validation failed"},
		{name: "missing rule code", body: `{"product_ids":[1],"rule":{"actions":[]}}`, want: "Validation failed"},
		{name: "unsupported action kind", body: `{"product_ids":[1],"rule":{"code":"r","actions":[{"type":"remove_category","value":"x"}]}}`, want: "Invalid rule"},
		{name: "invalid action", body: `{"product_ids":[1],"rule":{"code":"r","actions":[{"type":"add_category"}]}}`, want: "Invalid rule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRunner := new(MockRuleRunner)
			server := setupTestChiServer(t, nil, nil, mockRunner)
			defer server.Close()

			res := postRule(t, server.URL, tt.body)
			defer res.Body.Close()

			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(res.Body).Decode(&errResp))
			assert.Contains(t, errResp.Error, tt.want)
			mockRunner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
		})
	}
}

func TestHTTPHandler_ApplyRule_RunErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "category not found",
			err:        &rule.CategoryNotFoundError{Code: "ghost"},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "ghost",
		},
		{
			name:       "product not found",
			err:        fmt.Errorf("engine: loading products: %w", store.ErrProductNotFound),
			wantStatus: http.StatusNotFound,
			wantMsg:    store.ErrProductNotFound.Error(),
		},
		{
			name:       "batch too large",
			err:        fmt.Errorf("%w: 3 > 2", engine.ErrBatchTooLarge),
			wantStatus: http.StatusBadRequest,
			wantMsg:    engine.ErrBatchTooLarge.Error(),
		},
		{
			name:       "unexpected failure is hidden",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to apply rule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRunner := new(MockRuleRunner)
			server := setupTestChiServer(t, nil, nil, mockRunner)
			defer server.Close()

			mockRunner.On("Run", mock.Anything, mock.AnythingOfType("engine.RunRequest")).Return(nil, tt.err).Once()

			res := postRule(t, server.URL, `{"product_ids":[1],"rule":{"code":"r","actions":[{"type":"add_category","value":"ghost"}]}}`)
			defer res.Body.Close()

			assert.Equal(t, tt.wantStatus, res.StatusCode)
			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(res.Body).Decode(&errResp))
			assert.Contains(t, errResp.Error, tt.wantMsg)
			mockRunner.AssertExpectations(t)
		})
	}
}

func TestHTTPStatusForRunError_Canceled(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, httpStatusForRunError(context.Canceled))
}
