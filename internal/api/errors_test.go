package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"hotelstock/server/internal/services"

	"github.com/gin-gonic/gin"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name string
		err  error
		code int
		tag  string
	}{
		{"validation", &services.ValidationError{Field: "partial_units", Constraint: "0..11"}, http.StatusBadRequest, "validation_error"},
		{"wrapped not found", fmt.Errorf("строка: %w", services.ErrNotFound), http.StatusNotFound, "not_found"},
		{"duplicate period", services.ErrDuplicatePeriod, http.StatusConflict, "duplicate_period"},
		{"already populated", services.ErrAlreadyPopulated, http.StatusConflict, "already_populated"},
		{"not approved", services.ErrStocktakeNotApproved, http.StatusConflict, "stocktake_not_approved"},
		{"locked", services.ErrStocktakeLocked, http.StatusLocked, "stocktake_locked"},
		{"not linked", services.ErrNotLinked, http.StatusUnprocessableEntity, "not_linked"},
		{"permission", services.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
		{"integrity", services.ErrPeriodIntegrity, http.StatusInternalServerError, "period_integrity"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tc.err)

			if w.Code != tc.code {
				t.Fatalf("expected status %d, got %d", tc.code, w.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["code"] != tc.tag {
				t.Fatalf("expected code %q, got %v", tc.tag, body["code"])
			}
		})
	}
}

func TestRespondErrorValidationNamesField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPut, "/", nil)

	respondError(c, fmt.Errorf("подсчет: %w", &services.ValidationError{Field: "partial_units", Constraint: "от 0 до 87"}))

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["field"] != "partial_units" || body["constraint"] != "от 0 до 87" {
		t.Fatalf("unexpected validation body: %v", body)
	}
}
