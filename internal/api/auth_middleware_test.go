package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims StaffClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newScopedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	hotels := r.Group("/hotels/:hotel_id", JWTMiddleware(testSecret), HotelScope())
	hotels.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"staff_id": staffIDFrom(c)})
	})
	hotels.POST("/close", RequireManager(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func doRequest(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddlewareRejectsMissingAndForeignTokens(t *testing.T) {
	r := newScopedRouter()

	if w := doRequest(r, http.MethodGet, "/hotels/h1/ping", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: expected 401, got %d", w.Code)
	}

	foreign := signToken(t, "other-secret", StaffClaims{StaffID: "s1", HotelID: "h1"})
	if w := doRequest(r, http.MethodGet, "/hotels/h1/ping", foreign); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", w.Code)
	}

	expired := signToken(t, testSecret, StaffClaims{
		StaffID:          "s1",
		HotelID:          "h1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	if w := doRequest(r, http.MethodGet, "/hotels/h1/ping", expired); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d", w.Code)
	}

	noStaff := signToken(t, testSecret, StaffClaims{HotelID: "h1"})
	if w := doRequest(r, http.MethodGet, "/hotels/h1/ping", noStaff); w.Code != http.StatusUnauthorized {
		t.Fatalf("token without staff: expected 401, got %d", w.Code)
	}
}

func TestHotelScopeLimitsStaffToOwnHotel(t *testing.T) {
	r := newScopedRouter()
	token := signToken(t, testSecret, StaffClaims{StaffID: "s1", HotelID: "h1"})

	if w := doRequest(r, http.MethodGet, "/hotels/h1/ping", token); w.Code != http.StatusOK {
		t.Fatalf("own hotel: expected 200, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/hotels/h2/ping", token); w.Code != http.StatusForbidden {
		t.Fatalf("other hotel: expected 403, got %d", w.Code)
	}

	super := signToken(t, testSecret, StaffClaims{StaffID: "root", HotelID: "h1", IsSuperuser: true})
	if w := doRequest(r, http.MethodGet, "/hotels/h2/ping", super); w.Code != http.StatusOK {
		t.Fatalf("superuser: expected 200, got %d", w.Code)
	}
}

func TestRequireManager(t *testing.T) {
	r := newScopedRouter()

	bartender := signToken(t, testSecret, StaffClaims{StaffID: "s1", HotelID: "h1", Role: "bartender"})
	if w := doRequest(r, http.MethodPost, "/hotels/h1/close", bartender); w.Code != http.StatusForbidden {
		t.Fatalf("bartender: expected 403, got %d", w.Code)
	}

	manager := signToken(t, testSecret, StaffClaims{StaffID: "m1", HotelID: "h1", IsManager: true})
	if w := doRequest(r, http.MethodPost, "/hotels/h1/close", manager); w.Code != http.StatusNoContent {
		t.Fatalf("manager: expected 204, got %d", w.Code)
	}
}

func TestParseStaffTokenRejectsNoneAlgorithm(t *testing.T) {
	claims := StaffClaims{StaffID: "s1", HotelID: "h1"}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseStaffToken(testSecret, unsigned); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}
