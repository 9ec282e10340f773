package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const testKey = "test-signing-key"

func TestIssueAndParse(t *testing.T) {
	n, err := Issue("op-7", RoleAdmin, "qr-attendance", testKey, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !n.IsAdmin {
		t.Error("admin nonce should report IsAdmin")
	}
	claims, err := Parse(n.Token, testKey, "qr-attendance")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "op-7" || !claims.IsAdmin() {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := Parse(n.Token, "other-key", "qr-attendance"); err == nil {
		t.Error("expected signature error")
	}
	if _, err := Parse(n.Token, testKey, "someone-else"); err == nil {
		t.Error("expected issuer mismatch")
	}
}

func TestParseExpired(t *testing.T) {
	n, err := Issue("op-7", RoleOperator, "", testKey, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(n.Token, testKey, ""); err == nil {
		t.Fatal("expected expired nonce to fail")
	}
}

func TestIssuerLogin(t *testing.T) {
	iss := Issuer{Name: "qr", Key: testKey, TTL: time.Hour, OperatorKey: "gate", AdminKey: "office"}

	op, err := iss.Login("op-1", "gate")
	if err != nil || op.IsAdmin {
		t.Fatalf("operator login = %+v, %v", op, err)
	}
	admin, err := iss.Login("op-2", "office")
	if err != nil || !admin.IsAdmin {
		t.Fatalf("admin login = %+v, %v", admin, err)
	}
	if _, err := iss.Login("op-3", "nope"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
	if _, err := (Issuer{Key: testKey}).Login("op-4", ""); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("empty key err = %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/scan", RequireNonce(testKey, "qr"), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Subject)
	})
	r.GET("/report", RequireNonce(testKey, "qr"), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	op, _ := Issue("op-1", RoleOperator, "qr", testKey, time.Hour)
	admin, _ := Issue("op-2", RoleAdmin, "qr", testKey, time.Hour)

	cases := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"missing", "/scan", "", "", http.StatusUnauthorized},
		{"garbage", "/scan", NonceHeader, "abc", http.StatusUnauthorized},
		{"nonce header", "/scan", NonceHeader, op.Token, http.StatusOK},
		{"bearer", "/scan", "Authorization", "Bearer " + op.Token, http.StatusOK},
		{"operator on admin route", "/report", NonceHeader, op.Token, http.StatusForbidden},
		{"admin on admin route", "/report", NonceHeader, admin.Token, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}
