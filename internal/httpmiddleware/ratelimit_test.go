package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTokenBucketRefill(t *testing.T) {
	clock := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return clock }

	if !l.allow("a") || !l.allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.allow("a") {
		t.Fatal("third request should be limited")
	}
	if !l.allow("b") {
		t.Fatal("keys are limited independently")
	}

	clock = clock.Add(2 * time.Second)
	if !l.allow("a") {
		t.Fatal("tokens should refill after two seconds at 60/min")
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	l := NewSimpleTokenBucket(0, 0)
	for i := 0; i < 100; i++ {
		if !l.allow("a") {
			t.Fatal("zero rate disables limiting")
		}
	}
}

func TestGinMiddlewareUsesKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewSimpleTokenBucket(1, 1)
	r := gin.New()
	r.Use(l.GinMiddleware(func(c *gin.Context) string { return c.GetHeader("X-Operator") }))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(op string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Operator", op)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	if do("gate-1") != http.StatusOK {
		t.Fatal("first request should pass")
	}
	if do("gate-1") != http.StatusTooManyRequests {
		t.Fatal("second request from same key should be limited")
	}
	if do("gate-2") != http.StatusOK {
		t.Fatal("other key should pass")
	}
}

func TestTokenBucketPrunesIdleKeys(t *testing.T) {
	clock := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return clock }

	for i := 0; i < pruneAt; i++ {
		l.allow("ip:" + strconv.Itoa(i))
	}

	clock = clock.Add(time.Minute)
	if !l.allow("late-comer") {
		t.Fatal("new key should pass")
	}
	if n := len(l.state); n != 1 {
		t.Fatalf("buckets after prune = %d, want 1", n)
	}
	if l.nextPrune != pruneAt {
		t.Fatalf("nextPrune = %d, want %d", l.nextPrune, pruneAt)
	}
}

func TestTokenBucketDefersSweepWhileKeysAreLive(t *testing.T) {
	clock := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return clock }

	for i := 0; i <= pruneAt; i++ {
		l.allow("ip:" + strconv.Itoa(i))
	}
	// nothing was idle, so the next sweep waits for the map to double
	if l.nextPrune != 2*pruneAt {
		t.Fatalf("nextPrune = %d, want %d", l.nextPrune, 2*pruneAt)
	}
	if n := len(l.state); n != pruneAt+1 {
		t.Fatalf("buckets = %d, want %d", n, pruneAt+1)
	}
}
