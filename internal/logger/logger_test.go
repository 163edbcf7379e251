package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, mode := range []string{"release", "debug", ""} {
		t.Run(mode, func(t *testing.T) {
			l, err := New(mode)
			if err != nil {
				t.Fatalf("New(%q) error = %v", mode, err)
			}
			if l == nil {
				t.Fatal("New returned nil logger")
			}
		})
	}
}

func TestGin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Gin(zap.New(core)))
	r.GET("/api/health", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health?verbose=1", nil)
	r.ServeHTTP(w, req)

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("got %d request entries, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["path"] != "/api/health" {
		t.Errorf("path = %v", fields["path"])
	}
	if fields["query"] != "verbose=1" {
		t.Errorf("query = %v", fields["query"])
	}
	if fields["status"] != int64(http.StatusNoContent) {
		t.Errorf("status = %v (%T)", fields["status"], fields["status"])
	}
}
