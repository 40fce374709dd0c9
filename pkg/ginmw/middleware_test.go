package ginmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

func newTestRouter(log *logrus.Logger, opts ...LoggerOption) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger(log, opts...), Recovery(log))
	router.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/boom", func(c *gin.Context) { panic("boom") })
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func perform(router *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequestLogger(t *testing.T) {
	log, hook := logrustest.NewNullLogger()
	router := newTestRouter(log)

	perform(router, "/ok")

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("Expected a log entry")
	}
	if entry.Level != logrus.InfoLevel {
		t.Errorf("Expected info level, got %s", entry.Level)
	}
	if entry.Data["method"] != http.MethodGet {
		t.Errorf("Expected method GET, got %v", entry.Data["method"])
	}
	if entry.Data["path"] != "/ok" {
		t.Errorf("Expected path /ok, got %v", entry.Data["path"])
	}
	if entry.Data["status"] != http.StatusOK {
		t.Errorf("Expected status 200, got %v", entry.Data["status"])
	}
}

func TestRequestLogger_ClientErrorsWarn(t *testing.T) {
	log, hook := logrustest.NewNullLogger()
	router := newTestRouter(log)

	perform(router, "/missing")

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("Expected a log entry")
	}
	if entry.Level != logrus.WarnLevel {
		t.Errorf("Expected warn level for a 4xx, got %s", entry.Level)
	}
}

func TestRequestLogger_SkipPaths(t *testing.T) {
	log, hook := logrustest.NewNullLogger()
	router := newTestRouter(log, WithSkipPaths("/healthz"))

	perform(router, "/healthz")

	if len(hook.Entries) != 0 {
		t.Errorf("Expected no entries for a skipped path, got %d", len(hook.Entries))
	}
}

func TestRecovery(t *testing.T) {
	log, hook := logrustest.NewNullLogger()
	router := newTestRouter(log)

	rec := perform(router, "/boom")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 after a panic, got %d", rec.Code)
	}

	var recovered bool
	for _, entry := range hook.Entries {
		if entry.Message == "request panicked" {
			recovered = true
			if entry.Data["panic"] != "boom" {
				t.Errorf("Expected the panic value in the entry, got %v", entry.Data["panic"])
			}
		}
	}
	if !recovered {
		t.Error("Expected the panic to be logged")
	}
}
