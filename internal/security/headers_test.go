package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func testRouter(middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware...)
	r.GET("/", func(c *gin.Context) { c.String(200, "ok") })
	return r
}

func TestHeadersMiddleware(t *testing.T) {
	r := testRouter(HeadersMiddleware())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy")
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := testRouter(CORSMiddleware([]string{"https://dashboard.kaalis.example"}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://dashboard.kaalis.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.kaalis.example" {
		t.Errorf("allow-origin = %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials not allowed for explicit origin")
	}

	// Disallowed origin gets no CORS headers.
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("allow-origin set for disallowed origin")
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := testRouter(CORSMiddleware([]string{"*"}))

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "https://any.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials must not be set with wildcard origins")
	}
}

func TestValidateEndpointURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://paytech.sn", false},
		{"ftp://paytech.sn", true},
		{"https://", true},
		{"https://localhost/ipn", true},
		{"http://127.0.0.1:3000", true},
		{"http://10.0.0.5", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"https://metadata.google.internal", true},
	}
	for _, tt := range tests {
		err := ValidateEndpointURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateEndpointURL(%q) = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}
