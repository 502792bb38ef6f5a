package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/notfound", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	missBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	resp, err := http.Get(srv.URL + "/test")
	if err != nil {
		t.Fatalf("GET /test failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/notfound")
	if err != nil {
		t.Fatalf("GET /notfound failed: %v", err)
	}
	resp.Body.Close()

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); got-okBefore != 1 {
		t.Errorf("Expected GET 200 counter to rise by 1, got %f", got-okBefore)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")); got-missBefore != 1 {
		t.Errorf("Expected GET 404 counter to rise by 1, got %f", got-missBefore)
	}
}
