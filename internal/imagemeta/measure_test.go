package imagemeta

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"studio/internal/render"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestMeasureCachesPerURL(t *testing.T) {
	data := pngBytes(t, 64, 36)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	m := NewMeasurer(Options{HTTPClient: srv.Client()})
	for i := 0; i < 3; i++ {
		got := m.Measure(context.Background(), srv.URL+"/car.png")
		if got != (render.Dimensions{Width: 64, Height: 36}) {
			t.Fatalf("Measure = %+v, want 64x36", got)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("server hits = %d, want 1", hits.Load())
	}
}

func TestMeasureUnknownOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	m := NewMeasurer(Options{HTTPClient: srv.Client()})
	for _, path := range []string{"/missing.png", "/garbage.png"} {
		if got := m.Measure(context.Background(), srv.URL+path); got.Known() {
			t.Fatalf("Measure(%s) = %+v, want unknown", path, got)
		}
	}
	if got := m.Measure(context.Background(), "  "); got.Known() {
		t.Fatalf("Measure(blank) = %+v, want unknown", got)
	}
}

func TestMeasureRetriesAfterFailureTTL(t *testing.T) {
	data := pngBytes(t, 30, 40)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	m := NewMeasurer(Options{HTTPClient: srv.Client(), FailureTTL: 20 * time.Millisecond})
	if got := m.Measure(context.Background(), srv.URL+"/car.png"); got.Known() {
		t.Fatalf("first Measure = %+v, want unknown", got)
	}
	if got := m.Measure(context.Background(), srv.URL+"/car.png"); got.Known() || hits.Load() != 1 {
		t.Fatalf("Measure within failure TTL = %+v after %d hits, want cached unknown", got, hits.Load())
	}
	time.Sleep(40 * time.Millisecond)
	if got := m.Measure(context.Background(), srv.URL+"/car.png"); got != (render.Dimensions{Width: 30, Height: 40}) {
		t.Fatalf("Measure after failure TTL = %+v, want 30x40", got)
	}
}

func TestMeasureSkipsDisallowedURLs(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	m := NewMeasurer(Options{HTTPClient: srv.Client(), Allow: func(string) bool { return false }})
	if got := m.Measure(context.Background(), srv.URL+"/latest/meta-data"); got.Known() {
		t.Fatalf("Measure = %+v, want unknown", got)
	}
	if hits.Load() != 0 {
		t.Fatalf("server hits = %d, want 0", hits.Load())
	}
}
