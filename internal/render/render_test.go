package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/logger"
)

func TestHTTPRenderer_ReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent header")
		}
		_, _ = w.Write([]byte("<html><body><p>Widget $9.99</p></body></html>"))
	}))
	defer srv.Close()

	r := NewHTTPRenderer(srv.Client(), logger.Nop())
	got, err := r.Render(context.Background(), srv.URL, time.Second)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "<html><body><p>Widget $9.99</p></body></html>" {
		t.Errorf("Render() = %q", got)
	}
}

func TestHTTPRenderer_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		timeout  time.Duration
		wantKind ErrorKind
	}{
		{
			name: "non 2xx is a navigation failure",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			timeout:  time.Second,
			wantKind: KindNavigation,
		},
		{
			name: "slow server times out",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout:  50 * time.Millisecond,
			wantKind: KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			r := NewHTTPRenderer(srv.Client(), logger.Nop())
			_, err := r.Render(context.Background(), srv.URL, tt.timeout)

			var rerr *Error
			if !errors.As(err, &rerr) {
				t.Fatalf("Render() error = %v, want *render.Error", err)
			}
			if rerr.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", rerr.Kind, tt.wantKind)
			}
			if rerr.URL != srv.URL {
				t.Errorf("URL = %q, want %q", rerr.URL, srv.URL)
			}
		})
	}
}

func TestHTTPRenderer_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewHTTPRenderer(nil, logger.Nop())
	_, err := r.Render(context.Background(), url, time.Second)

	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("Render() error = %v, want *render.Error", err)
	}
	if rerr.Kind != KindNavigation {
		t.Errorf("Kind = %s, want %s", rerr.Kind, KindNavigation)
	}
}

type blockingRenderer struct {
	active  atomic.Int32
	peak    atomic.Int32
	release chan struct{}
}

func (b *blockingRenderer) Render(ctx context.Context, url string, _ time.Duration) (string, error) {
	n := b.active.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer b.active.Add(-1)

	select {
	case <-b.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return url, nil
}

func TestLimited_CapsConcurrency(t *testing.T) {
	inner := &blockingRenderer{release: make(chan struct{})}
	l := NewLimited(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Render(context.Background(), "https://shop.test/p", time.Second)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	if got := inner.peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestLimited_CancelledWhileWaiting(t *testing.T) {
	inner := &blockingRenderer{release: make(chan struct{})}
	defer close(inner.release)
	l := NewLimited(inner, 1)

	go func() { _, _ = l.Render(context.Background(), "https://shop.test/a", time.Second) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.Render(ctx, "https://shop.test/b", time.Second)
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("Render() error = %v, want *render.Error", err)
	}
	if rerr.Kind != KindTimeout {
		t.Errorf("Kind = %s, want %s", rerr.Kind, KindTimeout)
	}
}
