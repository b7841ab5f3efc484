package debug

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"adzbot/pkg/logx"
)

func waitForHTTP(t *testing.T, url, token string, want int) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(3 * time.Second)
	var last error
	for time.Now().Before(deadline) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := client.Do(req)
		if err == nil {
			if resp.StatusCode == want {
				return resp
			}
			last = fmt.Errorf("status %d, want %d", resp.StatusCode, want)
			resp.Body.Close()
		} else {
			last = err
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("server never answered %s: %v", url, last)
	return nil
}

func TestApplyEnableDisable(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := New(reg, logx.Nop())
	ctx := context.Background()

	if err := svc.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	addr := svc.Addr()
	if addr == "" {
		t.Fatal("expected a bound address")
	}

	resp := waitForHTTP(t, "http://"+addr+"/metrics", "", http.StatusOK)
	resp.Body.Close()

	if err := svc.Apply(ctx, Config{Enabled: false}); err != nil {
		t.Fatalf("apply disable: %v", err)
	}
	if got := svc.Addr(); got != "" {
		t.Fatalf("expected empty addr after disable, got %q", got)
	}
}

func TestTokenRequired(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := New(reg, logx.Nop())
	ctx := context.Background()
	t.Cleanup(func() { svc.Stop(ctx) })

	if err := svc.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "sekrit"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	addr := svc.Addr()

	resp := waitForHTTP(t, "http://"+addr+"/metrics", "", http.StatusUnauthorized)
	resp.Body.Close()

	resp = waitForHTTP(t, "http://"+addr+"/metrics", "sekrit", http.StatusOK)
	resp.Body.Close()
}

func TestRejectsInsecureBind(t *testing.T) {
	svc := New(nil, logx.Nop())
	err := svc.Apply(context.Background(), Config{Enabled: true, Addr: "0.0.0.0:0"})
	if err == nil {
		svc.Stop(context.Background())
		t.Fatal("expected error for non-loopback bind without token")
	}
}
