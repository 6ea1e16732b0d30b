//go:build !ci

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	chromeImage           = "chromedp/headless-shell:stable"
	chromeContainerPrefix = "chrome-e2e-tinkerblog-"
)

// startChrome runs headless Chrome in Docker and returns a chromedp context
// bounded by timeout. The test is skipped when Docker is unavailable.
func startChrome(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	if _, err := exec.Command("docker", "version").CombinedOutput(); err != nil {
		t.Skip("Docker not available, skipping E2E test")
	}

	port, err := freePort()
	if err != nil {
		t.Fatalf("failed to allocate Chrome port: %v", err)
	}
	name := fmt.Sprintf("%s%d", chromeContainerPrefix, port)
	_, _ = exec.Command("docker", "rm", "-f", name).CombinedOutput()

	if _, err := exec.Command("docker", "image", "inspect", chromeImage).CombinedOutput(); err != nil {
		pullCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if out, err := exec.CommandContext(pullCtx, "docker", "pull", chromeImage).CombinedOutput(); err != nil {
			t.Skipf("failed to pull %s: %v\n%s", chromeImage, err, out)
		}
	}

	// Linux shares the host network; elsewhere Docker runs in a VM and the
	// container's default debugging port is mapped instead.
	args := []string{"run", "-d", "--rm", "--memory", "512m", "--name", name}
	if runtime.GOOS == "linux" {
		args = append(args, "--network", "host", chromeImage, fmt.Sprintf("--remote-debugging-port=%d", port))
	} else {
		args = append(args, "-p", fmt.Sprintf("%d:9222", port), chromeImage)
	}
	if out, err := exec.Command("docker", args...).CombinedOutput(); err != nil {
		t.Fatalf("failed to start Chrome container: %v\n%s", err, out)
	}
	t.Cleanup(func() {
		_, _ = exec.Command("docker", "rm", "-f", name).CombinedOutput()
	})

	chromeURL := fmt.Sprintf("http://localhost:%d", port)
	waitForHTTP(t, chromeURL+"/json/version", 60*time.Second)

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), chromeURL)
	ctx, ctxCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(t.Logf))
	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	t.Cleanup(func() {
		timeoutCancel()
		ctxCancel()
		allocCancel()
	})
	return ctx
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func waitForHTTP(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("%s not ready within %v", url, timeout)
}

// chromeURL rewrites an httptest URL so Chrome inside Docker can reach it.
func chromeURL(testURL string) string {
	host := "localhost"
	if runtime.GOOS != "linux" {
		host = "host.docker.internal"
	}
	testURL = strings.Replace(testURL, "127.0.0.1", host, 1)
	return strings.Replace(testURL, "[::1]", host, 1)
}
