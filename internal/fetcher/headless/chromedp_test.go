package headless

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	defer f.Close()

	if f.cfg.DefaultTimeout != 30*time.Second {
		t.Fatalf("expected default timeout 30s, got %v", f.cfg.DefaultTimeout)
	}
	if f.cfg.SettleDelay != 500*time.Millisecond {
		t.Fatalf("expected default settle delay 500ms, got %v", f.cfg.SettleDelay)
	}
}

func TestDocumentMetaCapturesMainDocumentOnly(t *testing.T) {
	t.Parallel()

	meta := newDocumentMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeImage,
		Response: &network.Response{
			Status: 404,
			URL:    "https://example.com/logo.png",
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			URL:     "https://example.com/menu",
			Headers: network.Headers{"Content-Type": "text/html"},
		},
	})

	status, headers, url := meta.snapshot()
	if status != 200 {
		t.Fatalf("expected document status 200, got %d", status)
	}
	if url != "https://example.com/menu" {
		t.Fatalf("expected document url, got %s", url)
	}
	if headers.Get("Content-Type") != "text/html" {
		t.Fatalf("expected content type header, got %v", headers)
	}
}

func TestDocumentMetaSnapshotCopiesHeaders(t *testing.T) {
	t.Parallel()

	meta := newDocumentMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			Headers: network.Headers{"X-Test": "a"},
		},
	})

	_, headers, _ := meta.snapshot()
	headers.Add("X-Test", "b")

	_, fresh, _ := meta.snapshot()
	if len(fresh.Values("X-Test")) != 1 {
		t.Fatalf("snapshot must not expose internal header map: %v", fresh)
	}
}

func TestBlockedResourcePatternsCoverHeavyTypes(t *testing.T) {
	t.Parallel()

	for _, want := range []string{"*.png", "*.css", "*.woff2"} {
		found := false
		for _, pat := range blockedResourcePatterns {
			if pat == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected %s in blocked patterns", want)
		}
	}
}
