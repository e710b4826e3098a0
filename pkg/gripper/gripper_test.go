package gripper

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func newTestGripper(t *testing.T, posts *atomic.Int32) *Gripper {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Value []int `json:"value"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		if len(req.Value) != 8 {
			t.Errorf("payload has %d values, want 8", len(req.Value))
		}
		posts.Add(1)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(u.Port())

	g := New(u.Hostname(), port, time.Second, 20*time.Millisecond)
	g.PreDelay = 0
	return g
}

func waitForIdle(t *testing.T, g *Gripper) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for g.Locked() {
		if time.Now().After(deadline) {
			t.Fatal("gripper never returned to idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTriggerActuatesAndReleasesLock(t *testing.T) {
	var posts atomic.Int32
	var idles atomic.Int32

	g := newTestGripper(t, &posts)
	g.OnIdle = func() { idles.Add(1) }

	if g.Locked() {
		t.Fatal("new gripper should be idle")
	}
	if g.Value() != 1 {
		t.Fatalf("new gripper should report open, got %f", g.Value())
	}

	if err := g.Trigger(Close); err != nil {
		t.Fatal(err)
	}
	if !g.Locked() {
		t.Error("gripper should hold the lock while actuating")
	}
	if g.Value() != 0 {
		t.Errorf("close should report 0 immediately, got %f", g.Value())
	}

	waitForIdle(t, g)
	if posts.Load() != 1 {
		t.Errorf("expected 1 POST, got %d", posts.Load())
	}
	if idles.Load() != 1 {
		t.Errorf("expected 1 OnIdle call, got %d", idles.Load())
	}
}

func TestTriggerWhileLockedFails(t *testing.T) {
	var posts atomic.Int32

	g := newTestGripper(t, &posts)
	g.settle = 200 * time.Millisecond

	if err := g.Trigger(Close); err != nil {
		t.Fatal(err)
	}
	if err := g.Trigger(Open); err == nil {
		t.Error("second trigger should fail while locked")
	}

	waitForIdle(t, g)
	if posts.Load() != 1 {
		t.Errorf("expected 1 POST, got %d", posts.Load())
	}

	// Idle again, so a fresh trigger works.
	if err := g.Trigger(Open); err != nil {
		t.Fatal(err)
	}
	if g.Value() != 1 {
		t.Errorf("open should report 1, got %f", g.Value())
	}
	waitForIdle(t, g)
}

func TestLockReleasedOnHTTPFailure(t *testing.T) {
	// Point at a closed port: the POST fails but the lock must still
	// release via settling.
	g := New("127.0.0.1", 1, 100*time.Millisecond, 10*time.Millisecond)
	g.PreDelay = 0

	if err := g.Trigger(Close); err != nil {
		t.Fatal(err)
	}
	waitForIdle(t, g)
}
