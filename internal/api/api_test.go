package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/fehu/internal/apperr"
	"github.com/starford/fehu/internal/catalog"
	"github.com/starford/fehu/internal/downloader"
	"github.com/starford/fehu/internal/history"
	"github.com/starford/fehu/internal/session"
	"github.com/starford/fehu/internal/testutil"
)

// stubCatalog is an in-memory catalog.Client.
type stubCatalog struct {
	latest    map[string]uint64           // lowercased group key -> newest version
	downloads map[string]catalog.Download // lowercased raw identifier -> source
	items     []catalog.Item
}

func (c *stubCatalog) RemoteLatest(_ context.Context, groupKey string) (uint64, error) {
	v, ok := c.latest[strings.ToLower(groupKey)]
	if !ok {
		return 0, fmt.Errorf("stub: %s: %w", groupKey, apperr.ErrNotFound)
	}
	return v, nil
}

func (c *stubCatalog) ResolveDownload(_ context.Context, rawIdentifier string) (catalog.Download, error) {
	d, ok := c.downloads[strings.ToLower(rawIdentifier)]
	if !ok {
		return catalog.Download{}, fmt.Errorf("stub: %s: %w", rawIdentifier, apperr.ErrNotFound)
	}
	return d, nil
}

func (c *stubCatalog) Search(_ context.Context, _ string, _ int) ([]catalog.Item, error) {
	return c.items, nil
}

// stubTransport writes fixed content to the destination.
type stubTransport struct{}

func (stubTransport) Fetch(_ context.Context, _, destination, _ string, progress downloader.ProgressFunc) error {
	data := []byte("downloaded")
	if err := os.WriteFile(destination, data, 0o644); err != nil {
		return err
	}
	if progress != nil {
		progress(int64(len(data)))
	}
	return nil
}

// gateTransport signals when the transfer begins and holds it until
// released. It ignores cancellation: the transfer finishes regardless,
// like a real one that never observes the signal before completing.
type gateTransport struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateTransport) Fetch(_ context.Context, _, destination, _ string, _ downloader.ProgressFunc) error {
	close(g.started)
	<-g.release
	return os.WriteFile(destination, []byte("downloaded"), 0o644)
}

type env struct {
	router  http.Handler
	svc     *Service
	tracker *session.Tracker
	hist    *history.DB
	libDir  string
}

// testEnv sets up a temp library, history DB, coordinator, service, and
// router. authToken="" means disabled auth mode.
func testEnv(t *testing.T, authToken string, cat catalog.Client, installed ...string) *env {
	t.Helper()

	libDir, store := testutil.TestLibrary(t, installed...)
	db := testutil.TestHistoryDB(t)
	tracker := session.NewTracker()

	coord, err := downloader.New(downloader.Config{Transport: stubTransport{}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(coord.Close)

	if cat == nil {
		cat = &stubCatalog{}
	}
	svc := NewService(store, cat, coord, tracker, db, libDir, nil)
	router := NewRouter(svc, authToken != "", authToken, nil)
	return &env{router: router, svc: svc, tracker: tracker, hist: db, libDir: libDir}
}

func (e *env) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// eventually polls cond until it returns true or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAuth(t *testing.T) {
	e := testEnv(t, "secret", nil)

	w := e.do(t, http.MethodGet, "/packages", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("without token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/packages", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", rec.Code)
	}
}

func TestListPackages(t *testing.T) {
	e := testEnv(t, "", nil, "Acid.Hair.8", "Other.Thing.2")

	w := e.do(t, http.MethodGet, "/packages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp InstalledResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Packages) != 2 {
		t.Fatalf("total = %d, packages = %d, want 2/2", resp.Total, len(resp.Packages))
	}
}

func TestPackageStatus(t *testing.T) {
	cat := &stubCatalog{latest: map[string]uint64{"acid.hair": 9}}
	e := testEnv(t, "", cat, "Acid.Hair.8")

	w := e.do(t, http.MethodGet, "/packages/status?id=Acid.Hair.latest", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st PackageStatus
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if !st.Installed || st.InstalledVersion != 8 {
		t.Errorf("installed = %v/%d, want true/8", st.Installed, st.InstalledVersion)
	}
	if !st.UpdateAvailable || st.RemoteVersion != 9 {
		t.Errorf("update = %v/%d, want true/9", st.UpdateAvailable, st.RemoteVersion)
	}
}

func TestPackageStatus_NotInstalled(t *testing.T) {
	e := testEnv(t, "", nil)

	w := e.do(t, http.MethodGet, "/packages/status?id=Nobody.Nothing.1", nil)
	var st PackageStatus
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Installed || st.UpdateAvailable {
		t.Errorf("status = %+v, want not installed", st)
	}
}

func TestPackageStatus_MissingID(t *testing.T) {
	e := testEnv(t, "", nil)
	if w := e.do(t, http.MethodGet, "/packages/status", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearchCatalog(t *testing.T) {
	cat := &stubCatalog{items: []catalog.Item{{GroupKey: "Acid.Hair", LatestVersion: 9}}}
	e := testEnv(t, "", cat)

	w := e.do(t, http.MethodGet, "/catalog/search?q=hair", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Acid.Hair") {
		t.Errorf("body = %s", w.Body.String())
	}

	if w := e.do(t, http.MethodGet, "/catalog/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", w.Code)
	}
}

func TestEnqueueDownloads(t *testing.T) {
	cat := &stubCatalog{downloads: map[string]catalog.Download{
		"acid.hair.latest": {Identifier: "Acid.Hair.9", URL: "https://cdn.example/Acid.Hair.9.var", SizeBytes: 10},
	}}
	e := testEnv(t, "", cat)

	w := e.do(t, http.MethodPost, "/downloads", EnqueueRequest{Identifiers: []string{"Acid.Hair.latest"}})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp EnqueueResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.BatchID == "" {
		t.Fatal("batch id empty")
	}
	if len(resp.Results) != 1 || resp.Results[0].Resolved != "Acid.Hair.9" {
		t.Fatalf("results = %+v", resp.Results)
	}

	// The transfer completes and the file lands in the library.
	eventually(t, 2*time.Second, func() bool {
		task, err := e.svc.Task("Acid.Hair.9")
		return err == nil && task.Status == downloader.StatusCompleted
	})
	if _, err := os.Stat(filepath.Join(e.libDir, "Acid.Hair.9.var")); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}

	// Batch eventually reports done.
	eventually(t, 2*time.Second, func() bool {
		b, err := e.svc.Batch(resp.BatchID)
		return err == nil && b.Done
	})
}

func TestEnqueueDownloads_UnresolvableReported(t *testing.T) {
	cat := &stubCatalog{downloads: map[string]catalog.Download{
		"acid.hair.9": {Identifier: "Acid.Hair.9", URL: "https://cdn.example/Acid.Hair.9.var"},
	}}
	e := testEnv(t, "", cat)

	w := e.do(t, http.MethodPost, "/downloads", EnqueueRequest{
		Identifiers: []string{"Acid.Hair.9", "Nobody.Nothing.1"},
	})
	var resp EnqueueResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 2 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].Error != "" || resp.Results[0].TaskID == "" {
		t.Errorf("resolved result = %+v", resp.Results[0])
	}
	if resp.Results[1].Error == "" || resp.Results[1].TaskID != "" {
		t.Errorf("unresolvable result = %+v", resp.Results[1])
	}

	// The batch only waits on the one resolvable member.
	eventually(t, 2*time.Second, func() bool {
		b, err := e.svc.Batch(resp.BatchID)
		return err == nil && b.Done && b.Total == 1
	})
}

func TestEnqueueDownloads_EmptyBody(t *testing.T) {
	e := testEnv(t, "", nil)
	if w := e.do(t, http.MethodPost, "/downloads", EnqueueRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCancelAllDownloads(t *testing.T) {
	e := testEnv(t, "", nil)
	e.tracker.Track("Acid.Hair.latest")
	e.tracker.Track("Other.Thing.2")

	if w := e.do(t, http.MethodPost, "/downloads/cancel-all", nil); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	for _, entry := range e.tracker.Entries() {
		if entry.State != session.StateCancelled {
			t.Errorf("entry %s state = %s, want cancelled", entry.PackageKey, entry.State)
		}
	}
}

func TestCancelDuringTransfer_CompletionWins(t *testing.T) {
	// Cancellation is cooperative. When the transfer finishes successfully
	// before observing the signal, both the task and the session entry must
	// end completed, not cancelled.
	libDir, store := testutil.TestLibrary(t)
	db := testutil.TestHistoryDB(t)
	tracker := session.NewTracker()
	gate := &gateTransport{started: make(chan struct{}), release: make(chan struct{})}

	coord, err := downloader.New(downloader.Config{
		Transport: gate,
		OnFinished: func(task downloader.Task) {
			switch task.Status {
			case downloader.StatusCompleted:
				tracker.Update(task.ID, session.StateCompleted, "")
			case downloader.StatusFailed:
				tracker.Update(task.ID, session.StateFailed, task.Message)
			case downloader.StatusCancelled:
				tracker.Cancel(task.ID)
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(coord.Close)

	cat := &stubCatalog{downloads: map[string]catalog.Download{
		"acid.hair.latest": {Identifier: "Acid.Hair.9", URL: "https://cdn.example/Acid.Hair.9.var"},
	}}
	svc := NewService(store, cat, coord, tracker, db, libDir, nil)

	_, results := svc.EnqueueAll(context.Background(), []string{"Acid.Hair.latest"})
	if len(results) != 1 || results[0].TaskID == "" {
		t.Fatalf("results = %+v", results)
	}
	<-gate.started

	svc.Cancel(results[0].TaskID)
	close(gate.release)

	eventually(t, 2*time.Second, func() bool {
		task, err := svc.Task("Acid.Hair.9")
		return err == nil && task.Status == downloader.StatusCompleted
	})

	entries := tracker.Entries()
	if len(entries) != 1 || entries[0].State != session.StateCompleted {
		t.Errorf("session entries = %+v, want one completed entry", entries)
	}
}

func TestGetDownload_NotFound(t *testing.T) {
	e := testEnv(t, "", nil)
	if w := e.do(t, http.MethodGet, "/downloads/Nobody.Nothing.1", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	e := testEnv(t, "", nil)
	e.tracker.Track("Acid.Hair.latest")
	e.tracker.Cancel("Acid.Hair.latest")

	w := e.do(t, http.MethodGet, "/session", nil)
	var resp SessionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Entries) != 1 || resp.Entries[0].State != session.StateCancelled {
		t.Fatalf("entries = %+v", resp.Entries)
	}

	w = e.do(t, http.MethodDelete, "/session/terminal", nil)
	var cleared ClearedResponse
	_ = json.Unmarshal(w.Body.Bytes(), &cleared)
	if cleared.Cleared != 1 {
		t.Errorf("cleared = %d, want 1", cleared.Cleared)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	e := testEnv(t, "", nil)
	_ = e.hist.Record(history.Row{Identifier: "Acid.Hair.9", GroupKey: "acid.hair", Status: "completed", Bytes: 10})

	w := e.do(t, http.MethodGet, "/history", nil)
	var resp HistoryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || len(resp.Downloads) != 1 {
		t.Fatalf("history = %+v", resp)
	}

	w = e.do(t, http.MethodDelete, "/history", nil)
	var cleared ClearedResponse
	_ = json.Unmarshal(w.Body.Bytes(), &cleared)
	if cleared.Cleared != 1 {
		t.Errorf("cleared = %d, want 1", cleared.Cleared)
	}
}
