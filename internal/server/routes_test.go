package server

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/lazypower/mnemo/internal/engine"
	"github.com/lazypower/mnemo/internal/memory"
	"github.com/lazypower/mnemo/internal/snapshot"
)

type recordJSON struct {
	ID                string  `json:"id"`
	Content           string  `json:"content"`
	Kind              string  `json:"kind"`
	Category          string  `json:"category"`
	AccessCount       int     `json:"access_count"`
	BaseImportance    float64 `json:"base_importance"`
	CurrentImportance float64 `json:"current_importance"`
}

func addMemory(t *testing.T, srv *Server, content string, importance float64, category string) recordJSON {
	t.Helper()
	body := fmt.Sprintf(`{"content":%q,"base_importance":%v,"category":%q}`, content, importance, category)
	w := do(t, srv, "POST", "/api/memories", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("add: status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var rec recordJSON
	decode(t, w, &rec)
	return rec
}

func TestAddGetRemoveMemory(t *testing.T) {
	srv := testServer(t)

	rec := addMemory(t, srv, "the api key rotates monthly", 0.6, "ops")
	if rec.ID == "" || rec.Kind != "episodic" || rec.CurrentImportance != 0.6 {
		t.Errorf("added record = %+v", rec)
	}

	w := do(t, srv, "GET", "/api/memories/"+rec.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}
	var got recordJSON
	decode(t, w, &got)
	if got != rec {
		t.Errorf("get = %+v, want %+v", got, rec)
	}

	w = do(t, srv, "DELETE", "/api/memories/"+rec.ID, "")
	var removed map[string]bool
	decode(t, w, &removed)
	if !removed["removed"] {
		t.Error("expected removed = true")
	}
	w = do(t, srv, "DELETE", "/api/memories/"+rec.ID, "")
	decode(t, w, &removed)
	if removed["removed"] {
		t.Error("second delete should report removed = false")
	}

	if w := do(t, srv, "GET", "/api/memories/"+rec.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("get removed: status = %d, want 404", w.Code)
	}
}

func TestAddMemoryValidation(t *testing.T) {
	srv := testServer(t)

	bad := []string{
		`not json`,
		`{"content":"no importance"}`,
		`{"content":"too important","base_importance":1.5}`,
		`{"content":"   ","base_importance":0.5}`,
		`{"content":"odd kind","base_importance":0.5,"kind":"dream"}`,
	}
	for _, body := range bad {
		if w := do(t, srv, "POST", "/api/memories", body); w.Code != http.StatusBadRequest {
			t.Errorf("POST %s: status = %d, want 400", body, w.Code)
		}
	}

	w := do(t, srv, "POST", "/api/memories", `{"content":"no importance"}`)
	var e struct {
		Error string `json:"error"`
	}
	decode(t, w, &e)
	if !strings.Contains(e.Error, "base_importance") {
		t.Errorf("error = %q, want it to name base_importance", e.Error)
	}
}

func TestListMemories(t *testing.T) {
	srv := testServer(t)
	addMemory(t, srv, "one", 0.5, "user")
	addMemory(t, srv, "two", 0.5, "recent")

	var body struct {
		Count   int          `json:"count"`
		Records []recordJSON `json:"records"`
	}
	decode(t, do(t, srv, "GET", "/api/memories", ""), &body)
	if body.Count != 2 || len(body.Records) != 2 {
		t.Errorf("list = %+v", body)
	}

	decode(t, do(t, srv, "GET", "/api/memories?category=user", ""), &body)
	if body.Count != 1 || body.Records[0].Content != "one" {
		t.Errorf("filtered list = %+v", body)
	}
}

func TestRecall(t *testing.T) {
	srv := testServer(t)
	rec := addMemory(t, srv, "deploys happen on thursday", 0.8, "ops")
	addMemory(t, srv, "likes green tea", 0.8, "user")

	w := do(t, srv, "GET", "/api/recall?q=thursday+deploys", "")
	if w.Code != http.StatusOK {
		t.Fatalf("recall: status = %d; body: %s", w.Code, w.Body.String())
	}
	var body struct {
		Count   int `json:"count"`
		Results []struct {
			Record recordJSON `json:"record"`
			Score  float64    `json:"score"`
		} `json:"results"`
	}
	decode(t, w, &body)
	if body.Count != 1 || body.Results[0].Record.ID != rec.ID {
		t.Fatalf("recall = %+v", body)
	}
	if body.Results[0].Record.AccessCount != 1 || body.Results[0].Score <= 0 {
		t.Errorf("recalled record = %+v", body.Results[0])
	}

	var empty struct {
		Results []any `json:"results"`
	}
	decode(t, do(t, srv, "GET", "/api/recall?q=nothing+matches", ""), &empty)
	if empty.Results == nil || len(empty.Results) != 0 {
		t.Errorf("no-match recall should return an empty list, got %v", empty.Results)
	}
}

func TestRecallValidation(t *testing.T) {
	srv := testServer(t)
	addMemory(t, srv, "anything", 0.5, "")

	paths := []string{
		"/api/recall",
		"/api/recall?q=+",
		"/api/recall?q=x&weights=1,2",
		"/api/recall?q=x&weights=1,-1,1",
		"/api/recall?q=x&weights=a,b,c",
	}
	for _, p := range paths {
		if w := do(t, srv, "GET", p, ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s: status = %d, want 400", p, w.Code)
		}
	}

	if w := do(t, srv, "GET", "/api/recall?q=anything&weights=1", ""); w.Code != http.StatusOK {
		t.Errorf("single weight: status = %d", w.Code)
	}
}

func TestDecayAndHistory(t *testing.T) {
	srv := testServer(t)
	addMemory(t, srv, "below the floor", 0.01, "")
	addMemory(t, srv, "well above", 0.9, "")

	w := do(t, srv, "POST", "/api/decay", "")
	if w.Code != http.StatusOK {
		t.Fatalf("decay: status = %d", w.Code)
	}
	var res struct {
		Scanned   int      `json:"scanned"`
		Evicted   []string `json:"evicted"`
		Remaining int      `json:"remaining"`
	}
	decode(t, w, &res)
	if res.Scanned != 2 || len(res.Evicted) != 1 || res.Remaining != 1 {
		t.Errorf("decay = %+v", res)
	}

	var hist struct {
		Passes    []map[string]any `json:"passes"`
		Evictions []map[string]any `json:"evictions"`
	}
	decode(t, do(t, srv, "GET", "/api/history?limit=5", ""), &hist)
	if len(hist.Passes) != 1 || len(hist.Evictions) != 1 {
		t.Fatalf("history = %+v", hist)
	}
	if hist.Evictions[0]["content"] != "below the floor" {
		t.Errorf("eviction = %v", hist.Evictions[0])
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	srv := testServer(t)
	addMemory(t, srv, "keep me", 0.7, "important")

	var names []string
	for i := 0; i < 3; i++ {
		w := do(t, srv, "POST", "/api/snapshots", "")
		if w.Code != http.StatusCreated {
			t.Fatalf("save: status = %d; body: %s", w.Code, w.Body.String())
		}
		var h struct {
			Name    string `json:"name"`
			Records int    `json:"records"`
		}
		decode(t, w, &h)
		if h.Records != 1 {
			t.Errorf("saved records = %d, want 1", h.Records)
		}
		names = append(names, h.Name)
	}

	var list struct {
		Count int `json:"count"`
	}
	decode(t, do(t, srv, "GET", "/api/snapshots", ""), &list)
	if list.Count != 3 {
		t.Errorf("snapshot count = %d, want 3", list.Count)
	}

	var info struct {
		Valid   bool `json:"valid"`
		Records int  `json:"records"`
	}
	decode(t, do(t, srv, "GET", "/api/snapshots/"+names[0], ""), &info)
	if !info.Valid || info.Records != 1 {
		t.Errorf("inspect = %+v", info)
	}

	var pruned struct {
		Removed []string `json:"removed"`
	}
	w := do(t, srv, "POST", "/api/snapshots/prune", `{"keep":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("prune: status = %d", w.Code)
	}
	decode(t, w, &pruned)
	if len(pruned.Removed) != 2 {
		t.Errorf("pruned = %v, want 2 removed", pruned.Removed)
	}
	if w := do(t, srv, "POST", "/api/snapshots/prune", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("prune without keep: status = %d, want 400", w.Code)
	}

	decode(t, do(t, srv, "GET", "/api/snapshots", ""), &list)
	if list.Count != 1 {
		t.Fatalf("after prune count = %d, want 1", list.Count)
	}
	var latest struct {
		Snapshots []struct {
			Name string `json:"name"`
		} `json:"snapshots"`
	}
	decode(t, do(t, srv, "GET", "/api/snapshots", ""), &latest)

	do(t, srv, "POST", "/api/memories", `{"content":"added later","base_importance":0.5}`)
	w = do(t, srv, "POST", "/api/snapshots/"+latest.Snapshots[0].Name+"/restore", "")
	if w.Code != http.StatusOK {
		t.Fatalf("restore: status = %d; body: %s", w.Code, w.Body.String())
	}
	var restored struct {
		Records int `json:"records"`
	}
	decode(t, w, &restored)
	if restored.Records != 1 {
		t.Errorf("restored records = %d, want 1", restored.Records)
	}

	if w := do(t, srv, "POST", "/api/snapshots/snap-missing.msnap/restore", ""); w.Code != http.StatusNotFound {
		t.Errorf("restore missing: status = %d, want 404", w.Code)
	}
}

func TestReset(t *testing.T) {
	srv := testServer(t)
	addMemory(t, srv, "one", 0.5, "")
	addMemory(t, srv, "two", 0.5, "")

	if w := do(t, srv, "POST", "/api/reset", `{"mode":"sideways"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad mode: status = %d, want 400", w.Code)
	}

	w := do(t, srv, "POST", "/api/reset", `{"mode":"hard"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status = %d; body: %s", w.Code, w.Body.String())
	}
	var res struct {
		Evicted   []string `json:"evicted"`
		Remaining int      `json:"remaining"`
		Backup    struct {
			Name    string `json:"name"`
			Records int    `json:"records"`
		} `json:"backup"`
	}
	decode(t, w, &res)
	if len(res.Evicted) != 2 || res.Remaining != 0 {
		t.Errorf("reset = %+v", res)
	}
	if res.Backup.Name == "" || res.Backup.Records != 2 {
		t.Errorf("backup = %+v", res.Backup)
	}
}

func TestRestoreKeepsConfiguredParams(t *testing.T) {
	old := memory.DefaultParams()
	old.Gamma = 0.5
	snaps := snapshot.NewManager(snapshot.NewDirMedium(t.TempDir()))
	eng := engine.New(memory.New(memory.WithParams(old)), snaps)
	t.Cleanup(eng.Stop)
	srv := New(eng, "test-version")

	addMemory(t, srv, "saved under old params", 0.5, "")
	w := do(t, srv, "POST", "/api/snapshots", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("save: status = %d", w.Code)
	}
	var h struct {
		Name string `json:"name"`
	}
	decode(t, w, &h)

	configured := memory.DefaultParams()
	if err := eng.SetParams(configured); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if w := do(t, srv, "POST", "/api/snapshots/"+h.Name+"/restore", ""); w.Code != http.StatusOK {
		t.Fatalf("restore: status = %d; body: %s", w.Code, w.Body.String())
	}
	if got := eng.Params(); got != configured {
		t.Errorf("params after restore = %+v, want configured %+v", got, configured)
	}
}
