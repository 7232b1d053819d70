package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"curator/internal/generation"
	"curator/internal/session"
	"curator/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, nil, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, nil, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestConfigShow(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.backend.URL())
	requireContains(t, out, "events")
}

func TestPostsList(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "posts", "list")
	if err != nil {
		t.Fatalf("posts list: %v", err)
	}
	requireContains(t, out, "hello world [+2]")
	requireContains(t, out, "solo post")
	if strings.Contains(out, "more context") {
		t.Fatalf("follow-up should fold into its main post:\n%s", out)
	}
}

func TestPostsListJSONTagged(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "posts", "list", "--json", "--tagged")
	if err != nil {
		t.Fatalf("posts list: %v", err)
	}
	var rows []session.Row
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0].Post.ID != 1 || !slices.Equal(rows[0].Badges, []string{"T"}) {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestPostsShow(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "posts", "show", "1")
	if err != nil {
		t.Fatalf("posts show: %v", err)
	}
	requireContains(t, out, "Follow-up 2")
	requireContains(t, out, "Topics: T")
	requireContains(t, out, "https://t.me/events/10")

	if _, _, err := runCLI(t, env, "posts", "show", "42"); err == nil {
		t.Fatal("expected error for unloaded message")
	}
}

func TestSelectionFlagsConflict(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, env, "--username", "a", "--channel-id", "5", "posts", "list")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestChannels(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "channels")
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	requireContains(t, out, "@events")
}

func TestIngestDefaultsToSelection(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "ingest", "--count", "7")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	requireContains(t, out, "ingest requested for @events")
	ingests := env.backend.Ingests()
	if len(ingests) != 1 || ingests[0].Channel != "events" || ingests[0].Limit != 7 {
		t.Fatalf("unexpected ingests: %+v", ingests)
	}
}

func TestTopicsLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "topics", "create", "News")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	requireContains(t, out, "created topic News")

	if _, _, err := runCLI(t, env, "topics", "add", "News", "1", "3"); err != nil {
		t.Fatalf("add: %v", err)
	}
	rec, ok := env.backend.Topic("News")
	if !ok || !slices.Contains(rec.MessageIDs, 1) || !slices.Contains(rec.MessageIDs, 3) {
		t.Fatalf("unexpected topic record: %+v", rec)
	}

	out, _, err = runCLI(t, env, "topics", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "News")

	if _, _, err := runCLI(t, env, "topics", "remove", "News", "3"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rec, _ = env.backend.Topic("News")
	if slices.Contains(rec.MessageIDs, 3) {
		t.Fatalf("message 3 still tagged: %+v", rec)
	}

	if _, _, err := runCLI(t, env, "topics", "delete", "News"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := env.backend.Topic("News"); ok {
		t.Fatal("topic still present after delete")
	}
}

func TestTopicsAddUnknownTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, env, "topics", "add", "Missing", "1")
	if err == nil || !strings.Contains(err.Error(), "unknown topic") {
		t.Fatalf("expected unknown topic error, got %v", err)
	}
}

func TestGenerateWaitsAndRecordsJob(t *testing.T) {
	env := setupCLITestEnv(t)
	env.backend.OnGenerate(func(ids []int64) {
		for _, id := range ids {
			env.backend.SetComment(id, "generated")
		}
	})

	out, _, err := runCLI(t, env, "generate")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	requireContains(t, out, "generating 2 comments")
	requireContains(t, out, "done: 2/2 comments")

	overrides := env.backend.Overrides()
	if len(overrides) != 1 || len(overrides[0]) != 2 {
		t.Fatalf("unexpected override batches: %+v", overrides)
	}

	out, _, err = runCLI(t, env, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "done")
	requireContains(t, out, "2/2")

	jobs, err := testsupport.MustOpenJournal(t, env.cfg).Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("journal recent: %v", err)
	}
	if len(jobs) != 1 || jobs[0].State != generation.StateDone || len(jobs[0].Pending) != 0 {
		t.Fatalf("unexpected journal entries: %+v", jobs)
	}
}

func TestStopWithoutJob(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "stop requested")
	if env.backend.Stops() != 1 {
		t.Fatalf("stops = %d, want 1", env.backend.Stops())
	}
}

func TestCommentsEditAndDelete(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "comments", "edit", "3", "fresh take"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := env.backend.Comment(3); got != "fresh take" {
		t.Fatalf("comment = %q", got)
	}

	if _, _, err := runCLI(t, env, "comments", "delete"); err == nil {
		t.Fatal("expected delete without ids or --all to fail")
	}
	out, _, err := runCLI(t, env, "comments", "delete", "--all")
	if err != nil {
		t.Fatalf("delete --all: %v", err)
	}
	requireContains(t, out, "deleted 3 comments")
	if got := env.backend.Comment(3); got != "" {
		t.Fatalf("comment after delete = %q", got)
	}
}

func TestPromptGetSet(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "prompt", "set", "Summarise: {text}"); err != nil {
		t.Fatalf("prompt set: %v", err)
	}
	if env.backend.Prompt() != "Summarise: {text}" {
		t.Fatalf("prompt = %q", env.backend.Prompt())
	}
	out, _, err := runCLI(t, env, "prompt", "get")
	if err != nil {
		t.Fatalf("prompt get: %v", err)
	}
	requireContains(t, out, "Summarise: {text}")
}

func TestDoctor(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "[ok  ] Backend")

	env.backend.Fail("GET /health", 503)
	out, _, err = runCLI(t, env, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail when backend health fails")
	}
	requireContains(t, out, "[fail] Backend")
}

func TestJobsShowUnknown(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "jobs", "show", "nope"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestTestNotifyDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications disabled")
}

func TestGenerateSendsNotification(t *testing.T) {
	env := setupCLITestEnv(t)
	var mu sync.Mutex
	var titles []string
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		titles = append(titles, r.Header.Get("Title"))
		mu.Unlock()
	}))
	defer ntfy.Close()
	env.cfg.Notifications.NtfyTopic = ntfy.URL + "/curator"
	writeTestConfig(t, env.configPath, env.cfg)

	env.backend.OnGenerate(func(ids []int64) {
		for _, id := range ids {
			env.backend.SetComment(id, "generated")
		}
	})
	if _, _, err := runCLI(t, env, "generate", "--quiet"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(titles) != 1 || titles[0] != "Curator - Comments Ready" {
		t.Fatalf("unexpected notifications: %v", titles)
	}
}
