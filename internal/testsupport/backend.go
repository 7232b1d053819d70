package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"

	"curator/internal/backend"
	"curator/internal/feed"
)

// Backend is an in-memory implementation of the curation REST API.
type Backend struct {
	t      testing.TB
	server *httptest.Server

	mu          sync.Mutex
	posts       []feed.Post
	topics      []*feed.TopicRecord
	nextTopicID int64
	nextItemID  int64
	prompt      string
	calls       []string
	overrides   [][]backend.OverrideItem
	generated   []backend.GenerateRequest
	ingests     []backend.IngestRequest
	stops       int
	failures    map[string]int
	onPosts     func(r *http.Request)
	onGenerate  func(ids []int64)
}

// NewBackend starts a fake backend and registers cleanup.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{t: t, nextTopicID: 1, nextItemID: 1, failures: make(map[string]int)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", b.handleHealth)
	mux.HandleFunc("GET /api/posts", b.handleListPosts)
	mux.HandleFunc("GET /api/channels", b.handleChannels)
	mux.HandleFunc("POST /api/ingest", b.handleIngest)
	mux.HandleFunc("GET /api/topics", b.handleListTopics)
	mux.HandleFunc("POST /api/topics", b.handleCreateTopic)
	mux.HandleFunc("DELETE /api/topics/{id}", b.handleDeleteTopic)
	mux.HandleFunc("POST /api/topics/add", b.handleAddItem)
	mux.HandleFunc("DELETE /api/topics/remove", b.handleRemoveItem)
	mux.HandleFunc("POST /api/comments/generate", b.handleGenerate)
	mux.HandleFunc("POST /api/comments/generate_override", b.handleOverride)
	mux.HandleFunc("POST /api/comments/stop", b.handleStop)
	mux.HandleFunc("DELETE /api/comments", b.handleDeleteComments)
	mux.HandleFunc("PUT /api/comments", b.handleEditComment)
	mux.HandleFunc("GET /api/prompt", b.handleGetPrompt)
	mux.HandleFunc("PUT /api/prompt", b.handleSetPrompt)
	b.server = httptest.NewServer(b.record(mux))
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the server root.
func (b *Backend) URL() string {
	return b.server.URL
}

// Client returns a REST client pointed at the fake.
func (b *Backend) Client(opts ...backend.Option) *backend.Client {
	return backend.NewClient(backend.Config{BaseURL: b.URL()}, opts...)
}

// SetPosts replaces the served posts.
func (b *Backend) SetPosts(posts ...feed.Post) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts = slices.Clone(posts)
}

// SetComment sets the generated comment of a served post.
func (b *Backend) SetComment(id int64, comment string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setCommentLocked(id, comment)
}

// Comment returns the served comment of id.
func (b *Backend) Comment(id int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.posts {
		if p.ID == id {
			return p.AIComment
		}
	}
	return ""
}

// AddTopic seeds a topic with member ids and returns its id.
func (b *Backend) AddTopic(name string, ids ...int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextTopicID
	b.nextTopicID++
	b.topics = append(b.topics, &feed.TopicRecord{ID: id, Name: name, MessageIDs: slices.Clone(ids), Items: []feed.Snapshot{}})
	return id
}

// Topic returns a copy of the topic called name.
func (b *Backend) Topic(name string) (feed.TopicRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.topics {
		if t.Name == name {
			return *t, true
		}
	}
	return feed.TopicRecord{}, false
}

// Fail makes route ("METHOD /path") answer with status until cleared with 0.
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, route)
		return
	}
	b.failures[route] = status
}

// OnListPosts runs fn before every GET /api/posts response.
func (b *Backend) OnListPosts(fn func(r *http.Request)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPosts = fn
}

// OnGenerate runs fn with the submitted ids after a generate request.
func (b *Backend) OnGenerate(fn func(ids []int64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onGenerate = fn
}

// Calls returns the "METHOD /path" of every request received.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// Overrides returns the generate_override batches received.
func (b *Backend) Overrides() [][]backend.OverrideItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.overrides)
}

// Generated returns the generate batches received.
func (b *Backend) Generated() []backend.GenerateRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.generated)
}

// Ingests returns the ingest requests received.
func (b *Backend) Ingests() []backend.IngestRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.ingests)
}

// Stops returns the number of stop requests received.
func (b *Backend) Stops() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stops
}

// Prompt returns the stored prompt template.
func (b *Backend) Prompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prompt
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		b.mu.Lock()
		b.calls = append(b.calls, route)
		status, failing := b.failures[route]
		b.mu.Unlock()
		if failing {
			http.Error(w, `{"detail":"injected failure"}`, status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		b.t.Errorf("encode response: %v", err)
	}
}

func (b *Backend) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return false
	}
	return true
}

func (b *Backend) handleHealth(w http.ResponseWriter, _ *http.Request) {
	b.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (b *Backend) handleListPosts(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	hook := b.onPosts
	b.mu.Unlock()
	if hook != nil {
		hook(r)
	}

	query := r.URL.Query()
	username := query.Get("username")
	channelID, _ := strconv.ParseInt(query.Get("channel_id"), 10, 64)
	fwd := query.Get("fwd_username")
	limit, _ := strconv.Atoi(query.Get("limit"))

	b.mu.Lock()
	items := make([]feed.Post, 0, len(b.posts))
	for _, p := range b.posts {
		if username != "" && p.Username != username {
			continue
		}
		if channelID != 0 && p.TgID != channelID {
			continue
		}
		if fwd != "" && (p.Forward == nil || p.Forward.FromUsername != fwd) {
			continue
		}
		items = append(items, p)
		if limit > 0 && len(items) == limit {
			break
		}
	}
	b.mu.Unlock()
	b.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (b *Backend) handleChannels(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	seen := make(map[int64]bool)
	var items []feed.Channel
	for _, p := range b.posts {
		if seen[p.TgID] {
			continue
		}
		seen[p.TgID] = true
		items = append(items, feed.Channel{ID: p.TgID, Username: p.Username, Name: p.ChannelLabel()})
	}
	b.mu.Unlock()
	b.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (b *Backend) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req backend.IngestRequest
	if !b.decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	b.ingests = append(b.ingests, req)
	b.mu.Unlock()
	b.writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
}

func (b *Backend) handleListTopics(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	items := make([]feed.TopicRecord, 0, len(b.topics))
	for _, t := range b.topics {
		items = append(items, *t)
	}
	b.mu.Unlock()
	b.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (b *Backend) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !b.decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	id := b.nextTopicID
	b.nextTopicID++
	b.topics = append(b.topics, &feed.TopicRecord{ID: id, Name: req.Name, MessageIDs: []int64{}, Items: []feed.Snapshot{}})
	b.mu.Unlock()
	b.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (b *Backend) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	before := len(b.topics)
	b.topics = slices.DeleteFunc(b.topics, func(t *feed.TopicRecord) bool { return t.ID == id })
	found := len(b.topics) != before
	b.mu.Unlock()
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) topicLocked(id int64) *feed.TopicRecord {
	for _, t := range b.topics {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (b *Backend) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req backend.AddTopicItem
	if !b.decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	topic := b.topicLocked(req.TopicID)
	if topic == nil {
		http.Error(w, "topic not found", http.StatusNotFound)
		return
	}
	if req.PostText != "" {
		topic.Items = append(topic.Items, feed.Snapshot{
			ItemID:          b.nextItemID,
			MessageID:       req.MessageID,
			ChannelTgID:     req.ChannelTgID,
			MsgID:           req.MsgID,
			PostText:        req.PostText,
			CommentText:     req.CommentText,
			ChannelUsername: req.ChannelUsername,
			SourceURL:       req.SourceURL,
		})
		b.nextItemID++
	} else if !slices.Contains(topic.MessageIDs, req.MessageID) {
		topic.MessageIDs = append(topic.MessageIDs, req.MessageID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	var req backend.RemoveTopicItem
	if !b.decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	topic := b.topicLocked(req.TopicID)
	if topic == nil {
		http.Error(w, "topic not found", http.StatusNotFound)
		return
	}
	topic.MessageIDs = slices.DeleteFunc(topic.MessageIDs, func(id int64) bool { return id == req.MessageID })
	topic.Items = slices.DeleteFunc(topic.Items, func(s feed.Snapshot) bool {
		return (req.TopicItemID != 0 && s.ItemID == req.TopicItemID) || (req.MessageID != 0 && s.MessageID == req.MessageID)
	})
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req backend.GenerateRequest
	if !b.decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	b.generated = append(b.generated, req)
	hook := b.onGenerate
	b.mu.Unlock()
	if hook != nil {
		hook(req.MessageIDs)
	}
	b.writeJSON(w, http.StatusAccepted, map[string]any{"queued": len(req.MessageIDs)})
}

func (b *Backend) handleOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []backend.OverrideItem `json:"items"`
	}
	if !b.decode(w, r, &req) {
		return
	}
	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.MessageID)
	}
	b.mu.Lock()
	b.overrides = append(b.overrides, req.Items)
	hook := b.onGenerate
	b.mu.Unlock()
	if hook != nil {
		hook(ids)
	}
	b.writeJSON(w, http.StatusAccepted, map[string]any{"queued": len(ids)})
}

func (b *Backend) handleStop(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	b.stops++
	b.mu.Unlock()
	b.writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (b *Backend) handleDeleteComments(w http.ResponseWriter, r *http.Request) {
	var req backend.DeleteCommentsRequest
	if !b.decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.posts {
		p := &b.posts[i]
		switch {
		case len(req.MessageIDs) > 0:
			if slices.Contains(req.MessageIDs, p.ID) {
				p.AIComment = ""
			}
		case req.Username != "":
			if p.Username == req.Username {
				p.AIComment = ""
			}
		case req.ChannelID != 0:
			if p.TgID == req.ChannelID {
				p.AIComment = ""
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleEditComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
	}
	if !b.decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	found := b.setCommentLocked(req.MessageID, req.Text)
	b.mu.Unlock()
	if !found {
		http.Error(w, "message not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleGetPrompt(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	prompt := b.prompt
	b.mu.Unlock()
	b.writeJSON(w, http.StatusOK, map[string]string{"template": prompt})
}

func (b *Backend) handleSetPrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template string `json:"template"`
	}
	if !b.decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	b.prompt = req.Template
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) setCommentLocked(id int64, comment string) bool {
	for i := range b.posts {
		if b.posts[i].ID == id {
			b.posts[i].AIComment = comment
			return true
		}
	}
	return false
}

// Post builds a post in channel @username with the given id and text.
func Post(id int64, username, text string) feed.Post {
	return feed.Post{
		ID:              id,
		ChannelIdentity: feed.ChannelIdentity{TgID: 1000, Username: username, Title: "Channel " + username},
		Text:            text,
		MsgID:           id * 10,
	}
}
