package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"storyboard-api/autosave"
	"storyboard-api/board"
	"storyboard-api/domain"
	"storyboard-api/storage"
)

const testDelay = 50 * time.Millisecond

type cardPatch struct {
	ID    string
	Patch map[string]any
}

// fakeRemote keeps projects and cards in memory.
type fakeRemote struct {
	mu         sync.Mutex
	projects   map[string]domain.Project
	cards      map[string]domain.Card
	patches    []cardPatch
	cleanups   []string
	nextID     int
	creates    int
	createErr  error
	cardsErr   error
	listErr    error
	cleanupErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		projects: make(map[string]domain.Project),
		cards:    make(map[string]domain.Card),
	}
}

func (f *fakeRemote) seed(userID, projectID string, texts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[projectID] = domain.Project{ID: projectID, UserID: userID, Title: projectID}
	for i, text := range texts {
		f.cards[text] = domain.Card{ID: text, ProjectID: projectID, Text: text, SortOrder: i + 1}
	}
}

func (f *fakeRemote) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Project
	for _, p := range f.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) GetProject(ctx context.Context, id string) (domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return domain.Project{}, &storage.RemoteError{Collection: "projects", Op: "select", Err: storage.ErrNotFound}
	}
	return p, nil
}

func (f *fakeRemote) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return domain.Project{}, f.createErr
	}
	f.nextID++
	p.ID = fmt.Sprintf("p%d", f.nextID)
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeRemote) UpdateProject(ctx context.Context, id string, patch map[string]any) error {
	return nil
}

func (f *fakeRemote) DeleteProject(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.projects, id)
	return nil
}

func (f *fakeRemote) EnqueueCleanup(ctx context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cleanupErr != nil {
		return f.cleanupErr
	}
	f.cleanups = append(f.cleanups, projectID)
	return nil
}

func (f *fakeRemote) ListCards(ctx context.Context, projectID string) ([]domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Card
	for _, c := range f.cards {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (f *fakeRemote) InsertCards(ctx context.Context, cards []domain.Card) ([]domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cardsErr != nil {
		return nil, f.cardsErr
	}
	out := make([]domain.Card, len(cards))
	for i, c := range cards {
		f.nextID++
		c.ID = fmt.Sprintf("c%d", f.nextID)
		f.cards[c.ID] = c
		out[i] = c
	}
	return out, nil
}

func (f *fakeRemote) UpdateCard(ctx context.Context, id string, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, cardPatch{ID: id, Patch: patch})
	c, ok := f.cards[id]
	if !ok {
		return &storage.RemoteError{Collection: "cards", Op: "update", Err: storage.ErrNotFound}
	}
	for field, value := range patch {
		c, _ = c.WithField(field, value)
	}
	f.cards[id] = c
	return nil
}

func (f *fakeRemote) DeleteCard(ctx context.Context, projectID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cards[id]; ok && c.ProjectID == projectID {
		delete(f.cards, id)
	}
	return nil
}

func (f *fakeRemote) cardPatches() []cardPatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cardPatch(nil), f.patches...)
}

func (f *fakeRemote) card(id string) (domain.Card, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	return c, ok
}

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	return "user", nil
}

type testServer struct {
	e        *echo.Echo
	remote   *fakeRemote
	registry *board.Registry
	hook     *test.Hook
}

func newTestServer(t *testing.T, deduper Deduper) *testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	remote := newFakeRemote()
	registry := board.NewRegistry(remote, logger, time.Minute, autosave.WithDelay(testDelay))
	projects := board.NewProjects(remote, registry, logger, autosave.WithDelay(testDelay))
	t.Cleanup(func() {
		registry.Shutdown()
		projects.Close()
	})

	e := echo.New()
	e.JSONSerializer = SonicSerializer{}
	Register(e, projects, registry, mockAuth{}, deduper, logger)
	return &testServer{e: e, remote: remote, registry: registry, hook: hook}
}

func (s *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeCards(t *testing.T, rec *httptest.ResponseRecorder) []domain.Card {
	t.Helper()
	var resp cardsResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode cards: %v (%s)", err, rec.Body.String())
	}
	return resp.Cards
}

func cardIDs(cards []domain.Card) string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return strings.Join(ids, ",")
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within 1s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequiresAuthorization(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListProjectsFiltersBySearch(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "Alpha")
	s.remote.seed("user", "Beta")
	s.remote.seed("someone-else", "Alphabet")

	rec := s.do(http.MethodGet, "/api/projects?search=alp", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var resp projectsResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Projects) != 1 || resp.Projects[0].ID != "Alpha" {
		t.Fatalf("unexpected projects: %+v", resp.Projects)
	}

	rec = s.do(http.MethodGet, "/api/projects?search=zzz", "")
	if !strings.Contains(rec.Body.String(), `"projects":[]`) {
		t.Fatalf("expected an empty list, got %s", rec.Body.String())
	}
}

func TestCreateProjectIsIdempotent(t *testing.T) {
	_, client := setupRedis(t)
	s := newTestServer(t, NewRedisDeduper(client, time.Minute))

	first := s.do(http.MethodPost, "/api/projects", "", IdempotencyKeyHeader, "k1")
	if first.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d %s", first.Code, first.Body.String())
	}
	var created createProjectResponse
	if err := sonic.Unmarshal(first.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Title != domain.DefaultProjectTitle || created.Description != domain.DefaultProjectDescription {
		t.Fatalf("unexpected defaults: %+v", created.Project)
	}
	if created.Warning != "" {
		t.Fatalf("unexpected warning: %q", created.Warning)
	}
	cards, _ := s.remote.ListCards(context.Background(), created.ID)
	if len(cards) != domain.DefaultCardCount {
		t.Fatalf("expected %d default cards, got %d", domain.DefaultCardCount, len(cards))
	}

	second := s.do(http.MethodPost, "/api/projects", "", IdempotencyKeyHeader, "k1")
	if second.Code != http.StatusOK {
		t.Fatalf("expected replay with 200, got %d", second.Code)
	}
	var replayed createProjectResponse
	if err := sonic.Unmarshal(second.Body.Bytes(), &replayed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if replayed.ID != created.ID {
		t.Fatalf("replay returned %q, want %q", replayed.ID, created.ID)
	}
	if s.remote.creates != 1 {
		t.Fatalf("expected a single create, got %d", s.remote.creates)
	}
}

func TestCreateProjectFailureReleasesKey(t *testing.T) {
	_, client := setupRedis(t)
	s := newTestServer(t, NewRedisDeduper(client, time.Minute))
	s.remote.createErr = &storage.RemoteError{Collection: "projects", Op: "insert", StatusCode: http.StatusServiceUnavailable, Err: errors.New("unavailable")}

	rec := s.do(http.MethodPost, "/api/projects", "", IdempotencyKeyHeader, "k1")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "unavailable") {
		t.Fatalf("remote error leaked to the client: %s", rec.Body.String())
	}

	s.remote.createErr = nil
	rec = s.do(http.MethodPost, "/api/projects", "", IdempotencyKeyHeader, "k1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected retry to create, got %d", rec.Code)
	}
}

func TestCreateProjectWithoutDefaultCardsWarns(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.cardsErr = errors.New("insert failed")

	rec := s.do(http.MethodPost, "/api/projects", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp createProjectResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" || resp.Warning != defaultCardsWarning {
		t.Fatalf("unexpected response: %+v", resp)
	}

	var logged bool
	for _, entry := range s.hook.AllEntries() {
		if entry.Message == "create default cards failed" && entry.Level == log.ErrorLevel {
			logged = true
		}
	}
	if !logged {
		t.Fatalf("expected the card failure to be logged")
	}
}

func TestProjectRoutesCheckOwnership(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("someone-else", "p1", "A")

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/projects/p1/cards", ""},
		{http.MethodGet, "/api/projects/missing/cards", ""},
		{http.MethodDelete, "/api/projects/p1", ""},
		{http.MethodPut, "/api/projects/p1/ratio", `{"ratio":"16:9"}`},
		{http.MethodPatch, "/api/projects/p1", `{"field":"title","value":"x"}`},
	} {
		if rec := s.do(tc.method, tc.path, tc.body); rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, rec.Code)
		}
	}
	if _, ok := s.registry.Lookup("p1"); ok {
		t.Fatalf("session opened for a foreign project")
	}
}

func TestEditProjectValidatesInput(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1")

	if rec := s.do(http.MethodPatch, "/api/projects/p1", `{"field":"user_id","value":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a read-only field, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPatch, "/api/projects/p1", `{"field":"title","value":"x","extra":1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown body fields, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPut, "/api/projects/p1/ratio", `{"ratio":"4:3"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported ratio, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPatch, "/api/projects/p1", `{"field":"title","value":"Pilot"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestDeleteProjectEnqueuesCleanup(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1", "A")
	if rec := s.do(http.MethodGet, "/api/projects/p1/cards", ""); rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	if rec := s.do(http.MethodDelete, "/api/projects/p1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := s.registry.Lookup("p1"); ok {
		t.Fatalf("expected the session to be closed")
	}
	if len(s.remote.cleanups) != 1 || s.remote.cleanups[0] != "p1" {
		t.Fatalf("unexpected cleanups: %v", s.remote.cleanups)
	}
}

func TestDeleteProjectWithFailedCleanupStillSucceeds(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1", "A")
	s.remote.cleanupErr = &storage.RemoteError{Collection: "cleanup", Op: "enqueue", StatusCode: http.StatusServiceUnavailable, Err: errors.New("busy")}

	if rec := s.do(http.MethodDelete, "/api/projects/p1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/projects/p1/cards", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected the project to be gone, got %d", rec.Code)
	}
}

func TestListCardsMapsRemoteFailure(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1", "A")
	s.remote.listErr = &storage.RemoteError{Collection: "cards", Op: "select", StatusCode: http.StatusInternalServerError, Err: errors.New("boom")}

	rec := s.do(http.MethodGet, "/api/projects/p1/cards", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), http.StatusText(http.StatusBadGateway)) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestReorderCardsPersistsSortOrder(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1", "A", "B", "C")

	rec := s.do(http.MethodPost, "/api/projects/p1/cards/reorder", `{"activeId":"A","overId":"C"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	cards := decodeCards(t, rec)
	if got := cardIDs(cards); got != "B,C,A" {
		t.Fatalf("unexpected order: %s", got)
	}
	for i, c := range cards {
		if c.SortOrder != i+1 {
			t.Fatalf("card %s has sort order %d, want %d", c.ID, c.SortOrder, i+1)
		}
	}

	eventually(t, func() bool { return len(s.remote.cardPatches()) == 3 })
	remote, _ := s.remote.ListCards(context.Background(), "p1")
	if got := cardIDs(remote); got != "B,C,A" {
		t.Fatalf("unexpected remote order: %s", got)
	}

	rec = s.do(http.MethodPost, "/api/projects/p1/cards/reorder", `{"activeId":"A","overId":"missing"}`)
	if got := cardIDs(decodeCards(t, rec)); got != "B,C,A" {
		t.Fatalf("unknown over card changed the order: %s", got)
	}
}

func TestEditCardDebouncesText(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1", "A")

	for _, text := range []string{"h", "he", "hello"} {
		if rec := s.do(http.MethodPatch, "/api/projects/p1/cards/A", `{"field":"text","value":"`+text+`"}`); rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
	}
	eventually(t, func() bool { return len(s.remote.cardPatches()) == 1 })
	if c, _ := s.remote.card("A"); c.Text != "hello" {
		t.Fatalf("unexpected remote text: %q", c.Text)
	}

	if rec := s.do(http.MethodPatch, "/api/projects/p1/cards/A", `{"field":"sort_order","value":"1"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a non-text field, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPatch, "/api/projects/p1/cards/missing", `{"field":"text","value":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown card, got %d", rec.Code)
	}
}

func TestSetImageWritesImmediately(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1", "A")

	if rec := s.do(http.MethodPut, "/api/projects/p1/cards/A/image", `{"url":"https://img/1.png"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	c, _ := s.remote.card("A")
	if c.ImageURL == nil || *c.ImageURL != "https://img/1.png" {
		t.Fatalf("unexpected remote image: %v", c.ImageURL)
	}

	if rec := s.do(http.MethodPut, "/api/projects/p1/cards/A/image", `{"url":null}`); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if c, _ := s.remote.card("A"); c.ImageURL != nil {
		t.Fatalf("expected the image to be cleared, got %v", *c.ImageURL)
	}
}

func TestAddAndRemoveCard(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1", "A", "B")

	rec := s.do(http.MethodPost, "/api/projects/p1/cards", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var card domain.Card
	if err := sonic.Unmarshal(rec.Body.Bytes(), &card); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if card.Text != domain.NewCardText || card.SortOrder != 3 || strings.HasPrefix(card.ID, "pending-") {
		t.Fatalf("unexpected card: %+v", card)
	}

	if rec := s.do(http.MethodDelete, "/api/projects/p1/cards/"+card.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := s.remote.card(card.ID); ok {
		t.Fatalf("expected the card to be deleted remotely")
	}
	if got := cardIDs(decodeCards(t, s.do(http.MethodGet, "/api/projects/p1/cards", ""))); got != "A,B" {
		t.Fatalf("unexpected cards: %s", got)
	}
}

func TestRemoveCardOfAnotherProjectIsNoop(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1", "A")
	s.remote.seed("other", "p2", "X")

	if rec := s.do(http.MethodDelete, "/api/projects/p1/cards/X", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := s.remote.card("X"); !ok {
		t.Fatalf("card of another user's project was deleted")
	}
	if got := cardIDs(decodeCards(t, s.do(http.MethodGet, "/api/projects/p1/cards", ""))); got != "A" {
		t.Fatalf("unexpected cards: %s", got)
	}
}

func TestStreamCardsPushesChanges(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1", "A", "B")

	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/projects/p1/stream?token=abc", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", ct)
	}

	events := make(chan []domain.Card, 4)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var payload cardsResponse
			if sonic.UnmarshalString(data, &payload) == nil {
				events <- payload.Cards
			}
		}
	}()

	next := func() []domain.Card {
		select {
		case cards, ok := <-events:
			if !ok {
				t.Fatalf("stream closed")
			}
			return cards
		case <-time.After(time.Second):
			t.Fatalf("no event within 1s")
		}
		return nil
	}

	if got := cardIDs(next()); got != "A,B" {
		t.Fatalf("unexpected snapshot: %s", got)
	}

	sess, ok := s.registry.Lookup("p1")
	if !ok {
		t.Fatalf("expected an open session")
	}
	sess.DragEnd("B", "A")
	if got := cardIDs(next()); got != "B,A" {
		t.Fatalf("unexpected update: %s", got)
	}
}

func TestStreamRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.seed("user", "p1", "A")

	req := httptest.NewRequest(http.MethodGet, "/api/projects/p1/stream", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
