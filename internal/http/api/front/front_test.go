package front

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/film4u/film4u-ai/internal/assistant"
	"github.com/film4u/film4u-ai/internal/config"
	"github.com/film4u/film4u-ai/internal/guard"
	"github.com/film4u/film4u-ai/internal/http/api/front/handlers"
	"github.com/film4u/film4u-ai/internal/security"
	"github.com/gin-gonic/gin"
)

const testSecret = "front-test-secret"

type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestRouter(t *testing.T, users *guard.MemoryUserStore) *gin.Engine {
	t.Helper()
	return newRouterWithDeps(t, users, nil, nil)
}

func newRouterWithDeps(t *testing.T, users *guard.MemoryUserStore, trending handlers.TrendingSource, store handlers.HistoryStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := guard.DefaultSettingsConfig()
	cfg.GuestDailyLimit = 2
	clock := &steppingClock{now: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	g := guard.New(guard.StaticSettings(cfg), clock, guard.NewMemoryGuestStore(), users)
	svc := assistant.NewService(g, nil, nil)

	r := gin.New()
	deps := Dependencies{Assistant: svc, Quotas: g, Trending: trending, History: store}
	RegisterFrontRoutes(r, deps, config.JWTConfig{Secret: testSecret})
	return r
}

func postJSON(r http.Handler, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), errDecode)
	}
	return out
}

func TestChatOfflineReplyForGuest(t *testing.T) {
	r := newTestRouter(t, guard.NewMemoryUserStore())

	rec := postJSON(r, "/v1/assistant/chat", `{"message":"what should I watch"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["reply"]; got != "AI core offline." {
		t.Fatalf("reply = %v", got)
	}
	session := rec.Header().Get(GuestSessionHeader)
	if _, ok := security.VerifyGuestSession(testSecret, session); !ok {
		t.Fatalf("expected signed session token, got %q", session)
	}
	if cookie := rec.Header().Get("Set-Cookie"); !strings.Contains(cookie, GuestSessionCookie+"="+session) {
		t.Fatalf("expected session cookie, got %q", cookie)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	r := newTestRouter(t, guard.NewMemoryUserStore())

	rec := postJSON(r, "/v1/assistant/chat", `{"message":"  "}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGuestQuotaExceededReturns429(t *testing.T) {
	r := newTestRouter(t, guard.NewMemoryUserStore())
	header := http.Header{GuestSessionHeader: []string{security.NewGuestSession(testSecret)}}

	for i := 0; i < 2; i++ {
		rec := postJSON(r, "/v1/assistant/chat", `{"message":"tell me something"}`, header)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d: %s", i+1, rec.Code, rec.Body.String())
		}
		if rec.Header().Get(GuestSessionHeader) != "" {
			t.Fatalf("session should not be reissued when presented")
		}
	}

	rec := postJSON(r, "/v1/assistant/chat", `{"message":"one more"}`, header)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["reason"] != guard.ReasonGuestQuotaExceeded.String() {
		t.Fatalf("reason = %v", body["reason"])
	}
	if body["error"] != "Guest quota exceeded (2/day). Sign in for 30 daily AI requests." {
		t.Fatalf("error = %v", body["error"])
	}

	other := http.Header{GuestSessionHeader: []string{security.NewGuestSession(testSecret)}}
	if rec := postJSON(r, "/v1/assistant/chat", `{"message":"hi there"}`, other); rec.Code != http.StatusOK {
		t.Fatalf("other session status = %d", rec.Code)
	}
}

func TestBlockedUserReturns403(t *testing.T) {
	users := guard.NewMemoryUserStore()
	users.Put("user-1", guard.UserRecord{IsBlocked: true})
	r := newTestRouter(t, users)

	token, errIssue := security.IssueAccessToken(testSecret, "user-1", "authenticated", time.Hour, time.Now())
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	rec := postJSON(r, "/v1/assistant/insight", `{"movie":{"id":1,"title":"Drishyam"},"kind":"ending"}`, header)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["reason"]; got != guard.ReasonAccountBlocked.String() {
		t.Fatalf("reason = %v", got)
	}
}

func TestInvalidTokenReturns401(t *testing.T) {
	r := newTestRouter(t, guard.NewMemoryUserStore())
	header := http.Header{"Authorization": []string{"Bearer not-a-token"}}

	rec := postJSON(r, "/v1/assistant/chat", `{"message":"hello"}`, header)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRecommendFallsBackToLocalSearch(t *testing.T) {
	r := newTestRouter(t, guard.NewMemoryUserStore())
	body := `{"query":"thriller","catalog":[` +
		`{"id":1,"title":"Drishyam","tags":["Thriller"],"description":"A family man"},` +
		`{"id":"two","title":"Premam","tags":["Romance"],"description":"Three loves"}]}`

	rec := postJSON(r, "/v1/assistant/recommendations", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	ids, ok := decodeBody(t, rec)["ids"].([]any)
	if !ok || len(ids) != 1 || ids[0] != float64(1) {
		t.Fatalf("ids = %v", decodeBody(t, rec)["ids"])
	}
}

func TestQuotaStatusDoesNotConsume(t *testing.T) {
	users := guard.NewMemoryUserStore()
	users.Put("user-2", guard.UserRecord{DailyRequests: 5, TotalRequests: 9, LastRequestDate: "2025-03-10"})
	r := newTestRouter(t, users)

	token, errIssue := security.IssueAccessToken(testSecret, "user-2", "authenticated", time.Hour, time.Now())
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["used"] != float64(5) || body["remaining"] != float64(25) || body["identified"] != true {
			t.Fatalf("unexpected status body: %v", body)
		}
	}
}

func TestGuestScopeFromCookie(t *testing.T) {
	r := newTestRouter(t, guard.NewMemoryUserStore())
	session := security.NewGuestSession(testSecret)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/assistant/chat", strings.NewReader(`{"message":"ok"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: GuestSessionCookie, Value: session})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d status = %d, want %d", i+1, rec.Code, want)
		}
	}
}

func TestFirstGuestRequestCountsAgainstIssuedSession(t *testing.T) {
	r := newTestRouter(t, guard.NewMemoryUserStore())

	first := postJSON(r, "/v1/assistant/chat", `{"message":"hello?"}`, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d: %s", first.Code, first.Body.String())
	}
	session := first.Header().Get(GuestSessionHeader)
	if session == "" {
		t.Fatalf("expected a session to be issued")
	}
	header := http.Header{GuestSessionHeader: []string{session}}

	if rec := postJSON(r, "/v1/assistant/chat", `{"message":"again"}`, header); rec.Code != http.StatusOK {
		t.Fatalf("second status = %d", rec.Code)
	}
	rec := postJSON(r, "/v1/assistant/chat", `{"message":"third"}`, header)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third status = %d, want 429 with the first request counted", rec.Code)
	}
}

func TestForgedGuestSessionIsReplaced(t *testing.T) {
	r := newTestRouter(t, guard.NewMemoryUserStore())
	session := security.NewGuestSession(testSecret)
	header := http.Header{GuestSessionHeader: []string{session}}
	for i := 0; i < 2; i++ {
		if rec := postJSON(r, "/v1/assistant/chat", `{"message":"use it up"}`, header); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}

	id, _, _ := strings.Cut(session, ".")
	forged := http.Header{GuestSessionHeader: []string{id + ".00000000000000000000000000000000"}}
	rec := postJSON(r, "/v1/assistant/chat", `{"message":"forged"}`, forged)
	if rec.Code != http.StatusOK {
		t.Fatalf("forged status = %d", rec.Code)
	}
	issued := rec.Header().Get(GuestSessionHeader)
	if issued == "" || issued == session {
		t.Fatalf("expected a replacement session, got %q", issued)
	}
	if rec := postJSON(r, "/v1/assistant/chat", `{"message":"original"}`, header); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("original session status = %d, want 429", rec.Code)
	}
}
