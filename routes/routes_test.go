package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/phillip/haojiu-go/config"
	"github.com/phillip/haojiu-go/controllers"
	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
	"github.com/phillip/haojiu-go/utils"
)

func TestMain(m *testing.M) {
	logger.Silence()
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testServer struct {
	r     *gin.Engine
	store *store.Memory
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	return newServerWith(t, nil)
}

func newServerWith(t *testing.T, uploader utils.Uploader) *testServer {
	t.Helper()
	cfg := &config.Config{
		Env:               "test",
		JWTSecret:         "test-secret",
		JWTTTL:            time.Hour,
		CORSOrigins:       []string{"http://localhost:5173"},
		ChatRatePerMinute: 2,
		Location:          time.UTC,
	}
	s := store.NewMemory()
	env := controllers.NewEnv(cfg, s, uploader, nil, nil)
	r := gin.New()
	SetupRoutes(r, env)
	return &testServer{r: r, store: s}
}

func (ts *testServer) do(method, path, token string, body any, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.r.ServeHTTP(w, req)
	return w
}

type account struct {
	Token string
	ID    string
}

func (ts *testServer) register(t *testing.T, email, nickname string) account {
	t.Helper()
	w := ts.do("POST", "/auth/register", "", gin.H{"email": email, "password": "secret123", "nickname": nickname})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var cred struct {
		Token   string `json:"token"`
		Session struct {
			UserID string `json:"user_id"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cred))
	return account{Token: cred.Token, ID: cred.Session.UserID}
}

func (ts *testServer) promote(t *testing.T, a account) {
	t.Helper()
	require.NoError(t, ts.store.Update(context.Background(), store.Users, a.ID, bson.M{"role": models.RoleAdmin}))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndAuthGate(t *testing.T) {
	ts := newServer(t)

	assert.Equal(t, http.StatusOK, ts.do("GET", "/health", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do("GET", "/events", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do("GET", "/events", "garbage", nil).Code)
}

func TestRegisterLoginLogout(t *testing.T) {
	ts := newServer(t)
	amy := ts.register(t, "amy@example.com", "Amy")

	w := ts.do("POST", "/auth/register", "", gin.H{"email": "AMY@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = ts.do("POST", "/auth/register", "", gin.H{"email": "bob@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do("POST", "/auth/login", "", gin.H{"email": "amy@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do("POST", "/auth/login", "", gin.H{"email": "amy@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)

	me := decode[models.User](t, ts.do("GET", "/users/me", amy.Token, nil))
	assert.Equal(t, "Amy", me.Profile.Nickname)
	assert.NotContains(t, ts.do("GET", "/users/me", amy.Token, nil).Body.String(), "password")

	require.Equal(t, http.StatusOK, ts.do("POST", "/auth/logout", amy.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do("GET", "/users/me", amy.Token, nil).Code)
}

func createEvent(t *testing.T, ts *testServer, a account, title string) models.Event {
	t.Helper()
	w := ts.do("POST", "/events", a.Token, gin.H{
		"title":           title,
		"city":            "高雄市",
		"category":        "電影",
		"event_timestamp": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Event](t, w)
}

func TestEventResponses(t *testing.T) {
	ts := newServer(t)
	amy := ts.register(t, "amy@example.com", "Amy")
	bob := ts.register(t, "bob@example.com", "Bob")
	ev := createEvent(t, ts, amy, "科幻電影")
	assert.Equal(t, "Amy", ev.Creator)
	assert.Equal(t, models.InPerson, ev.EventType)

	path := "/events/" + ev.ID + "/respond"
	got := decode[models.Event](t, ts.do("POST", path, bob.Token, gin.H{"response": "wantToGo"}))
	assert.Equal(t, 1, got.Responses.WantToGo)

	got = decode[models.Event](t, ts.do("POST", path, bob.Token, gin.H{"response": "interested"}))
	assert.Equal(t, 0, got.Responses.WantToGo)
	assert.Equal(t, 1, got.Responses.Interested)

	// choosing the same response again clears it
	got = decode[models.Event](t, ts.do("POST", path, bob.Token, gin.H{"response": "interested"}))
	assert.Equal(t, models.ResponseCounts{}, got.Responses)
	assert.Empty(t, got.Responders)

	assert.Equal(t, http.StatusBadRequest, ts.do("POST", path, bob.Token, gin.H{"response": "maybe"}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do("POST", "/events/nope/respond", bob.Token, gin.H{"response": "cantGo"}).Code)
}

func TestEventListETagAndFilters(t *testing.T) {
	ts := newServer(t)
	amy := ts.register(t, "amy@example.com", "Amy")
	createEvent(t, ts, amy, "科幻電影")

	w := ts.do("GET", "/events?city="+url.QueryEscape("高雄市"), amy.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Event](t, w), 1)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	assert.Equal(t, http.StatusNotModified, ts.do("GET", "/events?city="+url.QueryEscape("高雄市"), amy.Token, nil, "If-None-Match", etag).Code)

	w = ts.do("GET", "/events?city="+url.QueryEscape("台北市"), amy.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	w = ts.do("GET", "/events?date_range=today", amy.Token, nil)
	assert.Equal(t, "[]", w.Body.String())
}

func TestEventPermissions(t *testing.T) {
	ts := newServer(t)
	amy := ts.register(t, "amy@example.com", "Amy")
	bob := ts.register(t, "bob@example.com", "Bob")
	ev := createEvent(t, ts, amy, "讀書會")

	assert.Equal(t, http.StatusForbidden, ts.do("PATCH", "/events/"+ev.ID, bob.Token, gin.H{"title": "mine now"}).Code)
	assert.Equal(t, http.StatusOK, ts.do("PATCH", "/events/"+ev.ID, amy.Token, gin.H{"title": "讀書會 2"}).Code)

	// poster generation has no image backend in tests
	assert.Equal(t, http.StatusForbidden, ts.do("POST", "/events/"+ev.ID+"/poster", bob.Token, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do("POST", "/events/"+ev.ID+"/poster", amy.Token, nil).Code)

	assert.Equal(t, http.StatusForbidden, ts.do("DELETE", "/admin/events/"+ev.ID, bob.Token, nil).Code)
	ts.promote(t, bob)

	found := decode[[]models.Event](t, ts.do("GET", "/admin/events?q=amy", bob.Token, nil))
	require.Len(t, found, 1)
	assert.Equal(t, "讀書會 2", found[0].Title)

	assert.Equal(t, http.StatusOK, ts.do("DELETE", "/admin/events/"+ev.ID, bob.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do("GET", "/events/"+ev.ID, amy.Token, nil).Code)
}

func TestChallengeWorkflow(t *testing.T) {
	ts := newServer(t)
	host := ts.register(t, "host@example.com", "Host")
	bob := ts.register(t, "bob@example.com", "Bob")

	w := ts.do("POST", "/challenges", host.Token, gin.H{
		"title":           "港都飲品",
		"event_timestamp": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"treasure_points": []gin.H{{"name": "冬瓜茶", "lat": 22.626, "lng": 120.282}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ch := decode[models.Challenge](t, w)
	require.Len(t, ch.TreasurePoints, 1)
	base := "/challenges/" + ch.ID
	point := base + "/points/" + ch.TreasurePoints[0].ID

	// not on the team yet
	assert.Equal(t, http.StatusForbidden, ts.do("POST", point+"/submit", bob.Token, gin.H{"photo_url": "https://img/1.jpg"}).Code)

	require.Equal(t, http.StatusOK, ts.do("POST", base+"/join", bob.Token, nil).Code)
	require.Equal(t, http.StatusOK, ts.do("POST", base+"/join", host.Token, nil).Code)

	got := decode[models.Challenge](t, ts.do("POST", point+"/submit", bob.Token, gin.H{"photo_url": "https://img/1.jpg"}))
	assert.Equal(t, models.PointPending, got.TreasurePoints[0].Status)
	require.NotNil(t, got.TreasurePoints[0].Submission)
	assert.Equal(t, bob.ID, got.TreasurePoints[0].Submission.SubmittedBy)

	assert.Equal(t, http.StatusForbidden, ts.do("POST", point+"/review", bob.Token, gin.H{"approve": true}).Code)

	got = decode[models.Challenge](t, ts.do("POST", point+"/review", host.Token, gin.H{"approve": true}))
	assert.Equal(t, models.PointCompleted, got.TreasurePoints[0].Status)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 1, got.Progress.Completed)

	assert.Equal(t, http.StatusUnprocessableEntity, ts.do("POST", point+"/review", host.Token, gin.H{"approve": false}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do("POST", base+"/points/tp-nope/review", host.Token, gin.H{"approve": true}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do("POST", point+"/review", host.Token, gin.H{}).Code)
}

func TestCreateTeamNeedsFriends(t *testing.T) {
	ts := newServer(t)
	host := ts.register(t, "host@example.com", "Host")
	amy := ts.register(t, "amy@example.com", "Amy")
	bob := ts.register(t, "bob@example.com", "Bob")

	w := ts.do("POST", "/challenges", host.Token, gin.H{
		"title":           "藝術尋蹤",
		"treasure_points": []gin.H{{"name": "壁畫"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	ch := decode[models.Challenge](t, w)
	team := "/challenges/" + ch.ID + "/team"

	assert.Equal(t, http.StatusBadRequest, ts.do("POST", team, amy.Token, gin.H{"friend_ids": []string{bob.ID}}).Code)

	require.Equal(t, http.StatusOK, ts.do("POST", "/friends/requests/"+bob.ID, amy.Token, nil).Code)
	require.Equal(t, http.StatusOK, ts.do("POST", "/friends/requests/"+amy.ID+"/accept", bob.Token, nil).Code)

	type teamResult struct {
		Challenge models.Challenge    `json:"challenge"`
		Added     []models.TeamMember `json:"added"`
	}
	res := decode[teamResult](t, ts.do("POST", team, amy.Token, gin.H{"friend_ids": []string{bob.ID}}))
	assert.Len(t, res.Challenge.Team, 2)
	assert.Len(t, res.Added, 2)
}

func TestFriendsAndNotifications(t *testing.T) {
	ts := newServer(t)
	amy := ts.register(t, "amy@example.com", "Amy")
	bob := ts.register(t, "bob@example.com", "Bob")
	carl := ts.register(t, "carl@example.com", "Carl")

	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/friends/requests/"+amy.ID, amy.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do("POST", "/friends/requests/ghost", amy.Token, nil).Code)
	assert.Equal(t, http.StatusConflict, ts.do("POST", "/friends/requests/"+amy.ID+"/accept", bob.Token, nil).Code)

	require.Equal(t, http.StatusOK, ts.do("POST", "/friends/requests/"+bob.ID, amy.Token, nil).Code)
	assert.Equal(t, http.StatusConflict, ts.do("POST", "/friends/requests/"+bob.ID, amy.Token, nil).Code)
	assert.Equal(t, http.StatusConflict, ts.do("POST", "/friends/requests/"+amy.ID, bob.Token, nil).Code)

	unread := decode[map[string]int](t, ts.do("GET", "/notifications/unread", bob.Token, nil))
	assert.Equal(t, 1, unread["unread"])
	notes := decode[[]models.Notification](t, ts.do("GET", "/notifications", bob.Token, nil))
	require.Len(t, notes, 1)
	assert.Equal(t, amy.ID, notes[0].ActorID)

	assert.Equal(t, http.StatusNotFound, ts.do("PATCH", "/notifications/"+notes[0].ID+"/read", amy.Token, nil).Code)
	require.Equal(t, http.StatusOK, ts.do("PATCH", "/notifications/"+notes[0].ID+"/read", bob.Token, nil).Code)
	unread = decode[map[string]int](t, ts.do("GET", "/notifications/unread", bob.Token, nil))
	assert.Equal(t, 0, unread["unread"])

	require.Equal(t, http.StatusOK, ts.do("POST", "/friends/requests/"+amy.ID+"/accept", bob.Token, nil).Code)
	lists := decode[map[string][]models.Contact](t, ts.do("GET", "/friends", amy.Token, nil))
	require.Len(t, lists["friends"], 1)
	assert.Equal(t, bob.ID, lists["friends"][0].UserID)
	assert.Empty(t, lists["outgoing_requests"])

	w := ts.do("POST", "/friends/groups", amy.Token, gin.H{"name": "羽球好咖", "member_ids": []string{bob.ID}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{amy.ID, bob.ID}, decode[models.Group](t, w).Members)
	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/friends/groups", amy.Token, gin.H{"name": "x", "member_ids": []string{carl.ID}}).Code)

	// carl cancels his own request to amy
	require.Equal(t, http.StatusOK, ts.do("POST", "/friends/requests/"+amy.ID, carl.Token, nil).Code)
	require.Equal(t, http.StatusOK, ts.do("DELETE", "/friends/requests/"+amy.ID, carl.Token, nil).Code)
	lists = decode[map[string][]models.Contact](t, ts.do("GET", "/friends", amy.Token, nil))
	assert.Empty(t, lists["incoming_requests"])
}

func TestChatRateLimited(t *testing.T) {
	ts := newServer(t)
	amy := ts.register(t, "amy@example.com", "Amy")
	ev := createEvent(t, ts, amy, "聊天")
	path := "/events/" + ev.ID + "/messages"

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, ts.do("POST", path, amy.Token, gin.H{"text": fmt.Sprintf("hi %d", i)}).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, ts.do("POST", path, amy.Token, gin.H{"text": "too fast"}).Code)

	msgs := decode[[]models.Message](t, ts.do("GET", path, amy.Token, nil))
	require.Len(t, msgs, 2)
	assert.Equal(t, ev.ChatID(), msgs[0].ChatID)

	// the same chat is reachable by id
	msgs = decode[[]models.Message](t, ts.do("GET", "/chats/"+ev.ChatID()+"/messages?limit=1", amy.Token, nil))
	assert.Len(t, msgs, 1)
	assert.Equal(t, http.StatusBadRequest, ts.do("GET", path+"?limit=zero", amy.Token, nil).Code)
}

func TestUsersVisibility(t *testing.T) {
	ts := newServer(t)
	amy := ts.register(t, "amy@example.com", "Amy")
	bob := ts.register(t, "bob@example.com", "Bob")

	public := decode[map[string]any](t, ts.do("GET", "/users/"+amy.ID, bob.Token, nil))
	assert.NotContains(t, public, "email")
	assert.Contains(t, public, "profile")

	w := ts.do("PATCH", "/users/me", bob.Token, gin.H{"nickname": "Bobby", "bio": "羽球"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bobby", decode[models.User](t, w).Profile.Nickname)
	assert.Equal(t, http.StatusBadRequest, ts.do("PATCH", "/users/me", bob.Token, gin.H{"nickname": "  "}).Code)

	// no avatar file in the request
	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/users/me/avatar", bob.Token, nil).Code)

	assert.Equal(t, http.StatusForbidden, ts.do("GET", "/admin/users", bob.Token, nil).Code)
	ts.promote(t, bob)
	assert.Len(t, decode[[]models.User](t, ts.do("GET", "/admin/users", bob.Token, nil)), 2)
}
