package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/enpointe/notes/internal/auth"
	"github.com/enpointe/notes/internal/database"
	"github.com/enpointe/notes/internal/notes"
	"github.com/enpointe/notes/internal/realtime"
	"github.com/enpointe/notes/internal/server"
	"github.com/enpointe/notes/internal/users"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "notes_token"
	sessionIssuer        = "notes-api"
	sessionAudience      = "notes-web"
	shareBaseURL         = "https://notes.example.com"
	jsonContentType      = "application/json"
	readTimeout          = 2 * time.Second
)

type apiHarness struct {
	t      *testing.T
	server *httptest.Server
}

type apiResponse struct {
	status  int
	body    map[string]any
	cookies []*http.Cookie
}

type wsEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func newAPIHarness(testContext *testing.T) *apiHarness {
	testContext.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "notes.db"), logger)
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	testContext.Cleanup(func() { _ = sqlDB.Close() })

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Hasher:   auth.NewPasswordHasher(4),
		Logger:   logger,
	})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		IDProvider: notes.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		testContext.Fatalf("failed to build notes service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		Audience:      sessionAudience,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to build token issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		Audience:      sessionAudience,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to build session validator: %v", err)
	}

	gatekeeper, err := realtime.NewGatekeeper(realtime.GatekeeperConfig{
		Validator:  validator,
		CookieName: sessionCookieName,
		Logger:     logger,
	})
	if err != nil {
		testContext.Fatalf("failed to build gatekeeper: %v", err)
	}
	coordinator, err := realtime.NewCoordinator(realtime.CoordinatorConfig{
		Store:    notesService,
		Registry: realtime.NewRegistry(),
		Logger:   logger,
	})
	if err != nil {
		testContext.Fatalf("failed to build coordinator: %v", err)
	}
	transport, err := realtime.NewTransport(realtime.TransportConfig{
		Gatekeeper:  gatekeeper,
		Coordinator: coordinator,
		Logger:      logger,
	})
	if err != nil {
		testContext.Fatalf("failed to build transport: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: validator,
		TokenIssuer:      issuer,
		UsersService:     usersService,
		NotesService:     notesService,
		Realtime:         transport,
		CookieName:       sessionCookieName,
		ShareBaseURL:     shareBaseURL,
		Logger:           logger,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	testContext.Cleanup(testServer.Close)
	return &apiHarness{t: testContext, server: testServer}
}

func (h *apiHarness) do(method, path, token string, payload any) apiResponse {
	h.t.Helper()
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			h.t.Fatalf("failed to encode payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, h.server.URL+path, body)
	if err != nil {
		h.t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()

	result := apiResponse{status: response.StatusCode, cookies: response.Cookies()}
	if response.StatusCode != http.StatusNoContent {
		var decoded map[string]any
		if err := json.NewDecoder(response.Body).Decode(&decoded); err == nil {
			result.body = decoded
		}
	}
	return result
}

func (h *apiHarness) expect(response apiResponse, status int, errorCode string) {
	h.t.Helper()
	if response.status != status {
		h.t.Fatalf("unexpected status: got %d, want %d (body %v)", response.status, status, response.body)
	}
	if errorCode != "" && response.body["error"] != errorCode {
		h.t.Fatalf("unexpected error code: got %v, want %s", response.body["error"], errorCode)
	}
}

func (h *apiHarness) register(email, password string) (string, string) {
	h.t.Helper()
	response := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "password": password})
	h.expect(response, http.StatusCreated, "")
	token, _ := response.body["access_token"].(string)
	user, _ := response.body["user"].(map[string]any)
	userID, _ := user["user_id"].(string)
	if token == "" || userID == "" {
		h.t.Fatalf("expected token and user id, got %v", response.body)
	}
	return token, userID
}

func (h *apiHarness) dial(token string) *websocket.Conn {
	h.t.Helper()
	endpoint := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		h.t.Fatalf("failed to dial websocket: %v", err)
	}
	h.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(testContext *testing.T, conn *websocket.Conn, eventType string, data map[string]any) {
	testContext.Helper()
	if err := conn.WriteJSON(map[string]any{"type": eventType, "data": data}); err != nil {
		testContext.Fatalf("failed to write event: %v", err)
	}
}

func readEvent(testContext *testing.T, conn *websocket.Conn) wsEvent {
	testContext.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		testContext.Fatalf("failed to set read deadline: %v", err)
	}
	var event wsEvent
	if err := conn.ReadJSON(&event); err != nil {
		testContext.Fatalf("failed to read event: %v", err)
	}
	return event
}

func TestAuthAndCollaborationFlow(testContext *testing.T) {
	harness := newAPIHarness(testContext)

	harness.expect(harness.do(http.MethodGet, "/healthz", "", nil), http.StatusOK, "")

	ownerToken, _ := harness.register("owner@example.com", "owner-password")
	editorToken, editorID := harness.register("editor@example.com", "editor-password")
	strangerToken, _ := harness.register("stranger@example.com", "stranger-password")

	harness.expect(harness.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "OWNER@example.com", "password": "another-password"}), http.StatusConflict, "user_exists")
	harness.expect(harness.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "owner@example.com", "password": "wrong-password"}), http.StatusUnauthorized, "invalid_credentials")
	harness.expect(harness.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "long@example.com", "password": strings.Repeat("p", 100)}), http.StatusBadRequest, "password_too_long")

	login := harness.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": " Owner@Example.com ", "password": "owner-password"})
	harness.expect(login, http.StatusOK, "")
	hasCookie := false
	for _, cookie := range login.cookies {
		if cookie.Name == sessionCookieName && cookie.Value != "" && cookie.HttpOnly {
			hasCookie = true
		}
	}
	if !hasCookie {
		testContext.Fatalf("expected http-only session cookie on login")
	}

	harness.expect(harness.do(http.MethodGet, "/api/notes", "", nil), http.StatusUnauthorized, "unauthorized")

	created := harness.do(http.MethodPost, "/api/notes", ownerToken, map[string]string{"title": "Plan", "content": "draft"})
	harness.expect(created, http.StatusCreated, "")
	noteID, _ := created.body["note_id"].(string)
	if noteID == "" || created.body["role"] != string(notes.RoleOwner) {
		testContext.Fatalf("unexpected created note: %v", created.body)
	}

	harness.expect(harness.do(http.MethodGet, "/api/notes/"+noteID, strangerToken, nil), http.StatusForbidden, "forbidden")
	harness.expect(harness.do(http.MethodGet, "/api/notes/missing-note", ownerToken, nil), http.StatusNotFound, "note_not_found")

	addRequest := map[string]string{"note_id": noteID, "collaborator_email": "editor@example.com", "role": "EDITOR"}
	added := harness.do(http.MethodPost, "/api/collaborators", ownerToken, addRequest)
	harness.expect(added, http.StatusCreated, "")
	if added.body["user_id"] != editorID || added.body["email"] != "editor@example.com" {
		testContext.Fatalf("unexpected collaborator payload: %v", added.body)
	}
	harness.expect(harness.do(http.MethodPost, "/api/collaborators", ownerToken, addRequest), http.StatusConflict, "collaborator_exists")
	harness.expect(harness.do(http.MethodPost, "/api/collaborators", ownerToken, map[string]string{"note_id": noteID, "collaborator_email": "owner@example.com", "role": "VIEWER"}), http.StatusBadRequest, "owner_collaborator")
	harness.expect(harness.do(http.MethodPost, "/api/collaborators", ownerToken, map[string]string{"note_id": noteID, "collaborator_email": "nobody@example.com", "role": "VIEWER"}), http.StatusNotFound, "user_not_found")
	harness.expect(harness.do(http.MethodPost, "/api/collaborators", editorToken, map[string]string{"note_id": noteID, "collaborator_email": "stranger@example.com", "role": "VIEWER"}), http.StatusForbidden, "forbidden")
	for _, email := range []string{"editor@example.com", "nobody@example.com"} {
		harness.expect(harness.do(http.MethodPost, "/api/collaborators", strangerToken, map[string]string{"note_id": noteID, "collaborator_email": email, "role": "VIEWER"}), http.StatusForbidden, "forbidden")
	}
	harness.expect(harness.do(http.MethodPost, "/api/collaborators", strangerToken, map[string]string{"note_id": "missing-note", "collaborator_email": "nobody@example.com", "role": "VIEWER"}), http.StatusNotFound, "note_not_found")

	listed := harness.do(http.MethodGet, "/api/notes", editorToken, nil)
	harness.expect(listed, http.StatusOK, "")
	editorNotes, _ := listed.body["notes"].([]any)
	if len(editorNotes) != 1 || editorNotes[0].(map[string]any)["role"] != string(notes.RoleEditor) {
		testContext.Fatalf("expected shared note with editor role, got %v", listed.body)
	}

	firstShare := harness.do(http.MethodPost, "/api/share", ownerToken, map[string]string{"note_id": noteID})
	harness.expect(firstShare, http.StatusOK, "")
	secondShare := harness.do(http.MethodPost, "/api/share", ownerToken, map[string]string{"note_id": noteID})
	shareToken, _ := firstShare.body["token"].(string)
	if shareToken == "" || secondShare.body["token"] != shareToken {
		testContext.Fatalf("expected stable share token, got %v and %v", firstShare.body, secondShare.body)
	}
	if firstShare.body["url"] != shareBaseURL+"/share/"+shareToken {
		testContext.Fatalf("unexpected share url: %v", firstShare.body["url"])
	}
	harness.expect(harness.do(http.MethodPost, "/api/share", editorToken, map[string]string{"note_id": noteID}), http.StatusForbidden, "forbidden")
	shared := harness.do(http.MethodGet, "/api/share/"+shareToken, "", nil)
	harness.expect(shared, http.StatusOK, "")
	if shared.body["title"] != "Plan" {
		testContext.Fatalf("unexpected shared note: %v", shared.body)
	}
	harness.expect(harness.do(http.MethodGet, "/api/share/unknown-token", "", nil), http.StatusNotFound, "share_link_not_found")

	ownerConn := harness.dial(ownerToken)
	editorConn := harness.dial(editorToken)
	strangerConn := harness.dial(strangerToken)

	sendEvent(testContext, ownerConn, realtime.EventJoin, map[string]any{"note_id": noteID})
	if event := readEvent(testContext, ownerConn); event.Type != realtime.EventJoined {
		testContext.Fatalf("expected joined event, got %+v", event)
	}
	sendEvent(testContext, editorConn, realtime.EventJoin, map[string]any{"note_id": noteID})
	if event := readEvent(testContext, editorConn); event.Type != realtime.EventJoined {
		testContext.Fatalf("expected joined event, got %+v", event)
	}
	sendEvent(testContext, strangerConn, realtime.EventJoin, map[string]any{"note_id": noteID})
	if event := readEvent(testContext, strangerConn); event.Type != realtime.EventError || event.Data["kind"] != string(realtime.ErrorUnauthorized) {
		testContext.Fatalf("expected unauthorized error, got %+v", event)
	}

	sendEvent(testContext, editorConn, realtime.EventUpdate, map[string]any{"note_id": noteID, "title": "Plan v2", "content": "edited live"})
	for _, conn := range []*websocket.Conn{ownerConn, editorConn} {
		event := readEvent(testContext, conn)
		if event.Type != realtime.EventUpdated || event.Data["content"] != "edited live" {
			testContext.Fatalf("expected updated broadcast, got %+v", event)
		}
		updatedBy, _ := event.Data["updated_by"].(map[string]any)
		if updatedBy["user_id"] != editorID || updatedBy["email"] != "editor@example.com" {
			testContext.Fatalf("unexpected updated_by: %v", event.Data["updated_by"])
		}
	}

	persisted := harness.do(http.MethodGet, "/api/notes/"+noteID, ownerToken, nil)
	if persisted.body["title"] != "Plan v2" || persisted.body["content"] != "edited live" {
		testContext.Fatalf("expected realtime update to persist, got %v", persisted.body)
	}

	activity := harness.do(http.MethodGet, "/api/notes/"+noteID+"/activity", ownerToken, nil)
	harness.expect(activity, http.StatusOK, "")
	records, _ := activity.body["activity"].([]any)
	actions := make([]string, 0, len(records))
	for _, record := range records {
		actions = append(actions, record.(map[string]any)["action"].(string))
	}
	expectedActions := []string{
		string(notes.ActivityNoteUpdated),
		string(notes.ActivityShareLinkAccessed),
		string(notes.ActivityShareLinkCreated),
		string(notes.ActivityCollaboratorAdded),
		string(notes.ActivityNoteCreated),
	}
	if strings.Join(actions, ",") != strings.Join(expectedActions, ",") {
		testContext.Fatalf("unexpected activity: got %v, want %v", actions, expectedActions)
	}

	harness.expect(harness.do(http.MethodDelete, "/api/notes/"+noteID, editorToken, nil), http.StatusForbidden, "forbidden")
	harness.expect(harness.do(http.MethodDelete, "/api/notes/"+noteID, ownerToken, nil), http.StatusNoContent, "")
	harness.expect(harness.do(http.MethodGet, "/api/notes/"+noteID, ownerToken, nil), http.StatusNotFound, "note_not_found")
	harness.expect(harness.do(http.MethodGet, "/api/share/"+shareToken, "", nil), http.StatusNotFound, "share_link_not_found")

	sendEvent(testContext, editorConn, realtime.EventUpdate, map[string]any{"note_id": noteID, "title": "gone", "content": "gone"})
	if event := readEvent(testContext, editorConn); event.Type != realtime.EventError || event.Data["kind"] != string(realtime.ErrorNotFound) {
		testContext.Fatalf("expected not_found error after delete, got %+v", event)
	}
}

func TestExpiredSessionTokenIsRejected(testContext *testing.T) {
	harness := newAPIHarness(testContext)
	expired := mustMintSessionToken(testContext, sessionSigningSecret, "user-abc", time.Now().Add(-2*time.Hour))

	harness.expect(harness.do(http.MethodGet, "/api/notes", expired, nil), http.StatusUnauthorized, "unauthorized")

	endpoint := "ws" + strings.TrimPrefix(harness.server.URL, "http") + "/ws?token=" + expired
	_, response, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err == nil {
		testContext.Fatalf("expected websocket handshake to fail")
	}
	if response == nil || response.StatusCode != http.StatusUnauthorized {
		testContext.Fatalf("expected 401 handshake response, got %v", response)
	}
}

func TestSessionCookieAuthenticatesRequests(testContext *testing.T) {
	harness := newAPIHarness(testContext)
	token, _ := harness.register("cookie@example.com", "cookie-password")

	request, err := http.NewRequest(http.MethodGet, harness.server.URL+"/api/notes", nil)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	request.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected status: %d", response.StatusCode)
	}
}

func mustMintSessionToken(testContext *testing.T, signingSecret, userID string, now time.Time) string {
	testContext.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Audience:  jwt.ClaimStrings{sessionAudience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(signingSecret))
	if err != nil {
		testContext.Fatalf("failed to sign session token: %v", err)
	}
	return signed
}
