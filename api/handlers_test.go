package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/session"
	"taskboard/storage"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, auth Authenticator) *echo.Echo {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger, _ := test.NewNullLogger()
	e := echo.New()
	e.JSONSerializer = JSONSerializer{}
	Register(e, storage.NewRedisStore(client), storage.NewRedisDeduper(client, time.Minute), auth, logger)
	return e
}

func doRequest(t *testing.T, e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeRecord(t *testing.T, rec *httptest.ResponseRecorder) taskRecord {
	t.Helper()
	var out taskRecord
	if err := sonic.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode record %q: %v", rec.Body.String(), err)
	}
	return out
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []taskRecord {
	t.Helper()
	var out []taskRecord
	if err := sonic.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode list %q: %v", rec.Body.String(), err)
	}
	return out
}

func signToken(t *testing.T, email string) string {
	t.Helper()
	signed, err := session.SignLocalToken([]byte(testSecret), email, "", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestTaskLifecycle(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doRequest(t, e, http.MethodPost, "/tasks", `{"title":" Buy milk ","category":"in progress","ownerEmail":"a@example.com"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeRecord(t, rec)
	if created.ID == "" || created.Title != "Buy milk" || created.Category != "In-Progress" || created.OwnerEmail != "a@example.com" {
		t.Fatalf("unexpected created record: %#v", created)
	}

	rec = doRequest(t, e, http.MethodGet, "/tasks?owner=a@example.com", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	if list := decodeList(t, rec); len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected list: %#v", list)
	}

	rec = doRequest(t, e, http.MethodPut, "/tasks/"+created.ID, `{"category":"done"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if updated := decodeRecord(t, rec); updated.Category != "Done" || updated.Title != "Buy milk" {
		t.Fatalf("unexpected updated record: %#v", updated)
	}

	rec = doRequest(t, e, http.MethodDelete, "/tasks/"+created.ID, "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"deleted":1}` {
		t.Fatalf("delete: got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, e, http.MethodDelete, "/tasks/"+created.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}

	rec = doRequest(t, e, http.MethodGet, "/tasks?owner=a@example.com", "", nil)
	if list := decodeList(t, rec); len(list) != 0 {
		t.Fatalf("expected empty list, got %#v", list)
	}
}

func TestCreateDefaultsAndLegacyOwnerKey(t *testing.T) {
	e := newTestServer(t, nil)
	rec := doRequest(t, e, http.MethodPost, "/tasks", `{"title":"x","email":"legacy@example.com"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeRecord(t, rec); got.Category != "To-Do" || got.OwnerEmail != "legacy@example.com" {
		t.Fatalf("unexpected record: %#v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	e := newTestServer(t, nil)
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty title", body: `{"title":"  ","ownerEmail":"a@example.com"}`, want: http.StatusBadRequest},
		{name: "long title", body: `{"title":"` + strings.Repeat("x", 51) + `","ownerEmail":"a@example.com"}`, want: http.StatusBadRequest},
		{name: "bad category", body: `{"title":"x","category":"someday","ownerEmail":"a@example.com"}`, want: http.StatusBadRequest},
		{name: "bad date", body: `{"title":"x","completionDate":"03/01/2025","ownerEmail":"a@example.com"}`, want: http.StatusBadRequest},
		{name: "no owner", body: `{"title":"x"}`, want: http.StatusBadRequest},
		{name: "malformed", body: `{"title":`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, e, http.MethodPost, "/tasks", tt.body, nil)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpdateErrors(t *testing.T) {
	e := newTestServer(t, nil)
	rec := doRequest(t, e, http.MethodPost, "/tasks", `{"title":"x","ownerEmail":"a@example.com"}`, nil)
	id := decodeRecord(t, rec).ID

	if rec := doRequest(t, e, http.MethodPut, "/tasks/missing", `{"title":"y"}`, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing task, got %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodPut, "/tasks/"+id, `{"ownerEmail":"b@example.com"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for owner change, got %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodPut, "/tasks/"+id, `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty patch, got %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodPut, "/tasks/"+id, `{"category":"later"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad category, got %d", rec.Code)
	}
}

func TestCreateIdempotencyKey(t *testing.T) {
	e := newTestServer(t, nil)
	headers := map[string]string{HeaderIdempotencyKey: "local-1"}
	body := `{"title":"Buy milk","ownerEmail":"a@example.com"}`

	first := doRequest(t, e, http.MethodPost, "/tasks", body, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("first create: %d %s", first.Code, first.Body.String())
	}
	second := doRequest(t, e, http.MethodPost, "/tasks", body, headers)
	if second.Code != http.StatusOK {
		t.Fatalf("replayed create: expected 200, got %d", second.Code)
	}
	if a, b := decodeRecord(t, first), decodeRecord(t, second); a.ID != b.ID {
		t.Fatalf("expected replay to return the same task, got %s and %s", a.ID, b.ID)
	}

	rec := doRequest(t, e, http.MethodGet, "/tasks?owner=a@example.com", "", nil)
	if list := decodeList(t, rec); len(list) != 1 {
		t.Fatalf("expected exactly one task, got %d", len(list))
	}
}

func TestListRequiresOwner(t *testing.T) {
	e := newTestServer(t, nil)
	if rec := doRequest(t, e, http.MethodGet, "/tasks", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t, nil)
	if rec := doRequest(t, e, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthorization(t *testing.T) {
	auth := NewAuth(session.NewSharedSecretVerifier([]byte(testSecret), "", ""))
	e := newTestServer(t, auth)
	alice := map[string]string{echo.HeaderAuthorization: "Bearer " + signToken(t, "alice@example.com")}
	bob := map[string]string{echo.HeaderAuthorization: "Bearer " + signToken(t, "bob@example.com")}

	if rec := doRequest(t, e, http.MethodGet, "/tasks?owner=alice@example.com", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodGet, "/tasks?owner=alice@example.com", "", map[string]string{echo.HeaderAuthorization: "Token abc"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed header, got %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodGet, "/tasks?owner=alice@example.com", "", bob); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another owner, got %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodGet, "/tasks?owner=Alice@Example.com", "", alice); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", rec.Code)
	}

	// The owner is taken from the token when the body omits it.
	rec := doRequest(t, e, http.MethodPost, "/tasks", `{"title":"x"}`, alice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	created := decodeRecord(t, rec)
	if created.OwnerEmail != "alice@example.com" {
		t.Fatalf("expected owner from token, got %q", created.OwnerEmail)
	}

	if rec := doRequest(t, e, http.MethodPost, "/tasks", `{"title":"x","ownerEmail":"alice@example.com"}`, bob); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 creating for another owner, got %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodPut, "/tasks/"+created.ID, `{"title":"y"}`, bob); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 updating another owner's task, got %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodDelete, "/tasks/"+created.ID, "", bob); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 deleting another owner's task, got %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodDelete, "/tasks/"+created.ID, "", alice); rec.Code != http.StatusOK {
		t.Fatalf("expected owner delete to succeed, got %d", rec.Code)
	}
}

func TestBearerTokenFromString(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr error
	}{
		{raw: "", wantErr: errMissingAuthorization},
		{raw: "   ", wantErr: errMissingAuthorization},
		{raw: "Bearer ", wantErr: errBadAuthorization},
		{raw: "Basic a.b.c", wantErr: errBadAuthorization},
		{raw: "Bearer abc", wantErr: errBadAuthorization},
		{raw: "  Bearer a.b.c ", want: "a.b.c"},
	}
	for _, tt := range tests {
		got, err := bearerTokenFromString(tt.raw)
		if err != tt.wantErr || got != tt.want {
			t.Fatalf("bearerTokenFromString(%q) = %q, %v; want %q, %v", tt.raw, got, err, tt.want, tt.wantErr)
		}
	}
}
