package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mytesting "fastt-chat-server/internal/testing"
)

// validationHandler carries no store or hub; only request validation
// paths, which reject before any of those are touched, may run against
// it.
func validationHandler(t *testing.T) *handler {
	t.Helper()
	return &handler{logger: zap.NewNop().Sugar(), uploadDir: t.TempDir()}
}

func statusOkHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestEnforcePOSTJSON(t *testing.T) {
	t.Parallel()

	payload := bytes.NewBuffer([]byte(`{"nickname":"` + mytesting.RandString(10) + `"}`))
	req, err := http.NewRequest("POST", "/", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePOSTJSON(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEnforcePOSTJSON_NotPOST(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("GET", "/", nil)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePOSTJSON(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Equal(t, http.StatusText(http.StatusMethodNotAllowed)+"\n", rr.Body.String())
}

func TestEnforcePOSTJSON_UnsupportedContentType(t *testing.T) {
	t.Parallel()

	payload := bytes.NewBuffer([]byte(`{"nickname":"` + mytesting.RandString(10) + `"}`))
	req, err := http.NewRequest("POST", "/", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")

	rr := httptest.NewRecorder()
	handler := enforcePOSTJSON(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	require.Equal(t, "Content-Type header must be application/json\n", rr.Body.String())
}

func TestEnforcePOSTJSON_MalformedJSON(t *testing.T) {
	t.Parallel()

	payload := bytes.NewBuffer([]byte(`{"nickname":`))
	req, err := http.NewRequest("POST", "/", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePOSTJSON(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Malformed JSON\n", rr.Body.String())
}

func TestEnforcePOSTJSON_NoBody(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("POST", "/", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePOSTJSON(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "No body provided\n", rr.Body.String())
}

func TestOlderMessages_MissingBefore(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	req, err := http.NewRequest("GET", "/api/rooms/abcd1234/messages/older", nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"roomId": "abcd1234"})

	rr := httptest.NewRecorder()
	h.olderMessages(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Query parameter \"before\" is required\n", rr.Body.String())
}

func TestOlderMessages_BadBefore(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	req, err := http.NewRequest("GET", "/api/rooms/abcd1234/messages/older?before=yesterday", nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"roomId": "abcd1234"})

	rr := httptest.NewRecorder()
	h.olderMessages(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestToggleLike_MissingUserID(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	payload := bytes.NewBuffer([]byte(`{}`))
	req, err := http.NewRequest("POST", "/api/messages/m1/like", payload)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"messageId": "m1"})

	rr := httptest.NewRecorder()
	h.toggleLike(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Missing Field \"userId\"\n", rr.Body.String())
}

func TestToggleLike_BadUserID(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	payload := bytes.NewBuffer([]byte(`{"userId":0}`))
	req, err := http.NewRequest("POST", "/api/messages/m1/like", payload)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"messageId": "m1"})

	rr := httptest.NewRecorder()
	h.toggleLike(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLikeCounts_MissingMessageIDs(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	payload := bytes.NewBuffer([]byte(`{}`))
	req, err := http.NewRequest("POST", "/api/messages/likes", payload)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.likeCounts(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Missing Field \"messageIds\"\n", rr.Body.String())
}

func TestLikeCounts_BadMessageIDs(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	payload := bytes.NewBuffer([]byte(`{"messageIds":[1,2]}`))
	req, err := http.NewRequest("POST", "/api/messages/likes", payload)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.likeCounts(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Each item in \"messageIds\" array field must be a string\n", rr.Body.String())
}

func TestUserLikes_BadUserID(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	payload := bytes.NewBuffer([]byte(`{"messageIds":["m1"]}`))
	req, err := http.NewRequest("POST", "/api/messages/user-likes", payload)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.userLikes(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateNickname_MissingField(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	payload := bytes.NewBuffer([]byte(`{}`))
	req, err := http.NewRequest("POST", "/api/users/42/nickname", payload)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"userId": "42"})

	rr := httptest.NewRecorder()
	h.updateNickname(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Missing Field \"nickname\"\n", rr.Body.String())
}

func TestGetUser_BadID(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	req, err := http.NewRequest("GET", "/api/users/zero", nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"userId": "zero"})

	rr := httptest.NewRecorder()
	h.getUser(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteRoom_MissingUserID(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	req, err := http.NewRequest("DELETE", "/api/rooms/abcd1234", nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"slug": "abcd1234"})

	rr := httptest.NewRecorder()
	h.deleteRoom(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRenameRoom_BadTitle(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	payload := bytes.NewBuffer([]byte(`{"title":"","userId":42}`))
	req, err := http.NewRequest("PUT", "/api/rooms/abcd1234", payload)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"slug": "abcd1234"})

	rr := httptest.NewRecorder()
	h.renameRoom(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Field \"title\" must have non-zero length\n", rr.Body.String())
}

func TestUploadImage_MissingFile(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", "/api/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	h.uploadImage(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadImage_NotAnImage(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("plain text, not an image"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", "/api/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	h.uploadImage(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Only JPEG, PNG, GIF and WebP images are accepted\n", rr.Body.String())
}

func TestUploadImage_PNG(t *testing.T) {
	t.Parallel()

	h := validationHandler(t)

	// minimal PNG signature is enough for content sniffing
	png := append([]byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 64)...)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "pixel.png")
	require.NoError(t, err)
	_, err = fw.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", "/api/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	h.uploadImage(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"imageUrl":"/uploads/`)
	require.Contains(t, rr.Body.String(), ".png")
}

func TestParseCursor(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	fromRFC, err := parseCursor(ts.Format(time.RFC3339Nano))
	require.NoError(t, err)
	require.True(t, fromRFC.Equal(ts))

	fromMillis, err := parseCursor("1714564800000")
	require.NoError(t, err)
	require.True(t, fromMillis.Equal(ts))

	_, err = parseCursor("not-a-cursor")
	require.Error(t, err)
}
