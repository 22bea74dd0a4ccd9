package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"story-weaver/internal/controller"
	"story-weaver/internal/handler"
	"story-weaver/internal/mocks"
	"story-weaver/internal/models"
	"story-weaver/internal/service"
	"story-weaver/internal/story"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	pngHeader   = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	rootSegment = &models.Segment{StorySegment: "The robot awoke...", Choices: []string{"Explore the library", "Power down"}}
	librarySeg  = &models.Segment{StorySegment: "Dust motes floated...", Choices: []string{"Open a book", "Call out"}}
)

type storyBody struct {
	Seq       uint64          `json:"seq"`
	State     string          `json:"state"`
	CurrentID string          `json:"currentId"`
	Choices   []string        `json:"choices"`
	Ended     bool            `json:"ended"`
	Message   string          `json:"message"`
	Story     *story.Snapshot `json:"story"`
}

type testEnv struct {
	router   *gin.Engine
	ctrl     *controller.Controller
	narrator *mocks.MockNarrator
	hub      *handler.Hub
}

func sequentialIDs() story.IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("node-%d", n)
	}
}

func setup(t *testing.T, imageMaxBytes int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	narrator := mocks.NewMockNarrator(t)
	ctrl := controller.New(narrator, zap.NewNop(), controller.WithTreeOptions(story.WithIDGenerator(sequentialIDs())))

	hub := handler.NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	ctrl.Subscribe(hub.Broadcast)
	t.Cleanup(cancel)

	router := gin.New()
	handler.NewStoryHandler(ctrl, imageMaxBytes, zap.NewNop()).RegisterRoutes(router)
	router.GET("/ws", hub.ServeWS(ctrl))

	return &testEnv{router: router, ctrl: ctrl, narrator: narrator, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	e.narrator.On("GenerateInitialStory", mock.Anything, service.InitialRequest{Premise: "A robot on Mars", Genre: "Sci-Fi", Tone: "Dark"}).
		Return(rootSegment, nil).Once()
	w := e.do(t, http.MethodPost, "/api/story/start", map[string]any{"premise": "A robot on Mars", "genre": "Sci-Fi", "tone": "Dark"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestStart_JSON(t *testing.T) {
	env := setup(t, 1024)
	env.start(t)

	body := decode[storyBody](t, env.do(t, http.MethodGet, "/api/story", nil))
	assert.Equal(t, "active", body.State)
	assert.Equal(t, models.RootNodeID, body.CurrentID)
	assert.Equal(t, rootSegment.Choices, body.Choices)
	require.NotNil(t, body.Story)
	require.Len(t, body.Story.Nodes, 1)
	assert.True(t, body.Story.Nodes[0].Current)
	assert.Empty(t, body.Story.Edges)
}

func TestStart_Validation(t *testing.T) {
	env := setup(t, 1024)

	w := env.do(t, http.MethodPost, "/api/story/start", map[string]any{"genre": "Sci-Fi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/story/start", map[string]any{"premise": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, handler.ErrCodeBadRequest, decode[handler.ErrorResponse](t, w).Code)
}

func TestStart_Conflict(t *testing.T) {
	env := setup(t, 1024)
	env.start(t)

	w := env.do(t, http.MethodPost, "/api/story/start", map[string]any{"premise": "Another"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, handler.ErrCodeConflict, decode[handler.ErrorResponse](t, w).Code)
}

func TestStart_GenerationFailed(t *testing.T) {
	env := setup(t, 1024)
	env.narrator.On("GenerateInitialStory", mock.Anything, mock.Anything).Return(nil, models.ErrGenerationFailed).Once()

	w := env.do(t, http.MethodPost, "/api/story/start", map[string]any{"premise": "A robot on Mars"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decode[handler.ErrorResponse](t, w)
	assert.Equal(t, handler.ErrCodeGenerationFailed, resp.Code)
	assert.Equal(t, controller.StartFailedMessage, resp.Message)
	assert.Equal(t, controller.StateIdle, env.ctrl.Status().State)
}

func TestStart_JSONImage(t *testing.T) {
	env := setup(t, 1024)
	env.narrator.On("GenerateInitialStory", mock.Anything, mock.MatchedBy(func(req service.InitialRequest) bool {
		return req.Image != nil && req.Image.MIMEType == "image/png" && req.Image.Data == base64.StdEncoding.EncodeToString(pngHeader)
	})).Return(rootSegment, nil).Once()

	w := env.do(t, http.MethodPost, "/api/story/start", map[string]any{
		"premise": "A castle",
		"image":   map[string]string{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(pngHeader)},
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestStart_ImageRejected(t *testing.T) {
	env := setup(t, 8)

	w := env.do(t, http.MethodPost, "/api/story/start", map[string]any{
		"premise": "A castle",
		"image":   map[string]string{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(pngHeader)},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, handler.ErrCodeImageTooLarge, decode[handler.ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodPost, "/api/story/start", map[string]any{
		"premise": "A castle",
		"image":   map[string]string{"mimeType": "image/png", "data": "not base64!"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, handler.ErrCodeImageEncoding, decode[handler.ErrorResponse](t, w).Code)

	assert.Equal(t, controller.StateIdle, env.ctrl.Status().State)
	env.narrator.AssertNotCalled(t, "GenerateInitialStory", mock.Anything, mock.Anything)
}

func TestStart_OversizedImageRejectedBeforeDecoding(t *testing.T) {
	env := setup(t, 8)

	// невалидный base64, но длина уже больше предела
	w := env.do(t, http.MethodPost, "/api/story/start", map[string]any{
		"premise": "A castle",
		"image":   map[string]string{"mimeType": "image/png", "data": strings.Repeat("!", 64)},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, handler.ErrCodeImageTooLarge, decode[handler.ErrorResponse](t, w).Code)
	env.narrator.AssertNotCalled(t, "GenerateInitialStory", mock.Anything, mock.Anything)
}

func TestStart_BodyLimit(t *testing.T) {
	env := setup(t, 8)

	w := env.do(t, http.MethodPost, "/api/story/start", map[string]any{
		"premise": strings.Repeat("a", 128<<10),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, handler.ErrCodeImageTooLarge, decode[handler.ErrorResponse](t, w).Code)

	req := multipartStart(t, map[string]string{"premise": "A castle"}, bytes.Repeat([]byte{0x01}, 128<<10))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	assert.Equal(t, controller.StateIdle, env.ctrl.Status().State)
	env.narrator.AssertNotCalled(t, "GenerateInitialStory", mock.Anything, mock.Anything)
}

func multipartStart(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="castle.png"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/story/start", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestStart_Multipart(t *testing.T) {
	env := setup(t, 1024)
	env.narrator.On("GenerateInitialStory", mock.Anything, mock.MatchedBy(func(req service.InitialRequest) bool {
		return req.Premise == "A castle" && req.Genre == "Horror" && req.Image != nil && req.Image.MIMEType == "image/png"
	})).Return(rootSegment, nil).Once()

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, multipartStart(t, map[string]string{"premise": "A castle", "genre": "Horror"}, pngHeader))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestStart_MultipartTooLarge(t *testing.T) {
	env := setup(t, 8)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, multipartStart(t, map[string]string{"premise": "A castle"}, pngHeader))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAdvance(t *testing.T) {
	env := setup(t, 1024)
	env.start(t)

	w := env.do(t, http.MethodPost, "/api/story/advance", map[string]string{"choice": "Fly away"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, handler.ErrCodeInvalidChoice, decode[handler.ErrorResponse](t, w).Code)

	env.narrator.On("GenerateStorySegment", mock.Anything, mock.Anything, "Explore the library").
		Return(nil, models.ErrMalformedResponse).Once()
	w = env.do(t, http.MethodPost, "/api/story/advance", map[string]string{"choice": "Explore the library"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, controller.AdvanceFailedMessage, decode[handler.ErrorResponse](t, w).Message)

	env.narrator.On("GenerateStorySegment", mock.Anything, mock.Anything, "Explore the library").
		Return(librarySeg, nil).Once()
	w = env.do(t, http.MethodPost, "/api/story/advance", map[string]string{"choice": "Explore the library"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[storyBody](t, w)
	assert.Equal(t, "node-1", body.CurrentID)
	assert.Equal(t, librarySeg.Choices, body.Choices)
	assert.Equal(t, []story.Edge{{From: models.RootNodeID, To: "node-1"}}, body.Story.Edges)

	history := decode[struct {
		History []models.HistoryEntry `json:"history"`
	}](t, env.do(t, http.MethodGet, "/api/story/history", nil))
	require.Len(t, history.History, 2)
	assert.Equal(t, "A robot on Mars", history.History[0].Choice)
	assert.Equal(t, "Explore the library", history.History[1].Choice)
}

func TestAdvance_Idle(t *testing.T) {
	env := setup(t, 1024)

	w := env.do(t, http.MethodPost, "/api/story/advance", map[string]string{"choice": "Explore the library"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/story/history", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRestart(t *testing.T) {
	env := setup(t, 1024)
	env.start(t)

	w := env.do(t, http.MethodPost, "/api/story/restart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[storyBody](t, w)
	assert.Equal(t, "idle", body.State)
	assert.Nil(t, body.Story)
}

func TestWebSocketFeed(t *testing.T) {
	env := setup(t, 1024)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	readBody := func() storyBody {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var body storyBody
		require.NoError(t, json.Unmarshal(raw, &body))
		return body
	}

	// первый снимок приходит после регистрации зрителя в хабе
	assert.Equal(t, "idle", readBody().State)

	env.start(t)
	body := readBody()
	assert.Equal(t, "active", body.State)
	require.NotNil(t, body.Story)
	assert.Len(t, body.Story.Nodes, 1)
}

func TestWebSocketFeed_SkipsOutdatedSnapshots(t *testing.T) {
	env := setup(t, 1024)
	env.start(t)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	readBody := func() storyBody {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var body storyBody
		require.NoError(t, json.Unmarshal(raw, &body))
		return body
	}

	// зритель, подключившийся к начатой истории, получает её текущее состояние
	initial := readBody()
	assert.Equal(t, "active", initial.State)
	assert.Equal(t, env.ctrl.Status().Seq, initial.Seq)

	// запоздавший снимок того же шага не должен перекрыть актуальный
	env.hub.Broadcast(controller.Status{Seq: initial.Seq, State: controller.StateIdle, Choices: []string{}})
	env.hub.Broadcast(controller.Status{Seq: initial.Seq - 1, State: controller.StateAdvancing, Choices: []string{}})

	env.ctrl.Restart()
	next := readBody()
	assert.Equal(t, "idle", next.State)
	assert.Greater(t, next.Seq, initial.Seq)
	assert.Nil(t, next.Story)
}
