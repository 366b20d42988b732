package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/funcionariopro/internal/billing"
	"github.com/wolfman30/funcionariopro/internal/bus"
	"github.com/wolfman30/funcionariopro/internal/catalog"
	"github.com/wolfman30/funcionariopro/internal/chat"
	"github.com/wolfman30/funcionariopro/internal/llm"
	"github.com/wolfman30/funcionariopro/internal/onboarding"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/internal/publish"
	"github.com/wolfman30/funcionariopro/internal/simulation"
	"github.com/wolfman30/funcionariopro/internal/wizard"
)

const script = `{"simulation":[
{"id":1,"sender":"customer","content":"Vocês entregam?","delay":900},
{"id":2,"sender":"agent","content":"Entregamos sim!","delay":900}]}`

type scriptGenerator struct{}

func (scriptGenerator) Prompt(context.Context, string) string { return script }

type instantSleeper struct{}

func (instantSleeper) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type stubClassifier struct{ got string }

func (s *stubClassifier) Classify(_ context.Context, phrase string) onboarding.Classification {
	s.got = phrase
	return onboarding.Classification{Category: "restaurante", BusinessKind: "pizzaria"}
}

type testServer struct {
	router  chi.Router
	bus     *bus.Bus
	billing *billing.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	b := bus.New(16, nil)
	client := llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{Text: "Olá! Posso ajudar?"}, nil
	})
	engine := simulation.NewEngine(scriptGenerator{}, simulation.Options{Sleeper: instantSleeper{}, Publisher: b})
	t.Cleanup(engine.Close)
	billingSvc := billing.NewService(billing.NewFakeCheckoutService("http://localhost:8080", nil), nil, b, nil)

	wiz := wizard.NewService(wizard.Deps{
		Profiles:    profile.NewController(profile.NewMemoryStore(), b, nil),
		Catalog:     catalog.Default(),
		Simulations: engine,
		AgentChat:   chat.NewService(chat.AgentPersona, client, nil, nil, time.Second, nil),
		Calibration: chat.NewService(chat.CalibrationPersona, client, nil, nil, time.Second, nil),
		Billing:     billingSvc,
		Publisher:   publish.NewService(nil, nil, b, nil),
		Bus:         b,
	})

	r := chi.NewRouter()
	catalogHandler := NewCatalogHandler(catalog.Default(), &stubClassifier{}, nil)
	r.Get("/api/templates", catalogHandler.ListTemplates)
	r.Get("/api/templates/{key}", catalogHandler.GetTemplate)
	r.Get("/api/plans", catalogHandler.ListPlans)
	r.Post("/api/onboarding/classify", catalogHandler.Classify)
	r.Mount("/api/sessions", NewWizardHandler(wiz, nil).Routes(NewStreamHandler(wiz, b, nil, nil).Stream))
	r.Mount("/payments/fake", NewFakePaymentsHandler(wiz, billingSvc, nil).Routes())
	return &testServer{router: r, bus: b, billing: billingSvc}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) createConfigured(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/sessions", map[string]string{"template": "restaurante"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[wizard.View](t, rec).SessionID

	rec = s.do(t, http.MethodPatch, "/api/sessions/"+id+"/profile", map[string]any{
		"name":        "Cantina da Nona",
		"description": "Massas caseiras",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return id
}

func TestJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	jsonError(rec, "oops", http.StatusTeapot)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "oops", decode[map[string]string](t, rec)["error"])
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]map[string]any](t, rec)
	assert.Len(t, body["templates"], 12)

	rec = s.do(t, http.MethodGet, "/api/templates/petshop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string]any](t, rec)["info"], "Horários:")

	rec = s.do(t, http.MethodGet, "/api/templates/nave-espacial", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]billing.Plan](t, rec)["plans"], 4)
}

func TestClassify(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/onboarding/classify", map[string]string{"phrase": "tenho uma pizzaria"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "restaurante", body["categoria_template"])
	assert.NotNil(t, body["template"])

	rec = s.do(t, http.MethodPost, "/api/onboarding/classify", map[string]string{"phrase": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/onboarding/classify", map[string]string{"unknown": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/sessions", map[string]string{"template": "submarino"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[wizard.View](t, rec).SessionID

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/step", map[string]string{"step": "test"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/sessions/"+id+"/profile", map[string]string{"personality": "sarcastico"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id = s.createConfigured(t)
	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/step", map[string]string{"step": "test"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, wizard.StepTest, decode[wizard.View](t, rec).Step)

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/step", map[string]string{"step": "publish"})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Len(t, decode[map[string]any](t, rec)["plans"], 4)

	rec = s.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCalibrateAndChat(t *testing.T) {
	s := newTestServer(t)
	id := s.createConfigured(t)

	rec := s.do(t, http.MethodPost, "/api/sessions/"+id+"/calibrate", map[string]string{"message": "Servimos massas frescas todos os dias"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[wizard.CalibrationResult](t, rec)
	assert.Contains(t, res.View.Profile.Description, "massas frescas")
	require.NotNil(t, res.Reply)

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/chat", map[string]string{"message": "Oi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Olá! Posso ajudar?", decode[chat.Reply](t, rec).Answer.Content)

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/chat", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/sessions/"+id+"/chat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]chat.Entry](t, rec)["messages"], 3)

	rec = s.do(t, http.MethodDelete, "/api/sessions/"+id+"/chat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]chat.Entry](t, rec)["messages"], 1)
}

func TestSimulationEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.createConfigured(t)

	rec := s.do(t, http.MethodPost, "/api/sessions/"+id+"/simulation/questions", map[string]string{"question": "Abre domingo?"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/simulation", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/api/sessions/"+id+"/simulation", nil)
		return decode[simulation.Snapshot](t, rec).Complete
	}, 2*time.Second, 10*time.Millisecond)

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/simulation/questions", map[string]string{"question": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutAndPublish(t *testing.T) {
	s := newTestServer(t)
	id := s.createConfigured(t)

	rec := s.do(t, http.MethodPost, "/api/sessions/"+id+"/publish", map[string]string{"whatsapp_number": "11987654321"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout", map[string]string{"plan": "free"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout", map[string]string{"plan": "pro"})
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decode[billing.Checkout](t, rec)
	assert.True(t, strings.HasPrefix(c.URL, "http://localhost:8080/payments/fake/"))

	rec = s.do(t, http.MethodGet, "/payments/fake/"+c.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Plano Anual")
	assert.Contains(t, rec.Body.String(), "R$ 499,00")

	rec = s.do(t, http.MethodPost, "/payments/fake/"+c.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, wizard.StepPublish, decode[wizard.View](t, rec).Step)

	rec = s.do(t, http.MethodPost, "/payments/fake/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodPost, "/payments/fake/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/publish", map[string]string{"whatsapp_number": "12"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/publish", map[string]string{"whatsapp_number": "11987654321"})
	require.Equal(t, http.StatusCreated, rec.Code)
	agent := decode[publish.PublishedAgent](t, rec)
	assert.Equal(t, "+5511987654321", agent.WhatsAppNumber)
	assert.Equal(t, "pro", agent.Plan)
}

func TestSimulationStream(t *testing.T) {
	s := newTestServer(t)
	id := s.createConfigured(t)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/simulation/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "simulation.snapshot", first["kind"])

	require.Eventually(t, func() bool { return s.bus.Subscribers(id) == 1 }, time.Second, 5*time.Millisecond)
	rec := s.do(t, http.MethodPost, "/api/sessions/"+id+"/simulation", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	seen := map[bus.Kind]int{}
	for seen[bus.KindSimulationCompleted] == 0 {
		var msg bus.Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, id, msg.SessionID)
		seen[msg.Kind]++
	}
	assert.Equal(t, 1, seen[bus.KindSimulationStarted])
	assert.Equal(t, 2, seen[bus.KindTurnAppended])
}

func TestStreamUnknownSession(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/sessions/nope/simulation/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
