package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/classify"
	"github.com/joseph-ayodele/contracts-desk/internal/convergence"
	"github.com/joseph-ayodele/contracts-desk/internal/docstore"
	"github.com/joseph-ayodele/contracts-desk/internal/export"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
	"github.com/joseph-ayodele/contracts-desk/internal/model"
	"github.com/joseph-ayodele/contracts-desk/internal/render"
	"github.com/joseph-ayodele/contracts-desk/internal/schema"
	"github.com/joseph-ayodele/contracts-desk/internal/session"
)

type stubClassifier struct {
	result classify.Result
}

func (s *stubClassifier) Classify(context.Context, extract.DocumentRef) (classify.Result, error) {
	return s.result, nil
}

type stubCapability struct {
	raw string
}

func (s *stubCapability) Extract(context.Context, extract.DocumentRef, constants.ContractType, *extract.Context) ([]byte, error) {
	return []byte(s.raw), nil
}

type stubRenderer struct{}

func (stubRenderer) Render(context.Context, *model.ExtractionResult) (render.PDFHandle, error) {
	return render.PDFHandle{ID: "pdf-1", Path: "/tmp/pdf-1.pdf", Size: 10}, nil
}

func testService(t *testing.T) *Service {
	t.Helper()
	validator := schema.NewValidator(schema.DefaultRegistry())
	docs := docstore.NewStore(nil)

	deps := session.Deps{
		Adapter: extract.NewAdapter(
			&stubCapability{raw: `{"company_name":"Acme Corp","effective_date":"2026-01-15","total":1200.50}`},
			validator,
			extract.Config{Retries: 0, Timeout: time.Second, BackoffInitial: time.Millisecond},
			nil,
		),
		Validator:  validator,
		Classifier: &stubClassifier{result: classify.Result{ContractType: constants.ContractVendor, Confidence: 0.9}},
		Renderer:   stubRenderer{},
		Tracker:    convergence.NewTracker(convergence.Config{MaxIterations: 5}),
	}
	registry := session.NewRegistry(docs, deps)
	return NewService(registry, docs, validator, export.NewService(nil), nil)
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func registerTestDoc(t *testing.T, router http.Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contract.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))

	rr := doJSON(t, router, http.MethodPost, "/v1/documents", map[string]string{"path": path})
	require.Equal(t, http.StatusOK, rr.Code)
	return decodeEnvelope(t, rr)["document_id"].(string)
}

func createTestSession(t *testing.T, router http.Handler) string {
	t.Helper()
	docID := registerTestDoc(t, router)
	rr := doJSON(t, router, http.MethodPost, "/v1/sessions", map[string]string{"document_id": docID})
	require.Equal(t, http.StatusCreated, rr.Code)
	sess := decodeEnvelope(t, rr)["session"].(map[string]any)
	return sess["session_id"].(string)
}

func TestHealth(t *testing.T) {
	svc := testService(t)
	rr := doJSON(t, svc.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRegisterDocument_BadRequest(t *testing.T) {
	svc := testService(t)
	router := svc.Router()

	rr := doJSON(t, router, http.MethodPost, "/v1/documents", map[string]string{"path": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/v1/documents", map[string]string{"path": "/tmp/notes.txt"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateSession_FirstPassCompletes(t *testing.T) {
	svc := testService(t)
	router := svc.Router()
	docID := registerTestDoc(t, router)

	rr := doJSON(t, router, http.MethodPost, "/v1/sessions", map[string]string{"document_id": docID})
	require.Equal(t, http.StatusCreated, rr.Code)

	sess := decodeEnvelope(t, rr)["session"].(map[string]any)
	assert.Equal(t, string(constants.StateAwaitingConfirmation), sess["state"])
	assert.Equal(t, string(constants.ContractVendor), sess["contract_type"])
	assert.Equal(t, false, sess["needs_attention"])
}

func TestCreateSession_UnknownDocument(t *testing.T) {
	svc := testService(t)
	rr := doJSON(t, svc.Router(), http.MethodPost, "/v1/sessions", map[string]string{"document_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetState(t *testing.T) {
	svc := testService(t)
	router := svc.Router()
	id := createTestSession(t, router)

	rr := doJSON(t, router, http.MethodGet, "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sess := decodeEnvelope(t, rr)["session"].(map[string]any)
	assert.Equal(t, id, sess["session_id"])

	rr = doJSON(t, router, http.MethodGet, "/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestConfirm_Finalizes(t *testing.T) {
	svc := testService(t)
	router := svc.Router()
	id := createTestSession(t, router)

	rr := doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/confirm", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sess := decodeEnvelope(t, rr)["session"].(map[string]any)
	assert.Equal(t, string(constants.StateFinalized), sess["state"])
	assert.NotNil(t, sess["pdf"])
}

func TestSubmitFeedback_CorrectionsCoerced(t *testing.T) {
	svc := testService(t)
	router := svc.Router()
	id := createTestSession(t, router)

	rr := doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/feedback", map[string]any{
		"instructions": "total is off by a cent",
		"corrections":  map[string]any{"total": "1200.51"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	sess := decodeEnvelope(t, rr)["session"].(map[string]any)
	assert.Equal(t, string(constants.StateAwaitingConfirmation), sess["state"])
	assert.Equal(t, float64(1), sess["iterations"])

	result := sess["result"].(map[string]any)
	assert.Equal(t, float64(2), result["generation"])

	var corrected map[string]any
	for _, f := range result["fields"].([]any) {
		field := f.(map[string]any)
		if field["name"] == "total" {
			corrected = field
		}
	}
	require.NotNil(t, corrected)
	assert.Equal(t, string(constants.ProvenanceHuman), corrected["provenance"])
	assert.Equal(t, 1200.51, corrected["value"].(map[string]any)["num"])
}

func TestSubmitFeedback_EmptyRejected(t *testing.T) {
	svc := testService(t)
	router := svc.Router()
	id := createTestSession(t, router)

	rr := doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/feedback", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAbortThenActionsConflict(t *testing.T) {
	svc := testService(t)
	router := svc.Router()
	id := createTestSession(t, router)

	rr := doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/abort", map[string]string{"reason": "user_requested"})
	require.Equal(t, http.StatusOK, rr.Code)
	sess := decodeEnvelope(t, rr)["session"].(map[string]any)
	assert.Equal(t, string(constants.StateAborted), sess["state"])
	assert.Equal(t, string(constants.AbortUserRequested), sess["abort_reason"])

	rr = doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestExportXLSX(t *testing.T) {
	svc := testService(t)
	router := svc.Router()
	id := createTestSession(t, router)

	rr := doJSON(t, router, http.MethodGet, "/v1/sessions/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Body.Bytes())
}
