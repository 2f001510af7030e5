package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/memstore"
	"github.com/Ramsey-B/fern/pkg/ingestion"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/ownership"
	fredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/vendors"
)

type lineageStub map[string][]string

func (l lineageStub) Lineage(_ context.Context, vendorID string) ([]string, error) {
	return l[vendorID], nil
}

type testAPI struct {
	t     *testing.T
	e     *echo.Echo
	store *memstore.Store
	actor string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client := fredis.NewClientFromRedis(rdb, logger)
	locker := fredis.NewLocker(client, "")

	matrix, err := ownership.DefaultMatrix()
	require.NoError(t, err)

	store := memstore.New()
	ingestService := ingestion.NewService(logger, store, locker, ownership.NewResolver(matrix), nil, nil,
		ingestion.Config{LockTTL: time.Minute, LockWait: time.Second, Workers: 2})
	vendorService := vendors.NewService(logger, store, nil, lineageStub{"vnd-001": {"vnd-003"}})
	orchestrator := merging.NewOrchestrator(logger, store, locker, fredis.NewSessionStore(client, "", time.Hour),
		matrix, nil, nil, merging.Config{LockTTL: time.Minute})

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	Handlers{
		Ingestion: NewIngestionHandler(ingestService, logger),
		Vendors:   NewVendorHandler(vendorService, logger),
		Merges:    NewMergeHandler(orchestrator, logger),
	}.Register(e)

	return &testAPI{t: t, e: e, store: store, actor: "steward@example.com"}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reqBody = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if a.actor != "" {
		req.Header.Set(middleware.HeaderUserID, a.actor)
	}

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decode[middleware.ErrorResponse](t, rec)
	kind, _ := resp.Meta["kind"].(string)
	return kind
}

func (a *testAPI) seedDuplicates() {
	survivor := models.NewVendorRecord("vnd-001")
	survivor.SetField(models.FieldLegalName, models.Text("Acme Corporation"), "PeopleSoft")
	survivor.Version = 1
	source := models.NewVendorRecord("vnd-003")
	source.SetField(models.FieldLegalName, models.Text("ACME Corp"), "Zycus")
	source.Version = 1
	a.store.PutVendor(survivor)
	a.store.PutVendor(source)
	a.store.PutSourceKey(models.SourceKey{SourceSystem: "Zycus", SourceRecordID: "z-77", VendorID: "vnd-003"})
}

func TestIngestionAPI(t *testing.T) {
	api := newTestAPI(t)
	record := map[string]any{"vendor_natural_key": "ps-1001", "legal_name": "Acme Corporation"}

	rec := api.do(http.MethodPost, "/api/v1/ingestion/PeopleSoft/records", record)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ingestion.Result](t, rec)
	assert.Equal(t, ingestion.OutcomeCreated, created.Outcome)
	assert.NotEmpty(t, created.VendorID)

	rec = api.do(http.MethodPost, "/api/v1/ingestion/PeopleSoft/records", record)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingestion.OutcomeUnchanged, decode[ingestion.Result](t, rec).Outcome)

	rec = api.do(http.MethodPost, "/api/v1/ingestion/PeopleSoft/preview",
		map[string]any{"vendor_natural_key": "ps-1001", "legal_name": "Acme Corp International"})
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[ingestion.Result](t, rec)
	assert.Equal(t, ingestion.OutcomeUpdated, preview.Outcome)
	assert.Equal(t, created.VendorID, preview.VendorID)

	rec = api.do(http.MethodPost, "/api/v1/ingestion/SAP/records", record)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MalformedSourceRecord", errorKind(t, rec))

	rec = api.do(http.MethodPost, "/api/v1/ingestion/PeopleSoft/records", map[string]any{"vendor_natural_key": "ps-2", "nickname": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/ingestion/PeopleSoft/records", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestionBatchAPI(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/ingestion/Zycus/batches", map[string]any{
		"records": []map[string]any{
			{"vendor_natural_key": "z-1", "legal_name": "Globex"},
			{"vendor_natural_key": "z-2", "legal_name": "Initech"},
			{"legal_name": "no key"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[ingestion.BatchReport](t, rec)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Outcomes[ingestion.OutcomeCreated])
	assert.Equal(t, 1, report.Outcomes[ingestion.OutcomeFailed])

	rec = api.do(http.MethodPost, "/api/v1/ingestion/Zycus/batches", map[string]any{"records": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVendorAPI(t *testing.T) {
	api := newTestAPI(t)
	api.seedDuplicates()

	rec := api.do(http.MethodGet, "/api/v1/vendors/vnd-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[vendors.VendorView](t, rec)
	assert.Equal(t, "vnd-001", view.VendorID)

	rec = api.do(http.MethodGet, "/api/v1/vendors/vnd-404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "VendorNotFound", errorKind(t, rec))

	rec = api.do(http.MethodPut, "/api/v1/vendors/vnd-001/overrides/legal_name", map[string]any{"value": "Acme Corp.", "expected_version": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.VendorRecord](t, rec)
	assert.True(t, updated.IsOverridden(models.FieldLegalName))
	assert.Equal(t, 2, updated.Version)

	rec = api.do(http.MethodPut, "/api/v1/vendors/vnd-001/overrides/legal_name", map[string]any{"value": "Stale", "expected_version": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "OptimisticConflict", errorKind(t, rec))

	rec = api.do(http.MethodPut, "/api/v1/vendors/vnd-001/overrides/nickname", map[string]any{"value": "x"})
	assert.Equal(t, "UnknownField", errorKind(t, rec))

	rec = api.do(http.MethodDelete, "/api/v1/vendors/vnd-001/overrides/legal_name?expected_version=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[models.VendorRecord](t, rec).IsOverridden(models.FieldLegalName))

	rec = api.do(http.MethodGet, "/api/v1/vendors/vnd-001/lineage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"vnd-003"}, decode[LineageResponse](t, rec).MergedVendors)

	rec = api.do(http.MethodGet, "/api/v1/vendors/vnd-003/lineage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[LineageResponse](t, rec).MergedVendors)

	api.actor = ""
	rec = api.do(http.MethodPut, "/api/v1/vendors/vnd-001/overrides/legal_name", map[string]any{"value": "Anon"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMergeAPI(t *testing.T) {
	api := newTestAPI(t)
	api.seedDuplicates()

	rec := api.do(http.MethodPost, "/api/v1/merges", models.MergeCandidate{SurvivorVendorID: "vnd-001", SourceVendorID: "vnd-001"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "IdenticalVendorIds", errorKind(t, rec))

	rec = api.do(http.MethodPost, "/api/v1/merges", map[string]any{"survivor_vendor_id": "vnd-001"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/merges", models.MergeCandidate{SurvivorVendorID: "vnd-001", SourceVendorID: "vnd-003"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decode[models.MergeSession](t, rec)
	assert.Equal(t, models.MergeStateCandidateProposed, session.State)
	require.Len(t, session.Differences, 1)
	assert.Equal(t, models.FieldLegalName, session.Differences[0].FieldName)

	path := "/api/v1/merges/" + session.ID

	rec = api.do(http.MethodPost, path+"/execute", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InvalidSessionState", errorKind(t, rec))

	rec = api.do(http.MethodPost, path+"/validate", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "IncompleteMergeDecisions", errorKind(t, rec))

	rec = api.do(http.MethodPut, path+"/decisions", DecisionsRequest{
		FieldDecisions: []models.FieldMergeDecision{{FieldName: models.FieldLegalName, ChosenSource: models.ChosenSourceSurvivor}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, path+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.MergeStateValidated, decode[models.MergeSession](t, rec).State)

	api.actor = ""
	rec = api.do(http.MethodPost, path+"/execute", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, api.store.Executions())

	// the executing caller is recorded, not the proposer
	api.actor = "approver@example.com"
	rec = api.do(http.MethodPost, path+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	record := decode[models.MergeExecutionRecord](t, rec)
	assert.Equal(t, "approver@example.com", record.Actor)
	assert.Equal(t, "vnd-001", record.SurvivorVendorID)
	assert.Equal(t, "vnd-003", record.SourceVendorID)
	assert.Equal(t, 1, record.ReassignedKeys)

	rec = api.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/vendors/vnd-001/merges", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]models.MergeExecutionRecord](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, record.ID, history[0].ID)

	rec = api.do(http.MethodGet, "/api/v1/vendors/vnd-003", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.VendorStatusArchived, decode[vendors.VendorView](t, rec).Status)
}

func TestAbandonMergeAPI(t *testing.T) {
	api := newTestAPI(t)
	api.seedDuplicates()

	rec := api.do(http.MethodPost, "/api/v1/merges", models.MergeCandidate{SurvivorVendorID: "vnd-001", SourceVendorID: "vnd-003"})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decode[models.MergeSession](t, rec)

	rec = api.do(http.MethodDelete, "/api/v1/merges/"+session.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/merges/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SessionNotFound", errorKind(t, rec))
}
