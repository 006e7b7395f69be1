package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/quality-check/internal/auth"
	"github.com/example/quality-check/internal/config"
	"github.com/example/quality-check/internal/prediction"
	"github.com/example/quality-check/internal/repository"
	"github.com/example/quality-check/internal/usecase"
)

const testJWTSecret = "test-secret"

type fakeImages map[string][]byte

func (f fakeImages) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := f[key]
	if !ok {
		return nil, errors.New("NoSuchKey: The specified key does not exist.")
	}
	return data, nil
}

type fakeClassifier struct {
	response string
	err      error
}

func (f *fakeClassifier) Invoke(ctx context.Context, image []byte) (string, error) {
	return f.response, f.err
}

type fakeRecords struct {
	saved   []*repository.AnalysisRecord
	scan    []repository.AnalysisRecord
	scanErr error
}

func (f *fakeRecords) Save(ctx context.Context, record *repository.AnalysisRecord) error {
	f.saved = append(f.saved, record)
	return nil
}

func (f *fakeRecords) ScanAll(ctx context.Context) ([]repository.AnalysisRecord, error) {
	return f.scan, f.scanErr
}

type outcome struct{ outcome, status string }

type fakeRecorder struct{ outcomes []outcome }

func (f *fakeRecorder) RecordAnalysis(o, status string) {
	f.outcomes = append(f.outcomes, outcome{o, status})
}

type testServer struct {
	router   *gin.Engine
	records  *fakeRecords
	recorder *fakeRecorder
}

func newTestServer(t *testing.T, client *fakeClassifier, records *fakeRecords, middleware ...gin.HandlerFunc) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{BucketName: "quality-images"}
	images := fakeImages{"img1.jpg": []byte("jpeg")}
	analysis := usecase.NewAnalysisUseCase(cfg, images, client, records, nil, zap.NewNop())
	history := usecase.NewHistoryUseCase(records, nil, 0, zap.NewNop())

	recorder := &fakeRecorder{}
	router := gin.New()
	RegisterRoutes(router, analysis, history, recorder, middleware...)
	return &testServer{router: router, records: records, recorder: recorder}
}

func (s *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func TestAnalyzeSuccess(t *testing.T) {
	srv := newTestServer(t, &fakeClassifier{response: "('good', 0.95)"}, &fakeRecords{})

	resp := srv.do(http.MethodPost, "/analyze", `{"imageKey": "img1.jpg"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	assert.NotEmpty(t, resp.Header().Get("X-Request-ID"))

	body := decodeBody(t, resp)
	assert.Equal(t, "img1.jpg", body["imageKey"])
	assert.Equal(t, "good", body["status"])
	assert.Equal(t, "0.95", body["confidence"])
	assert.Contains(t, body["imageUrl"], "img1.jpg")
	assert.Len(t, body, 4)

	require.Len(t, srv.records.saved, 1)
	assert.Equal(t, 1, srv.records.saved[0].RawPrediction)
	assert.Equal(t, []outcome{{OutcomeOK, "good"}}, srv.recorder.outcomes)
}

func TestAnalyzeAcceptsDoubleEncodedBody(t *testing.T) {
	srv := newTestServer(t, &fakeClassifier{response: "bad,0.40"}, &fakeRecords{})

	resp := srv.do(http.MethodPost, "/analyze", `"{\"imageKey\": \"img1.jpg\"}"`)
	require.Equal(t, http.StatusOK, resp.Code)

	body := decodeBody(t, resp)
	assert.Equal(t, "bad", body["status"])
	assert.Equal(t, "0.40", body["confidence"])
}

func TestAnalyzeClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "missing image key", body: `{"image": "img1.jpg"}`, message: msgMissingImageKey},
		{name: "empty image key", body: `{"imageKey": ""}`, message: msgMissingImageKey},
		{name: "non-string image key", body: `{"imageKey": 42}`, message: msgImageKeyNotString},
		{name: "malformed json", body: `{"imageKey": `, message: msgInvalidJSON},
		{name: "malformed inner json", body: `"{imageKey}"`, message: msgInvalidJSON},
		{name: "empty body", body: ``, message: msgInvalidBodyFormat},
		{name: "array body", body: `["img1.jpg"]`, message: msgInvalidBodyFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeClassifier{response: "('good', 0.95)"}, &fakeRecords{})

			resp := srv.do(http.MethodPost, "/analyze", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
			assert.Equal(t, tt.message, decodeBody(t, resp)["error"])
			assert.Empty(t, srv.records.saved)
			assert.Equal(t, []outcome{{OutcomeClientError, ""}}, srv.recorder.outcomes)
		})
	}
}

func TestAnalyzeMissingKeyMentionsField(t *testing.T) {
	srv := newTestServer(t, &fakeClassifier{}, &fakeRecords{})

	resp := srv.do(http.MethodPost, "/analyze", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, decodeBody(t, resp)["error"], "imageKey")
}

func TestAnalyzeServerErrors(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		client   *fakeClassifier
		contains string
		outcome  string
	}{
		{
			name:     "object store",
			key:      "missing.jpg",
			client:   &fakeClassifier{response: "('good', 0.95)"},
			contains: "NoSuchKey",
			outcome:  OutcomeCollaboratorError,
		},
		{
			name:     "classifier",
			key:      "img1.jpg",
			client:   &fakeClassifier{err: errors.New("endpoint throttled")},
			contains: "endpoint throttled",
			outcome:  OutcomeCollaboratorError,
		},
		{
			name:     "unparseable response",
			key:      "img1.jpg",
			client:   &fakeClassifier{response: "good,excellent"},
			contains: "could not parse remote response: good,excellent",
			outcome:  OutcomeParseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.client, &fakeRecords{})

			resp := srv.do(http.MethodPost, "/analyze", `{"imageKey": "`+tt.key+`"}`)
			require.Equal(t, http.StatusInternalServerError, resp.Code)
			assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))

			message, _ := decodeBody(t, resp)["error"].(string)
			assert.True(t, strings.HasPrefix(message, "Error processing request: "), message)
			assert.Contains(t, message, tt.contains)
			assert.Empty(t, srv.records.saved)
			assert.Equal(t, []outcome{{tt.outcome, ""}}, srv.recorder.outcomes)
		})
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	records := &fakeRecords{scan: []repository.AnalysisRecord{
		{ImageKey: "jan.jpg", Status: "good", Confidence: prediction.DefaultConfidence, RawPrediction: 1, UploadDate: "2024-01-01T08:00:00.000000Z"},
		{ImageKey: "mar.jpg", Status: "bad", Confidence: prediction.MustConfidence("0.30"), UploadDate: "2024-03-01T08:00:00.000000Z"},
		{ImageKey: "feb.jpg", Status: "good", Confidence: prediction.MustConfidence("0.80"), RawPrediction: 1, UploadDate: "2024-02-01T08:00:00.000000Z"},
	}}
	srv := newTestServer(t, &fakeClassifier{}, records)

	resp := srv.do(http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))

	var body struct {
		Items []repository.AnalysisRecord `json:"items"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Items, 3)
	assert.Equal(t, "mar.jpg", body.Items[0].ImageKey)
	assert.Equal(t, "feb.jpg", body.Items[1].ImageKey)
	assert.Equal(t, "jan.jpg", body.Items[2].ImageKey)
	assert.Equal(t, "0.30", body.Items[0].Confidence.String())
}

func TestHistoryEmpty(t *testing.T) {
	srv := newTestServer(t, &fakeClassifier{}, &fakeRecords{})

	resp := srv.do(http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"items": []}`, resp.Body.String())
}

func TestHistoryFailure(t *testing.T) {
	srv := newTestServer(t, &fakeClassifier{}, &fakeRecords{scanErr: errors.New("table not found")})

	resp := srv.do(http.MethodGet, "/history", "")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, decodeBody(t, resp)["error"], "table not found")
}

func TestHistorySummary(t *testing.T) {
	records := &fakeRecords{scan: []repository.AnalysisRecord{
		{ImageKey: "a.jpg", Status: "good", Confidence: prediction.MustConfidence("1.0"), RawPrediction: 1, UploadDate: "2024-01-01T08:00:00.000000Z"},
		{ImageKey: "b.jpg", Status: "bad", Confidence: prediction.MustConfidence("0.5"), UploadDate: "2024-02-01T08:00:00.000000Z"},
	}}
	srv := newTestServer(t, &fakeClassifier{}, records)

	resp := srv.do(http.MethodGet, "/history/summary", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{
		"totalRecords": 2,
		"goodRecords": 1,
		"goodRate": 0.5,
		"averageConfidence": "0.75",
		"latestUploadDate": "2024-02-01T08:00:00.000000Z"
	}`, resp.Body.String())
}

func TestPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeClassifier{}, &fakeRecords{})

	resp := srv.do(http.MethodOptions, "/analyze", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRoutesRequireTokenWhenAuthEnabled(t *testing.T) {
	srv := newTestServer(t, &fakeClassifier{response: "('good', 0.95)"}, &fakeRecords{}, auth.JWTMiddleware(testJWTSecret, ""))

	resp := srv.do(http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))

	resp = srv.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = srv.do(http.MethodPost, "/analyze", `{"imageKey": "img1.jpg"}`, "Authorization", "Bearer "+buildTestToken(t, "user-123"))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}
