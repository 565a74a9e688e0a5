package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/holdergate/internal/limits"
	"github.com/pendergraft/holdergate/internal/verification/domain"
)

type mockService struct {
	startResult   *domain.StartResult
	startErr      error
	confirmResult *domain.ConfirmResult
	confirmErr    error
	networkResult *domain.NetworkResult
	networkErr    error
	status        *domain.Status
	statusErr     error
	resetErr      error
	summaries     []domain.NetworkSummary

	gotUserID  string
	gotNetwork string
}

func (m *mockService) Start(ctx context.Context, userID, username, wallet string) (*domain.StartResult, error) {
	m.gotUserID = userID
	return m.startResult, m.startErr
}

func (m *mockService) Confirm(ctx context.Context, userID string) (*domain.ConfirmResult, error) {
	m.gotUserID = userID
	return m.confirmResult, m.confirmErr
}

func (m *mockService) VerifyNetwork(ctx context.Context, userID, network string) (*domain.NetworkResult, error) {
	m.gotUserID = userID
	m.gotNetwork = network
	return m.networkResult, m.networkErr
}

func (m *mockService) Status(ctx context.Context, userID string) (*domain.Status, error) {
	m.gotUserID = userID
	return m.status, m.statusErr
}

func (m *mockService) Reset(ctx context.Context, userID string) error {
	m.gotUserID = userID
	return m.resetErr
}

func (m *mockService) Config() []domain.NetworkSummary {
	return m.summaries
}

func newTestRouter(svc *mockService) chi.Router {
	h := NewHandler(svc)
	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) {
		h.RegisterRoutes(api)
		h.RegisterResetRoute(api)
	})
	return r
}

func doRequest(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHandleStart(t *testing.T) {
	svc := &mockService{startResult: &domain.StartResult{
		Network:         "ethereum",
		ClaimedWallet:   "0x1111111111111111111111111111111111111111",
		Amount:          "0.0000000734",
		AmountBaseUnits: "73400000000",
		BotWallet:       "0x9999999999999999999999999999999999999999",
	}}
	r := newTestRouter(svc)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/verify/start",
		`{"userId":"123","username":"alice","wallet":"0x1111111111111111111111111111111111111111"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "123", svc.gotUserID)

	var result domain.StartResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "0.0000000734", result.Amount)
	assert.Equal(t, "0x9999999999999999999999999999999999999999", result.BotWallet)
}

func TestHandleStartInvalidJSON(t *testing.T) {
	r := newTestRouter(&mockService{})

	rec := doRequest(t, r, http.MethodPost, "/api/v1/verify/start", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestHandleStartErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid user id", err: domain.ErrInvalidUserID, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "invalid address", err: domain.ErrInvalidAddress, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "internal", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&mockService{startErr: tt.err})
			rec := doRequest(t, r, http.MethodPost, "/api/v1/verify/start", `{"userId":"123"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestHandleStartRateLimited(t *testing.T) {
	svc := &mockService{startErr: &domain.RateLimitError{
		Action:  limits.ActionVerify,
		RetryAt: time.Now().Add(30 * time.Second),
	}}
	r := newTestRouter(svc)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/verify/start", `{"userId":"123"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHandleConfirm(t *testing.T) {
	svc := &mockService{confirmResult: &domain.ConfirmResult{
		Verified:      true,
		TransferFound: true,
		Network:       "ethereum",
		RoleGranted:   true,
		Message:       "wallet verified",
	}}
	r := newTestRouter(svc)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/verify/confirm", `{"userId":"123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.ConfirmResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Verified)
	assert.True(t, result.RoleGranted)
}

func TestHandleConfirmWithoutChallenge(t *testing.T) {
	r := newTestRouter(&mockService{confirmErr: domain.ErrChallengeRequired})

	rec := doRequest(t, r, http.MethodPost, "/api/v1/verify/confirm", `{"userId":"123"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CHALLENGE_REQUIRED", errorCode(t, rec))
}

func TestHandleVerifyNetwork(t *testing.T) {
	svc := &mockService{networkResult: &domain.NetworkResult{
		Verified: true,
		Network:  "polygon",
		Wallet:   "0x1111111111111111111111111111111111111111",
	}}
	r := newTestRouter(svc)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/verify/network", `{"userId":"123","network":"polygon"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "polygon", svc.gotNetwork)
}

func TestHandleVerifyNetworkErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "primary required", err: domain.ErrPrimaryRequired, wantStatus: http.StatusPreconditionFailed, wantCode: "PRIMARY_REQUIRED"},
		{name: "unknown network", err: domain.ErrUnknownNetwork, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&mockService{networkErr: tt.err})
			rec := doRequest(t, r, http.MethodPost, "/api/v1/verify/network", `{"userId":"123","network":"solana"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestHandleStatus(t *testing.T) {
	svc := &mockService{status: &domain.Status{
		UserID:   "123",
		Username: "alice",
		Networks: []domain.StatusEntry{
			{Network: "ethereum", WalletAddress: "0x1111111111111111111111111111111111111111", Method: domain.MethodDirectOwnership},
		},
	}}
	r := newTestRouter(svc)

	rec := doRequest(t, r, http.MethodGet, "/api/v1/status/123", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "123", svc.gotUserID)

	var st domain.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Len(t, st.Networks, 1)
	assert.Equal(t, "ethereum", st.Networks[0].Network)
}

func TestHandleStatusNotFound(t *testing.T) {
	r := newTestRouter(&mockService{statusErr: domain.ErrNotFound})

	rec := doRequest(t, r, http.MethodGet, "/api/v1/status/999", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestHandleConfig(t *testing.T) {
	svc := &mockService{summaries: []domain.NetworkSummary{
		{Network: "ethereum", Primary: true, MinRequired: 1},
		{Network: "polygon"},
	}}
	r := newTestRouter(svc)

	rec := doRequest(t, r, http.MethodGet, "/api/v1/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Networks []domain.NetworkSummary `json:"networks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Networks, 2)
	assert.True(t, resp.Networks[0].Primary)
}

func TestHandleReset(t *testing.T) {
	svc := &mockService{}
	r := newTestRouter(svc)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/reset", `{"userId":"123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "123", svc.gotUserID)
}
