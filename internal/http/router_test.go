package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/omnisense/dispatch/internal/ai"
	"github.com/omnisense/dispatch/internal/config"
	"github.com/omnisense/dispatch/internal/models"
	"github.com/omnisense/dispatch/internal/service"
)

type quietAgent struct{}

func (quietAgent) HandleMessage(ctx context.Context, call models.Call, text string) (ai.Assessment, error) {
	return ai.Assessment{Reply: "Okay."}, nil
}

func newTestRouter(adminKey string) (*gin.Engine, *service.Orchestrator) {
	gin.SetMode(gin.TestMode)
	orch := service.NewOrchestrator(service.Options{}, quietAgent{}, nil, zerolog.Nop())
	sw := service.NewSwitch(orch, nil, orch.SendMessage, 0, zerolog.Nop())
	cfg := config.Config{AdminKey: adminKey, CORSAllowed: "*"}
	return Router(cfg, orch, sw, nil, zerolog.Nop()), orch
}

func serve(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterPublicRoutes(t *testing.T) {
	r, _ := newTestRouter("")

	w := serve(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = serve(r, http.MethodGet, "/api/state", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"stats"`)

	w = serve(r, http.MethodGet, "/api/records", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouterAdminRoutesRequireKey(t *testing.T) {
	r, orch := newTestRouter("letmein")
	call, err := orch.CreateCall(context.Background(), "")
	assert.NoError(t, err)
	orch.RegisterOperator("op-2", "", nil)

	w := serve(r, http.MethodPost, "/api/calls/"+call.ID+"/archive", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodDelete, "/api/operators/op-2", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodPost, "/api/calls/"+call.ID+"/assign", `{"operator_id":"op-2"}`, map[string]string{"X-Admin-Key": "letmein"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodPost, "/api/operators", `{"id":"op-3"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	r, _ := newTestRouter("")
	w := serve(r, http.MethodOptions, "/api/calls", "", map[string]string{
		"Origin":                        "http://dashboard.local",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
