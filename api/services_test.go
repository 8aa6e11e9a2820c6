package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/gossiplb/loadbalancer"
	"github.com/maxpoletaev/gossiplb/membership"
)

type staticRegistry []loadbalancer.ServiceInfo

func (r staticRegistry) Services() []loadbalancer.ServiceInfo {
	return r
}

var testRegistry = staticRegistry{
	{
		Type: 1,
		Endpoints: []membership.Address{
			{Host: "10.0.0.1", Port: 7946},
			{Host: "10.0.0.2", Port: 7946},
		},
	},
	{
		Type: 2,
	},
}

func serve(registry Registry, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	NewRouter(registry).ServeHTTP(rr, req)

	return rr
}

func TestServicesAPI_handleList(t *testing.T) {
	tests := map[string]struct {
		registry Registry
		wantBody []serviceInfo
	}{
		"Empty": {
			registry: staticRegistry{},
			wantBody: []serviceInfo{},
		},
		"NotEmpty": {
			registry: testRegistry,
			wantBody: []serviceInfo{
				{Type: 1, Endpoints: []string{"10.0.0.1:7946", "10.0.0.2:7946"}},
				{Type: 2, Endpoints: []string{}},
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rr := serve(tt.registry, http.MethodGet, "/services")
			require.Equal(t, http.StatusOK, rr.Code)
			require.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

			var resp []serviceInfo
			err := jsoniter.Unmarshal(rr.Body.Bytes(), &resp)
			require.NoError(t, err, "failed to unmarshal response: %v", err)

			require.Equal(t, tt.wantBody, resp)
		})
	}
}

func TestServicesAPI_handleGet(t *testing.T) {
	tests := map[string]struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		"Registered": {
			path:       "/services/1",
			wantStatus: http.StatusOK,
			wantBody:   `{"type":1,"endpoints":["10.0.0.1:7946","10.0.0.2:7946"]}`,
		},
		"NoEndpoints": {
			path:       "/services/2",
			wantStatus: http.StatusOK,
			wantBody:   `{"type":2,"endpoints":[]}`,
		},
		"NotRegistered": {
			path:       "/services/3",
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"service type is not registered"}`,
		},
		"InvalidType": {
			path:       "/services/abc",
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid service type"}`,
		},
		"UnknownPath": {
			path:       "/nodes",
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"not found"}`,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rr := serve(testRegistry, http.MethodGet, tt.path)
			require.Equal(t, tt.wantStatus, rr.Code)
			require.JSONEq(t, tt.wantBody, rr.Body.String())
		})
	}
}

func TestServicesAPI_MethodNotAllowed(t *testing.T) {
	rr := serve(testRegistry, http.MethodPost, "/services")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestServicesAPI_LoadBalancer(t *testing.T) {
	lb := loadbalancer.New(loadbalancer.DefaultConfig())
	loadbalancer.MustRegister[string](lb, 1, loadbalancer.FactoryFuncs[string]{
		CreateFunc: func(addr membership.Address, port uint16) (string, error) {
			return addr.String(), nil
		},
	})

	err := lb.HandleEvent(membership.Event{
		Address: membership.Address{Host: "10.0.0.5", Port: 7946},
		New:     &membership.State{Health: membership.HealthAlive, ServiceType: 1, ServicePort: 8000},
	})
	require.NoError(t, err)

	rr := serve(lb, http.MethodGet, "/services")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[{"type":1,"endpoints":["10.0.0.5:7946"]}]`, rr.Body.String())
}
