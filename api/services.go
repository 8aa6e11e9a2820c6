package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/maxpoletaev/gossiplb/loadbalancer"
)

type serviceInfo struct {
	Type      uint8    `json:"type"`
	Endpoints []string `json:"endpoints"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toServiceInfo(s loadbalancer.ServiceInfo) serviceInfo {
	endpoints := make([]string, len(s.Endpoints))
	for i, addr := range s.Endpoints {
		endpoints[i] = addr.String()
	}

	return serviceInfo{
		Type:      uint8(s.Type),
		Endpoints: endpoints,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := jsoniter.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type servicesAPI struct {
	registry Registry
}

func newServicesAPI(registry Registry) *servicesAPI {
	return &servicesAPI{
		registry: registry,
	}
}

func (api *servicesAPI) Bind(r *mux.Router) {
	r.HandleFunc("/services", api.handleList).Methods(http.MethodGet)
	r.HandleFunc("/services/{type}", api.handleGet).Methods(http.MethodGet)
}

func (api *servicesAPI) handleList(w http.ResponseWriter, r *http.Request) {
	services := api.registry.Services()
	resp := make([]serviceInfo, len(services))

	for i, s := range services {
		resp[i] = toServiceInfo(s)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (api *servicesAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	st, err := strconv.ParseUint(mux.Vars(r)["type"], 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service type")
		return
	}

	for _, s := range api.registry.Services() {
		if uint64(s.Type) == st {
			writeJSON(w, http.StatusOK, toServiceInfo(s))
			return
		}
	}

	writeError(w, http.StatusNotFound, "service type is not registered")
}
