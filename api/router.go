package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/maxpoletaev/gossiplb/loadbalancer"
)

// Registry lists the endpoints known to the load balancer.
type Registry interface {
	Services() []loadbalancer.ServiceInfo
}

func NewRouter(registry Registry) *mux.Router {
	r := mux.NewRouter()
	newServicesAPI(registry).Bind(r)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return r
}
