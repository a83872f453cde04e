// Package endpoint builds the registry that maps a client-visible URL to the
// AMQP routing details used to reach the microservice behind it, grounded on
// the original proxy's engine/router/endpoint.rs (Endpoint + extract_endpoints).
package endpoint

import (
	"github.com/openmatchmaking/pathfinder/internal/config"
	"github.com/openmatchmaking/pathfinder/internal/perror"
	"github.com/openmatchmaking/pathfinder/internal/plog"
)

const (
	// DefaultRequestExchange is the exchange a request is published to when
	// an endpoint doesn't override it.
	DefaultRequestExchange = "open-matchmaking.direct"

	// DefaultResponseExchange is the exchange the reply queue binds to when
	// an endpoint doesn't override it.
	DefaultResponseExchange = "open-matchmaking.responses.direct"
)

// AuthKind names which middleware applies to an endpoint.
type AuthKind int

const (
	AuthNull AuthKind = iota
	AuthJWT
)

// Descriptor is the resolved, read-only routing information for one URL.
type Descriptor struct {
	URL              string
	RoutingKey       string
	RequestExchange  string
	ResponseExchange string
	Microservice     string
	Auth             AuthKind
}

// Registry resolves a client-supplied URL to its Descriptor.
type Registry struct {
	byURL map[string]*Descriptor
}

// Extract builds a Registry from cfg.Endpoints, logging and skipping any
// entry that is missing a required field, mirroring extract_endpoints'
// warn-and-continue behavior for malformed endpoints. Entries are visited in
// map order, so when two entries resolve to the same URL (through their url
// field), which one is kept is not defined.
func Extract(cfg *config.Config, log plog.Logger) *Registry {
	reg := &Registry{byURL: make(map[string]*Descriptor)}

	for key, ec := range cfg.Endpoints {
		url := ec.URL
		if url == "" {
			url = key
		}
		if url == "" || ec.RoutingKey == "" {
			log.Warning("endpoint %q is invalid: url and routing_key are required", key)
			continue
		}

		requestExchange := ec.RequestExchange
		if requestExchange == "" {
			requestExchange = DefaultRequestExchange
		}
		responseExchange := ec.ResponseExchange
		if responseExchange == "" {
			responseExchange = DefaultResponseExchange
		}

		tokenRequired := ec.TokenRequired == nil || *ec.TokenRequired
		auth := AuthNull
		if tokenRequired {
			auth = AuthJWT
		}

		reg.byURL[url] = &Descriptor{
			URL:              url,
			RoutingKey:       ec.RoutingKey,
			RequestExchange:  requestExchange,
			ResponseExchange: responseExchange,
			Microservice:     ec.Microservice,
			Auth:             auth,
		}
	}

	return reg
}

// Match resolves url to its Descriptor, returning an EndpointNotFound
// *perror.ProxyError when the registry has no entry for it (§7
// EndpointNotFound).
func (r *Registry) Match(url string) (*Descriptor, error) {
	d, ok := r.byURL[url]
	if !ok {
		return nil, perror.EndpointNotFound("Endpoint %q was not found", url)
	}
	return d, nil
}

// Len reports how many endpoints are registered.
func (r *Registry) Len() int {
	return len(r.byURL)
}
