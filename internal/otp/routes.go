// Package otp exposes the manager's HTTP surface: the pages, the message
// bundles and the API routes proxied to the OTP backend.
package otp

import (
	"net/http"

	"github.com/otp-manager/otp-manager/internal/otpapi"
)

// Gate is the access level a route requires.
type Gate int

const (
	GateAuthenticated Gate = iota
	GateManager
	GateAdmin
)

func (g Gate) String() string {
	switch g {
	case GateManager:
		return "manager"
	case GateAdmin:
		return "admin"
	default:
		return "authenticated"
	}
}

// Route maps one inbound endpoint onto one backend call.
//
// Backend placeholders resolve against the chi URL parameters of Path, with
// two additions: {self} is the session uid, {hash:name} is the users secret
// hash of the value {name} resolves to.
type Route struct {
	Method        string
	Path          string
	Gate          Gate
	Backend       otpapi.Template
	BackendMethod string
	Bearer        bool
}

func proxied(method, path string, gate Gate, backend string) Route {
	return Route{
		Method:        method,
		Path:          path,
		Gate:          gate,
		Backend:       otpapi.MustParseTemplate(backend),
		BackendMethod: method,
		Bearer:        true,
	}
}

// APIRoutes is the proxied route table.
var APIRoutes = []Route{
	{
		Method:        http.MethodGet,
		Path:          "/api/user",
		Gate:          GateAuthenticated,
		Backend:       otpapi.MustParseTemplate("users/{self}/{hash:self}"),
		BackendMethod: http.MethodGet,
	},
	proxied(http.MethodGet, "/api/transport/{transport}/test/{uid}", GateAuthenticated, "protected/users/{uid}/transports/{transport}/test/"),
	proxied(http.MethodGet, "/api/methods", GateAuthenticated, "protected/methods/"),
	proxied(http.MethodGet, "/api/secret/{method}", GateAuthenticated, "protected/users/{self}/methods/{method}/secret/"),
	proxied(http.MethodPut, "/api/{method}/activate", GateAuthenticated, "protected/users/{self}/methods/{method}/activate/"),
	proxied(http.MethodPost, "/api/{method}/confirm_activate", GateAuthenticated, "protected/users/{self}/methods/{method}/confirm_activate/"),
	proxied(http.MethodPost, "/api/{method}/auth/{authenticator_id}", GateAuthenticated, "protected/users/{self}/methods/{method}/auth/{authenticator_id}/"),
	proxied(http.MethodDelete, "/api/{method}/auth/{authenticator_id}", GateAuthenticated, "protected/users/{self}/methods/{method}/auth/{authenticator_id}/"),
	proxied(http.MethodPut, "/api/{method}/deactivate", GateAuthenticated, "protected/users/{self}/methods/{method}/deactivate/"),
	proxied(http.MethodPut, "/api/transport/{transport}/{new_transport}/{uid}", GateAuthenticated, "protected/users/{uid}/transports/{transport}/{new_transport}/"),
	proxied(http.MethodDelete, "/api/transport/{transport}/{uid}", GateAuthenticated, "protected/users/{uid}/transports/{transport}/"),
	proxied(http.MethodPost, "/api/generate/{method}", GateAuthenticated, "protected/users/{self}/methods/{method}/secret/"),

	proxied(http.MethodGet, "/api/admin/users", GateManager, "admin/users/"),
	{
		Method:        http.MethodGet,
		Path:          "/api/admin/user/{uid}",
		Gate:          GateManager,
		Backend:       otpapi.MustParseTemplate("users/{uid}/{hash:uid}"),
		BackendMethod: http.MethodGet,
	},
	proxied(http.MethodPut, "/api/admin/{uid}/{method}/activate", GateManager, "protected/users/{uid}/methods/{method}/activate/"),
	proxied(http.MethodPut, "/api/admin/{uid}/{method}/deactivate", GateManager, "protected/users/{uid}/methods/{method}/deactivate/"),
	proxied(http.MethodPut, "/api/admin/{method}/activate", GateAdmin, "admin/methods/{method}/activate/"),
	proxied(http.MethodPut, "/api/admin/{method}/deactivate", GateAdmin, "admin/methods/{method}/deactivate/"),
	proxied(http.MethodPut, "/api/admin/{method}/transport/{transport}/activate", GateAdmin, "admin/methods/{method}/transports/{transport}/activate/"),
	proxied(http.MethodPut, "/api/admin/{method}/transport/{transport}/deactivate", GateAdmin, "admin/methods/{method}/transports/{transport}/deactivate/"),
	proxied(http.MethodPost, "/api/admin/generate/{method}/{uid}", GateManager, "protected/users/{uid}/methods/{method}/secret/"),
	proxied(http.MethodDelete, "/api/admin/delete_method_secret/{method}/{uid}", GateManager, "admin/users/{uid}/methods/{method}/secret/"),
}
