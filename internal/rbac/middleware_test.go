package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/otp-manager/otp-manager/internal/shared"
)

func TestClassifierPrecedence(t *testing.T) {
	c := NewClassifier([]string{"mgr", "both", " "}, []string{"root", "both"})

	assert.Equal(t, shared.RoleAdmin, c.Classify("root"))
	assert.Equal(t, shared.RoleAdmin, c.Classify("both"))
	assert.Equal(t, shared.RoleManager, c.Classify("mgr"))
	assert.Equal(t, shared.RoleUser, c.Classify("jdoe"))
	assert.Equal(t, shared.RoleUser, c.Classify(""))

	var nilClassifier *Classifier
	assert.Equal(t, shared.RoleUser, nilClassifier.Classify("root"))
}

func TestGates(t *testing.T) {
	m := NewMiddleware("/otp/", nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	gates := map[string]http.Handler{
		"authenticated": m.RequireAuthenticated(ok),
		"manager":       m.RequireManagerOrAdmin(ok),
		"admin":         m.RequireAdmin(ok),
	}

	identities := map[string]*shared.Identity{
		"anonymous": nil,
		"user":      {UID: "jdoe", Role: shared.RoleUser},
		"manager":   {UID: "mgr", Role: shared.RoleManager},
		"admin":     {UID: "root", Role: shared.RoleAdmin},
	}

	// expected[gate][identity] is either a redirect target or "" for pass.
	expected := map[string]map[string]string{
		"authenticated": {"anonymous": "/otp/login", "user": "", "manager": "", "admin": ""},
		"manager":       {"anonymous": "/otp/login", "user": "/otp/forbidden", "manager": "", "admin": ""},
		"admin":         {"anonymous": "/otp/login", "user": "/otp/forbidden", "manager": "/otp/forbidden", "admin": ""},
	}

	for gateName, gate := range gates {
		for idName, id := range identities {
			t.Run(gateName+"/"+idName, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, "/otp/api/x", nil)
				sess := &shared.Session{}
				if id != nil {
					sess.SetIdentity(id)
				}
				req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
				rr := httptest.NewRecorder()
				gate.ServeHTTP(rr, req)

				want := expected[gateName][idName]
				if want == "" {
					assert.Equal(t, http.StatusTeapot, rr.Code)
					return
				}
				assert.Equal(t, http.StatusFound, rr.Code)
				assert.Equal(t, want, rr.Header().Get("Location"))
			})
		}
	}
}

func TestGateWithoutSessionRedirectsToLogin(t *testing.T) {
	m := NewMiddleware("/", nil)
	rr := httptest.NewRecorder()
	m.RequireAdmin(http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/admin/users", nil))
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}
