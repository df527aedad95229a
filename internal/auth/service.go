package auth

import (
	"fmt"
	"net/url"

	"gopkg.in/cas.v2"

	"github.com/otp-manager/otp-manager/internal/shared"
)

// TicketValidator validates CAS service tickets. *cas.ServiceTicketValidator
// satisfies it.
type TicketValidator interface {
	ValidateTicket(serviceURL *url.URL, ticket string) (*cas.AuthenticationResponse, error)
}

// Classifier maps a uid to its role.
type Classifier interface {
	Classify(uid string) shared.Role
}

// Service wraps the CAS login rules.
type Service struct {
	validator  TicketValidator
	classifier Classifier
	casURL     *url.URL
	serviceURL *url.URL
}

// NewService constructs a Service. casBaseURL is the CAS server root
// (e.g. https://cas.example.org/cas) and serviceURL the absolute URL of this
// manager's login route.
func NewService(validator TicketValidator, classifier Classifier, casBaseURL, serviceURL string) (*Service, error) {
	casURL, err := url.Parse(casBaseURL)
	if err != nil {
		return nil, fmt.Errorf("auth: cas url: %w", err)
	}
	service, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("auth: service url: %w", err)
	}
	return &Service{validator: validator, classifier: classifier, casURL: casURL, serviceURL: service}, nil
}

// LoginURL returns the CAS login URL redirecting back to this service.
func (s *Service) LoginURL() string {
	u := s.casEndpoint("login")
	q := u.Query()
	q.Set("service", s.serviceURL.String())
	u.RawQuery = q.Encode()
	return u.String()
}

// LogoutURL returns the CAS logout URL.
func (s *Service) LogoutURL() string {
	return s.casEndpoint("logout").String()
}

// Authenticate validates ticket and builds the session identity. The role is
// computed here, once per login.
func (s *Service) Authenticate(ticket string) (*shared.Identity, error) {
	resp, err := s.validator.ValidateTicket(s.serviceURL, ticket)
	if err != nil {
		return nil, fmt.Errorf("auth: validate ticket: %w", err)
	}
	if resp == nil || resp.User == "" {
		return nil, shared.ErrInvalidTicket
	}
	return &shared.Identity{
		UID:        resp.User,
		Attributes: attributes(resp.Attributes),
		Role:       s.classifier.Classify(resp.User),
	}, nil
}

func (s *Service) casEndpoint(name string) *url.URL {
	u := *s.casURL
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	u.Path += name
	u.RawPath = ""
	u.RawQuery = ""
	return &u
}

// attributes flattens single valued CAS attributes to plain strings.
func attributes(in cas.UserAttributes) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for name, values := range in {
		switch len(values) {
		case 0:
			continue
		case 1:
			out[name] = values[0]
		default:
			out[name] = append([]string(nil), values...)
		}
	}
	return out
}
