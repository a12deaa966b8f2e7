package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alwitt/ballotbox/models"
	"github.com/go-playground/validator/v10"
)

// ErrUnauthenticated request did not carry a trusted identity
var ErrUnauthenticated = errors.New("unauthenticated")

// Default identity headers
const (
	DefaultUsernameHeader    = "X-Ballotbox-Username"
	DefaultAccountTypeHeader = "X-Ballotbox-Account-Type"
)

// Authenticator resolves the identity of a request's caller
type Authenticator interface {
	/*
		Authenticate resolve the caller of a request

			@param req *http.Request - the request
			@returns the caller identity, or an error wrapping ErrUnauthenticated
	*/
	Authenticate(req *http.Request) (models.Identity, error)
}

// HeaderAuthenticatorParams parameters for the shared token header authenticator
type HeaderAuthenticatorParams struct {
	// Token the shared bearer token of the upstream that asserts identities
	Token string `validate:"required,min=16"`
	// UsernameHeader header carrying the caller username
	UsernameHeader string `validate:"omitempty"`
	// AccountTypeHeader header carrying the caller account type
	AccountTypeHeader string `validate:"omitempty"`
}

// headerAuthenticator trusts identity headers on requests bearing the shared token
type headerAuthenticator struct {
	token             []byte
	usernameHeader    string
	accountTypeHeader string
	validator         *validator.Validate
}

/*
NewHeaderAuthenticator define a new identity header authenticator

The identity headers are only trusted on requests carrying "Authorization: Bearer <token>".

	@param params HeaderAuthenticatorParams - authenticator parameters
	@returns authenticator
*/
func NewHeaderAuthenticator(params HeaderAuthenticatorParams) (Authenticator, error) {
	validate := validator.New()
	if err := models.RegisterWithValidator(validate); err != nil {
		return nil, fmt.Errorf("failed to register custom validators [%w]", err)
	}
	if err := validate.Struct(&params); err != nil {
		return nil, fmt.Errorf("authenticator params invalid [%w]", err)
	}

	if params.UsernameHeader == "" {
		params.UsernameHeader = DefaultUsernameHeader
	}
	if params.AccountTypeHeader == "" {
		params.AccountTypeHeader = DefaultAccountTypeHeader
	}

	return &headerAuthenticator{
		token:             []byte(params.Token),
		usernameHeader:    params.UsernameHeader,
		accountTypeHeader: params.AccountTypeHeader,
		validator:         validate,
	}, nil
}

func (a *headerAuthenticator) Authenticate(req *http.Request) (models.Identity, error) {
	hdr := strings.TrimSpace(req.Header.Get("Authorization"))
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return models.Identity{}, fmt.Errorf("missing bearer token [%w]", ErrUnauthenticated)
	}
	given := strings.TrimSpace(parts[1])
	if subtle.ConstantTimeCompare([]byte(given), a.token) != 1 {
		return models.Identity{}, fmt.Errorf("invalid bearer token [%w]", ErrUnauthenticated)
	}

	identity := models.Identity{
		Username: strings.TrimSpace(req.Header.Get(a.usernameHeader)),
		AccountType: models.AccountTypeENUMType(
			strings.ToUpper(strings.TrimSpace(req.Header.Get(a.accountTypeHeader))),
		),
	}
	if err := a.validator.Struct(&identity); err != nil {
		return models.Identity{}, fmt.Errorf("identity headers invalid: %s [%w]", err.Error(), ErrUnauthenticated)
	}
	return identity, nil
}
