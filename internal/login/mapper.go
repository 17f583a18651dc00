// Package login maps a login event to an external user id and runs the
// per-user group sync for it.
package login

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/config"
)

const subjectClaim = "sub"

// ErrUnknownMapper is returned for an unsupported Login.Mapper.
var ErrUnknownMapper = errors.New("unknown login mapper")

// Attributes describe a completed login.
type Attributes struct {
	// Login is the name the user logged in with.
	Login string `json:"login"`
	// Values are attributes released by the identity provider.
	Values map[string][]string `json:"attributes,omitempty"`
	// IDToken is a raw OIDC ID token.
	IDToken string `json:"id_token,omitempty"`
	// AccessToken is used for the userinfo endpoint when the ID token lacks the claim.
	AccessToken string `json:"access_token,omitempty"`
}

// Mapper returns the external user id of a login, "" when there is none.
type Mapper interface {
	ExternalID(ctx context.Context, attrs Attributes) (string, error)
}

// NullMapper never yields an id, which disables login syncs.
type NullMapper struct{}

// ExternalID implements Mapper.
func (NullMapper) ExternalID(context.Context, Attributes) (string, error) { return "", nil }

// LoginMapper uses the login name as the external id.
type LoginMapper struct{}

// ExternalID implements Mapper.
func (LoginMapper) ExternalID(_ context.Context, attrs Attributes) (string, error) {
	return attrs.Login, nil
}

// AttributeMapper reads the first value of a named attribute.
type AttributeMapper struct {
	Name string
}

// ExternalID implements Mapper.
func (m AttributeMapper) ExternalID(_ context.Context, attrs Attributes) (string, error) {
	if values := attrs.Values[m.Name]; len(values) > 0 {
		return values[0], nil
	}

	return "", nil
}

// OIDCMapper verifies an ID token and reads the external id from a claim.
type OIDCMapper struct {
	verifier *oidc.IDTokenVerifier
	provider *oidc.Provider
	claim    string
}

// NewOIDCMapper discovers the issuer and builds its token verifier.
func NewOIDCMapper(ctx context.Context, cfg config.OIDC) (*OIDCMapper, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:          cfg.ClientID,
		SkipClientIDCheck: cfg.SkipClientIDCheck,
	})

	m := NewOIDCMapperWithVerifier(verifier, cfg.Claim)
	m.provider = provider

	return m, nil
}

// NewOIDCMapperWithVerifier uses verifier as is. Userinfo lookups are disabled.
func NewOIDCMapperWithVerifier(verifier *oidc.IDTokenVerifier, claim string) *OIDCMapper {
	if claim == "" {
		claim = subjectClaim
	}

	return &OIDCMapper{verifier: verifier, claim: claim}
}

// ExternalID implements Mapper. A login without an ID token has no id, a
// token that does not verify is a validation error.
func (m *OIDCMapper) ExternalID(ctx context.Context, attrs Attributes) (string, error) {
	const op = "login.OIDCMapper"

	if attrs.IDToken == "" {
		return "", nil
	}

	token, err := m.verifier.Verify(ctx, attrs.IDToken)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, op, err)
	}

	if m.claim == subjectClaim {
		return token.Subject, nil
	}

	var claims map[string]any
	if err = token.Claims(&claims); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, op, err)
	}

	if id := claimString(claims[m.claim]); id != "" {
		return id, nil
	}

	return m.fromUserInfo(ctx, attrs.AccessToken)
}

func (m *OIDCMapper) fromUserInfo(ctx context.Context, accessToken string) (string, error) {
	if m.provider == nil || accessToken == "" {
		return "", nil
	}

	info, err := m.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransport, "login.OIDCMapper.UserInfo", err)
	}

	var claims map[string]any
	if err = info.Claims(&claims); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "login.OIDCMapper.UserInfo", err)
	}

	return claimString(claims[m.claim]), nil
}

func claimString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		if len(val) > 0 {
			return claimString(val[0])
		}
	}

	return ""
}

// NewMapper builds the mapper selected by cfg.Mapper.
func NewMapper(ctx context.Context, cfg config.Login) (Mapper, error) {
	switch cfg.Mapper {
	case config.LoginMapperNull:
		return NullMapper{}, nil
	case config.LoginMapperLogin, "":
		return LoginMapper{}, nil
	case config.LoginMapperAttribute:
		return AttributeMapper{Name: cfg.Attribute}, nil
	case config.LoginMapperOIDC:
		return NewOIDCMapper(ctx, cfg.OIDC)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMapper, cfg.Mapper)
	}
}
