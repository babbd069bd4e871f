package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
	"github.com/dropDatabas3/grantex/internal/security/securecode"
	"github.com/dropDatabas3/grantex/internal/store/memory"
)

// fixture arma un engine completo sobre el store in-memory.
type fixture struct {
	engine  *Engine
	clients *Clients
	auths   *Authorizations
	repo    repository.AuthorizationRepository
}

func newFixture(t *testing.T, issueRefresh, rotateRefresh bool) *fixture {
	t.Helper()
	st := memory.New()
	scheme := securecode.Scheme{BcryptCost: 4} // costo mínimo para tests
	auths := NewAuthorizations(st.Authorizations(), scheme, nil)
	engine := NewEngine(EngineDeps{
		Clients:        st.Clients(),
		Authorizations: auths,
		IssueRefresh:   issueRefresh,
		RotateRefresh:  rotateRefresh,
	})
	return &fixture{
		engine:  engine,
		clients: NewClients(st.Clients(), scheme),
		auths:   auths,
		repo:    st.Authorizations(),
	}
}

func (f *fixture) confidential(t *testing.T, name string) (*repository.Client, string) {
	t.Helper()
	client, secret, err := f.clients.Create(context.Background(), CreateClientInput{
		Name:        name,
		RedirectURI: "https://client.example.com/cb",
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client, secret
}

func (f *fixture) native(t *testing.T, name string) *repository.Client {
	t.Helper()
	client, _, err := f.clients.Create(context.Background(), CreateClientInput{
		Name:        name,
		Type:        repository.ClientTypeNative,
		RedirectURI: "myapp://callback",
	})
	if err != nil {
		t.Fatalf("create native client: %v", err)
	}
	return client
}

func (f *fixture) grantCode(t *testing.T, client *repository.Client, challenge string, scopes ...string) (*repository.Authorization, string) {
	t.Helper()
	auth, code, err := f.auths.Grant(context.Background(), GrantInput{
		OwnerID:       "owner-1",
		Client:        client,
		Scopes:        scopes,
		TTL:           time.Hour,
		WithCode:      true,
		PKCEChallenge: challenge,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	return auth, code
}

func mustExchange(t *testing.T, e *Engine, params Params) *Outcome {
	t.Helper()
	o, err := e.Exchange(context.Background(), params)
	if err != nil {
		t.Fatalf("Exchange fault: %v", err)
	}
	return o
}

func wantError(t *testing.T, o *Outcome, code, description string) {
	t.Helper()
	if o.OK() {
		t.Fatalf("expected error %q, outcome is OK", code)
	}
	if o.ErrorCode() != code {
		t.Fatalf("error = %q, want %q (desc %q)", o.ErrorCode(), code, o.ErrorDescription())
	}
	if o.ErrorDescription() != description {
		t.Fatalf("description = %q, want %q", o.ErrorDescription(), description)
	}
}

// --- request shape ---

func TestExchange_MissingGrantType(t *testing.T) {
	f := newFixture(t, false, false)
	o := mustExchange(t, f.engine, Params{})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter grant_type")
}

func TestExchange_UnknownGrantType(t *testing.T) {
	f := newFixture(t, false, false)
	o := mustExchange(t, f.engine, Params{ParamGrantType: "telepathy"})
	wantError(t, o, ErrorUnsupportedGrantType, "The grant type telepathy is not recognized")
}

func TestExchange_EmptyValueCountsAsAbsent(t *testing.T) {
	f := newFixture(t, false, false)
	o := mustExchange(t, f.engine, Params{ParamGrantType: "authorization_code", ParamClientID: ""})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter client_id")
}

// --- client authentication ---

func TestExchange_UnknownClient(t *testing.T) {
	f := newFixture(t, false, false)
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     "nope",
		ParamClientSecret: "whatever",
	})
	wantError(t, o, ErrorInvalidClient, "Unknown client ID nope")
}

func TestExchange_WrongClientSecret(t *testing.T) {
	f := newFixture(t, false, false)
	client, _ := f.confidential(t, "app-wrong-secret")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: "not-the-secret",
	})
	wantError(t, o, ErrorInvalidClient, "Parameter client_secret does not match")
}

func TestExchange_MissingClientSecret(t *testing.T) {
	f := newFixture(t, false, false)
	client, _ := f.confidential(t, "app-no-secret")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType: "authorization_code",
		ParamClientID:  client.ClientID,
	})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter client_secret")
}

// --- authorization_code, confidential ---

func TestAuthorizationCode_Success(t *testing.T) {
	f := newFixture(t, true, false)
	client, secret := f.confidential(t, "app-ok")
	auth, code := f.grantCode(t, client, "", "read", "write")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
		ParamRedirectURI:  client.RedirectURI,
	})
	if !o.OK() {
		t.Fatalf("unexpected error: %s %s", o.ErrorCode(), o.ErrorDescription())
	}
	if o.Authorization().ID != auth.ID {
		t.Fatal("resolved wrong authorization")
	}

	resp, err := o.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit err: %v", err)
	}
	if resp.AccessToken == "" || resp.TokenType != "bearer" {
		t.Fatalf("bad response: %+v", resp)
	}
	if resp.RefreshToken == "" {
		t.Fatal("IssueRefresh on: refresh token expected")
	}
	if resp.ExpiresIn <= 0 || resp.ExpiresIn > 3600 {
		t.Fatalf("expires_in = %d", resp.ExpiresIn)
	}
	if resp.Scope != "read write" {
		t.Fatalf("scope = %q", resp.Scope)
	}

	// el access token quedó resolvible
	got, err := f.auths.FindAccessToken(context.Background(), resp.AccessToken)
	if err != nil || got.ID != auth.ID {
		t.Fatalf("FindAccessToken: %v", err)
	}
}

func TestAuthorizationCode_NoRefreshWhenDisabled(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-norefresh")
	_, code := f.grantCode(t, client, "", "read")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
		ParamRedirectURI:  client.RedirectURI,
	})
	resp, err := o.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit err: %v", err)
	}
	if resp.RefreshToken != "" {
		t.Fatal("refresh token must not be issued")
	}
}

func TestAuthorizationCode_MissingCode(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-nocode")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
	})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter code")
}

func TestAuthorizationCode_MissingRedirectURI(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-noredir")
	_, code := f.grantCode(t, client, "", "read")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
	})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter redirect_uri")
}

func TestAuthorizationCode_RedirectURIMismatch(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-badredir")
	_, code := f.grantCode(t, client, "", "read")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
		ParamRedirectURI:  "https://evil.example.com/cb",
	})
	wantError(t, o, ErrorRedirectURIMismatch, "Parameter redirect_uri does not match registered URI")
}

func TestAuthorizationCode_BogusCode(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-boguscode")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         "no-such-code",
		ParamRedirectURI:  client.RedirectURI,
	})
	wantError(t, o, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

func TestAuthorizationCode_CodeOfAnotherClient(t *testing.T) {
	f := newFixture(t, false, false)
	victim, _ := f.confidential(t, "app-victim")
	attacker, attackerSecret := f.confidential(t, "app-attacker")
	_, code := f.grantCode(t, victim, "", "read")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     attacker.ClientID,
		ParamClientSecret: attackerSecret,
		ParamCode:         code,
		ParamRedirectURI:  attacker.RedirectURI,
	})
	wantError(t, o, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

func TestAuthorizationCode_ExpiredCode(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-expired")

	// grant con expiry en el pasado, directo al repo
	raw := "expired-code-raw"
	h := securecode.Hashify(raw)
	past := time.Now().Add(-time.Minute)
	err := f.repo.Create(context.Background(), &repository.Authorization{
		ID:        uuid.NewString(),
		OwnerID:   "owner-1",
		ClientID:  client.ID,
		CodeHash:  &h,
		ExpiresAt: &past,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         raw,
		ParamRedirectURI:  client.RedirectURI,
	})
	wantError(t, o, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

func TestAuthorizationCode_SingleUse(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-singleuse")
	_, code := f.grantCode(t, client, "", "read")

	params := Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
		ParamRedirectURI:  client.RedirectURI,
	}
	first := mustExchange(t, f.engine, params)
	if _, err := first.Commit(context.Background()); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	// el code quedó limpiado: un segundo canje es invalid_grant
	second := mustExchange(t, f.engine, params)
	wantError(t, second, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

func TestAuthorizationCode_CommitRace(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-race")
	_, code := f.grantCode(t, client, "", "read")

	params := Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
		ParamRedirectURI:  client.RedirectURI,
	}
	// ambos validan contra el mismo code antes de que alguno lo consuma
	first := mustExchange(t, f.engine, params)
	second := mustExchange(t, f.engine, params)

	if _, err := first.Commit(context.Background()); err != nil {
		t.Fatalf("winner commit: %v", err)
	}
	_, err := second.Commit(context.Background())
	if !errors.Is(err, ErrGrantConsumed) {
		t.Fatalf("loser commit err = %v, want ErrGrantConsumed", err)
	}
	wantError(t, second, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

// --- scope reconciliation ---

func TestExchange_ScopeSubset(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-scope")
	_, code := f.grantCode(t, client, "", "read", "write", "admin")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
		ParamRedirectURI:  client.RedirectURI,
		ParamScope:        "write read",
	})
	if !o.OK() {
		t.Fatalf("unexpected error: %s", o.ErrorDescription())
	}
	if JoinScope(o.Scope()) != "write read" {
		t.Fatalf("scope = %v", o.Scope())
	}
}

func TestExchange_ScopeNeverGranted(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-overscope")
	_, code := f.grantCode(t, client, "", "read")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
		ParamRedirectURI:  client.RedirectURI,
		ParamScope:        "read delete",
	})
	wantError(t, o, ErrorInvalidScope, "The request scope was never granted by the user")
}

func TestExchange_EmptyScopeMeansFullGrant(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-fullscope")
	_, code := f.grantCode(t, client, "", "read", "write")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
		ParamRedirectURI:  client.RedirectURI,
	})
	if !o.OK() || JoinScope(o.Scope()) != "read write" {
		t.Fatalf("scope = %v (err %s)", o.Scope(), o.ErrorDescription())
	}
}

// --- authorization_code, native (PKCE) ---

func TestNativeCode_Success(t *testing.T) {
	f := newFixture(t, true, false)
	client := f.native(t, "native-ok")
	verifier := "native-verifier-value-with-plenty-of-entropy"
	_, code := f.grantCode(t, client, securecode.PKCEChallenge(verifier), "read")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamCode:         code,
		ParamCodeVerifier: verifier,
		ParamRedirectURI:  client.RedirectURI,
	})
	if !o.OK() {
		t.Fatalf("unexpected error: %s %s", o.ErrorCode(), o.ErrorDescription())
	}
	resp, err := o.Commit(context.Background())
	if err != nil || resp.AccessToken == "" {
		t.Fatalf("commit: %v", err)
	}
}

func TestNativeCode_ResolvedByCodeWithoutClientID(t *testing.T) {
	f := newFixture(t, false, false)
	client := f.native(t, "native-nocid")
	verifier := "another-verifier-value-for-the-native-flow"
	_, code := f.grantCode(t, client, securecode.PKCEChallenge(verifier), "read")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamCode:         code,
		ParamCodeVerifier: verifier,
		ParamRedirectURI:  client.RedirectURI,
	})
	if !o.OK() {
		t.Fatalf("unexpected error: %s %s", o.ErrorCode(), o.ErrorDescription())
	}
	if o.Client().ID != client.ID {
		t.Fatal("client not resolved from code")
	}
}

func TestNativeCode_SecretForbidden(t *testing.T) {
	f := newFixture(t, false, false)
	client := f.native(t, "native-secret")
	verifier := "verifier-for-the-forbidden-secret-case"
	_, code := f.grantCode(t, client, securecode.PKCEChallenge(verifier), "read")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: "any-value-correct-or-not",
		ParamCode:         code,
		ParamCodeVerifier: verifier,
		ParamRedirectURI:  client.RedirectURI,
	})
	wantError(t, o, ErrorInvalidRequest, "[:client_secret] must not be provided for native app")
}

func TestNativeCode_MissingVerifier(t *testing.T) {
	f := newFixture(t, false, false)
	client := f.native(t, "native-noverifier")
	_, code := f.grantCode(t, client, securecode.PKCEChallenge("some-verifier"), "read")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:   "authorization_code",
		ParamClientID:    client.ClientID,
		ParamCode:        code,
		ParamRedirectURI: client.RedirectURI,
	})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter code_verifier")
}

func TestNativeCode_WrongVerifier(t *testing.T) {
	f := newFixture(t, false, false)
	client := f.native(t, "native-wrongverifier")
	_, code := f.grantCode(t, client, securecode.PKCEChallenge("right-verifier"), "read")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamCode:         code,
		ParamCodeVerifier: "wrong-verifier",
		ParamRedirectURI:  client.RedirectURI,
	})
	wantError(t, o, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

// --- password ---

func TestPassword_Success(t *testing.T) {
	f := newFixture(t, true, false)
	client, secret := f.confidential(t, "app-password")

	f.engine.Handlers().HandlePasswords(func(ctx context.Context, c *repository.Client, username, password string, scopes []string) (*repository.Authorization, error) {
		if username != "alice" || password != "wonderland" {
			return nil, nil
		}
		auth, _, err := f.auths.Grant(ctx, GrantInput{OwnerID: "alice", Client: c, Scopes: scopes, TTL: time.Hour})
		return auth, err
	})

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "password",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamUsername:     "alice",
		ParamPassword:     "wonderland",
		ParamScope:        "read",
	})
	if !o.OK() {
		t.Fatalf("unexpected error: %s %s", o.ErrorCode(), o.ErrorDescription())
	}
	resp, err := o.Commit(context.Background())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if resp.RefreshToken == "" {
		t.Fatal("password grant with IssueRefresh must return refresh token")
	}
	if o.Authorization().OwnerID != "alice" {
		t.Fatalf("owner = %q", o.Authorization().OwnerID)
	}
}

func TestPassword_BadCredentials(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-badcreds")
	f.engine.Handlers().HandlePasswords(func(ctx context.Context, c *repository.Client, username, password string, scopes []string) (*repository.Authorization, error) {
		return nil, nil
	})
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "password",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamUsername:     "alice",
		ParamPassword:     "nope",
	})
	wantError(t, o, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

func TestPassword_MissingParams(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-pwparams")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "password",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
	})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter username")

	o = mustExchange(t, f.engine, Params{
		ParamGrantType:    "password",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamUsername:     "alice",
	})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter password")
}

func TestPassword_NoHandlerRegistered(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-nohandler")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "password",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamUsername:     "alice",
		ParamPassword:     "wonderland",
	})
	wantError(t, o, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

func TestPassword_HandlerFaultPropagates(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-pwfault")
	boom := errors.New("directory down")
	f.engine.Handlers().HandlePasswords(func(ctx context.Context, c *repository.Client, username, password string, scopes []string) (*repository.Authorization, error) {
		return nil, boom
	})
	_, err := f.engine.Exchange(context.Background(), Params{
		ParamGrantType:    "password",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamUsername:     "alice",
		ParamPassword:     "wonderland",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("fault = %v, want handler error", err)
	}
}

// --- client_credentials ---

func TestClientCredentials_Success(t *testing.T) {
	f := newFixture(t, true, false)
	client, secret := f.confidential(t, "app-m2m")

	var gotOwner string
	f.engine.Handlers().HandleClientCredentials(func(ctx context.Context, c *repository.Client, ownerID string, scopes []string) (*repository.Authorization, error) {
		gotOwner = ownerID
		auth, _, err := f.auths.Grant(ctx, GrantInput{OwnerID: ownerID, Client: c, Scopes: scopes, TTL: time.Hour})
		return auth, err
	})

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "client_credentials",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
	})
	if !o.OK() {
		t.Fatalf("unexpected error: %s %s", o.ErrorCode(), o.ErrorDescription())
	}
	if gotOwner != client.OwnerID {
		t.Fatalf("handler owner = %q, want client owner %q", gotOwner, client.OwnerID)
	}
	resp, err := o.Commit(context.Background())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	// M2M nunca recibe refresh, aun con IssueRefresh global prendido
	if resp.RefreshToken != "" {
		t.Fatal("client_credentials must not issue refresh tokens")
	}
}

func TestClientCredentials_NoHandler(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-m2m-nohandler")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "client_credentials",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
	})
	wantError(t, o, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

// --- assertion ---

const samlType = "urn:oasis:names:tc:SAML:2.0:assertion"

func TestAssertion_Success(t *testing.T) {
	f := newFixture(t, true, false)
	client, secret := f.confidential(t, "app-assertion")

	f.engine.Handlers().HandleAssertions(samlType, func(ctx context.Context, c *repository.Client, assertion string) (*repository.Authorization, error) {
		if assertion != "good-assertion" {
			return nil, nil
		}
		auth, _, err := f.auths.Grant(ctx, GrantInput{OwnerID: "bob", Client: c, Scopes: []string{"read"}, TTL: time.Hour})
		return auth, err
	})

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:     "assertion",
		ParamClientID:      client.ClientID,
		ParamClientSecret:  secret,
		ParamAssertionType: samlType,
		ParamAssertion:     "good-assertion",
	})
	if !o.OK() {
		t.Fatalf("unexpected error: %s %s", o.ErrorCode(), o.ErrorDescription())
	}
	if _, err := o.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestAssertion_MissingParams(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-assert-params")

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "assertion",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
	})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter assertion_type")

	o = mustExchange(t, f.engine, Params{
		ParamGrantType:     "assertion",
		ParamClientID:      client.ClientID,
		ParamClientSecret:  secret,
		ParamAssertionType: samlType,
	})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter assertion")
}

func TestAssertion_TypeMustBeAbsoluteURI(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-assert-uri")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:     "assertion",
		ParamClientID:      client.ClientID,
		ParamClientSecret:  secret,
		ParamAssertionType: "not a uri",
		ParamAssertion:     "x",
	})
	wantError(t, o, ErrorInvalidRequest, "Parameter assertion_type must be an absolute URI")
}

func TestAssertion_NoHandlerForType(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-assert-notype")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:     "assertion",
		ParamClientID:      client.ClientID,
		ParamClientSecret:  secret,
		ParamAssertionType: "https://unknown.example.com/type",
		ParamAssertion:     "x",
	})
	wantError(t, o, ErrorUnauthorizedClient, "Client cannot use the given assertion type")
}

func TestAssertion_FilterRejectsClient(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-assert-filtered")
	f.engine.Handlers().HandleAssertions(samlType, func(ctx context.Context, c *repository.Client, assertion string) (*repository.Authorization, error) {
		t.Fatal("handler must not run for filtered client")
		return nil, nil
	})
	f.engine.Handlers().FilterAssertions(func(c *repository.Client) bool { return false })

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:     "assertion",
		ParamClientID:      client.ClientID,
		ParamClientSecret:  secret,
		ParamAssertionType: samlType,
		ParamAssertion:     "x",
	})
	wantError(t, o, ErrorUnauthorizedClient, "Client cannot use the given assertion type")
}

func TestAssertion_Rejected(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-assert-rejected")
	f.engine.Handlers().HandleAssertions(samlType, func(ctx context.Context, c *repository.Client, assertion string) (*repository.Authorization, error) {
		return nil, nil
	})
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:     "assertion",
		ParamClientID:      client.ClientID,
		ParamClientSecret:  secret,
		ParamAssertionType: samlType,
		ParamAssertion:     "bad",
	})
	wantError(t, o, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

// --- refresh_token ---

// issueInitial canjea un code para obtener el par inicial de tokens.
func issueInitial(t *testing.T, f *fixture, client *repository.Client, secret string) *TokenResponse {
	t.Helper()
	_, code := f.grantCode(t, client, "", "read")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
		ParamRedirectURI:  client.RedirectURI,
	})
	resp, err := o.Commit(context.Background())
	if err != nil {
		t.Fatalf("initial exchange: %v", err)
	}
	return resp
}

func TestRefreshToken_Success(t *testing.T) {
	f := newFixture(t, true, false)
	client, secret := f.confidential(t, "app-refresh")
	initial := issueInitial(t, f, client, secret)

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "refresh_token",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamRefreshToken: initial.RefreshToken,
	})
	if !o.OK() {
		t.Fatalf("unexpected error: %s %s", o.ErrorCode(), o.ErrorDescription())
	}
	resp, err := o.Commit(context.Background())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if resp.AccessToken == "" || resp.AccessToken == initial.AccessToken {
		t.Fatal("a fresh access token was expected")
	}
	// sin rotación: el mismo refresh token sigue sirviendo
	again := mustExchange(t, f.engine, Params{
		ParamGrantType:    "refresh_token",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamRefreshToken: initial.RefreshToken,
	})
	if !again.OK() {
		t.Fatalf("refresh reuse without rotation: %s", again.ErrorDescription())
	}
}

func TestRefreshToken_Rotation(t *testing.T) {
	f := newFixture(t, true, true)
	client, secret := f.confidential(t, "app-rotate")
	initial := issueInitial(t, f, client, secret)

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "refresh_token",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamRefreshToken: initial.RefreshToken,
	})
	resp, err := o.Commit(context.Background())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if resp.RefreshToken == "" || resp.RefreshToken == initial.RefreshToken {
		t.Fatal("rotation must return a new refresh token")
	}

	// el refresh token viejo quedó inválido
	stale := mustExchange(t, f.engine, Params{
		ParamGrantType:    "refresh_token",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamRefreshToken: initial.RefreshToken,
	})
	wantError(t, stale, ErrorInvalidGrant, "The access grant you supplied is invalid")

	// el nuevo sirve
	fresh := mustExchange(t, f.engine, Params{
		ParamGrantType:    "refresh_token",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamRefreshToken: resp.RefreshToken,
	})
	if !fresh.OK() {
		t.Fatalf("rotated token rejected: %s", fresh.ErrorDescription())
	}
}

func TestRefreshToken_Missing(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-norefreshparam")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "refresh_token",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
	})
	wantError(t, o, ErrorInvalidRequest, "Missing required parameter refresh_token")
}

func TestRefreshToken_Bogus(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-bogusrefresh")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "refresh_token",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamRefreshToken: "not-a-token",
	})
	wantError(t, o, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

func TestRefreshToken_OfAnotherClient(t *testing.T) {
	f := newFixture(t, true, false)
	victim, victimSecret := f.confidential(t, "app-rt-victim")
	attacker, attackerSecret := f.confidential(t, "app-rt-attacker")
	initial := issueInitial(t, f, victim, victimSecret)

	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "refresh_token",
		ParamClientID:     attacker.ClientID,
		ParamClientSecret: attackerSecret,
		ParamRefreshToken: initial.RefreshToken,
	})
	wantError(t, o, ErrorInvalidGrant, "The access grant you supplied is invalid")
}

// --- commit guards ---

func TestCommit_RejectsFailedOutcome(t *testing.T) {
	f := newFixture(t, false, false)
	o := mustExchange(t, f.engine, Params{ParamGrantType: "telepathy"})
	if _, err := o.Commit(context.Background()); !errors.Is(err, ErrNotExchangeable) {
		t.Fatalf("err = %v, want ErrNotExchangeable", err)
	}
}

func TestCommit_RejectsDoubleCommit(t *testing.T) {
	f := newFixture(t, false, false)
	client, secret := f.confidential(t, "app-doublecommit")
	_, code := f.grantCode(t, client, "", "read")
	o := mustExchange(t, f.engine, Params{
		ParamGrantType:    "authorization_code",
		ParamClientID:     client.ClientID,
		ParamClientSecret: secret,
		ParamCode:         code,
		ParamRedirectURI:  client.RedirectURI,
	})
	if _, err := o.Commit(context.Background()); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if _, err := o.Commit(context.Background()); !errors.Is(err, ErrNotExchangeable) {
		t.Fatalf("second commit err = %v, want ErrNotExchangeable", err)
	}
}
