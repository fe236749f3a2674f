package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"cdpledger/crypto"
)

type capturedRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	Auth   string            `json:"-"`
}

func newRPCStub(t *testing.T, reply string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		captured.Auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestApplyGlobalFlags(t *testing.T) {
	c := &cli{endpoint: defaultRPCEndpoint}
	rest, err := c.applyGlobalFlags([]string{"--rpc", "http://node:9000", "call", "--token=abc", "cdp_getSystem"})
	require.NoError(t, err)
	require.Equal(t, []string{"call", "cdp_getSystem"}, rest)
	require.Equal(t, "http://node:9000", c.endpoint)
	require.Equal(t, "abc", c.token)

	_, err = c.applyGlobalFlags([]string{"--rpc"})
	require.ErrorContains(t, err, "missing value for --rpc")
}

func TestCallSendsParamsAndBearer(t *testing.T) {
	srv, captured := newRPCStub(t, `{"jsonrpc":"2.0","id":1,"result":{"status":"active"}}`)
	t.Setenv("CDP_RPC_URL", srv.URL)
	t.Setenv("CDP_RPC_TOKEN", "bearer-token")

	var stdout, stderr bytes.Buffer
	code := run([]string{"call", "cdp_openTrove", `{"coll":"10","debt":"2000"}`}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, "cdp_openTrove", captured.Method)
	require.Len(t, captured.Params, 1)
	require.JSONEq(t, `{"coll":"10","debt":"2000"}`, string(captured.Params[0]))
	require.Equal(t, "Bearer bearer-token", captured.Auth)
	require.Contains(t, stdout.String(), `"status": "active"`)
}

func TestTroveCommandReportsRPCError(t *testing.T) {
	srv, captured := newRPCStub(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32004,"message":"trove not found"}}`)
	owner := crypto.ModuleAddress("alice").String()

	var stdout, stderr bytes.Buffer
	code := run([]string{"--rpc", srv.URL, "trove", owner}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Equal(t, "cdp_getTrove", captured.Method)
	require.JSONEq(t, `{"owner":"`+owner+`"}`, string(captured.Params[0]))
	require.Contains(t, stderr.String(), "trove not found (code -32004")
}

func TestTokenMintsVerifiableJWT(t *testing.T) {
	t.Setenv(secretEnv, "cli-secret")
	subject := crypto.ModuleAddress("operator")

	var stdout, stderr bytes.Buffer
	code := run([]string{"token", subject.Hex(), "--ttl", "10m", "--audience", "cdp-rpc"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	raw := strings.TrimSpace(stdout.String())
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	require.Equal(t, subject.String(), claims.Subject)
	require.Equal(t, "cdpledger", claims.Issuer)
	require.Equal(t, jwt.ClaimStrings{"cdp-rpc"}, claims.Audience)
}

func TestTokenRejectsBadSubject(t *testing.T) {
	t.Setenv(secretEnv, "cli-secret")
	var stdout, stderr bytes.Buffer
	require.Equal(t, 1, run([]string{"token", "not-an-address"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "invalid subject")
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 2, run([]string{"frobnicate"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "Unknown command")
}
