package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cdpledger/cmd/internal/secret"
	"cdpledger/crypto"
)

const (
	defaultRPCEndpoint = "http://localhost:8080"
	secretEnv          = "CDP_JWT_SECRET"
)

type cli struct {
	endpoint string
	token    string
	client   *http.Client
	secrets  *secret.Source
	stdout   io.Writer
	stderr   io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{
		endpoint: defaultRPCEndpoint,
		token:    strings.TrimSpace(os.Getenv("CDP_RPC_TOKEN")),
		client:   &http.Client{Timeout: 30 * time.Second},
		secrets:  secret.NewSource(secretEnv, "JWT signing secret: "),
		stdout:   stdout,
		stderr:   stderr,
	}
	if env := strings.TrimSpace(os.Getenv("CDP_RPC_URL")); env != "" {
		c.endpoint = env
	}
	rest, err := c.applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "token":
		err = c.mintToken(cmdArgs)
	case "call":
		err = c.callRaw(cmdArgs)
	case "system":
		err = c.call("cdp_getSystem", nil)
	case "sorted":
		err = c.call("cdp_getSortedTroves", nil)
	case "trove":
		if len(cmdArgs) != 1 {
			err = errors.New("usage: cdpctl trove <owner>")
			break
		}
		err = c.call("cdp_getTrove", map[string]string{"owner": cmdArgs[0]})
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cdpctl [--rpc URL] [--token JWT] <command> [args]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  token <subject> [--ttl 1h] [--issuer cdpledger] [--audience aud]  Mint an HS256 bearer token ($"+secretEnv+")")
	fmt.Fprintln(w, "  call <method> [json-params]                                       Invoke any cdp_* RPC method")
	fmt.Fprintln(w, "  system                                                            Show system totals")
	fmt.Fprintln(w, "  sorted                                                            List troves by NICR")
	fmt.Fprintln(w, "  trove <owner>                                                     Show a trove")
}

func (c *cli) applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--rpc" {
				c.endpoint = args[i+1]
			} else {
				c.token = strings.TrimSpace(args[i+1])
			}
			i++
		case strings.HasPrefix(arg, "--rpc="):
			c.endpoint = strings.TrimPrefix(arg, "--rpc=")
		case strings.HasPrefix(arg, "--token="):
			c.token = strings.TrimSpace(strings.TrimPrefix(arg, "--token="))
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func (c *cli) mintToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	issuer := fs.String("issuer", "cdpledger", "issuer claim")
	audience := fs.String("audience", "", "audience claim")
	if len(args) == 0 {
		return errors.New("usage: cdpctl token <subject> [--ttl 1h] [--issuer cdpledger]")
	}
	subject := strings.TrimSpace(args[0])
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	addr, err := crypto.DecodeAddress(subject)
	if err != nil {
		return fmt.Errorf("invalid subject: %w", err)
	}
	if *ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	key, err := c.secrets.Get()
	if err != nil {
		return err
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   addr.String(),
		Issuer:    strings.TrimSpace(*issuer),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
	}
	if aud := strings.TrimSpace(*audience); aud != "" {
		claims.Audience = jwt.ClaimStrings{aud}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(c.stdout, signed)
	return nil
}

func (c *cli) callRaw(args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("usage: cdpctl call <method> [json-params]")
	}
	var params interface{}
	if len(args) == 2 {
		raw := json.RawMessage(args[1])
		if !json.Valid(raw) {
			return errors.New("params must be a JSON object")
		}
		params = raw
	}
	return c.call(args[0], params)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data,omitempty"`
	} `json:"error"`
}

func (c *cli) call(method string, params interface{}) error {
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{},
	}
	if params != nil {
		request["params"] = []interface{}{params}
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return err
	}
	resp, err := c.doRPCRequest(payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%s (code %d, HTTP %d)", decoded.Error.Message, decoded.Error.Code, resp.StatusCode)
	}
	printJSONResult(c.stdout, decoded.Result)
	return nil
}

func (c *cli) doRPCRequest(payload []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", c.endpoint, err)
	}
	return resp, nil
}

func printJSONResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "No result.")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		fmt.Fprintln(w, string(result))
		return
	}
	fmt.Fprintln(w, buf.String())
}
