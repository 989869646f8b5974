// Package toolcall reaches sources that sit behind an intermediary
// tool/RPC layer (MCP) instead of a direct REST API. It also unwraps the
// result envelopes such backends return.
package toolcall

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
)

// Transport selects how a tool server is reached.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "http"
)

// Server describes one tool server.
type Server struct {
	Name      string
	Transport Transport
	Command   string
	Args      []string
	Env       map[string]string
	URL       string
	Headers   map[string]string
}

// Result is the uniform outcome of a tool call. Result holds the
// concatenated text content; Error is set when the call failed at either
// the transport or the application level.
type Result struct {
	Success bool
	Result  string
	Error   string
}

// Caller invokes named remote capabilities. Plugins depend on this
// interface; the MCP client below is the production implementation.
type Caller interface {
	CallTool(ctx context.Context, server Server, tool string, args map[string]any) (*Result, error)
}

const callTimeout = 60 * time.Second

// MCPCaller implements Caller over the Model Context Protocol. A fresh
// connection is made per call: sync runs are infrequent and connection
// reuse is not worth holding subprocesses open between them.
type MCPCaller struct{}

var _ Caller = (*MCPCaller)(nil)

// CallTool connects to the server, performs the initialize handshake, and
// invokes the named tool. Transport failures return an error; tool-level
// failures (IsError results) return a Result with Success=false.
func (m *MCPCaller) CallTool(ctx context.Context, server Server, tool string, args map[string]any) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	client, err := newClient(server)
	if err != nil {
		return nil, fmt.Errorf("create tool client for %s: %w", server.Name, err)
	}
	defer client.Close() //nolint:errcheck // best-effort cleanup

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    "tasksync",
		Version: "1.0.0",
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", server.Name, err)
	}

	callReq := mcpprotocol.CallToolRequest{}
	callReq.Params.Name = tool
	callReq.Params.Arguments = args

	result, err := client.CallTool(ctx, callReq)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", tool, server.Name, err)
	}

	text := contentText(result.Content)
	if result.IsError {
		msg := text
		if msg == "" {
			msg = fmt.Sprintf("tool %s failed", tool)
		}
		return &Result{Success: false, Error: msg}, nil
	}
	return &Result{Success: true, Result: text}, nil
}

func newClient(server Server) (mcpclient.MCPClient, error) {
	switch server.Transport {
	case TransportStdio:
		return mcpclient.NewStdioMCPClient(server.Command, envSlice(server.Env), server.Args...)
	case TransportSSE:
		var opts []transport.ClientOption
		if len(server.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(server.Headers))
		}
		return mcpclient.NewSSEMCPClient(server.URL, opts...)
	case TransportStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(server.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(server.Headers))
		}
		return mcpclient.NewStreamableHttpClient(server.URL, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport: %s", server.Transport)
	}
}

func contentText(content []mcpprotocol.Content) string {
	var b strings.Builder
	for _, c := range content {
		if text, ok := c.(mcpprotocol.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// UnwrapEnvelope strips the {"content":[{"type":"text","text":"<json>"}]}
// wrapper some backends put around their actual payload. Non-enveloped
// input is returned unchanged.
func UnwrapEnvelope(s string) string {
	if !gjson.Valid(s) {
		return s
	}
	inner := gjson.Get(s, `content.#(type=="text").text`)
	if inner.Exists() {
		return inner.String()
	}
	return s
}

// EmbeddedError returns the application-level error hidden inside an
// otherwise-successful payload ({"isError":true,...} or {"error":"..."}),
// or "" when the payload carries none.
func EmbeddedError(s string) string {
	if !gjson.Valid(s) {
		return ""
	}
	if gjson.Get(s, "isError").Bool() {
		if msg := gjson.Get(s, "message").String(); msg != "" {
			return msg
		}
		return "remote call failed"
	}
	if errVal := gjson.Get(s, "error"); errVal.Exists() {
		if msg := errVal.String(); msg != "" && msg != "null" {
			return msg
		}
	}
	return ""
}
