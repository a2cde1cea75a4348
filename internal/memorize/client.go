package memorize

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// memorizeToolName is the tool invoked on the knowledge-capture server.
const memorizeToolName = "memorize"

// Transport selects how the MCP connection to the knowledge-capture server is
// established.
type Transport string

const (
	// TransportStdio launches the server as a subprocess and speaks MCP over
	// its stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP connects to a streamable-HTTP MCP endpoint.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ClientConfig configures a [Client].
type ClientConfig struct {
	// Transport selects stdio or streamable-http.
	Transport Transport

	// Command is the server command line for stdio transport. It is split on
	// spaces into executable + args.
	Command string

	// URL is the endpoint address for streamable-http transport.
	URL string
}

// Client implements [Memorizer] against an external MCP server using the
// official MCP Go SDK. The connection is established lazily on the first
// trigger and reused afterwards. All methods are safe for concurrent use.
type Client struct {
	cfg    ClientConfig
	client *mcpsdk.Client

	// lifeCtx bounds the stdio server subprocess. Per-call contexts bound
	// only individual tool calls; tying the subprocess to one of them would
	// kill the cached session when that call's cancel runs.
	lifeCtx  context.Context
	lifeStop context.CancelFunc

	// newTransport overrides transport construction in tests.
	newTransport func() mcpsdk.Transport

	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

// Compile-time interface check.
var _ Memorizer = (*Client)(nil)

// NewClient creates a Client for the given configuration. No connection is
// made until the first [Client.Memorize] call.
func NewClient(cfg ClientConfig) (*Client, error) {
	if !cfg.Transport.IsValid() {
		return nil, fmt.Errorf("memorize: unknown transport %q", cfg.Transport)
	}
	if cfg.Transport == TransportStdio && strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("memorize: stdio transport requires a non-empty command")
	}
	if cfg.Transport == TransportStreamableHTTP && cfg.URL == "" {
		return nil, fmt.Errorf("memorize: streamable-http transport requires a non-empty URL")
	}

	lifeCtx, lifeStop := context.WithCancel(context.Background())
	return &Client{
		cfg: cfg,
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "coachd-memorize", Version: "1.0.0"},
			nil,
		),
		lifeCtx:  lifeCtx,
		lifeStop: lifeStop,
	}, nil
}

// Memorize implements [Memorizer]. It forwards the trigger to the server's
// "memorize" tool. A tool-level error result is returned as an error so the
// caller can log it, but the caller is expected not to retry.
func (c *Client) Memorize(ctx context.Context, trigger Trigger) error {
	session, err := c.connect(ctx)
	if err != nil {
		return err
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name: memorizeToolName,
		Arguments: map[string]any{
			"question_index": trigger.QuestionIndex,
			"text":           trigger.Text,
		},
	})
	if err != nil {
		return fmt.Errorf("memorize: call tool: %w", err)
	}
	if result.IsError {
		return fmt.Errorf("memorize: tool reported error: %s", textContent(result))
	}
	return nil
}

// Close terminates the MCP session if one was established and releases the
// server subprocess. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.lifeStop()
	if c.session == nil {
		return nil
	}
	session := c.session
	c.session = nil
	return session.Close()
}

// connect returns the active session, dialling the server on first use.
func (c *Client) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session, nil
	}

	var transport mcpsdk.Transport
	switch {
	case c.newTransport != nil:
		transport = c.newTransport()
	case c.cfg.Transport == TransportStdio:
		// The subprocess is bound to the client lifetime, not the calling
		// trigger's context, so it survives each trigger's cancel.
		executable, args := splitCommand(c.cfg.Command)
		transport = &mcpsdk.CommandTransport{Command: exec.CommandContext(c.lifeCtx, executable, args...)}
	case c.cfg.Transport == TransportStreamableHTTP:
		transport = &mcpsdk.StreamableClientTransport{Endpoint: c.cfg.URL}
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("memorize: connect to knowledge server: %w", err)
	}
	c.session = session
	return session, nil
}

// splitCommand splits a command line on spaces into executable + args.
func splitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// textContent concatenates all text content of a tool result.
func textContent(result *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
