package mcps

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/tools"
)

const protocolVersion = "2024-11-05"

// Client speaks JSON-RPC 2.0 over the stdio of one MCP server process.
type Client struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader

	writeMu sync.Mutex
	mu      sync.Mutex
	msgID   int
	pending map[int]chan *Response
	done    chan struct{}

	tools []tools.Tool
}

type Config struct {
	Name    string            `json:"name" yaml:"name" validate:"required,excludesall=/"`
	Command string            `json:"command" yaml:"command" validate:"required"`
	Args    []string          `json:"args" yaml:"args"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ListToolsResult struct {
	Tools []MCPTool `json:"tools"`
}

type MCPTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), envMapToSlice(cfg.Env)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("start MCP server: %w", err)
	}
	go logStderr(cfg.Name, stderr)

	client, err := connect(ctx, cfg.Name, stdin, stdout)
	if err != nil {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	client.cmd = cmd
	return client, nil
}

// connect runs the handshake and tool discovery over an already open stream.
func connect(ctx context.Context, name string, stdin io.WriteCloser, stdout io.Reader) (*Client, error) {
	client := &Client{
		name:    name,
		stdin:   stdin,
		stdout:  stdout,
		pending: make(map[int]chan *Response),
		done:    make(chan struct{}),
	}
	go client.readLoop()

	if err := client.initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := client.discoverTools(ctx); err != nil {
		return nil, fmt.Errorf("discover tools: %w", err)
	}

	log.Info().Str("mcp", name).Int("tools", len(client.tools)).Msg("✅ MCP server connected")
	return client, nil
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "Live2D-AI-Agent",
			"version": "1.0.0",
		},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify("notifications/initialized", nil)
}

func (c *Client) discoverTools(ctx context.Context) error {
	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}

	var result ListToolsResult
	if err = json.Unmarshal(resp, &result); err != nil {
		return err
	}

	c.tools = make([]tools.Tool, 0, len(result.Tools))
	for _, mcpTool := range result.Tools {
		c.tools = append(c.tools, c.wrapMCPTool(mcpTool))
	}
	return nil
}

func (c *Client) wrapMCPTool(mcpTool MCPTool) tools.Tool {
	remote := mcpTool.Name
	return tools.Tool{
		Name:        c.name + "/" + remote,
		Description: mcpTool.Description,
		Parameters:  convertSchema(mcpTool.InputSchema),
		Handler: tools.HandlerFunc(func(ctx context.Context, params map[string]any) (any, error) {
			return c.CallTool(ctx, remote, params)
		}),
	}
}

func convertSchema(schema map[string]any) *tools.Parameter {
	param := &tools.Parameter{Type: "object"}

	if props, ok := schema["properties"].(map[string]any); ok {
		param.Properties = props
	}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				param.Required = append(param.Required, s)
			}
		}
	}
	return param
}

// CallTool invokes a remote tool by its unprefixed name and joins its text
// content.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	params := map[string]any{
		"name":      name,
		"arguments": args,
	}

	resp, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return "", err
	}

	var result CallToolResult
	if err = json.Unmarshal(resp, &result); err != nil {
		return "", err
	}

	var output strings.Builder
	for _, content := range result.Content {
		if content.Type == "text" {
			output.WriteString(content.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("MCP tool %s: %s", name, output.String())
	}
	return output.String(), nil
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	c.msgID++
	id := c.msgID
	respChan := make(chan *Response, 1)
	c.pending[id] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
	if err := c.write(req); err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-c.done:
		return nil, fmt.Errorf("MCP server %s closed the connection", c.name)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) notify(method string, params any) error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}
	return c.write(req)
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return json.NewEncoder(c.stdin).Encode(v)
}

func (c *Client) readLoop() {
	defer close(c.done)

	scanner := bufio.NewScanner(c.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			log.Warn().Str("mcp", c.name).Err(err).Msg("⚠️ Invalid MCP response")
			continue
		}

		c.mu.Lock()
		if ch, ok := c.pending[resp.ID]; ok {
			ch <- &resp
		}
		c.mu.Unlock()
	}
}

func logStderr(name string, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		log.Debug().Str("mcp", name).Msg("🔧 " + scanner.Text())
	}
}

func (c *Client) Close() error {
	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	return nil
}

func (c *Client) Name() string {
	return c.name
}

// Tools returns the discovered tools, named <server>/<tool>.
func (c *Client) Tools() []tools.Tool {
	out := make([]tools.Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

func envMapToSlice(m map[string]string) []string {
	result := make([]string, 0, len(m))
	for k, v := range m {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}
