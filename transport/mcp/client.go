package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/studyduel/studyduel/quiz/engine"
	"github.com/studyduel/studyduel/quiz/service"
)

// Client is a thin MCP client that proxies to the REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API.
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools.
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"StudyDuel Quiz Sessions",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`StudyDuel - MCP Interface

This is a thin client that proxies all requests to the REST API server.

WORKFLOW:
An examiner creates a session and shares the 8-character session code with a
learner. The learner joins with that code. The examiner feeds study-material
text into generate_questions and then drives the progression: reveal the
current question, grade the learner's answer (ok/meh/fail), advance with
next_question or jump anywhere with jump_to_question.

AVAILABLE TOOLS:
- create_session: Create a session, returns session code + examiner token
- join_session: Claim a free role in an existing session
- session_snapshot: Full examiner view (questions, grades, progress)
- learner_view: What the learner currently sees
- generate_questions: Turn study-material text into the question list
- reveal_question: Make the current question visible to the learner
- grade_question: Record ok/meh/fail for the current question
- next_question: Advance to the next question (locks it again)
- jump_to_question: Move directly to any question index

NOTE: Keep the examiner token from create_session; every progression tool
requires it as the 'token' argument.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools.
func (c *Client) registerTools() {
	// Session lifecycle
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new quiz session. Returns the session code to share with the learner and the examiner token for further calls.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "join_session",
		Description: "Join an existing session in a free role. Returns a token for that role.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "8-character session code",
				},
				"role": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"examiner", "learner"},
					"description": "Role to claim",
				},
			},
			Required: []string{"session_id", "role"},
		},
	}, c.handleJoinSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "session_snapshot",
		Description: "Get the full examiner view of a session: questions, current index, revealed flag, grades and uploaded documents.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session code",
				},
				"token": map[string]interface{}{
					"type":        "string",
					"description": "Examiner token",
				},
			},
			Required: []string{"session_id", "token"},
		},
	}, c.handleSessionSnapshot)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "learner_view",
		Description: "Get the learner projection of the current question (status, index, question text only when revealed).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session code",
				},
				"token": map[string]interface{}{
					"type":        "string",
					"description": "Learner token",
				},
			},
			Required: []string{"session_id", "token"},
		},
	}, c.handleLearnerView)

	// Question management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "generate_questions",
		Description: "Generate the session's question list from study-material text. Replaces any existing questions and resets progression.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session code",
				},
				"token": map[string]interface{}{
					"type":        "string",
					"description": "Examiner token",
				},
				"pdf_texts": map[string]interface{}{
					"type":        "object",
					"description": "Mapping of filename to extracted text content",
					"additionalProperties": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"session_id", "token", "pdf_texts"},
		},
	}, c.handleGenerateQuestions)

	// Progression
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reveal_question",
		Description: "Reveal the current question to the learner.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session code",
				},
				"token": map[string]interface{}{
					"type":        "string",
					"description": "Examiner token",
				},
			},
			Required: []string{"session_id", "token"},
		},
	}, c.handleRevealQuestion)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "grade_question",
		Description: "Record the examiner's judgment of the learner's answer to the current question.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session code",
				},
				"token": map[string]interface{}{
					"type":        "string",
					"description": "Examiner token",
				},
				"index": map[string]interface{}{
					"type":        "integer",
					"description": "Index of the question being graded (must be the current question)",
				},
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"ok", "meh", "fail"},
					"description": "Grade for the answer",
				},
			},
			Required: []string{"session_id", "token", "index", "status"},
		},
	}, c.handleGradeQuestion)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "next_question",
		Description: "Advance to the next question. The new question starts locked.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session code",
				},
				"token": map[string]interface{}{
					"type":        "string",
					"description": "Examiner token",
				},
			},
			Required: []string{"session_id", "token"},
		},
	}, c.handleNextQuestion)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "jump_to_question",
		Description: "Jump directly to a question by index. The target question starts locked, existing grades are kept.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session code",
				},
				"token": map[string]interface{}{
					"type":        "string",
					"description": "Examiner token",
				},
				"index": map[string]interface{}{
					"type":        "integer",
					"description": "0-based question index",
				},
			},
			Required: []string{"session_id", "token", "index"},
		},
	}, c.handleJumpToQuestion)
}

// GetMCPServer returns the underlying MCP server for serving.
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiCall performs one REST request, forwarding the role token as X-Token.
func (c *Client) apiCall(method, path, token string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Token", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var created service.CreateResult
	if err := c.apiCall("POST", "/session", "", nil, &created); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nExaminer token: %s\n\nShare the session code with the learner; keep the token for all examiner tools.",
		created.SessionID, created.ExaminerToken)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleJoinSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	role, _ := args["role"].(string)

	var joined struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	err := c.apiCall("POST", fmt.Sprintf("/session/%s/join", sessionID), "", map[string]string{"role": role}, &joined)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Joined session %s as %s\nToken: %s", sessionID, joined.Role, joined.Token)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleSessionSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	token, _ := args["token"].(string)

	var snap engine.Snapshot
	err := c.apiCall("GET", fmt.Sprintf("/session/%s/questions", sessionID), token, nil, &snap)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(&snap)), nil
}

func (c *Client) handleLearnerView(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	token, _ := args["token"].(string)

	var view engine.LearnerView
	err := c.apiCall("GET", fmt.Sprintf("/session/%s/current", sessionID), token, nil, &view)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatLearnerView(&view)), nil
}

func (c *Client) handleGenerateQuestions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	token, _ := args["token"].(string)
	textsRaw, _ := args["pdf_texts"].(map[string]interface{})

	texts := make(map[string]string, len(textsRaw))
	for name, v := range textsRaw {
		if text, ok := v.(string); ok {
			texts[name] = text
		}
	}

	var snap engine.Snapshot
	err := c.apiCall("POST", fmt.Sprintf("/session/%s/generate", sessionID), token,
		map[string]interface{}{"pdf_texts": texts}, &snap)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Generated %d questions\n\n%s", len(snap.Questions), formatSnapshot(&snap))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleRevealQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	token, _ := args["token"].(string)

	var snap engine.Snapshot
	err := c.apiCall("POST", fmt.Sprintf("/session/%s/reveal", sessionID), token, nil, &snap)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(&snap)), nil
}

func (c *Client) handleGradeQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	token, _ := args["token"].(string)
	index, _ := args["index"].(float64)
	status, _ := args["status"].(string)

	var snap engine.Snapshot
	err := c.apiCall("POST", fmt.Sprintf("/session/%s/grade", sessionID), token,
		map[string]interface{}{"index": int(index), "status": status}, &snap)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Graded question %d: %s\n\n%s", int(index), status, formatSnapshot(&snap))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleNextQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	token, _ := args["token"].(string)

	var snap engine.Snapshot
	err := c.apiCall("POST", fmt.Sprintf("/session/%s/next", sessionID), token, nil, &snap)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(&snap)), nil
}

func (c *Client) handleJumpToQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	token, _ := args["token"].(string)
	index, _ := args["index"].(float64)

	var snap engine.Snapshot
	err := c.apiCall("POST", fmt.Sprintf("/session/%s/jump/%d", sessionID, int(index)), token, nil, &snap)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(&snap)), nil
}

// Formatting helpers

func formatSnapshot(snap *engine.Snapshot) string {
	if snap == nil {
		return "No session state available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s | Question %d/%d | Revealed: %v\n",
		snap.SessionID, snap.CurrentIndex+1, len(snap.Questions), snap.Revealed)

	if len(snap.PDFs) > 0 {
		b.WriteString("\nDocuments:\n")
		for _, pdf := range snap.PDFs {
			fmt.Fprintf(&b, "- %s (%d bytes)\n", pdf.Filename, pdf.Size)
		}
	}

	if len(snap.Questions) == 0 {
		b.WriteString("\n(no questions yet - run generate_questions)\n")
		return b.String()
	}

	b.WriteString("\nQuestions:\n")
	for i, q := range snap.Questions {
		marker := " "
		if i == snap.CurrentIndex {
			marker = ">"
		}
		grade := ""
		if g, ok := snap.Grades[i]; ok {
			grade = fmt.Sprintf(" [%s]", g)
		}
		fmt.Fprintf(&b, "%s %d. %s%s\n", marker, i, q, grade)
	}

	return b.String()
}

func formatLearnerView(view *engine.LearnerView) string {
	if view == nil {
		return "No view available"
	}

	switch view.Status {
	case engine.StatusRevealed:
		return fmt.Sprintf("Question %d/%d:\n%s", view.Index+1, view.Total, view.Question)
	case engine.StatusCompleted:
		return fmt.Sprintf("Session complete - all %d questions graded.", view.Total)
	default:
		return fmt.Sprintf("Question %d/%d is not revealed yet. Waiting for the examiner.", view.Index+1, view.Total)
	}
}
