package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/b1506704/Live2D-AI-Agent/app/models"
	"github.com/b1506704/Live2D-AI-Agent/app/tools"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(_ context.Context, req models.GenerateRequest) (*models.Generation, error) {
	args := m.Called(req)
	gen, _ := args.Get(0).(*models.Generation)
	return gen, args.Error(1)
}

// reply runs raw model text through the directive parser, as LLMClient does.
func reply(text string) *models.Generation {
	response, calls := models.ParseDirectives(text)
	return &models.Generation{Response: response, ToolCalls: calls}
}

func intPtr(i int) *int { return &i }

func newTestExecutor(gen models.Generator) *Executor {
	e := NewExecutor(gen, Options{Name: "Hiyori", Personality: "a cheerful assistant", MaxIterations: 3})
	e.RegisterTool("echo", "Echo a message", tools.HandlerFunc(func(_ context.Context, p map[string]any) (any, error) {
		return p["msg"], nil
	}))
	return e
}

func TestZeroOrNegativeIterationsNeverCallGenerator(t *testing.T) {
	for _, max := range []int{0, -1, -10} {
		gen := &mockGenerator{}
		e := newTestExecutor(gen)

		res := e.ExecuteTask(context.Background(), TaskRequest{Task: "say hi", MaxIterations: intPtr(max)})

		assert.False(t, res.Completed)
		assert.Equal(t, StateExhausted, res.State)
		assert.Equal(t, 0, res.Iterations)
		assert.Equal(t, "say hi", res.Response)
		gen.AssertNotCalled(t, "Generate", mock.Anything)
		assert.Len(t, e.History(), 1)
	}
}

func TestReplyWithoutToolsCompletesInOneRound(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply("Hello! Nice to meet you."), nil).Once()
	e := newTestExecutor(gen)

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "greet me"})

	assert.True(t, res.Completed)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "Hello! Nice to meet you.", res.Response)
	assert.Empty(t, res.ToolResults)
	gen.AssertExpectations(t)
}

func TestCompletionKeywordEndsLoopEvenWithToolCalls(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).
		Return(reply(`TASK COMPLETED, echoing once more {"tool": "echo", "parameters": {"msg": "bye"}}`), nil).Once()
	e := newTestExecutor(gen)

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "wrap up"})

	assert.True(t, res.Completed)
	assert.Equal(t, 1, res.Iterations)
	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, "bye", res.ToolResults[0].Result)
	assert.Equal(t, "Tool 'echo' result: bye", res.Response)
	gen.AssertExpectations(t)
}

func TestEchoRoundTrip(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply(`Let me echo. {"tool": "echo", "parameters": {"msg": "hi"}}`), nil).Once()
	gen.On("Generate", mock.MatchedBy(func(req models.GenerateRequest) bool {
		return strings.Contains(req.Conversation, "Tool Result: Tool 'echo' result: hi")
	})).Return(reply("It said hi."), nil).Once()
	e := newTestExecutor(gen)

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "echo hi"})

	assert.True(t, res.Completed)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, ToolResult{Tool: "echo", Parameters: map[string]any{"msg": "hi"}, Result: "hi"}, res.ToolResults[0])

	var toolMsgs []Message
	for _, m := range res.Conversation {
		if m.Role == RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 1)
	assert.Contains(t, toolMsgs[0].Content, "hi")
	assert.Equal(t, Message{Role: RoleAssistant, Content: "Let me echo."}, res.Conversation[1])
	gen.AssertExpectations(t)
}

func TestHistorySnapshotsAreStable(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply("ok"), nil)
	e := newTestExecutor(gen)
	e.ExecuteTask(context.Background(), TaskRequest{Task: "one"})
	e.ExecuteTask(context.Background(), TaskRequest{Task: "two"})

	first := e.History()
	second := e.History()

	assert.Equal(t, first, second)
	require.Len(t, first, 2)

	first[0].Conversation[0].Content = "tampered"
	assert.Equal(t, "one", e.History()[0].Conversation[0].Content)

	e.ClearHistory()
	assert.Empty(t, e.History())
	assert.Len(t, second, 2)
}

func TestUnknownToolDoesNotAbort(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply(`{"tool": "frobnicate", "parameters": {"x": 1}}`), nil).Once()
	gen.On("Generate", mock.Anything).Return(reply("I could not find that tool, sorry."), nil).Once()
	e := newTestExecutor(gen)

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "frobnicate it"})

	assert.Equal(t, 2, res.Iterations)
	assert.True(t, res.Completed)
	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, "frobnicate", res.ToolResults[0].Tool)
	assert.Equal(t, "Error: Unknown tool 'frobnicate'", res.ToolResults[0].Result)
	gen.AssertExpectations(t)
}

func TestMalformedDirectiveIsKeptVerbatim(t *testing.T) {
	raw := `Trying {"tool": "echo", "parameters": {incomplete`
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply(raw), nil).Once()
	e := newTestExecutor(gen)

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "echo"})

	assert.Empty(t, res.ToolResults)
	assert.True(t, res.Completed)
	assert.Equal(t, Message{Role: RoleAssistant, Content: raw}, res.Conversation[len(res.Conversation)-1])
}

func TestCalculatorThroughLoop(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply(`{"tool": "calculator", "parameters": {"expression": "2 + 2 * 3"}}`), nil).Once()
	gen.On("Generate", mock.Anything).Return(reply(`{"tool": "calculator", "parameters": {"expression": "os.system('ls')"}}`), nil).Once()
	gen.On("Generate", mock.Anything).Return(reply("The answer is 8."), nil).Once()
	e := newTestExecutor(gen)

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "compute"})

	require.Len(t, res.ToolResults, 2)
	assert.Equal(t, "Result: 8", res.ToolResults[0].Result)
	assert.Contains(t, res.ToolResults[1].Result, "Error calculating")
	assert.True(t, res.Completed)
	assert.Equal(t, 3, res.Iterations)
}

func TestGeneratorFailureAborts(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply(`{"tool": "echo", "parameters": {"msg": "a"}}`), nil).Once()
	gen.On("Generate", mock.Anything).Return(nil, errors.New("model unavailable")).Once()
	e := newTestExecutor(gen)

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "try"})

	assert.False(t, res.Completed)
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, "model unavailable", res.Response)
	assert.Equal(t, RoleError, res.Conversation[len(res.Conversation)-1].Role)
	require.Len(t, res.ToolResults, 1)

	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, StateAborted, history[0].State)
	assert.False(t, history[0].Completed)
	gen.AssertExpectations(t)
}

func TestResultDoesNotAliasHistory(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply(`{"tool": "echo", "parameters": {"msg": "a"}}`), nil).Once()
	gen.On("Generate", mock.Anything).Return(reply("Finished."), nil).Once()
	e := newTestExecutor(gen)

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "echo once"})
	require.Len(t, res.ToolResults, 1)
	res.ToolResults[0].Tool = "tampered"
	res.ToolResults[0].Result = "tampered"

	history := e.History()
	require.Len(t, history, 1)
	require.Len(t, history[0].Results, 1)
	assert.Equal(t, "echo", history[0].Results[0].Tool)
	assert.Equal(t, "a", history[0].Results[0].Result)
}

func TestNilGenerationAborts(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(nil, nil).Once()

	res := newTestExecutor(gen).ExecuteTask(context.Background(), TaskRequest{Task: "x"})

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 1, res.Iterations)
}

func TestExhaustedAfterMaxIterations(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply(`{"tool": "echo", "parameters": {"msg": "again"}}`), nil)
	e := newTestExecutor(gen)

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "loop", MaxIterations: intPtr(4)})

	assert.False(t, res.Completed)
	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 4, res.Iterations)
	assert.Len(t, res.ToolResults, 4)
	gen.AssertNumberOfCalls(t, "Generate", 4)
}

func TestRequestCarriesContextPersonaAndLanguage(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.MatchedBy(func(req models.GenerateRequest) bool {
		return req.Conversation == "System: Context: {\"mood\":\"happy\"}\n\nUser: wave" &&
			strings.HasPrefix(req.SystemPrompt, "You are Hiyori, a cheerful assistant.") &&
			req.Language == "en" &&
			len(req.Tools) == 8 && req.Tools[0].Name == "web_search" && req.Tools[7].Name == "echo"
	})).Return(reply("*waves*"), nil).Once()
	e := newTestExecutor(gen)

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "wave", Context: map[string]any{"mood": "happy"}})

	assert.True(t, res.Completed)
	assert.Equal(t, "en", e.History()[0].Language)
	gen.AssertExpectations(t)
}

func TestUnsupportedLanguageIsForwarded(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.MatchedBy(func(req models.GenerateRequest) bool {
		return req.Language == "xx-YY"
	})).Return(reply("ok"), nil).Once()

	res := newTestExecutor(gen).ExecuteTask(context.Background(), TaskRequest{Task: "hi", Language: "xx-YY"})

	assert.True(t, res.Completed)
	gen.AssertExpectations(t)
}

func TestCustomCompletionPolicy(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply(`done {"tool": "echo", "parameters": {"msg": "x"}}`), nil)
	e := NewExecutor(gen, Options{
		MaxIterations: 2,
		Completion:    func(reply string) bool { return strings.Contains(reply, "[[DONE]]") },
	})

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "t"})

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 2, res.Iterations)
}

type archiveStub struct {
	mu      sync.Mutex
	records []ExecutionRecord
	err     error
}

func (a *archiveStub) SaveExecution(_ context.Context, rec ExecutionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return a.err
}

func TestArchiveReceivesRecords(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply("ok"), nil)
	archive := &archiveStub{err: errors.New("disk full")}
	e := NewExecutor(gen, Options{Archive: archive})

	res := e.ExecuteTask(context.Background(), TaskRequest{Task: "persist me"})

	assert.True(t, res.Completed)
	require.Len(t, archive.records, 1)
	assert.Equal(t, "persist me", archive.records[0].Task)
	assert.NotEmpty(t, archive.records[0].ID)
	assert.Len(t, e.History(), 1)
}

func TestConcurrentExecutions(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(reply(`{"tool": "echo", "parameters": {"msg": "x"}} done`), nil)
	e := newTestExecutor(gen)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.ExecuteTask(context.Background(), TaskRequest{Task: "parallel"})
			assert.True(t, res.Completed)
			assert.Len(t, res.Conversation, 3)
		}()
	}
	wg.Wait()

	assert.Len(t, e.History(), 16)
}

func TestFormatConversation(t *testing.T) {
	conv := Conversation{
		{Role: RoleSystem, Content: "ctx"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleTool, Content: "Tool 'x' result: 1"},
		{Role: RoleError, Content: "boom"},
	}

	assert.Equal(t, "System: ctx\n\nUser: hi\n\nAssistant: hello\n\nTool Result: Tool 'x' result: 1", FormatConversation(conv))
	assert.Equal(t, "", FormatConversation(nil))
}

func TestKeywordCompletion(t *testing.T) {
	assert.True(t, KeywordCompletion("Task Completed"))
	assert.True(t, KeywordCompletion("I have FINISHED"))
	assert.True(t, KeywordCompletion("all done"))
	assert.True(t, KeywordCompletion("Mission accomplished"))
	assert.False(t, KeywordCompletion("still working on it"))
}

func TestKeywordsCompletion(t *testing.T) {
	policy := KeywordsCompletion("TASK COMPLETE", " ", "")
	assert.True(t, policy("ok, task complete."))
	assert.False(t, policy("all done"))
	assert.False(t, KeywordsCompletion()("anything"))
}

func TestDefaultPersona(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.MatchedBy(func(req models.GenerateRequest) bool {
		return strings.HasPrefix(req.SystemPrompt, "You are Assistant, a helpful AI assistant.")
	})).Return(reply("hi"), nil).Once()

	NewExecutor(gen, Options{}).ExecuteTask(context.Background(), TaskRequest{Task: "hello"})
	gen.AssertExpectations(t)
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "plain", formatResult("plain"))
	assert.Equal(t, `{"a":1}`, formatResult(map[string]int{"a": 1}))
	assert.Equal(t, "null", formatResult(nil))
	assert.Equal(t, "3", formatResult(3))
}

type chatGenerator struct {
	mockGenerator
	got models.ChatRequest
}

func (c *chatGenerator) Chat(_ context.Context, req models.ChatRequest) (string, error) {
	c.got = req
	return "Hello from Hiyori", nil
}

func TestChatUsesChatterWithPersonaAndLanguage(t *testing.T) {
	gen := &chatGenerator{}
	e := newTestExecutor(gen)

	reply, err := e.Chat(context.Background(), ChatRequest{Message: "hi", Language: "ja", Context: map[string]any{"mood": "happy"}})

	require.NoError(t, err)
	assert.Equal(t, ChatReply{Response: "Hello from Hiyori", Language: "ja"}, reply)
	assert.Equal(t, "hi", gen.got.Message)
	assert.Equal(t, "ja", gen.got.Language)
	assert.True(t, strings.HasPrefix(gen.got.SystemPrompt, "You are Hiyori, a cheerful assistant."))
	assert.True(t, strings.HasSuffix(gen.got.SystemPrompt, `Context: {"mood":"happy"}`))
	assert.Empty(t, e.History())
	gen.AssertNotCalled(t, "Generate", mock.Anything)
}

func TestChatCharacterPromptAndFallback(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.MatchedBy(func(req models.GenerateRequest) bool {
		return req.SystemPrompt == "You are a Live2D character named Mao. Be friendly and engaging." &&
			req.Conversation == "User: hey" && len(req.Tools) == 0 && req.Language == "en"
	})).Return(reply("  Hi there!  "), nil).Once()

	out, err := newTestExecutor(gen).Chat(context.Background(), ChatRequest{Message: "hey", Live2DModel: "Mao"})

	require.NoError(t, err)
	assert.Equal(t, "Hi there!", out.Response)
	assert.Equal(t, "Mao", out.Live2DModel)
	gen.AssertExpectations(t)
}

func TestChatGeneratorError(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(nil, errors.New("offline")).Once()

	_, err := newTestExecutor(gen).Chat(context.Background(), ChatRequest{Message: "hey"})
	assert.EqualError(t, err, "offline")
}
