package observability

const (
	AttrServiceName     = "service.name"
	AttrServiceVersion  = "service.version"
	AttrAgentName       = "agent.name"
	AttrAgentLLM        = "agent.llm"
	AttrToolName        = "tool.name"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrErrorType       = "error.type"
	AttrStatusCode      = "http.status_code"

	SpanAgentCall     = "agent.call"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanMemoryLookup  = "agent.memory_lookup"

	DefaultServiceName = "hector"

	// DefaultSamplingRate, DefaultOTLPEndpoint and DefaultMetricsPath back
	// TracingConfig.SetDefaults/MetricsConfig.SetDefaults in config.go.
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"

	// GenAI semantic-convention attributes used by Tracer's Start*/Add*
	// helpers in tracer.go.
	AttrGenAISystem               = "gen_ai.system"
	AttrGenAIOperationName        = "gen_ai.operation.name"
	AttrGenAIRequestModel         = "gen_ai.request.model"
	AttrGenAIRequestTemperature   = "gen_ai.request.temperature"
	AttrGenAIRequestTopP          = "gen_ai.request.top_p"
	AttrGenAIRequestMaxTokens     = "gen_ai.request.max_tokens"
	AttrGenAIResponseFinishReason = "gen_ai.response.finish_reason"
	AttrGenAIUsageInputTokens     = "gen_ai.usage.input_tokens"
	AttrGenAIUsageOutputTokens    = "gen_ai.usage.output_tokens"
	AttrGenAIToolName             = "gen_ai.tool.name"
	AttrGenAIToolDescription      = "gen_ai.tool.description"
	AttrGenAIToolCallID           = "gen_ai.tool.call.id"

	OpChat     = "chat"
	OpToolCall = "execute_tool"

	// Hector/GCS-specific span and attribute names used by Tracer's
	// Start*/Add* helpers in tracer.go.
	SpanAgentRun     = "gcs.agent.run"
	SpanLLMCall      = "gcs.llm.call"
	SpanMemorySearch = "gcs.memory.search"

	AttrHectorAgentName    = "gcs.agent.name"
	AttrHectorAgentType    = "gcs.agent.type"
	AttrHectorSessionID    = "gcs.session_id"
	AttrHectorUserID       = "gcs.user_id"
	AttrHectorInvocationID = "gcs.invocation_id"
	AttrHectorLLMRequest   = "gcs.llm.request"
	AttrHectorLLMResponse  = "gcs.llm.response"
	AttrHectorToolArgs     = "gcs.tool.args"
	AttrHectorToolResponse = "gcs.tool.response"

	AttrErrorMessage = "error.message"
)
