package cost

// Usage accumulates the resource consumption of one work order or one chain.
type Usage struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	LLMCalls     int   `json:"llm_calls"`
	ToolCalls    int   `json:"tool_calls"`
	ElapsedMS    int64 `json:"elapsed_ms"`
}

// AddCall records one gateway round trip.
func (u *Usage) AddCall(inputTokens, outputTokens int) {
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
	u.TotalTokens += inputTokens + outputTokens
	u.LLMCalls++
}

// AddToolCalls records completed tool invocations.
func (u *Usage) AddToolCalls(n int) {
	if n <= 0 {
		return
	}
	u.ToolCalls += n
}

// Fold merges another accumulator into this one.
func (u *Usage) Fold(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.LLMCalls += other.LLMCalls
	u.ToolCalls += other.ToolCalls
	u.ElapsedMS += other.ElapsedMS
}

// IsZero reports whether nothing has been recorded.
func (u Usage) IsZero() bool {
	return u == Usage{}
}
