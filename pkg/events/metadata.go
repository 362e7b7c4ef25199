package events

// Usage mirrors the token accounting reported at the end of a stream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" yaml:"completion_tokens"`
}

// Cost is the billed amount of one exchange, in both currencies the backend
// reports.
type Cost struct {
	USD float64 `json:"usd" yaml:"usd"`
	IDR float64 `json:"idr" yaml:"idr"`
}
