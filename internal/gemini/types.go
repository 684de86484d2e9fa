package gemini

// Wire types for the Generative Language API generateContent call. Only the
// fields this client reads or writes are modeled.

// GenerateRequest is the request body for models/{model}:generateContent.
type GenerateRequest struct {
	Contents []Content `json:"contents"`
}

// Content is a single conversation turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one piece of a turn; this client only sends and reads text parts.
type Part struct {
	Text string `json:"text"`
}

// GenerateResponse is the response body for generateContent.
type GenerateResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

// Candidate is one generated completion.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// PromptFeedback reports why a prompt produced no candidates.
type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}
