package dto

// SpokenEvaluationRequest is the body of POST /evaluate/spoken-response.
type SpokenEvaluationRequest struct {
	Transcript    string  `json:"transcript"`
	OriginalText  string  `json:"originalText"`
	TaskType      string  `json:"taskType"`
	CorrectAnswer *string `json:"correctAnswer,omitempty"`
}

type EssayEvaluationRequest struct {
	Prompt    string `json:"prompt"`
	EssayText string `json:"essayText"`
}

type SummaryEvaluationRequest struct {
	OriginalText string `json:"originalText"`
	SummaryText  string `json:"summaryText"`
}
