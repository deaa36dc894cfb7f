package model

type Criterion struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"maxScore"`
	Feedback string  `json:"feedback"`
}

// FormInfo is the form metadata returned for written responses.
type FormInfo struct {
	WordCount int    `json:"wordCount"`
	Valid     *bool  `json:"valid,omitempty"`
	Feedback  string `json:"feedback"`
}

type Feedback struct {
	TaskType     TaskType    `json:"taskType"`
	OverallScore float64     `json:"overallScore"`
	MaxScore     float64     `json:"maxScore"`
	Summary      string      `json:"summary,omitempty"`
	Transcript   string      `json:"transcript,omitempty"`
	Criteria     []Criterion `json:"criteria"`
	Form         *FormInfo   `json:"form,omitempty"`
}
