package dto

import "github.com/fadilmartias/pte-practice/internal/capture"

type CreateSessionRequest struct {
	Capabilities struct {
		SpeechRecognition bool `json:"speechRecognition"`
		Microphone        bool `json:"microphone"`
		SpeechSynthesis   bool `json:"speechSynthesis"`
	} `json:"capabilities"`
}

type SelectTaskRequest struct {
	TaskType string `json:"taskType" validate:"required"`
}

type SpeechEventRequest struct {
	Epoch    uint64            `json:"epoch" validate:"required"`
	Cycle    uint64            `json:"cycle" validate:"required"`
	Kind     string            `json:"kind" validate:"required,oneof=started result end error"`
	Segments []capture.Segment `json:"segments" validate:"dive"`
	Error    string            `json:"error"`
}

type AudioEventRequest struct {
	Epoch uint64 `json:"epoch" validate:"required"`
	Cycle uint64 `json:"cycle" validate:"required"`
	Kind  string `json:"kind" validate:"required,oneof=started end error"`
	Error string `json:"error"`
}

type UpdateTextRequest struct {
	Text string `json:"text"`
}

type ReorderRequest struct {
	Order []int `json:"order" validate:"required,min=1"`
}

type ChoiceRequest struct {
	Index *int `json:"index" validate:"required"`
}
