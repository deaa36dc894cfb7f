package model

// TaskPayload is the content generated for one task. Only the fields of the
// payload's Type are populated; the loader validates them per type.
type TaskPayload struct {
	Type TaskType `json:"taskType"`

	ReadAloud     *ReadAloudPayload     `json:"readAloud,omitempty"`
	DescribeImage *DescribeImagePayload `json:"describeImage,omitempty"`
	Repeat        *RepeatPayload        `json:"repeatSentence,omitempty"`
	ShortQuestion *ShortQuestionPayload `json:"shortQuestion,omitempty"`
	Reorder       *ReorderPayload       `json:"reorder,omitempty"`
	Essay         *EssayPayload         `json:"essay,omitempty"`
	Summary       *SummaryPayload       `json:"summary,omitempty"`
	Choice        *ChoicePayload        `json:"choice,omitempty"`
}

type ReadAloudPayload struct {
	Text string `json:"text" validate:"required"`
}

type DescribeImagePayload struct {
	ImageURL     string `json:"imageUrl" validate:"required,url"`
	Alt          string `json:"alt" validate:"required"`
	Photographer string `json:"photographer"`
}

type RepeatPayload struct {
	Text string `json:"text" validate:"required"`
}

type ShortQuestionPayload struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
}

// ReorderPayload carries the shuffled sentences and the solution as indexes
// into Sentences, in the original paragraph order.
type ReorderPayload struct {
	Sentences []string `json:"sentences" validate:"required,min=2,dive,required"`
	Solution  []int    `json:"solution" validate:"required,permutation_of=Sentences"`
}

type EssayPayload struct {
	Prompt string `json:"prompt" validate:"required"`
}

type SummaryPayload struct {
	Text string `json:"text" validate:"required"`
}

type ChoicePayload struct {
	Passage      string   `json:"passage" validate:"required"`
	Question     string   `json:"question" validate:"required"`
	Options      []string `json:"options" validate:"required,min=2,dive,required"`
	CorrectIndex *int     `json:"correctIndex" validate:"required,option_index=Options"`
}

// PromptText is the text a payload asks the user to work from; it is what
// practice history stores and compares against.
func (p *TaskPayload) PromptText() string {
	switch {
	case p.ReadAloud != nil:
		return p.ReadAloud.Text
	case p.DescribeImage != nil:
		return p.DescribeImage.Alt
	case p.Repeat != nil:
		return p.Repeat.Text
	case p.ShortQuestion != nil:
		return p.ShortQuestion.Question
	case p.Reorder != nil && len(p.Reorder.Solution) == len(p.Reorder.Sentences):
		out := ""
		for i, idx := range p.Reorder.Solution {
			if i > 0 {
				out += " "
			}
			out += p.Reorder.Sentences[idx]
		}
		return out
	case p.Essay != nil:
		return p.Essay.Prompt
	case p.Summary != nil:
		return p.Summary.Text
	case p.Choice != nil:
		return p.Choice.Passage
	}
	return ""
}
