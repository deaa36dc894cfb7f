package evaluation

import "github.com/fadilmartias/pte-practice/internal/model"

type criterionSpec struct {
	key   string
	label string
	max   float64
	// form criteria may omit the score; word count is required instead.
	form bool
}

type schema struct {
	overallKey string
	overallMax float64
	criteria   []criterionSpec
}

var spokenSchema = schema{
	overallKey: "overall_score_out_of_90",
	overallMax: 90,
	criteria: []criterionSpec{
		{key: "oral_fluency", label: "Oral Fluency", max: 5},
		{key: "pronunciation", label: "Pronunciation", max: 5},
		{key: "content", label: "Content", max: 5},
	},
}

var essaySchema = schema{
	overallKey: "overall_score_out_of_90",
	overallMax: 90,
	criteria: []criterionSpec{
		{key: "content", label: "Content", max: 5},
		{key: "form", label: "Form (Word Count)", max: 2, form: true},
		{key: "grammar", label: "Grammar", max: 5},
		{key: "vocabulary", label: "Vocabulary", max: 5},
		{key: "structure", label: "Structure & Coherence", max: 5},
	},
}

var summarySchema = schema{
	overallKey: "overall_score_out_of_7",
	overallMax: 7,
	criteria: []criterionSpec{
		{key: "content", label: "Content", max: 2},
		{key: "form", label: "Form", max: 1, form: true},
		{key: "grammar", label: "Grammar", max: 2},
		{key: "vocabulary", label: "Vocabulary", max: 2},
	},
}

func schemaFor(t model.TaskType) schema {
	switch t {
	case model.TaskEssay:
		return essaySchema
	case model.TaskSummarizeWrittenText:
		return summarySchema
	}
	return spokenSchema
}
