package model

import "fmt"

type TaskType string

const (
	TaskReadAloud            TaskType = "read-aloud"
	TaskDescribeImage        TaskType = "describe-image"
	TaskRepeatSentence       TaskType = "repeat-sentence"
	TaskAnswerShortQuestion  TaskType = "answer-short-question"
	TaskReorderParagraph     TaskType = "reorder-paragraph"
	TaskEssay                TaskType = "essay"
	TaskSummarizeWrittenText TaskType = "summarize-written-text"
	TaskMultipleChoiceSingle TaskType = "multiple-choice-single"
)

// TaskTypes lists every task type in menu order.
var TaskTypes = []TaskType{
	TaskReadAloud,
	TaskDescribeImage,
	TaskRepeatSentence,
	TaskAnswerShortQuestion,
	TaskReorderParagraph,
	TaskEssay,
	TaskSummarizeWrittenText,
	TaskMultipleChoiceSingle,
}

var taskTitles = map[TaskType]string{
	TaskReadAloud:            "Read Aloud",
	TaskDescribeImage:        "Describe Image",
	TaskRepeatSentence:       "Repeat Sentence",
	TaskAnswerShortQuestion:  "Answer Short Question",
	TaskReorderParagraph:     "Re-order Paragraphs",
	TaskEssay:                "Essay Writing",
	TaskSummarizeWrittenText: "Summarize Written Text",
	TaskMultipleChoiceSingle: "Multiple Choice, Single Answer",
}

func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(s)
	if _, ok := taskTitles[t]; !ok {
		return "", fmt.Errorf("unknown task type %q", s)
	}
	return t, nil
}

func (t TaskType) Title() string {
	if title, ok := taskTitles[t]; ok {
		return title
	}
	return string(t)
}

// Spoken reports whether the task is answered by voice.
func (t TaskType) Spoken() bool {
	switch t {
	case TaskReadAloud, TaskDescribeImage, TaskRepeatSentence, TaskAnswerShortQuestion:
		return true
	}
	return false
}
