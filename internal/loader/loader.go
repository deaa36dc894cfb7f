// Package loader fetches task payloads from a chain of sources and turns
// them into validated model.TaskPayload values.
package loader

import (
	"context"
	"encoding/json"
	"log"

	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/util"
	"github.com/go-playground/validator/v10"
)

// Source produces the raw JSON payload for a task type.
type Source interface {
	Name() string
	Supports(t model.TaskType) bool
	Fetch(ctx context.Context, t model.TaskType) ([]byte, error)
}

type LoaderInterface interface {
	Load(ctx context.Context, t model.TaskType) (*model.TaskPayload, error)
}

type Loader struct {
	sources  []Source
	validate *validator.Validate
}

func New(sources ...Source) *Loader {
	return &Loader{sources: sources, validate: newValidator()}
}

// Load fetches from the first source supporting t. Only the chosen source is
// tried; a failure there is reported, not masked by the next source.
func (l *Loader) Load(ctx context.Context, t model.TaskType) (*model.TaskPayload, error) {
	for _, src := range l.sources {
		if !src.Supports(t) {
			continue
		}
		raw, err := src.Fetch(ctx, t)
		if err != nil {
			log.Printf("Task source %s failed for %s: %v", src.Name(), t, err)
			return nil, err
		}
		return l.Decode(t, raw)
	}
	return nil, &LoadError{Task: t, Reason: "task not available", Err: ErrNoSource}
}

// Decode normalises and validates a payload body. The canonical body is a
// JSON object; a body that is a JSON string holding an object is unwrapped
// exactly once.
func (l *Loader) Decode(t model.TaskType, raw []byte) (*model.TaskPayload, error) {
	obj, err := util.ParseObject(raw)
	if err != nil {
		return nil, &LoadError{Task: t, Reason: "malformed task payload", Malformed: true, Err: err}
	}
	if msg := obj.Get("error"); msg.Exists() && msg.String() != "" {
		return nil, &LoadError{Task: t, Reason: msg.String()}
	}

	p := &model.TaskPayload{Type: t}
	switch t {
	case model.TaskReadAloud:
		p.ReadAloud, err = decode[model.ReadAloudPayload](l.validate, obj.Raw)
	case model.TaskDescribeImage:
		p.DescribeImage, err = decode[model.DescribeImagePayload](l.validate, obj.Raw)
	case model.TaskRepeatSentence:
		p.Repeat, err = decode[model.RepeatPayload](l.validate, obj.Raw)
	case model.TaskAnswerShortQuestion:
		p.ShortQuestion, err = decode[model.ShortQuestionPayload](l.validate, obj.Raw)
	case model.TaskReorderParagraph:
		p.Reorder, err = decode[model.ReorderPayload](l.validate, obj.Raw)
	case model.TaskEssay:
		p.Essay, err = decode[model.EssayPayload](l.validate, obj.Raw)
	case model.TaskSummarizeWrittenText:
		p.Summary, err = decode[model.SummaryPayload](l.validate, obj.Raw)
	case model.TaskMultipleChoiceSingle:
		p.Choice, err = decode[model.ChoicePayload](l.validate, obj.Raw)
	default:
		return nil, &LoadError{Task: t, Reason: "unknown task type"}
	}
	if err != nil {
		return nil, &LoadError{Task: t, Reason: describeValidation(err), Malformed: true, Err: err}
	}
	return p, nil
}

func decode[T any](v *validator.Validate, raw string) (*T, error) {
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if err := v.Struct(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
