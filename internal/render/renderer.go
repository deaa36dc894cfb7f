// Package render turns task payloads into views and declares how each task
// type is captured and answered.
package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/util"
)

var (
	ErrPayloadMismatch = errors.New("payload does not match task type")
	ErrNoAnswer        = errors.New("no answer given")
	ErrTooShort        = errors.New("response is too short")
)

type PolicyKind string

const (
	PolicyNone          PolicyKind = "none"
	PolicyImmediate     PolicyKind = "immediate"
	PolicyDelayed       PolicyKind = "delayed"
	PolicyAfterPlayback PolicyKind = "after-playback"
	PolicyTextInput     PolicyKind = "text-input"
	PolicyLocalOrder    PolicyKind = "local-order"
	PolicyLocalChoice   PolicyKind = "local-choice"
)

// Policy declares the capture and timer behaviour of a mounted task.
type Policy struct {
	Kind PolicyKind

	// PrepSeconds is the preparation window before a delayed capture starts.
	PrepSeconds int
	// AnswerSeconds bounds a spoken answer; zero means unbounded.
	AnswerSeconds int

	MinChars int
	MinWords int
	// Seconds is the writing window; the text is submitted when it runs out.
	Seconds int
}

func (p Policy) Spoken() bool {
	switch p.Kind {
	case PolicyImmediate, PolicyDelayed, PolicyAfterPlayback:
		return true
	}
	return false
}

// CheckText enforces the minimum length of a written response.
func (p Policy) CheckText(text string) error {
	trimmed := strings.TrimSpace(text)
	if p.MinChars > 0 && len(trimmed) < p.MinChars {
		return fmt.Errorf("%w: write at least %d characters", ErrTooShort, p.MinChars)
	}
	if p.MinWords > 0 && util.WordCount(trimmed) < p.MinWords {
		return fmt.Errorf("%w: write at least %d words", ErrTooShort, p.MinWords)
	}
	return nil
}

type ImageView struct {
	URL          string `json:"url"`
	Alt          string `json:"alt"`
	Photographer string `json:"photographer,omitempty"`
	Credit       string `json:"credit,omitempty"`
}

type WordRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// View is the prompt presentation sent to the client.
type View struct {
	TaskType     model.TaskType `json:"taskType"`
	Title        string         `json:"title"`
	Instructions string         `json:"instructions"`
	Text         string         `json:"text,omitempty"`
	Image        *ImageView     `json:"image,omitempty"`
	Speak        string         `json:"speak,omitempty"`
	Question     string         `json:"question,omitempty"`
	Sentences    []string       `json:"sentences,omitempty"`
	Options      []string       `json:"options,omitempty"`
	WordRange    *WordRange     `json:"wordRange,omitempty"`
}

// Input is what the user produced for the mounted task.
type Input struct {
	Transcript string
	Audio      []byte
	Text       string
	Choice     *int
	Order      []int
}

type Renderer interface {
	Type() model.TaskType
	Mount(p *model.TaskPayload) (View, Policy, error)
	Respond(p *model.TaskPayload, in Input) (*model.Response, error)
}

// Timings are the configurable phase lengths, in seconds.
type Timings struct {
	DescribeImagePrep   int
	DescribeImageAnswer int
	RepeatAnswer        int
	ShortAnswer         int
	Essay               int
	Summary             int
}

func DefaultTimings() Timings {
	return Timings{
		DescribeImagePrep:   25,
		DescribeImageAnswer: 40,
		RepeatAnswer:        15,
		ShortAnswer:         10,
		Essay:               20 * 60,
		Summary:             10 * 60,
	}
}

// Registry maps every task type to its renderer.
type Registry struct {
	renderers map[model.TaskType]Renderer
}

func NewRegistry(t Timings) *Registry {
	r := &Registry{renderers: make(map[model.TaskType]Renderer)}
	for _, v := range []Renderer{
		readAloud{},
		describeImage{prep: t.DescribeImagePrep, answer: t.DescribeImageAnswer},
		repeatSentence{answer: t.RepeatAnswer},
		shortQuestion{answer: t.ShortAnswer},
		reorderParagraph{},
		essay{seconds: t.Essay},
		summary{seconds: t.Summary},
		multipleChoice{},
	} {
		r.renderers[v.Type()] = v
	}
	return r
}

func (r *Registry) For(t model.TaskType) (Renderer, error) {
	v, ok := r.renderers[t]
	if !ok {
		return nil, fmt.Errorf("no renderer for task type %q", t)
	}
	return v, nil
}

func mismatch(t model.TaskType) error {
	return fmt.Errorf("%w: %s", ErrPayloadMismatch, t)
}

func spokenResponse(t model.TaskType, ref string, correct *string, in Input) (*model.Response, error) {
	if in.Transcript == "" && len(in.Audio) == 0 {
		return nil, ErrNoAnswer
	}
	return &model.Response{
		TaskType:      t,
		ReferenceText: ref,
		CorrectAnswer: correct,
		Transcript:    in.Transcript,
		Audio:         in.Audio,
	}, nil
}
