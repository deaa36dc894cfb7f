package render

import (
	"fmt"
	"strings"

	"github.com/fadilmartias/pte-practice/internal/model"
)

type readAloud struct{}

func (readAloud) Type() model.TaskType { return model.TaskReadAloud }

func (v readAloud) Mount(p *model.TaskPayload) (View, Policy, error) {
	if p.ReadAloud == nil {
		return View{}, Policy{}, mismatch(v.Type())
	}
	view := View{
		TaskType:     v.Type(),
		Title:        v.Type().Title(),
		Instructions: "You will have 30-40 seconds to read this text aloud as naturally and clearly as possible.",
		Text:         p.ReadAloud.Text,
	}
	return view, Policy{Kind: PolicyImmediate}, nil
}

func (v readAloud) Respond(p *model.TaskPayload, in Input) (*model.Response, error) {
	return spokenResponse(v.Type(), p.ReadAloud.Text, nil, in)
}

type describeImage struct {
	prep   int
	answer int
}

func (describeImage) Type() model.TaskType { return model.TaskDescribeImage }

func (v describeImage) Mount(p *model.TaskPayload) (View, Policy, error) {
	img := p.DescribeImage
	if img == nil {
		return View{}, Policy{}, mismatch(v.Type())
	}
	view := View{
		TaskType: v.Type(),
		Title:    v.Type().Title(),
		Instructions: fmt.Sprintf("You have %d seconds to prepare. After the beep, you will have %d seconds to describe the image.",
			v.prep, v.answer),
		Image: &ImageView{URL: img.ImageURL, Alt: img.Alt, Photographer: img.Photographer},
	}
	if img.Photographer != "" {
		view.Image.Credit = fmt.Sprintf("Photo by %s on Pexels", img.Photographer)
	}
	policy := Policy{
		Kind:          PolicyDelayed,
		PrepSeconds:   v.prep,
		AnswerSeconds: v.answer,
	}
	return view, policy, nil
}

func (v describeImage) Respond(p *model.TaskPayload, in Input) (*model.Response, error) {
	return spokenResponse(v.Type(), describeReference(p.DescribeImage.Alt), nil, in)
}

func describeReference(alt string) string {
	return "An image showing: " + alt
}

type repeatSentence struct {
	answer int
}

func (repeatSentence) Type() model.TaskType { return model.TaskRepeatSentence }

func (v repeatSentence) Mount(p *model.TaskPayload) (View, Policy, error) {
	if p.Repeat == nil {
		return View{}, Policy{}, mismatch(v.Type())
	}
	view := View{
		TaskType:     v.Type(),
		Title:        v.Type().Title(),
		Instructions: "You will hear a sentence. Please repeat the sentence exactly as you hear it.",
		Speak:        p.Repeat.Text,
	}
	policy := Policy{Kind: PolicyAfterPlayback, AnswerSeconds: v.answer}
	return view, policy, nil
}

func (v repeatSentence) Respond(p *model.TaskPayload, in Input) (*model.Response, error) {
	return spokenResponse(v.Type(), p.Repeat.Text, nil, in)
}

type shortQuestion struct {
	answer int
}

func (shortQuestion) Type() model.TaskType { return model.TaskAnswerShortQuestion }

func (v shortQuestion) Mount(p *model.TaskPayload) (View, Policy, error) {
	q := p.ShortQuestion
	if q == nil {
		return View{}, Policy{}, mismatch(v.Type())
	}
	view := View{
		TaskType:     v.Type(),
		Title:        v.Type().Title(),
		Instructions: "You will hear a question. Please give a simple and short answer. Often just one or a few words is enough.",
		Speak:        q.Question,
	}
	policy := Policy{
		Kind:          PolicyAfterPlayback,
		AnswerSeconds: v.answer,
	}
	return view, policy, nil
}

func (v shortQuestion) Respond(p *model.TaskPayload, in Input) (*model.Response, error) {
	answer := p.ShortQuestion.Answer
	return spokenResponse(v.Type(), p.ShortQuestion.Question, &answer, in)
}

type reorderParagraph struct{}

func (reorderParagraph) Type() model.TaskType { return model.TaskReorderParagraph }

func (v reorderParagraph) Mount(p *model.TaskPayload) (View, Policy, error) {
	if p.Reorder == nil {
		return View{}, Policy{}, mismatch(v.Type())
	}
	view := View{
		TaskType:     v.Type(),
		Title:        v.Type().Title(),
		Instructions: "The text boxes below are in a random order. Restore the original order by dragging and dropping them.",
		Sentences:    append([]string(nil), p.Reorder.Sentences...),
	}
	return view, Policy{Kind: PolicyLocalOrder}, nil
}

func (v reorderParagraph) Respond(p *model.TaskPayload, in Input) (*model.Response, error) {
	if in.Order == nil {
		return nil, ErrNoAnswer
	}
	return &model.Response{TaskType: v.Type(), Order: append([]int(nil), in.Order...)}, nil
}

// CheckOrder reports whether order is exactly the solution sequence.
func CheckOrder(solution, order []int) bool {
	if len(solution) != len(order) {
		return false
	}
	for i := range solution {
		if solution[i] != order[i] {
			return false
		}
	}
	return true
}

type writing struct {
	kind         model.TaskType
	seconds      int
	minChars     int
	minWords     int
	words        WordRange
	instructions string
}

func (w writing) mount() (View, Policy) {
	view := View{
		TaskType:     w.kind,
		Title:        w.kind.Title(),
		Instructions: w.instructions,
		WordRange:    &WordRange{Min: w.words.Min, Max: w.words.Max},
	}
	policy := Policy{
		Kind:     PolicyTextInput,
		MinChars: w.minChars,
		MinWords: w.minWords,
		Seconds:  w.seconds,
	}
	return view, policy
}

type essay struct {
	seconds int
}

func (essay) Type() model.TaskType { return model.TaskEssay }

func (v essay) writing() writing {
	return writing{
		kind:     v.Type(),
		seconds:  v.seconds,
		minChars: 50,
		words:    WordRange{Min: 200, Max: 300},
		instructions: fmt.Sprintf("You have %d minutes to plan, write, and revise an essay on the topic below. Your response should be 200-300 words.",
			v.seconds/60),
	}
}

func (v essay) Mount(p *model.TaskPayload) (View, Policy, error) {
	if p.Essay == nil {
		return View{}, Policy{}, mismatch(v.Type())
	}
	view, policy := v.writing().mount()
	view.Question = p.Essay.Prompt
	return view, policy, nil
}

func (v essay) Respond(p *model.TaskPayload, in Input) (*model.Response, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrNoAnswer
	}
	return &model.Response{TaskType: v.Type(), ReferenceText: p.Essay.Prompt, Text: in.Text}, nil
}

type summary struct {
	seconds int
}

func (summary) Type() model.TaskType { return model.TaskSummarizeWrittenText }

func (v summary) writing() writing {
	return writing{
		kind:     v.Type(),
		seconds:  v.seconds,
		minWords: 5,
		words:    WordRange{Min: 5, Max: 75},
		instructions: fmt.Sprintf("Read the passage below and summarize it using one sentence. You have %d minutes to finish this task. Your response should be 5-75 words.",
			v.seconds/60),
	}
}

func (v summary) Mount(p *model.TaskPayload) (View, Policy, error) {
	if p.Summary == nil {
		return View{}, Policy{}, mismatch(v.Type())
	}
	view, policy := v.writing().mount()
	view.Text = p.Summary.Text
	return view, policy, nil
}

func (v summary) Respond(p *model.TaskPayload, in Input) (*model.Response, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrNoAnswer
	}
	return &model.Response{TaskType: v.Type(), ReferenceText: p.Summary.Text, Text: in.Text}, nil
}

type multipleChoice struct{}

func (multipleChoice) Type() model.TaskType { return model.TaskMultipleChoiceSingle }

func (v multipleChoice) Mount(p *model.TaskPayload) (View, Policy, error) {
	c := p.Choice
	if c == nil {
		return View{}, Policy{}, mismatch(v.Type())
	}
	view := View{
		TaskType:     v.Type(),
		Title:        v.Type().Title(),
		Instructions: "Read the text and answer the multiple-choice question by selecting the correct response. Only one response is correct.",
		Text:         c.Passage,
		Question:     c.Question,
		Options:      append([]string(nil), c.Options...),
	}
	return view, Policy{Kind: PolicyLocalChoice}, nil
}

func (v multipleChoice) Respond(p *model.TaskPayload, in Input) (*model.Response, error) {
	if in.Choice == nil {
		return nil, ErrNoAnswer
	}
	if *in.Choice < 0 || *in.Choice >= len(p.Choice.Options) {
		return nil, fmt.Errorf("option %d out of range", *in.Choice)
	}
	choice := *in.Choice
	return &model.Response{TaskType: v.Type(), ReferenceText: p.Choice.Question, Choice: &choice}, nil
}

// CheckChoice grades a multiple-choice response locally.
func CheckChoice(p *model.ChoicePayload, choice int) *model.Feedback {
	fb := &model.Feedback{
		TaskType: model.TaskMultipleChoiceSingle,
		MaxScore: 1,
		Criteria: []model.Criterion{{Key: "content", Label: "Content", MaxScore: 1}},
	}
	correct := p.Options[*p.CorrectIndex]
	if choice == *p.CorrectIndex {
		fb.OverallScore = 1
		fb.Criteria[0].Score = 1
		fb.Summary = "Correct."
		fb.Criteria[0].Feedback = fmt.Sprintf("You chose %q, which is correct.", correct)
		return fb
	}
	fb.Summary = "Incorrect."
	fb.Criteria[0].Feedback = fmt.Sprintf("The correct answer was %q.", correct)
	return fb
}
