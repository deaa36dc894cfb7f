// Package evaluation submits finished responses to the scoring backend and
// parses the feedback it returns.
package evaluation

import (
	"context"
	"fmt"

	"github.com/fadilmartias/pte-practice/internal/dto"
	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/service"
	"github.com/fadilmartias/pte-practice/internal/util"
	"github.com/tidwall/gjson"
)

type DispatcherInterface interface {
	Evaluate(ctx context.Context, resp *model.Response) (*model.Feedback, error)
}

// Dispatcher makes exactly one backend call per Evaluate; failures are
// returned to the caller and never retried.
type Dispatcher struct {
	backend service.BackendServiceInterface
}

func NewDispatcher(backend service.BackendServiceInterface) *Dispatcher {
	return &Dispatcher{backend: backend}
}

func (d *Dispatcher) Evaluate(ctx context.Context, resp *model.Response) (*model.Feedback, error) {
	reply, err := d.send(ctx, resp)
	if err != nil {
		return nil, err
	}
	return ParseFeedback(resp.TaskType, reply)
}

func (d *Dispatcher) send(ctx context.Context, resp *model.Response) (*service.BackendResponse, error) {
	var (
		reply *service.BackendResponse
		err   error
	)
	switch {
	case resp.TaskType.Spoken() && resp.IsAudio():
		fields := map[string]string{
			"originalText": resp.ReferenceText,
			"taskType":     resp.TaskType.Title(),
		}
		if resp.CorrectAnswer != nil {
			fields["correctAnswer"] = *resp.CorrectAnswer
		}
		reply, err = d.backend.PostAudio(ctx, "/transcribe-and-evaluate", resp.Audio, fields)
	case resp.TaskType.Spoken():
		reply, err = d.backend.PostJSON(ctx, "/evaluate/spoken-response", dto.SpokenEvaluationRequest{
			Transcript:    resp.Transcript,
			OriginalText:  resp.ReferenceText,
			TaskType:      resp.TaskType.Title(),
			CorrectAnswer: resp.CorrectAnswer,
		})
	case resp.TaskType == model.TaskEssay:
		reply, err = d.backend.PostJSON(ctx, "/evaluate/essay", dto.EssayEvaluationRequest{
			Prompt:    resp.ReferenceText,
			EssayText: resp.Text,
		})
	case resp.TaskType == model.TaskSummarizeWrittenText:
		reply, err = d.backend.PostJSON(ctx, "/evaluate/swt", dto.SummaryEvaluationRequest{
			OriginalText: resp.ReferenceText,
			SummaryText:  resp.Text,
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotEvaluable, resp.TaskType)
	}
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return reply, nil
}

// ParseFeedback turns a backend reply into a feedback report, classifying
// failures as server, transport or malformed.
func ParseFeedback(t model.TaskType, reply *service.BackendResponse) (*model.Feedback, error) {
	obj, parseErr := util.ParseObject(reply.Body)
	if parseErr == nil {
		if msg := obj.Get("error"); msg.Exists() && msg.String() != "" {
			return nil, &ServerError{Status: reply.StatusCode, Message: msg.String()}
		}
	}
	if !reply.OK() {
		return nil, &TransportError{Status: reply.StatusCode}
	}
	if parseErr != nil {
		return nil, &MalformedError{Reason: parseErr.Error()}
	}

	sc := schemaFor(t)
	overall := obj.Get(sc.overallKey)
	if overall.Type != gjson.Number {
		return nil, &MalformedError{Reason: "missing " + sc.overallKey}
	}

	fb := &model.Feedback{
		TaskType:     t,
		OverallScore: overall.Float(),
		MaxScore:     sc.overallMax,
		Summary:      obj.Get("final_summary").String(),
		Transcript:   obj.Get("transcript").String(),
	}
	for _, crit := range sc.criteria {
		node := obj.Get(crit.key)
		if !node.IsObject() {
			return nil, &MalformedError{Reason: "missing criterion " + crit.key}
		}
		c := model.Criterion{
			Key:      crit.key,
			Label:    crit.label,
			MaxScore: crit.max,
			Feedback: node.Get("feedback").String(),
		}
		if m := node.Get("max_score"); m.Type == gjson.Number {
			c.MaxScore = m.Float()
		}
		score := node.Get("score")
		switch {
		case score.Type == gjson.Number:
			c.Score = score.Float()
		case !crit.form:
			return nil, &MalformedError{Reason: "criterion " + crit.key + " has no numeric score"}
		}
		if crit.form {
			wc := node.Get("word_count")
			if wc.Type != gjson.Number {
				return nil, &MalformedError{Reason: "form has no word_count"}
			}
			fb.Form = &model.FormInfo{WordCount: int(wc.Int()), Feedback: c.Feedback}
			for _, key := range []string{"is_valid", "valid"} {
				if v := node.Get(key); v.IsBool() {
					valid := v.Bool()
					fb.Form.Valid = &valid
					break
				}
			}
		}
		fb.Criteria = append(fb.Criteria, c)
	}
	return fb, nil
}
