package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"

	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/service"
	"github.com/tidwall/gjson"
)

// Deduper reports whether a generated prompt is too close to one practised
// recently.
type Deduper interface {
	SeenRecently(ctx context.Context, text string) (bool, error)
}

// GeminiSource generates tasks directly with Gemini. Describe-image needs a
// photo library and is left to the next source.
type GeminiSource struct {
	gemini  service.GeminiServiceInterface
	dedupe  Deduper
	topics  []string
	shuffle func(n int) []int
}

func NewGeminiSource(gemini service.GeminiServiceInterface, dedupe Deduper) *GeminiSource {
	return &GeminiSource{
		gemini:  gemini,
		dedupe:  dedupe,
		topics:  []string{"general academic", "environmental science", "urban planning", "psychology", "technology", "economics", "history of science"},
		shuffle: rand.Perm,
	}
}

var geminiPrompts = map[model.TaskType]string{
	model.TaskReadAloud: `Generate a short, academic paragraph of about 60-70 words on the topic of '%s'. The paragraph should contain some complex vocabulary and varied sentence structure, suitable for a PTE Read Aloud task.
Return JSON only: {"text": "<paragraph>"}`,
	model.TaskRepeatSentence: `Generate a single, clear sentence between 10 and 15 words long on the topic of '%s'. It should be grammatically correct and suitable for a PTE Repeat Sentence task.
Return JSON only: {"text": "<sentence>"}`,
	model.TaskAnswerShortQuestion: `Generate one general-knowledge question on the topic of '%s' that can be answered in one to three words, suitable for a PTE Answer Short Question task.
Return JSON only: {"question": "<question>", "answer": "<short answer>"}`,
	model.TaskReorderParagraph: `Generate a coherent academic paragraph of exactly 4 sentences on '%s'. Keep the sentences in their original, logical order.
Return JSON only: {"sentences": ["<first>", "<second>", "<third>", "<fourth>"]}`,
	model.TaskEssay: `Generate one argumentative essay topic on '%s' suitable for a PTE Write Essay task. State the topic as a short statement followed by a question asking for the writer's opinion.
Return JSON only: {"prompt": "<topic>"}`,
	model.TaskSummarizeWrittenText: `Generate a dense, academic text of about 300 words on the topic of '%s'. The text must contain several key ideas and supporting details, suitable for a PTE 'Summarize Written Text' task.
Return JSON only: {"text": "<passage>"}`,
	model.TaskMultipleChoiceSingle: `Generate an academic passage of about 150 words on '%s', followed by one multiple-choice question about it with four options of which exactly one is correct.
Return JSON only: {"passage": "<passage>", "question": "<question>", "options": ["<a>", "<b>", "<c>", "<d>"], "correctIndex": <0-3>}`,
}

func (s *GeminiSource) Name() string { return "gemini" }

func (s *GeminiSource) Supports(t model.TaskType) bool {
	_, ok := geminiPrompts[t]
	return ok
}

func (s *GeminiSource) Fetch(ctx context.Context, t model.TaskType) ([]byte, error) {
	text, err := s.generate(ctx, t)
	if err != nil {
		return nil, err
	}

	if s.dedupe != nil {
		prompt := gjson.Get(text, promptField(t)).String()
		if seen, err := s.dedupe.SeenRecently(ctx, prompt); err != nil {
			log.Printf("Prompt de-duplication skipped: %v", err)
		} else if seen {
			log.Printf("Generated %s prompt was practised recently, regenerating", t)
			if text, err = s.generate(ctx, t); err != nil {
				return nil, err
			}
		}
	}

	if t == model.TaskReorderParagraph {
		return s.shuffleParagraph(t, text)
	}
	return []byte(text), nil
}

func (s *GeminiSource) generate(ctx context.Context, t model.TaskType) (string, error) {
	topic := s.topics[rand.IntN(len(s.topics))]
	text, err := s.gemini.GenerateJSON(ctx, fmt.Sprintf(geminiPrompts[t], topic))
	if err != nil {
		return "", &LoadError{Task: t, Reason: "failed to generate task", Err: err}
	}
	return text, nil
}

func promptField(t model.TaskType) string {
	switch t {
	case model.TaskAnswerShortQuestion:
		return "question"
	case model.TaskReorderParagraph:
		return "sentences.0"
	case model.TaskEssay:
		return "prompt"
	case model.TaskMultipleChoiceSingle:
		return "passage"
	}
	return "text"
}

// shuffleParagraph presents the generated sentences out of order and records
// the original order as indexes into the shuffled list.
func (s *GeminiSource) shuffleParagraph(t model.TaskType, text string) ([]byte, error) {
	var ordered []string
	for _, v := range gjson.Get(text, "sentences").Array() {
		ordered = append(ordered, v.String())
	}
	n := len(ordered)
	if n < 2 {
		return nil, &LoadError{Task: t, Reason: "generated paragraph has fewer than two sentences", Malformed: true}
	}

	perm := s.shuffle(n)
	for attempt := 0; isIdentity(perm) && attempt < 5; attempt++ {
		perm = s.shuffle(n)
	}

	shuffled := make([]string, n)
	solution := make([]int, n)
	for pos, orig := range perm {
		shuffled[pos] = ordered[orig]
		solution[orig] = pos
	}
	return json.Marshal(map[string]any{"sentences": shuffled, "solution": solution})
}

func isIdentity(perm []int) bool {
	for i, v := range perm {
		if i != v {
			return false
		}
	}
	return true
}
