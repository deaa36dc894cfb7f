package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/util"
	"github.com/gen2brain/go-fitz"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// PDFSource serves read-aloud and summary passages extracted from a PDF
// practice book.
type PDFSource struct {
	path string
	pick func(n int) int

	once     sync.Once
	loadErr  error
	passages map[model.TaskType][]string
}

func NewPDFSource(path string) *PDFSource {
	return &PDFSource{path: path, pick: rand.IntN}
}

func (s *PDFSource) Name() string { return "pdf" }

func (s *PDFSource) Supports(t model.TaskType) bool {
	return t == model.TaskReadAloud || t == model.TaskSummarizeWrittenText
}

func (s *PDFSource) Fetch(_ context.Context, t model.TaskType) ([]byte, error) {
	s.once.Do(func() {
		s.passages, s.loadErr = s.extract()
	})
	if s.loadErr != nil {
		return nil, &LoadError{Task: t, Reason: "task bank unavailable", Err: s.loadErr}
	}
	list := s.passages[t]
	if len(list) == 0 {
		return nil, &LoadError{Task: t, Reason: "task bank has no passages for this task"}
	}
	return json.Marshal(map[string]string{"text": list[s.pick(len(list))]})
}

func (s *PDFSource) extract() (map[model.TaskType][]string, error) {
	doc, err := fitz.New(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var pages []string
	for n := 0; n < doc.NumPage(); n++ {
		text, err := doc.Text(n)
		if err != nil {
			log.Printf("Task bank page %d: failed to extract text: %v", n+1, err)
			continue
		}
		pages = append(pages, text)
	}
	out := SplitPassages(strings.Join(pages, "\n\n"))
	log.Printf("Task bank %s: %d read-aloud, %d summary passages", s.path,
		len(out[model.TaskReadAloud]), len(out[model.TaskSummarizeWrittenText]))
	return out, nil
}

// SplitPassages buckets the paragraphs of a document by length: 40-90 words
// suit read-aloud, 200-350 words suit summarize-written-text.
func SplitPassages(text string) map[model.TaskType][]string {
	out := map[model.TaskType][]string{}
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.Join(strings.Fields(para), " ")
		switch n := util.WordCount(para); {
		case n >= 40 && n <= 90:
			out[model.TaskReadAloud] = append(out[model.TaskReadAloud], para)
		case n >= 200 && n <= 350:
			out[model.TaskSummarizeWrittenText] = append(out[model.TaskSummarizeWrittenText], para)
		}
	}
	return out
}
