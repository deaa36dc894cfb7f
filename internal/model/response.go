package model

// Response is the user's finished answer to one task. Exactly one of the
// answer fields is set, matching the task type and capture variant.
type Response struct {
	TaskType      TaskType
	ReferenceText string
	// CorrectAnswer is only known for short-question tasks.
	CorrectAnswer *string

	Transcript string
	Audio      []byte
	Text       string
	Choice     *int
	Order      []int
}

func (r *Response) IsAudio() bool {
	return len(r.Audio) > 0
}
