package loader

import (
	"errors"
	"fmt"

	"github.com/fadilmartias/pte-practice/internal/model"
)

var ErrNoSource = errors.New("no task source supports this task type")

// LoadError is a failed or malformed task fetch. Reason is safe to show to
// the user.
type LoadError struct {
	Task      model.TaskType
	Reason    string
	Malformed bool
	Err       error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Task, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Task, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

func IsMalformed(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Malformed
}
