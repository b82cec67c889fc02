package questions

import (
	"errors"
)

var (
	// ErrInvalidSelection indicates a sub-question or option index out of range.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrNothingSelected indicates a submit with no recorded selections.
	ErrNothingSelected = errors.New("nothing selected")
)

// ValidateSelection bounds-checks a selection against the question and
// returns the label of the chosen option, with the "Option <n>" fallback
// for empty labels.
func ValidateSelection(q *PendingQuestion, subIndex, optionIndex int) (string, error) {
	if subIndex < 0 || subIndex >= len(q.SubQuestions) {
		return "", ErrInvalidSelection
	}
	sub := q.SubQuestions[subIndex]
	if optionIndex < 0 || optionIndex >= len(sub.Options) {
		return "", ErrInvalidSelection
	}
	return sub.OptionLabel(optionIndex), nil
}

// OrderedResponses builds the response list for injection: the selected
// label for each sub-question in ascending index order. Sub-questions with
// no selection are skipped rather than zero-filled. Returns
// ErrNothingSelected when no sub-question has a selection.
func OrderedResponses(q *PendingQuestion) ([]string, error) {
	if len(q.Selections) == 0 {
		return nil, ErrNothingSelected
	}
	responses := make([]string, 0, len(q.Selections))
	for i := 0; i < len(q.SubQuestions); i++ {
		if label, ok := q.Selections[i]; ok {
			responses = append(responses, label)
		}
	}
	if len(responses) == 0 {
		return nil, ErrNothingSelected
	}
	return responses, nil
}
