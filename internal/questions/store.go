package questions

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askrelay/daemon/internal/logging"
)

// Store is a thread-safe, memory-resident registry of pending questions.
// State does not survive a restart.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*PendingQuestion
	byMessage map[int64]string
	seq       uint64
	logger    *logging.Logger
}

// NewStore creates an empty store.
func NewStore(logger *logging.Logger) *Store {
	return &Store{
		entries:   make(map[string]*PendingQuestion),
		byMessage: make(map[int64]string),
		logger:    logger,
	}
}

// newQuestionID builds a process-unique ID. The uuid suffix keeps IDs unique
// even for registrations within the same millisecond.
func newQuestionID(sessionID string) string {
	return fmt.Sprintf("%s_%d_%s", sessionID, time.Now().UnixMilli(), uuid.New().String()[:8])
}

// Register inserts a new pending question and returns its assigned ID.
// ID, CreatedAt, Seq, Answered and Selections are assigned here; the caller
// provides the rest. If the Telegram message ID already maps to a live entry
// the old entry is displaced, which indicates a channel adapter bug.
func (s *Store) Register(q PendingQuestion) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	q.ID = newQuestionID(q.SessionID)
	q.CreatedAt = time.Now()
	q.Seq = s.seq
	q.Answered = false
	q.Selections = make(map[int]string)

	if prevID, ok := s.byMessage[q.MessageID]; ok {
		s.logger.Warn("duplicate telegram message id, displacing entry",
			"message_id", q.MessageID,
			"displaced", prevID,
		)
		delete(s.entries, prevID)
	}

	s.entries[q.ID] = &q
	s.byMessage[q.MessageID] = q.ID

	s.logger.Info("registered question",
		"question_id", q.ID,
		"tmux_location", q.TmuxLocation,
		"sub_questions", len(q.SubQuestions),
	)
	return q.ID
}

// Get returns a copy of the question with the given ID, or nil.
func (s *Store) Get(id string) *PendingQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyOf(s.entries[id])
}

// GetByMessageID returns a copy of the question displayed by the given
// Telegram message, or nil.
func (s *Store) GetByMessageID(messageID int64) *PendingQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byMessage[messageID]
	if !ok {
		return nil
	}
	return copyOf(s.entries[id])
}

// LatestUnanswered returns a copy of the most recently created unanswered
// question, or nil. Equal timestamps are broken by registration order.
func (s *Store) LatestUnanswered() *PendingQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *PendingQuestion
	for _, q := range s.entries {
		if q.Answered {
			continue
		}
		if latest == nil || q.CreatedAt.After(latest.CreatedAt) ||
			(q.CreatedAt.Equal(latest.CreatedAt) && q.Seq > latest.Seq) {
			latest = q
		}
	}
	return copyOf(latest)
}

// RecordSelection stores the chosen label for a sub-question, overwriting any
// prior choice. It is a no-op when the question is missing or already
// answered; callers are expected to have checked first.
func (s *Store) RecordSelection(id string, subIndex int, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.entries[id]
	if !ok || q.Answered {
		return
	}
	q.Selections[subIndex] = label
}

// ClaimForAnswering atomically claims the question for answer delivery.
// It returns false when the question is missing, already answered, or
// already claimed by a concurrent handler. A successful claim must be
// followed by MarkAnswered or ReleaseClaim.
func (s *Store) ClaimForAnswering(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.entries[id]
	if !ok || q.Answered || q.claimed {
		return false
	}
	q.claimed = true
	return true
}

// ReleaseClaim reopens a claimed question after a failed delivery so a later
// human event can retry.
func (s *Store) ReleaseClaim(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.entries[id]; ok {
		q.claimed = false
	}
}

// MarkAnswered marks the question as terminally answered. Idempotent.
func (s *Store) MarkAnswered(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.entries[id]
	if !ok {
		return
	}
	if !q.Answered {
		q.Answered = true
		s.logger.Info("marked question answered", "question_id", id)
	}
}

// Sweep removes every entry older than maxAge, answered or not, together
// with its message index entry. Returns the number removed.
func (s *Store) Sweep(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, q := range s.entries {
		if now.Sub(q.CreatedAt) <= maxAge {
			continue
		}
		delete(s.entries, id)
		delete(s.byMessage, q.MessageID)
		removed++
		s.logger.Info("swept expired question", "question_id", id)
	}
	return removed
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func copyOf(q *PendingQuestion) *PendingQuestion {
	if q == nil {
		return nil
	}
	out := *q
	out.Selections = make(map[int]string, len(q.Selections))
	for k, v := range q.Selections {
		out.Selections[k] = v
	}
	out.SubQuestions = append([]SubQuestion(nil), q.SubQuestions...)
	return &out
}
