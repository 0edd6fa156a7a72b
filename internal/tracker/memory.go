package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Tracker for tests and dry runs.
type Memory struct {
	mu       sync.Mutex
	issues   map[int]*Issue
	comments map[int][]Comment
	labels   map[int][]string
	nextID   int64
	next     int
}

// NewMemory returns an empty Memory tracker.
func NewMemory() *Memory {
	return &Memory{
		issues:   map[int]*Issue{},
		comments: map[int][]Comment{},
		labels:   map[int][]string{},
		next:     1,
	}
}

// AddIssue seeds an issue and returns it.
func (m *Memory) AddIssue(title, body string) *Issue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(title, body)
}

func (m *Memory) addLocked(title, body string) *Issue {
	n := m.next
	m.next++
	is := &Issue{Number: n, Title: title, Body: body, URL: fmt.Sprintf("memory://issues/%d", n)}
	m.issues[n] = is
	return is
}

// Comments returns the comments on issue number.
func (m *Memory) Comments(number int) []Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Comment(nil), m.comments[number]...)
}

// Labels returns the labels an issue was created with.
func (m *Memory) Labels(number int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.labels[number]...)
}

func (m *Memory) GetIssue(_ context.Context, number int) (*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, ok := m.issues[number]
	if !ok {
		return nil, fmt.Errorf("failed to get issue #%d: not found", number)
	}
	cp := *is
	return &cp, nil
}

func (m *Memory) ListComments(_ context.Context, number int) ([]Comment, error) {
	return m.Comments(number), nil
}

func (m *Memory) CreateComment(_ context.Context, number int, body string) (*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issues[number]; !ok {
		return nil, fmt.Errorf("failed to comment on #%d: not found", number)
	}
	m.nextID++
	c := Comment{
		ID:        m.nextID,
		Body:      body,
		Author:    "specforge[bot]",
		URL:       fmt.Sprintf("memory://issues/%d#comment-%d", number, m.nextID),
		CreatedAt: time.Now(),
	}
	m.comments[number] = append(m.comments[number], c)
	return &c, nil
}

func (m *Memory) EditIssueBody(_ context.Context, number int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, ok := m.issues[number]
	if !ok {
		return fmt.Errorf("failed to edit issue #%d: not found", number)
	}
	is.Body = body
	return nil
}

func (m *Memory) CreateIssue(_ context.Context, title, body string, labels []string) (*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	is := m.addLocked(title, body)
	m.labels[is.Number] = append([]string(nil), labels...)
	cp := *is
	return &cp, nil
}
