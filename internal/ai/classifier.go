package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// Classifier is the narrow contract the rest of the service relies on.
type Classifier interface {
	ClassifyDepartment(ctx context.Context, text string) (domain.Department, error)
	PredictPriority(ctx context.Context, text string) (domain.TicketPriority, error)
	DraftAnswer(ctx context.Context, text string) (string, error)
	SameIssue(ctx context.Context, a, b string) (bool, error)
}

// LLMClassifier asks a Completer with fixed prompts and parses the labels it returns.
type LLMClassifier struct {
	completer Completer
}

// NewLLMClassifier builds a classifier on top of a Completer.
func NewLLMClassifier(completer Completer) *LLMClassifier {
	return &LLMClassifier{completer: completer}
}

func departmentList() string {
	names := make([]string, 0, len(domain.Departments))
	for _, d := range domain.Departments {
		names = append(names, string(d))
	}
	return strings.Join(names, ", ")
}

// ClassifyDepartment returns one of the known departments or an error.
func (c *LLMClassifier) ClassifyDepartment(ctx context.Context, text string) (domain.Department, error) {
	prompt := fmt.Sprintf(`Classify the following university student query into one of these departments: %s.

Query:
%s

Return only the department name.`, departmentList(), text)
	out, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	dept, ok := domain.ParseDepartment(firstLine(out))
	if !ok {
		return "", fmt.Errorf("ai: unknown department label %q", out)
	}
	return dept, nil
}

// PredictPriority returns low, medium, high or urgent, or an error.
func (c *LLMClassifier) PredictPriority(ctx context.Context, text string) (domain.TicketPriority, error) {
	prompt := fmt.Sprintf(`Assess how urgent the following university student query is.

Query:
%s

Return only one word: low, medium, high or urgent.`, text)
	out, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	priority, ok := domain.ParsePriority(firstLine(out))
	if !ok {
		return "", fmt.Errorf("ai: unknown priority label %q", out)
	}
	return priority, nil
}

// DraftAnswer proposes a short reply staff can start from.
func (c *LLMClassifier) DraftAnswer(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`You are a university student support officer. Reply to the following query in 2-3 sentences and no more than 60 words.

Query:
%s`, text)
	out, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SameIssue asks whether two tickets describe the same problem. Only an answer starting with "yes" counts.
func (c *LLMClassifier) SameIssue(ctx context.Context, a, b string) (bool, error) {
	prompt := fmt.Sprintf(`Determine whether the following two student support tickets describe the same issue and should be merged.

Ticket 1:
%s

Ticket 2:
%s

Return "Yes" or "No".`, a, b)
	out, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.Trim(firstLine(out), " .\"'!"))
	return strings.HasPrefix(answer, "yes"), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// DepartmentOr classifies text and returns fallback when the classifier fails for any reason.
func DepartmentOr(ctx context.Context, c Classifier, text string, fallback domain.Department) (domain.Department, error) {
	if c == nil {
		return fallback, fmt.Errorf("ai: no classifier configured")
	}
	dept, err := c.ClassifyDepartment(ctx, text)
	if err != nil {
		return fallback, err
	}
	return dept, nil
}
