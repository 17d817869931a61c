package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

func mergeFixture(t *testing.T) (*harness, *domain.User, *domain.Ticket, *domain.Ticket, *domain.Ticket) {
	t.Helper()
	h := newHarness(t)
	olga := h.officer("olga")
	primary := h.newTicket(t, h.student("ana@uni.test"), wifiSubject, wifiBody)
	second := h.newTicket(t, h.student("ben@uni.test"), "WiFi down", "No wifi in the library since this morning.")
	third := h.newTicket(t, h.student("cai@uni.test"), "Printer jam", "The printer on floor two jams.")
	return h, olga, primary, second, third
}

func TestMergeSuggestions(t *testing.T) {
	h, olga, primary, second, _ := mergeFixture(t)
	h.classifier.same = func(a, b string) (bool, error) {
		return strings.Contains(strings.ToLower(b), "wifi"), nil
	}

	similar, err := h.merges.Suggestions(context.Background(), olga, primary.ID)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, second.ID, similar[0].ID)

	group, err := h.store.repos().Merges.GetByPrimary(context.Background(), primary.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, group.Suggested)
	assert.Empty(t, group.Approved)
}

func TestMergeSuggestionsSkipFailedComparisons(t *testing.T) {
	h, olga, primary, _, _ := mergeFixture(t)
	h.classifier.same = func(string, string) (bool, error) { return false, errors.New("timeout") }

	similar, err := h.merges.Suggestions(context.Background(), olga, primary.ID)
	require.NoError(t, err)
	assert.Empty(t, similar)
}

func TestMergeToggleIsAnInvolution(t *testing.T) {
	h, olga, primary, second, _ := mergeFixture(t)
	ctx := context.Background()

	outcome, err := h.merges.Toggle(ctx, olga, primary.ID, second.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Approved)
	assert.Equal(t, []string{second.ID}, outcome.Group.Approved)

	outcome, err = h.merges.Toggle(ctx, olga, primary.ID, second.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	assert.Empty(t, outcome.Group.Approved)

	comments := []string{}
	for _, a := range h.store.activitiesFor(second.ID) {
		if a.Action == domain.ActionMerged {
			comments = append(comments, a.Comment)
		}
	}
	assert.Equal(t, []string{
		"Merged into ticket " + primary.ID,
		"Unmerged from ticket " + primary.ID,
	}, comments)
}

func TestMergeToggleRejections(t *testing.T) {
	h, olga, primary, second, _ := mergeFixture(t)
	ctx := context.Background()
	sam := h.specialist("sam", domain.DepartmentITSupport)

	_, err := h.merges.Toggle(ctx, olga, primary.ID, primary.ID)
	require.Error(t, err)

	_, err = h.merges.Toggle(ctx, sam, primary.ID, second.ID)
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	_, err = h.merges.Toggle(ctx, olga, primary.ID, "t-missing")
	var derr *apperrors.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "NOT_FOUND", derr.Code)
	_, err = h.store.repos().Merges.GetByPrimary(ctx, primary.ID)
	assert.Error(t, err, "a failed toggle leaves no merge group behind")
}

func TestRespondFansOutToMergedTickets(t *testing.T) {
	h, olga, primary, second, third := mergeFixture(t)
	ctx := context.Background()

	_, err := h.merges.Toggle(ctx, olga, primary.ID, second.ID)
	require.NoError(t, err)
	_, err = h.merges.Toggle(ctx, olga, primary.ID, third.ID)
	require.NoError(t, err)
	h.store.failUpdate[third.ID] = errors.New("row locked")

	outcome, err := h.lifecycle.Respond(ctx, olga, primary.ID, "The access point was replaced.")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, outcome.Propagated)
	require.Contains(t, outcome.Failed, third.ID)

	assert.True(t, h.store.ticket(primary.ID).ProgramOfficerResolved)
	merged := h.store.ticket(second.ID)
	assert.Equal(t, domain.ActionResponded, merged.LatestAction)
	assert.Equal(t, "Response by olga: The access point was replaced.", merged.Answers)
	activities := h.store.activitiesFor(second.ID)
	assert.Equal(t, "Response from merged ticket "+primary.ID+": The access point was replaced.",
		activities[len(activities)-1].Comment)

	failed := h.store.ticket(third.ID)
	assert.Equal(t, domain.ActionMerged, failed.LatestAction, "a failed merged ticket keeps its state")
	assert.Empty(t, failed.Answers)
}

func TestRespondSkipsClosedMergedTickets(t *testing.T) {
	h, olga, primary, second, _ := mergeFixture(t)
	ctx := context.Background()

	_, err := h.merges.Toggle(ctx, olga, primary.ID, second.ID)
	require.NoError(t, err)
	ben, err := h.store.repos().Users.GetByEmail(ctx, "ben@uni.test")
	require.NoError(t, err)
	_, err = h.lifecycle.Close(ctx, ben, second.ID)
	require.NoError(t, err)

	outcome, err := h.lifecycle.Respond(ctx, olga, primary.ID, "Fixed.")
	require.NoError(t, err)
	assert.Empty(t, outcome.Propagated)
	assert.Empty(t, outcome.Failed)
	assert.Equal(t, domain.TicketStatusClosed, h.store.ticket(second.ID).Status)
}

func TestRespondLeavesReturnedMergedTicketWithStudent(t *testing.T) {
	h, olga, primary, second, _ := mergeFixture(t)
	ctx := context.Background()

	_, err := h.merges.Toggle(ctx, olga, primary.ID, second.ID)
	require.NoError(t, err)
	_, err = h.lifecycle.Return(ctx, olga, second.ID, "Which library branch?")
	require.NoError(t, err)

	outcome, err := h.lifecycle.Respond(ctx, olga, primary.ID, "The access point was replaced.")
	require.NoError(t, err)
	assert.Empty(t, outcome.Propagated)
	require.Contains(t, outcome.Failed, second.ID)
	var derr *apperrors.DomainError
	require.ErrorAs(t, outcome.Failed[second.ID], &derr)
	assert.Equal(t, "CONFLICT", derr.Code)

	waiting := h.store.ticket(second.ID)
	assert.Equal(t, domain.ActionReturned, waiting.LatestAction)
	assert.True(t, waiting.NeedStudentUpdate)
	assert.Empty(t, waiting.Answers)
	assert.NoError(t, waiting.CheckConsistency())

	// The student's update puts the ticket back in the staff queue.
	ben, err := h.store.repos().Users.GetByEmail(ctx, "ben@uni.test")
	require.NoError(t, err)
	_, err = h.lifecycle.Update(ctx, ben, second.ID, "Main library, first floor.")
	require.NoError(t, err)
	_, err = h.lifecycle.Respond(ctx, olga, second.ID, "Fixed there too.")
	require.NoError(t, err)
}
