package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionsKeepTicketConsistent(t *testing.T) {
	student := &User{ID: "u-s", Username: "ana", Role: RoleStudent}
	officer := &User{ID: "u-o", Username: "olga", Role: RoleProgramOfficer}
	it := DepartmentITSupport
	specialist := &User{ID: "u-p", Username: "sam", Role: RoleSpecialist, Department: &it}

	ticket := NewTicket("  Wifi  ", " drops ", DepartmentITSupport, student, "Ana@Uni.test")
	assert.Equal(t, "Wifi", ticket.Title)
	assert.Equal(t, "ana@uni.test", ticket.SenderEmail)
	assert.Equal(t, TicketPriorityMedium, ticket.Priority)
	require.NoError(t, ticket.CheckConsistency())

	assignee := specialist.ID
	ticket.ApplyRedirect(officer, &assignee, DepartmentITSupport)
	require.NoError(t, ticket.CheckConsistency())

	ticket.ApplyResponse(specialist, "restart")
	ticket.ApplyResponse(officer, "done")
	assert.Equal(t, "Response by sam: restart\nResponse by olga: done", ticket.Answers)
	assert.True(t, ticket.SpecialistResolved)
	assert.True(t, ticket.ProgramOfficerResolved)
	require.NoError(t, ticket.CheckConsistency())

	ticket.ApplyReturn(specialist, " which room? ")
	assert.Equal(t, "which room?", ticket.ReturnReason)
	assert.True(t, ticket.IsAssignedTo(student.ID))
	assert.False(t, ticket.SpecialistResolved)
	require.NoError(t, ticket.CheckConsistency())

	ticket.ApplyUpdate(student, "room 12")
	assert.Equal(t, "drops\n\nSupplement: room 12", ticket.Description)
	require.NoError(t, ticket.CheckConsistency())

	ticket.ApplyClose(nil)
	assert.False(t, ticket.IsOpen())
	assert.Equal(t, &student.ID, ticket.LatestEditorID, "system close keeps the last editor")
	require.NoError(t, ticket.CheckConsistency())
}

func TestCheckConsistencyRejectsBadFlags(t *testing.T) {
	student := &User{ID: "u-s", Role: RoleStudent}

	ticket := NewTicket("t", "d", DepartmentHousing, student, "s@uni.test")
	ticket.NeedStudentUpdate = true
	assert.Error(t, ticket.CheckConsistency())

	closed := NewTicket("t", "d", DepartmentHousing, student, "s@uni.test")
	closed.ApplyClose(student)
	closed.CanBeManagedBySpecialist = true
	assert.Error(t, closed.CheckConsistency())

	wrongStatus := NewTicket("t", "d", DepartmentHousing, student, "s@uni.test")
	wrongStatus.Status = TicketStatusClosed
	assert.Error(t, wrongStatus.CheckConsistency())
}

func TestParsePriority(t *testing.T) {
	p, ok := ParsePriority(" \"Urgent\". ")
	require.True(t, ok)
	assert.Equal(t, TicketPriorityUrgent, p)

	_, ok = ParsePriority("critical")
	assert.False(t, ok)
}

func TestParseDepartment(t *testing.T) {
	cases := map[string]Department{
		"IT Support":       DepartmentITSupport,
		"it-support":       DepartmentITSupport,
		"**Exam Office**":  DepartmentExamOffice,
		"language_centre.": DepartmentLanguageCentre,
	}
	for label, want := range cases {
		got, ok := ParseDepartment(label)
		require.True(t, ok, label)
		assert.Equal(t, want, got, label)
	}

	_, ok := ParseDepartment("astrology")
	assert.False(t, ok)
	_, ok = ParseDepartment("  ")
	assert.False(t, ok)
}

func TestUserValidate(t *testing.T) {
	assert.NoError(t, (&User{Role: RoleStudent}).Validate())
	assert.ErrorIs(t, (&User{Role: RoleSpecialist}).Validate(), ErrSpecialistWithoutDepartment)
	assert.ErrorIs(t, (&User{Role: "admin"}).Validate(), ErrUnknownRole)

	assert.Equal(t, "Ana Lee", (&User{Username: "ana", FirstName: "Ana", LastName: "Lee"}).DisplayName())
	assert.Equal(t, "ana", (&User{Username: "ana"}).DisplayName())
}

func TestNewActivityCopiesActor(t *testing.T) {
	actor := &User{ID: "u-1"}
	ticket := &Ticket{ID: "t-1", LatestAction: ActionMerged}

	activity := NewActivity(ticket, actor, "Merged into ticket t-0")
	require.NotNil(t, activity.ActorID)
	actor.ID = "changed"
	assert.Equal(t, "u-1", *activity.ActorID)
	assert.Equal(t, ActionMerged, activity.Action)

	assert.Nil(t, NewActivity(ticket, nil, "system").ActorID)
}

func TestApplyResponseKeepsPendingStudentUpdate(t *testing.T) {
	student := &User{ID: "u-s", Role: RoleStudent}
	officer := &User{ID: "u-o", Username: "olga", Role: RoleProgramOfficer}

	ticket := NewTicket("t", "d", DepartmentHousing, student, "s@uni.test")
	ticket.ApplyReturn(officer, "more detail")
	ticket.ApplyResponse(officer, "late answer")

	assert.True(t, ticket.NeedStudentUpdate)
	assert.Error(t, ticket.CheckConsistency(), "a response cannot land on a ticket waiting for the student")
}
