package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

func TestKeywordRulesClassify(t *testing.T) {
	rules := DefaultKeywordRules()
	cases := []struct {
		subject, body string
		want          domain.Department
	}{
		{"WiFi down", "nothing loads", domain.DepartmentITSupport},
		{"Question", "My DORM window is broken", domain.DepartmentHousing},
		{"Exam timetable", "when is it?", domain.DepartmentAcademicSupport},
		{"Visa letter", "for my study abroad semester", domain.DepartmentAcademicSupport},
		{"Lost wallet", "reported a theft", domain.DepartmentSecurity},
		{"Hello", "nothing specific", domain.DefaultDepartment},
	}
	for _, tc := range cases {
		t.Run(tc.subject, func(t *testing.T) {
			assert.Equal(t, tc.want, rules.Classify(tc.subject, tc.body))
		})
	}
}

func TestNotificationsSkipMissingRecipients(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ana := h.student("ana@uni.test")
	olga := h.officer("olga")
	ticket := h.newTicket(t, ana, wifiSubject, wifiBody)

	_, err := h.assignment.Redirect(ctx, olga, ticket.ID, UnassignedTarget(domain.DepartmentHousing))
	require.NoError(t, err)
	assert.Equal(t, []string{"Your Ticket 'Cannot connect to WiFi' Has Been Received"}, h.sender.subjects(),
		"an unassigned redirect has nobody to notify")

	_, err = h.lifecycle.Update(ctx, ana, ticket.ID, "It happens in room 12 too.")
	require.NoError(t, err)
	assert.Contains(t, h.sender.subjects(), "Ticket Updated: 'Cannot connect to WiFi'")
}
