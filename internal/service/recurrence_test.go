package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"SocialScheduler/internal/config"
	"SocialScheduler/internal/model"
	"SocialScheduler/internal/utils/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrTime(t time.Time) *time.Time { return &t }

func TestRecurringWeeklyRoundRobin(t *testing.T) {
	env := newTestEnv(nil)
	c1 := env.store.addContent("org1", model.PlatformTwitter, "a")
	c2 := env.store.addContent("org1", model.PlatformTwitter, "b")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	report, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		Name:           "weekday posts",
		ContentIDs:     []uint64{c1.ID, c2.ID},
		Frequency:      "weekly",
		DaysOfWeek:     []int{3, 1, 3},
		TimeSlots:      []string{"09:00"},
		Start:          jan(1, 0, 0),
		End:            ptrTime(jan(14, 0, 0)),
	})
	require.NoError(t, err)
	require.NotNil(t, report.TemplateID)
	assert.False(t, report.Truncated)
	assert.Equal(t, 4, report.InstantsGenerated)
	require.Len(t, report.CreatedPostIDs, 4)
	assert.Equal(t, []time.Time{jan(1, 9, 0), jan(3, 9, 0), jan(8, 9, 0), jan(10, 9, 0)}, scheduledTimes(env.store, report.CreatedPostIDs))

	var contentOrder []uint64
	for _, id := range report.CreatedPostIDs {
		p := env.store.post(id)
		contentOrder = append(contentOrder, p.ContentPieceID)
		require.NotNil(t, p.TemplateID)
		assert.Equal(t, *report.TemplateID, *p.TemplateID)
	}
	assert.Equal(t, []uint64{c1.ID, c2.ID, c1.ID, c2.ID}, contentOrder)

	require.Len(t, env.store.templates, 1)
	tpl := env.store.templates[0]
	assert.Equal(t, model.FrequencyWeekly, tpl.Frequency)
	assert.Equal(t, 1, tpl.Interval)
	assert.Equal(t, []int{1, 3}, tpl.Days())
	assert.Equal(t, []string{"09:00"}, tpl.Slots())
}

func TestRecurringStopsAtEndInstant(t *testing.T) {
	env := newTestEnv(nil)
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	// 结束于周一零点，当天 09:00 不应生成
	end := jan(15, 0, 0)
	report, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{c.ID},
		Frequency:      "weekly",
		DaysOfWeek:     []int{1, 3},
		TimeSlots:      []string{"09:00"},
		Start:          jan(1, 0, 0),
		End:            &end,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, report.InstantsGenerated)
	times := scheduledTimes(env.store, report.CreatedPostIDs)
	assert.Equal(t, []time.Time{jan(1, 9, 0), jan(3, 9, 0), jan(8, 9, 0), jan(10, 9, 0)}, times)
	for _, at := range times {
		assert.False(t, at.After(end), "post at %s after %s", at, end)
	}
}

func TestRecurringDailyInterval(t *testing.T) {
	env := newTestEnv(nil)
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	report, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{c.ID},
		Frequency:      "daily",
		Interval:       2,
		TimeSlots:      []string{"08:00"},
		Start:          jan(1, 0, 0),
		End:            ptrTime(jan(7, 23, 0)),
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{jan(1, 8, 0), jan(3, 8, 0), jan(5, 8, 0), jan(7, 8, 0)}, scheduledTimes(env.store, report.CreatedPostIDs))
}

func TestRecurringMonthlyClampsToMonthEnd(t *testing.T) {
	env := newTestEnv(nil)
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	report, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{c.ID},
		Frequency:      "monthly",
		TimeSlots:      []string{"09:00"},
		Start:          jan(31, 0, 0),
		End:            ptrTime(time.Date(2024, 4, 30, 23, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		jan(31, 9, 0),
		time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC),
	}, scheduledTimes(env.store, report.CreatedPostIDs))
}

func TestWalkRecurrenceMonthlyWithWeekday(t *testing.T) {
	rule := recurrenceRule{frequency: model.FrequencyMonthly, interval: 1, days: map[time.Weekday]bool{time.Monday: true}}
	var got []string
	walkRecurrence(rule, timeutil.Date{Year: 2024, Month: 1, Day: 1}, timeutil.Date{Year: 2024, Month: 3, Day: 31}, func(d timeutil.Date) bool {
		got = append(got, d.String())
		return true
	})
	assert.Equal(t, []string{"2024-01-01", "2024-02-05", "2024-03-04"}, got)
}

func TestWalkRecurrenceStopsWhenVisitReturnsFalse(t *testing.T) {
	rule := recurrenceRule{frequency: model.FrequencyDaily, interval: 1}
	n := 0
	walkRecurrence(rule, timeutil.Date{Year: 2024, Month: 1, Day: 1}, timeutil.Date{Year: 2024, Month: 12, Day: 31}, func(timeutil.Date) bool {
		n++
		return n < 3
	})
	assert.Equal(t, 3, n)
}

func TestRecurringSkipsContentWithoutAccount(t *testing.T) {
	env := newTestEnv(nil)
	tw := env.store.addContent("org1", model.PlatformTwitter, "a")
	li := env.store.addContent("org1", model.PlatformLinkedIn, "b")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	report, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{tw.ID, li.ID},
		Frequency:      "daily",
		TimeSlots:      []string{"09:00"},
		Start:          jan(1, 0, 0),
		End:            ptrTime(jan(4, 23, 0)),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, report.InstantsGenerated)
	assert.Len(t, report.CreatedPostIDs, 2)
	require.Len(t, report.Skipped, 2)
	for _, sk := range report.Skipped {
		assert.Equal(t, li.ID, sk.ContentPieceID)
		assert.Equal(t, "no active account for platform", sk.Reason)
	}
}

func TestRecurringPagesWithNextStart(t *testing.T) {
	sched := config.DefaultSchedulingConfig()
	sched.MaxGeneratedInstances = 3
	env := newTestEnvWithConfig(nil, sched, config.DefaultConflictConfig())
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	first, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{c.ID},
		Frequency:      "daily",
		TimeSlots:      []string{"09:00"},
		Start:          jan(1, 0, 0),
		End:            ptrTime(jan(5, 23, 0)),
	})
	require.NoError(t, err)
	assert.True(t, first.Truncated)
	require.NotNil(t, first.NextStart)
	assert.Equal(t, jan(4, 0, 0), *first.NextStart)
	assert.Len(t, first.CreatedPostIDs, 3)

	second, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		TemplateID:     first.TemplateID,
		ContentIDs:     []uint64{c.ID},
		Start:          *first.NextStart,
	})
	require.NoError(t, err)
	assert.False(t, second.Truncated)
	assert.Nil(t, second.NextStart)
	assert.Equal(t, []time.Time{jan(4, 9, 0), jan(5, 9, 0)}, scheduledTimes(env.store, second.CreatedPostIDs))
	assert.Len(t, env.store.templates, 1)
	assert.Len(t, env.store.posts, 5)
}

func TestRecurringPagesKeepRoundRobinOrder(t *testing.T) {
	sched := config.DefaultSchedulingConfig()
	sched.MaxGeneratedInstances = 3
	env := newTestEnvWithConfig(nil, sched, config.DefaultConflictConfig())
	c1 := env.store.addContent("org1", model.PlatformTwitter, "a")
	c2 := env.store.addContent("org1", model.PlatformTwitter, "b")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	first, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{c1.ID, c2.ID},
		Frequency:      "daily",
		TimeSlots:      []string{"09:00"},
		Start:          jan(1, 0, 0),
		End:            ptrTime(jan(5, 23, 0)),
	})
	require.NoError(t, err)
	require.NotNil(t, first.NextStart)

	second, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		TemplateID:     first.TemplateID,
		ContentIDs:     []uint64{c1.ID, c2.ID},
		Start:          *first.NextStart,
	})
	require.NoError(t, err)

	var order []uint64
	for _, id := range append(first.CreatedPostIDs, second.CreatedPostIDs...) {
		order = append(order, env.store.post(id).ContentPieceID)
	}
	assert.Equal(t, []uint64{c1.ID, c2.ID, c1.ID, c2.ID, c1.ID}, order)
}

func TestRecurringSkipsInvalidHandle(t *testing.T) {
	env := newTestEnv(nil)
	tw := env.store.addContent("org1", model.PlatformTwitter, "a")
	li := env.store.addContent("org1", model.PlatformLinkedIn, "b")
	env.store.addAccount("org1", model.PlatformTwitter, true)
	bad := env.store.addAccount("org1", model.PlatformLinkedIn, true)
	bad.Handle = "-not valid-"

	report, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{tw.ID, li.ID},
		Frequency:      "daily",
		TimeSlots:      []string{"09:00"},
		Start:          jan(1, 0, 0),
		End:            ptrTime(jan(2, 23, 0)),
	})
	require.NoError(t, err)
	assert.Len(t, report.CreatedPostIDs, 1)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, SkippedPairing{ContentPieceID: li.ID, SocialAccountID: bad.ID, Platform: model.PlatformLinkedIn, Reason: "invalid handle"}, report.Skipped[0])
}

func TestRecurringTemplateReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(nil)
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	first, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{c.ID},
		Frequency:      "daily",
		TimeSlots:      []string{"09:00"},
		Start:          jan(1, 0, 0),
		End:            ptrTime(jan(3, 23, 0)),
	})
	require.NoError(t, err)
	require.Len(t, first.CreatedPostIDs, 3)

	again, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		TemplateID:     first.TemplateID,
		ContentIDs:     []uint64{c.ID},
	})
	require.NoError(t, err)
	assert.Empty(t, again.CreatedPostIDs)
	assert.Equal(t, first.CreatedPostIDs, again.ExistingPostIDs)
	assert.Len(t, env.store.posts, 3)
}

func TestRecurringMissingTemplate(t *testing.T) {
	env := newTestEnv(nil)
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	id := uint64(999)
	_, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		TemplateID:     &id,
		ContentIDs:     []uint64{c.ID},
	})
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "schedule_template", nf.Resource)
	assert.Equal(t, "999", nf.ID)
}

func TestRecurringSkipsInstantsBeforeStart(t *testing.T) {
	env := newTestEnv(nil)
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	report, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{c.ID},
		Frequency:      "daily",
		TimeSlots:      []string{"09:00", "15:00"},
		Start:          jan(1, 12, 0),
		End:            ptrTime(jan(2, 23, 0)),
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{jan(1, 15, 0), jan(2, 9, 0), jan(2, 15, 0)}, scheduledTimes(env.store, report.CreatedPostIDs))
}

func TestRecurringReportsDSTGap(t *testing.T) {
	env := newTestEnv(nil)
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	report, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{c.ID},
		Frequency:      "weekly",
		DaysOfWeek:     []int{0},
		TimeSlots:      []string{"02:30"},
		Timezone:       "America/New_York",
		Start:          time.Date(2024, 3, 3, 5, 0, 0, 0, time.UTC),
		End:            ptrTime(time.Date(2024, 3, 17, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.InstantsGenerated)
	assert.Equal(t, []string{"2024-03-10 02:30 America/New_York"}, report.SkippedGapSlots)
	assert.Equal(t, []time.Time{
		time.Date(2024, 3, 3, 7, 30, 0, 0, time.UTC),
		time.Date(2024, 3, 17, 6, 30, 0, 0, time.UTC),
	}, scheduledTimes(env.store, report.CreatedPostIDs))
}

func TestRecurringDefaultHorizon(t *testing.T) {
	env := newTestEnv(nil)
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	report, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{c.ID},
		Frequency:      "daily",
		TimeSlots:      []string{"09:00"},
		Start:          jan(1, 0, 0),
	})
	require.NoError(t, err)
	// [2024-01-01, 2024-07-01 00:00)
	assert.Len(t, report.CreatedPostIDs, 182)
	assert.False(t, report.Truncated)
}

func TestRecurringValidation(t *testing.T) {
	env := newTestEnv(nil)
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	env.store.addAccount("org1", model.PlatformTwitter, true)
	valid := func() RecurringScheduleRequest {
		return RecurringScheduleRequest{
			OrganizationID: "org1",
			ContentIDs:     []uint64{c.ID},
			Frequency:      "daily",
			TimeSlots:      []string{"09:00"},
			Start:          jan(1, 0, 0),
			End:            ptrTime(jan(3, 0, 0)),
		}
	}
	mutations := map[string]func(*RecurringScheduleRequest){
		"no org":            func(r *RecurringScheduleRequest) { r.OrganizationID = "" },
		"no content":        func(r *RecurringScheduleRequest) { r.ContentIDs = nil },
		"unknown frequency": func(r *RecurringScheduleRequest) { r.Frequency = "hourly" },
		"negative interval": func(r *RecurringScheduleRequest) { r.Interval = -1 },
		"no start":          func(r *RecurringScheduleRequest) { r.Start = time.Time{} },
		"end before start":  func(r *RecurringScheduleRequest) { r.End = ptrTime(jan(1, 0, 0).Add(-time.Hour)) },
		"no slots":          func(r *RecurringScheduleRequest) { r.TimeSlots = nil },
		"bad slot":          func(r *RecurringScheduleRequest) { r.TimeSlots = []string{"9am"} },
		"bad weekday":       func(r *RecurringScheduleRequest) { r.DaysOfWeek = []int{7} },
		"bad timezone":      func(r *RecurringScheduleRequest) { r.Timezone = "Nowhere/City" },
	}
	for name, mutate := range mutations {
		req := valid()
		mutate(&req)
		_, err := env.schedules.CreateRecurringSchedule(context.Background(), req)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), name)
	}
	assert.Empty(t, env.store.templates)
	assert.Empty(t, env.store.posts)
}

func TestRecurringBusyWhenLockHeld(t *testing.T) {
	env := newTestEnv(heldLock{})
	c := env.store.addContent("org1", model.PlatformTwitter, "a")
	env.store.addAccount("org1", model.PlatformTwitter, true)

	_, err := env.schedules.CreateRecurringSchedule(context.Background(), RecurringScheduleRequest{
		OrganizationID: "org1",
		ContentIDs:     []uint64{c.ID},
		Frequency:      "daily",
		TimeSlots:      []string{"09:00"},
		Start:          jan(1, 0, 0),
	})
	var busy *BusyError
	require.True(t, errors.As(err, &busy))
	assert.Empty(t, env.store.templates)
}
