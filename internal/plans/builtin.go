package plans

import "github.com/BTreeMap/FastTrack/internal/models"

// standardMilestones is the milestone ladder shared by the daily-window
// plans. Percentages map to the commonly cited metabolic phases of a fast.
var standardMilestones = []models.Milestone{
	{Percentage: 25, Name: "settling-in", Icon: "leaf", Description: "Digestion winds down, insulin starts dropping", Color: "green"},
	{Percentage: 50, Name: "fat-burning", Icon: "fire", Description: "Fat burning kicks in as glycogen runs low", Color: "orange"},
	{Percentage: 85, Name: "deep-fast", Icon: "bolt", Description: "Ketone production ramps up, autophagy begins", Color: "purple"},
}

// extendedMilestones adds a ketosis checkpoint for the long plans.
var extendedMilestones = []models.Milestone{
	{Percentage: 25, Name: "settling-in", Icon: "leaf", Description: "Digestion winds down, insulin starts dropping", Color: "green"},
	{Percentage: 50, Name: "fat-burning", Icon: "fire", Description: "Fat burning kicks in as glycogen runs low", Color: "orange"},
	{Percentage: 75, Name: "ketosis", Icon: "spark", Description: "The body shifts to ketones as its main fuel", Color: "blue"},
	{Percentage: 90, Name: "deep-fast", Icon: "bolt", Description: "Peak autophagy and cellular cleanup", Color: "purple"},
}

// builtinPlans mirrors the product's shipped plan set. The 1dk plan is a
// 60-second debug plan kept for manual end-to-end testing of the timer.
var builtinPlans = []models.Plan{
	{
		ID:              "16:8",
		Name:            "16:8 Intermittent",
		Category:        models.CategoryBeginner,
		FastingHours:    16,
		EatingHours:     8,
		Description:     "Fast for 16 hours, eat within an 8 hour window. The most popular starting point.",
		Tips:            []string{"Finish dinner by 20:00", "Drink water, tea or black coffee while fasting", "Break the fast with protein, not sugar"},
		DurationSeconds: 16 * 60 * 60,
		Milestones:      standardMilestones,
	},
	{
		ID:              "18:6",
		Name:            "18:6 Intermittent",
		Category:        models.CategoryIntermediate,
		FastingHours:    18,
		EatingHours:     6,
		Description:     "Fast for 18 hours with a 6 hour eating window. A step up from 16:8.",
		Tips:            []string{"Shift breakfast later rather than dinner earlier", "Keep salt intake up on longer fasts"},
		DurationSeconds: 18 * 60 * 60,
		Milestones:      standardMilestones,
	},
	{
		ID:              "20:4",
		Name:            "20:4 Warrior",
		Category:        models.CategoryIntermediate,
		FastingHours:    20,
		EatingHours:     4,
		Description:     "Fast for 20 hours and eat within 4. For experienced fasters only.",
		Tips:            []string{"Plan both meals ahead of time", "Avoid intense training near the end of the fast"},
		DurationSeconds: 20 * 60 * 60,
		Milestones:      extendedMilestones,
	},
	{
		ID:              "24:0",
		Name:            "24 Hour Fast",
		Category:        models.CategoryAdvanced,
		FastingHours:    24,
		EatingHours:     0,
		Description:     "A full day without eating, dinner to dinner.",
		Tips:            []string{"Pick a low-stress day", "Break the fast gently with a small meal"},
		DurationSeconds: 24 * 60 * 60,
		Milestones:      extendedMilestones,
	},
	{
		ID:              "OMAD",
		Name:            "One Meal A Day",
		Category:        models.CategoryAdvanced,
		FastingHours:    24,
		EatingHours:     0,
		Description:     "One meal a day, every day. A sustained 24 hour cycle.",
		Tips:            []string{"Make the single meal nutritionally complete", "Keep the meal at the same time each day"},
		DurationSeconds: 24 * 60 * 60,
		Milestones:      extendedMilestones,
	},
	{
		ID:              "1dk",
		Name:            "1 Minute Test",
		Category:        models.CategoryBeginner,
		FastingHours:    0,
		EatingHours:     0,
		Description:     "60 second debug plan for trying out the timer.",
		DurationSeconds: 60,
		Milestones: []models.Milestone{
			{Percentage: 50, Name: "halfway", Icon: "flag", Description: "Half the test fast done", Color: "blue"},
		},
	},
}
