// Package nudges selects the single daily recommendation shown to a user,
// based on the day's risk band and its top drivers. Selection is
// deterministic: the same (band, drivers, date) always yields the same nudge,
// with message variants rotating by calendar day so repeat nudges do not read
// as copy-paste.
package nudges

import "cardiometrix/internal/types"

// Entry is one catalog nudge. Variants are alternative phrasings of the same
// behavioral ask; the picker rotates through them by day of year.
type Entry struct {
	Key      string
	Tag      types.NudgeTag
	Priority int
	Variants []string
}

// FallbackKey is the generic activity nudge used when no driver maps to a
// catalog tag.
const FallbackKey = "walk_easy_15"

// StableKey is the reinforcement nudge used for green days.
const StableKey = "stable_keep_routine"

// catalog is the production nudge set, keyed by tag. Priorities break ties
// when multiple drivers map to different tags: the clinically higher-leverage
// behavior wins.
var catalog = map[types.NudgeTag]Entry{
	types.TagSalt: {
		Key:      "swap_salty_snack",
		Tag:      types.TagSalt,
		Priority: 50,
		Variants: []string{
			"Your blood pressure has been trending up. Try swapping one salty snack for fruit or unsalted nuts today.",
			"Blood pressure is running higher than usual. Skip the saltiest item in one meal today.",
			"Cutting back on sodium today can help with the recent blood pressure trend. Check one food label before lunch.",
		},
	},
	types.TagMeds: {
		Key:      "meds_with_breakfast",
		Tag:      types.TagMeds,
		Priority: 45,
		Variants: []string{
			"Missed doses add up. Take your medication with breakfast so it becomes automatic.",
			"Pair your medication with something you already do every morning, like making coffee.",
		},
	},
	types.TagSleep: {
		Key:      "wind_down_30",
		Tag:      types.TagSleep,
		Priority: 40,
		Variants: []string{
			"You have been running a sleep debt. Start winding down 30 minutes earlier tonight.",
			"Short nights are showing up in your recovery numbers. Set a wind-down alarm 30 minutes before bed.",
			"Protect tonight's sleep: screens off 30 minutes before your target bedtime.",
		},
	},
	types.TagWeight: {
		Key:      "weigh_in_morning",
		Tag:      types.TagWeight,
		Priority: 35,
		Variants: []string{
			"Your weight has been drifting. A quick morning weigh-in keeps the trend visible.",
			"Step on the scale tomorrow morning before breakfast to keep your weight trend honest.",
		},
	},
	types.TagSteps: {
		Key:      "move_after_meals",
		Tag:      types.TagSteps,
		Priority: 30,
		Variants: []string{
			"Your activity is below your usual. A 10 minute walk after your largest meal today will help.",
			"Step count is down this week. Take the longer route once today.",
			"Movement has dipped lately. Stand up and walk for 10 minutes after lunch.",
		},
	},
	types.TagHydration: {
		Key:      "water_first_hour",
		Tag:      types.TagHydration,
		Priority: 25,
		Variants: []string{
			"Your resting heart rate is up. Start the day with a full glass of water and go easy on caffeine.",
			"Heart rate is running high. Drink water through the morning before reaching for coffee.",
		},
	},
	types.TagRoutine: {
		Key:      StableKey,
		Tag:      types.TagRoutine,
		Priority: 0,
		Variants: []string{
			"Your numbers look steady. Keep doing what you are doing today.",
			"Nice and stable this week. Stick with your current routine.",
			"Everything is tracking well. No changes needed, just keep the streak going.",
		},
	},
}

// fallback is the generic activity nudge. It sits outside the tag catalog
// because it is never selected by driver matching, only by exhaustion.
var fallback = Entry{
	Key:      FallbackKey,
	Tag:      types.TagSteps,
	Priority: 0,
	Variants: []string{
		"Take a 10-15 minute easy walk today.",
	},
}

// CatalogEntry returns the catalog entry for a tag, with ok=false for tags
// that have no entry.
func CatalogEntry(tag types.NudgeTag) (Entry, bool) {
	e, ok := catalog[tag]
	return e, ok
}
