package domain

import (
	"fmt"
	"sort"
	"strings"

	apperrors "gymtrack/internal/platform/errors"
)

const SchemaVersion = 1

type ActivityType string

const (
	ActivityWalk           ActivityType = "walk"
	ActivityRun            ActivityType = "run"
	ActivityBike           ActivityType = "bike"
	ActivityHike           ActivityType = "hike"
	ActivityTreadmill      ActivityType = "treadmill"
	ActivityStationaryBike ActivityType = "stationary_bike"
	ActivityElliptical     ActivityType = "elliptical"
	ActivityRowing         ActivityType = "rowing"
	ActivityStairClimber   ActivityType = "stair_climber"
	ActivitySwimming       ActivityType = "swimming"
	ActivityYoga           ActivityType = "yoga"
)

// Field names an optional measurement an activity type can carry.
type Field string

const (
	FieldDistance   Field = "distance"
	FieldLaps       Field = "laps"
	FieldResistance Field = "resistance"
	FieldIncline    Field = "incline"
	FieldFloors     Field = "floors"
)

type activityInfo struct {
	met     float64
	outdoor bool
	fields  []Field
}

// MET coefficients are fixed per activity; calorie figures derived from them are estimates.
var activities = map[ActivityType]activityInfo{
	ActivityWalk:           {met: 3.5, outdoor: true, fields: []Field{FieldDistance}},
	ActivityRun:            {met: 9.8, outdoor: true, fields: []Field{FieldDistance}},
	ActivityBike:           {met: 7.5, outdoor: true, fields: []Field{FieldDistance}},
	ActivityHike:           {met: 6.0, outdoor: true, fields: []Field{FieldDistance}},
	ActivityTreadmill:      {met: 9.0, fields: []Field{FieldDistance, FieldIncline}},
	ActivityStationaryBike: {met: 7.0, fields: []Field{FieldDistance, FieldResistance}},
	ActivityElliptical:     {met: 5.0, fields: []Field{FieldDistance, FieldResistance, FieldIncline}},
	ActivityRowing:         {met: 7.0, fields: []Field{FieldDistance, FieldResistance}},
	ActivityStairClimber:   {met: 9.0, fields: []Field{FieldFloors}},
	ActivitySwimming:       {met: 8.0, fields: []Field{FieldDistance, FieldLaps}},
	ActivityYoga:           {met: 2.5},
}

func ParseActivityType(raw string) (ActivityType, error) {
	t := ActivityType(strings.ToLower(strings.TrimSpace(raw)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t ActivityType) Validate() error {
	if _, ok := activities[t]; !ok {
		return fmt.Errorf("%w: unknown activity type %q", apperrors.ErrInvalidInput, string(t))
	}
	return nil
}

func (t ActivityType) MET() float64 {
	return activities[t].met
}

// Outdoor reports whether the activity moves over ground and can be GPS tracked.
func (t ActivityType) Outdoor() bool {
	return activities[t].outdoor
}

func (t ActivityType) Supports(f Field) bool {
	for _, item := range activities[t].fields {
		if item == f {
			return true
		}
	}
	return false
}

func ActivityTypes() []ActivityType {
	out := make([]ActivityType, 0, len(activities))
	for t := range activities {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type TrackingMode string

const (
	ModeGPS    TrackingMode = "gps"
	ModeManual TrackingMode = "manual"
)

func ParseTrackingMode(raw string) (TrackingMode, error) {
	m := TrackingMode(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case ModeGPS, ModeManual:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown tracking mode %q", apperrors.ErrInvalidInput, raw)
	}
}

// ValidateMode rejects GPS tracking for indoor activities.
func ValidateMode(t ActivityType, m TrackingMode) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, err := ParseTrackingMode(string(m)); err != nil {
		return err
	}
	if m == ModeGPS && !t.Outdoor() {
		return fmt.Errorf("%w: %s cannot be tracked by gps", apperrors.ErrInvalidInput, t)
	}
	return nil
}

// Extras are the optional per-activity measurements recorded at finish.
type Extras struct {
	ManualDistanceMeters float64 `json:"manual_distance_m,omitempty" yaml:"manual_distance_m,omitempty"`
	Laps                 int     `json:"laps,omitempty" yaml:"laps,omitempty"`
	ResistanceLevel      int     `json:"resistance_level,omitempty" yaml:"resistance_level,omitempty"`
	InclinePercent       float64 `json:"incline_percent,omitempty" yaml:"incline_percent,omitempty"`
	Floors               int     `json:"floors,omitempty" yaml:"floors,omitempty"`
}

func (e Extras) Validate(t ActivityType, m TrackingMode) error {
	if e.ManualDistanceMeters < 0 || e.Laps < 0 || e.ResistanceLevel < 0 || e.Floors < 0 || e.InclinePercent < -100 || e.InclinePercent > 100 {
		return fmt.Errorf("%w: extras out of range", apperrors.ErrInvalidInput)
	}
	checks := []struct {
		set   bool
		field Field
	}{
		{e.ManualDistanceMeters > 0, FieldDistance},
		{e.Laps > 0, FieldLaps},
		{e.ResistanceLevel > 0, FieldResistance},
		{e.InclinePercent != 0, FieldIncline},
		{e.Floors > 0, FieldFloors},
	}
	for _, c := range checks {
		if c.set && !t.Supports(c.field) {
			return fmt.Errorf("%w: %s does not record %s", apperrors.ErrInvalidInput, t, c.field)
		}
	}
	if e.ManualDistanceMeters > 0 && m == ModeGPS {
		return fmt.Errorf("%w: manual distance is only accepted in manual mode", apperrors.ErrInvalidInput)
	}
	return nil
}
