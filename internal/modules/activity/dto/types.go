package dto

import "time"

type StartInput struct {
	StudentID    string
	ActivityType string
	Mode         string
	WeightKg     float64
	// Source locates the position source for gps mode.
	Source string
}

type SampleInput struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64
	SpeedMs        *float64
	Timestamp      time.Time
}

type FinishInput struct {
	ManualDistanceMeters float64
	Laps                 int
	ResistanceLevel      int
	InclinePercent       float64
	Floors               int
}

// SnapshotOutput is the live view of the current session.
type SnapshotOutput struct {
	SessionID      string
	StudentID      string
	ActivityType   string
	Mode           string
	Status         string
	StartedAt      time.Time
	ElapsedSeconds float64
	DistanceMeters float64
	AvgSpeedKmh    float64
	MaxSpeedKmh    float64
	Pace           string
	CaloriesBurned float64
	PointCount     int
	PendingPoints  int
	DroppedSamples int
	FlushFailures  int
	LastFlushAt    time.Time
	LastFlushError string
	Busy           bool
}

type FinishOutput struct {
	SessionID      string
	Confirmed      bool
	ElapsedSeconds float64
	DistanceMeters float64
	AvgSpeedKmh    float64
	MaxSpeedKmh    float64
	Pace           string
	CaloriesBurned float64
	PointCount     int
	UnsyncedPoints int
	JournalPath    string
}

type CancelOutput struct {
	SessionID        string
	BackendConfirmed bool
}

type FlushOutput struct {
	Sent    int
	Pending int
}

type InProgressOutput struct {
	Found          bool
	SessionID      string
	ActivityType   string
	Status         string
	StartedAt      time.Time
	DistanceMeters float64
	PointCount     int
}

type ResolveRecoveryInput struct {
	StudentID  string
	SessionID  string
	Resolution string
	WeightKg   float64
}

type ResolveRecoveryOutput struct {
	SessionID      string
	Resolution     string
	ElapsedSeconds float64
	DistanceMeters float64
	CaloriesBurned float64
}

type PointOutput struct {
	Latitude  float64
	Longitude float64
	Timestamp time.Time
	SpeedKmh  *float64
}

type DetailOutput struct {
	SessionID      string
	StudentID      string
	ActivityType   string
	Mode           string
	Status         string
	StartedAt      time.Time
	FinishedAt     time.Time
	ElapsedSeconds float64
	DistanceMeters float64
	AvgSpeedKmh    float64
	MaxSpeedKmh    float64
	Pace           string
	CaloriesBurned float64
	Points         []PointOutput
}

type ExportOutput struct {
	SessionID string
	Path      string
}

type EstimateInput struct {
	ActivityType string
	Minutes      float64
	WeightKg     float64
}

type EstimateOutput struct {
	ActivityType   string
	MET            float64
	WeightKg       float64
	CaloriesBurned float64
}
