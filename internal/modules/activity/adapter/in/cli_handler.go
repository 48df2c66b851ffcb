package in

import (
	"context"

	"gymtrack/internal/modules/activity/dto"
	activityin "gymtrack/internal/modules/activity/port/in"
)

type CLIHandler struct {
	usecase activityin.Usecase
}

func NewCLIHandler(usecase activityin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Usecase() activityin.Usecase {
	return h.usecase
}

func (h CLIHandler) Start(ctx context.Context, studentID, activityType, mode, source string, weightKg float64) (dto.SnapshotOutput, error) {
	return h.usecase.Start(ctx, dto.StartInput{StudentID: studentID, ActivityType: activityType, Mode: mode, Source: source, WeightKg: weightKg})
}

func (h CLIHandler) Pause(ctx context.Context) (dto.SnapshotOutput, error) {
	return h.usecase.Pause(ctx)
}

func (h CLIHandler) Resume(ctx context.Context) (dto.SnapshotOutput, error) {
	return h.usecase.Resume(ctx)
}

func (h CLIHandler) Finish(ctx context.Context, input dto.FinishInput) (dto.FinishOutput, error) {
	return h.usecase.Finish(ctx, input)
}

func (h CLIHandler) Cancel(ctx context.Context) (dto.CancelOutput, error) {
	return h.usecase.Cancel(ctx)
}

func (h CLIHandler) Snapshot(ctx context.Context) dto.SnapshotOutput {
	return h.usecase.Snapshot(ctx)
}

func (h CLIHandler) FlushNow(ctx context.Context) (dto.FlushOutput, error) {
	return h.usecase.FlushNow(ctx)
}

func (h CLIHandler) CheckRecovery(ctx context.Context, studentID string) (dto.InProgressOutput, error) {
	return h.usecase.CheckRecovery(ctx, studentID)
}

func (h CLIHandler) ResolveRecovery(ctx context.Context, studentID, sessionID, resolution string, weightKg float64) (dto.ResolveRecoveryOutput, error) {
	return h.usecase.ResolveRecovery(ctx, dto.ResolveRecoveryInput{StudentID: studentID, SessionID: sessionID, Resolution: resolution, WeightKg: weightKg})
}

func (h CLIHandler) Detail(ctx context.Context, sessionID string) (dto.DetailOutput, error) {
	return h.usecase.Detail(ctx, sessionID)
}

func (h CLIHandler) Export(ctx context.Context, sessionID string) (dto.ExportOutput, error) {
	return h.usecase.Export(ctx, sessionID)
}

func (h CLIHandler) Estimate(ctx context.Context, activityType string, minutes, weightKg float64) (dto.EstimateOutput, error) {
	return h.usecase.EstimateCalories(ctx, dto.EstimateInput{ActivityType: activityType, Minutes: minutes, WeightKg: weightKg})
}
