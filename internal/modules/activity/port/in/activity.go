package in

import (
	"context"

	"gymtrack/internal/modules/activity/dto"
)

type Usecase interface {
	Start(ctx context.Context, input dto.StartInput) (dto.SnapshotOutput, error)
	Pause(ctx context.Context) (dto.SnapshotOutput, error)
	Resume(ctx context.Context) (dto.SnapshotOutput, error)
	Finish(ctx context.Context, input dto.FinishInput) (dto.FinishOutput, error)
	Cancel(ctx context.Context) (dto.CancelOutput, error)
	Snapshot(ctx context.Context) dto.SnapshotOutput
	Ingest(ctx context.Context, input dto.SampleInput) error
	FlushNow(ctx context.Context) (dto.FlushOutput, error)
	CheckRecovery(ctx context.Context, studentID string) (dto.InProgressOutput, error)
	ResolveRecovery(ctx context.Context, input dto.ResolveRecoveryInput) (dto.ResolveRecoveryOutput, error)
	Detail(ctx context.Context, sessionID string) (dto.DetailOutput, error)
	Export(ctx context.Context, sessionID string) (dto.ExportOutput, error)
	EstimateCalories(ctx context.Context, input dto.EstimateInput) (dto.EstimateOutput, error)
}
