package out

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"gymtrack/internal/modules/activity/adapter/out/rpc"
	"gymtrack/internal/modules/activity/domain"
	activityout "gymtrack/internal/modules/activity/port/out"
	apperrors "gymtrack/internal/platform/errors"
)

// GRPCBackend talks to a remote session backend. Transport failures surface as
// ErrBackendUnavailable and refusals as ErrBackendRejected.
type GRPCBackend struct {
	conn   *grpc.ClientConn
	client *rpc.SessionBackendClient
}

func DialGRPCBackend(address string, opts ...grpc.DialOption) (*GRPCBackend, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: backend address is required", apperrors.ErrInvalidInput)
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial backend %s: %w", address, err)
	}
	return &GRPCBackend{conn: conn, client: rpc.NewSessionBackendClient(conn)}, nil
}

func (b *GRPCBackend) Close() error {
	return b.conn.Close()
}

func (b *GRPCBackend) Start(ctx context.Context, req activityout.StartRequest) (activityout.StartResult, error) {
	res, err := b.client.Start(ctx, &rpc.StartRequest{
		StudentID:       req.StudentID,
		ActivityType:    string(req.ActivityType),
		Mode:            string(req.Mode),
		InitialPosition: req.InitialPosition,
	})
	if err != nil {
		return activityout.StartResult{}, rpc.FromStatus(err)
	}
	return activityout.StartResult{SessionID: res.SessionID, StartedAt: res.StartedAt}, nil
}

func (b *GRPCBackend) AddPointsBatch(ctx context.Context, sessionID string, points []domain.TrackPoint) error {
	return rpc.FromStatus(b.client.AddPointsBatch(ctx, &rpc.PointsRequest{SessionID: sessionID, Points: points}))
}

func (b *GRPCBackend) Pause(ctx context.Context, sessionID string) error {
	return rpc.FromStatus(b.client.Pause(ctx, &rpc.SessionRequest{SessionID: sessionID}))
}

func (b *GRPCBackend) Resume(ctx context.Context, sessionID string) error {
	return rpc.FromStatus(b.client.Resume(ctx, &rpc.SessionRequest{SessionID: sessionID}))
}

func (b *GRPCBackend) Finish(ctx context.Context, req activityout.FinishRequest) error {
	return rpc.FromStatus(b.client.Finish(ctx, &rpc.FinishRequest{
		SessionID:      req.SessionID,
		ActiveSeconds:  req.ActiveSeconds,
		DistanceMeters: req.DistanceMeters,
		AvgSpeedKmh:    req.AvgSpeedKmh,
		MaxSpeedKmh:    req.MaxSpeedKmh,
		CaloriesBurned: req.CaloriesBurned,
		Extras:         req.Extras,
	}))
}

func (b *GRPCBackend) Cancel(ctx context.Context, sessionID string) error {
	return rpc.FromStatus(b.client.Cancel(ctx, &rpc.SessionRequest{SessionID: sessionID}))
}

func (b *GRPCBackend) GetInProgress(ctx context.Context, studentID string) (domain.RemoteSession, error) {
	res, err := b.client.GetInProgress(ctx, &rpc.StudentRequest{StudentID: studentID})
	if err != nil {
		err = rpc.FromStatus(err)
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.RemoteSession{}, apperrors.ErrNoInProgressSession
		}
		return domain.RemoteSession{}, err
	}
	return *res, nil
}

func (b *GRPCBackend) GetDetail(ctx context.Context, sessionID string) (domain.SessionDetail, error) {
	res, err := b.client.GetDetail(ctx, &rpc.SessionRequest{SessionID: sessionID})
	if err != nil {
		return domain.SessionDetail{}, rpc.FromStatus(err)
	}
	return *res, nil
}
