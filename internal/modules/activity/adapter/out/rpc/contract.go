package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"gymtrack/internal/modules/activity/domain"
	activityout "gymtrack/internal/modules/activity/port/out"
)

const (
	serviceName   = "gymtrack.activity.v1.SessionBackend"
	jsonCodecName = "json"

	methodStart         = "/" + serviceName + "/Start"
	methodAddPoints     = "/" + serviceName + "/AddPointsBatch"
	methodPause         = "/" + serviceName + "/Pause"
	methodResume        = "/" + serviceName + "/Resume"
	methodFinish        = "/" + serviceName + "/Finish"
	methodCancel        = "/" + serviceName + "/Cancel"
	methodGetInProgress = "/" + serviceName + "/GetInProgress"
	methodGetDetail     = "/" + serviceName + "/GetDetail"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

type StartRequest struct {
	StudentID       string             `json:"student_id"`
	ActivityType    string             `json:"activity_type"`
	Mode            string             `json:"mode"`
	InitialPosition *domain.Coordinate `json:"initial_position,omitempty"`
}

type StartResponse struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

type PointsRequest struct {
	SessionID string              `json:"session_id"`
	Points    []domain.TrackPoint `json:"points"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type StudentRequest struct {
	StudentID string `json:"student_id"`
}

type FinishRequest struct {
	SessionID      string        `json:"session_id"`
	ActiveSeconds  float64       `json:"active_seconds"`
	DistanceMeters float64       `json:"distance_m"`
	AvgSpeedKmh    float64       `json:"avg_speed_kmh"`
	MaxSpeedKmh    float64       `json:"max_speed_kmh"`
	CaloriesBurned float64       `json:"calories_burned"`
	Extras         domain.Extras `json:"extras"`
}

// SessionBackendClient calls a remote session backend with the JSON codec.
type SessionBackendClient struct {
	conn grpc.ClientConnInterface
}

func NewSessionBackendClient(conn grpc.ClientConnInterface) *SessionBackendClient {
	return &SessionBackendClient{conn: conn}
}

func (c *SessionBackendClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, method, in, out, grpc.CallContentSubtype(jsonCodecName))
}

func (c *SessionBackendClient) Start(ctx context.Context, in *StartRequest) (*StartResponse, error) {
	out := &StartResponse{}
	if err := c.invoke(ctx, methodStart, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionBackendClient) AddPointsBatch(ctx context.Context, in *PointsRequest) error {
	return c.invoke(ctx, methodAddPoints, in, &Empty{})
}

func (c *SessionBackendClient) Pause(ctx context.Context, in *SessionRequest) error {
	return c.invoke(ctx, methodPause, in, &Empty{})
}

func (c *SessionBackendClient) Resume(ctx context.Context, in *SessionRequest) error {
	return c.invoke(ctx, methodResume, in, &Empty{})
}

func (c *SessionBackendClient) Finish(ctx context.Context, in *FinishRequest) error {
	return c.invoke(ctx, methodFinish, in, &Empty{})
}

func (c *SessionBackendClient) Cancel(ctx context.Context, in *SessionRequest) error {
	return c.invoke(ctx, methodCancel, in, &Empty{})
}

func (c *SessionBackendClient) GetInProgress(ctx context.Context, in *StudentRequest) (*domain.RemoteSession, error) {
	out := &domain.RemoteSession{}
	if err := c.invoke(ctx, methodGetInProgress, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionBackendClient) GetDetail(ctx context.Context, in *SessionRequest) (*domain.SessionDetail, error) {
	out := &domain.SessionDetail{}
	if err := c.invoke(ctx, methodGetDetail, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterSessionBackendServer exposes backend over gRPC. Errors leave as status codes.
func RegisterSessionBackendServer(server grpc.ServiceRegistrar, backend activityout.Backend) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*activityout.Backend)(nil),
		Methods: []grpc.MethodDesc{
			unary("Start", methodStart, func(ctx context.Context, in *StartRequest) (any, error) {
				res, err := backend.Start(ctx, activityout.StartRequest{
					StudentID:       in.StudentID,
					ActivityType:    domain.ActivityType(in.ActivityType),
					Mode:            domain.TrackingMode(in.Mode),
					InitialPosition: in.InitialPosition,
				})
				if err != nil {
					return nil, err
				}
				return &StartResponse{SessionID: res.SessionID, StartedAt: res.StartedAt}, nil
			}),
			unary("AddPointsBatch", methodAddPoints, func(ctx context.Context, in *PointsRequest) (any, error) {
				return &Empty{}, backend.AddPointsBatch(ctx, in.SessionID, in.Points)
			}),
			unary("Pause", methodPause, func(ctx context.Context, in *SessionRequest) (any, error) {
				return &Empty{}, backend.Pause(ctx, in.SessionID)
			}),
			unary("Resume", methodResume, func(ctx context.Context, in *SessionRequest) (any, error) {
				return &Empty{}, backend.Resume(ctx, in.SessionID)
			}),
			unary("Finish", methodFinish, func(ctx context.Context, in *FinishRequest) (any, error) {
				return &Empty{}, backend.Finish(ctx, activityout.FinishRequest{
					SessionID:      in.SessionID,
					ActiveSeconds:  in.ActiveSeconds,
					DistanceMeters: in.DistanceMeters,
					AvgSpeedKmh:    in.AvgSpeedKmh,
					MaxSpeedKmh:    in.MaxSpeedKmh,
					CaloriesBurned: in.CaloriesBurned,
					Extras:         in.Extras,
				})
			}),
			unary("Cancel", methodCancel, func(ctx context.Context, in *SessionRequest) (any, error) {
				return &Empty{}, backend.Cancel(ctx, in.SessionID)
			}),
			unary("GetInProgress", methodGetInProgress, func(ctx context.Context, in *StudentRequest) (any, error) {
				s, err := backend.GetInProgress(ctx, in.StudentID)
				if err != nil {
					return nil, err
				}
				return &s, nil
			}),
			unary("GetDetail", methodGetDetail, func(ctx context.Context, in *SessionRequest) (any, error) {
				d, err := backend.GetDetail(ctx, in.SessionID)
				if err != nil {
					return nil, err
				}
				return &d, nil
			}),
		},
		Metadata: "gymtrack/activity/v1",
	}, nil)
}

func unary[Req any](name, fullMethod string, call func(context.Context, *Req) (any, error)) grpc.MethodDesc {
	invoke := func(ctx context.Context, in *Req) (any, error) {
		out, err := call(ctx, in)
		if err != nil {
			return nil, ToStatus(err)
		}
		return out, nil
	}
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return invoke(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				typed, ok := req.(*Req)
				if !ok {
					return nil, fmt.Errorf("invalid request type %T", req)
				}
				return invoke(ctx, typed)
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
