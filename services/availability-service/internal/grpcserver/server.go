// Package grpcserver exposes slot resolution as availability.v1.AvailabilityService. Requests and
// responses are google.protobuf.Struct values so internal callers need no generated stubs.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/resolver"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "availability.v1.AvailabilityService"

type SlotResolver interface {
	Resolve(ctx context.Context, req resolver.Request) (resolver.Response, error)
	ValidateSlot(ctx context.Context, mentorID string, start, end time.Time) error
}

// AvailabilityServer is the server side of availability.v1.AvailabilityService.
type AvailabilityServer interface {
	GenerateSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ValidateSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type server struct {
	resolver SlotResolver
	logger   *slog.Logger
}

func Register(grpcServer *grpc.Server, r SlotResolver, logger *slog.Logger) {
	grpcServer.RegisterService(&serviceDesc, &server{resolver: r, logger: logger})
}

func (s *server) GenerateSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	r := resolver.Request{
		MentorID:           strings.TrimSpace(f["mentor_id"].GetStringValue()),
		DurationMinutes:    int(f["duration_minutes"].GetNumberValue()),
		HorizonDays:        int(f["horizon_days"].GetNumberValue()),
		ViewerTimezone:     strings.TrimSpace(f["viewer_timezone"].GetStringValue()),
		IncludeUnavailable: f["include_unavailable"].GetBoolValue(),
	}
	if r.MentorID == "" {
		return nil, status.Error(codes.InvalidArgument, "mentor_id is required")
	}

	resp, err := s.resolver.Resolve(ctx, r)
	if err != nil {
		return nil, s.toStatus(r.MentorID, err)
	}

	slots := make([]any, 0, len(resp.Slots))
	for _, sl := range resp.Slots {
		slots = append(slots, slotValue(sl))
	}
	calendar := make([]any, 0, len(resp.Calendar))
	for _, c := range resp.Calendar {
		item := map[string]any{
			"account_id":   c.AccountID,
			"provider":     c.Provider,
			"sync_enabled": c.SyncEnabled,
			"stale":        c.Stale,
		}
		if c.LastSyncedAt != nil {
			item["last_synced_at"] = c.LastSyncedAt.UTC().Format(time.RFC3339)
		}
		calendar = append(calendar, item)
	}
	out, err := structpb.NewStruct(map[string]any{
		"mentor_id":       resp.MentorID,
		"mentor_timezone": resp.MentorTimezone,
		"viewer_timezone": resp.ViewerTimezone,
		"generated_at":    resp.GeneratedAt.UTC().Format(time.RFC3339),
		"slots":           slots,
		"calendar":        calendar,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func slotValue(s availability.LabeledSlot) map[string]any {
	return map[string]any{
		"start_time":   s.Start.UTC().Format(time.RFC3339),
		"end_time":     s.End.UTC().Format(time.RFC3339),
		"available":    s.Available,
		"origin":       string(s.Origin),
		"viewer_label": s.Viewer.Text,
		"mentor_label": s.Mentor.Text,
	}
}

func (s *server) ValidateSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	mentorID := strings.TrimSpace(f["mentor_id"].GetStringValue())
	if mentorID == "" {
		return nil, status.Error(codes.InvalidArgument, "mentor_id is required")
	}
	start, err := time.Parse(time.RFC3339, f["start_time"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid start_time")
	}
	end, err := time.Parse(time.RFC3339, f["end_time"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid end_time")
	}

	err = s.resolver.ValidateSlot(ctx, mentorID, start, end)
	switch {
	case err == nil:
		return structpb.NewStruct(map[string]any{"available": true})
	case errors.Is(err, resolver.ErrSlotUnavailable):
		return structpb.NewStruct(map[string]any{"available": false})
	default:
		return nil, s.toStatus(mentorID, err)
	}
}

func (s *server) toStatus(mentorID string, err error) error {
	switch {
	case errors.Is(err, availability.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, resolver.ErrUpstream):
		s.logger.Error("slot resolution upstream failure", "mentor_id", mentorID, "err", err)
		return status.Error(codes.Unavailable, "availability unknown")
	default:
		s.logger.Error("slot resolution failed", "mentor_id", mentorID, "err", err)
		return status.Error(codes.Internal, "availability unknown")
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GenerateSlots", Handler: unaryHandler("GenerateSlots", AvailabilityServer.GenerateSlots)},
		{MethodName: "ValidateSlot", Handler: unaryHandler("ValidateSlot", AvailabilityServer.ValidateSlot)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "availability/v1/availability.proto",
}

type structMethod func(AvailabilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call structMethod) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AvailabilityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
