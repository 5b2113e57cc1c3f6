package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/mentorslots/libs/config"
	"github.com/md-rashed-zaman/mentorslots/libs/grpcx"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/grpcserver"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, r grpcserver.SlotResolver) error {
	port, err := config.Port("GRPC_PORT", "9096")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv, health := grpcx.NewServer(logger)
	grpcserver.Register(srv, r, logger)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		health.Shutdown()
		srv.GracefulStop()
	}()

	return nil
}
