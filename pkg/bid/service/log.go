package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const serviceName = "BidService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the bid Service.
// It logs method exit, duration, workflow id, resulting state and errors.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) done(method, id string, start time.Time, view *View, err error) {
	fields := []zap.Field{
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)),
	}
	if id == "" && view != nil {
		id = view.ID
	}
	if id != "" {
		fields = append(fields, zap.String("workflow_id", id))
	}

	if err != nil {
		ls.logger.Error(method+" failed", append(fields, zap.Error(err))...)
		return
	}
	if view != nil {
		fields = append(fields,
			zap.Stringer("state", view.Status.State),
			zap.Stringer("affordance", view.Affordance))
	}
	ls.logger.Info(method+" completed", fields...)
}

// Open wraps the service method with logging
func (ls *logService) Open(ctx context.Context, req *OpenRequest) (view *View, err error) {
	start := time.Now()
	defer func() { ls.done("Open", "", start, view, err) }()
	return ls.svc.Open(ctx, req)
}

// Get is not logged; clients poll it while transactions confirm.
func (ls *logService) Get(ctx context.Context, id string) (*View, error) {
	return ls.svc.Get(ctx, id)
}

// SetAmount wraps the service method with logging
func (ls *logService) SetAmount(ctx context.Context, id, raw string) (view *View, err error) {
	start := time.Now()
	defer func() { ls.done("SetAmount", id, start, view, err) }()
	return ls.svc.SetAmount(ctx, id, raw)
}

// CommitAmount wraps the service method with logging
func (ls *logService) CommitAmount(ctx context.Context, id string) (view *View, err error) {
	start := time.Now()
	defer func() { ls.done("CommitAmount", id, start, view, err) }()
	return ls.svc.CommitAmount(ctx, id)
}

// RequestWallet wraps the service method with logging
func (ls *logService) RequestWallet(ctx context.Context, id string) (view *View, err error) {
	start := time.Now()
	defer func() { ls.done("RequestWallet", id, start, view, err) }()
	return ls.svc.RequestWallet(ctx, id)
}

// Approve wraps the service method with logging
func (ls *logService) Approve(ctx context.Context, id string) (view *View, err error) {
	start := time.Now()
	defer func() { ls.done("Approve", id, start, view, err) }()
	return ls.svc.Approve(ctx, id)
}

// SubmitBid wraps the service method with logging
func (ls *logService) SubmitBid(ctx context.Context, id string) (view *View, err error) {
	start := time.Now()
	defer func() { ls.done("SubmitBid", id, start, view, err) }()
	return ls.svc.SubmitBid(ctx, id)
}

// Close wraps the service method with logging
func (ls *logService) Close(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { ls.done("Close", id, start, nil, err) }()
	return ls.svc.Close(ctx, id)
}

// ConnectWallet wraps the service method with logging
func (ls *logService) ConnectWallet(ctx context.Context) (st *WalletStatus, err error) {
	start := time.Now()
	defer func() { ls.done("ConnectWallet", "", start, nil, err) }()
	return ls.svc.ConnectWallet(ctx)
}

// DisconnectWallet wraps the service method with logging
func (ls *logService) DisconnectWallet(ctx context.Context) (st *WalletStatus, err error) {
	start := time.Now()
	defer func() { ls.done("DisconnectWallet", "", start, nil, err) }()
	return ls.svc.DisconnectWallet(ctx)
}
