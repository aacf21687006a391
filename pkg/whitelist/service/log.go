package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/treasury-api/pkg/whitelist"
)

const serviceName = "WhitelistService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the whitelist Service.
// It logs method completion, duration, and errors.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

// finish logs the outcome of one service call.
func (ls *logService) finish(method string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		ls.logger.Error(method+" failed", append(fields, zap.Error(err))...)
		return
	}
	ls.logger.Info(method+" completed", fields...)
}

func (ls *logService) Create(ctx context.Context, req CreateRequest) (w *whitelist.Whitelist, err error) {
	start := time.Now()
	defer func() {
		fields := []zap.Field{zap.String("name", req.Name), zap.String("scope", string(req.Scope.Kind))}
		if w != nil {
			fields = append(fields, zap.String("whitelist_id", w.ID))
		}
		ls.finish("Create", start, err, fields...)
	}()
	return ls.svc.Create(ctx, req)
}

func (ls *logService) Get(ctx context.Context, id string) (*whitelist.Whitelist, error) {
	// Reads are high volume and logged by the HTTP layer; no decoration here.
	return ls.svc.Get(ctx, id)
}

func (ls *logService) List(ctx context.Context, filter ListFilter) ([]*whitelist.Whitelist, error) {
	return ls.svc.List(ctx, filter)
}

func (ls *logService) GetVersion(ctx context.Context, id string, number int) (*whitelist.Version, error) {
	return ls.svc.GetVersion(ctx, id, number)
}

func (ls *logService) AddEntry(ctx context.Context, id string, req AddEntryRequest) (w *whitelist.Whitelist, err error) {
	start := time.Now()
	defer func() {
		ls.finish("AddEntry", start, err,
			zap.String("whitelist_id", id),
			zap.String("address", req.Address),
			zap.String("chain", req.Chain),
		)
	}()
	return ls.svc.AddEntry(ctx, id, req)
}

func (ls *logService) RemoveEntry(ctx context.Context, id, entryID string) (w *whitelist.Whitelist, err error) {
	start := time.Now()
	defer func() {
		ls.finish("RemoveEntry", start, err,
			zap.String("whitelist_id", id),
			zap.String("entry_id", entryID),
		)
	}()
	return ls.svc.RemoveEntry(ctx, id, entryID)
}

func (ls *logService) UpdateEntryLabel(ctx context.Context, id, entryID, label string) (w *whitelist.Whitelist, err error) {
	start := time.Now()
	defer func() {
		ls.finish("UpdateEntryLabel", start, err,
			zap.String("whitelist_id", id),
			zap.String("entry_id", entryID),
		)
	}()
	return ls.svc.UpdateEntryLabel(ctx, id, entryID, label)
}

func (ls *logService) UpdateName(ctx context.Context, id, name string) (w *whitelist.Whitelist, err error) {
	start := time.Now()
	defer func() {
		ls.finish("UpdateName", start, err, zap.String("whitelist_id", id))
	}()
	return ls.svc.UpdateName(ctx, id, name)
}

func (ls *logService) UpdateDescription(ctx context.Context, id, description string) (w *whitelist.Whitelist, err error) {
	start := time.Now()
	defer func() {
		ls.finish("UpdateDescription", start, err, zap.String("whitelist_id", id))
	}()
	return ls.svc.UpdateDescription(ctx, id, description)
}

func (ls *logService) SubmitForApproval(ctx context.Context, id string, versionNumber, requiredApprovals int) (w *whitelist.Whitelist, err error) {
	start := time.Now()
	defer func() {
		ls.finish("SubmitForApproval", start, err,
			zap.String("whitelist_id", id),
			zap.Int("version", versionNumber),
			zap.Int("required_approvals", requiredApprovals),
		)
	}()
	return ls.svc.SubmitForApproval(ctx, id, versionNumber, requiredApprovals)
}

func (ls *logService) Approve(ctx context.Context, id string, versionNumber int) (w *whitelist.Whitelist, err error) {
	start := time.Now()
	defer func() {
		fields := []zap.Field{zap.String("whitelist_id", id), zap.Int("version", versionNumber)}
		if w != nil {
			fields = append(fields, zap.String("status", string(w.Status)))
		}
		ls.finish("Approve", start, err, fields...)
	}()
	return ls.svc.Approve(ctx, id, versionNumber)
}

func (ls *logService) Revoke(ctx context.Context, id, reason string) (w *whitelist.Whitelist, err error) {
	start := time.Now()
	defer func() {
		ls.finish("Revoke", start, err,
			zap.String("whitelist_id", id),
			zap.String("reason", reason),
		)
	}()
	return ls.svc.Revoke(ctx, id, reason)
}

func (ls *logService) OpenDraft(ctx context.Context, id, comment string) (w *whitelist.Whitelist, err error) {
	start := time.Now()
	defer func() {
		fields := []zap.Field{zap.String("whitelist_id", id)}
		if w != nil {
			fields = append(fields, zap.Int("draft_version", w.DraftVersion))
		}
		ls.finish("OpenDraft", start, err, fields...)
	}()
	return ls.svc.OpenDraft(ctx, id, comment)
}

func (ls *logService) SweepExpired(ctx context.Context, now time.Time) (expired int, err error) {
	start := time.Now()
	defer func() {
		ls.finish("SweepExpired", start, err, zap.Int("expired", expired))
	}()
	return ls.svc.SweepExpired(ctx, now)
}
