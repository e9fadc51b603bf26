// Package rpc exposes the ledger operations as a Connect service named
// equalsplit.v1.LedgerService. Messages are plain structs carried as JSON.
package rpc

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/calculator"
	"github.com/mmynk/equalsplit/internal/middleware"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/service"
)

// ServiceName is the fully-qualified name of the ledger service.
const ServiceName = "equalsplit.v1.LedgerService"

// Procedure paths.
const (
	AddExpenseProcedure       = "/" + ServiceName + "/AddExpense"
	DeleteExpenseProcedure    = "/" + ServiceName + "/DeleteExpense"
	RecordSettlementProcedure = "/" + ServiceName + "/RecordSettlement"
	GetGroupSummaryProcedure  = "/" + ServiceName + "/GetGroupSummary"
)

// LedgerServer implements the Connect procedures on top of LedgerService.
type LedgerServer struct {
	ledger *service.LedgerService
}

// NewHandler builds an HTTP handler for every procedure. The returned path
// is the prefix to mount it under.
func NewHandler(ledger *service.LedgerService, opts ...connect.HandlerOption) (string, http.Handler) {
	s := &LedgerServer{ledger: ledger}
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(AddExpenseProcedure, connect.NewUnaryHandler(AddExpenseProcedure, s.AddExpense, opts...))
	mux.Handle(DeleteExpenseProcedure, connect.NewUnaryHandler(DeleteExpenseProcedure, s.DeleteExpense, opts...))
	mux.Handle(RecordSettlementProcedure, connect.NewUnaryHandler(RecordSettlementProcedure, s.RecordSettlement, opts...))
	mux.Handle(GetGroupSummaryProcedure, connect.NewUnaryHandler(GetGroupSummaryProcedure, s.GetGroupSummary,
		append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))...))

	return "/" + ServiceName + "/", mux
}

// AddExpense records an expense for the authenticated caller.
func (s *LedgerServer) AddExpense(ctx context.Context, req *connect.Request[AddExpenseRequest]) (*connect.Response[AddExpenseResponse], error) {
	msg := req.Msg
	entries := make([]calculator.SplitEntry, len(msg.Splits))
	for i, line := range msg.Splits {
		entries[i] = calculator.SplitEntry{
			UserID:     line.UserID,
			Amount:     line.Amount,
			Percentage: line.Percentage,
			Shares:     line.Shares,
		}
	}

	expense, err := s.ledger.AddExpense(ctx, service.AddExpenseRequest{
		GroupID:      msg.GroupID,
		Description:  msg.Description,
		Amount:       msg.Amount,
		PaidBy:       msg.PaidBy,
		SplitType:    models.SplitType(msg.SplitType),
		Participants: msg.Participants,
		Splits:       entries,
		Requester:    middleware.GetUserID(ctx),
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AddExpenseResponse{Expense: expense}), nil
}

// DeleteExpense removes an expense recorded by the caller.
func (s *LedgerServer) DeleteExpense(ctx context.Context, req *connect.Request[DeleteExpenseRequest]) (*connect.Response[DeleteExpenseResponse], error) {
	if err := s.ledger.DeleteExpense(ctx, req.Msg.ExpenseID, middleware.GetUserID(ctx)); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DeleteExpenseResponse{}), nil
}

// RecordSettlement records a payment between two members.
func (s *LedgerServer) RecordSettlement(ctx context.Context, req *connect.Request[RecordSettlementRequest]) (*connect.Response[RecordSettlementResponse], error) {
	settlement, err := s.ledger.RecordSettlement(ctx, service.RecordSettlementRequest{
		GroupID:   req.Msg.GroupID,
		FromUser:  req.Msg.FromUser,
		ToUser:    req.Msg.ToUser,
		Amount:    req.Msg.Amount,
		Note:      req.Msg.Note,
		Requester: middleware.GetUserID(ctx),
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RecordSettlementResponse{Settlement: settlement}), nil
}

// GetGroupSummary returns the group's ledger and balances.
func (s *LedgerServer) GetGroupSummary(ctx context.Context, req *connect.Request[GetGroupSummaryRequest]) (*connect.Response[GetGroupSummaryResponse], error) {
	summary, err := s.ledger.GetSummary(ctx, req.Msg.GroupID, middleware.GetUserID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetGroupSummaryResponse{Summary: summary}), nil
}

// toConnectError maps a service error to a Connect code. The apperr code
// travels in the "equalsplit-error-code" metadata.
func toConnectError(err error) *connect.Error {
	var code connect.Code
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		code = connect.CodeInvalidArgument
	case apperr.KindUnauthenticated:
		code = connect.CodeUnauthenticated
	case apperr.KindForbidden:
		code = connect.CodePermissionDenied
	case apperr.KindNotFound:
		code = connect.CodeNotFound
	case apperr.KindConflict:
		code = connect.CodeAborted
	default:
		if errors.Is(err, context.Canceled) {
			return connect.NewError(connect.CodeCanceled, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return connect.NewError(connect.CodeDeadlineExceeded, err)
		}
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}

	cerr := connect.NewError(code, err)
	cerr.Meta().Set(errorCodeHeader, apperr.CodeOf(err))
	return cerr
}

const errorCodeHeader = "equalsplit-error-code"

// ErrorCode returns the apperr code carried by a Connect error, or "".
func ErrorCode(err error) string {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr.Meta().Get(errorCodeHeader)
	}
	return ""
}
