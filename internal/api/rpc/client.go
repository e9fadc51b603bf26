package rpc

import (
	"context"

	"connectrpc.com/connect"
)

// LedgerClient calls a remote equalsplit.v1.LedgerService.
type LedgerClient struct {
	addExpense       *connect.Client[AddExpenseRequest, AddExpenseResponse]
	deleteExpense    *connect.Client[DeleteExpenseRequest, DeleteExpenseResponse]
	recordSettlement *connect.Client[RecordSettlementRequest, RecordSettlementResponse]
	getGroupSummary  *connect.Client[GetGroupSummaryRequest, GetGroupSummaryResponse]
}

// NewLedgerClient creates a client for the service at baseURL.
func NewLedgerClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *LedgerClient {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &LedgerClient{
		addExpense:       connect.NewClient[AddExpenseRequest, AddExpenseResponse](httpClient, baseURL+AddExpenseProcedure, opts...),
		deleteExpense:    connect.NewClient[DeleteExpenseRequest, DeleteExpenseResponse](httpClient, baseURL+DeleteExpenseProcedure, opts...),
		recordSettlement: connect.NewClient[RecordSettlementRequest, RecordSettlementResponse](httpClient, baseURL+RecordSettlementProcedure, opts...),
		getGroupSummary:  connect.NewClient[GetGroupSummaryRequest, GetGroupSummaryResponse](httpClient, baseURL+GetGroupSummaryProcedure, opts...),
	}
}

func (c *LedgerClient) AddExpense(ctx context.Context, req *connect.Request[AddExpenseRequest]) (*connect.Response[AddExpenseResponse], error) {
	return c.addExpense.CallUnary(ctx, req)
}

func (c *LedgerClient) DeleteExpense(ctx context.Context, req *connect.Request[DeleteExpenseRequest]) (*connect.Response[DeleteExpenseResponse], error) {
	return c.deleteExpense.CallUnary(ctx, req)
}

func (c *LedgerClient) RecordSettlement(ctx context.Context, req *connect.Request[RecordSettlementRequest]) (*connect.Response[RecordSettlementResponse], error) {
	return c.recordSettlement.CallUnary(ctx, req)
}

func (c *LedgerClient) GetGroupSummary(ctx context.Context, req *connect.Request[GetGroupSummaryRequest]) (*connect.Response[GetGroupSummaryResponse], error) {
	return c.getGroupSummary.CallUnary(ctx, req)
}
