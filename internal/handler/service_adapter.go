package handler

import (
	"context"

	"github.com/hitoshi/ideaforge/internal/brainstorm"
	"github.com/hitoshi/ideaforge/internal/model"
)

// OwnerResolver はリクエストの所有者指定とPrincipalから実際の所有者を決定する。
type OwnerResolver interface {
	ResolveOwner(principal *model.Principal, accountID *int64, guestToken string) (model.Owner, error)
}

// BrainstormRunner はブレインストーミングのプロトコルを実行する。
type BrainstormRunner interface {
	Run(ctx context.Context, req brainstorm.Request) (*brainstorm.Result, error)
}

// BrainstormServiceAdapter は所有者の決定とbrainstorm.Orchestratorの実行を
// BrainstormServiceInterfaceに適合させるアダプタ。
type BrainstormServiceAdapter struct {
	owners OwnerResolver
	runner BrainstormRunner
}

// NewBrainstormServiceAdapter はBrainstormServiceAdapterを生成する。
func NewBrainstormServiceAdapter(owners OwnerResolver, runner BrainstormRunner) *BrainstormServiceAdapter {
	return &BrainstormServiceAdapter{owners: owners, runner: runner}
}

// Brainstorm は所有者を決定し、プロトコルを実行してhandlerの出力型で返す。
func (a *BrainstormServiceAdapter) Brainstorm(ctx context.Context, principal *model.Principal, in BrainstormInput) (*BrainstormOutput, error) {
	owner, err := a.owners.ResolveOwner(principal, in.AccountID, in.GuestSessionToken)
	if err != nil {
		return nil, err
	}

	result, err := a.runner.Run(ctx, brainstorm.Request{
		Purpose:      in.Purpose,
		Associations: in.Associations,
		Owner:        owner,
	})
	if err != nil {
		return nil, err
	}

	return &BrainstormOutput{
		SessionID: result.SessionID,
		Message:   result.Message,
		Ideas:     result.Artifacts,
	}, nil
}
