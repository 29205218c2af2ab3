// Package artifact はブレインストーミングで生成されたアイデアの参照・削除と、
// ゲスト所有からアカウント所有への付け替えを提供する。
//
// 認可は呼び出し元から渡されたPrincipalで判定する。Principalがnilの場合は未認証として扱う。
package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/ideaforge/internal/model"
	"github.com/hitoshi/ideaforge/internal/repository"
)

// Service はアイデアのサービス層。
type Service struct {
	artifacts  repository.ArtifactRepository
	reconciler *Reconciler
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(artifacts repository.ArtifactRepository, reconciler *Reconciler) *Service {
	return &Service{artifacts: artifacts, reconciler: reconciler}
}

// ResolveOwner はリクエストで指定された所有者とPrincipalから、実際の所有者を決定する。
// 所有者の指定がなく認証済みの場合はPrincipalのアカウントを所有者とする。
// 他人のaccountIdは管理者のみ指定でき、未認証でaccountIdを指定した場合はAUTH_REQUIREDを返す。
func (s *Service) ResolveOwner(principal *model.Principal, accountID *int64, guestToken string) (model.Owner, error) {
	guestToken = strings.TrimSpace(guestToken)

	if accountID != nil {
		if principal == nil {
			return model.Owner{}, model.NewAuthRequiredError()
		}
		if !principal.CanActFor(*accountID) {
			return model.Owner{}, model.NewForbiddenError()
		}
		id := *accountID
		return model.Owner{AccountID: &id}, nil
	}

	if guestToken == "" && principal != nil {
		id := principal.Account.ID
		return model.Owner{AccountID: &id}, nil
	}

	return model.Owner{GuestSessionToken: guestToken}, nil
}

// List は所有者のアイデアを新しい順に返す。
func (s *Service) List(ctx context.Context, principal *model.Principal, owner model.Owner) ([]*model.Artifact, error) {
	if err := authorizeOwner(principal, owner); err != nil {
		return nil, err
	}

	var (
		artifacts []*model.Artifact
		err       error
	)
	if owner.IsAccount() {
		artifacts, err = s.artifacts.ListByAccountID(ctx, *owner.AccountID)
	} else {
		artifacts, err = s.artifacts.ListByGuestToken(ctx, owner.GuestSessionToken)
	}
	if err != nil {
		return nil, fmt.Errorf("アイデア一覧の取得に失敗しました: %w", err)
	}
	if artifacts == nil {
		artifacts = []*model.Artifact{}
	}
	return artifacts, nil
}

// Count は所有者のアイデア件数を返す。
func (s *Service) Count(ctx context.Context, principal *model.Principal, owner model.Owner) (int, error) {
	if err := authorizeOwner(principal, owner); err != nil {
		return 0, err
	}

	var (
		n   int
		err error
	)
	if owner.IsAccount() {
		n, err = s.artifacts.CountByAccountID(ctx, *owner.AccountID)
	} else {
		n, err = s.artifacts.CountByGuestToken(ctx, owner.GuestSessionToken)
	}
	if err != nil {
		return 0, fmt.Errorf("アイデア件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// Get は指定IDのアイデアを返す。アカウント所有のアイデアは本人または管理者のみ参照できる。
func (s *Service) Get(ctx context.Context, principal *model.Principal, id int64) (*model.Artifact, error) {
	artifact, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if artifact.AccountID != nil {
		if principal == nil {
			return nil, model.NewAuthRequiredError()
		}
		if !principal.CanActFor(*artifact.AccountID) {
			return nil, model.NewForbiddenError()
		}
	}
	return artifact, nil
}

// Delete は指定IDのアイデアを削除する。
// ゲスト所有のアイデアは一致するゲストトークンの提示が必要。
func (s *Service) Delete(ctx context.Context, principal *model.Principal, id int64, guestToken string) error {
	artifact, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case artifact.AccountID != nil:
		if principal == nil {
			return model.NewAuthRequiredError()
		}
		if !principal.CanActFor(*artifact.AccountID) {
			return model.NewForbiddenError()
		}
	case artifact.GuestSessionToken != nil:
		if !principal.IsAdmin() && strings.TrimSpace(guestToken) != *artifact.GuestSessionToken {
			return model.NewForbiddenError()
		}
	}

	deleted, err := s.artifacts.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("アイデアの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("アイデア", id)
	}
	return nil
}

// LinkGuest はguestTokenのアイデアを認証済みPrincipalのアカウントへ付け替える。
func (s *Service) LinkGuest(ctx context.Context, principal *model.Principal, guestToken string) (int, error) {
	if principal == nil {
		return 0, model.NewAuthRequiredError()
	}
	return s.reconciler.Reconcile(ctx, guestToken, principal.Account.ID)
}

func (s *Service) find(ctx context.Context, id int64) (*model.Artifact, error) {
	artifact, err := s.artifacts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アイデアの取得に失敗しました: %w", err)
	}
	if artifact == nil {
		return nil, model.NewNotFoundError("アイデア", id)
	}
	return artifact, nil
}

// authorizeOwner は一覧・件数取得の所有者指定を検証する。
// アカウント指定は本人または管理者のみ、ゲストトークン指定は誰でも可。
func authorizeOwner(principal *model.Principal, owner model.Owner) error {
	if owner.IsEmpty() {
		return model.NewValidationError("accountId または guestSessionToken のいずれかを指定してください")
	}
	if owner.IsAccount() {
		if principal == nil {
			return model.NewAuthRequiredError()
		}
		if !principal.CanActFor(*owner.AccountID) {
			return model.NewForbiddenError()
		}
	}
	return nil
}
