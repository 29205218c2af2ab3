package brainstorm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/ideaforge/internal/model"
)

// プロトコルの各ステップ名。エラーとメトリクスのラベルに使う。
const (
	StepCreateSession      = "create_session"
	StepSubmitPurpose      = "submit_purpose"
	StepFetchWarmup        = "fetch_warmup"
	StepConfirmWarmup      = "confirm_warmup"
	StepSubmitAssociations = "submit_associations"
	StepFetchIdeas         = "fetch_ideas"
	StepPersistArtifacts   = "persist_artifacts"
	StepTeardown           = "teardown"
)

// completionMessageFormat は完了時にユーザーへ返すメッセージ。
const completionMessageFormat = "ブレインストーミングが完了しました。%d件のアイデアが生成されました。"

// Engine はリモートのブレインストーミングプロトコルを抽象化する。*Clientが実装する。
type Engine interface {
	CreateSession(ctx context.Context) (string, error)
	SubmitPurpose(ctx context.Context, sessionID, purpose string) error
	FetchWarmup(ctx context.Context, sessionID string) ([]string, error)
	ConfirmWarmup(ctx context.Context, sessionID string) error
	SubmitAssociations(ctx context.Context, sessionID string, associations []string) error
	FetchIdeas(ctx context.Context, sessionID string) ([]Idea, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// ArtifactStore は生成されたアイデアの保存先。
type ArtifactStore interface {
	Create(ctx context.Context, artifact *model.Artifact) error
}

// Sanitizer はエンジンが返したテキストからマークアップを取り除く。
type Sanitizer interface {
	SanitizeText(raw string) string
}

// RunRecorder はオーケストレーションの結果を記録する。
type RunRecorder interface {
	RecordBrainstormRun(outcome string, duration time.Duration)
	RecordBrainstormStepFailure(step string)
	RecordIdeasPersisted(count int)
}

// Request はブレインストーミング1回分の入力。
type Request struct {
	Purpose      string
	Associations []string
	Owner        model.Owner
}

// Result はブレインストーミング1回分の出力。
type Result struct {
	SessionID string
	Message   string
	Artifacts []*model.Artifact
}

// Timeouts はオーケストレーションの時間制限。0の項目は無制限として扱う。
type Timeouts struct {
	// Run はステップ1〜7全体の期限。
	Run time.Duration
	// Teardown はセッション破棄の期限。呼び出し元のキャンセルとは独立に適用される。
	Teardown time.Duration
}

// Orchestrator はリモートセッションの開始から破棄までを1回の呼び出しで実行する。
// 実行ごとの状態は持たないため、複数のゴルーチンから同時に利用できる。
type Orchestrator struct {
	engine    Engine
	store     ArtifactStore
	sanitizer Sanitizer
	recorder  RunRecorder
	timeouts  Timeouts
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewOrchestrator(engine Engine, store ArtifactStore, sanitizer Sanitizer, recorder RunRecorder, timeouts Timeouts, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		engine:    engine,
		store:     store,
		sanitizer: sanitizer,
		recorder:  recorder,
		timeouts:  timeouts,
		logger:    logger,
		now:       time.Now,
	}
}

// Run はプロトコルを順に実行し、生成されたアイデアを所有者付きで保存する。
// ステップ1〜7のいずれかが失敗した場合はREMOTE_PROTOCOL_FAILUREを返し、部分的な結果は返さない。
// セッション破棄の失敗はログに記録するだけで結果には影響しない。
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Owner.IsEmpty() {
		return nil, model.NewOwnershipRequiredError()
	}
	owner := req.Owner
	if owner.IsAccount() {
		owner.GuestSessionToken = ""
	}

	started := o.now()
	runCtx := ctx
	if o.timeouts.Run > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.timeouts.Run)
		defer cancel()
	}

	// 1. リモートセッションを開始する
	sessionID, err := o.engine.CreateSession(runCtx)
	if err != nil {
		return nil, o.fail(started, "", StepCreateSession, err)
	}
	logger := o.logger.With(slog.String("session_id", sessionID))
	logger.Info("ブレインストーミングセッションを開始しました")

	artifacts, err := o.converse(runCtx, started, sessionID, req, owner)
	// 8. セッションを破棄する（失敗時も同様に試みる）
	o.teardown(ctx, logger, sessionID)
	if err != nil {
		return nil, err
	}

	if o.recorder != nil {
		o.recorder.RecordBrainstormRun("success", o.now().Sub(started))
		o.recorder.RecordIdeasPersisted(len(artifacts))
	}
	logger.Info("ブレインストーミングが完了しました", slog.Int("idea_count", len(artifacts)))

	// 9. 結果を返す
	return &Result{
		SessionID: sessionID,
		Message:   fmt.Sprintf(completionMessageFormat, len(artifacts)),
		Artifacts: artifacts,
	}, nil
}

// converse はステップ2〜7を実行する。
func (o *Orchestrator) converse(ctx context.Context, started time.Time, sessionID string, req Request, owner model.Owner) ([]*model.Artifact, error) {
	// 2. 目的を送信する
	if err := o.engine.SubmitPurpose(ctx, sessionID, req.Purpose); err != nil {
		return nil, o.fail(started, sessionID, StepSubmitPurpose, err)
	}

	// 3. ウォームアップ質問を取得する（内容は使わないがエンジンの状態遷移に必要）
	if _, err := o.engine.FetchWarmup(ctx, sessionID); err != nil {
		return nil, o.fail(started, sessionID, StepFetchWarmup, err)
	}

	// 4. ウォームアップを確定する
	if err := o.engine.ConfirmWarmup(ctx, sessionID); err != nil {
		return nil, o.fail(started, sessionID, StepConfirmWarmup, err)
	}

	// 5. 連想キーワードを送信する
	if err := o.engine.SubmitAssociations(ctx, sessionID, req.Associations); err != nil {
		return nil, o.fail(started, sessionID, StepSubmitAssociations, err)
	}

	// 6. 生成されたアイデアを取得する
	ideas, err := o.engine.FetchIdeas(ctx, sessionID)
	if err != nil {
		return nil, o.fail(started, sessionID, StepFetchIdeas, err)
	}

	// 7. アイデアを所有者付きで保存する
	artifacts := make([]*model.Artifact, 0, len(ideas))
	for _, idea := range ideas {
		artifact := o.newArtifact(idea, owner, sessionID)
		if err := o.store.Create(ctx, artifact); err != nil {
			return nil, o.fail(started, sessionID, StepPersistArtifacts, err)
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// newArtifact はエンジンのアイデアから保存用のArtifactを組み立てる。
// 本文は説明と分析を空行で区切って連結する。
func (o *Orchestrator) newArtifact(idea Idea, owner model.Owner, sessionID string) *model.Artifact {
	description := o.sanitize(idea.Description)
	analysis := o.sanitize(idea.Analysis)

	artifact := &model.Artifact{
		Title:           o.sanitize(idea.Title),
		Body:            strings.TrimSpace(description + "\n\n" + analysis),
		Purpose:         model.GeneratedPurposeMarker,
		SourceSessionID: sessionID,
	}
	if owner.IsAccount() {
		id := *owner.AccountID
		artifact.AccountID = &id
	} else {
		token := owner.GuestSessionToken
		artifact.GuestSessionToken = &token
	}
	return artifact
}

func (o *Orchestrator) sanitize(s string) string {
	if o.sanitizer == nil {
		return s
	}
	return o.sanitizer.SanitizeText(s)
}

// teardown はセッションをベストエフォートで破棄する。
// 呼び出し元のコンテキストがキャンセル済みでも実行されるよう、キャンセルを切り離す。
func (o *Orchestrator) teardown(ctx context.Context, logger *slog.Logger, sessionID string) {
	teardownCtx := context.WithoutCancel(ctx)
	if o.timeouts.Teardown > 0 {
		var cancel context.CancelFunc
		teardownCtx, cancel = context.WithTimeout(teardownCtx, o.timeouts.Teardown)
		defer cancel()
	}

	if err := o.engine.DeleteSession(teardownCtx, sessionID); err != nil {
		if o.recorder != nil {
			o.recorder.RecordBrainstormStepFailure(StepTeardown)
		}
		logger.Warn("ブレインストーミングセッションの破棄に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// fail はステップ失敗をログとメトリクスに記録し、REMOTE_PROTOCOL_FAILUREに変換する。
func (o *Orchestrator) fail(started time.Time, sessionID, step string, err error) error {
	o.logger.Error("ブレインストーミングのステップが失敗しました",
		slog.String("session_id", sessionID),
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
	if o.recorder != nil {
		o.recorder.RecordBrainstormStepFailure(step)
		o.recorder.RecordBrainstormRun("failure", o.now().Sub(started))
	}
	return model.NewRemoteProtocolFailureError(step, err)
}
