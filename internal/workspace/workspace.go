// Package workspace はブラウザごとに1つ持つ作業領域を提供する。
// 作業領域はバックエンドのクライアント、各ストア、取得キャッシュ、
// 絞り込み状態、セッションのカウントダウンをまとめて所有する。
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/markboard/internal/api"
	"github.com/hitoshi/markboard/internal/auth"
	"github.com/hitoshi/markboard/internal/filter"
	"github.com/hitoshi/markboard/internal/model"
	"github.com/hitoshi/markboard/internal/query"
	"github.com/hitoshi/markboard/internal/session"
	"github.com/hitoshi/markboard/internal/store"
	"github.com/hitoshi/markboard/internal/upload"
)

// StudentsPath は生徒一覧画面のパス。絞り込み状態はこのURLのクエリに保持する。
const StudentsPath = "/students"

// キャッシュのエンドポイント名。
const (
	EndpointStudents = "students"
	EndpointStudent  = "student"
	EndpointReport   = "report"
)

// セッション終了が近いときの通知文。
const (
	WarningTitle = "Сессия скоро завершится"
	WarningBody  = "Продлите работу, чтобы не потерять данные."
)

// Recorder はワークスペースで発生するメトリクスの記録先。
type Recorder interface {
	api.Recorder
	query.Recorder
	upload.Recorder
	RecordSessionWarning()
}

// Config はワークスペースの生成設定。
// StaleTimeが0の場合はquery.DefaultStaleTimeを使い、負の場合は再表示のたびに取得する。
type Config struct {
	API              api.Config
	GCTime           time.Duration
	StaleTime        time.Duration
	Debounce         time.Duration
	WarningThreshold int
}

// Notice は画面上部に一度だけ表示する通知。
type Notice struct {
	Title string
	Body  string
}

// Workspace は1つのブラウザに対応する作業領域。
type Workspace struct {
	ID string

	Client    *api.Client
	Auth      *store.AuthStore
	Sessions  *store.SessionStore
	Selectors *store.SelectorsStore
	Cache     *query.Cache
	Students  *query.View[*model.StudentList]
	Location  *filter.URLLocation
	Filters   *filter.State
	Search    *filter.SearchInput
	Countdown *session.Countdown
	Accounts  *auth.Service
	Uploads   *upload.Service

	logger   *slog.Logger
	recorder Recorder
	closed   atomic.Bool
	lastSeen atomic.Int64

	mu      sync.Mutex
	notices []Notice
}

// New はWorkspaceを生成する。recorderはnil可。
func New(cfg Config, recorder Recorder, logger *slog.Logger, opts ...api.Option) (*Workspace, error) {
	id := uuid.New().String()
	logger = logger.With(slog.String("workspace_id", id))

	if recorder != nil {
		opts = append(opts, api.WithRecorder(recorder))
	}
	client, err := api.NewClient(cfg.API, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	loc, err := filter.NewURLLocation(StudentsPath)
	if err != nil {
		return nil, err
	}

	w := &Workspace{
		ID:        id,
		Client:    client,
		Auth:      store.NewAuthStore(),
		Sessions:  store.NewSessionStore(),
		Selectors: store.NewSelectorsStore(time.Now()),
		Location:  loc,
		logger:    logger,
		recorder:  recorder,
	}
	w.Touch(time.Now())

	staleTime := cfg.StaleTime
	if staleTime == 0 {
		staleTime = query.DefaultStaleTime
	}
	cacheOpts := []query.Option{
		query.WithGCTime(cfg.GCTime),
		query.WithStaleTime(staleTime),
		query.WithOnError(w.onQueryError),
		query.WithLogger(logger),
	}
	if recorder != nil {
		cacheOpts = append(cacheOpts, query.WithRecorder(recorder))
	}
	w.Cache = query.New(cacheOpts...)
	w.Students = query.NewView[*model.StudentList](w.Cache)

	w.Filters = filter.NewState(loc)
	w.Search = filter.NewSearchInput(w.Filters, cfg.Debounce, filter.WithOnCommit(func(value string) {
		w.logger.Debug("search committed", slog.String("q", value))
	}))

	countdownOpts := []session.Option{}
	if cfg.WarningThreshold > 0 {
		countdownOpts = append(countdownOpts, session.WithThreshold(cfg.WarningThreshold))
	}
	w.Countdown = session.NewCountdown(w.onSessionWarning, countdownOpts...)
	w.Sessions.OnChange(func(st store.SessionState) {
		if st.Active {
			w.Countdown.Set(st.ExpiresInSec)
			return
		}
		w.Countdown.Clear()
	})

	w.Accounts = auth.NewService(client, w.Auth, w.Sessions, logger)
	var uploadRecorder upload.Recorder
	if recorder != nil {
		uploadRecorder = recorder
	}
	w.Uploads = upload.NewService(client, w.Sessions, w.Cache, uploadRecorder, logger)

	return w, nil
}

// Alive はワークスペースが破棄されていないかを返す。
func (w *Workspace) Alive() bool {
	return !w.closed.Load()
}

// Touch は最終アクセス時刻を更新する。
func (w *Workspace) Touch(now time.Time) {
	w.lastSeen.Store(now.UnixNano())
}

// LastSeen は最終アクセス時刻を返す。
func (w *Workspace) LastSeen() time.Time {
	return time.Unix(0, w.lastSeen.Load())
}

// Logger はワークスペースIDを含むロガーを返す。
func (w *Workspace) Logger() *slog.Logger {
	return w.logger
}

// PushNotice は通知を追加する。
func (w *Workspace) PushNotice(n Notice) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notices = append(w.notices, n)
}

// TakeNotices は未表示の通知を取り出す。取り出した通知は再び返さない。
func (w *Workspace) TakeNotices() []Notice {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.notices
	w.notices = nil
	return n
}

// MarkUnauthorized は認証切れを反映する。ログイン中だった場合のみユーザーと
// セッションを破棄してtrueを返すため、同時に複数の401を受けても処理は1回になる。
func (w *Workspace) MarkUnauthorized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.Auth.Authenticated() {
		return false
	}
	w.Auth.Clear()
	w.Sessions.Clear()
	w.logger.Info("session expired, redirecting to login")
	return true
}

// Bootstrap は保護ページの表示前にログイン状態を確認する。
func (w *Workspace) Bootstrap(ctx context.Context) bool {
	return w.Accounts.Bootstrap(ctx, w.Alive)
}

// StudentsKey は現在の絞り込み状態から生徒一覧のキャッシュキーを導出する。
func (w *Workspace) StudentsKey() query.Key {
	return studentsKey(w.Filters.Filter())
}

func studentsKey(f model.StudentFilter) query.Key {
	return query.NewKey(EndpointStudents, f.Values())
}

// LoadStudents は現在の絞り込み条件で生徒一覧を取得し、ビューの状態を返す。
func (w *Workspace) LoadStudents(ctx context.Context) query.ViewState[*model.StudentList] {
	return w.LoadStudentsFor(ctx, w.Filters.Filter())
}

// LoadStudentsFor はfの条件で生徒一覧を取得し、その条件の状態を返す。
// 取得中に表示が別の条件へ切り替わった場合、結果はビューに反映せず呼び出し元にだけ返す。
func (w *Workspace) LoadStudentsFor(ctx context.Context, f model.StudentFilter) query.ViewState[*model.StudentList] {
	key := studentsKey(f)
	ticket := w.Students.Begin(key)

	list, err := query.Get(ctx, w.Cache, key, func(ctx context.Context) (*model.StudentList, error) {
		return w.Client.ListStudents(ctx, f)
	})
	w.Students.Commit(ticket, list, err)

	if cur := w.Students.Current(); cur.Key == key && cur.Status != query.StatusLoading {
		return cur
	}
	w.logger.Debug("students view moved on, returning own result", slog.String("key", key.String()))
	if err != nil {
		return query.ViewState[*model.StudentList]{Key: key, Status: query.StatusError, Err: err}
	}
	return query.ViewState[*model.StudentList]{Key: key, Status: query.StatusSuccess, Data: list}
}

// LoadedStudents はfの条件で読み込み済みの生徒一覧を返す。
// キャッシュに成功結果がない場合だけバックエンドから取得する。
func (w *Workspace) LoadedStudents(ctx context.Context, f model.StudentFilter) (*model.StudentList, error) {
	if res, ok := w.Cache.Peek(studentsKey(f)); ok && res.Status == query.StatusSuccess {
		if list, ok := res.Data.(*model.StudentList); ok {
			return list, nil
		}
	}
	state := w.LoadStudentsFor(ctx, f)
	return state.Data, state.Err
}

// Student は生徒の詳細を取得する。
func (w *Workspace) Student(ctx context.Context, id string) (*model.StudentDetail, error) {
	key := query.NewKey(EndpointStudent, url.Values{"id": {id}})
	return query.Get(ctx, w.Cache, key, func(ctx context.Context) (*model.StudentDetail, error) {
		return w.Client.GetStudent(ctx, id)
	})
}

// AllStudents は絞り込みなしの生徒一覧を取得する。一覧画面と同じキャッシュを共有する。
func (w *Workspace) AllStudents(ctx context.Context) (*model.StudentList, error) {
	key := studentsKey(model.StudentFilter{})
	return query.Get(ctx, w.Cache, key, func(ctx context.Context) (*model.StudentList, error) {
		return w.Client.ListStudents(ctx, model.StudentFilter{})
	})
}

// Report は選択中のクラスと四半期のレポートを取得する。
func (w *Workspace) Report(ctx context.Context) (*model.ReportSummary, model.ReportFilter, error) {
	f := w.Selectors.Get().ReportFilter()
	key := query.NewKey(EndpointReport, f.Values())
	report, err := query.Get(ctx, w.Cache, key, func(ctx context.Context) (*model.ReportSummary, error) {
		return w.Client.CurrentReport(ctx, f)
	})
	return report, f, err
}

// Close はワークスペースを破棄する。以降の取得結果は反映されない。
func (w *Workspace) Close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.Search.Close()
	w.Students.Close()
	w.Countdown.Clear()
	w.Cache.Close()
	w.logger.Info("workspace closed")
}

func (w *Workspace) onQueryError(key query.Key, err error) {
	if api.IsUnauthorized(err) {
		w.MarkUnauthorized()
		return
	}
	w.logger.Warn("query failed",
		slog.String("key", key.String()),
		slog.String("error", err.Error()),
	)
}

func (w *Workspace) onSessionWarning(remaining int) {
	w.PushNotice(Notice{Title: WarningTitle, Body: WarningBody})
	if w.recorder != nil {
		w.recorder.RecordSessionWarning()
	}
	w.logger.Warn("upload session is about to expire", slog.Int("remaining_sec", remaining))
}
