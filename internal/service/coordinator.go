package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/liliang-cn/ragproxy/internal/domain"
	"github.com/liliang-cn/ragproxy/internal/observability"
	"go.uber.org/zap"
)

// Subtask names, also used as metric labels.
const (
	TaskImage     = "image_processing"
	TaskRetrieval = "retrieval"
	TaskWebSearch = "web_search"
)

// State is the coordinator's request-scoped lifecycle position.
type State string

const (
	StateInit       State = "init"
	StateRunning    State = "running"
	StateJoined     State = "joined"
	StateTimedOut   State = "timed_out"
	StateTerminated State = "terminated"
	StateMerged     State = "merged"
)

// TaskStatus tracks one subtask. Transitions are monotonic:
// not-started -> started -> complete.
type TaskStatus struct {
	Started  bool
	Complete bool
	Result   *domain.EnrichmentContext
}

// ProgressSink receives human-readable status lines for the client stream.
// Sink failures never affect task outcomes.
type ProgressSink func(msg string) error

// VisionDescriber is the image-description collaborator.
type VisionDescriber interface {
	Describe(ctx context.Context, images []domain.ImagePayload, progress func(string)) (string, error)
}

// CapabilityLookup resolves whether a model handles images natively.
type CapabilityLookup interface {
	Lookup(ctx context.Context, model string) domain.ModelCapabilities
}

// KBSearcher is the knowledge-base retrieval collaborator.
type KBSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]domain.KBResult, error)
}

// WebSearcher is the web-search collaborator.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]domain.SearchResult, error)
}

// CoordinatorDeps bundles the shared collaborators a coordinator needs. The
// deps value is safely shared across requests; each request gets its own
// Coordinator.
type CoordinatorDeps struct {
	Analyzer     *Analyzer
	Capabilities CapabilityLookup
	Vision       VisionDescriber
	KB           KBSearcher
	Web          WebSearcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Timeout      time.Duration
	TopK         int
}

// Coordinator owns one request's enrichment run: it resolves the effective
// flags, fans the subtasks out concurrently, joins them under a soft
// deadline, and merges whatever completed into the request's latest user
// message. Never share a Coordinator across requests.
type Coordinator struct {
	deps CoordinatorDeps
	req  *domain.ChatRequest
	sink ProgressSink

	// query is snapshotted before the fan-out. Subtasks read the snapshot,
	// never the request: a subtask outliving the soft deadline must not see
	// the merge rewriting the latest user message.
	query string

	mu              sync.Mutex
	state           State
	status          map[string]*TaskStatus
	shouldTerminate bool
	webAutoEnabled  bool
}

// NewCoordinator creates a coordinator for one request.
func NewCoordinator(deps CoordinatorDeps, req *domain.ChatRequest, sink ProgressSink) *Coordinator {
	if deps.Timeout <= 0 {
		deps.Timeout = 60 * time.Second
	}
	if deps.TopK <= 0 {
		deps.TopK = 3
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Coordinator{
		deps:  deps,
		req:   req,
		sink:  sink,
		state: StateInit,
		status: map[string]*TaskStatus{
			TaskImage:     {},
			TaskRetrieval: {},
			TaskWebSearch: {},
		},
	}
}

// State returns the coordinator's current lifecycle position.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a copy of one subtask's status.
func (c *Coordinator) Status(task string) TaskStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.status[task]; ok {
		return *st
	}
	return TaskStatus{}
}

// ShouldTerminate reports whether a subtask short-circuited the request.
func (c *Coordinator) ShouldTerminate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldTerminate
}

type taskFunc func(ctx context.Context) (*domain.EnrichmentContext, error)

// Run drives the full state machine. It returns the (possibly augmented)
// request, or (nil, true) when a subtask demanded termination. It never
// returns an error: one failing source degrades the request, it does not
// fail it.
func (c *Coordinator) Run(ctx context.Context) (*domain.ChatRequest, bool) {
	logger := c.deps.Logger.With(zap.String("request_id", c.req.RequestID))

	detected := map[string]bool{}
	if c.req.Options.AutoDetectEnabled() && c.deps.Analyzer != nil {
		detected = c.deps.Analyzer.OptionsFromRequest(c.req)
		for feature, enabled := range detected {
			if enabled {
				logger.Info("auto-detected enrichment feature", zap.String("feature", feature))
			}
		}
	}
	effective := MergeOptions(c.req.Options, detected)
	c.query = c.req.LatestUserText()
	c.mu.Lock()
	c.webAutoEnabled = effective.Web && c.req.Options.WebSearchEnabled == nil
	c.mu.Unlock()

	// The image subtask is always scheduled; it is a no-op for requests
	// without images.
	tasks := map[string]taskFunc{
		TaskImage: c.imageTask,
	}
	if effective.Retrieval {
		logger.Info("retrieval enrichment enabled")
		tasks[TaskRetrieval] = c.retrievalTask
	}
	if effective.Web {
		logger.Info("web search enrichment enabled")
		tasks[TaskWebSearch] = c.webSearchTask
	}

	c.setState(StateRunning)
	started := time.Now()
	done := make(chan struct{}, len(tasks))
	for name, fn := range tasks {
		go c.runTask(ctx, logger, name, fn, done)
	}

	// Soft deadline join: outstanding collaborator calls are not cancelled,
	// they are merely excluded from the merge.
	timer := time.NewTimer(c.deps.Timeout)
	defer timer.Stop()
	joined := 0
	timedOut := false
	for joined < len(tasks) && !timedOut {
		select {
		case <-done:
			joined++
			if c.ShouldTerminate() {
				c.setState(StateTerminated)
				logger.Warn("enrichment terminated by subtask")
				return nil, true
			}
		case <-timer.C:
			timedOut = true
		case <-ctx.Done():
			timedOut = true
		}
	}
	if c.ShouldTerminate() {
		c.setState(StateTerminated)
		logger.Warn("enrichment terminated by subtask")
		return nil, true
	}
	if timedOut {
		c.setState(StateTimedOut)
		logger.Warn("enrichment deadline elapsed, merging completed subtasks",
			zap.Duration("deadline", c.deps.Timeout))
		c.progress("部分增强功能处理超时，将使用已完成的结果继续")
	} else {
		c.setState(StateJoined)
	}
	logger.Info("enrichment join finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("joined", joined))

	merged := c.merge()
	c.setState(StateMerged)
	return merged, false
}

func (c *Coordinator) runTask(ctx context.Context, logger *zap.Logger, name string, fn taskFunc, done chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("enrichment subtask panicked",
				zap.String("task", name), zap.Any("panic", r))
			c.complete(name, nil)
		}
		done <- struct{}{}
	}()

	c.markStarted(name)
	start := time.Now()
	result, err := fn(ctx)
	if c.deps.Metrics != nil {
		c.deps.Metrics.ObserveEnrichmentTask(name, time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, domain.ErrUnrecoverableImage) {
			logger.Error("unrecoverable image payload, terminating request")
			c.progress("图片数据无法解析，请求已终止")
			c.mu.Lock()
			c.shouldTerminate = true
			c.mu.Unlock()
		} else {
			// Recoverable: the source contributes nothing, the request
			// proceeds with the remaining context.
			logger.Warn("enrichment subtask failed",
				zap.String("task", name), zap.Error(err))
		}
		c.complete(name, nil)
		return
	}
	c.complete(name, result)
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) markStarted(name string) {
	c.mu.Lock()
	c.status[name].Started = true
	c.mu.Unlock()
}

func (c *Coordinator) complete(name string, result *domain.EnrichmentContext) {
	c.mu.Lock()
	st := c.status[name]
	if !st.Complete {
		st.Complete = true
		st.Result = result
	}
	c.mu.Unlock()
}

// progress pushes one status line to the sink. A failing or panicking sink
// is ignored.
func (c *Coordinator) progress(msg string) {
	if c.sink == nil {
		return
	}
	defer func() { _ = recover() }()
	_ = c.sink(msg)
}

// merge folds the completed results into the latest user message, in fixed
// image, retrieval, web order. It runs after the join, so it owns the
// request exclusively.
func (c *Coordinator) merge() *domain.ChatRequest {
	query := c.query

	var contexts []string
	webContributed := false
	c.mu.Lock()
	for _, name := range []string{TaskImage, TaskRetrieval, TaskWebSearch} {
		st := c.status[name]
		if st.Complete && st.Result != nil && st.Result.Text != "" {
			contexts = append(contexts, st.Result.Text)
			if name == TaskWebSearch {
				webContributed = true
			}
		}
	}
	webAuto := c.webAutoEnabled
	c.mu.Unlock()

	if webContributed && webAuto {
		c.progress("检测到您的问题可能需要最新信息，已自动为您搜索相关内容")
	}

	if len(contexts) == 0 || query == "" {
		return c.req
	}
	c.req.SetLatestUserContent(EnhancePrompt(query, contexts))
	return c.req
}

// imageTask describes attached images through the vision collaborator when
// the target model cannot consume them itself. Requests without images
// complete immediately with a nil result.
func (c *Coordinator) imageTask(ctx context.Context) (*domain.EnrichmentContext, error) {
	images, err := ExtractImages(c.req)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}

	c.progress(fmt.Sprintf("检测到 %d 张图片，处理中...", len(images)))

	if c.deps.Capabilities != nil {
		caps := c.deps.Capabilities.Lookup(ctx, c.req.Model)
		if caps.Vision {
			c.progress(fmt.Sprintf("模型 %s 支持图片处理，将直接处理图片", c.req.Model))
			return nil, nil
		}
	}
	if c.deps.Vision == nil {
		return nil, nil
	}

	c.progress(fmt.Sprintf("模型 %s 不支持图像处理，使用视觉模型分析图片中...", c.req.Model))
	descriptions, err := c.deps.Vision.Describe(ctx, images, c.progress)
	if err != nil {
		return nil, err
	}
	if descriptions == "" {
		return nil, nil
	}
	c.progress("图片分析完成")
	return &domain.EnrichmentContext{
		Text:   "图片内容分析:\n" + descriptions,
		Origin: domain.OriginImage,
	}, nil
}

func (c *Coordinator) retrievalTask(ctx context.Context) (*domain.EnrichmentContext, error) {
	if c.deps.KB == nil {
		return nil, nil
	}
	c.progress("正在从知识库检索相关内容...")

	results, err := c.deps.KB.Search(ctx, c.query, c.deps.TopK)
	if err != nil {
		c.progress("知识库检索出错: " + err.Error())
		return nil, err
	}
	if len(results) == 0 {
		c.progress("知识库检索完成，未找到相关内容")
		return nil, nil
	}
	c.progress("知识库检索完成，找到相关内容")
	return &domain.EnrichmentContext{
		Text:   formatKBResults(results),
		Origin: domain.OriginRetrieval,
	}, nil
}

func (c *Coordinator) webSearchTask(ctx context.Context) (*domain.EnrichmentContext, error) {
	if c.deps.Web == nil {
		return nil, nil
	}
	c.progress("正在进行网络搜索...")

	results, err := c.deps.Web.Search(ctx, c.query)
	if err != nil {
		c.progress("网络搜索出错: " + err.Error())
		return nil, err
	}
	if len(results) == 0 {
		c.progress("网络搜索完成，未找到相关内容")
		return nil, nil
	}
	return &domain.EnrichmentContext{
		Text:   "网络搜索结果:\n" + formatSearchResults(results),
		Origin: domain.OriginWeb,
	}, nil
}

func formatKBResults(results []domain.KBResult) string {
	var b strings.Builder
	b.WriteString("知识库检索结果:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n[片段 %d] (相关度 %.2f)\n%s\n", i+1, r.Score, strings.TrimSpace(r.Text))
	}
	return b.String()
}

func formatSearchResults(results []domain.SearchResult) string {
	var blocks []string
	for i, r := range results {
		var b strings.Builder
		fmt.Fprintf(&b, "\n来源 %d:\n标题: %s\n链接: %s\n摘要: %s\n", i+1, r.Title, r.Link, r.Snippet)
		if len(r.Paragraphs) > 0 {
			b.WriteString("相关段落:\n")
			for _, p := range r.Paragraphs {
				fmt.Fprintf(&b, "- %s...\n", truncateRunes(p.Text, 500))
			}
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
