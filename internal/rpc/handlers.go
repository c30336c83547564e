package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aimemory/engine/internal/engine"
	"github.com/aimemory/engine/internal/gitexec"
	"github.com/aimemory/engine/internal/repo"
	"github.com/aimemory/engine/internal/restore"
	"github.com/aimemory/engine/internal/shadow"
	"github.com/aimemory/engine/internal/store"
)

// Dependencies are the collaborators RPC handlers dispatch into. It
// intentionally only references the stateless/read-mostly pieces of
// *engine.Engine (store, resolver, gitexec, restore manager) plus the
// shadow engine for status queries — no handler may block the indexer
// or the shadow-commit workers (spec §4.9).
type Dependencies struct {
	Store    *store.Store
	Resolver *repo.Resolver
	GitExec  *gitexec.Executor
	Restore  *restore.Manager
	Shadow   *shadow.Engine
	Eng      *engine.Engine
}

func sanitize(err error) string {
	return engine.SanitizeError(err)
}

func registerHandlers(s *Server, d *Dependencies) {
	s.register("search_conversations", d.searchConversations)
	s.register("list_recent_conversations", d.listRecentConversations)
	s.register("get_conversation_context", d.getConversationContext)
	s.register("find_similar_solutions", d.findSimilarSolutions)
	s.register("health_check", d.healthCheck)
	s.register("performance_metrics", d.performanceMetrics)
	s.register("get_git_context", d.getGitContext)
	s.register("list_restore_points", d.listRestorePoints)
	s.register("create_restore_point", d.createRestorePoint)
	s.register("preview_restore", d.previewRestore)
	s.register("restore_project_state", d.restoreProjectState)
}

// --- search_conversations -------------------------------------------------

type searchConversationsParams struct {
	Query     string `json:"query"`
	Timeframe string `json:"timeframe,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type searchResultItem struct {
	SessionID    string `json:"sessionId"`
	ProjectName  string `json:"projectName"`
	MessageCount int    `json:"messageCount"`
	Preview      string `json:"preview"`
}

type searchConversationsResult struct {
	Query      string             `json:"query"`
	Results    []searchResultItem `json:"results"`
	TotalFound int                `json:"total_found"`
	Showing    int                `json:"showing"`
}

func (d *Dependencies) searchConversations(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var p searchConversationsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	hits, total, err := d.Store.Search(ctx, p.Query, limit)
	if err != nil {
		return nil, storeErr(err)
	}

	results := make([]searchResultItem, 0, len(hits))
	for _, h := range hits {
		results = append(results, searchResultItem{
			SessionID:    h.SessionID,
			ProjectName:  h.ProjectName,
			MessageCount: h.MessageCount,
			Preview:      h.Preview,
		})
	}

	return searchConversationsResult{
		Query:      p.Query,
		Results:    results,
		TotalFound: total,
		Showing:    len(results),
	}, nil
}

// --- list_recent_conversations --------------------------------------------

type listRecentConversationsParams struct {
	Limit     int    `json:"limit,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`
}

type conversationSummary struct {
	SessionID    string    `json:"sessionId"`
	ProjectName  string    `json:"projectName"`
	LastUpdated  time.Time `json:"lastUpdated"`
	MessageCount int       `json:"messageCount"`
}

func (d *Dependencies) listRecentConversations(ctx context.Context, raw json.RawMessage) (any, *Error) {
	p := listRecentConversationsParams{Limit: 10}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, invalidParams(err)
		}
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}

	since, err := parseTimeframe(p.Timeframe)
	if err != nil {
		return nil, invalidParams(err)
	}

	convs, err := d.Store.ListRecentConversations(ctx, p.Limit, since)
	if err != nil {
		return nil, storeErr(err)
	}

	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationSummary{
			SessionID:    c.SessionID,
			ProjectName:  c.ProjectName,
			LastUpdated:  c.LastUpdatedAt,
			MessageCount: c.MessageCount,
		})
	}
	return out, nil
}

// parseTimeframe accepts a Go duration string ("24h", "30m") as the
// lookback window; empty means unbounded (spec §4.1 "timeframe").
func parseTimeframe(tf string) (*time.Time, error) {
	if tf == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(tf)
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe %q: %w", tf, err)
	}
	since := time.Now().Add(-d)
	return &since, nil
}

// --- get_conversation_context ---------------------------------------------

type getConversationContextParams struct {
	SessionID string `json:"sessionId"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"pageSize,omitempty"`
}

type messageView struct {
	Index     int       `json:"index"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type getConversationContextResult struct {
	SessionID     string        `json:"sessionId"`
	Page          int           `json:"page"`
	PageSize      int           `json:"pageSize"`
	TotalPages    int           `json:"totalPages"`
	TotalMessages int           `json:"totalMessages"`
	Messages      []messageView `json:"messages"`
}

func (d *Dependencies) getConversationContext(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var p getConversationContextParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.SessionID == "" {
		return nil, invalidParams(fmt.Errorf("sessionId is required"))
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = store.DefaultPageSize
	}

	page, err := d.Store.ConversationMessages(ctx, p.SessionID, p.Page, p.PageSize)
	if err != nil {
		return nil, storeErr(err)
	}

	messages := make([]messageView, 0, len(page.Messages))
	for _, m := range page.Messages {
		messages = append(messages, messageView{
			Index:     m.Ordinal,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}

	return getConversationContextResult{
		SessionID:     p.SessionID,
		Page:          page.Page,
		PageSize:      page.PageSize,
		TotalPages:    page.TotalPages,
		TotalMessages: page.TotalMessages,
		Messages:      messages,
	}, nil
}

// --- find_similar_solutions ------------------------------------------------

type findSimilarSolutionsParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (d *Dependencies) findSimilarSolutions(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var p findSimilarSolutionsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 5
	}

	hits, total, err := d.Store.Search(ctx, p.Query, limit)
	if err != nil {
		return nil, storeErr(err)
	}

	results := make([]searchResultItem, 0, len(hits))
	for _, h := range hits {
		results = append(results, searchResultItem{
			SessionID:    h.SessionID,
			ProjectName:  h.ProjectName,
			MessageCount: h.MessageCount,
			Preview:      h.Preview,
		})
	}
	return searchConversationsResult{Query: p.Query, Results: results, TotalFound: total, Showing: len(results)}, nil
}

// --- health_check ------------------------------------------------------

type healthCheckResult struct {
	Integrity     string  `json:"integrity"`
	Conversations int     `json:"conversations"`
	Messages      int     `json:"messages"`
	DBSizeMB      float64 `json:"dbSizeMB"`
}

func (d *Dependencies) healthCheck(ctx context.Context, _ json.RawMessage) (any, *Error) {
	stats, err := d.Store.Stats(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	sizeMB, err := d.Store.SizeMB()
	if err != nil {
		sizeMB = 0
	}
	return healthCheckResult{
		Integrity:     string(d.Store.LastIntegrityStatus()),
		Conversations: stats.Conversations,
		Messages:      stats.Messages,
		DBSizeMB:      sizeMB,
	}, nil
}

// --- performance_metrics ----------------------------------------------------

type performanceMetricsParams struct {
	WindowMs int `json:"windowMs,omitempty"`
}

type performanceMetricsResult struct {
	WindowMs             int      `json:"windowMs"`
	IndexerWatching      bool     `json:"indexerWatching"`
	FilesDiscovered      int      `json:"filesDiscovered"`
	FilesProcessed       int      `json:"filesProcessed"`
	ConversationsIndexed int      `json:"conversationsIndexed"`
	WatchedRepositories  []string `json:"watchedRepositories"`
	DisabledRepositories []string `json:"disabledRepositories"`
}

func (d *Dependencies) performanceMetrics(_ context.Context, raw json.RawMessage) (any, *Error) {
	p := performanceMetricsParams{WindowMs: 60000}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, invalidParams(err)
		}
	}

	result := performanceMetricsResult{WindowMs: p.WindowMs}
	if d.Eng != nil {
		progress := d.Eng.Indexer.Progress()
		result.IndexerWatching = d.Eng.Indexer.IsWatching()
		result.FilesDiscovered = progress.FilesDiscovered
		result.FilesProcessed = progress.FilesProcessed
		result.ConversationsIndexed = progress.ConversationsIndexed
	}
	if d.Shadow != nil {
		result.WatchedRepositories = d.Shadow.WatchedRepositories()
		result.DisabledRepositories = d.Shadow.DisabledRepositories()
	}
	return result, nil
}

// --- get_git_context ---------------------------------------------------

type getGitContextParams struct {
	ProjectPath string `json:"projectPath"`
	Limit       int    `json:"limit,omitempty"`
}

type commitView struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

type getGitContextResult struct {
	RepositoryRoot         string       `json:"repositoryRoot"`
	SubdirectoryPath       string       `json:"subdirectoryPath"`
	IsMonorepoSubdirectory bool         `json:"is_monorepo_subdirectory"`
	CurrentBranch          string       `json:"currentBranch"`
	RemoteURL              string       `json:"remoteUrl"`
	Commits                []commitView `json:"commits"`
}

func (d *Dependencies) getGitContext(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var p getGitContextParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.ProjectPath == "" {
		return nil, invalidParams(fmt.Errorf("projectPath is required"))
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	info, err := d.Resolver.Resolve(ctx, p.ProjectPath)
	if err != nil {
		return nil, gitErr(err)
	}

	args := []string{"--oneline", "--max-count", fmt.Sprintf("%d", limit)}
	if info.IsMonorepoSubdirectory {
		args = append(args, "--", info.SubdirectoryPath)
	}
	out, err := d.GitExec.Run(ctx, info.Root, gitexec.Log, args...)
	if err != nil {
		return nil, gitErr(err)
	}

	var commits []commitView
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		c := commitView{Hash: parts[0]}
		if len(parts) > 1 {
			c.Message = parts[1]
		}
		commits = append(commits, c)
	}

	return getGitContextResult{
		RepositoryRoot:         info.Root,
		SubdirectoryPath:       info.SubdirectoryPath,
		IsMonorepoSubdirectory: info.IsMonorepoSubdirectory,
		CurrentBranch:          info.CurrentBranch,
		RemoteURL:              info.RemoteURL,
		Commits:                commits,
	}, nil
}

// --- restore point methods --------------------------------------------------

type projectPathParams struct {
	ProjectPath string `json:"projectPath"`
}

type listRestorePointsParams struct {
	ProjectPath string `json:"projectPath"`
	Limit       int    `json:"limit,omitempty"`
}

type restorePointView struct {
	Label       string    `json:"label"`
	CommitHash  string    `json:"commitHash"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (d *Dependencies) listRestorePoints(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var p listRestorePointsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.ProjectPath == "" {
		return nil, invalidParams(fmt.Errorf("projectPath is required"))
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	info, err := d.Resolver.Resolve(ctx, p.ProjectPath)
	if err != nil {
		return nil, gitErr(err)
	}

	points, err := d.Restore.List(ctx, info.Root, limit)
	if err != nil {
		return nil, storeErr(err)
	}

	out := make([]restorePointView, 0, len(points))
	for _, rp := range points {
		out = append(out, restorePointView{
			Label:       rp.Label,
			CommitHash:  rp.CommitHash,
			Description: rp.Description,
			CreatedAt:   rp.CreatedAt,
		})
	}
	return out, nil
}

type createRestorePointParams struct {
	ProjectPath string `json:"projectPath"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type createRestorePointResult struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

func (d *Dependencies) createRestorePoint(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var p createRestorePointParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.ProjectPath == "" || p.Label == "" {
		return nil, invalidParams(fmt.Errorf("projectPath and label are required"))
	}

	info, err := d.Resolver.Resolve(ctx, p.ProjectPath)
	if err != nil {
		return nil, gitErr(err)
	}

	rp, err := d.Restore.Create(ctx, info.Root, p.Label, p.Description)
	if err != nil {
		if err == store.ErrRestorePointExists {
			return nil, invalidParams(err)
		}
		return nil, storeErr(err)
	}
	return createRestorePointResult{ID: rp.Label, Hash: rp.CommitHash}, nil
}

type restorePointLabelParams struct {
	ProjectPath    string `json:"projectPath"`
	RestorePointID string `json:"restorePointId"`
}

type previewRestoreResult struct {
	Label        string   `json:"label"`
	CommitHash   string   `json:"commitHash"`
	ChangedFiles []string `json:"changedFiles"`
	Commands     []string `json:"commands"`
}

func (d *Dependencies) previewRestore(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var p restorePointLabelParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.ProjectPath == "" || p.RestorePointID == "" {
		return nil, invalidParams(fmt.Errorf("projectPath and restorePointId are required"))
	}

	info, err := d.Resolver.Resolve(ctx, p.ProjectPath)
	if err != nil {
		return nil, gitErr(err)
	}

	plan, err := d.Restore.Preview(ctx, info.Root, p.RestorePointID)
	if err != nil {
		return nil, storeErr(err)
	}
	return previewRestoreResult{
		Label:        plan.RestorePoint.Label,
		CommitHash:   plan.RestorePoint.CommitHash,
		ChangedFiles: plan.ChangedFiles,
		Commands:     plan.Commands,
	}, nil
}

type restoreProjectStateResult struct {
	Label       string `json:"label"`
	CommitHash  string `json:"commitHash"`
	SafetyLabel string `json:"safetyLabel"`
}

func (d *Dependencies) restoreProjectState(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var p restorePointLabelParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.ProjectPath == "" || p.RestorePointID == "" {
		return nil, invalidParams(fmt.Errorf("projectPath and restorePointId are required"))
	}

	info, err := d.Resolver.Resolve(ctx, p.ProjectPath)
	if err != nil {
		return nil, gitErr(err)
	}

	restored, err := d.Restore.Restore(ctx, info.Root, p.RestorePointID)
	if err != nil {
		return nil, storeErr(err)
	}
	d.Resolver.Invalidate(info.Root)

	points, err := d.Restore.List(ctx, info.Root, 1)
	safetyLabel := ""
	if err == nil && len(points) > 0 {
		safetyLabel = points[0].Label
	}

	return restoreProjectStateResult{
		Label:       restored.Label,
		CommitHash:  restored.CommitHash,
		SafetyLabel: safetyLabel,
	}, nil
}
