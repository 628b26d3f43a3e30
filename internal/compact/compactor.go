package compact

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/beadworks/beads/internal/storage/sqlite"
	"github.com/beadworks/beads/internal/types"
)

const (
	defaultConcurrency = 5
)

// Config holds configuration for the compaction process.
type Config struct {
	APIKey      string
	Concurrency int
	DryRun      bool
	Actor       string
	MinAgeDays  int
}

// Compactor replaces the long text of old closed issues with a summary.
type Compactor struct {
	store      issueStore
	summarizer summarizer
	config     *Config
}

type issueStore interface {
	CheckCompactionEligibility(ctx context.Context, issueID string, olderThanDays int) (bool, string, error)
	GetIssue(ctx context.Context, issueID string) (*types.Issue, error)
	UpdateIssue(ctx context.Context, issueID string, updates map[string]interface{}, actor string) error
	SnapshotForCompaction(ctx context.Context, issueID string) error
	ApplyCompaction(ctx context.Context, issueID string, level int, originalSize int, compactedSize int, actor string) error
	AddIssueComment(ctx context.Context, issueID, author, text string) (*types.Comment, error)
}

type summarizer interface {
	Summarize(ctx context.Context, issue *types.Issue) (string, error)
}

// New creates a Compactor. With an Anthropic API key (argument, config,
// or ANTHROPIC_API_KEY) summaries come from the Haiku model; without
// one the deterministic truncation summarizer is used instead.
func New(store *sqlite.SQLiteStorage, apiKey string, config *Config) (*Compactor, error) {
	if config == nil {
		config = &Config{
			Concurrency: defaultConcurrency,
		}
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaultConcurrency
	}
	if config.MinAgeDays <= 0 {
		config.MinAgeDays = sqlite.DefaultCompactionAgeDays
	}
	if apiKey != "" {
		config.APIKey = apiKey
	}

	var sum summarizer
	if !config.DryRun {
		client, err := NewHaikuClient(config.APIKey)
		switch {
		case err == nil:
			sum = client
		case errors.Is(err, ErrAPIKeyRequired):
			sum = &truncationSummarizer{}
		default:
			return nil, fmt.Errorf("failed to create Haiku client: %w", err)
		}
	}

	return &Compactor{
		store:      store,
		summarizer: sum,
		config:     config,
	}, nil
}

// SummarizerName reports which summarizer backs this compactor.
func (c *Compactor) SummarizerName() string {
	switch c.summarizer.(type) {
	case *HaikuClient:
		return "haiku"
	case *truncationSummarizer:
		return "truncation"
	default:
		return "none"
	}
}

func (c *Compactor) actor() string {
	if c.config.Actor != "" {
		return c.config.Actor
	}
	return "compactor"
}

// Result holds the outcome of a compaction operation.
type Result struct {
	IssueID       string
	OriginalSize  int
	CompactedSize int
	Err           error
}

// Compact summarizes a single issue's text fields and records the
// space saved. The original text is snapshotted first so it can be
// restored later.
func (c *Compactor) Compact(ctx context.Context, issueID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	eligible, reason, err := c.store.CheckCompactionEligibility(ctx, issueID, c.config.MinAgeDays)
	if err != nil {
		return fmt.Errorf("failed to verify eligibility: %w", err)
	}
	if !eligible {
		if reason != "" {
			return fmt.Errorf("issue %s is not eligible for compaction: %s", issueID, reason)
		}
		return fmt.Errorf("issue %s is not eligible for compaction", issueID)
	}

	issue, err := c.store.GetIssue(ctx, issueID)
	if err != nil {
		return fmt.Errorf("failed to get issue: %w", err)
	}

	originalSize := len(issue.Description) + len(issue.Design) + len(issue.Notes) + len(issue.AcceptanceCriteria)

	if c.config.DryRun {
		return fmt.Errorf("dry-run: would compact %s (original size: %d bytes)", issueID, originalSize)
	}

	result := &Result{IssueID: issueID, OriginalSize: originalSize}
	return c.compactSingleWithResult(ctx, issue, result)
}

// CompactBatch summarizes multiple issues concurrently. Ineligible
// issues are reported in the results rather than failing the batch.
func (c *Compactor) CompactBatch(ctx context.Context, issueIDs []string) ([]*Result, error) {
	if len(issueIDs) == 0 {
		return nil, nil
	}

	eligibleIDs := make([]string, 0, len(issueIDs))
	results := make([]*Result, 0, len(issueIDs))

	for _, id := range issueIDs {
		eligible, reason, err := c.store.CheckCompactionEligibility(ctx, id, c.config.MinAgeDays)
		if err != nil {
			results = append(results, &Result{
				IssueID: id,
				Err:     fmt.Errorf("failed to verify eligibility: %w", err),
			})
			continue
		}
		if !eligible {
			results = append(results, &Result{
				IssueID: id,
				Err:     fmt.Errorf("not eligible for compaction: %s", reason),
			})
		} else {
			eligibleIDs = append(eligibleIDs, id)
		}
	}

	if len(eligibleIDs) == 0 {
		return results, nil
	}

	if c.config.DryRun {
		for _, id := range eligibleIDs {
			issue, err := c.store.GetIssue(ctx, id)
			if err != nil {
				results = append(results, &Result{
					IssueID: id,
					Err:     fmt.Errorf("failed to get issue: %w", err),
				})
				continue
			}
			originalSize := len(issue.Description) + len(issue.Design) + len(issue.Notes) + len(issue.AcceptanceCriteria)
			results = append(results, &Result{
				IssueID:      id,
				OriginalSize: originalSize,
			})
		}
		return results, nil
	}

	workCh := make(chan string, len(eligibleIDs))
	resultCh := make(chan *Result, len(eligibleIDs))

	var wg sync.WaitGroup
	for i := 0; i < c.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for issueID := range workCh {
				result := &Result{IssueID: issueID}

				issue, err := c.store.GetIssue(ctx, issueID)
				if err != nil {
					result.Err = fmt.Errorf("failed to get issue: %w", err)
					resultCh <- result
					continue
				}
				result.OriginalSize = len(issue.Description) + len(issue.Design) + len(issue.Notes) + len(issue.AcceptanceCriteria)

				if err := c.compactSingleWithResult(ctx, issue, result); err != nil {
					result.Err = err
				}

				resultCh <- result
			}
		}()
	}

	for _, id := range eligibleIDs {
		workCh <- id
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for result := range resultCh {
		results = append(results, result)
	}

	return results, nil
}

func (c *Compactor) compactSingleWithResult(ctx context.Context, issue *types.Issue, result *Result) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if c.summarizer == nil {
		return fmt.Errorf("summarizer not configured")
	}
	summary, err := c.summarizer.Summarize(ctx, issue)
	if err != nil {
		return fmt.Errorf("failed to summarize: %w", err)
	}

	result.CompactedSize = len(summary)

	if result.CompactedSize >= result.OriginalSize {
		warningMsg := fmt.Sprintf("compaction skipped: summary (%d bytes) not shorter than original (%d bytes)", result.CompactedSize, result.OriginalSize)
		if _, err := c.store.AddIssueComment(ctx, issue.ID, c.actor(), warningMsg); err != nil {
			return fmt.Errorf("failed to record warning: %w", err)
		}
		return fmt.Errorf("compaction would increase size (%d → %d bytes), keeping original", result.OriginalSize, result.CompactedSize)
	}

	if err := c.store.SnapshotForCompaction(ctx, issue.ID); err != nil {
		return fmt.Errorf("failed to snapshot issue: %w", err)
	}

	updates := map[string]interface{}{
		"description":         summary,
		"design":              "",
		"notes":               "",
		"acceptance_criteria": "",
	}
	if err := c.store.UpdateIssue(ctx, issue.ID, updates, c.actor()); err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}

	if err := c.store.ApplyCompaction(ctx, issue.ID, 1, result.OriginalSize, result.CompactedSize, c.actor()); err != nil {
		return fmt.Errorf("failed to set compaction level: %w", err)
	}

	saved := result.OriginalSize - result.CompactedSize
	note := fmt.Sprintf("Compacted: %d → %d bytes (saved %d)", result.OriginalSize, result.CompactedSize, saved)
	if _, err := c.store.AddIssueComment(ctx, issue.ID, c.actor(), note); err != nil {
		return fmt.Errorf("failed to record comment: %w", err)
	}

	return nil
}
