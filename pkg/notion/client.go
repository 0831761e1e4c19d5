// Package notion wraps the Notion API for database queries, page management
// and page content.
package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// MaxBlocksPerRequest is Notion's cap on children in one append call.
const MaxBlocksPerRequest = 100

// Client defines the Notion API operations used by the tracker.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
	// AppendBlocks adds children to a page or block, at most
	// MaxBlocksPerRequest per call.
	AppendBlocks(ctx context.Context, blockID string, blocks []notionapi.Block) error
	ListBlocks(ctx context.Context, blockID string) ([]notionapi.Block, error)
	DeleteBlock(ctx context.Context, blockID string) error
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default rate limit of 3 req/s. rps <= 0
// disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

// NewClient creates a Notion client for an integration token. Calls are
// throttled to Notion's 3 req/s unless overridden.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *notionClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "notion: rate limit")
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("notion: query database %s", dbID))
	}
	return resp, nil
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.inner.Page.Create(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "notion: create page")
	}
	return page, nil
}

func (c *notionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.inner.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("notion: update page %s", pageID))
	}
	return page, nil
}

func (c *notionClient) AppendBlocks(ctx context.Context, blockID string, blocks []notionapi.Block) error {
	for start := 0; start < len(blocks); start += MaxBlocksPerRequest {
		end := min(start+MaxBlocksPerRequest, len(blocks))
		if err := c.wait(ctx); err != nil {
			return err
		}
		_, err := c.inner.Block.AppendChildren(ctx, notionapi.BlockID(blockID), &notionapi.AppendBlockChildrenRequest{
			Children: blocks[start:end],
		})
		if err != nil {
			return eris.Wrap(err, fmt.Sprintf("notion: append blocks to %s", blockID))
		}
	}
	return nil
}

func (c *notionClient) ListBlocks(ctx context.Context, blockID string) ([]notionapi.Block, error) {
	var all []notionapi.Block
	pagination := &notionapi.Pagination{PageSize: MaxBlocksPerRequest}
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.inner.Block.GetChildren(ctx, notionapi.BlockID(blockID), pagination)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("notion: list blocks of %s", blockID))
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}
		pagination.StartCursor = notionapi.Cursor(resp.NextCursor)
	}
}

func (c *notionClient) DeleteBlock(ctx context.Context, blockID string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, err := c.inner.Block.Delete(ctx, notionapi.BlockID(blockID)); err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: delete block %s", blockID))
	}
	return nil
}
