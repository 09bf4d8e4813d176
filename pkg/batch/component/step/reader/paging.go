// Package reader provides the item sources of chunk steps: an adapter over a plain
// supplier, a paginated query reader and a sorted repository reader.
package reader

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DefaultPageSize is the page size used when a paging reader is given none.
const DefaultPageSize = 10

// Checkpoint key suffixes. Keys are prefixed with the reader name.
const (
	keyReadCount  = "read.count"
	keyPage       = "page"
	keyPageOffset = "page.offset"
	keyLastKey    = "last.key"
)

// fetchFunc loads page number (0-based) of size items. total is the number of items
// across all pages, or -1 when unknown.
type fetchFunc[T any] func(ctx context.Context, number, size int) (items []T, total int64, err error)

// Option configures a paging reader.
type Option[T any] func(*pager[T])

// WithKeyFunc sets the function that extracts a stable key from an item. With a key
// func, a resumed reader positions itself just after the last key it handed out
// instead of trusting the in-page offset.
func WithKeyFunc[T any](fn func(T) string) Option[T] {
	return func(p *pager[T]) { p.keyFunc = fn }
}

// pager buffers one page of a paginated source and tracks the restart state.
type pager[T any] struct {
	name     string
	pageSize int
	fetch    fetchFunc[T]
	keyFunc  func(T) string

	buffer    []T
	loaded    bool
	page      int
	offset    int
	readCount int
	lastKey   string
	total     int64
	opened    bool
}

func newPager[T any](name string, pageSize int, fetch fetchFunc[T], opts []Option[T]) *pager[T] {
	if pageSize <= 0 {
		logger.Infof("Reader '%s': no page size given, using the default of %d.", name, DefaultPageSize)
		pageSize = DefaultPageSize
	}
	p := &pager[T]{name: name, pageSize: pageSize, fetch: fetch, total: -1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pager[T]) key(suffix string) string {
	return p.name + "." + suffix
}

func (p *pager[T]) open(ec model.ExecutionContext) {
	p.buffer = nil
	p.loaded = false
	p.page, p.offset, p.readCount, p.lastKey = 0, 0, 0, ""
	p.total = -1

	if v, ok := ec.GetInt(p.key(keyPage)); ok {
		p.page = v
	}
	if v, ok := ec.GetInt(p.key(keyPageOffset)); ok {
		p.offset = v
	}
	if v, ok := ec.GetInt(p.key(keyReadCount)); ok {
		p.readCount = v
	}
	if v, ok := ec.GetString(p.key(keyLastKey)); ok {
		p.lastKey = v
	}
	p.opened = true
	if p.readCount > 0 {
		logger.Infof("Reader '%s': resuming at page %d, offset %d (%d items already read).", p.name, p.page, p.offset, p.readCount)
	}
}

func (p *pager[T]) load(ctx context.Context, number int) error {
	items, total, err := p.fetch(ctx, number, p.pageSize)
	if err != nil {
		return exception.NewSourceReadError(p.name, fmt.Sprintf("failed to fetch page %d", number), err)
	}
	p.buffer = items
	p.page = number
	p.total = total
	p.loaded = true
	logger.Debugf("Reader '%s': fetched page %d (%d items).", p.name, number, len(items))
	return nil
}

// reposition moves the offset just after lastKey. Rows inserted before the checkpoint
// push the key forward, so later pages are searched until it is found. When the key is
// gone the saved page and offset are used as they are.
func (p *pager[T]) reposition(ctx context.Context) error {
	if p.keyFunc == nil || p.lastKey == "" {
		return nil
	}
	savedPage, savedOffset := p.page, p.offset
	for {
		if i := p.indexOf(p.lastKey); i >= 0 {
			if p.page != savedPage || i+1 != savedOffset {
				logger.Warnf("Reader '%s': rows shifted since the checkpoint, resuming after key %s on page %d.", p.name, p.lastKey, p.page)
			}
			p.offset = i + 1
			return nil
		}
		if len(p.buffer) < p.pageSize {
			break
		}
		if err := p.load(ctx, p.page+1); err != nil {
			return err
		}
	}

	logger.Warnf("Reader '%s': key %s not found, resuming at page %d, offset %d.", p.name, p.lastKey, savedPage, savedOffset)
	if p.page != savedPage {
		if err := p.load(ctx, savedPage); err != nil {
			return err
		}
	}
	p.offset = savedOffset
	return nil
}

func (p *pager[T]) indexOf(key string) int {
	for i, it := range p.buffer {
		if p.keyFunc(it) == key {
			return i
		}
	}
	return -1
}

func (p *pager[T]) read(ctx context.Context) (T, error) {
	var zero T
	if !p.opened {
		return zero, exception.NewSourceReadError(p.name, "reader is not open", nil)
	}
	if p.total >= 0 && int64(p.readCount) >= p.total {
		return zero, port.ErrNoMoreItems
	}
	if !p.loaded {
		if err := p.load(ctx, p.page); err != nil {
			return zero, err
		}
		if err := p.reposition(ctx); err != nil {
			return zero, err
		}
	}
	if p.offset >= len(p.buffer) {
		// A short page is the last one.
		if len(p.buffer) < p.pageSize {
			return zero, port.ErrNoMoreItems
		}
		if err := p.load(ctx, p.page+1); err != nil {
			return zero, err
		}
		p.offset = 0
		if len(p.buffer) == 0 {
			return zero, port.ErrNoMoreItems
		}
	}

	it := p.buffer[p.offset]
	p.offset++
	p.readCount++
	if p.keyFunc != nil {
		p.lastKey = p.keyFunc(it)
	}
	return it, nil
}

func (p *pager[T]) executionContext() model.ExecutionContext {
	ec := model.NewExecutionContext()
	ec.Put(p.key(keyPage), p.page)
	ec.Put(p.key(keyPageOffset), p.offset)
	ec.Put(p.key(keyReadCount), p.readCount)
	if p.keyFunc != nil && p.lastKey != "" {
		ec.Put(p.key(keyLastKey), p.lastKey)
	}
	return ec
}

func (p *pager[T]) close() {
	p.buffer = nil
	p.loaded = false
	p.opened = false
}
