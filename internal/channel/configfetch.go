package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-edge/internal/configstore"
	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// SendConfigFetchRequest implements transport.ConfigFetcher. The fetch runs
// on its own goroutine; its response is queued on the channel when done.
func (p *Provider) SendConfigFetchRequest(h transport.Handle, keys []transport.ConfigKey) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: no keys", transport.ErrInvalidRequest)
	}
	if p.monitor.Status() != transport.NetworkConnected {
		return transport.ErrNotConnected
	}

	p.mu.Lock()
	ch, err := p.lookup(h, transport.ChannelConfigFetch)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if ch.fetching || len(ch.fifo) > 0 {
		p.mu.Unlock()
		return transport.ErrRequestPending
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.FetchTimeout)
	ch.fetching = true
	ch.cancelFetch = cancel
	ch.lastFetch = nil
	p.wg.Add(1)
	p.mu.Unlock()

	keys = append([]transport.ConfigKey(nil), keys...)
	go func() {
		defer p.wg.Done()
		defer cancel()
		p.runFetch(ctx, h, keys)
	}()
	return nil
}

// runFetch reads keys from the store and queues the outcome on channel h.
func (p *Provider) runFetch(ctx context.Context, h transport.Handle, keys []transport.ConfigKey) {
	items, err := p.store.Fetch(ctx, keys)

	result := &fetchResult{resp: transport.ConfigFetchResponse{Result: transport.ConfigFetchOK}}
	switch {
	case err == nil && len(items) != len(keys):
		p.logger.Error("config store returned wrong item count", "got", len(items), "want", len(keys))
		result.resp.Result = transport.ConfigFetchFailed
	case err == nil:
		result.items = items
		result.resp.NumItems = len(items)
	case errors.Is(err, configstore.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		p.logger.Warn("config store unavailable", "error", err)
		result.resp.Result = transport.ConfigFetchUnavailable
	default:
		p.logger.Error("config fetch failed", "error", err)
		result.resp.Result = transport.ConfigFetchFailed
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		// channel or provider closed mid-fetch
		return
	}

	p.mu.Lock()
	ch, ok := p.channels[h]
	if ok {
		ch.fetching = false
		ch.cancelFetch = nil
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	p.push(h, readable{kind: transport.ReadableConfigResponse, fetch: result})
}

// ReadConfigFetchResponse implements transport.ConfigFetcher. The items of
// the response stay readable with ReadConfigItem until the next fetch.
func (p *Provider) ReadConfigFetchResponse(h transport.Handle) (transport.ConfigFetchResponse, error) {
	r, ch, err := p.pop(h, transport.ChannelConfigFetch, transport.ReadableConfigResponse)
	if err != nil {
		return transport.ConfigFetchResponse{}, err
	}

	p.mu.Lock()
	ch.lastFetch = r.fetch
	p.mu.Unlock()
	return r.fetch.resp, nil
}

// ReadConfigItem implements transport.ConfigFetcher.
func (p *Provider) ReadConfigItem(h transport.Handle, index int) (transport.ConfigItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.lookup(h, transport.ChannelConfigFetch)
	if err != nil {
		return transport.ConfigItem{}, err
	}
	if ch.lastFetch == nil {
		return transport.ConfigItem{}, transport.ErrNothingReadable
	}
	if index < 0 || index >= len(ch.lastFetch.items) {
		return transport.ConfigItem{}, fmt.Errorf("%w: item %d of %d",
			transport.ErrInvalidRequest, index, len(ch.lastFetch.items))
	}

	item := ch.lastFetch.items[index]
	if item.Result != transport.ConfigKeyOK {
		return transport.ConfigItem{Result: item.Result}, nil
	}
	if len(item.Data) > len(ch.buffers.Receive) {
		return transport.ConfigItem{}, fmt.Errorf("%w: item %d is %d bytes, buffer of %d",
			transport.ErrBufferTooSmall, index, len(item.Data), len(ch.buffers.Receive))
	}
	n := copy(ch.buffers.Receive, item.Data)
	return transport.ConfigItem{Result: transport.ConfigKeyOK, Data: ch.buffers.Receive[:n]}, nil
}
