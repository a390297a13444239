// fake_edit.go - Scriptable image-edit service for testing
package testutil

import (
	"context"
	"sync"

	"github.com/storefront-admin/backend/internal/imagery"
)

// FakeEditService implements imagery.EditService. It returns a fixed PNG
// unless told to fail, and can block each call until released so tests
// can cancel an edit while it is running.
type FakeEditService struct {
	mu       sync.Mutex
	result   *imagery.GeneratedAsset
	err      error
	requests []imagery.EditRequest
	sources  [][]byte

	block   bool
	started chan imagery.EditRequest
	release chan struct{}
}

// NewFakeEditService returns a service producing a w x h PNG.
func NewFakeEditService(w, h int) *FakeEditService {
	return &FakeEditService{
		result: &imagery.GeneratedAsset{
			Name:        "edited.png",
			ContentType: "image/png",
			Data:        PNG(w, h),
		},
		started: make(chan imagery.EditRequest, 16),
		release: make(chan struct{}),
	}
}

var _ imagery.EditService = (*FakeEditService)(nil)

func (f *FakeEditService) Generate(ctx context.Context, req imagery.EditRequest, source []byte) (*imagery.GeneratedAsset, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.sources = append(f.sources, source)
	block, result, err := f.block, f.result, f.err
	f.mu.Unlock()

	f.started <- req
	if block {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := *result
	return &out, nil
}

// Block makes subsequent calls wait for Release or cancellation.
func (f *FakeEditService) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = true
}

// Release lets one blocked call return.
func (f *FakeEditService) Release() {
	f.release <- struct{}{}
}

// Fail makes subsequent calls return err.
func (f *FakeEditService) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Started receives each request as its call begins.
func (f *FakeEditService) Started() <-chan imagery.EditRequest {
	return f.started
}

// Requests returns the requests received so far.
func (f *FakeEditService) Requests() []imagery.EditRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]imagery.EditRequest(nil), f.requests...)
}

// Sources returns the source image bytes passed with each request.
func (f *FakeEditService) Sources() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sources...)
}
