package report

import (
	"sync"
	"time"
)

type pendingPhoto struct {
	photo   *Photo
	expires time.Time
}

// PhotoBuffer holds photos sent without a caption until the sender's next
// text report. A zero TTL keeps photos until they are taken.
type PhotoBuffer struct {
	ttl        time.Duration
	timeSource TimeSource

	mu      sync.Mutex
	pending map[string][]pendingPhoto
}

// NewPhotoBuffer creates a buffer whose entries expire after ttl
func NewPhotoBuffer(ttl time.Duration, timeSource TimeSource) *PhotoBuffer {
	if timeSource == nil {
		timeSource = &defaultTimeSource{}
	}
	return &PhotoBuffer{
		ttl:        ttl,
		timeSource: timeSource,
		pending:    make(map[string][]pendingPhoto),
	}
}

// Add buffers photos for a sender
func (b *PhotoBuffer) Add(sender string, photos ...*Photo) {
	if len(photos) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var expires time.Time
	if b.ttl > 0 {
		expires = b.timeSource.Now().Add(b.ttl)
	}
	for _, p := range photos {
		b.pending[sender] = append(b.pending[sender], pendingPhoto{photo: p, expires: expires})
	}
}

// Take clears a sender's buffer. Live photos come first, expired ones second
// so the caller can remove their files.
func (b *PhotoBuffer) Take(sender string) (live, expired []*Photo) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.timeSource.Now()
	for _, p := range b.pending[sender] {
		if b.expired(p, now) {
			expired = append(expired, p.photo)
		} else {
			live = append(live, p.photo)
		}
	}
	delete(b.pending, sender)
	return live, expired
}

// Expire drops expired photos of every sender and returns them
func (b *PhotoBuffer) Expire() []*Photo {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.timeSource.Now()
	var expired []*Photo
	for sender, photos := range b.pending {
		kept := photos[:0]
		for _, p := range photos {
			if b.expired(p, now) {
				expired = append(expired, p.photo)
			} else {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(b.pending, sender)
		} else {
			b.pending[sender] = kept
		}
	}
	return expired
}

// Len returns how many photos a sender has waiting
func (b *PhotoBuffer) Len(sender string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[sender])
}

func (b *PhotoBuffer) expired(p pendingPhoto, now time.Time) bool {
	return !p.expires.IsZero() && !now.Before(p.expires)
}
