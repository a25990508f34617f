package media

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"redtrack/internal/model"
	"redtrack/internal/tracker"
)

// Archiver downloads item media in the background and records the stored
// path on the item. Enqueue never blocks the caller: requests past the queue
// capacity are dropped and the item is re-offered on a later first-sighting
// only if the poll re-discovers it, so the poll path never waits on media I/O.
type Archiver struct {
	store      tracker.Store
	media      MediaStore
	httpClient *http.Client
	userAgent  string
	logger     tracker.Logger

	queue chan model.Item
	wg    sync.WaitGroup
	once  sync.Once
}

// NewArchiver creates an Archiver that downloads with the given User-Agent
// and persists into media, recording paths through store.
func NewArchiver(store tracker.Store, mediaStore MediaStore, userAgent string, logger tracker.Logger) *Archiver {
	a := &Archiver{
		store:      store,
		media:      mediaStore,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		userAgent:  userAgent,
		logger:     logger,
		queue:      make(chan model.Item, 64),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Enqueue offers an item for archiving. Drops the request if the queue is full.
func (a *Archiver) Enqueue(item model.Item) {
	select {
	case a.queue <- item:
	default:
		a.logger.Warn("archive queue full, dropping", "item", item.NaturalID)
	}
}

// Close stops accepting work and waits for in-flight downloads to finish.
func (a *Archiver) Close() {
	a.once.Do(func() {
		close(a.queue)
	})
	a.wg.Wait()
}

func (a *Archiver) run() {
	defer a.wg.Done()
	for item := range a.queue {
		if err := a.archive(context.Background(), item); err != nil {
			a.logger.Warn("archiving media", "item", item.NaturalID, "error", err)
		}
	}
}

func (a *Archiver) archive(ctx context.Context, item model.Item) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	name := item.NaturalID + extensionFor(resp.Header.Get("Content-Type"), item.URL)
	path, err := a.media.Put(ctx, name, resp.Body)
	if err != nil {
		return fmt.Errorf("storing media: %w", err)
	}

	if err := a.store.SetItemImagePath(item.Type, item.NaturalID, path); err != nil {
		return fmt.Errorf("recording media path: %w", err)
	}

	a.logger.Debug("media archived", "item", item.NaturalID, "path", path)
	return nil
}

// extensionFor picks a file extension from the response content type,
// falling back to the URL, then to .jpg.
func extensionFor(contentType, url string) string {
	switch {
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	}

	lower := strings.ToLower(url)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.Contains(lower, ext) {
			return ext
		}
	}
	return ".jpg"
}

// Compile-time check that Archiver implements tracker.Archiver.
var _ tracker.Archiver = (*Archiver)(nil)
