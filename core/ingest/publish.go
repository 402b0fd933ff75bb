package ingest

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"moorecollect/storage"

	"go.uber.org/zap"
)

// PublishReport counts uploads. Failed holds the local paths that did not
// make it.
type PublishReport struct {
	Attempted int
	Succeeded int
	Failed    []string
}

// Publisher uploads chunks to the segment store.
type Publisher struct {
	store  storage.ObjectStore
	prefix string
	log    *zap.Logger
}

// NewPublisher publishes under prefix.
func NewPublisher(store storage.ObjectStore, prefix string, log *zap.Logger) *Publisher {
	return &Publisher{store: store, prefix: prefix, log: log}
}

// ObjectKey maps a chunk path under root to <prefix>/<relative path>, with
// forward slashes. The relative path keeps the per-file folder, which the
// segment reader later parses back as the title.
func ObjectKey(prefix, root, chunk string) (string, error) {
	rel, err := filepath.Rel(root, chunk)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is not under %s", chunk, root)
	}
	return path.Join(prefix, rel), nil
}

// Publish uploads every chunk. Failures are logged and counted.
func (p *Publisher) Publish(ctx context.Context, root string, chunks []string, tick func()) PublishReport {
	report := PublishReport{Attempted: len(chunks)}
	p.log.Info("uploading segments", zap.Int("chunks", len(chunks)), zap.String("prefix", p.prefix))
	for _, chunk := range chunks {
		if err := p.one(ctx, root, chunk); err != nil {
			p.log.Error("upload failed", zap.String("file", chunk), zap.Error(err))
			report.Failed = append(report.Failed, chunk)
		} else {
			report.Succeeded++
		}
		if tick != nil {
			tick()
		}
	}
	p.log.Info("upload done",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("attempted", report.Attempted))
	return report
}

func (p *Publisher) one(ctx context.Context, root, chunk string) error {
	key, err := ObjectKey(p.prefix, root, chunk)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(chunk)
	if err != nil {
		return err
	}
	if err := p.store.Put(ctx, key, data, "audio/wav"); err != nil {
		return err
	}
	p.log.Debug("segment uploaded", zap.String("key", key))
	return nil
}
