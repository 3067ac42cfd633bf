// Package pipeline runs the document processing flow: download, split,
// extract, stage.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ofisk/loresmith-ai-sub003/internal/config"
	"github.com/ofisk/loresmith-ai-sub003/internal/notify"
	"github.com/ofisk/loresmith-ai-sub003/internal/service"
	"github.com/ofisk/loresmith-ai-sub003/internal/splitter"
	"github.com/ofisk/loresmith-ai-sub003/pkg/extraction"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
	"github.com/ofisk/loresmith-ai-sub003/pkg/storage"
	"github.com/ofisk/loresmith-ai-sub003/pkg/tasks"
	"github.com/ofisk/loresmith-ai-sub003/pkg/tika"
)

// Processor wires the processing dependencies for merged documents.
type Processor struct {
	tikaClient *tika.Client
	extractor  extraction.Client
	staging    service.StagingService
	hub        *notify.Hub
	minioCfg   config.MinIOConfig
	splitCfg   config.SplitConfig
}

// NewProcessor creates a new Processor instance.
func NewProcessor(
	tikaClient *tika.Client,
	extractor extraction.Client,
	staging service.StagingService,
	hub *notify.Hub,
	minioCfg config.MinIOConfig,
	splitCfg config.SplitConfig,
) *Processor {
	return &Processor{
		tikaClient: tikaClient,
		extractor:  extractor,
		staging:    staging,
		hub:        hub,
		minioCfg:   minioCfg,
		splitCfg:   splitCfg,
	}
}

// Process handles one merged document: split it into fragments, persist
// fragments and manifest, run extraction per fragment and stage the
// candidates. Finishes by signalling review sessions of the campaign.
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	log.Infof("[Processor] processing document, FileMD5: %s, FileName: %s, CampaignID: %s", task.FileMD5, task.FileName, task.CampaignID)

	// 1. Download the merged object.
	data, err := storage.GetObjectBytes(ctx, p.minioCfg.BucketName, task.ObjectKey)
	if err != nil {
		log.Errorf("[Processor] failed to download object %s: %v", task.ObjectKey, err)
		return fmt.Errorf("failed to download merged object: %w", err)
	}
	if len(data) == 0 {
		log.Warnf("[Processor] document '%s' is empty, aborting", task.FileName)
		return errors.New("document is empty")
	}

	contentType := tika.DetectMimeType(task.FileName)

	// 2. Documents with no native split strategy go through Tika first so
	// the splitter works on extracted text.
	fileName := task.FileName
	if needsTextExtraction(contentType) {
		text, err := p.tikaClient.ExtractText(bytes.NewReader(data), task.FileName)
		if err != nil {
			log.Errorf("[Processor] text extraction failed for %s: %v", task.FileName, err)
			return fmt.Errorf("text extraction failed: %w", err)
		}
		if text == "" {
			log.Warnf("[Processor] extracted text is empty for %s, aborting", task.FileName)
			return errors.New("extracted text is empty")
		}
		data = []byte(text)
		contentType = "text/plain"
		fileName = task.FileName + ".txt"
	}

	// 3. Split into fragments.
	fragments, manifest := splitter.Split(data, contentType, p.splitCfg.MaxFragmentSize, fileName, task.CampaignID)
	log.Infof("[Processor] split '%s' into %d fragments", task.FileName, manifest.FragmentCount)

	// 4. Persist fragments and manifest to the object store.
	for _, frag := range fragments {
		if err := storage.PutObjectBytes(ctx, p.minioCfg.BucketName, frag.Key, frag.Data, frag.ContentType); err != nil {
			return fmt.Errorf("failed to store fragment %s: %w", frag.Key, err)
		}
	}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}
	manifestKey := splitter.ManifestKey(task.CampaignID, fileName)
	if err := storage.PutObjectBytes(ctx, p.minioCfg.BucketName, manifestKey, manifestBytes, "application/json"); err != nil {
		return fmt.Errorf("failed to store manifest: %w", err)
	}

	// 5. Run extraction per fragment and stage the candidates. Each
	// fragment's candidates are one atomic staging batch.
	total := 0
	for _, frag := range fragments {
		candidates, err := p.extractor.Extract(ctx, extraction.ExtractRequest{
			FragmentKey: frag.Key,
			Text:        string(frag.Data),
			FileName:    task.FileName,
			CampaignID:  task.CampaignID,
			ResourceID:  task.FileMD5,
		})
		if err != nil {
			log.Errorf("[Processor] extraction failed for fragment %s: %v", frag.Key, err)
			return fmt.Errorf("extraction failed for fragment %s: %w", frag.Key, err)
		}
		if err := p.staging.StageCandidates(ctx, task.CampaignID, task.FileMD5, candidates); err != nil {
			return fmt.Errorf("failed to stage candidates from fragment %s: %w", frag.Key, err)
		}
		total += len(candidates)
	}
	log.Infof("[Processor] staged %d candidates from %d fragments for '%s'", total, len(fragments), task.FileName)

	// 6. Wake up review sessions of the campaign.
	p.hub.Publish(task.CampaignID)

	return nil
}

// needsTextExtraction reports whether the splitter has no native strategy
// for the content type and the document should be converted to text.
func needsTextExtraction(contentType string) bool {
	switch contentType {
	case "application/pdf", "text/markdown", "application/json", "application/xml":
		return false
	}
	return !strings.HasPrefix(contentType, "text/")
}
