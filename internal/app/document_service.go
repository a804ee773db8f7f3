package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"docuchat/internal/config"
	"docuchat/internal/metrics"
	"docuchat/internal/model"
	"docuchat/internal/pkg/pdfextract"
	"docuchat/internal/pkg/textchunk"
	"docuchat/internal/pkg/webpage"
	"docuchat/internal/repository"
	"docuchat/internal/vectorindex"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDocumentNotReady  = errors.New("document is not ready")
	ErrNoExtractableText = errors.New("no extractable text")
	ErrFetchFailed       = errors.New("url fetch failed")
)

// DocumentJobPublisher hands a document id to the processing queue.
type DocumentJobPublisher interface {
	PublishDocumentJob(ctx context.Context, documentID uint) error
}

type DocumentService struct {
	documentRepo *repository.DocumentRepository
	chunkRepo    *repository.ChunkRepository
	index        *vectorindex.Index
	publisher    DocumentJobPublisher
	httpClient   *http.Client
	ingest       config.IngestConfig
	chunkSize    int
	chunkOverlap int
}

type UploadPDFInput struct {
	UserID   uint
	Filename string
	Size     int64
	Reader   io.Reader
}

type FetchURLInput struct {
	UserID uint
	URL    string
	Name   string
}

func NewDocumentService(
	documentRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	index *vectorindex.Index,
	publisher DocumentJobPublisher,
	ingest config.IngestConfig,
	rag config.RAGConfig,
) *DocumentService {
	chunkSize := rag.ChunkSize
	if chunkSize <= 0 {
		chunkSize = textchunk.DefaultChunkSize
	}
	chunkOverlap := rag.ChunkOverlap
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = textchunk.DefaultChunkOverlap
	}
	fetchTimeout := time.Duration(ingest.FetchTimeoutSeconds) * time.Second
	if fetchTimeout <= 0 {
		fetchTimeout = 15 * time.Second
	}
	return &DocumentService{
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		index:        index,
		publisher:    publisher,
		httpClient:   &http.Client{Timeout: fetchTimeout},
		ingest:       ingest,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// UploadPDF extracts per-page text from an uploaded PDF, detects the
// industry, persists the document with its chunks in pending state and
// queues a processing job.
func (s *DocumentService) UploadPDF(ctx context.Context, input UploadPDFInput) (*model.Document, error) {
	if input.UserID == 0 || input.Reader == nil {
		return nil, ErrInvalidInput
	}
	filename := strings.TrimSpace(input.Filename)
	if filename == "" || !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, fmt.Errorf("%w: only pdf uploads are accepted", ErrInvalidInput)
	}
	if s.ingest.MaxUploadBytes > 0 && input.Size > s.ingest.MaxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds the upload limit", ErrInvalidInput)
	}

	reader := input.Reader
	if s.ingest.MaxUploadBytes > 0 {
		reader = io.LimitReader(reader, s.ingest.MaxUploadBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	if s.ingest.MaxUploadBytes > 0 && int64(len(data)) > s.ingest.MaxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds the upload limit", ErrInvalidInput)
	}

	extracted, err := pdfextract.ExtractPages(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable pdf: %v", ErrInvalidInput, err)
	}
	pages := make([]textchunk.Page, 0, len(extracted))
	stored := make([]model.DocumentPage, 0, len(extracted))
	for _, p := range extracted {
		pages = append(pages, textchunk.Page{Number: p.Number, Text: p.Text})
		stored = append(stored, model.DocumentPage{Page: p.Number, Text: p.Text})
	}

	doc := &model.Document{
		UserID:    input.UserID,
		Name:      filename,
		Source:    model.DocumentSourceUpload,
		Status:    model.DocumentStatusPending,
		SizeBytes: int64(len(data)),
		PageCount: len(pages),
	}
	doc.SetPages(stored)
	return s.ingestDocument(ctx, doc, pages)
}

// FetchURL downloads a web page, extracts the readable article text and
// ingests it as a single-page document.
func (s *DocumentService) FetchURL(ctx context.Context, input FetchURLInput) (*model.Document, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	rawURL := strings.TrimSpace(input.URL)
	if rawURL == "" {
		return nil, ErrInvalidInput
	}

	fetchTimeout := s.httpClient.Timeout
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	article, err := webpage.Fetch(fetchCtx, s.httpClient, rawURL, s.ingest.MaxFetchBytes)
	if errors.Is(err, webpage.ErrInvalidURL) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if strings.TrimSpace(article.Text) == "" {
		return nil, ErrNoExtractableText
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = article.Title
	}

	pages := []textchunk.Page{{Number: 1, Text: article.Text}}
	doc := &model.Document{
		UserID:    input.UserID,
		Name:      name,
		Source:    model.DocumentSourceURL,
		SourceURL: rawURL,
		Status:    model.DocumentStatusPending,
		SizeBytes: int64(len(article.Text)),
		PageCount: 1,
	}
	doc.SetPages([]model.DocumentPage{{Page: 1, Text: article.Text}})
	return s.ingestDocument(ctx, doc, pages)
}

// ingestDocument runs the shared tail of both ingestion paths: chunk,
// persist, publish. The document row stays pending if the publish fails;
// boot-time recovery re-queues it.
func (s *DocumentService) ingestDocument(ctx context.Context, doc *model.Document, pages []textchunk.Page) (*model.Document, error) {
	chunks := textchunk.Split(pages, s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrNoExtractableText
	}

	doc.Industry = textchunk.DetectIndustry(pages)
	doc.WordCount = textchunk.WordCount(pages)
	doc.ChunkCount = len(chunks)
	if err := s.documentRepo.Create(doc); err != nil {
		return nil, err
	}

	rows := make([]model.Chunk, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, model.Chunk{
			DocumentID: doc.ID,
			Seq:        c.Seq,
			Page:       c.Page,
			StartWord:  c.StartWord,
			EndWord:    c.EndWord,
			WordCount:  c.WordCount,
			Text:       c.Text,
		})
	}
	if err := s.chunkRepo.CreateBatch(rows); err != nil {
		return nil, err
	}

	if s.publisher == nil {
		return nil, fmt.Errorf("publish document job failed: no publisher")
	}
	if err := s.publisher.PublishDocumentJob(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish document job failed: %w", err)
	}
	return doc, nil
}

func (s *DocumentService) List(userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.documentRepo.ListByUserID(userID)
}

func (s *DocumentService) Get(userID, documentID uint) (*model.Document, error) {
	if userID == 0 || documentID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.documentRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) Chunks(userID, documentID uint, limit, offset int) ([]model.Chunk, error) {
	if _, err := s.Get(userID, documentID); err != nil {
		return nil, err
	}
	return s.chunkRepo.ListByDocumentID(documentID, limit, offset)
}

// Delete removes the document, its chunks and its vectors.
func (s *DocumentService) Delete(userID, documentID uint) error {
	if _, err := s.Get(userID, documentID); err != nil {
		return err
	}
	s.index.RemoveDocument(documentID)
	metrics.IndexVectors.Set(float64(s.index.Size()))
	if err := s.chunkRepo.DeleteByDocumentID(documentID); err != nil {
		return err
	}
	return s.documentRepo.DeleteByIDAndUserID(documentID, userID)
}

// Reprocess re-chunks an indexed or failed document from its stored pages
// and queues it again.
func (s *DocumentService) Reprocess(ctx context.Context, userID, documentID uint) (*model.Document, error) {
	doc, err := s.Get(userID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != model.DocumentStatusIndexed && doc.Status != model.DocumentStatusFailed {
		return nil, ErrDocumentNotReady
	}

	stored := doc.PageList()
	pages := make([]textchunk.Page, 0, len(stored))
	for _, p := range stored {
		pages = append(pages, textchunk.Page{Number: p.Page, Text: p.Text})
	}
	chunks := textchunk.Split(pages, s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrNoExtractableText
	}

	s.index.RemoveDocument(documentID)
	metrics.IndexVectors.Set(float64(s.index.Size()))
	if err := s.chunkRepo.DeleteByDocumentID(documentID); err != nil {
		return nil, err
	}

	rows := make([]model.Chunk, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, model.Chunk{
			DocumentID: doc.ID,
			Seq:        c.Seq,
			Page:       c.Page,
			StartWord:  c.StartWord,
			EndWord:    c.EndWord,
			WordCount:  c.WordCount,
			Text:       c.Text,
		})
	}
	if err := s.chunkRepo.CreateBatch(rows); err != nil {
		return nil, err
	}

	doc.Status = model.DocumentStatusPending
	doc.Error = ""
	doc.ChunkCount = len(chunks)
	if err := s.documentRepo.Save(doc); err != nil {
		return nil, err
	}

	if err := s.publisher.PublishDocumentJob(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish document job failed: %w", err)
	}
	return doc, nil
}
