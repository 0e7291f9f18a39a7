package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates unique IDs for documents
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Pipeline processes one file into invoice results
type Pipeline interface {
	ProcessDocument(ctx context.Context, path string) ([]InvoiceResult, Summary)
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service processes files and keeps the results
type Service struct {
	db          DB
	pipeline    Pipeline
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID document IDs and the wall clock
func NewService(db DB, pipeline Pipeline) *Service {
	return NewServiceWithDeps(db, pipeline, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, pipeline Pipeline, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		pipeline:    pipeline,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// ProcessFile runs the pipeline over path and saves what it found
func (s *Service) ProcessFile(ctx context.Context, path string) (*Document, error) {
	results, summary := s.pipeline.ProcessDocument(ctx, path)

	doc := &Document{
		ID:        s.idGenerator.Generate(),
		Filename:  filepath.Base(path),
		Path:      path,
		Results:   results,
		Summary:   summary,
		CreatedAt: s.timeSource.Now(),
	}
	if err := s.db.SaveDocument(doc); err != nil {
		slog.Error("Failed to save document", "path", path, "id", doc.ID, "error", err)
		return nil, fmt.Errorf("saving document to database: %w", err)
	}
	return doc, nil
}

// GetDocument retrieves a document by ID
func (s *Service) GetDocument(id string) (*Document, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

// DocumentByPath retrieves the latest document processed from path
func (s *Service) DocumentByPath(path string) (*Document, error) {
	doc, err := s.db.DocumentByPath(path)
	if err != nil {
		return nil, fmt.Errorf("getting document for %s: %w", path, err)
	}
	return doc, nil
}

// ListDocuments returns all documents
func (s *Service) ListDocuments() ([]*Document, error) {
	docs, err := s.db.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document
func (s *Service) DeleteDocument(id string) error {
	if err := s.db.DeleteDocument(id); err != nil {
		return fmt.Errorf("deleting document from database: %w", err)
	}
	return nil
}
