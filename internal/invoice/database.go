package invoice

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	documentBucketName = "documents"
	// pathBucketName maps a source path to the ID of its latest document
	pathBucketName = "paths"
)

// Document is a processed file and everything the pipeline found in it
type Document struct {
	ID        string          `json:"id"`
	Filename  string          `json:"filename"`
	Path      string          `json:"path"`
	Results   []InvoiceResult `json:"results"`
	Summary   Summary         `json:"summary"`
	CreatedAt time.Time       `json:"created_at"`
}

// DB defines the interface for database operations
type DB interface {
	// SaveDocument saves a processed document
	SaveDocument(doc *Document) error

	// GetDocument retrieves a document by ID
	GetDocument(id string) (*Document, error)

	// DocumentByPath retrieves the latest document read from path
	DocumentByPath(path string) (*Document, error)

	// ListDocuments returns all documents, oldest first
	ListDocuments() ([]*Document, error)

	// DeleteDocument removes a document
	DeleteDocument(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{documentBucketName, pathBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveDocument saves a processed document. A document for a path that was
// already processed replaces the earlier one.
func (b *BoltDB) SaveDocument(doc *Document) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket([]byte(documentBucketName))
		paths := tx.Bucket([]byte(pathBucketName))
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshaling document: %w", err)
		}

		if doc.Path != "" {
			if prev := string(paths.Get([]byte(doc.Path))); prev != "" && prev != doc.ID {
				if err := docs.Delete([]byte(prev)); err != nil {
					return fmt.Errorf("replacing document %s: %w", prev, err)
				}
			}
			if err := paths.Put([]byte(doc.Path), []byte(doc.ID)); err != nil {
				return fmt.Errorf("indexing path: %w", err)
			}
		}
		return docs.Put([]byte(doc.ID), data)
	})
}

// GetDocument retrieves a document by ID
func (b *BoltDB) GetDocument(id string) (*Document, error) {
	var doc *Document
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(documentBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DocumentByPath retrieves the latest document read from path
func (b *BoltDB) DocumentByPath(path string) (*Document, error) {
	var doc *Document
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(pathBucketName)).Get([]byte(path))
		if id == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		data := tx.Bucket([]byte(documentBucketName)).Get(id)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all documents, oldest first
func (b *BoltDB) ListDocuments() ([]*Document, error) {
	docs := make([]*Document, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(documentBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("unmarshaling document: %w", err)
			}
			docs = append(docs, &doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// DeleteDocument removes a document and its path entry
func (b *BoltDB) DeleteDocument(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket([]byte(documentBucketName))
		data := docs.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("unmarshaling document: %w", err)
		}

		paths := tx.Bucket([]byte(pathBucketName))
		if doc.Path != "" && string(paths.Get([]byte(doc.Path))) == id {
			if err := paths.Delete([]byte(doc.Path)); err != nil {
				return fmt.Errorf("removing path entry: %w", err)
			}
		}
		return docs.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
