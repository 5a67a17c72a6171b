// Package pipeline validates, de-duplicates and exports scraped records.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-gamewiki/models"
)

// MultiWriter fans every batch out to several writers.
type MultiWriter struct {
	writers []namedWriter
	mu      sync.Mutex
}

type namedWriter struct {
	name string
	OutputWriter
}

// NewDualWriter creates a writer producing both CSV and JSONL output.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return &MultiWriter{writers: []namedWriter{
		{name: "CSV", OutputWriter: csvWriter},
		{name: "JSON", OutputWriter: jsonWriter},
	}}, nil
}

// NewMultiWriter combines already open writers. Names label errors.
func NewMultiWriter(writers map[string]OutputWriter, order ...string) *MultiWriter {
	mw := &MultiWriter{}
	for _, name := range order {
		if w, ok := writers[name]; ok && w != nil {
			mw.writers = append(mw.writers, namedWriter{name: name, OutputWriter: w})
		}
	}
	return mw
}

// Write writes records to every wrapped writer, stopping at the first failure.
func (mw *MultiWriter) Write(records []models.Record) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, w := range mw.writers {
		if err := w.Write(records); err != nil {
			return fmt.Errorf("%s write failed: %w", w.name, err)
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close failed: %w", w.name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every output file.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s validation failed: %w", w.name, err))
		}
	}
	return errors.Join(errs...)
}
