package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"
)

// TextExtractor returns the text of every page of a document, in page order.
type TextExtractor interface {
	ExtractText(src io.ReadSeeker) (string, error)
}

// PDFExtractor extracts text with unipdf.
type PDFExtractor struct {
	log *zap.Logger
}

// NewPDFExtractor registers the metered license key when one is given.
// Without a key unipdf runs unlicensed.
func NewPDFExtractor(licenseKey string, log *zap.Logger) (*PDFExtractor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if licenseKey == "" {
		log.Warn("no unipdf license key configured, running unlicensed")
	} else if err := license.SetMeteredKey(licenseKey); err != nil {
		return nil, fmt.Errorf("set unipdf license: %w", err)
	}
	return &PDFExtractor{log: log}, nil
}

// ExtractText reads a PDF from src.
func (e *PDFExtractor) ExtractText(src io.ReadSeeker) (text string, err error) {
	// unipdf panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := model.NewPdfReader(src)
	if err != nil {
		return "", err
	}
	encrypted, err := reader.IsEncrypted()
	if err != nil {
		return "", err
	}
	if encrypted {
		ok, err := reader.Decrypt([]byte(""))
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.New("pdf is password protected")
		}
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pageText, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(pageText)
	}
	e.log.Debug("extracted pdf text", zap.Int("pages", numPages), zap.Int("bytes", b.Len()))
	return b.String(), nil
}

// ExtractBytes extracts the text of an in-memory document.
func ExtractBytes(ext TextExtractor, name string, data []byte) (string, error) {
	text, err := ext.ExtractText(bytes.NewReader(data))
	if err != nil {
		return "", &ExtractionError{File: name, Err: err}
	}
	return text, nil
}

// ExtractFile extracts the text of the document stored at path.
func ExtractFile(ext TextExtractor, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &ExtractionError{File: filepath.Base(path), Err: err}
	}
	defer f.Close()
	text, err := ext.ExtractText(f)
	if err != nil {
		return "", &ExtractionError{File: filepath.Base(path), Err: err}
	}
	return text, nil
}
