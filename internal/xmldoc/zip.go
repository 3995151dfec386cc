package xmldoc

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

// ZipEntry is one XML file pulled from an uploaded package. A parse failure
// is carried per entry so a bad file never aborts the rest of the batch.
type ZipEntry struct {
	Filename string
	Doc      *Document
	Err      error
}

// FromZip extracts and parses every .xml entry of a zip archive.
func FromZip(data []byte) ([]ZipEntry, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrXMLParse.Code, appErrors.ErrXMLParse.Status, "unable to open zip package")
	}

	var entries []ZipEntry
	for _, file := range reader.File {
		if !strings.EqualFold(path.Ext(file.Name), ".xml") {
			continue
		}
		entry := ZipEntry{Filename: path.Base(file.Name)}
		rc, err := file.Open()
		if err != nil {
			entry.Err = appErrors.Wrap(err, appErrors.ErrXMLParse.Code, appErrors.ErrXMLParse.Status, "unable to read zip entry")
			entries = append(entries, entry)
			continue
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			entry.Err = appErrors.Wrap(err, appErrors.ErrXMLParse.Code, appErrors.ErrXMLParse.Status, "unable to read zip entry")
			entries = append(entries, entry)
			continue
		}
		entry.Doc, entry.Err = Parse(raw, entry.Filename)
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, appErrors.Clone(appErrors.ErrXMLParse, "zip package has no xml entries")
	}
	return entries, nil
}

// BuildZip packs a single XML document into an in-memory zip archive, the
// wire shape the central registry expects on upload.
func BuildZip(filename string, xmlData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	entry, err := writer.Create(filename)
	if err != nil {
		return nil, err
	}
	if _, err := entry.Write(xmlData); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
