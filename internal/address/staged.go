package address

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// WriteStaged writes records as one JSON array. The file is written under a
// temporary name in the same directory and renamed into place, so a failed
// write never leaves a partial staged file behind.
func WriteStaged(path string, records []Record) (err error) {
	if records == nil {
		records = []Record{}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".staging-*.tmp")
	if err != nil {
		return eris.Wrapf(err, "address: create temp file for %s", path)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriterSize(tmp, 1<<20)
	if err = json.NewEncoder(w).Encode(records); err != nil {
		return eris.Wrapf(err, "address: encode %s", path)
	}
	if err = w.Flush(); err != nil {
		return eris.Wrapf(err, "address: flush %s", path)
	}
	if err = tmp.Close(); err != nil {
		return eris.Wrapf(err, "address: close %s", path)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "address: rename staged file to %s", path)
	}
	return nil
}

// ReadStaged reads a staged file written by WriteStaged.
func ReadStaged(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "address: open staged file %s", path)
	}
	defer f.Close() //nolint:errcheck

	records, err := DecodeStaged(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		return nil, eris.Wrapf(err, "address: decode staged file %s", path)
	}
	return records, nil
}

// DecodeStaged decodes a staged record array.
func DecodeStaged(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}
