package logfile

import (
	"bufio"
	"errors"
	"io"
)

// scanner reads the log file record by record.
type scanner struct {
	*bufio.Scanner
}

func newScanner(r io.Reader, maxRecordSize int) *scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), maxRecordSize+headerLength)
	s.Split(split)
	return &scanner{s}
}

// split implements bufio.SplitFunc over serialized records.
func split(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	r, err := deserialize(data)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			if atEOF {
				// A partial record at the end of the file is a torn write.
				return 0, nil, ErrCorruptData
			}
			return 0, nil, nil
		}
		return 0, nil, err
	}

	advance = r.size()
	token = data[:advance]
	return
}

func (s *scanner) record() *record {
	r, _ := deserialize(s.Bytes())
	return r
}
