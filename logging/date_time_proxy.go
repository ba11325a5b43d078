package logging

import (
	"io"

	"github.com/ledgerops/warehouse/timestamp"
)

const logsLayout = "2006-01-02 15:04:05"

//dateTimeWriter prepends UTC time to every written line
type dateTimeWriter struct {
	writer io.Writer
}

func (w dateTimeWriter) Write(line []byte) (int, error) {
	stamped := make([]byte, 0, len(logsLayout)+1+len(line))
	stamped = append(stamped, timestamp.Now().UTC().Format(logsLayout)...)
	stamped = append(stamped, ' ')
	stamped = append(stamped, line...)
	if _, err := w.writer.Write(stamped); err != nil {
		return 0, err
	}
	return len(line), nil
}
