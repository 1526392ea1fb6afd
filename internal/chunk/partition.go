package chunk

import (
	"github.com/substantialcattle5/stillsuit/internal/constants"
	"github.com/substantialcattle5/stillsuit/internal/fs"
)

// Partition splits files into consecutive batches of at most size records,
// preserving order. A size below one selects the default of 20.
func Partition(files []fs.FileRecord, size int) [][]fs.FileRecord {
	if size < 1 {
		size = constants.DefaultChunkSize
	}

	chunks := make([][]fs.FileRecord, 0, (len(files)+size-1)/size)
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		chunks = append(chunks, files[start:end:end])
	}
	return chunks
}
