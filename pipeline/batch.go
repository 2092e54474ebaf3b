package pipeline

// PathBatch is the unit of work of every stage. It is never split or merged.
type PathBatch []string

// Chunk splits paths into consecutive batches of at most size paths.
func Chunk(paths []string, size int) []PathBatch {
	size = max(size, 1)
	batches := make([]PathBatch, 0, (len(paths)+size-1)/size)
	for start := 0; start < len(paths); start += size {
		end := min(start+size, len(paths))
		batches = append(batches, PathBatch(paths[start:end:end]))
	}
	return batches
}
