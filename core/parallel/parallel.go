package parallel

import (
	"runtime"
	"sync"
)

// Parallelize divides the specified total number (items) according to the number of CPU cores,
// and executes the specified function (fn) in parallel for each range (start, end)
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	// Get the number of available CPU cores
	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items // No need for more workers than items
	}

	// Calculate the number of items each worker handles (ceiling division)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup

	// Start workers equal to the number of CPU cores
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// ParallelizeChunked executes fn in parallel over fixed-size chunks of the
// range [0, items). Unlike Parallelize, the chunk size is caller-controlled,
// so per-chunk scratch buffers stay bounded regardless of the total item
// count. Chunks are distributed to NumCPU workers over a channel.
func ParallelizeChunked(items, chunkSize int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	if chunkSize <= 0 || chunkSize > items {
		chunkSize = items
	}

	numChunks := (items + chunkSize - 1) / chunkSize
	numWorkers := runtime.NumCPU()
	if numWorkers > numChunks {
		numWorkers = numChunks
	}

	chunks := make(chan int, numWorkers)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range chunks {
				start := c * chunkSize
				end := start + chunkSize
				if end > items {
					end = items
				}
				fn(start, end)
			}
		}()
	}

	for c := 0; c < numChunks; c++ {
		chunks <- c
	}
	close(chunks)

	wg.Wait()
}
