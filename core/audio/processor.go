package audio

import "context"

// Processor converts downloaded media into the canonical segment format.
type Processor interface {
	ToWAV(ctx context.Context, inputFile, outputFile string) error
	GetAudioDuration(ctx context.Context, inputFile string) (float32, error)
}
