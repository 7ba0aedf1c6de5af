package audio

// Drain discards values from ch until it is closed.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
