package assets

// Loader decodes the bytes of one asset file.
type Loader[T any] interface {
	Load(path string, data []byte) (T, error)
}
