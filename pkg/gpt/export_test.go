package gpt

// MockStatMode replaces the device stat used by CheckDevice and returns a
// restore function.
func MockStatMode(f statModeFunc) (restore func()) {
	saved := statMode
	statMode = f
	return func() {
		statMode = saved
	}
}

var (
	ParseAdded     = parseAdded
	BytesToSectors = bytesToSectors
)

type Provider = provider

func ParseProviders(out string) ([]Provider, error) {
	return parseProviders(out)
}
