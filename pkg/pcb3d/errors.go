package pcb3d

import "errors"

var (
	// ErrNoBoardOutline is returned by every writer when no board body
	// could be built
	ErrNoBoardOutline = errors.New("no valid board outline")
	// ErrZPlacement reports a stackup whose layers cannot be placed
	ErrZPlacement = errors.New("inconsistent layer stackup")
	// ErrUnsupportedFormat is returned for models that cannot be read
	ErrUnsupportedFormat = errors.New("unsupported model format")
	// ErrModelNotFound is returned when a model file does not exist and
	// no substitute was found
	ErrModelNotFound = errors.New("model file not found")
)
