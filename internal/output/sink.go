// Package output provides the concrete output-sink destinations for
// captured frames. The capture pipeline depends only on its own Sink
// capability, never on a concrete destination here.
package output

import "errors"

// Known sink kinds. At most one active instance exists per kind.
const (
	KindMirror = "mirror"
	KindRecord = "record"
)

// ErrNotRunning is returned by Send after a sink has stopped. A send
// failure is transient from the pipeline's point of view and never
// tears the sink down automatically.
var ErrNotRunning = errors.New("output sink is not running")
