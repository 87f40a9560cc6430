package netcore

//
// Interface naming (for log messages), unchanged from the teacher's
// nic.go beyond the package name and prefix.
//

import (
	"fmt"
	"sync/atomic"
)

var ifaceNameCounter atomic.Int64

// newIfaceName constructs a new, unique interface name for logging.
func newIfaceName() string {
	return fmt.Sprintf("eth%d", ifaceNameCounter.Add(1))
}
