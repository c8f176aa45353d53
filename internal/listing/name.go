package listing

import (
	"fmt"
	"strings"

	"github.com/studio1767/ctrmgr/internal/platform"
)

// DisplayName is the short description from meta, or the hex id when there is
// no usable description.
func DisplayName(meta *platform.Metadata, id uint64) string {
	if meta != nil {
		if name := strings.TrimSpace(meta.ShortDescription); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%016X", id)
}
