package platform

import "fmt"

// Result is a native result code as returned by the storage and title
// management services. Bit 31 set means failure.
type Result uint32

const (
	ResultNotFound         Result = 0xC8804478
	ResultAlreadyExists    Result = 0xC82044BE
	ResultNotEmpty         Result = 0xC8A04544
	ResultInvalidArgument  Result = 0xE0E01BF5
	ResultInvalidState     Result = 0xC8A044DC
	ResultAlreadyInstalled Result = 0xC8E083FC
	ResultTitleNotFound    Result = 0xD8A083FA
	ResultOutOfSpace       Result = 0xD86044CD
)

var levels = map[uint32]string{
	0:  "success",
	1:  "info",
	25: "status",
	26: "temporary",
	27: "permanent",
	28: "usage",
	29: "reinitialize",
	30: "reset",
	31: "fatal",
}

var summaries = map[uint32]string{
	0:  "success",
	1:  "nothing happened",
	2:  "would block",
	3:  "out of resource",
	4:  "not found",
	5:  "invalid state",
	6:  "not supported",
	7:  "invalid argument",
	8:  "wrong argument",
	9:  "canceled",
	10: "status changed",
	11: "internal",
}

func (r Result) Level() uint32       { return uint32(r) >> 27 & 0x1F }
func (r Result) Summary() uint32     { return uint32(r) >> 21 & 0x3F }
func (r Result) Module() uint32      { return uint32(r) >> 10 & 0xFF }
func (r Result) Description() uint32 { return uint32(r) & 0x3FF }

// Failed reports whether the code signals an error.
func (r Result) Failed() bool {
	return int32(r) < 0
}

func (r Result) Error() string {
	level, ok := levels[r.Level()]
	if !ok {
		level = fmt.Sprintf("level %d", r.Level())
	}
	summary, ok := summaries[r.Summary()]
	if !ok {
		summary = fmt.Sprintf("summary %d", r.Summary())
	}
	return fmt.Sprintf("result 0x%08X (%s, %s, module %d, description %d)",
		uint32(r), level, summary, r.Module(), r.Description())
}
